//
// serve.go
//
// Copyright (c) 2025 Markku Rossi
//
// All rights reserved.
//

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hiplab/gcservice/circuit"
	"github.com/hiplab/gcservice/engine"
	"github.com/hiplab/gcservice/env"
	"github.com/hiplab/gcservice/service"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// buildConfig creates the configuration from the role defaults, the
// configuration file, and the command line flags, in that order.
func buildConfig(cmd *cobra.Command, role env.Role) (*env.Config, error) {
	var config *env.Config
	var err error

	if len(configFile) > 0 {
		config, err = env.Load(configFile, role)
		if err != nil {
			return nil, err
		}
	} else {
		config = env.Defaults(role)
	}

	flags := cmd.Flags()
	if flags.Changed("bits") {
		config.NBits = bits
	}
	if flags.Changed("iterations") {
		config.Iterations = iterations
	}
	if flags.Changed("port") {
		config.EnginePort = enginePort
	}
	if flags.Changed("input-port") {
		config.InputPort = inputPort
	}
	if flags.Changed("server") {
		config.Host = host
	}
	if flags.Changed("mode") {
		config.Mode, err = env.ParseMode(mode)
		if err != nil {
			return nil, err
		}
	}
	if flags.Changed("circuit") {
		config.Circuit = circuitFile
	}
	if flags.Changed("read-timeout") {
		config.ReadTimeout = readTimeout
	}
	if flags.Changed("eval-timeout") {
		config.EvalTimeout = evalTimeout
	}
	if verbose {
		config.Verbose = true
	}
	config.Logger = logger.With(zap.Stringer("role", role))

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func newEngine(config *env.Config) (engine.Engine, error) {
	var circ *circuit.Circuit
	var err error

	if len(config.Circuit) > 0 {
		circ, err = circuit.ParseFile(config.Circuit)
		if err != nil {
			return nil, err
		}
		logger.Info("loaded circuit", zap.String("file", config.Circuit),
			zap.Stringer("circuit", circ))
	} else {
		circ = circuit.Identity(config.NBits)
	}

	var peer engine.Peer
	if !standalone {
		peer = engine.PeerFor(config)
	}
	e, err := engine.NewCircuit(config, circ, peer)
	if err != nil {
		return nil, err
	}
	if config.Role == env.Client {
		return engine.NewShares(config, e)
	}
	return e, nil
}

func serve(cmd *cobra.Command, role env.Role) error {
	config, err := buildConfig(cmd, role)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt,
		syscall.SIGTERM)
	defer stop()

	e, err := newEngine(config)
	if err != nil {
		return err
	}
	evaluator, err := engine.NewEvaluator(config, e)
	if err != nil {
		return err
	}
	if err := evaluator.Prepare(ctx); err != nil {
		logger.Error("offline preparation failed", zap.Error(err))
		return err
	}
	if config.Verbose {
		evaluator.Timing.Print(os.Stdout, nil)
	}

	srv, err := service.NewServer(config, evaluator)
	if err != nil {
		return err
	}
	if err := srv.Listen(); err != nil {
		logger.Error("failed to bind input port",
			zap.Int("port", config.InputPort), zap.Error(err))
		return err
	}

	err = srv.Serve(ctx)
	var serr *service.Error
	if errors.As(err, &serr) {
		// The session ended the persistent service. It is reported but
		// is not a failure of the service process.
		fmt.Fprintf(os.Stderr, "session terminated: %v\n", serr)
		return nil
	}
	return err
}
