//
// main.go
//
// Copyright (c) 2025 Markku Rossi
//
// All rights reserved.
//

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/hiplab/gcservice/env"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	configFile  string
	bits        int
	iterations  int
	enginePort  int
	inputPort   int
	host        string
	mode        string
	circuitFile string
	readTimeout time.Duration
	evalTimeout time.Duration
	standalone  bool
	verbose     bool
	arity       int
	perRequest  bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "gcservice",
	Short: "Garbled circuit input/output service",
	Long: `gcservice runs one party of a two-party garbled circuit computation.

The provider (server role) evaluates the circuit with each input it
receives and returns the field corrected signed results. The mediator
(client role) returns two additive shares of each result.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config := zap.NewProductionConfig()
		if verbose {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var providerCmd = &cobra.Command{
	Use:   "provider",
	Short: "Run the server role",
	Long: `Runs the offline preparation and serves inputs on the input port
(default 3491). Results are field corrected to signed values.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd, env.Server)
	},
}

var mediatorCmd = &cobra.Command{
	Use:   "mediator",
	Short: "Run the client role",
	Long: `Runs the offline preparation against the provider's engine port
and serves inputs on the input port (default 3492). Each result is
returned as two additive shares.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd, env.Client)
	},
}

var queryCmd = &cobra.Command{
	Use:   "query VALUE...",
	Short: "Query a running service",
	Long: `Sends each VALUE to the service at --server:--input-port and prints
the results. Values share one connection unless --per-request is set
or --arity is 2, as the mediator serves one value per connection.`,
	Args: cobra.MinimumNArgs(1),
	RunE: query,
}

func init() {
	for _, cmd := range []*cobra.Command{providerCmd, mediatorCmd} {
		flags := cmd.Flags()
		flags.IntVarP(&bits, "bits", "n", env.DefaultNBits,
			"field width in bits")
		flags.IntVarP(&iterations, "iterations", "r", env.DefaultIterations,
			"offline preparation iterations")
		flags.IntVarP(&enginePort, "port", "p", env.DefaultEnginePort,
			"engine port")
		flags.StringVarP(&host, "server", "s", env.DefaultHost,
			"engine peer host")
		flags.StringVar(&mode, "mode", "",
			"connection mode: persistent or per-request")
		flags.StringVar(&circuitFile, "circuit", "",
			"Bristol circuit file (default identity circuit)")
		flags.DurationVar(&readTimeout, "read-timeout", 0,
			"input read timeout (0 disables)")
		flags.DurationVar(&evalTimeout, "eval-timeout", 0,
			"circuit evaluation timeout (0 disables)")
		flags.BoolVar(&standalone, "standalone", false,
			"skip the engine handshake with the peer party")
	}
	providerCmd.Flags().IntVarP(&inputPort, "input-port", "i",
		env.DefaultServerPort, "input/output port")
	mediatorCmd.Flags().IntVarP(&inputPort, "input-port", "i",
		env.DefaultClientPort, "input/output port")

	queryCmd.Flags().IntVarP(&inputPort, "input-port", "i",
		env.DefaultServerPort, "service input/output port")
	queryCmd.Flags().StringVarP(&host, "server", "s", env.DefaultHost,
		"service host")
	queryCmd.Flags().IntVar(&arity, "arity", 1,
		"number of values per response (2 for the mediator)")
	queryCmd.Flags().IntVarP(&bits, "bits", "n", env.DefaultNBits,
		"field width for combining shares")
	queryCmd.Flags().BoolVar(&perRequest, "per-request", false,
		"send each value over its own connection (default with --arity 2)")

	for _, cmd := range []*cobra.Command{providerCmd, mediatorCmd} {
		cmd.Flags().StringVar(&configFile, "config", "",
			"YAML configuration file")
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"verbose output")

	rootCmd.AddCommand(providerCmd, mediatorCmd, queryCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
