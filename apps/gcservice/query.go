//
// query.go
//
// Copyright (c) 2025 Markku Rossi
//
// All rights reserved.
//

package main

import (
	"context"
	"fmt"
	"math/big"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/hiplab/gcservice/circuit"
	"github.com/hiplab/gcservice/engine"
	"github.com/hiplab/gcservice/field"
	"github.com/hiplab/gcservice/p2p"
	"github.com/hiplab/gcservice/service"
	"github.com/markkurossi/tabulate"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func query(cmd *cobra.Command, args []string) error {
	var values []*big.Int
	for _, arg := range args {
		v, ok := new(big.Int).SetString(arg, 0)
		if !ok {
			return fmt.Errorf("invalid value: %s", arg)
		}
		values = append(values, v)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt,
		syscall.SIGTERM)
	defer stop()

	// The mediator serves one value per connection by default.
	if arity == 2 && !cmd.Flags().Changed("per-request") {
		perRequest = true
	}

	addr := net.JoinHostPort(host, strconv.Itoa(inputPort))
	results, stats, err := runQueries(ctx, addr, values, arity, perRequest)
	if err != nil {
		return err
	}

	tab := tabulate.New(tabulate.UnicodeLight)
	tab.Header("Input").SetAlign(tabulate.MR)
	for i := 0; i < arity; i++ {
		tab.Header(fmt.Sprintf("Result %d", i)).SetAlign(tabulate.MR)
	}
	if arity == 2 {
		tab.Header("Combined").SetAlign(tabulate.MR)
	}

	for idx, result := range results {
		row := tab.Row()
		row.Column(values[idx].String())
		for _, r := range result {
			row.Column(r.String())
		}
		if arity == 2 {
			row.Column(combine(result, bits).String()).
				SetFormat(tabulate.FmtBold)
		}
	}
	tab.Print(os.Stdout)

	if verbose && !perRequest {
		fmt.Printf("sent %s, received %s\n",
			circuit.FileSize(stats.Sent.Load()),
			circuit.FileSize(stats.Recvd.Load()))
	}
	return nil
}

// runQueries sends the values to the service at addr. With perRequest
// each value is sent over its own connection, otherwise all values
// share one connection.
func runQueries(ctx context.Context, addr string, values []*big.Int,
	arity int, perRequest bool) ([][]*big.Int, p2p.IOStats, error) {

	stats := p2p.NewIOStats()
	var results [][]*big.Int

	if perRequest {
		for _, v := range values {
			result, err := service.QueryOnce(ctx, addr, arity, v)
			if err != nil {
				return nil, stats, err
			}
			logger.Debug("query", zap.String("addr", addr),
				zap.Stringer("input", v))
			results = append(results, result)
		}
		return results, stats, nil
	}

	client, err := service.Dial(ctx, addr, arity)
	if err != nil {
		return nil, stats, err
	}
	defer client.Close()

	logger.Debug("connected", zap.String("addr", addr))

	for _, v := range values {
		result, err := client.Query(v)
		if err != nil {
			return nil, stats, err
		}
		results = append(results, result)
	}
	return results, client.Stats(), nil
}

// combine reconstructs the signed value from the two shares of a
// mediator response.
func combine(shares []*big.Int, nBits int) *big.Int {
	return field.Correct(engine.Combine(shares[0], shares[1], nBits), nBits)
}
