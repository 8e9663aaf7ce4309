//
// Copyright (c) 2025 Markku Rossi
//
// All rights reserved.
//

package engine

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"os"

	"github.com/hiplab/gcservice/circuit"
	"github.com/hiplab/gcservice/env"
	"github.com/hiplab/gcservice/field"
	"github.com/hiplab/gcservice/p2p"
	"go.uber.org/zap"
)

var (
	_ Engine = &Circuit{}
)

// Circuit implements a plaintext reference engine for a boolean
// circuit. The service input is the circuit's first input argument;
// the remaining arguments are zero. It does not hide the inputs and
// exists for development and testing of the service.
type Circuit struct {
	config *env.Config
	circ   *circuit.Circuit
	peer   Peer
	log    *zap.Logger

	prepared bool
	inputs   []*big.Int
}

// NewCircuit creates a circuit engine. If peer is not nil, the
// offline phase verifies the parameters with the peer party.
func NewCircuit(config *env.Config, circ *circuit.Circuit, peer Peer) (
	*Circuit, error) {

	if len(circ.Inputs) == 0 || len(circ.Outputs) == 0 {
		return nil, fmt.Errorf("circuit without inputs or outputs: %v", circ)
	}
	if circ.Inputs.Max() > config.NBits {
		return nil, fmt.Errorf("circuit input of %d bits exceeds field width %d",
			circ.Inputs.Max(), config.NBits)
	}
	if circ.Outputs.Max() > config.NBits {
		return nil,
			fmt.Errorf("circuit output of %d bits exceeds field width %d",
				circ.Outputs.Max(), config.NBits)
	}
	return &Circuit{
		config: config,
		circ:   circ,
		peer:   peer,
		log:    config.GetLogger().Named("circuit"),
	}, nil
}

// Arity implements Engine.Arity.
func (c *Circuit) Arity() int {
	return len(c.circ.Outputs)
}

// Offline implements Engine.Offline.
func (c *Circuit) Offline(ctx context.Context) error {
	timing := circuit.NewTiming()
	var stats *p2p.IOStats

	if c.peer != nil {
		conn, err := c.peer(ctx)
		if err != nil {
			return err
		}
		err = Handshake(conn, ParamsFor(c.config, c.circ))
		s := conn.Stats.Copy()
		stats = &s
		if cerr := conn.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return fmt.Errorf("engine handshake: %w", err)
		}
		timing.Sample("Handshake", nil)
		c.log.Debug("engine handshake complete")
	}

	c.inputs = make([]*big.Int, len(c.circ.Inputs))
	for idx := range c.inputs {
		c.inputs[idx] = new(big.Int)
	}

	for i := 1; i <= c.config.Iterations; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		max := new(big.Int).Lsh(big.NewInt(1), uint(c.circ.Inputs[0]))
		input, err := rand.Int(c.config.GetRandom(), max)
		if err != nil {
			return err
		}
		if _, err := c.compute(input); err != nil {
			return fmt.Errorf("offline iteration %d: %w", i, err)
		}
		timing.Sample(circuit.IterationLabel("Offline", i), nil)
	}
	c.prepared = true

	if c.config.Verbose {
		timing.Print(os.Stdout, stats)
	}
	return nil
}

// Online implements Engine.Online.
func (c *Circuit) Online(ctx context.Context, input *big.Int) (
	[]*big.Int, error) {

	if !c.prepared {
		return nil, ErrNotPrepared
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.compute(input)
}

func (c *Circuit) compute(input *big.Int) ([]*big.Int, error) {
	c.inputs[0] = input
	result, err := c.circ.Compute(c.inputs)
	if err != nil {
		return nil, err
	}
	for idx, r := range result {
		result[idx] = field.Reduce(r, c.config.NBits)
	}
	return result, nil
}
