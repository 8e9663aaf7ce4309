//
// Copyright (c) 2025 Markku Rossi
//
// All rights reserved.
//

// Package engine adapts the garbled circuit engine to the
// offline/online lifecycle of the input/output service.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/hiplab/gcservice/circuit"
	"github.com/hiplab/gcservice/env"
	"go.uber.org/zap"
)

// Engine defines the circuit engine. Offline prepares the circuit
// material once before any input is known. Online evaluates the
// circuit with one input using the prepared material and returns
// exactly Arity values. Online is not reentrant.
type Engine interface {
	// Offline runs the offline phase.
	Offline(ctx context.Context) error

	// Online evaluates the circuit with the input.
	Online(ctx context.Context, input *big.Int) ([]*big.Int, error)

	// Arity returns the number of values Online returns.
	Arity() int
}

// ErrNotPrepared is returned if an online evaluation is attempted
// before the offline phase has completed.
var ErrNotPrepared = errors.New("online evaluation before offline preparation")

// EvalError reports a failed online evaluation. The prepared circuit
// material remains usable for subsequent evaluations.
type EvalError struct {
	Err error
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("circuit evaluation failed: %v", e.Err)
}

func (e *EvalError) Unwrap() error {
	return e.Err
}

// Evaluator runs the offline phase of an engine exactly once and
// serializes the online evaluations against the prepared material.
type Evaluator struct {
	config *env.Config
	engine Engine
	log    *zap.Logger

	prepare  sync.Once
	prepErr  error
	prepared bool

	m      sync.Mutex
	Timing *circuit.Timing
}

// NewEvaluator creates a new evaluator for the engine.
func NewEvaluator(config *env.Config, e Engine) (*Evaluator, error) {
	if e.Arity() < 1 {
		return nil, fmt.Errorf("invalid engine arity %d", e.Arity())
	}
	return &Evaluator{
		config: config,
		engine: e,
		log:    config.GetLogger().Named("engine"),
	}, nil
}

// Prepare runs the offline phase. It blocks until the phase completes
// and may be called multiple times; only the first call runs the
// engine's offline phase and all calls return its result.
func (ev *Evaluator) Prepare(ctx context.Context) error {
	ev.prepare.Do(func() {
		ev.m.Lock()
		defer ev.m.Unlock()

		ev.Timing = circuit.NewTiming()
		ev.log.Info("offline preparation",
			zap.Int("bits", ev.config.NBits),
			zap.Int("iterations", ev.config.Iterations))

		err := ev.engine.Offline(ctx)
		ev.Timing.Sample("Offline", nil)
		if err != nil {
			ev.prepErr = fmt.Errorf("offline preparation failed: %w", err)
			return
		}
		ev.prepared = true
		ev.log.Info("offline preparation complete",
			zap.Duration("elapsed", ev.Timing.Total()))
	})
	return ev.prepErr
}

// Prepared tests if the offline phase has completed successfully.
func (ev *Evaluator) Prepared() bool {
	ev.m.Lock()
	defer ev.m.Unlock()
	return ev.prepared
}

// Arity returns the number of values Evaluate returns.
func (ev *Evaluator) Arity() int {
	return ev.engine.Arity()
}

// Evaluate evaluates the circuit with the input. It returns
// ErrNotPrepared if the offline phase has not completed and an
// *EvalError if the engine fails or returns an invalid number of
// values. Concurrent calls are serialized.
func (ev *Evaluator) Evaluate(ctx context.Context, input *big.Int) (
	[]*big.Int, error) {

	ev.m.Lock()
	defer ev.m.Unlock()

	if !ev.prepared {
		return nil, ErrNotPrepared
	}
	if ev.config.EvalTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ev.config.EvalTimeout)
		defer cancel()
	}

	start := time.Now()
	result, err := ev.engine.Online(ctx, input)
	if err != nil {
		return nil, &EvalError{
			Err: err,
		}
	}
	if len(result) != ev.engine.Arity() {
		return nil, &EvalError{
			Err: fmt.Errorf("got %d results, expected %d",
				len(result), ev.engine.Arity()),
		}
	}
	ev.log.Debug("online evaluation",
		zap.Duration("elapsed", time.Since(start)))

	return result, nil
}
