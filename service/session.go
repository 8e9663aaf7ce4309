//
// Copyright (c) 2025 Markku Rossi
//
// All rights reserved.
//

// Package service implements the input/output service: the listener
// that accepts input connections, the sessions that feed each input
// into the prepared circuit engine, and the query client.
package service

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/hiplab/gcservice/circuit"
	"github.com/hiplab/gcservice/engine"
	"github.com/hiplab/gcservice/env"
	"github.com/hiplab/gcservice/field"
	"github.com/hiplab/gcservice/p2p"
	"go.uber.org/zap"
)

// State specifies the session lifecycle state.
type State int

// Session states.
const (
	Listening State = iota
	Accepted
	AwaitingInput
	Evaluating
	Responding
	Closed
)

func (s State) String() string {
	switch s {
	case Listening:
		return "LISTENING"
	case Accepted:
		return "ACCEPTED"
	case AwaitingInput:
		return "AWAITING_INPUT"
	case Evaluating:
		return "EVALUATING"
	case Responding:
		return "RESPONDING"
	case Closed:
		return "CLOSED"
	default:
		return fmt.Sprintf("{State %d}", int(s))
	}
}

// deadliner is implemented by connections supporting read deadlines.
type deadliner interface {
	SetReadDeadline(t time.Time) error
}

// Session implements one accepted input connection.
type Session struct {
	ID        uuid.UUID
	Requests  int
	config    *env.Config
	evaluator *engine.Evaluator
	corrector *field.Corrector
	nc        io.ReadWriteCloser
	conn      *p2p.Conn
	log       *zap.Logger
	state     State

	started   time.Time
	readTime  time.Duration
	evalTime  time.Duration
	writeTime time.Duration
}

// NewSession creates a session for the connection nc. If corrector is
// not nil, the evaluation results are field corrected before they are
// written to the connection.
func NewSession(config *env.Config, evaluator *engine.Evaluator,
	corrector *field.Corrector, nc io.ReadWriteCloser) *Session {

	id := uuid.New()
	return &Session{
		ID:        id,
		config:    config,
		evaluator: evaluator,
		corrector: corrector,
		nc:        nc,
		conn:      p2p.NewConn(nc),
		log: config.GetLogger().Named("session").
			With(zap.String("session", id.String())),
		state:   Accepted,
		started: time.Now(),
	}
}

// State returns the session state.
func (s *Session) State() State {
	return s.state
}

func (s *Session) setState(state State) {
	s.state = state
	s.log.Debug("state", zap.Stringer("state", state))
}

// ServeOne runs one request/response cycle: it reads one input
// value, evaluates the circuit and writes the results. All errors are
// returned as *Error.
func (s *Session) ServeOne(ctx context.Context) error {
	s.setState(AwaitingInput)

	dl, ok := s.nc.(deadliner)
	timeout := ok && s.config.ReadTimeout > 0
	if timeout {
		err := dl.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
		if err != nil {
			return &Error{
				Kind: Malformed,
				Err:  fmt.Errorf("set read deadline: %w", err),
			}
		}
	}
	start := time.Now()
	input, err := s.conn.ReceiveValue()
	if err != nil {
		return readError(err)
	}
	if timeout {
		if err := dl.SetReadDeadline(time.Time{}); err != nil {
			return &Error{
				Kind: Malformed,
				Err:  fmt.Errorf("clear read deadline: %w", err),
			}
		}
	}
	s.readTime += time.Since(start)
	s.log.Debug("input", zap.Stringer("value", input))

	s.setState(Evaluating)
	start = time.Now()
	result, err := s.evaluator.Evaluate(ctx, input)
	if err != nil {
		return &Error{Kind: Engine, Err: err}
	}
	s.evalTime += time.Since(start)

	if s.corrector != nil {
		result = s.corrector.CorrectAll(result)
	}

	s.setState(Responding)
	start = time.Now()
	if err := s.conn.SendValues(result); err != nil {
		return &Error{Kind: Write, Err: err}
	}
	s.writeTime += time.Since(start)
	s.Requests++

	s.log.Debug("output", zap.Stringers("values", result))

	return nil
}

// Serve runs request/response cycles until the input ends or a
// request fails. It returns the terminating *Error; an error of kind
// EndOfInput is the graceful end of the session.
func (s *Session) Serve(ctx context.Context) error {
	for {
		if err := s.ServeOne(ctx); err != nil {
			return err
		}
	}
}

// Close closes the session and its connection.
func (s *Session) Close() error {
	if s.state == Closed {
		return nil
	}
	err := s.conn.Close()
	s.setState(Closed)

	s.log.Info("session closed", zap.Int("requests", s.Requests))
	if s.config.Verbose {
		s.Timing().Print(os.Stdout, &s.conn.Stats)
	}
	return err
}

// Timing returns the session timing profile from the session start
// until now.
func (s *Session) Timing() *circuit.Timing {
	timing := &circuit.Timing{
		Start: s.started,
	}
	sample := timing.Sample(fmt.Sprintf("Session (%d requests)", s.Requests),
		nil)
	sample.AbsSubSample("Read", s.readTime)
	sample.AbsSubSample("Eval", s.evalTime)
	sample.AbsSubSample("Write", s.writeTime)
	return timing
}
