//
// Copyright (c) 2025 Markku Rossi
//
// All rights reserved.
//

package service

import (
	"errors"
	"fmt"
	"io"
	"net"
)

// ErrorKind classifies session errors.
type ErrorKind int

// Session error kinds.
const (
	// EndOfInput is the graceful end of the input stream.
	EndOfInput ErrorKind = iota
	// Malformed is an invalid or truncated input value.
	Malformed
	// Timeout is an expired read deadline.
	Timeout
	// Engine is a failed circuit evaluation.
	Engine
	// Write is a failure to write the response.
	Write
)

func (k ErrorKind) String() string {
	switch k {
	case EndOfInput:
		return "end of input"
	case Malformed:
		return "malformed input"
	case Timeout:
		return "read timeout"
	case Engine:
		return "engine failure"
	case Write:
		return "write failure"
	default:
		return fmt.Sprintf("{ErrorKind %d}", int(k))
	}
}

// Error is a session error. All session errors are isolated to the
// session's connection; none of them affects the listener or the
// prepared circuit material.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsEndOfInput tests if err is a graceful end of the input stream.
func IsEndOfInput(err error) bool {
	var serr *Error
	return errors.As(err, &serr) && serr.Kind == EndOfInput
}

// readError classifies an error from reading the input value.
func readError(err error) *Error {
	var netErr net.Error

	switch {
	case err == io.EOF:
		return &Error{Kind: EndOfInput, Err: err}
	case errors.As(err, &netErr) && netErr.Timeout():
		return &Error{Kind: Timeout, Err: err}
	default:
		// Includes p2p.ErrMalformed and connection failures.
		return &Error{Kind: Malformed, Err: err}
	}
}
