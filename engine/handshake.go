//
// Copyright (c) 2025 Markku Rossi
//
// All rights reserved.
//

package engine

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/hiplab/gcservice/circuit"
	"github.com/hiplab/gcservice/env"
	"github.com/hiplab/gcservice/p2p"
)

// HandshakeMagic identifies the engine parameter handshake.
const HandshakeMagic = 0x67637331 // gcs1

const (
	dialRetryDelay = 100 * time.Millisecond
	maxArgs        = 0xffff
)

// Peer opens the engine channel to the other party.
type Peer func(ctx context.Context) (*p2p.Conn, error)

// Params define the offline parameters both parties must agree on.
type Params struct {
	Role       env.Role
	NBits      int
	Iterations int
	Inputs     circuit.IO
	Outputs    circuit.IO
}

// ParamsFor returns the handshake parameters of the configuration and
// circuit.
func ParamsFor(config *env.Config, circ *circuit.Circuit) Params {
	return Params{
		Role:       config.Role,
		NBits:      config.NBits,
		Iterations: config.Iterations,
		Inputs:     circ.Inputs,
		Outputs:    circ.Outputs,
	}
}

// ErrParamMismatch is returned when the parties' offline parameters
// differ.
var ErrParamMismatch = errors.New("engine parameter mismatch")

// Handshake exchanges the offline parameters with the peer and
// verifies that both parties use the same field width, iteration
// count, and circuit argument widths, and that they play different
// roles.
func Handshake(conn *p2p.Conn, params Params) error {
	if err := conn.SendUint32(HandshakeMagic); err != nil {
		return err
	}
	if err := conn.SendByte(byte(params.Role)); err != nil {
		return err
	}
	if err := conn.SendUint32(params.NBits); err != nil {
		return err
	}
	if err := conn.SendUint32(params.Iterations); err != nil {
		return err
	}
	if err := sendIO(conn, params.Inputs); err != nil {
		return err
	}
	if err := sendIO(conn, params.Outputs); err != nil {
		return err
	}
	if err := conn.Flush(); err != nil {
		return err
	}

	magic, err := conn.ReceiveUint32()
	if err != nil {
		return err
	}
	if magic != HandshakeMagic {
		return fmt.Errorf("invalid handshake magic 0x%08x", magic)
	}
	role, err := conn.ReceiveByte()
	if err != nil {
		return err
	}
	nBits, err := conn.ReceiveUint32()
	if err != nil {
		return err
	}
	iterations, err := conn.ReceiveUint32()
	if err != nil {
		return err
	}
	inputs, err := receiveIO(conn)
	if err != nil {
		return err
	}
	outputs, err := receiveIO(conn)
	if err != nil {
		return err
	}

	if env.Role(role) == params.Role {
		return fmt.Errorf("%w: both parties in %s role", ErrParamMismatch,
			params.Role)
	}
	if nBits != params.NBits {
		return fmt.Errorf("%w: field width %d, peer %d", ErrParamMismatch,
			params.NBits, nBits)
	}
	if iterations != params.Iterations {
		return fmt.Errorf("%w: iterations %d, peer %d", ErrParamMismatch,
			params.Iterations, iterations)
	}
	if !inputs.Equal(params.Inputs) {
		return fmt.Errorf("%w: circuit inputs (%s), peer (%s)",
			ErrParamMismatch, params.Inputs, inputs)
	}
	if !outputs.Equal(params.Outputs) {
		return fmt.Errorf("%w: circuit outputs (%s), peer (%s)",
			ErrParamMismatch, params.Outputs, outputs)
	}
	return nil
}

func sendIO(conn *p2p.Conn, io circuit.IO) error {
	if len(io) > maxArgs {
		return fmt.Errorf("too many circuit arguments: %d", len(io))
	}
	if err := conn.SendUint16(len(io)); err != nil {
		return err
	}
	for _, size := range io {
		if err := conn.SendUint32(size); err != nil {
			return err
		}
	}
	return nil
}

func receiveIO(conn *p2p.Conn) (circuit.IO, error) {
	count, err := conn.ReceiveUint16()
	if err != nil {
		return nil, err
	}
	var result circuit.IO
	for i := 0; i < count; i++ {
		size, err := conn.ReceiveUint32()
		if err != nil {
			return nil, err
		}
		result = append(result, size)
	}
	return result, nil
}

// PeerFor returns the engine peer for the configuration: the server
// role accepts one connection on the engine port and the client role
// dials the remote host.
func PeerFor(config *env.Config) Peer {
	if config.Role == env.Client {
		return DialPeer(config.EngineAddr())
	}
	return ListenPeer(config.EngineAddr())
}

// DialPeer returns a peer that dials addr. Failed dials are retried
// until the context is done.
func DialPeer(addr string) Peer {
	return func(ctx context.Context) (*p2p.Conn, error) {
		var d net.Dialer
		for {
			nc, err := d.DialContext(ctx, "tcp", addr)
			if err == nil {
				return p2p.NewConn(nc), nil
			}
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("dial %s: %w", addr, err)
			case <-time.After(dialRetryDelay):
			}
		}
	}
}

// ListenPeer returns a peer that listens at addr and accepts one
// connection.
func ListenPeer(addr string) Peer {
	return func(ctx context.Context) (*p2p.Conn, error) {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return nil, err
		}
		return AcceptPeer(ln)(ctx)
	}
}

// AcceptPeer returns a peer that accepts one connection from the
// listener and closes it.
func AcceptPeer(ln net.Listener) Peer {
	return func(ctx context.Context) (*p2p.Conn, error) {
		done := make(chan struct{})
		defer close(done)
		go func() {
			select {
			case <-ctx.Done():
				ln.Close()
			case <-done:
			}
		}()

		nc, err := ln.Accept()
		ln.Close()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, err
		}
		return p2p.NewConn(nc), nil
	}
}
