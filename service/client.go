//
// Copyright (c) 2025 Markku Rossi
//
// All rights reserved.
//

package service

import (
	"context"
	"fmt"
	"io"
	"math/big"
	"net"

	"github.com/hiplab/gcservice/p2p"
)

// Client queries a remote input/output service.
type Client struct {
	conn  *p2p.Conn
	arity int
}

// Dial connects to the service at addr. The arity specifies the
// number of values the service returns for each query.
func Dial(ctx context.Context, addr string, arity int) (*Client, error) {
	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return NewClient(nc, arity)
}

// NewClient creates a client for the connection rw.
func NewClient(rw io.ReadWriter, arity int) (*Client, error) {
	if arity < 1 {
		return nil, fmt.Errorf("invalid arity %d", arity)
	}
	return &Client{
		conn:  p2p.NewConn(rw),
		arity: arity,
	}, nil
}

// Query sends the value v to the service and returns the service's
// response values. A connection closed before the full response is an
// error. Failed queries are not retried.
func (c *Client) Query(v *big.Int) ([]*big.Int, error) {
	if err := c.conn.SendValue(v); err != nil {
		return nil, err
	}
	if err := c.conn.Flush(); err != nil {
		return nil, err
	}
	result, err := c.conn.ReceiveValues(c.arity)
	if err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("query %v: %w", v, err)
	}
	return result, nil
}

// Stats returns the client's I/O statistics.
func (c *Client) Stats() p2p.IOStats {
	return c.conn.Stats.Copy()
}

// Close closes the client connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// QueryOnce connects to the service at addr, runs one query, and
// closes the connection.
func QueryOnce(ctx context.Context, addr string, arity int, v *big.Int) (
	[]*big.Int, error) {

	client, err := Dial(ctx, addr, arity)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	return client.Query(v)
}
