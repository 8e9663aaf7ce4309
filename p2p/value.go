//
// Copyright (c) 2025 Markku Rossi
//
// All rights reserved.
//

package p2p

import (
	"errors"
	"fmt"
	"io"
	"math/big"
)

// MaxValueSize is the maximum magnitude size of a secure value in
// bytes.
const MaxValueSize = 4096

// Sign bytes of the secure value encoding.
const (
	SignPositive byte = 0
	SignNegative byte = 1
)

// ErrMalformed is returned when the peer sends an invalid value.
var ErrMalformed = errors.New("malformed value")

// SendValue sends an arbitrary-precision signed integer. The value is
// encoded as a sign byte, followed by the uint32 length and the
// big-endian bytes of its magnitude.
func (c *Conn) SendValue(val *big.Int) error {
	magnitude := new(big.Int).Abs(val).Bytes()
	if len(magnitude) > MaxValueSize {
		return fmt.Errorf("value too large: %d bytes", len(magnitude))
	}
	sign := SignPositive
	if val.Sign() < 0 {
		sign = SignNegative
	}
	if err := c.SendByte(sign); err != nil {
		return err
	}
	return c.SendData(magnitude)
}

// SendValues sends the values in order and flushes the connection.
func (c *Conn) SendValues(values []*big.Int) error {
	for _, v := range values {
		if err := c.SendValue(v); err != nil {
			return err
		}
	}
	return c.Flush()
}

// ReceiveValue receives an arbitrary-precision signed integer. The
// function returns io.EOF if the connection ended cleanly before the
// value, and an error wrapping ErrMalformed if the value is invalid
// or truncated.
func (c *Conn) ReceiveValue() (*big.Int, error) {
	sign, err := c.ReceiveByte()
	if err != nil {
		return nil, err
	}
	if sign != SignPositive && sign != SignNegative {
		return nil, fmt.Errorf("%w: invalid sign 0x%02x", ErrMalformed, sign)
	}
	length, err := c.ReceiveUint32()
	if err != nil {
		return nil, truncated(err)
	}
	if length < 0 || length > MaxValueSize {
		return nil, fmt.Errorf("%w: magnitude of %d bytes", ErrMalformed,
			uint32(length))
	}
	data, err := c.receiveBytes(length)
	if err != nil {
		return nil, truncated(err)
	}
	result := new(big.Int).SetBytes(data)
	if sign == SignNegative {
		if result.Sign() == 0 {
			return nil, fmt.Errorf("%w: negative zero", ErrMalformed)
		}
		result.Neg(result)
	}
	return result, nil
}

// ReceiveValues receives count values.
func (c *Conn) ReceiveValues(count int) ([]*big.Int, error) {
	result := make([]*big.Int, 0, count)
	for i := 0; i < count; i++ {
		v, err := c.ReceiveValue()
		if err != nil {
			if i > 0 {
				err = truncated(err)
			}
			return nil, err
		}
		result = append(result, v)
	}
	return result, nil
}

func truncated(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %v", ErrMalformed, io.ErrUnexpectedEOF)
	}
	return err
}
