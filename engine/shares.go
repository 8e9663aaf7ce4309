//
// Copyright (c) 2025 Markku Rossi
//
// All rights reserved.
//

package engine

import (
	"context"
	"fmt"
	"io"
	"math/big"

	"github.com/hiplab/gcservice/env"
	"github.com/hiplab/gcservice/field"
	"golang.org/x/crypto/chacha20"
)

var (
	_ Engine = &Shares{}
)

// Shares splits the single output of an engine into two additive
// shares modulo 2^NBits. The first share is the masked value and the
// second share is the mask.
type Shares struct {
	config *env.Config
	engine Engine
	prg    *chacha20.Cipher
	buf    []byte
}

// NewShares creates a share splitter for the engine. The engine must
// return exactly one value.
func NewShares(config *env.Config, e Engine) (*Shares, error) {
	if e.Arity() != 1 {
		return nil, fmt.Errorf("share splitting requires arity 1, got %d",
			e.Arity())
	}
	return &Shares{
		config: config,
		engine: e,
		buf:    make([]byte, (config.NBits+7)/8),
	}, nil
}

// Arity implements Engine.Arity.
func (s *Shares) Arity() int {
	return 2
}

// Offline implements Engine.Offline. It runs the wrapped engine's
// offline phase and keys the mask generator.
func (s *Shares) Offline(ctx context.Context) error {
	if err := s.engine.Offline(ctx); err != nil {
		return err
	}
	var key [chacha20.KeySize]byte
	if _, err := io.ReadFull(s.config.GetRandom(), key[:]); err != nil {
		return err
	}
	var nonce [chacha20.NonceSize]byte
	prg, err := chacha20.NewUnauthenticatedCipher(key[:], nonce[:])
	if err != nil {
		return err
	}
	s.prg = prg
	return nil
}

// Online implements Engine.Online.
func (s *Shares) Online(ctx context.Context, input *big.Int) (
	[]*big.Int, error) {

	if s.prg == nil {
		return nil, ErrNotPrepared
	}
	result, err := s.engine.Online(ctx, input)
	if err != nil {
		return nil, err
	}
	if len(result) != 1 {
		return nil, fmt.Errorf("got %d results, expected 1", len(result))
	}
	mask := s.mask()
	share := new(big.Int).Sub(result[0], mask)

	return []*big.Int{
		field.Reduce(share, s.config.NBits),
		mask,
	}, nil
}

func (s *Shares) mask() *big.Int {
	for i := range s.buf {
		s.buf[i] = 0
	}
	s.prg.XORKeyStream(s.buf, s.buf)
	return field.Reduce(new(big.Int).SetBytes(s.buf), s.config.NBits)
}

// Combine reconstructs the value from its two shares.
func Combine(share0, share1 *big.Int, nBits int) *big.Int {
	return field.Reduce(new(big.Int).Add(share0, share1), nBits)
}
