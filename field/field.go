//
// Copyright (c) 2025 Markku Rossi
//
// All rights reserved.
//

// Package field implements the two's complement correction of
// circuit outputs computed modulo 2^nBits.
package field

import (
	"fmt"
	"math/big"
)

// Correct maps the unsigned value r in [0, 2^nBits) to the unique
// integer in [-2^(nBits-1), 2^(nBits-1)) congruent to r modulo
// 2^nBits. Values outside the field are reduced first.
func Correct(r *big.Int, nBits int) *big.Int {
	result := Reduce(r, nBits)
	if result.Bit(nBits-1) == 1 {
		tmp := new(big.Int)
		tmp.SetBit(tmp, nBits, 1)
		result.Sub(result, tmp)
	}
	return result
}

// Reduce returns the non-negative representative of v modulo
// 2^nBits.
func Reduce(v *big.Int, nBits int) *big.Int {
	mod := new(big.Int)
	mod.SetBit(mod, nBits, 1)
	return new(big.Int).Mod(v, mod)
}

// Corrector corrects circuit outputs with a fixed field width.
type Corrector struct {
	nBits int
}

// NewCorrector creates a corrector for the field width.
func NewCorrector(nBits int) (*Corrector, error) {
	if nBits < 1 {
		return nil, fmt.Errorf("invalid field width: %d", nBits)
	}
	return &Corrector{
		nBits: nBits,
	}, nil
}

// Bits returns the corrector's field width.
func (c *Corrector) Bits() int {
	return c.nBits
}

// Correct corrects the value r.
func (c *Corrector) Correct(r *big.Int) *big.Int {
	return Correct(r, c.nBits)
}

// CorrectAll corrects all values. The argument slice is not modified.
func (c *Corrector) CorrectAll(values []*big.Int) []*big.Int {
	result := make([]*big.Int, len(values))
	for idx, v := range values {
		result[idx] = Correct(v, c.nBits)
	}
	return result
}
