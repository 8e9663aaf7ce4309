//
// Copyright (c) 2025 Markku Rossi
//
// All rights reserved.
//

package field

import (
	"math/big"
	"testing"
)

func TestCorrectExamples(t *testing.T) {
	tests := []struct {
		bits   int
		raw    int64
		result int64
	}{
		{8, 200, -56},
		{8, 100, 100},
		{8, 0, 0},
		{8, 127, 127},
		{8, 128, -128},
		{8, 255, -1},
		{1, 1, -1},
		{16, 0xffff, -1},
		{64, 1, 1},
	}
	for _, test := range tests {
		got := Correct(big.NewInt(test.raw), test.bits)
		if got.Cmp(big.NewInt(test.result)) != 0 {
			t.Errorf("Correct(%d, %d): got %v, expected %v",
				test.raw, test.bits, got, test.result)
		}
	}
}

func TestCorrectExhaustive(t *testing.T) {
	for bits := 1; bits <= 10; bits++ {
		mod := new(big.Int).Lsh(big.NewInt(1), uint(bits))
		half := new(big.Int).Rsh(mod, 1)
		low := new(big.Int).Neg(half)

		for i := int64(0); i < mod.Int64(); i++ {
			r := big.NewInt(i)
			got := Correct(r, bits)

			if got.Cmp(low) < 0 || got.Cmp(half) >= 0 {
				t.Fatalf("bits=%d r=%d: %v out of signed range", bits, i, got)
			}
			back := new(big.Int).Mod(got, mod)
			if back.Cmp(r) != 0 {
				t.Fatalf("bits=%d r=%d: %v not congruent", bits, i, got)
			}
			expected := new(big.Int).Set(r)
			if r.Bit(bits-1) == 1 {
				expected.Sub(expected, mod)
			}
			if got.Cmp(expected) != 0 {
				t.Fatalf("bits=%d r=%d: got %v, expected %v",
					bits, i, got, expected)
			}
		}
	}
}

func TestCorrectWide(t *testing.T) {
	bits := 128
	mod := new(big.Int).Lsh(big.NewInt(1), uint(bits))

	minusOne := new(big.Int).Sub(mod, big.NewInt(1))
	if got := Correct(minusOne, bits); got.Cmp(big.NewInt(-1)) != 0 {
		t.Errorf("Correct(2^128-1): got %v", got)
	}
	top := new(big.Int).Rsh(mod, 1)
	if got := Correct(top, bits); got.Cmp(new(big.Int).Neg(top)) != 0 {
		t.Errorf("Correct(2^127): got %v", got)
	}
}

func TestCorrectDoesNotModify(t *testing.T) {
	c, err := NewCorrector(8)
	if err != nil {
		t.Fatal(err)
	}
	values := []*big.Int{big.NewInt(200), big.NewInt(3)}
	result := c.CorrectAll(values)
	if values[0].Int64() != 200 {
		t.Errorf("input modified: %v", values[0])
	}
	if result[0].Int64() != -56 || result[1].Int64() != 3 {
		t.Errorf("CorrectAll: got %v", result)
	}
	if _, err := NewCorrector(0); err == nil {
		t.Errorf("NewCorrector(0) succeeded")
	}
}
