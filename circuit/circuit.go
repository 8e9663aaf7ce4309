//
// Copyright (c) 2019-2025 Markku Rossi
//
// All rights reserved.
//

// Package circuit implements boolean circuits for the bundled
// plaintext reference engine.
package circuit

import (
	"fmt"
)

// Operation specifies gate function.
type Operation byte

// Gate functions.
const (
	XOR Operation = iota
	XNOR
	AND
	OR
	INV
)

// Stats holds statistics about circuit operations.
type Stats [INV + 1]int

func (op Operation) String() string {
	switch op {
	case XOR:
		return "XOR"
	case XNOR:
		return "XNOR"
	case AND:
		return "AND"
	case OR:
		return "OR"
	case INV:
		return "INV"
	default:
		return fmt.Sprintf("{Operation %d}", op)
	}
}

// IO specifies circuit input and output argument sizes in bits.
type IO []int

// Size computes the size of the circuit input and output arguments in
// bits.
func (io IO) Size() int {
	var sum int
	for _, a := range io {
		sum += a
	}
	return sum
}

// Max returns the size of the largest argument.
func (io IO) Max() int {
	var max int
	for _, a := range io {
		if a > max {
			max = a
		}
	}
	return max
}

// Equal tests if the argument sizes are equal.
func (io IO) Equal(o IO) bool {
	if len(io) != len(o) {
		return false
	}
	for idx, a := range io {
		if a != o[idx] {
			return false
		}
	}
	return true
}

func (io IO) String() string {
	var str = ""
	for i, a := range io {
		if i > 0 {
			str += ", "
		}
		str += fmt.Sprintf("u%d", a)
	}
	return str
}

// Circuit specifies a boolean circuit.
type Circuit struct {
	NumGates int
	NumWires int
	Inputs   IO
	Outputs  IO
	Gates    []Gate
	Stats    Stats
}

func (c *Circuit) String() string {
	var stats string

	for k := XOR; k <= INV; k++ {
		v := c.Stats[k]
		if len(stats) > 0 {
			stats += " "
		}
		stats += fmt.Sprintf("%s=%d", k, v)
	}
	return fmt.Sprintf("#gates=%d (%s) #w=%d in=(%s) out=(%s)",
		c.NumGates, stats, c.NumWires, c.Inputs, c.Outputs)
}

// Gate specifies a boolean gate.
type Gate struct {
	Input0 Wire
	Input1 Wire
	Output Wire
	Op     Operation
}

// Wire specifies a wire ID.
type Wire uint32

// Identity creates a circuit that returns its bits wide input
// unmodified. Each output bit is computed with two inverters.
func Identity(bits int) *Circuit {
	c := &Circuit{
		NumGates: 2 * bits,
		NumWires: 3 * bits,
		Inputs:   IO{bits},
		Outputs:  IO{bits},
	}
	for i := 0; i < bits; i++ {
		c.Gates = append(c.Gates, Gate{
			Input0: Wire(i),
			Output: Wire(bits + i),
			Op:     INV,
		})
	}
	for i := 0; i < bits; i++ {
		c.Gates = append(c.Gates, Gate{
			Input0: Wire(bits + i),
			Output: Wire(2*bits + i),
			Op:     INV,
		})
	}
	c.Stats[INV] = 2 * bits
	return c
}
