//
// parser.go
//
// Copyright (c) 2019-2025 Markku Rossi
//
// All rights reserved.
//

package circuit

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
)

var reParts = regexp.MustCompilePOSIX("[[:space:]]+")

// ParseFile parses the Bristol fashion circuit file.
func ParseFile(name string) (*Circuit, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	c, err := ParseBristol(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return c, nil
}

// ParseBristol parses a circuit in the Bristol fashion format:
//
//	numGates numWires
//	numInputs size...
//	numOutputs size...
//
//	2 1 in0 in1 out OP
//	1 1 in out INV
//
// Output wires are the last wires of the circuit.
func ParseBristol(in io.Reader) (*Circuit, error) {
	r := bufio.NewReader(in)

	// NumGates NumWires
	line, err := readLine(r)
	if err != nil {
		return nil, err
	}
	if len(line) != 2 {
		return nil, errors.New("invalid 1st line")
	}
	numGates, err := strconv.Atoi(line[0])
	if err != nil {
		return nil, err
	}
	numWires, err := strconv.Atoi(line[1])
	if err != nil {
		return nil, err
	}
	if numGates < 0 || numWires < 0 {
		return nil, fmt.Errorf("invalid circuit size: %d %d",
			numGates, numWires)
	}

	inputs, err := parseIO(r, "inputs")
	if err != nil {
		return nil, err
	}
	outputs, err := parseIO(r, "outputs")
	if err != nil {
		return nil, err
	}
	if inputs.Size()+outputs.Size() > numWires {
		return nil, fmt.Errorf("too few wires: %d < %d", numWires,
			inputs.Size()+outputs.Size())
	}

	c := &Circuit{
		NumGates: numGates,
		NumWires: numWires,
		Inputs:   inputs,
		Outputs:  outputs,
		Gates:    make([]Gate, 0, numGates),
	}

	for gate := 0; ; gate++ {
		line, err = readLine(r)
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}
		if gate >= numGates {
			return nil, fmt.Errorf("too many gates: expected %d", numGates)
		}
		g, err := parseGate(line, numWires)
		if err != nil {
			return nil, fmt.Errorf("gate %d: %w", gate, err)
		}
		c.Gates = append(c.Gates, g)
		c.Stats[g.Op]++
	}
	if len(c.Gates) != numGates {
		return nil, fmt.Errorf("got %d gates, expected %d",
			len(c.Gates), numGates)
	}

	return c, nil
}

func parseIO(r *bufio.Reader, name string) (IO, error) {
	line, err := readLine(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	count, err := strconv.Atoi(line[0])
	if err != nil {
		return nil, err
	}
	if count < 1 || len(line) != count+1 {
		return nil, fmt.Errorf("invalid %s: %v", name, line)
	}
	var result IO
	for i := 0; i < count; i++ {
		size, err := strconv.Atoi(line[1+i])
		if err != nil {
			return nil, err
		}
		if size < 1 {
			return nil, fmt.Errorf("invalid %s size: %d", name, size)
		}
		result = append(result, size)
	}
	return result, nil
}

func parseGate(line []string, numWires int) (Gate, error) {
	var g Gate

	if len(line) < 3 {
		return g, fmt.Errorf("invalid gate: %v", line)
	}
	n1, err := strconv.Atoi(line[0])
	if err != nil {
		return g, err
	}
	n2, err := strconv.Atoi(line[1])
	if err != nil {
		return g, err
	}
	if n1 < 1 || n1 > 2 || n2 != 1 || 2+n1+n2+1 != len(line) {
		return g, fmt.Errorf("invalid gate: %v", line)
	}

	var wires []Wire
	for i := 0; i < n1+n2; i++ {
		v, err := strconv.Atoi(line[2+i])
		if err != nil {
			return g, err
		}
		if v < 0 || v >= numWires {
			return g, fmt.Errorf("invalid wire %d", v)
		}
		wires = append(wires, Wire(v))
	}

	switch line[len(line)-1] {
	case "XOR":
		g.Op = XOR
	case "XNOR":
		g.Op = XNOR
	case "AND":
		g.Op = AND
	case "OR":
		g.Op = OR
	case "INV":
		g.Op = INV
	default:
		return g, fmt.Errorf("invalid operation '%s'", line[len(line)-1])
	}
	if (g.Op == INV) != (n1 == 1) {
		return g, fmt.Errorf("invalid arity %d for %s", n1, g.Op)
	}

	g.Input0 = wires[0]
	if n1 == 2 {
		g.Input1 = wires[1]
	}
	g.Output = wires[n1]

	return g, nil
}

func readLine(r *bufio.Reader) ([]string, error) {
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			if err != io.EOF || len(line) == 0 {
				return nil, err
			}
		}
		var parts []string
		for _, part := range reParts.Split(line, -1) {
			if len(part) > 0 {
				parts = append(parts, part)
			}
		}
		if len(parts) > 0 {
			return parts, nil
		}
		if err != nil {
			return nil, err
		}
	}
}
