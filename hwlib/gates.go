// Copyright 2018 Denis Bernard <db047h@gmail.com>
// Licensed under the MIT license. See license text in the LICENSE file.

package hwlib

import (
	"github.com/db47h/hlsim"
)

// Not is a NOT gate.
//
//	Inputs: in
//	Outputs: out
//	Function: out = !in
//
var Not = &PartSpec{
	Name:    "NOT",
	Inputs:  []string{pIn},
	Outputs: []string{pOut},
	Mount: func(c *hlsim.Component, s Socket) error {
		in, out := s[pIn], s[pOut]
		_, err := c.AddProcess("not", func(*hlsim.Process) error {
			out.Set(!in.Cur())
			return nil
		}, in)
		return err
	},
}

// other gates
type gate func(a, b bool) bool

func (g gate) mount(c *hlsim.Component, s Socket) error {
	a, b, out := s[pA], s[pB], s[pOut]
	_, err := c.AddProcess("eval", func(*hlsim.Process) error {
		out.Set(g(a.Cur(), b.Cur()))
		return nil
	}, a, b)
	return err
}

func newGate(name string, fn func(a, b bool) bool) *PartSpec {
	return &PartSpec{
		Name:    name,
		Inputs:  []string{pA, pB},
		Outputs: []string{pOut},
		Mount:   gate(fn).mount,
	}
}

var (
	// And is a AND gate.
	//
	//	Inputs: a, b
	//	Outputs: out
	//	Function: out = a && b
	//
	And = newGate("AND", func(a, b bool) bool { return a && b })

	// Nand is a NAND gate.
	//
	//	Inputs: a, b
	//	Outputs: out
	//	Function: out = !(a && b)
	//
	Nand = newGate("NAND", func(a, b bool) bool { return !(a && b) })

	// Or is a OR gate.
	//
	//	Inputs: a, b
	//	Outputs: out
	//	Function: out = a || b
	//
	Or = newGate("OR", func(a, b bool) bool { return a || b })

	// Nor is a NOR gate.
	//
	//	Inputs: a, b
	//	Outputs: out
	//	Function: out = !(a || b)
	//
	Nor = newGate("NOR", func(a, b bool) bool { return !(a || b) })

	// Xor is a XOR gate.
	//
	//	Inputs: a, b
	//	Outputs: out
	//	Function: out = (a && !b) || (!a && b)
	//
	Xor = newGate("XOR", func(a, b bool) bool { return a && !b || !a && b })

	// Xnor is a XNOR gate.
	//
	//	Inputs: a, b
	//	Outputs: out
	//	Function: out = a && b || !a && !b
	//
	Xnor = newGate("XNOR", func(a, b bool) bool { return a && b || !a && !b })
)
