// Copyright 2018 Denis Bernard <db047h@gmail.com>
// Licensed under the MIT license. See license text in the LICENSE file.

package hwlib

import (
	"strconv"

	"github.com/db47h/hlsim"
)

// HalfAdder is a half adder.
//
//	Inputs: a, b
//	Outputs: s, c
//	Function: s = lsb(a + b)
//	          c = msb(a + b)
//
var HalfAdder = &PartSpec{
	Name:    "HalfAdder",
	Inputs:  []string{pA, pB},
	Outputs: []string{"s", "c"},
	Mount: func(c *hlsim.Component, s Socket) error {
		a, b := s[pA], s[pB]
		sum, cout := s["s"], s["c"]
		_, err := c.AddProcess("add", func(*hlsim.Process) error {
			va, vb := a.Cur(), b.Cur()
			sum.Set(va != vb)
			cout.Set(va && vb)
			return nil
		}, a, b)
		return err
	},
}

// FullAdder is a 3 bits adder.
//
//	Inputs: a, b, cin
//	Outputs: s, cout
//	Function: s = lsb(a + b + cin)
//	          cout = msb(a + b + cin)
//
var FullAdder = &PartSpec{
	Name:    "FullAdder",
	Inputs:  []string{pA, pB, "cin"},
	Outputs: []string{"s", "cout"},
	Mount: func(c *hlsim.Component, s Socket) error {
		a, b, cin := s[pA], s[pB], s["cin"]
		sum, cout := s["s"], s["cout"]
		_, err := c.AddProcess("add", func(*hlsim.Process) error {
			va, vb, vc := a.Cur(), b.Cur(), cin.Cur()
			s := va != vb
			sum.Set(s != vc)
			cout.Set(s && vc || va && vb)
			return nil
		}, a, b, cin)
		return err
	},
}

// Counter returns a binary counter incremented on every rising edge of clk.
// It is built from half adders and DFFs.
//
//	Inputs: clk
//	Outputs: out[bits]
//	Function: out(t) = out(t-1) + 1
//
func Counter(bits int) *PartSpec {
	return Chip("Counter"+strconv.Itoa(bits), []string{pClk}, bus(bits, pOut),
		func(c *hlsim.Context, prefix string, s Socket) error {
			out := Pins(s, pOut, bits)
			carry := hlsim.NewSignal(c, prefix+".one", true)
			for i := range out {
				sub := prefix + "." + strconv.Itoa(i)
				add, err := HalfAdder.NewPart(c, sub+".add", Socket{pA: out[i], pB: carry})
				if err != nil {
					return err
				}
				if _, err = DFF.NewPart(c, sub+".dff", Socket{pClk: s[pClk], pIn: add["s"], pOut: out[i]}); err != nil {
					return err
				}
				carry = add["c"]
			}
			return nil
		})
}
