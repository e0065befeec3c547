// Copyright 2018 Denis Bernard <db047h@gmail.com>
// Licensed under the MIT license. See license text in the LICENSE file.

package hwlib

import "github.com/db47h/hlsim"

// Mux is a multiplexer.
//
//	Inputs: a, b, sel
//	Outputs: out
//	Function: if sel == 0 { out = a } else { out = b }
//
var Mux = &PartSpec{
	Name:    "MUX",
	Inputs:  []string{pA, pB, pSel},
	Outputs: []string{pOut},
	Mount: func(c *hlsim.Component, s Socket) error {
		a, b, sel, out := s[pA], s[pB], s[pSel], s[pOut]
		_, err := c.AddProcess("mux", func(*hlsim.Process) error {
			if sel.Cur() {
				out.Set(b.Cur())
			} else {
				out.Set(a.Cur())
			}
			return nil
		}, a, b, sel)
		return err
	},
}

// DMux is a demultiplexer.
//
//	Inputs: in, sel
//	Outputs: a, b
//	Function: if sel == 0 { a = in; b = 0 } else { a = 0; b = in }
//
var DMux = &PartSpec{
	Name:    "DMUX",
	Inputs:  []string{pIn, pSel},
	Outputs: []string{pA, pB},
	Mount: func(c *hlsim.Component, s Socket) error {
		in, sel, a, b := s[pIn], s[pSel], s[pA], s[pB]
		_, err := c.AddProcess("dmux", func(*hlsim.Process) error {
			if sel.Cur() {
				a.Set(false)
				b.Set(in.Cur())
			} else {
				a.Set(in.Cur())
				b.Set(false)
			}
			return nil
		}, in, sel)
		return err
	},
}
