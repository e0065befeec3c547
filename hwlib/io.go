// Copyright 2018 Denis Bernard <db047h@gmail.com>
// Licensed under the MIT license. See license text in the LICENSE file.

package hwlib

import "github.com/db47h/hlsim"

// Input creates a function based input. f is sampled once per tick.
//
//	Outputs: out
//	Function: out = f()
//
func Input(f func() bool) *PartSpec {
	return &PartSpec{
		Name:    "INPUT",
		Outputs: []string{pOut},
		Mount: func(c *hlsim.Component, s Socket) error {
			out := s[pOut]
			_, err := c.AddThread("input", func(p *hlsim.Process) error {
				out.Set(f())
				return p.Delay(1, nil)
			})
			return err
		},
	}
}

// Output creates an output or probe. The fn function is called with the
// state of in at the start of simulation and every time it changes.
//
//	Inputs: in
//	Function: f(in)
//
func Output(f func(bool)) *PartSpec {
	return &PartSpec{
		Name:   "OUTPUT",
		Inputs: []string{pIn},
		Mount: func(c *hlsim.Component, s Socket) error {
			in := s[pIn]
			_, err := c.AddProcess("output", func(*hlsim.Process) error {
				f(in.Cur())
				return nil
			}, in)
			return err
		},
	}
}
