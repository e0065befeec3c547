// Copyright 2018 Denis Bernard <db047h@gmail.com>
// Licensed under the MIT license. See license text in the LICENSE file.

package hwlib

import (
	"github.com/db47h/hlsim"
	"github.com/pkg/errors"
)

// DFF is a data flip flop triggered on the rising edge of clk.
//
//	Inputs: clk, in
//	Outputs: out
//	Function: out(t) = in(t-1) // where t is the current clock cycle.
//
var DFF = &PartSpec{
	Name:    "DFF",
	Inputs:  []string{pClk, pIn},
	Outputs: []string{pOut},
	Mount: func(c *hlsim.Component, s Socket) error {
		clk, in, out := s[pClk], s[pIn], s[pOut]
		rising := hlsim.When(clk, clk.Cur)
		sample := func(*hlsim.Process) error {
			out.Set(in.Cur())
			return nil
		}
		_, err := c.AddThread("dff", func(p *hlsim.Process) error {
			return p.Wait(rising, sample)
		})
		return err
	},
}

// Clock returns a clock generator. The clock starts low and toggles every
// halfPeriod ticks.
//
//	Outputs: clk
//
func Clock(halfPeriod int64) *PartSpec {
	if halfPeriod <= 0 {
		panic(errors.Errorf("invalid clock half period %d", halfPeriod))
	}
	return &PartSpec{
		Name:    "CLOCK",
		Outputs: []string{pClk},
		Mount: func(c *hlsim.Component, s Socket) error {
			clk := s[pClk]
			toggle := func(*hlsim.Process) error {
				clk.Set(!clk.Cur())
				return nil
			}
			_, err := c.AddThread("clock", func(p *hlsim.Process) error {
				return p.Delay(halfPeriod, toggle)
			})
			return err
		},
	}
}
