// Copyright 2018 Denis Bernard <db047h@gmail.com>
// Licensed under the MIT license. See license text in the LICENSE file.

// Package hwlib provides a library of reusable hardware parts for hlsim.
//
// Parts are built from kernel processes working on boolean signals (wires).
// Combinational parts are triggered processes sensitive to their inputs;
// sequential parts are threads waiting on a clock edge.
//
//	c := hlsim.NewContext()
//	a, b := hwlib.NewWire(c, "a"), hwlib.NewWire(c, "b")
//	s, err := hwlib.And.NewPart(c, "and0", hwlib.Socket{"a": a, "b": b})
//	// s["out"] is the output wire
//
package hwlib

import (
	"strconv"

	"github.com/db47h/hlsim"
	"github.com/pkg/errors"
)

// common pin names
const (
	pA   = "a"
	pB   = "b"
	pIn  = "in"
	pSel = "sel"
	pOut = "out"
	pClk = "clk"
)

// A Wire is a boolean signal connecting parts.
//
type Wire = hlsim.Signal[bool]

// NewWire returns a new wire, initially false.
//
func NewWire(c *hlsim.Context, name string) *Wire {
	return hlsim.NewSignal(c, name, false)
}

// A Socket maps pin names to wires.
//
type Socket map[string]*Wire

// A PartSpec describes a part: its name, its input and output pins, and how to
// mount an instance of it.
//
type PartSpec struct {
	Name    string
	Inputs  []string
	Outputs []string
	// Mount adds the processes of the part to c. All pins of s are
	// connected.
	Mount func(c *hlsim.Component, s Socket) error
}

func (p *PartSpec) hasPin(name string) bool {
	for _, n := range p.Inputs {
		if n == name {
			return true
		}
	}
	for _, n := range p.Outputs {
		if n == name {
			return true
		}
	}
	return false
}

// NewPart mounts a new instance of the part in c, under a new component
// called name. Pins not connected in s get a new wire. NewPart returns the
// complete socket.
//
func (p *PartSpec) NewPart(c *hlsim.Context, name string, s Socket) (Socket, error) {
	for n := range s {
		if !p.hasPin(n) {
			return nil, errors.Errorf("%s %s: unknown pin %q", p.Name, name, n)
		}
	}
	full := make(Socket, len(p.Inputs)+len(p.Outputs))
	for _, pins := range [][]string{p.Inputs, p.Outputs} {
		for _, n := range pins {
			w := s[n]
			if w == nil {
				w = NewWire(c, name+"."+n)
			}
			full[n] = w
		}
	}
	if err := p.Mount(c.NewComponent(name), full); err != nil {
		return nil, errors.Wrapf(err, "%s %s", p.Name, name)
	}
	return full, nil
}

// make a bus name
func bus(bits int, names ...string) []string {
	b := make([]string, len(names)*bits)
	for i, n := range names {
		for j := 0; j < bits; j++ {
			b[i*bits+j] = n + "[" + strconv.Itoa(j) + "]"
		}
	}
	return b
}

// A Bus is a group of wires. Wire 0 is the lsb.
//
type Bus []*Wire

// Pins returns the wires name[0] to name[len(b)-1] of s as a bus.
//
func Pins(s Socket, name string, bits int) Bus {
	b := make(Bus, bits)
	for i, n := range bus(bits, name) {
		b[i] = s[n]
	}
	return b
}

// Uint64 returns the current value of the bus.
//
func (b Bus) Uint64() uint64 {
	var out uint64
	for bit, w := range b {
		if w.Cur() {
			out |= 1 << uint(bit)
		}
	}
	return out
}

// Set sets the next value of the bus.
//
func (b Bus) Set(v uint64) {
	for bit, w := range b {
		w.Set(v&(1<<uint(bit)) != 0)
	}
}

// Chip returns a PartSpec composed of other parts. On mount, build is called
// with the socket of the chip instance and the name of its component, to be
// used as a prefix for the sub parts.
//
func Chip(name string, inputs, outputs []string, build func(c *hlsim.Context, prefix string, s Socket) error) *PartSpec {
	return &PartSpec{
		Name:    name,
		Inputs:  inputs,
		Outputs: outputs,
		Mount: func(c *hlsim.Component, s Socket) error {
			return build(c.Context(), c.Name(), s)
		},
	}
}
