// Copyright 2018 Denis Bernard <db047h@gmail.com>
// Licensed under the MIT license. See license text in the LICENSE file.

// Package hwtest provides utility functions for testing circuits.
//
package hwtest

import (
	"fmt"
	"io"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/db47h/hlsim"
	"github.com/db47h/hlsim/hwlib"
	"github.com/docker/go-units"
	"github.com/sirupsen/logrus"
)

// NewContext returns a simulation context that logs to t.
//
func NewContext(t testing.TB) *hlsim.Context {
	l := logrus.New()
	l.SetOutput(io.Discard)
	if testing.Verbose() {
		l.SetOutput(testWriter{t})
		l.SetLevel(logrus.DebugLevel)
	}
	return hlsim.NewContext(hlsim.WithLogger(l))
}

type testWriter struct{ t testing.TB }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

func sameSpec(t *testing.T, p1, p2 *hwlib.PartSpec) {
	t.Helper()
	if len(p1.Inputs) != len(p2.Inputs) {
		t.Fatalf("%s has %d inputs, %s has %d", p1.Name, len(p1.Inputs), p2.Name, len(p2.Inputs))
	}
	if len(p1.Outputs) != len(p2.Outputs) {
		t.Fatalf("%s has %d outputs, %s has %d", p1.Name, len(p1.Outputs), p2.Name, len(p2.Outputs))
	}
	for i := range p1.Inputs {
		if p1.Inputs[i] != p2.Inputs[i] {
			t.Fatalf("%s.Inputs[%d] = %q != %s.Inputs[%d] = %q", p1.Name, i, p1.Inputs[i], p2.Name, i, p2.Inputs[i])
		}
	}
	for i := range p1.Outputs {
		if p1.Outputs[i] != p2.Outputs[i] {
			t.Fatalf("%s.Outputs[%d] = %q != %s.Outputs[%d] = %q", p1.Name, i, p1.Outputs[i], p2.Name, i, p2.Outputs[i])
		}
	}
}

// ComparePart takes two parts and compares their outputs given the same
// inputs. Both parts must have the same input and output pins.
//
// The inputs are all false, then all true, then random for iter rounds. Each
// round lasts one tick.
//
func ComparePart(t *testing.T, iter int, part1, part2 *hwlib.PartSpec) {
	t.Helper()
	sameSpec(t, part1, part2)

	seed := time.Now().UnixNano()
	r := rand.New(rand.NewSource(seed))

	c := NewContext(t)
	in := make(hwlib.Socket, len(part1.Inputs))
	inputs := make([]*hwlib.Wire, len(part1.Inputs))
	for i, n := range part1.Inputs {
		inputs[i] = hwlib.NewWire(c, n)
		in[n] = inputs[i]
	}
	s1, err := part1.NewPart(c, "p1", in)
	if err != nil {
		t.Fatal(err)
	}
	s2, err := part2.NewPart(c, "p2", in)
	if err != nil {
		t.Fatal(err)
	}
	if err = c.Elaborate(); err != nil {
		t.Fatal(err)
	}

	errString := func(oname string, ex, got bool) string {
		var b strings.Builder
		for i, n := range part1.Inputs {
			if b.Len() > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%v", n, inputs[i].Cur())
		}
		return fmt.Sprintf("\nseed %d\nExpected %s => %s=%v\nGot %v", seed, b.String(), oname, ex, got)
	}

	start := time.Now()
	for i := -2; i < iter; i++ {
		for _, w := range inputs {
			switch i {
			case -2:
				w.Set(false)
			case -1:
				w.Set(true)
			default:
				w.Set(r.Int63()&(1<<62) != 0)
			}
		}
		if err = c.Simulate(1); err != nil {
			t.Fatal(err)
		}
		for _, o := range part1.Outputs {
			if v1, v2 := s1[o].Cur(), s2[o].Cur(); v1 != v2 {
				t.Fatal(errString(o, v1, v2))
			}
		}
	}
	t.Logf("%d processes. %d delta cycles in %s.", len(c.Processes()), c.DeltaCycleCount(), units.HumanDuration(time.Since(start)))
}
