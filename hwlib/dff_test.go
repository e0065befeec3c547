package hwlib_test

import (
	"math/rand"
	"testing"

	"github.com/db47h/hlsim"
	hl "github.com/db47h/hlsim/hwlib"
	"github.com/db47h/hlsim/hwtest"
)

func TestDFF(t *testing.T) {
	c := hwtest.NewContext(t)
	clk, in := hl.NewWire(c, "clk"), hl.NewWire(c, "in")
	s, err := hl.DFF.NewPart(c, "dff", hl.Socket{"clk": clk, "in": in})
	if err != nil {
		t.Fatal(err)
	}
	out := s["out"]
	if err = c.Elaborate(); err != nil {
		t.Fatal(err)
	}

	step := func() {
		t.Helper()
		if err := c.Simulate(1); err != nil {
			t.Fatal(err)
		}
	}

	r := rand.New(rand.NewSource(42))
	var prev bool
	for i := 0; i < 64; i++ {
		v := r.Intn(2) == 1
		in.Set(v)
		step()
		if out.Cur() != prev {
			t.Fatalf("round %d: output changed before clock edge", i)
		}
		clk.Set(true)
		step()
		if out.Cur() != v {
			t.Fatalf("round %d: expected out = %v after rising edge, got %v", i, v, out.Cur())
		}
		in.Set(!v)
		clk.Set(false)
		step()
		if out.Cur() != v {
			t.Fatalf("round %d: output changed on falling edge", i)
		}
		prev = v
	}
}

func Test_bit_register(t *testing.T) {
	reg := hl.Chip("BitReg", []string{"clk", "in", "load"}, []string{"out"}, func(c *hlsim.Context, prefix string, s hl.Socket) error {
		m, err := hl.Mux.NewPart(c, prefix+".mux", hl.Socket{"a": s["out"], "b": s["in"], "sel": s["load"]})
		if err != nil {
			return err
		}
		_, err = hl.DFF.NewPart(c, prefix+".dff", hl.Socket{"clk": s["clk"], "in": m["out"], "out": s["out"]})
		return err
	})

	c := hwtest.NewContext(t)
	clk, in, load := hl.NewWire(c, "clk"), hl.NewWire(c, "in"), hl.NewWire(c, "load")
	s, err := reg.NewPart(c, "reg", hl.Socket{"clk": clk, "in": in, "load": load})
	if err != nil {
		t.Fatal(err)
	}
	if err = c.Elaborate(); err != nil {
		t.Fatal(err)
	}

	r := rand.New(rand.NewSource(1))
	var p bool
	for i := 0; i < 1000; i++ {
		vi, vl := r.Intn(2) == 1, r.Intn(2) == 1
		in.Set(vi)
		load.Set(vl)
		clk.Set(false)
		if err = c.Simulate(1); err != nil {
			t.Fatal(err)
		}
		if s["out"].Cur() != p {
			t.Fatalf("round %d: out changed before clock edge", i)
		}
		clk.Set(true)
		if err = c.Simulate(1); err != nil {
			t.Fatal(err)
		}
		if vl {
			p = vi
		}
		if s["out"].Cur() != p {
			t.Fatalf("round %d: expected %v, got %v", i, p, s["out"].Cur())
		}
	}
}

func TestCounter(t *testing.T) {
	c := hwtest.NewContext(t)
	clk, err := hl.Clock(1).NewPart(c, "clock", nil)
	if err != nil {
		t.Fatal(err)
	}
	s, err := hl.Counter(4).NewPart(c, "cnt", hl.Socket{"clk": clk["clk"]})
	if err != nil {
		t.Fatal(err)
	}
	out := hl.Pins(s, "out", 4)
	if err = c.Elaborate(); err != nil {
		t.Fatal(err)
	}

	// rising edges at ticks 1, 3, 5, 7 and 9
	if err = c.Simulate(10); err != nil {
		t.Fatal(err)
	}
	if v := out.Uint64(); v != 5 {
		t.Fatalf("expected 5, got %d", v)
	}
	// 11 more edges wrap around
	if err = c.Simulate(22); err != nil {
		t.Fatal(err)
	}
	if v := out.Uint64(); v != 0 {
		t.Fatalf("expected 0, got %d", v)
	}
}
