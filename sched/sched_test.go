// Copyright 2018 Denis Bernard <db047h@gmail.com>
// Licensed under the MIT license. See license text in the LICENSE file.

package sched_test

import (
	"math/rand"
	"strconv"
	"testing"

	"github.com/db47h/hlsim/sched"
	"github.com/db47h/hlsim/schedtest"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func chain(t *testing.T) (*sched.Graph, []int) {
	g := sched.NewGraph()
	a := g.Add("a", "alu", 1)
	b := g.Add("b", "alu", 1)
	c := g.Add("c", "alu", 1)
	require.NoError(t, g.Dep(a, b, 1, sched.Unbounded))
	require.NoError(t, g.Dep(b, c, 1, sched.Unbounded))
	return g, g.Instructions()
}

func csteps(g *sched.Graph) []int64 {
	r := make([]int64, g.Len())
	for i := range r {
		r[i] = g.CStep(i)
	}
	return r
}

func TestChain(t *testing.T) {
	g, is := chain(t)
	c := sched.NewConstraints()
	require.NoError(t, sched.ASAP.Schedule(g, is, c))
	require.Equal(t, []int64{0, 1, 2}, csteps(g))
	require.EqualValues(t, 3, c.EndTime)

	c = sched.NewConstraints()
	c.EndTime = 3
	require.NoError(t, sched.ALAP.Schedule(g, is, c))
	require.Equal(t, []int64{0, 1, 2}, csteps(g))
	require.EqualValues(t, 0, c.StartTime)
}

func TestResourceLimit(t *testing.T) {
	g := sched.NewGraph()
	x := g.Add("x", "ALU", 1)
	y := g.Add("y", "ALU", 1)
	g.Limit("ALU", 1)
	is := g.Instructions()

	c := sched.NewConstraints()
	require.NoError(t, sched.ConstrainedASAP.Schedule(g, is, c))
	require.NotEqual(t, g.CStep(x), g.CStep(y))
	require.ElementsMatch(t, []int64{0, 1}, csteps(g))
	require.EqualValues(t, 2, c.EndTime)
	require.NoError(t, schedtest.VerifyResources(g, is, map[string]int{"ALU": 1}))

	g.ClearSchedule()
	c = sched.NewConstraints()
	c.EndTime = 2
	require.NoError(t, sched.ConstrainedALAP.Schedule(g, is, c))
	require.Equal(t, []int64{1, 0}, csteps(g))
	require.EqualValues(t, 0, c.StartTime)

	// unconstrained variants ignore the limit
	require.NoError(t, sched.ASAP.Schedule(g, is, sched.NewConstraints()))
	require.Equal(t, []int64{0, 0}, csteps(g))
}

func TestConstrainedNeedsResources(t *testing.T) {
	g, is := chain(t)
	// hide TryPin
	a := struct{ sched.Adapter }{g}
	require.Error(t, sched.ConstrainedASAP.Schedule(a, is, sched.NewConstraints()))
	require.NoError(t, sched.ASAP.Schedule(a, is, sched.NewConstraints()))
}

func TestDeadline(t *testing.T) {
	data := []struct {
		name   string
		build  func(g *sched.Graph)
		scheds []sched.BlockScheduler
		instr  string
	}{
		// c cannot start both 1 step after a and 3 steps after b
		{"forward", func(g *sched.Graph) {
			a := g.Add("a", "alu", 1)
			b := g.Add("b", "mul", 3)
			c := g.Add("c", "alu", 1)
			require.NoError(t, g.Dep(a, c, 1, 1))
			require.NoError(t, g.Dep(b, c, 3, sched.Unbounded))
		}, []sched.BlockScheduler{sched.ASAP, sched.ConstrainedASAP, sched.OneInstructionPerCStep, &sched.ForceDirected{}}, "instruction 2"},
		// a cannot run both 1 step before b and 5 steps before c when b and
		// c are pushed to the end
		{"backward", func(g *sched.Graph) {
			a := g.Add("a", "alu", 1)
			b := g.Add("b", "alu", 1)
			c := g.Add("c", "alu", 1)
			require.NoError(t, g.Dep(a, b, 1, 1))
			require.NoError(t, g.Dep(a, c, 5, sched.Unbounded))
		}, []sched.BlockScheduler{sched.ALAP, sched.ConstrainedALAP}, "instruction 0"},
	}
	for _, d := range data {
		t.Run(d.name, func(t *testing.T) {
			g := sched.NewGraph()
			d.build(g)
			is := g.Instructions()
			for _, s := range d.scheds {
				g.ClearSchedule()
				c := sched.NewConstraints()
				c.EndTime = 10
				err := s.Schedule(g, is, c)
				require.Error(t, err)
				require.True(t, errors.Is(err, sched.ErrNotSchedulable), "got %v", err)
				require.Contains(t, err.Error(), d.instr)
			}
		})
	}
}

func TestInvalidGraph(t *testing.T) {
	g, _ := chain(t)
	for _, s := range []sched.BlockScheduler{sched.ASAP, sched.ALAP, sched.OneInstructionPerCStep, &sched.ForceDirected{}} {
		err := s.Schedule(g, []int{0, 1}, sched.NewConstraints())
		require.Equal(t, sched.ErrInvalidGraph, errors.Cause(err))
	}
	require.Error(t, g.Dep(0, 5, 0, 0))
	require.Error(t, g.Dep(0, 1, 2, 1))
}

func TestSequential(t *testing.T) {
	g := sched.NewGraph()
	g.Add("a", "alu", 2)
	g.Add("b", "alu", 0)
	g.Add("c", "alu", 1)
	c := sched.NewConstraints()
	c.StartTime = 5
	require.NoError(t, sched.Sequential.Schedule(g, g.Instructions(), c))
	require.Equal(t, []int64{5, 7, 7}, csteps(g))
	require.EqualValues(t, 8, c.EndTime)
}

func TestOneInstructionPerCStep(t *testing.T) {
	g := sched.NewGraph()
	a := g.Add("a", "alu", 1)
	g.Add("x", "alu", 1)
	b := g.Add("b", "alu", 1)
	d := g.Add("d", "alu", 1)
	require.NoError(t, g.Dep(a, b, 1, sched.Unbounded))
	require.NoError(t, g.Dep(b, d, 3, sched.Unbounded))
	c := sched.NewConstraints()
	require.NoError(t, sched.OneInstructionPerCStep.Schedule(g, g.Instructions(), c))
	require.Equal(t, []int64{0, 1, 2, 5}, csteps(g))
	require.EqualValues(t, 6, c.EndTime)

	// predecessors must come first
	err := sched.OneInstructionPerCStep.Schedule(g, []int{b, a, 1, d}, sched.NewConstraints())
	require.True(t, errors.Is(err, sched.ErrNotSchedulable))
}

func TestForceDirected_noMobility(t *testing.T) {
	g, is := chain(t)
	schedtest.Compare(t, g, is, sched.ASAP, &sched.ForceDirected{})

	// same with data flow
	g = sched.NewGraph()
	a := g.Add("a", "alu", 1)
	b := g.Add("b", "alu", 1)
	c := g.Add("c", "mul", 2)
	for _, e := range [][2]int{{a, b}, {b, c}} {
		_, err := g.Flow(e[0], e[1])
		require.NoError(t, err)
	}
	schedtest.Compare(t, g, g.Instructions(), sched.ASAP, &sched.ForceDirected{MinimizeBuses: true, MinimizeRegisters: true})
	require.Equal(t, []int64{0, 1, 2}, csteps(g))
}

func TestForceDirected_balance(t *testing.T) {
	g := sched.NewGraph()
	a := g.Add("a", "alu", 1)
	b := g.Add("b", "alu", 1)
	g.Add("c", "alu", 1)
	require.NoError(t, g.Dep(a, b, 1, sched.Unbounded))
	is := g.Instructions()

	c := sched.NewConstraints()
	require.NoError(t, sched.ASAP.Schedule(g, is, c))
	require.Equal(t, []int64{0, 1, 0}, csteps(g))

	c = sched.NewConstraints()
	require.NoError(t, (&sched.ForceDirected{}).Schedule(g, is, c))
	require.Equal(t, []int64{0, 1, 2}, csteps(g))
	require.EqualValues(t, 3, c.EndTime)
	require.NoError(t, schedtest.VerifyResources(g, is, map[string]int{"alu": 1}))

	// a scale factor of 1 leaves no room
	c = sched.NewConstraints()
	c.SchedScale = 1
	require.NoError(t, (&sched.ForceDirected{}).Schedule(g, is, c))
	require.EqualValues(t, 2, c.EndTime)
}

func TestRandomGraphs(t *testing.T) {
	for seed := int64(1); seed <= 20; seed++ {
		r := rand.New(rand.NewSource(seed))
		g := schedtest.RandomGraph(r, 24, "alu", "mul", "mem")
		is := g.Instructions()

		c := sched.NewConstraints()
		require.NoError(t, sched.ASAP.Schedule(g, is, c))
		require.NoError(t, schedtest.Verify(g, is))
		asap := sched.CSteps(g, is)
		end := c.EndTime

		c = sched.NewConstraints()
		c.EndTime = end
		require.NoError(t, sched.ALAP.Schedule(g, is, c))
		require.NoError(t, schedtest.Verify(g, is))
		for _, i := range is {
			require.True(t, g.CStep(i) >= asap[i], "seed %d: instruction %d: alap %d < asap %d", seed, i, g.CStep(i), asap[i])
		}

		for _, fds := range []*sched.ForceDirected{{}, {MinimizeBuses: true}, {MinimizeBuses: true, MinimizeRegisters: true}} {
			c = sched.NewConstraints()
			require.NoError(t, fds.Schedule(g, is, c), "seed %d", seed)
			require.NoError(t, schedtest.Verify(g, is))
			require.True(t, c.EndTime >= end)
		}

		g.Limit("alu", 1)
		g.Limit("mul", 2)
		g.ClearSchedule()
		require.NoError(t, sched.ConstrainedASAP.Schedule(g, is, sched.NewConstraints()))
		require.NoError(t, schedtest.Verify(g, is))
		require.NoError(t, schedtest.VerifyResources(g, is, map[string]int{"alu": 1, "mul": 2}))
	}
}

func TestDeterminism(t *testing.T) {
	var graphs []*sched.Graph
	var want []uint64
	for seed := int64(1); seed <= 8; seed++ {
		g := schedtest.RandomGraph(rand.New(rand.NewSource(seed)), 16, "alu", "mul")
		require.NoError(t, (&sched.ForceDirected{MinimizeBuses: true}).Schedule(g, g.Instructions(), sched.NewConstraints()))
		want = append(want, sched.Fingerprint(g, g.Instructions()))
		graphs = append(graphs, g)
	}
	var jobs []sched.Job
	for _, g := range graphs {
		g := g
		jobs = append(jobs, func() error {
			return (&sched.ForceDirected{MinimizeBuses: true}).Schedule(g, g.Instructions(), sched.NewConstraints())
		})
	}
	for _, err := range sched.Parallel(3, jobs...) {
		require.NoError(t, err)
	}
	for i, g := range graphs {
		require.Equal(t, want[i], sched.Fingerprint(g, g.Instructions()))
	}
}

func TestScheduleCFG(t *testing.T) {
	g := sched.NewGraph()
	a := g.Add("a", "alu", 1)
	b := g.Add("b", "alu", 1)
	c := g.Add("c", "alu", 1)
	require.NoError(t, g.Dep(a, b, 1, sched.Unbounded))
	blocks := [][]int{{a, b}, {c}}

	for _, s := range []sched.CFGScheduler{
		sched.ALAP,
		sched.ASAP,
		sched.FunctionScheduler(sched.OneInstructionPerCStep),
		&sched.ForceDirected{},
	} {
		cs := sched.NewConstraints()
		require.NoError(t, s.ScheduleCFG(g, blocks, cs))
		require.Equal(t, []int64{0, 1, 2}, csteps(g))
		require.EqualValues(t, 3, cs.EndTime)
	}

	times, err := sched.ScheduleBlocks(sched.ASAP, g, blocks)
	require.NoError(t, err)
	require.Equal(t, []int64{0, 2, 3}, times)
}

func TestProfiler(t *testing.T) {
	g, is := chain(t)
	p := sched.NewProfiler("all", 0, 2)
	c := sched.NewConstraints()
	c.Profilers = append(c.Profilers, p)
	require.NoError(t, sched.ASAP.Schedule(g, is, c))
	require.True(t, p.Valid)
	require.EqualValues(t, 0, p.FirstCStep)
	require.EqualValues(t, 2, p.LastCStep)
	require.EqualValues(t, 3, p.Span())
}

func TestMobilityPriority(t *testing.T) {
	g := sched.NewGraph()
	a := g.Add("a", "alu", 1)
	b := g.Add("b", "alu", 1)
	x := g.Add("x", "alu", 1)
	require.NoError(t, g.Dep(a, b, 1, sched.Unbounded))
	is := g.Instructions()

	c := sched.NewConstraints()
	require.NoError(t, sched.ASAP.Schedule(g, is, c))
	asap := sched.CSteps(g, is)
	c.EndTime = 3
	require.NoError(t, sched.ALAP.Schedule(g, is, c))
	alap := sched.CSteps(g, is)

	prio := sched.MobilityPriority(asap, alap)
	// mobility: a=1, b=1, x=2
	require.Equal(t, []int{a, b, x}, prio([]int{x, a, b}))

	s := sched.NewALAP(false)
	s.Prioritize = prio
	c.EndTime = 3
	require.NoError(t, s.Schedule(g, is, c))
	require.Equal(t, alap, sched.CSteps(g, is))
}

func TestForceDirected_constrained(t *testing.T) {
	g := sched.NewGraph()
	g.Add("x", "alu", 1)
	g.Add("y", "alu", 1)
	g.Limit("alu", 1)
	is := g.Instructions()
	fds := &sched.ForceDirected{Constrained: true}

	c := sched.NewConstraints()
	require.NoError(t, fds.Schedule(g, is, c))
	require.Equal(t, []int64{0, 1}, csteps(g))
	require.EqualValues(t, 2, c.EndTime)
	require.NoError(t, schedtest.VerifyResources(g, is, map[string]int{"alu": 1}))

	// three instructions do not fit in a two c-step window
	g.ClearSchedule()
	z := g.Add("z", "alu", 1)
	err := fds.Schedule(g, g.Instructions(), sched.NewConstraints())
	require.True(t, errors.Is(err, sched.ErrNotSchedulable), "got %v", err)
	require.Contains(t, err.Error(), "instruction "+strconv.Itoa(z))

	// needs a ResourceAdapter
	require.Error(t, fds.Schedule(struct{ sched.Adapter }{g}, is, sched.NewConstraints()))
}

// a pin rejected with no earlier free c-step moves to a later one within
// the window.
func TestForceDirected_laterSlot(t *testing.T) {
	g := sched.NewGraph()
	x := g.Add("x", "alu", 1)
	y := g.Add("y", "alu", 1)
	w := g.Add("w", "alu", 1)
	other := g.Add("other", "alu", 1)
	g.Limit("alu", 2)
	// one alu unit at c-step 0 is taken outside of the block
	ok, _, _ := g.TryPin(other, 0)
	require.True(t, ok)

	c := sched.NewConstraints()
	require.NoError(t, (&sched.ForceDirected{Constrained: true}).Schedule(g, []int{x, y, w}, c))
	require.Equal(t, []int64{0, 1, 1}, []int64{g.CStep(x), g.CStep(y), g.CStep(w)})
	require.EqualValues(t, 2, c.EndTime)
}
