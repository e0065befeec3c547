// Copyright 2018 Denis Bernard <db047h@gmail.com>
// Licensed under the MIT license. See license text in the LICENSE file.

// Package schedtest provides utility functions for testing schedulers.
//
package schedtest

import (
	"math/rand"
	"strconv"
	"testing"

	"github.com/db47h/hlsim/sched"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

// Verify checks that the c-steps of instrs satisfy the minimum and maximum
// delay of every dependency.
//
func Verify(a sched.Adapter, instrs []int) error {
	for _, i := range instrs {
		ci := a.CStep(i)
		for _, d := range a.Preds(i) {
			cp := a.CStep(d.Task)
			if ci-cp < d.MinDelay {
				return errors.Errorf("instruction %d at c-step %d starts less than %d c-steps after predecessor %d at c-step %d", i, ci, d.MinDelay, d.Task, cp)
			}
			if d.MaxDelay != sched.Unbounded && ci-cp > d.MaxDelay {
				return errors.Errorf("instruction %d at c-step %d starts more than %d c-steps after predecessor %d at c-step %d", i, ci, d.MaxDelay, d.Task, cp)
			}
		}
	}
	return nil
}

// VerifyResources checks that no c-step holds more instructions of a class
// than its limit. An instruction occupies its class for max(latency, 1)
// c-steps.
//
func VerifyResources(a sched.Adapter, instrs []int, limits map[string]int) error {
	busy := make(map[string]map[int64][]int)
	for _, i := range instrs {
		cl := a.Class(i)
		limit, ok := limits[cl]
		if !ok {
			continue
		}
		b := busy[cl]
		if b == nil {
			b = make(map[int64][]int)
			busy[cl] = b
		}
		n := a.Latency(i)
		if n == 0 {
			n = 1
		}
		for c := a.CStep(i); c < a.CStep(i)+n; c++ {
			b[c] = append(b[c], i)
			if len(b[c]) > limit {
				return errors.Errorf("c-step %d: %d %s instructions %v, limit is %d", c, len(b[c]), cl, b[c], limit)
			}
		}
	}
	return nil
}

// Compare schedules instrs with s1 then s2 and fails t if the schedules
// differ. The end times must match as well.
//
func Compare(t *testing.T, a sched.Adapter, instrs []int, s1, s2 sched.BlockScheduler) {
	t.Helper()
	c1 := sched.NewConstraints()
	require.NoError(t, s1.Schedule(a, instrs, c1))
	r1 := sched.CSteps(a, instrs)
	c2 := sched.NewConstraints()
	require.NoError(t, s2.Schedule(a, instrs, c2))
	r2 := sched.CSteps(a, instrs)
	require.Equal(t, r1, r2, "c-steps differ")
	require.Equal(t, c1.EndTime, c2.EndTime, "end times differ")
}

// RandomGraph returns a random acyclic graph of n instructions. Dependencies
// only go from lower to higher handles, so the input order is a topological
// order. Latencies are in the range [0, 3).
//
func RandomGraph(r *rand.Rand, n int, classes ...string) *sched.Graph {
	if len(classes) == 0 {
		classes = []string{"alu"}
	}
	g := sched.NewGraph()
	for i := 0; i < n; i++ {
		g.Add("i"+strconv.Itoa(i), classes[r.Intn(len(classes))], int64(r.Intn(3)))
	}
	for to := 1; to < n; to++ {
		for k := r.Intn(3); k > 0; k-- {
			from := r.Intn(to)
			if _, err := g.Flow(from, to); err != nil {
				panic(err)
			}
		}
	}
	return g
}
