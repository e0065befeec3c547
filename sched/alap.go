// Copyright 2018 Denis Bernard <db047h@gmail.com>
// Licensed under the MIT license. See license text in the LICENSE file.

package sched

import (
	"math"
	"sort"

	"github.com/db47h/hlsim/internal/pq"
)

// ALAPScheduler schedules every instruction as late as its successors allow
// it, working backwards from Constraints.EndTime.
//
type ALAPScheduler struct {
	// Constrained enables resource constraints. The adapter must then
	// implement ResourceAdapter.
	Constrained bool
	// Prioritize, if not nil, orders instructions that become candidates at
	// the same c-step.
	Prioritize func(instrs []int) []int
}

// NewALAP returns a new ALAP scheduler.
//
func NewALAP(constrained bool) *ALAPScheduler {
	return &ALAPScheduler{Constrained: constrained}
}

// ALAP schedulers.
//
var (
	ALAP            = NewALAP(false)
	ConstrainedALAP = NewALAP(true)
)

// MobilityPriority returns a priority function for ALAPScheduler that orders
// instructions by increasing mobility, given the c-steps of an ASAP and an
// ALAP schedule.
//
func MobilityPriority(asap, alap map[int]int64) func(instrs []int) []int {
	return func(instrs []int) []int {
		is := append([]int(nil), instrs...)
		sort.SliceStable(is, func(i, j int) bool {
			return alap[is[i]]-asap[is[i]] < alap[is[j]]-asap[is[j]]
		})
		return is
	}
}

// CSteps returns the c-steps of instrs as a map.
//
func CSteps(a Adapter, instrs []int) map[int]int64 {
	m := make(map[int]int64, len(instrs))
	for _, i := range instrs {
		m[i] = a.CStep(i)
	}
	return m
}

// Schedule implements BlockScheduler. The schedule ends at c.EndTime; on
// return, c.StartTime is its first c-step.
//
func (s *ALAPScheduler) Schedule(a Adapter, instrs []int, c *Constraints) error {
	start, err := s.run(a, instrs, c.EndTime)
	if err != nil {
		return err
	}
	c.StartTime = start
	c.Profile(a)
	return nil
}

// ScheduleCFG implements CFGScheduler. It first measures the length of each
// block's ALAP schedule, then places the blocks back to back from
// c.StartTime, each one as late as its own length allows.
//
func (s *ALAPScheduler) ScheduleCFG(a Adapter, blocks [][]int, c *Constraints) error {
	base := c.StartTime
	spans := make([]int64, len(blocks))
	for i, b := range blocks {
		c.EndTime = math.MaxInt64 - 1
		if err := s.Schedule(a, b, c); err != nil {
			return err
		}
		spans[i] = c.EndTime - c.StartTime
	}
	if ra, ok := a.(ResourceAdapter); ok {
		ra.ClearSchedule()
	}
	c.EndTime = base
	for i, b := range blocks {
		c.EndTime += spans[i]
		if err := s.Schedule(a, b, c); err != nil {
			return err
		}
	}
	c.StartTime = base
	return nil
}

func (s *ALAPScheduler) run(a Adapter, instrs []int, end int64) (int64, error) {
	if err := checkInput(a, instrs); err != nil {
		return 0, err
	}
	ra, err := resources(a, s.Constrained)
	if err != nil {
		return 0, err
	}
	for _, x := range instrs {
		a.SetCStep(x, unscheduledALAP)
	}
	// keys are negated times: latest first
	q := pq.New(mergeNodes)
	for _, x := range instrs {
		q.Enqueue(-end, nodeSet{x})
	}
	start := end - 1
	for !q.IsEmpty() {
		key, set, _ := q.Dequeue()
		cur := -key
		order := []int(set)
		if s.Prioritize != nil {
			order = s.Prioritize(order)
		}
		for _, x := range order {
			if a.CStep(x) != unscheduledALAP {
				continue
			}
			lat := a.Latency(x)
			ready, known, req := true, true, cur
			for _, d := range a.Succs(x) {
				cy := a.CStep(d.Task)
				if cy == unscheduledALAP {
					ready, known = false, false
					break
				}
				if t := subSat(addSat(cy, lat), d.MinDelay); t < cur {
					ready = false
					req = min64(req, t)
				}
			}
			if !ready {
				if known {
					q.Enqueue(-req, nodeSet{x})
				}
				continue
			}
			for _, d := range a.Succs(x) {
				if a.CStep(d.Task) > addSat(cur-lat, d.MaxDelay) {
					return 0, notSchedulable(x, "deadline of successor %d exceeded at c-step %d", d.Task, cur-lat)
				}
			}
			exec := cur - lat
			// a combinational instruction at the very end must fit in the
			// schedule frame
			if exec == end {
				exec--
			}
			if ra != nil {
				if ok, pre, _ := ra.TryPin(x, exec); !ok {
					if pre < 0 || pre >= exec {
						return 0, notSchedulable(x, "no %s unit available up to c-step %d", a.Class(x), exec)
					}
					q.Enqueue(-(pre + lat), nodeSet{x})
					continue
				}
			}
			a.SetCStep(x, exec)
			start = min64(start, exec)
			for _, d := range a.Preds(x) {
				q.Enqueue(-addSat(subSat(exec, d.MinDelay), a.Latency(d.Task)), nodeSet{d.Task})
			}
		}
	}
	for _, x := range instrs {
		if a.CStep(x) == unscheduledALAP {
			return 0, notSchedulable(x, "dependencies never satisfied")
		}
	}
	return start, nil
}
