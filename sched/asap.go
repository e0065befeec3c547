// Copyright 2018 Denis Bernard <db047h@gmail.com>
// Licensed under the MIT license. See license text in the LICENSE file.

package sched

import (
	"github.com/db47h/hlsim/internal/pq"
	"github.com/pkg/errors"
)

// ASAPScheduler schedules every instruction as soon as its predecessors
// allow it.
//
type ASAPScheduler struct {
	// Constrained enables resource constraints. The adapter must then
	// implement ResourceAdapter.
	Constrained bool
}

// NewASAP returns a new ASAP scheduler.
//
func NewASAP(constrained bool) *ASAPScheduler {
	return &ASAPScheduler{Constrained: constrained}
}

// ASAP schedulers.
//
var (
	ASAP            = NewASAP(false)
	ConstrainedASAP = NewASAP(true)
)

func resources(a Adapter, constrained bool) (ResourceAdapter, error) {
	if !constrained {
		return nil, nil
	}
	ra, ok := a.(ResourceAdapter)
	if !ok {
		return nil, errors.New("resource constrained scheduling needs a ResourceAdapter")
	}
	return ra, nil
}

// Schedule implements BlockScheduler. It sets c.EndTime to the first c-step
// after the schedule.
//
func (s *ASAPScheduler) Schedule(a Adapter, instrs []int, c *Constraints) error {
	end, err := s.run(a, instrs, c.StartTime)
	if err != nil {
		return err
	}
	c.EndTime = end
	c.Profile(a)
	return nil
}

// ScheduleCFG implements CFGScheduler. Blocks are scheduled back to back.
//
func (s *ASAPScheduler) ScheduleCFG(a Adapter, blocks [][]int, c *Constraints) error {
	return FunctionScheduler(s).ScheduleCFG(a, blocks, c)
}

func (s *ASAPScheduler) run(a Adapter, instrs []int, start int64) (int64, error) {
	if err := checkInput(a, instrs); err != nil {
		return 0, err
	}
	ra, err := resources(a, s.Constrained)
	if err != nil {
		return 0, err
	}
	for _, x := range instrs {
		a.SetCStep(x, unscheduledASAP)
	}
	q := pq.New(mergeNodes)
	for _, x := range instrs {
		q.Enqueue(start, nodeSet{x})
	}
	end := start + 1
	for !q.IsEmpty() {
		cur, set, _ := q.Dequeue()
		for _, x := range set {
			if a.CStep(x) != unscheduledASAP {
				continue
			}
			ready, known, req := true, true, cur
			for _, d := range a.Preds(x) {
				cw := a.CStep(d.Task)
				if cw == unscheduledASAP {
					// will be queued again once the predecessor is scheduled
					ready, known = false, false
					break
				}
				if t := addSat(cw, d.MinDelay); t > cur {
					ready = false
					req = max64(req, t)
				}
			}
			if !ready {
				if known {
					q.Enqueue(req, nodeSet{x})
				}
				continue
			}
			for _, d := range a.Preds(x) {
				if addSat(a.CStep(d.Task), d.MaxDelay) < cur {
					return 0, notSchedulable(x, "deadline of predecessor %d exceeded at c-step %d", d.Task, cur)
				}
			}
			if ra != nil {
				if ok, _, post := ra.TryPin(x, cur); !ok {
					if post <= cur {
						return 0, notSchedulable(x, "no %s unit available from c-step %d", a.Class(x), cur)
					}
					q.Enqueue(post, nodeSet{x})
					continue
				}
			}
			a.SetCStep(x, cur)
			if lat := a.Latency(x); lat > 0 {
				end = max64(end, addSat(cur, lat))
			} else {
				end = max64(end, addSat(cur, 1))
			}
			for _, d := range a.Succs(x) {
				q.Enqueue(addSat(cur, d.MinDelay), nodeSet{d.Task})
			}
		}
	}
	for _, x := range instrs {
		if a.CStep(x) == unscheduledASAP {
			return 0, notSchedulable(x, "dependencies never satisfied")
		}
	}
	return end, nil
}
