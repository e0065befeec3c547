// Copyright 2018 Denis Bernard <db047h@gmail.com>
// Licensed under the MIT license. See license text in the LICENSE file.

package sched

// SequentialScheduler schedules instructions one after the other, in input
// order, ignoring dependencies and any parallelism. It gives a worst case
// reference.
//
type SequentialScheduler struct{}

// Sequential is the sequential scheduler.
//
var Sequential = SequentialScheduler{}

// Schedule implements BlockScheduler.
//
func (SequentialScheduler) Schedule(a Adapter, instrs []int, c *Constraints) error {
	cur := c.StartTime
	for _, x := range instrs {
		a.SetCStep(x, cur)
		cur = addSat(cur, a.Latency(x))
	}
	c.EndTime = cur
	c.Profile(a)
	return nil
}

// ScheduleCFG implements CFGScheduler.
//
func (s SequentialScheduler) ScheduleCFG(a Adapter, blocks [][]int, c *Constraints) error {
	return FunctionScheduler(s).ScheduleCFG(a, blocks, c)
}

// OnePerCStepScheduler places exactly one instruction per c-step, in input
// order, while respecting dependency delays. Predecessors must come before
// their successors in the input.
//
type OnePerCStepScheduler struct{}

// OneInstructionPerCStep is the one instruction per c-step scheduler.
//
var OneInstructionPerCStep = OnePerCStepScheduler{}

// Schedule implements BlockScheduler.
//
func (OnePerCStepScheduler) Schedule(a Adapter, instrs []int, c *Constraints) error {
	if err := checkInput(a, instrs); err != nil {
		return err
	}
	for _, x := range instrs {
		a.SetCStep(x, unscheduledASAP)
	}
	cur := c.StartTime
	for _, x := range instrs {
		t := cur
		preds := a.Preds(x)
		for _, d := range preds {
			cp := a.CStep(d.Task)
			if cp == unscheduledASAP {
				return notSchedulable(x, "predecessor %d comes later in input order", d.Task)
			}
			t = max64(t, addSat(cp, d.MinDelay))
		}
		for _, d := range preds {
			if t-a.CStep(d.Task) > d.MaxDelay {
				return notSchedulable(x, "deadline of predecessor %d exceeded at c-step %d", d.Task, t)
			}
		}
		a.SetCStep(x, t)
		cur = t + 1
	}
	c.EndTime = cur
	c.Profile(a)
	return nil
}

// ScheduleCFG implements CFGScheduler.
//
func (s OnePerCStepScheduler) ScheduleCFG(a Adapter, blocks [][]int, c *Constraints) error {
	return FunctionScheduler(s).ScheduleCFG(a, blocks, c)
}

type functionScheduler struct {
	bs BlockScheduler
}

// FunctionScheduler returns a CFGScheduler that schedules blocks back to back
// with bs: each block starts at the end time of the previous one.
//
func FunctionScheduler(bs BlockScheduler) CFGScheduler {
	return functionScheduler{bs}
}

func (f functionScheduler) ScheduleCFG(a Adapter, blocks [][]int, c *Constraints) error {
	for _, b := range blocks {
		if err := f.bs.Schedule(a, b, c); err != nil {
			return err
		}
		c.StartTime = c.EndTime
	}
	return nil
}

// ScheduleBlocks schedules blocks back to back with bs, starting at c-step 0.
// It returns the start time of every block followed by the end time of the
// last one. Only forward schedulers, which set Constraints.EndTime from
// Constraints.StartTime, make sense here.
//
func ScheduleBlocks(bs BlockScheduler, a Adapter, blocks [][]int) ([]int64, error) {
	c := NewConstraints()
	times := make([]int64, 0, len(blocks)+1)
	for _, b := range blocks {
		times = append(times, c.StartTime)
		if err := bs.Schedule(a, b, c); err != nil {
			return times, err
		}
		c.StartTime = c.EndTime
	}
	return append(times, c.StartTime), nil
}
