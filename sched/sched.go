// Copyright 2018 Denis Bernard <db047h@gmail.com>
// Licensed under the MIT license. See license text in the LICENSE file.

// Package sched implements high-level synthesis scheduling algorithms: they
// assign every instruction of a basic block, or of a whole control flow
// graph, to a control step (c-step) under latency, dependency and resource
// constraints.
//
// The algorithms do not know about the caller's instruction type. They work
// on integer handles through an Adapter:
//
//	g := sched.NewGraph()
//	a := g.Add("a", "alu", 1)
//	b := g.Add("b", "alu", 1)
//	g.Dep(a, b, 1, sched.Unbounded)
//	c := sched.NewConstraints()
//	err := sched.ASAP.Schedule(g, g.Instructions(), c)
//
package sched

import (
	"math"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Scheduling errors.
//
var (
	// ErrNotSchedulable is returned when no schedule satisfies the
	// constraints: a dependency deadline is missed or resources are
	// exhausted.
	ErrNotSchedulable = errors.New("not schedulable")
	// ErrInvalidGraph reports dependencies that point outside the set of
	// instructions being scheduled.
	ErrInvalidGraph = errors.New("invalid instruction graph")
)

// Unbounded is the maximum delay of a dependency without deadline.
//
const Unbounded int64 = math.MaxInt64

// markers used by ASAP and ALAP for instructions not scheduled yet.
const (
	unscheduledASAP = math.MinInt64
	unscheduledALAP = math.MaxInt64
)

// A Dependency is a directed edge of the instruction graph. Task is the
// handle of the other end of the edge. The consumer must start at least
// MinDelay and at most MaxDelay c-steps after the producer.
//
type Dependency struct {
	Task     int
	MinDelay int64
	MaxDelay int64
}

// An Adapter gives the scheduling algorithms access to the instructions
// being scheduled.
//
type Adapter interface {
	// Latency returns the number of c-steps instruction i takes to complete.
	// Zero is for combinational operations.
	Latency(i int) int64
	// Class returns the resource class of i. Instructions of the same class
	// compete for the same hardware units.
	Class(i int) string
	// Preds returns the incoming dependencies of i; Task is the producer.
	Preds(i int) []Dependency
	// Succs returns the outgoing dependencies of i; Task is the consumer.
	Succs(i int) []Dependency
	CStep(i int) int64
	SetCStep(i int, c int64)
}

// A ResourceAdapter is an Adapter that manages shared resources.
//
type ResourceAdapter interface {
	Adapter
	// TryPin tries to reserve the resources needed by i at c-step c. On
	// failure, pre and post are the closest earlier and later c-steps at
	// which a retry may succeed.
	TryPin(i int, c int64) (ok bool, pre, post int64)
	// ClearSchedule releases all reservations.
	ClearSchedule()
}

// Dataflow is implemented by adapters that know which values instructions
// read and write. Force-directed scheduling uses it to minimize buses and
// registers.
//
type Dataflow interface {
	Operands(i int) []int
	Results(i int) []int
}

// A BlockScheduler schedules a single basic block.
//
type BlockScheduler interface {
	Schedule(a Adapter, instrs []int, c *Constraints) error
}

// A CFGScheduler schedules all basic blocks of a control flow graph, in order.
//
type CFGScheduler interface {
	ScheduleCFG(a Adapter, blocks [][]int, c *Constraints) error
}

// Constraints holds the time frame of a scheduling pass. Schedulers update
// StartTime and EndTime to the realized schedule.
//
type Constraints struct {
	StartTime int64
	EndTime   int64
	// SchedScale caps the schedule length searched by force-directed
	// scheduling, relative to the ASAP schedule length.
	SchedScale float64
	// Profilers are updated after scheduling.
	Profilers []*Profiler
	// Log, if not nil, receives debug output.
	Log logrus.FieldLogger
}

// NewConstraints returns constraints starting at c-step 0 with a 1.1 scale
// factor.
//
func NewConstraints() *Constraints {
	return &Constraints{SchedScale: 1.1}
}

func (c *Constraints) debug() logrus.FieldLogger {
	if c.Log == nil {
		return nopLog
	}
	return c.Log
}

var nopLog = func() logrus.FieldLogger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}()

// Profile updates all profilers from the c-steps in a.
//
func (c *Constraints) Profile(a Adapter) {
	for _, p := range c.Profilers {
		p.extract(a)
	}
}

// A Profiler measures the c-step span between two instructions.
//
type Profiler struct {
	Name        string
	First, Last int
	FirstCStep  int64
	LastCStep   int64
	Valid       bool
}

// NewProfiler returns a profiler for the range of instructions first..last.
//
func NewProfiler(name string, first, last int) *Profiler {
	return &Profiler{Name: name, First: first, Last: last}
}

// Span returns the number of c-steps spanned by the profiled range.
//
func (p *Profiler) Span() int64 {
	return p.LastCStep - p.FirstCStep + 1
}

func (p *Profiler) extract(a Adapter) {
	f, l := a.CStep(p.First), a.CStep(p.Last)
	if !isScheduled(f) || !isScheduled(l) {
		p.FirstCStep, p.LastCStep, p.Valid = 1, 0, false
		return
	}
	p.FirstCStep, p.LastCStep, p.Valid = f, l, true
}

func isScheduled(c int64) bool {
	return c != unscheduledASAP && c != unscheduledALAP
}

// checkInput verifies that all dependencies of instrs stay within instrs.
//
func checkInput(a Adapter, instrs []int) error {
	in := make(map[int]struct{}, len(instrs))
	for _, i := range instrs {
		in[i] = struct{}{}
	}
	for _, i := range instrs {
		for _, d := range a.Preds(i) {
			if _, ok := in[d.Task]; !ok {
				return errors.Wrapf(ErrInvalidGraph, "instruction %d: predecessor %d outside of block", i, d.Task)
			}
		}
		for _, d := range a.Succs(i) {
			if _, ok := in[d.Task]; !ok {
				return errors.Wrapf(ErrInvalidGraph, "instruction %d: successor %d outside of block", i, d.Task)
			}
		}
	}
	return nil
}

func notSchedulable(i int, format string, args ...interface{}) error {
	return errors.Wrapf(ErrNotSchedulable, "instruction %d: "+format, append([]interface{}{i}, args...)...)
}

// addSat returns a+b, saturated to the int64 range.
//
func addSat(a, b int64) int64 {
	switch {
	case b > 0 && a > math.MaxInt64-b:
		return math.MaxInt64
	case b < 0 && a < math.MinInt64-b:
		return math.MinInt64
	}
	return a + b
}

func subSat(a, b int64) int64 {
	if b == math.MinInt64 {
		return addSat(addSat(a, math.MaxInt64), 1)
	}
	return addSat(a, -b)
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

// overlay redirects c-step reads and writes of an adapter to a private map.
//
type overlay struct {
	Adapter
	cstep map[int]int64
}

func newOverlay(a Adapter) *overlay {
	return &overlay{Adapter: a, cstep: make(map[int]int64)}
}

func (o *overlay) CStep(i int) int64       { return o.cstep[i] }
func (o *overlay) SetCStep(i int, c int64) { o.cstep[i] = c }

// nodeSet is an insertion ordered set of instruction handles.
//
type nodeSet []int

func mergeNodes(s1, s2 nodeSet) nodeSet {
next:
	for _, x := range s2 {
		for _, y := range s1 {
			if x == y {
				continue next
			}
		}
		s1 = append(s1, x)
	}
	return s1
}
