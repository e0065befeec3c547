// Copyright 2018 Denis Bernard <db047h@gmail.com>
// Licensed under the MIT license. See license text in the LICENSE file.

package sched

import "github.com/pkg/errors"

type node struct {
	name    string
	class   string
	latency int64
	preds   []Dependency
	succs   []Dependency
	cstep   int64
	reads   []int
	writes  []int
}

// Graph is an instruction graph stored in an arena. Instruction handles are
// indices into the arena, in creation order. Graph implements
// ResourceAdapter and Dataflow.
//
// Resource classes with a limit set by Limit hold at most that many
// instructions in any c-step. An instruction occupies its unit for
// max(latency, 1) c-steps.
//
type Graph struct {
	nodes  []node
	limits map[string]int
	busy   map[string]map[int64]int
	pins   map[int]int64
}

// NewGraph returns a new empty graph.
//
func NewGraph() *Graph {
	return &Graph{
		limits: make(map[string]int),
		busy:   make(map[string]map[int64]int),
		pins:   make(map[int]int64),
	}
}

// Add adds an instruction and returns its handle.
//
func (g *Graph) Add(name, class string, latency int64) int {
	if latency < 0 {
		panic("negative latency")
	}
	g.nodes = append(g.nodes, node{name: name, class: class, latency: latency, cstep: unscheduledASAP})
	return len(g.nodes) - 1
}

// Dep adds a dependency: to must start at least min and at most max c-steps
// after from.
//
func (g *Graph) Dep(from, to int, min, max int64) error {
	if from < 0 || from >= len(g.nodes) || to < 0 || to >= len(g.nodes) {
		return errors.Wrapf(ErrInvalidGraph, "dependency %d -> %d: no such instruction", from, to)
	}
	if min < 0 || max < min {
		return errors.Wrapf(ErrInvalidGraph, "dependency %d -> %d: invalid delays [%d, %d]", from, to, min, max)
	}
	g.nodes[to].preds = append(g.nodes[to].preds, Dependency{Task: from, MinDelay: min, MaxDelay: max})
	g.nodes[from].succs = append(g.nodes[from].succs, Dependency{Task: to, MinDelay: min, MaxDelay: max})
	return nil
}

// Flow adds a data dependency: to reads the value from writes, and must start
// once from has completed. The value number is returned.
//
func (g *Graph) Flow(from, to int) (int, error) {
	if from < 0 || from >= len(g.nodes) {
		return 0, errors.Wrapf(ErrInvalidGraph, "flow %d -> %d: no such instruction", from, to)
	}
	if err := g.Dep(from, to, g.nodes[from].latency, Unbounded); err != nil {
		return 0, err
	}
	v := from
	if !contains(g.nodes[from].writes, v) {
		g.nodes[from].writes = append(g.nodes[from].writes, v)
	}
	g.nodes[to].reads = append(g.nodes[to].reads, v)
	return v, nil
}

func contains(s []int, v int) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

// Limit sets the number of units available for a resource class. A limit <= 0
// removes the limit.
//
func (g *Graph) Limit(class string, n int) {
	if n <= 0 {
		delete(g.limits, class)
		return
	}
	g.limits[class] = n
}

// Len returns the number of instructions.
//
func (g *Graph) Len() int { return len(g.nodes) }

// Instructions returns the handles of all instructions.
//
func (g *Graph) Instructions() []int {
	is := make([]int, len(g.nodes))
	for i := range is {
		is[i] = i
	}
	return is
}

// Name returns the name of instruction i.
//
func (g *Graph) Name(i int) string { return g.nodes[i].name }

// Latency implements Adapter.
//
func (g *Graph) Latency(i int) int64 { return g.nodes[i].latency }

// Class implements Adapter.
//
func (g *Graph) Class(i int) string { return g.nodes[i].class }

// Preds implements Adapter.
//
func (g *Graph) Preds(i int) []Dependency { return g.nodes[i].preds }

// Succs implements Adapter.
//
func (g *Graph) Succs(i int) []Dependency { return g.nodes[i].succs }

// CStep implements Adapter.
//
func (g *Graph) CStep(i int) int64 { return g.nodes[i].cstep }

// SetCStep implements Adapter.
//
func (g *Graph) SetCStep(i int, c int64) { g.nodes[i].cstep = c }

// Operands implements Dataflow.
//
func (g *Graph) Operands(i int) []int { return g.nodes[i].reads }

// Results implements Dataflow.
//
func (g *Graph) Results(i int) []int { return g.nodes[i].writes }

func (g *Graph) occupancy(i int) int64 {
	if l := g.nodes[i].latency; l > 0 {
		return l
	}
	return 1
}

func (g *Graph) fits(class string, c, n int64, limit int) bool {
	b := g.busy[class]
	for t := c; t < c+n; t++ {
		if b[t] >= limit {
			return false
		}
	}
	return true
}

// TryPin implements ResourceAdapter. A rejected instruction gets the closest
// earlier c-step where it fits (or -1) as pre, and the closest later one as
// post.
//
func (g *Graph) TryPin(i int, c int64) (ok bool, pre, post int64) {
	g.release(i)
	class := g.nodes[i].class
	limit, limited := g.limits[class]
	n := g.occupancy(i)
	if limited && !g.fits(class, c, n, limit) {
		pre = -1
		for t := c - 1; t >= 0; t-- {
			if g.fits(class, t, n, limit) {
				pre = t
				break
			}
		}
		post = c + 1
		for !g.fits(class, post, n, limit) {
			post++
		}
		return false, pre, post
	}
	b := g.busy[class]
	if b == nil {
		b = make(map[int64]int)
		g.busy[class] = b
	}
	for t := c; t < c+n; t++ {
		b[t]++
	}
	g.pins[i] = c
	return true, c, c
}

func (g *Graph) release(i int) {
	c, ok := g.pins[i]
	if !ok {
		return
	}
	b := g.busy[g.nodes[i].class]
	for t := c; t < c+g.occupancy(i); t++ {
		if b[t]--; b[t] == 0 {
			delete(b, t)
		}
	}
	delete(g.pins, i)
}

// ClearSchedule implements ResourceAdapter.
//
func (g *Graph) ClearSchedule() {
	g.busy = make(map[string]map[int64]int)
	g.pins = make(map[int]int64)
}
