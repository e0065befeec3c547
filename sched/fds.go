// Copyright 2018 Denis Bernard <db047h@gmail.com>
// Licensed under the MIT license. See license text in the LICENSE file.

package sched

import (
	"math"

	"github.com/sirupsen/logrus"
)

// ForceDirected implements force-directed scheduling: instructions with
// scheduling freedom are placed so that the expected usage of every resource
// class is spread evenly over the schedule.
//
// Each round evaluates the total force of every unscheduled instruction at
// every c-step of its mobility window and pins the pair with the lowest force.
// Ties go to the instruction that comes first in input order, then to the
// earliest c-step.
//
// MinimizeBuses and MinimizeRegisters need an adapter that implements
// Dataflow and are ignored otherwise.
//
type ForceDirected struct {
	// Constrained enables resource constraints. The adapter must then
	// implement ResourceAdapter. A pin rejected by the adapter is moved to
	// the closest earlier c-step in the mobility window, or to the closest
	// later one if no earlier c-step is free.
	Constrained bool
	// MinimizeBuses weights distribution graphs by the number of values
	// moved by each instruction.
	MinimizeBuses bool
	// MinimizeRegisters adds a storage pressure term to the self force.
	MinimizeRegisters bool
}

// Schedule implements BlockScheduler.
//
// The mobility window of each instruction is given by an ASAP schedule from
// c.StartTime and an ALAP schedule ending at c.StartTime plus the ASAP length
// scaled by c.SchedScale (and no longer than what the instruction level
// concurrency of the ASAP schedule justifies). On return, c.EndTime is the
// end of the realized schedule.
//
func (f *ForceDirected) Schedule(a Adapter, instrs []int, c *Constraints) error {
	if err := checkInput(a, instrs); err != nil {
		return err
	}
	ra, err := resources(a, f.Constrained)
	if err != nil {
		return err
	}
	start := c.StartTime
	asap, alap := newOverlay(a), newOverlay(a)
	end, err := ASAP.run(asap, instrs, start)
	if err != nil {
		return err
	}
	span := end - start
	extent := min64(span+maxConcurrency(asap, instrs), int64(math.Ceil(float64(span)*c.SchedScale)))
	if extent < span {
		extent = span
	}
	if _, err = ALAP.run(alap, instrs, start+extent); err != nil {
		return err
	}
	s := newFDS(f, a, instrs, asap.cstep, alap.cstep, c.debug())
	s.ra = ra
	if err = s.run(); err != nil {
		return err
	}
	c.EndTime = endTime(a, instrs, start)
	c.Profile(a)
	return nil
}

// ScheduleCFG implements CFGScheduler.
//
func (f *ForceDirected) ScheduleCFG(a Adapter, blocks [][]int, c *Constraints) error {
	return FunctionScheduler(f).ScheduleCFG(a, blocks, c)
}

// maxConcurrency sums, over all c-steps, the largest number of same class
// instructions in excess of one.
//
func maxConcurrency(a Adapter, instrs []int) int64 {
	counts := make(map[int64]map[string]int64)
	for _, i := range instrs {
		c := a.CStep(i)
		m := counts[c]
		if m == nil {
			m = make(map[string]int64)
			counts[c] = m
		}
		m[a.Class(i)]++
	}
	var sum int64
	for _, m := range counts {
		var mx int64
		for _, n := range m {
			mx = max64(mx, n-1)
		}
		sum += mx
	}
	return sum
}

func endTime(a Adapter, instrs []int, start int64) int64 {
	end := start + 1
	for _, i := range instrs {
		lat := a.Latency(i)
		if lat == 0 {
			lat = 1
		}
		end = max64(end, addSat(a.CStep(i), lat))
	}
	return end
}

// distribution graph of one resource class
type dgraph map[int64]float64

type fds struct {
	a      Adapter
	ra     ResourceAdapter
	df     Dataflow
	buses  bool
	regs   bool
	instrs []int
	pos    map[int]int
	asap0  map[int]int64
	alap0  map[int]int64
	asap   []int64
	alap   []int64
	pinned []bool
	id     []float64
	dg     map[string]dgraph
	// value number -> consumer positions
	consumers map[int][]int
	log       logrus.FieldLogger
}

func newFDS(f *ForceDirected, a Adapter, instrs []int, asap, alap map[int]int64, log logrus.FieldLogger) *fds {
	n := len(instrs)
	s := &fds{
		a:      a,
		instrs: instrs,
		pos:    make(map[int]int, n),
		asap0:  asap,
		alap0:  alap,
		asap:   make([]int64, n),
		alap:   make([]int64, n),
		pinned: make([]bool, n),
		id:     make([]float64, n),
		dg:     make(map[string]dgraph),
		log:    log,
	}
	if df, ok := a.(Dataflow); ok {
		s.df = df
		s.buses = f.MinimizeBuses
		s.regs = f.MinimizeRegisters
	}
	for k, i := range instrs {
		s.pos[i] = k
		s.asap[k] = asap[i]
		s.alap[k] = alap[i]
		a.SetCStep(i, unscheduledASAP)
	}
	return s
}

func (s *fds) run() error {
	if s.buses || s.regs {
		s.consumers = make(map[int][]int)
		for k, i := range s.instrs {
			for _, v := range s.df.Operands(i) {
				s.consumers[v] = append(s.consumers[v], k)
			}
		}
	}
	for k := range s.instrs {
		cl := s.a.Class(s.instrs[k])
		if s.dg[cl] == nil {
			s.dg[cl] = make(dgraph)
		}
		s.consume(k, 1)
	}
	for k := range s.instrs {
		s.computeID(k)
	}
	return s.schedule()
}

func (s *fds) prob(k int, c int64) float64 {
	switch {
	case c < s.asap[k] || c > s.alap[k]:
		return 0
	case s.pinned[k]:
		return 1
	}
	return 1 / float64(s.alap[k]-s.asap[k]+1)
}

// nOpInOut counts the results of k plus the operands for which k is the most
// likely consumer at c-step c.
//
func (s *fds) nOpInOut(k int, c int64) float64 {
	i := s.instrs[k]
	n := len(s.df.Results(i))
	for _, v := range s.df.Operands(i) {
		cs := s.consumers[v]
		best, maxProb := cs[0], s.prob(cs[0], c)
		for _, x := range cs[1:] {
			if p := s.prob(x, c); p > maxProb {
				best, maxProb = x, p
			}
		}
		if best == k {
			n++
		}
	}
	return float64(n)
}

// consume adds (sign > 0) or removes (sign < 0) the probability mass of k
// from its class distribution graph.
//
func (s *fds) consume(k int, sign float64) {
	dg := s.dg[s.a.Class(s.instrs[k])]
	p := sign / float64(s.alap[k]-s.asap[k]+1)
	for c := s.asap[k]; c <= s.alap[k]; c++ {
		if s.buses {
			dg[c] += p * s.nOpInOut(k, c)
		} else {
			dg[c] += p
		}
	}
}

func (s *fds) computeID(k int) {
	dg := s.dg[s.a.Class(s.instrs[k])]
	h := float64(s.alap[k] - s.asap[k] + 1)
	var id float64
	for c := s.asap[k]; c <= s.alap[k]; c++ {
		id += dg[c] / h
	}
	s.id[k] = id
}

func (s *fds) storageDG(k int) float64 {
	i := s.instrs[k]
	myASAP, myALAP := s.asap0[i], s.alap0[i]
	var (
		sum   float64
		count int
	)
	for _, v := range s.df.Results(i) {
		cs := s.consumers[v]
		if len(cs) == 0 {
			continue
		}
		maxASAP, maxALAP := s.asap[cs[0]], s.alap[cs[0]]
		for _, x := range cs[1:] {
			maxASAP = max64(maxASAP, s.asap[x])
			maxALAP = max64(maxALAP, s.alap[x])
		}
		asapLife := maxASAP - myASAP
		alapLife := maxALAP - myALAP
		maxLife := maxALAP - myASAP
		avgLife := float64(asapLife+alapLife+maxLife) / 3
		var overlap int64
		if myALAP < maxASAP {
			overlap = maxASAP - myALAP
		}
		if maxLife-overlap > 0 {
			sum += (avgLife - float64(overlap)) / float64(maxLife-overlap)
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

// force returns the force of restricting k to the c-steps [nt, nb]. An empty
// range, or a pinned instruction outside of it, gives an infinite force.
//
func (s *fds) force(k int, nt, nb int64) float64 {
	nt, nb = max64(nt, s.asap[k]), min64(nb, s.alap[k])
	if nt > nb {
		return math.Inf(1)
	}
	dg := s.dg[s.a.Class(s.instrs[k])]
	h := float64(nb - nt + 1)
	var sum float64
	for c := nt; c <= nb; c++ {
		sum += dg[c] / h
	}
	return sum - s.id[k]
}

func (s *fds) selfForce(k int, c int64) float64 {
	f := s.force(k, c, c)
	if s.regs {
		f += s.storageDG(k)
	}
	return f
}

func (s *fds) totalForce(k int, c int64) float64 {
	i := s.instrs[k]
	f := s.selfForce(k, c)
	for _, d := range s.a.Preds(i) {
		p := s.pos[d.Task]
		f += s.force(p, s.asap[p], subSat(c, d.MinDelay))
	}
	for _, d := range s.a.Succs(i) {
		p := s.pos[d.Task]
		f += s.force(p, addSat(c, d.MinDelay), s.alap[p])
	}
	return f
}

func (s *fds) neighbors(k int, stack []int) []int {
	i := s.instrs[k]
	for _, d := range s.a.Preds(i) {
		stack = append(stack, s.pos[d.Task])
	}
	for _, d := range s.a.Succs(i) {
		stack = append(stack, s.pos[d.Task])
	}
	return stack
}

// recompute propagates the window change of k to all instructions connected
// to it.
//
func (s *fds) recompute(k int) error {
	stack := s.neighbors(k, nil)
	changed := []int{k}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		i := s.instrs[cur]
		asap, alap := s.asap[cur], s.alap[cur]
		for _, d := range s.a.Preds(i) {
			p := s.pos[d.Task]
			asap = max64(asap, addSat(s.asap[p], d.MinDelay))
			alap = min64(alap, addSat(s.alap[p], d.MaxDelay))
		}
		for _, d := range s.a.Succs(i) {
			p := s.pos[d.Task]
			alap = min64(alap, subSat(s.alap[p], d.MinDelay))
			asap = max64(asap, subSat(s.asap[p], d.MaxDelay))
		}
		if asap > alap {
			return notSchedulable(i, "empty mobility window [%d, %d]", asap, alap)
		}
		if asap != s.asap[cur] || alap != s.alap[cur] {
			s.consume(cur, -1)
			s.asap[cur], s.alap[cur] = asap, alap
			s.consume(cur, 1)
			changed = append(changed, cur)
			stack = s.neighbors(cur, stack)
		}
	}
	for _, k := range changed {
		s.computeID(k)
	}
	return nil
}

func (s *fds) pin(k int, c int64) error {
	s.a.SetCStep(s.instrs[k], c)
	s.pinned[k] = true
	if s.asap[k] == s.alap[k] {
		return nil
	}
	s.consume(k, -1)
	s.asap[k], s.alap[k] = c, c
	s.consume(k, 1)
	return s.recompute(k)
}

func (s *fds) schedule() error {
	unscheduled := make([]int, len(s.instrs))
	for k := range unscheduled {
		unscheduled[k] = k
	}
	for len(unscheduled) > 0 {
		best, bestC, minForce := -1, int64(0), math.Inf(1)
		for j, k := range unscheduled {
			if s.asap[k] > s.alap[k] {
				return notSchedulable(s.instrs[k], "empty mobility window [%d, %d]", s.asap[k], s.alap[k])
			}
			for c := s.asap[k]; c <= s.alap[k]; c++ {
				if f := s.totalForce(k, c); f < minForce {
					best, bestC, minForce = j, c, f
				}
			}
		}
		if best < 0 {
			return notSchedulable(s.instrs[unscheduled[0]], "no c-step left with finite force")
		}
		k := unscheduled[best]
		if s.ra != nil {
			c, err := s.reserve(k, bestC)
			if err != nil {
				return err
			}
			bestC = c
		}
		s.log.WithFields(logrus.Fields{
			"instr": s.instrs[k],
			"cstep": bestC,
			"force": minForce,
		}).Debug("fds: pin")
		if err := s.pin(k, bestC); err != nil {
			return err
		}
		unscheduled = append(unscheduled[:best], unscheduled[best+1:]...)
	}
	return nil
}

// reserve pins the resources of k at c-step c or, failing that, at the
// closest earlier then the closest later c-step of its window where they are
// available.
//
func (s *fds) reserve(k int, c int64) (int64, error) {
	i := s.instrs[k]
	ok, pre, post := s.ra.TryPin(i, c)
	if ok {
		return c, nil
	}
	for _, t := range []int64{pre, post} {
		if t < s.asap[k] || t > s.alap[k] || t == c {
			continue
		}
		if ok, _, _ = s.ra.TryPin(i, t); ok {
			return t, nil
		}
	}
	return 0, notSchedulable(i, "no %s unit available in c-steps [%d, %d]", s.a.Class(i), s.asap[k], s.alap[k])
}
