// Copyright 2018 Denis Bernard <db047h@gmail.com>
// Licensed under the MIT license. See license text in the LICENSE file.

package hlsim

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/db47h/hlsim/internal/pq"
	units "github.com/docker/go-units"
	"github.com/pkg/errors"
	"github.com/rs/xid"
	"github.com/sirupsen/logrus"
)

// ErrInvalidOperation is returned when an operation is not permitted in the
// current state of a Context.
//
var ErrInvalidOperation = errors.New("invalid operation")

// State is the state of a simulation context.
//
type State int

// Context states.
//
const (
	Construction State = iota
	Elaboration
	DesignAnalysis
	SimulationReady
	Simulation
	SimulationPaused
	StopRequested
	Stopped
	Failed
)

var stateNames = [...]string{
	"Construction",
	"Elaboration",
	"DesignAnalysis",
	"SimulationReady",
	"Simulation",
	"SimulationPaused",
	"StopRequested",
	"Stopped",
	"Failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// An Option configures a Context.
//
type Option func(c *Context)

// WithResolution sets the duration of one tick. The default is 1ns.
//
func WithResolution(res Time) Option {
	return func(c *Context) { c.res = res }
}

// WithLogger sets the logger used by the context. The default is
// logrus.StandardLogger().
//
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *Context) { c.log = l }
}

type batch = []func()

func mergeBatch(b1, b2 batch) batch { return append(b1, b2...) }

// Context is a design context: it owns the processes of a design, simulated
// time and the event queue.
//
// A Context is not safe for concurrent use. Only WaitUntilRunning may be
// called from another goroutine.
//
type Context struct {
	id    xid.ID
	log   logrus.FieldLogger
	state State
	res   Time

	ticks     int64
	stopTicks int64
	queue     *pq.Queue[batch]
	deltas    int64
	inBatch   bool
	updates   []func()

	comps      []*Component
	procs      []*Process
	cur        *Process
	pidCounter int
	plsSlots   int
	failReason error

	pending       bool
	pendingNow    bool
	pendingFuture bool
	pendingTime   Time

	onEndOfConstruction []func() error
	onElaborate         []func() error
	onAnalysis          []func() error
	onEndOfElaboration  []func() error
	onStartOfSimulation []func()
	onDeltaCycle        []func()
	onStopping          []func()
	onStopped           []func()

	running     chan struct{}
	runningOnce sync.Once
}

// NewContext returns a new design context in the Construction state.
//
func NewContext(opts ...Option) *Context {
	c := &Context{
		id:          xid.New(),
		res:         NS,
		queue:       pq.New(mergeBatch),
		running:     make(chan struct{}),
		pendingTime: Infinite,
	}
	for _, o := range opts {
		o(c)
	}
	if c.log == nil {
		c.log = logrus.StandardLogger()
	}
	c.log = c.log.WithField("design", c.id.String())
	return c
}

// ID returns the unique ID of the context.
//
func (c *Context) ID() xid.ID { return c.id }

// Log returns the context's logger.
//
func (c *Context) Log() logrus.FieldLogger { return c.log }

// State returns the current state.
//
func (c *Context) State() State { return c.state }

// Ticks returns the current simulation time in ticks.
//
func (c *Context) Ticks() int64 { return c.ticks }

// StopTicks returns the time, in ticks, at which the last Simulate call was
// set to stop.
//
func (c *Context) StopTicks() int64 { return c.stopTicks }

// Resolution returns the duration of one tick.
//
func (c *Context) Resolution() Time { return c.res }

// SetResolution sets the duration of one tick. It can only be called during
// construction.
//
func (c *Context) SetResolution(res Time) error {
	if c.state != Construction {
		return errors.Wrapf(ErrInvalidOperation, "cannot change resolution in state %v", c.state)
	}
	if res <= 0 || res == Infinite {
		return errors.Errorf("invalid resolution %v", res)
	}
	c.res = res
	return nil
}

// CurrentTime returns the current simulation time.
//
func (c *Context) CurrentTime() Time { return Time(c.ticks) * c.res }

// DeltaCycleCount returns the number of delta cycles run so far.
//
func (c *Context) DeltaCycleCount() int64 { return c.deltas }

// FailReason returns the first process failure, if any.
//
func (c *Context) FailReason() error { return c.failReason }

// CurrentProcess returns the process being run, or nil.
//
func (c *Context) CurrentProcess() *Process { return c.cur }

// Processes returns all registered processes in PID order.
//
func (c *Context) Processes() []*Process { return c.procs }

// Components returns all components.
//
func (c *Context) Components() []*Component { return c.comps }

// IsPendingActivity returns true if there is scheduled activity left after
// the last call to Simulate.
//
func (c *Context) IsPendingActivity() bool { return c.pending }

// IsPendingActivityAtCurrentTime returns true if the next scheduled activity
// is at the current time.
//
func (c *Context) IsPendingActivityAtCurrentTime() bool { return c.pendingNow }

// IsPendingActivityAtFutureTime returns true if the next scheduled activity
// is at a future time.
//
func (c *Context) IsPendingActivityAtFutureTime() bool { return c.pendingFuture }

// TimeToPendingActivity returns the time left until the next scheduled
// activity, or Infinite if there is none.
//
func (c *Context) TimeToPendingActivity() Time { return c.pendingTime }

// OnEndOfConstruction registers a handler to run at the start of Elaborate.
// Handlers run most recent first. Handlers may register more handlers, which
// run after the current batch.
//
func (c *Context) OnEndOfConstruction(h func() error) {
	c.onEndOfConstruction = append([]func() error{h}, c.onEndOfConstruction...)
}

// OnElaborate registers an elaboration handler.
//
func (c *Context) OnElaborate(h func() error) { c.onElaborate = append(c.onElaborate, h) }

// OnAnalysis registers a design analysis handler.
//
func (c *Context) OnAnalysis(h func() error) { c.onAnalysis = append(c.onAnalysis, h) }

// OnEndOfElaboration registers a handler run after design analysis.
//
func (c *Context) OnEndOfElaboration(h func() error) {
	c.onEndOfElaboration = append(c.onEndOfElaboration, h)
}

// OnStartOfSimulation registers a handler run by the first call to Simulate.
//
func (c *Context) OnStartOfSimulation(h func()) {
	c.onStartOfSimulation = append(c.onStartOfSimulation, h)
}

// OnDeltaCycle registers a handler run at the end of every delta cycle.
//
func (c *Context) OnDeltaCycle(h func()) { c.onDeltaCycle = append(c.onDeltaCycle, h) }

// OnSimulationStopping registers a handler run when the simulation stops or
// fails.
//
func (c *Context) OnSimulationStopping(h func()) { c.onStopping = append(c.onStopping, h) }

// OnSimulationStopped registers a handler run once the simulation has stopped.
//
func (c *Context) OnSimulationStopped(h func()) { c.onStopped = append(c.onStopped, h) }

func (c *Context) setState(s State) {
	if c.state == s {
		return
	}
	c.log.WithFields(logrus.Fields{"from": c.state, "to": s}).Debug("state change")
	c.state = s
}

func runHandlers(hs []func() error) error {
	for _, h := range hs {
		if err := h(); err != nil {
			return err
		}
	}
	return nil
}

func runFuncs(hs []func()) {
	for _, h := range hs {
		h()
	}
}

// Elaborate runs the end of construction handlers, then the elaboration,
// design analysis and end of elaboration phases. On success, the context is
// ready for simulation.
//
func (c *Context) Elaborate() error {
	if c.state != Construction {
		return errors.Wrapf(ErrInvalidOperation, "Elaborate called in state %v", c.state)
	}
	for len(c.onEndOfConstruction) > 0 {
		hs := c.onEndOfConstruction
		c.onEndOfConstruction = nil
		if err := runHandlers(hs); err != nil {
			return c.elabFailed(err, "end of construction")
		}
	}
	c.setState(Elaboration)
	if err := runHandlers(c.onElaborate); err != nil {
		return c.elabFailed(err, "elaboration")
	}
	c.setState(DesignAnalysis)
	if err := runHandlers(c.onAnalysis); err != nil {
		return c.elabFailed(err, "design analysis")
	}
	if err := runHandlers(c.onEndOfElaboration); err != nil {
		return c.elabFailed(err, "end of elaboration")
	}
	for _, p := range c.procs {
		p.pls = make([]interface{}, c.plsSlots)
	}
	c.setState(SimulationReady)
	c.log.WithFields(logrus.Fields{"processes": len(c.procs), "components": len(c.comps)}).Debug("design elaborated")
	return nil
}

func (c *Context) elabFailed(err error, phase string) error {
	c.failReason = errors.Wrap(err, phase)
	c.setState(Failed)
	return c.failReason
}

// Schedule queues fn to run delta ticks from now. A zero delta runs fn in the
// next delta cycle.
//
func (c *Context) Schedule(fn func(), delta int64) error {
	if fn == nil || delta < 0 {
		return errors.Wrap(ErrInvalidOperation, "Schedule: nil function or negative delay")
	}
	if c.state == Stopped || c.state == Failed {
		return errors.Wrapf(ErrInvalidOperation, "Schedule called in state %v", c.state)
	}
	c.enqueue(addSat(c.ticks, delta), batch{fn})
	return nil
}

func (c *Context) enqueue(tick int64, b batch) {
	c.queue.Enqueue(tick, b)
}

// ScheduleUpdate queues fn for the update phase of the current delta cycle.
// Outside of a delta cycle, an update-only delta cycle is scheduled at the
// current time.
//
func (c *Context) ScheduleUpdate(fn func()) {
	c.updates = append(c.updates, fn)
	if !c.inBatch {
		c.enqueue(c.ticks, nil)
	}
}

func (c *Context) fail(err error) {
	if c.state == Failed {
		return
	}
	l := c.log
	if pe, ok := err.(*ProcessError); ok {
		l = l.WithFields(logrus.Fields{"process": pe.Process.name, "pid": pe.Process.pid})
	}
	l.WithError(err).Error("simulation failed")
	c.failReason = err
	c.setState(Failed)
}

func (c *Context) startSimulation() {
	runFuncs(c.onStartOfSimulation)
	for _, p := range c.procs {
		if p.state == Idle {
			p.state = Scheduled
			c.enqueue(c.ticks, batch{p.start})
		}
	}
	c.runningOnce.Do(func() { close(c.running) })
}

// WaitUntilRunning blocks until the simulation has started or ctx is done.
//
func (c *Context) WaitUntilRunning(ctx context.Context) error {
	select {
	case <-c.running:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Simulate runs the simulation for delta ticks.
//
// With delta == 0, Simulate runs a single delta cycle, if any is pending at
// the current time. Otherwise, every batch of activity scheduled before
// Ticks()+delta is run and time advances to Ticks()+delta.
//
// Simulate returns ErrInvalidOperation when called before elaboration or
// after the simulation stopped. If a process failed, Simulate returns the
// failure, now and on every subsequent call.
//
func (c *Context) Simulate(delta int64) error {
	if delta < 0 {
		return errors.Wrapf(ErrInvalidOperation, "Simulate: negative delta %d", delta)
	}
	switch c.state {
	case SimulationReady:
		c.setState(Simulation)
		c.startSimulation()
	case SimulationPaused:
		c.setState(Simulation)
	case StopRequested:
	case Failed:
		return c.failReason
	default:
		return errors.Wrapf(ErrInvalidOperation, "Simulate called in state %v", c.state)
	}

	start := time.Now()
	d0 := c.deltas
	single := delta == 0
	c.stopTicks = addSat(c.ticks, delta)

	for c.state == Simulation && !c.queue.IsEmpty() {
		next, _, _ := c.queue.Peek()
		if (single && next != c.ticks) || (!single && next >= c.stopTicks) {
			break
		}
		_, b, _ := c.queue.Dequeue()
		c.ticks = next
		c.runBatch(b)
		if single {
			break
		}
	}
	if !single && c.state == Simulation && c.stopTicks != math.MaxInt64 {
		c.ticks = c.stopTicks
	}

	if c.queue.IsEmpty() {
		c.pending, c.pendingNow, c.pendingFuture = false, false, false
		c.pendingTime = Infinite
		if c.state == Simulation && !c.hasSuspended() {
			c.setState(StopRequested)
		}
	} else {
		next, _, _ := c.queue.Peek()
		c.pending = true
		c.pendingNow = next <= c.ticks
		c.pendingFuture = !c.pendingNow
		if c.pendingNow {
			c.pendingTime = 0
		} else {
			c.pendingTime = Time(next-c.ticks) * c.res
		}
	}

	c.log.WithFields(logrus.Fields{
		"ticks":  c.ticks,
		"deltas": c.deltas - d0,
		"wall":   units.HumanDuration(time.Since(start)),
	}).Debug("simulation step done")

	switch c.state {
	case Failed:
		runFuncs(c.onStopping)
		return c.failReason
	case StopRequested:
		c.stop()
	default:
		c.setState(SimulationPaused)
	}
	return nil
}

// SimulateTime runs the simulation for the given duration. Infinite runs
// until there is nothing left to do.
//
func (c *Context) SimulateTime(t Time) error {
	if t == Infinite {
		return c.Simulate(math.MaxInt64 - c.ticks)
	}
	return c.Simulate(t.Ticks(c.res))
}

func (c *Context) runBatch(b batch) {
	c.inBatch = true
	for _, fn := range b {
		fn()
		if c.state == Failed {
			break
		}
	}
	// update phase
	for len(c.updates) > 0 && c.state != Failed {
		us := c.updates
		c.updates = nil
		runFuncs(us)
	}
	runFuncs(c.onDeltaCycle)
	c.deltas++
	c.inBatch = false
}

func (c *Context) hasSuspended() bool {
	for _, p := range c.procs {
		if p.state == Suspended {
			return true
		}
	}
	return false
}

func (c *Context) stop() {
	c.setState(StopRequested)
	runFuncs(c.onStopping)
	runFuncs(c.onStopped)
	c.setState(Stopped)
	c.log.WithFields(logrus.Fields{"ticks": c.ticks, "time": c.CurrentTime(), "deltas": c.deltas}).Info("simulation stopped")
}

// Stop requests the simulation to stop.
//
// Called from a process body, Stop marks the simulation for stopping and
// returns ErrExit, which the process should return:
//
//	if done {
//		return p.Context().Stop()
//	}
//
// When the simulation is paused, Stop runs the stop handlers and returns nil.
//
func (c *Context) Stop() error {
	switch c.state {
	case Simulation, StopRequested:
		c.log.Info("stop requested")
		c.setState(StopRequested)
		if c.cur != nil {
			return ErrExit
		}
		return nil
	case SimulationReady, SimulationPaused:
		c.stop()
		return nil
	default:
		return errors.Wrapf(ErrInvalidOperation, "Stop called in state %v", c.state)
	}
}

// EndSimulation terminates a paused simulation: it requests a stop and runs
// one last Simulate step to let the stop handlers run.
//
func (c *Context) EndSimulation() error {
	switch c.state {
	case SimulationReady, SimulationPaused, StopRequested:
	default:
		return errors.Wrapf(ErrInvalidOperation, "EndSimulation called in state %v", c.state)
	}
	c.setState(StopRequested)
	return c.Simulate(1)
}
