// Copyright 2018 Denis Bernard <db047h@gmail.com>
// Licensed under the MIT license. See license text in the LICENSE file.

package hlsim

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Process errors.
//
var (
	// ErrExit is returned by a process body to terminate the process. It is
	// never reported as a failure.
	ErrExit = errors.New("process exit")
	// ErrBusyProcess reports a threaded process whose body returned without
	// suspending.
	ErrBusyProcess = errors.New("busy process: threaded process returned without waiting")
	// ErrTriggeredWait reports a wait attempt from a triggered process.
	ErrTriggeredWait = errors.New("triggered processes cannot wait")
)

// Kind is the kind of a process.
//
type Kind int

// Process kinds.
//
const (
	// Triggered processes run their action to completion every time an event
	// in their sensitivity list fires.
	Triggered Kind = iota
	// Threaded processes run until they suspend with Wait or Delay and resume
	// at the continuation given to these.
	Threaded
)

func (k Kind) String() string {
	if k == Threaded {
		return "threaded"
	}
	return "triggered"
}

// ProcState is the state of a process.
//
type ProcState int

// Process states.
//
const (
	Idle ProcState = iota
	Scheduled
	Running
	Suspended
	ProcStopped
)

var procStateNames = [...]string{"idle", "scheduled", "running", "suspended", "stopped"}

func (s ProcState) String() string {
	if s < 0 || int(s) >= len(procStateNames) {
		return fmt.Sprintf("ProcState(%d)", int(s))
	}
	return procStateNames[s]
}

// An Action is a process body or continuation. Returning a non-nil error
// other than ErrExit fails the simulation.
//
type Action func(p *Process) error

// ProcessError wraps an error returned (or a panic raised) by a process body.
//
type ProcessError struct {
	Process *Process
	Err     error
}

func (e *ProcessError) Error() string {
	return fmt.Sprintf("process %s (pid %d) failed: %v", e.Process.name, e.Process.pid, e.Err)
}

// Cause returns the original error.
//
func (e *ProcessError) Cause() error { return e.Err }

// Unwrap returns the original error.
//
func (e *ProcessError) Unwrap() error { return e.Err }

// A Process is a unit of execution scheduled by a Context.
//
// Threaded processes suspend by calling Wait, Delay or DelayTime with a
// continuation and returning the result:
//
//	func(p *hlsim.Process) error {
//		req.Set(true)
//		return p.Wait(ack.Changed(), func(p *hlsim.Process) error {
//			req.Set(false)
//			return p.Delay(1, nil)
//		})
//	}
//
// A nil continuation resumes at the top of the process action. A continuation
// that returns without suspending also restarts the action from the top.
//
type Process struct {
	ctx    *Context
	owner  *Component
	pid    int
	name   string
	kind   Kind
	action Action
	sens   []Waitable
	state  ProcState

	cont    Action
	waiting bool
	gen     uint64
	pls     []interface{}
}

// PID returns the process identifier. PIDs are unique within a Context.
//
func (p *Process) PID() int { return p.pid }

// Name returns the full process name.
//
func (p *Process) Name() string { return p.name }

// Kind returns the process kind.
//
func (p *Process) Kind() Kind { return p.kind }

// State returns the process state.
//
func (p *Process) State() ProcState { return p.state }

// Owner returns the component that owns p.
//
func (p *Process) Owner() *Component { return p.owner }

// Context returns the context p is registered with.
//
func (p *Process) Context() *Context { return p.ctx }

// Sensitivity returns the sensitivity list of a triggered process.
//
func (p *Process) Sensitivity() []Waitable { return p.sens }

func (p *Process) suspend(next Action) error {
	if p.ctx.cur != p {
		return errors.Wrapf(ErrInvalidOperation, "process %s: suspend outside of its body", p.name)
	}
	if p.kind == Triggered {
		return errors.Wrap(ErrTriggeredWait, p.name)
	}
	if p.waiting {
		return errors.Wrapf(ErrInvalidOperation, "process %s: already waiting", p.name)
	}
	p.waiting = true
	p.cont = next
	p.gen++
	return nil
}

// Wait suspends the process until w fires, then resumes at next.
//
func (p *Process) Wait(w Waitable, next Action) error {
	if err := p.suspend(next); err != nil {
		return err
	}
	w.Arm(&wakeup{p: p, gen: p.gen})
	return nil
}

// Delay suspends the process for the given number of ticks, then resumes at
// next. A zero delay resumes in the next delta cycle.
//
func (p *Process) Delay(ticks int64, next Action) error {
	if ticks < 0 {
		return errors.Wrapf(ErrInvalidOperation, "process %s: negative delay %d", p.name, ticks)
	}
	if err := p.suspend(next); err != nil {
		return err
	}
	w := &wakeup{p: p, gen: p.gen}
	p.ctx.enqueue(addSat(p.ctx.ticks, ticks), []func(){w.Wake})
	return nil
}

// DelayTime is like Delay with a duration converted to ticks at the context
// resolution.
//
func (p *Process) DelayTime(t Time, next Action) error {
	return p.Delay(t.Ticks(p.ctx.res), next)
}

// Exit terminates the process. Use it as
//
//	return p.Exit()
//
func (p *Process) Exit() error { return ErrExit }

// wakeup resumes a suspended process. It is bound to a wait generation so
// that stale wakeups left on other events are ignored.
type wakeup struct {
	p   *Process
	gen uint64
}

func (w *wakeup) Wake() {
	if w.expired() {
		return
	}
	w.p.resume()
}

func (w *wakeup) expired() bool {
	return w.gen != w.p.gen || w.p.state != Suspended
}

func (p *Process) start() {
	if p.state == ProcStopped {
		return
	}
	if p.kind == Threaded {
		p.step(p.action, true)
	} else {
		p.trigger()
	}
}

func (p *Process) resume() {
	if p.kind == Triggered {
		p.trigger()
		return
	}
	next := p.cont
	p.cont = nil
	if next == nil {
		p.step(p.action, true)
		return
	}
	p.step(next, false)
}

// step runs a threaded process until it suspends or fails.
func (p *Process) step(fn Action, entry bool) {
	for {
		if !p.invoke(fn) {
			return
		}
		if p.waiting {
			p.state = Suspended
			return
		}
		if entry {
			p.failed(ErrBusyProcess)
			return
		}
		fn, entry = p.action, true
	}
}

func (p *Process) trigger() {
	if !p.invoke(p.action) {
		return
	}
	if p.waiting {
		p.failed(ErrTriggeredWait)
		return
	}
	if len(p.sens) == 0 {
		p.state = Idle
		return
	}
	p.gen++
	p.state = Suspended
	Any(p.sens...).Arm(&wakeup{p: p, gen: p.gen})
}

// invoke runs fn as the current process. It returns false if the process
// terminated.
func (p *Process) invoke(fn Action) bool {
	c := p.ctx
	prev := c.cur
	c.cur = p
	p.state = Running
	p.waiting = false
	err := call(fn, p)
	c.cur = prev
	if err == nil {
		return true
	}
	if errors.Is(err, ErrExit) {
		p.exit()
		return false
	}
	p.failed(err)
	return false
}

func call(fn Action, p *Process) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = errors.Wrap(e, "panic")
			} else {
				err = errors.Errorf("panic: %v", r)
			}
		}
	}()
	return fn(p)
}

func (p *Process) exit() {
	p.state = ProcStopped
	p.cont = nil
	p.waiting = false
	p.gen++
	p.ctx.log.WithFields(logrus.Fields{"process": p.name, "pid": p.pid}).Debug("process stopped")
}

func (p *Process) failed(err error) {
	p.exit()
	p.ctx.fail(&ProcessError{Process: p, Err: err})
}

// A Component groups processes under a common name.
//
type Component struct {
	ctx   *Context
	name  string
	procs []*Process
}

// NewComponent creates a new component.
//
func (c *Context) NewComponent(name string) *Component {
	comp := &Component{ctx: c, name: name}
	c.comps = append(c.comps, comp)
	return comp
}

// Name returns the component name.
//
func (c *Component) Name() string { return c.name }

// Processes returns the processes owned by the component.
//
func (c *Component) Processes() []*Process { return c.procs }

// Context returns the context the component belongs to.
//
func (c *Component) Context() *Context { return c.ctx }

// AddThread registers a threaded process. The action is first run at the
// start of simulation.
//
func (c *Component) AddThread(name string, action Action) (*Process, error) {
	return c.add(name, Threaded, action, nil)
}

// AddProcess registers a triggered process with the given sensitivity list.
// The action is run once at the start of simulation, then every time any
// event in the sensitivity list fires.
//
func (c *Component) AddProcess(name string, action Action, sensitivity ...Waitable) (*Process, error) {
	return c.add(name, Triggered, action, sensitivity)
}

func (c *Component) add(name string, kind Kind, action Action, sens []Waitable) (*Process, error) {
	ctx := c.ctx
	if ctx.state != Construction {
		return nil, errors.Wrapf(ErrInvalidOperation, "cannot add process %s.%s in state %v", c.name, name, ctx.state)
	}
	if action == nil {
		return nil, errors.Errorf("process %s.%s: nil action", c.name, name)
	}
	ctx.pidCounter++
	p := &Process{
		ctx:    ctx,
		owner:  c,
		pid:    ctx.pidCounter,
		name:   c.name + "." + name,
		kind:   kind,
		action: action,
		sens:   sens,
	}
	c.procs = append(c.procs, p)
	ctx.procs = append(ctx.procs, p)
	return p, nil
}
