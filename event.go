// Copyright 2018 Denis Bernard <db047h@gmail.com>
// Licensed under the MIT license. See license text in the LICENSE file.

package hlsim

// A Waiter is woken up when a Waitable it is armed on fires.
//
// Waiters are compared by identity, so implementations must be comparable.
// Pointer types are the usual choice.
//
type Waiter interface {
	Wake()
}

// A Waitable is anything a Waiter can be armed on: Event, MultiEvent and
// PredicatedEvent.
//
type Waitable interface {
	Arm(w Waiter)
}

// waiters that can tell they will never do anything useful anymore. They are
// pruned from an event's armed list.
type expirer interface {
	expired() bool
}

func isExpired(w Waiter) bool {
	e, ok := w.(expirer)
	return ok && e.expired()
}

// An Event is a notification point. Waiters armed on an event are woken up
// in the delta cycle following a call to Fire.
//
type Event struct {
	ctx   *Context
	name  string
	armed []Waiter
}

// NewEvent returns a new event bound to the context.
//
func (c *Context) NewEvent(name string) *Event {
	return &Event{ctx: c, name: name}
}

// Name returns the event name.
//
func (e *Event) Name() string { return e.name }

// Arm adds w to the list of waiters to wake up on the next Fire. Arming the
// same waiter twice has no effect.
//
func (e *Event) Arm(w Waiter) {
	n, dup := 0, false
	for _, a := range e.armed {
		if isExpired(a) {
			continue
		}
		dup = dup || a == w
		e.armed[n] = a
		n++
	}
	for i := n; i < len(e.armed); i++ {
		e.armed[i] = nil
	}
	e.armed = e.armed[:n]
	if !dup {
		e.armed = append(e.armed, w)
	}
}

// Armed returns the number of waiters currently armed on e.
//
func (e *Event) Armed() int { return len(e.armed) }

// Fire schedules all armed waiters for the next delta cycle and clears the
// armed list. Waiters must re-arm if they need to wait again.
//
func (e *Event) Fire() {
	if len(e.armed) == 0 {
		return
	}
	ws := e.armed
	e.armed = nil
	batch := make([]func(), len(ws))
	for i, w := range ws {
		batch[i] = w.Wake
	}
	e.ctx.enqueue(e.ctx.ticks, batch)
}

// A MultiEvent fires as soon as any of its members fires.
//
type MultiEvent struct {
	members []Waitable
}

// Any returns a MultiEvent over the given waitables. Nested MultiEvents are
// flattened and duplicates removed.
//
func Any(ws ...Waitable) *MultiEvent {
	m := &MultiEvent{members: make([]Waitable, 0, len(ws))}
	m.add(ws)
	return m
}

func (m *MultiEvent) add(ws []Waitable) {
next:
	for _, w := range ws {
		if sub, ok := w.(*MultiEvent); ok {
			m.add(sub.members)
			continue
		}
		for _, x := range m.members {
			if x == w {
				continue next
			}
		}
		m.members = append(m.members, w)
	}
}

// Members returns the flattened member list.
//
func (m *MultiEvent) Members() []Waitable { return m.members }

// Arm arms w on every member through a shared one-shot guard: w is woken up
// once, by whichever member fires first.
//
func (m *MultiEvent) Arm(w Waiter) {
	o := &oneShot{w: w}
	for _, x := range m.members {
		x.Arm(o)
	}
}

type oneShot struct {
	w    Waiter
	done bool
}

func (o *oneShot) Wake() {
	if o.done {
		return
	}
	o.done = true
	o.w.Wake()
}

func (o *oneShot) expired() bool { return o.done || isExpired(o.w) }

// A PredicatedEvent fires when its base fires and its predicate holds. While
// the predicate is false, waiters are re-armed on the base.
//
type PredicatedEvent struct {
	base Waitable
	pred func() bool
}

// When returns a PredicatedEvent over base.
//
//	// wait for a rising edge
//	p.Wait(hlsim.When(clk.Changed(), clk.Cur), next)
//
func When(base Waitable, pred func() bool) *PredicatedEvent {
	return &PredicatedEvent{base: base, pred: pred}
}

// Arm implements Waitable.
//
func (pe *PredicatedEvent) Arm(w Waiter) {
	pe.base.Arm(&predicated{pe: pe, w: w})
}

type predicated struct {
	pe *PredicatedEvent
	w  Waiter
}

func (p *predicated) Wake() {
	if p.pe.pred() {
		p.w.Wake()
		return
	}
	if !isExpired(p.w) {
		p.pe.base.Arm(p)
	}
}

func (p *predicated) expired() bool { return isExpired(p.w) }

type callback struct {
	fn func()
}

func (c *callback) Wake() { c.fn() }

// Callback returns a Waiter that calls fn when woken up. Each call to Callback
// returns a distinct Waiter.
//
func Callback(fn func()) Waiter {
	return &callback{fn: fn}
}
