// Copyright 2018 Denis Bernard <db047h@gmail.com>
// Licensed under the MIT license. See license text in the LICENSE file.

package hlsim

// A Signal holds a value with two-phase semantics: Set writes the next value,
// which becomes current in the update phase of the delta cycle. A change of
// the current value fires the Changed event.
//
type Signal[T comparable] struct {
	ctx     *Context
	name    string
	cur     T
	next    T
	pending bool
	changed *Event
}

// NewSignal returns a new signal with initial value init.
//
func NewSignal[T comparable](c *Context, name string, init T) *Signal[T] {
	return &Signal[T]{
		ctx:     c,
		name:    name,
		cur:     init,
		next:    init,
		changed: c.NewEvent(name + ".changed"),
	}
}

// Name returns the signal name.
//
func (s *Signal[T]) Name() string { return s.name }

// Cur returns the current value.
//
func (s *Signal[T]) Cur() T { return s.cur }

// Next returns the value the signal will have after the update phase.
//
func (s *Signal[T]) Next() T { return s.next }

// Set sets the next value of the signal.
//
func (s *Signal[T]) Set(v T) {
	s.next = v
	if !s.pending {
		s.pending = true
		s.ctx.ScheduleUpdate(s.commit)
	}
}

// Changed returns the event fired when the current value changes.
//
func (s *Signal[T]) Changed() *Event { return s.changed }

// Arm makes signals usable directly in sensitivity lists.
//
func (s *Signal[T]) Arm(w Waiter) { s.changed.Arm(w) }

func (s *Signal[T]) commit() {
	s.pending = false
	if s.next != s.cur {
		s.cur = s.next
		s.changed.Fire()
	}
}
