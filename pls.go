// Copyright 2018 Denis Bernard <db047h@gmail.com>
// Licensed under the MIT license. See license text in the LICENSE file.

package hlsim

import "github.com/pkg/errors"

// A PLSSlot identifies a process local storage slot. Each process holds its
// own value for every slot, so code shared by many processes can keep
// per-process settings.
//
type PLSSlot struct {
	idx int
}

// AllocPLS allocates a new process local storage slot. Slots can only be
// allocated during construction.
//
func (c *Context) AllocPLS() (PLSSlot, error) {
	if c.state != Construction {
		return PLSSlot{}, errors.Wrapf(ErrInvalidOperation, "cannot allocate process local storage in state %v", c.state)
	}
	s := PLSSlot{idx: c.plsSlots}
	c.plsSlots++
	return s, nil
}

// Value returns the value stored in slot s for process p, or nil if none was
// set.
//
func (s PLSSlot) Value(p *Process) interface{} {
	if s.idx >= len(p.pls) {
		return nil
	}
	return p.pls[s.idx]
}

// SetValue sets the value stored in slot s for process p.
//
func (s PLSSlot) SetValue(p *Process, v interface{}) {
	if s.idx >= len(p.pls) {
		pls := make([]interface{}, s.idx+1)
		copy(pls, p.pls)
		p.pls = pls
	}
	p.pls[s.idx] = v
}
