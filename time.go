// Copyright 2018 Denis Bernard <db047h@gmail.com>
// Licensed under the MIT license. See license text in the LICENSE file.

package hlsim

import (
	"math"
	"strconv"
)

// Time is a duration of simulated time, in femtoseconds.
//
type Time int64

// Time units.
//
const (
	FS Time = 1
	PS      = 1000 * FS
	NS      = 1000 * PS
	US      = 1000 * NS
	MS      = 1000 * US
	S       = 1000 * MS

	// Infinite is used for "never" or "run until nothing is left to do".
	Infinite Time = math.MaxInt64
)

var timeUnits = [...]struct {
	t    Time
	name string
}{
	{S, "s"}, {MS, "ms"}, {US, "us"}, {NS, "ns"}, {PS, "ps"}, {FS, "fs"},
}

// IsInfinite returns true if t == Infinite.
//
func (t Time) IsInfinite() bool { return t == Infinite }

// Ticks converts t to a tick count for the given resolution, rounding down.
// Infinite converts to math.MaxInt64.
//
func (t Time) Ticks(res Time) int64 {
	if t == Infinite {
		return math.MaxInt64
	}
	if res <= 0 {
		panic("invalid time resolution")
	}
	return int64(t / res)
}

// String returns t in the largest unit that represents it exactly.
//
func (t Time) String() string {
	if t == Infinite {
		return "inf"
	}
	if t == 0 {
		return "0s"
	}
	for _, u := range timeUnits {
		if t%u.t == 0 {
			return strconv.FormatInt(int64(t/u.t), 10) + u.name
		}
	}
	panic("unreachable")
}

// addSat adds two tick counts, saturating at math.MaxInt64.
//
func addSat(a, b int64) int64 {
	if b > 0 && a > math.MaxInt64-b {
		return math.MaxInt64
	}
	return a + b
}
