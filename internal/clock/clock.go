// Package clock abstracts time access so throttle and timer logic can be
// driven deterministically under test (ported from the teacher's
// ratelimit.Clock abstraction).
package clock

import "time"

// Clock abstracts wall-clock and monotonic time access.
type Clock interface {
	Now() time.Time
	MonotonicNanos() int64
}

// processStart anchors the monotonic clock at package init. time.Since
// measures against it using Go's internal monotonic reading, so the
// result tracks "nanoseconds since this reference point" the way a
// sensor platform's boot-relative clock does, immune to wall-clock steps
// (NTP sync, user clock changes) the way UnixNano() is not.
var processStart = time.Now()

// System is the production Clock backed by the runtime.
type System struct{}

func (System) Now() time.Time { return time.Now() }

// MonotonicNanos returns nanoseconds elapsed since processStart. It is
// not the platform's true boot-relative clock (pure Go has no syscall-free
// way to read that); it is a process-relative monotonic clock, which is
// the strongest guarantee expressible without a host-supplied bridge.
// Every caller only ever diffs two readings taken within one process
// lifetime, so the choice of epoch does not matter.
func (System) MonotonicNanos() int64 {
	return time.Since(processStart).Nanoseconds()
}

var _ Clock = System{}
