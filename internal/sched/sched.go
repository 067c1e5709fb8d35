// Package sched resolves observer trigger configurations into firing schedules.
//
// A Schedule answers two questions for the run loop: the next step at which
// its observer is due, and whether the observer is due right now. Three kinds
// exist:
//
//   - [Periodic]: fires every fixed number of steps
//   - [CountBased]: interval derived from a requested call count and a target step
//   - [Disabled]: never fires on its own schedule
package sched

import "math"

// Kind discriminates how a schedule was resolved.
type Kind int

const (
	Disabled Kind = iota
	Periodic
	CountBased
)

func (k Kind) String() string {
	switch k {
	case Periodic:
		return "periodic"
	case CountBased:
		return "count-based"
	default:
		return "disabled"
	}
}

// Unreachable is returned by Next on a disabled schedule. It exceeds any step
// count a run can reach in practice.
const Unreachable = int64(math.MaxInt64)

// Error reports a trigger configuration that cannot be resolved.
type Error struct {
	Reason string
}

func (e *Error) Error() string { return "sched: " + e.Reason }

// Schedule is an immutable firing policy. The zero value is disabled.
type Schedule struct {
	kind     Kind
	interval int64
	calls    int
	target   int64
}

// Every returns a periodic schedule firing every interval steps.
func Every(interval int64) (Schedule, error) {
	if interval < 1 {
		return Schedule{}, &Error{Reason: "interval must be >= 1"}
	}
	return Schedule{kind: Periodic, interval: interval}, nil
}

// ByCalls derives an interval from a requested number of calls over a target
// step count: interval = max(1, target/calls) with integer division. The
// realized call count can differ from the request near boundaries (calls=3,
// target=10 resolves to interval 3 and fires 4 times); callers needing exact
// counts must pick interval and target accordingly. A call count without a
// target would require dynamic scheduling, which is not supported.
func ByCalls(calls int, target int64) (Schedule, error) {
	if calls < 1 {
		return Schedule{}, &Error{Reason: "calls must be >= 1"}
	}
	if target <= 0 {
		return Schedule{}, &Error{Reason: "dynamic scheduling not supported"}
	}
	interval := target / int64(calls)
	if interval < 1 {
		interval = 1
	}
	return Schedule{kind: CountBased, interval: interval, calls: calls, target: target}, nil
}

// Never returns a disabled schedule.
func Never() Schedule {
	return Schedule{kind: Disabled}
}

// Resolve applies the construction priority used for config-driven setup:
// an explicit interval wins, else a call count (which needs a target), else
// the schedule is disabled.
func Resolve(interval int64, calls int, target int64) (Schedule, error) {
	switch {
	case interval > 0:
		return Every(interval)
	case calls > 0:
		return ByCalls(calls, target)
	default:
		return Never(), nil
	}
}

func (s Schedule) Kind() Kind      { return s.kind }
func (s Schedule) Interval() int64 { return s.interval }
func (s Schedule) Calls() int      { return s.calls }
func (s Schedule) Target() int64   { return s.target }

// Next returns the smallest step strictly greater than cur at which the
// schedule fires. Next(cur) > cur holds for every cur >= 0, so a loop driven
// by Next always makes forward progress.
func (s Schedule) Next(cur int64) int64 {
	if s.kind == Disabled {
		return Unreachable
	}
	return (cur/s.interval + 1) * s.interval
}

// Now reports whether the schedule fires at cur.
func (s Schedule) Now(cur int64) bool {
	if s.kind == Disabled {
		return false
	}
	return cur%s.interval == 0
}
