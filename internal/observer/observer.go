// Package observer defines the callables the engine dispatches at scheduled
// steps, and the stop signals they can raise.
//
// Every observer carries exactly one capability:
//
//   - [Target]: may end the run by returning a [Stop]
//   - [Writer]: persists output as a side effect; never stops the run
//   - [Generic]: neither
//
// Capabilities are explicit tags kept in the engine's registration table, so
// dispatch ordering is a plain filter rather than type inspection.
package observer

import (
	"fmt"
	"time"

	"simdrive/internal/logx"
)

// Capability tags what a registered observer is allowed to do.
type Capability int

const (
	Generic Capability = iota
	Writer
	Target
)

func (c Capability) String() string {
	switch c {
	case Writer:
		return "writer"
	case Target:
		return "target"
	default:
		return "generic"
	}
}

// Reason discriminates graceful stop signals.
type Reason int

const (
	TargetReached Reason = iota
	DeadlineExceeded
)

func (r Reason) String() string {
	if r == DeadlineExceeded {
		return "deadline exceeded"
	}
	return "target reached"
}

// Stop is a graceful stop signal returned from observer evaluation. A nil
// *Stop means the run keeps going. Stops are results, not errors: every
// reason funnels through the same checkpoint-and-exit sequence.
type Stop struct {
	Reason  Reason
	Message string
}

// Env is the read-only view of the engine an observer evaluates against.
type Env interface {
	// Steps returns the current step counter.
	Steps() int64
	// Value reads a named numeric quantity ("steps", "rmsd", "energy", ...).
	Value(name string) (float64, error)
	// Elapsed returns wall time since engine construction.
	Elapsed() time.Duration
	// State returns a copy of the live state vector.
	State() []float64
}

// Observer is a unit of behavior invoked with the engine as argument.
// Evaluation must not mutate engine state; the only control-flow effect an
// observer may have is returning a non-nil Stop.
type Observer interface {
	Observe(env Env) (*Stop, error)
}

// Func adapts a side-effecting function (typically a writer) to Observer.
type Func func(env Env) error

func (f Func) Observe(env Env) (*Stop, error) {
	return nil, f(env)
}

// Threshold stops the run when a named quantity reaches a limit. Below the
// limit it reports the achieved fraction at debug level.
type Threshold struct {
	Name  string
	Limit float64
	log   logx.Logger
}

func NewThreshold(log logx.Logger, name string, limit float64) *Threshold {
	return &Threshold{Name: name, Limit: limit, log: log}
}

// StepsTarget stops when the step counter reaches n.
func StepsTarget(log logx.Logger, n int64) *Threshold {
	return NewThreshold(log, "steps", float64(n))
}

// DeviationTarget stops when the deviation from the initial state (RMSD
// against the baseline snapshot) reaches d.
func DeviationTarget(log logx.Logger, d float64) *Threshold {
	return NewThreshold(log, "rmsd", d)
}

func (t *Threshold) Observe(env Env) (*Stop, error) {
	v, err := env.Value(t.Name)
	if err != nil {
		return nil, fmt.Errorf("target %s: %w", t.Name, err)
	}
	if v >= t.Limit {
		return &Stop{
			Reason:  TargetReached,
			Message: fmt.Sprintf("achieved target %s: %v", t.Name, t.Limit),
		}, nil
	}
	t.log.Debug("targeting",
		logx.Str("name", t.Name),
		logx.Float64("value", v),
		logx.Float64("fraction", v/t.Limit))
	return nil, nil
}

// Fraction returns how much of the target has been achieved.
func (t *Threshold) Fraction(env Env) (float64, error) {
	v, err := env.Value(t.Name)
	if err != nil {
		return 0, err
	}
	return v / t.Limit, nil
}

// WallClock stops the run once elapsed wall time exceeds a deadline. The
// check only runs when the engine dispatches it, so the overshoot is at
// least one backend advance.
type WallClock struct {
	Deadline time.Duration
	log      logx.Logger
}

func NewWallClock(log logx.Logger, deadline time.Duration) *WallClock {
	return &WallClock{Deadline: deadline, log: log}
}

func (w *WallClock) Observe(env Env) (*Stop, error) {
	elapsed := env.Elapsed()
	if elapsed > w.Deadline {
		return &Stop{
			Reason:  DeadlineExceeded,
			Message: fmt.Sprintf("wall time limit reached after %s", elapsed.Round(time.Millisecond)),
		}, nil
	}
	w.log.Debug("wall clock",
		logx.Dur("elapsed", elapsed),
		logx.Dur("remaining", w.Deadline-elapsed))
	return nil, nil
}

// UserStop polls an external signal (a marker in the output location) and
// stops the run when it appears. The polling mechanism is injected so the
// storage layout stays with the trajectory collaborators.
type UserStop struct {
	Poll func() bool
}

func (u *UserStop) Observe(env Env) (*Stop, error) {
	if u.Poll != nil && u.Poll() {
		return &Stop{Reason: TargetReached, Message: "user requested stop"}, nil
	}
	return nil, nil
}
