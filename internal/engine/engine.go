// Package engine drives a long-running, time-stepped simulation: it owns the
// step counter and the observer registration table, computes the next
// synchronization point across all schedules, delegates stepping to the
// backend, and dispatches observers in two phases (writers and generic
// observers first, targets second) so termination decisions are made on
// freshly written data. A checkpoint flush is guaranteed on every graceful
// exit regardless of the checkpoint's own cadence.
package engine

import (
	"context"
	"fmt"
	"time"

	"simdrive/internal/logx"
	"simdrive/internal/observer"
	"simdrive/internal/sched"
)

// Backend is the external collaborator owning and advancing the simulated
// state. The engine treats Advance as an opaque, blocking, synchronous call
// with no partial-progress visibility.
type Backend interface {
	// Steps returns the backend's step counter (it moves when RunPre
	// restores a checkpoint).
	Steps() int64
	// Advance performs all state transitions needed to reach to exactly.
	Advance(ctx context.Context, from, to int64) error
	// Snapshot returns a structural copy of the live state.
	Snapshot() []float64
	// Value reads a named numeric quantity; deviation-style metrics are
	// computed against the supplied baseline snapshot.
	Value(name string, baseline []float64) (float64, error)
	// RunPre is invoked before the loop; it must be safe to call whether or
	// not checkpoint state was already restored.
	RunPre(restart bool) error
	// RunEnd is invoked after a graceful stop.
	RunEnd() error
}

type registration struct {
	obs        observer.Observer
	sched      sched.Schedule
	cap        observer.Capability
	checkpoint bool
	auto       bool // engine-owned steps target, replaced on a new ceiling
}

// Engine runs the loop. It is not safe for concurrent use; exactly one
// control flow may touch it.
type Engine struct {
	backend Backend
	log     logx.Logger

	regs []registration

	step        int64
	initialStep int64
	startTime   time.Time
	targetSteps int64
	restart     bool

	// baseline is captured once at construction and never aliased with the
	// live backend state.
	baseline []float64
}

// Options configures engine construction.
type Options struct {
	// TargetSteps registers a steps target checked at the end of the run.
	// Zero leaves the ceiling open.
	TargetSteps int64
	// Restart resumes from a checkpoint: the backend restores state in
	// RunPre and the pre-loop writer dispatch is skipped.
	Restart bool
}

func New(b Backend, log logx.Logger, opts Options) *Engine {
	e := &Engine{
		backend:     b,
		log:         log,
		step:        b.Steps(),
		startTime:   time.Now(),
		targetSteps: sched.Unreachable,
		restart:     opts.Restart,
		baseline:    b.Snapshot(),
	}
	if opts.TargetSteps > 0 {
		e.setTargetSteps(opts.TargetSteps)
	}
	return e
}

// Add registers an observer with its schedule and capability tag. Insertion
// order is preserved and matters: observers are dispatched in registration
// order within each phase. Checkpoint entries always stay last, so Add
// inserts in front of them.
func (e *Engine) Add(obs observer.Observer, s sched.Schedule, cap observer.Capability) {
	reg := registration{obs: obs, sched: s, cap: cap}
	for i := range e.regs {
		if e.regs[i].checkpoint {
			e.regs = append(e.regs[:i], append([]registration{reg}, e.regs[i:]...)...)
			return
		}
	}
	e.regs = append(e.regs, reg)
}

// AddCheckpoint registers a checkpoint writer. Beyond its periodic schedule
// it is flushed exactly once on every graceful stop.
func (e *Engine) AddCheckpoint(obs observer.Observer, s sched.Schedule) {
	e.regs = append(e.regs, registration{obs: obs, sched: s, cap: observer.Writer, checkpoint: true})
}

// setTargetSteps adopts a new step ceiling, replacing the engine-owned steps
// target in place so registration order is preserved.
func (e *Engine) setTargetSteps(target int64) {
	e.targetSteps = target
	s, _ := sched.Every(target) // target > 0 by construction
	obs := observer.StepsTarget(e.log, target)
	for i := range e.regs {
		if e.regs[i].auto {
			e.regs[i].obs = obs
			e.regs[i].sched = s
			return
		}
	}
	reg := registration{obs: obs, sched: s, cap: observer.Target, auto: true}
	for i := range e.regs {
		if e.regs[i].checkpoint {
			e.regs = append(e.regs[:i], append([]registration{reg}, e.regs[i:]...)...)
			return
		}
	}
	e.regs = append(e.regs, reg)
}

// Observer environment. Evaluation is read-only: State hands out copies and
// Value goes through the backend's read surface.

func (e *Engine) Steps() int64 { return e.step }

func (e *Engine) Value(name string) (float64, error) {
	if name == "steps" {
		return float64(e.step), nil
	}
	return e.backend.Value(name, e.baseline)
}

func (e *Engine) Elapsed() time.Duration { return time.Since(e.startTime) }

func (e *Engine) State() []float64 { return e.backend.Snapshot() }

// TargetSteps returns the current step ceiling.
func (e *Engine) TargetSteps() int64 { return e.targetSteps }

// Restarting reports whether the engine is resuming a previous run.
func (e *Engine) Restarting() bool { return e.restart }

// Run drives the simulation until a target stops it. A positive target
// adopts a new step ceiling; a ceiling above the current one marks the run
// as a restart, which supports resuming a finished run. Run returns nil on a
// graceful stop and the causing error on a fatal one. Concurrent Run calls
// on the same engine are not supported.
func (e *Engine) Run(ctx context.Context, target int64) error {
	defer e.log.Info("exiting")

	if target > 0 {
		if target > e.targetSteps {
			e.restart = true
		}
		e.setTargetSteps(target)
	}

	if err := e.backend.RunPre(e.restart); err != nil {
		e.log.Error("pre-run hook failed", logx.Err(err))
		return err
	}
	// RunPre may have restored a checkpoint; adopt the backend's counter.
	e.step = e.backend.Steps()
	e.initialStep = e.step

	e.report()

	// Targets are evaluated once regardless of schedule: a resumed run may
	// already satisfy its target before any stepping.
	stop, err := e.notify(func(r registration) bool { return r.cap == observer.Target })
	if err != nil {
		return e.fatal(err)
	}

	if stop == nil && !e.restart {
		if _, err := e.notify(e.dueNonTargets); err != nil {
			return e.fatal(err)
		}
	}

	if stop == nil {
		e.log.Info("simulation started",
			logx.Int64("step", e.step),
			logx.Int64("target", e.targetSteps))

		for stop == nil {
			if err := ctx.Err(); err != nil {
				return e.fatal(err)
			}
			next, err := e.nextSync()
			if err != nil {
				return e.fatal(err)
			}
			if err := e.backend.Advance(ctx, e.step, next); err != nil {
				return e.fatal(err)
			}
			e.step = next
			e.log.Debug("step",
				logx.Int64("step", e.step),
				logx.Int64("target", e.targetSteps),
				logx.Dur("wtime/step", e.wallTimePerStep()))

			// Writers and generic observers before targets.
			if _, err := e.notify(e.dueNonTargets); err != nil {
				return e.fatal(err)
			}
			stop, err = e.notify(func(r registration) bool {
				return r.cap == observer.Target && r.sched.Now(e.step)
			})
			if err != nil {
				return e.fatal(err)
			}
		}
	}

	return e.finish(stop)
}

// finish runs the unconditional termination sequence: checkpoint flush,
// throughput stats, post-run hook, terminal message.
func (e *Engine) finish(stop *observer.Stop) error {
	if err := e.flushCheckpoints(); err != nil {
		e.log.Error("checkpoint flush failed", logx.Err(err))
		return err
	}
	if e.step != e.initialStep {
		elapsed := e.Elapsed()
		e.log.Info("run statistics",
			logx.Dur("wall_time", elapsed.Round(time.Millisecond)),
			logx.Float64("steps_per_second",
				float64(e.step-e.initialStep)/elapsed.Seconds()))
	}
	if err := e.backend.RunEnd(); err != nil {
		e.log.Error("post-run hook failed", logx.Err(err))
		return err
	}
	e.log.Info("simulation ended successfully",
		logx.Str("reason", stop.Reason.String()),
		logx.Str("message", stop.Message))
	return nil
}

// flushCheckpoints invokes every checkpoint writer exactly once, irrespective
// of its schedule. Writers must be idempotent for the current step.
func (e *Engine) flushCheckpoints() error {
	for _, r := range e.regs {
		if !r.checkpoint {
			continue
		}
		if _, err := r.obs.Observe(e); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) dueNonTargets(r registration) bool {
	return r.cap != observer.Target && r.sched.Now(e.step)
}

// notify evaluates every registration matched by want, in registration
// order. Observer errors are fatal and abort the phase; stop signals are
// aggregated and the first one wins.
func (e *Engine) notify(want func(registration) bool) (*observer.Stop, error) {
	var stop *observer.Stop
	for _, r := range e.regs {
		if !want(r) {
			continue
		}
		s, err := r.obs.Observe(e)
		if err != nil {
			e.log.Error("observer failed",
				logx.Str("capability", r.cap.String()),
				logx.Int64("interval", r.sched.Interval()),
				logx.Err(err))
			return nil, err
		}
		if s != nil && stop == nil {
			stop = s
		}
	}
	return stop, nil
}

// nextSync returns the minimum next due step across all schedules.
func (e *Engine) nextSync() (int64, error) {
	next := sched.Unreachable
	for _, r := range e.regs {
		if n := r.sched.Next(e.step); n < next {
			next = n
		}
	}
	if next == sched.Unreachable {
		return 0, fmt.Errorf("engine: nothing scheduled, every registration is disabled")
	}
	return next, nil
}

// report enumerates the registration table for operator visibility.
func (e *Engine) report() {
	for _, r := range e.regs {
		e.log.Info("observer",
			logx.Str("capability", r.cap.String()),
			logx.Str("schedule", r.sched.Kind().String()),
			logx.Int64("interval", r.sched.Interval()),
			logx.Int("calls", r.sched.Calls()),
			logx.Int64("target", r.sched.Target()))
	}
}

func (e *Engine) fatal(err error) error {
	e.log.Error("simulation aborted", logx.Err(err))
	return err
}

func (e *Engine) wallTimePerStep() time.Duration {
	moved := e.step - e.initialStep
	if moved <= 0 {
		return 0
	}
	return time.Duration(int64(e.Elapsed()) / moved)
}
