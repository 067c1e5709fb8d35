// Package backend implements the stepping collaborator of the engine: a
// damped spring chain advanced by velocity Verlet. The state vector layout is
// [positions..., velocities...]. It is deliberately small; the engine treats
// any backend as an opaque advance-and-read surface.
package backend

import (
	"context"
	"fmt"
	"math"

	"simdrive/internal/logx"
	"simdrive/internal/traj"
)

const (
	DefaultMass      = 1.0
	DefaultStiffness = 10.0
	DefaultDamping   = 0.2
	DefaultDt        = 0.005
)

// Chain is a one-dimensional chain of masses coupled by springs, anchored at
// both ends. It implements engine.Backend.
type Chain struct {
	n         int
	masses    []float64
	stiffness []float64 // n+1 springs, both anchors included
	damping   []float64

	state []float64 // positions[0:n], velocities[n:2n]
	steps int64
	dt    float64

	dir string
	log logx.Logger
}

// NewChain builds a chain of n masses with the first mass displaced, so the
// run has nontrivial dynamics from step zero.
func NewChain(log logx.Logger, dir string, n int, dt float64, displacement float64) (*Chain, error) {
	if n < 1 {
		return nil, fmt.Errorf("backend: chain needs at least one mass, got %d", n)
	}
	if dt <= 0 {
		return nil, fmt.Errorf("backend: dt must be positive, got %g", dt)
	}

	masses := make([]float64, n)
	stiffness := make([]float64, n+1)
	damping := make([]float64, n)
	for i := 0; i < n; i++ {
		masses[i] = DefaultMass
		stiffness[i] = DefaultStiffness
		damping[i] = DefaultDamping
	}
	stiffness[n] = DefaultStiffness

	state := make([]float64, 2*n)
	state[0] = displacement

	return &Chain{
		n:         n,
		masses:    masses,
		stiffness: stiffness,
		damping:   damping,
		state:     state,
		dt:        dt,
		dir:       dir,
		log:       log,
	}, nil
}

func (c *Chain) Steps() int64 { return c.steps }

// Snapshot returns a structural copy of the live state. Callers may hold it
// across advances; it never aliases the live vector.
func (c *Chain) Snapshot() []float64 {
	cp := make([]float64, len(c.state))
	copy(cp, c.state)
	return cp
}

// Advance steps the chain from step from to step to with fixed dt. The whole
// span runs as one blocking call; ctx is only consulted on entry.
func (c *Chain) Advance(ctx context.Context, from, to int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if from != c.steps {
		return fmt.Errorf("backend: advance from %d but chain is at %d", from, c.steps)
	}
	if to < from {
		return fmt.Errorf("backend: advance target %d behind current step %d", to, from)
	}
	for s := from; s < to; s++ {
		c.verletStep()
	}
	c.steps = to
	return nil
}

// verletStep advances positions and velocities by one dt using velocity
// Verlet: positions from current acceleration, velocities from the average of
// old and new acceleration.
func (c *Chain) verletStep() {
	n := c.n
	pos := c.state[:n]
	vel := c.state[n:]

	acc := c.accel(pos, vel)
	dt2 := c.dt * c.dt
	for i := 0; i < n; i++ {
		pos[i] += vel[i]*c.dt + 0.5*acc[i]*dt2
	}

	accNew := c.accel(pos, vel)
	halfDt := 0.5 * c.dt
	for i := 0; i < n; i++ {
		vel[i] += (acc[i] + accNew[i]) * halfDt
	}
}

func (c *Chain) accel(pos, vel []float64) []float64 {
	n := c.n
	acc := make([]float64, n)
	for i := 0; i < n; i++ {
		var left, right float64
		if i == 0 {
			left = -c.stiffness[0] * pos[0]
		} else {
			left = -c.stiffness[i] * (pos[i] - pos[i-1])
		}
		if i == n-1 {
			right = -c.stiffness[n] * pos[n-1]
		} else {
			right = -c.stiffness[i+1] * (pos[i] - pos[i+1])
		}
		acc[i] = (left + right - c.damping[i]*vel[i]) / c.masses[i]
	}
	return acc
}

// Value reads a named numeric quantity. The baseline is the immutable
// snapshot the engine captured at construction; deviation metrics are
// computed against it.
func (c *Chain) Value(name string, baseline []float64) (float64, error) {
	switch name {
	case "rmsd":
		return c.rmsd(baseline)
	case "energy":
		return c.energy(), nil
	case "temperature":
		return c.temperature(), nil
	default:
		return 0, fmt.Errorf("backend: unknown value %q", name)
	}
}

func (c *Chain) rmsd(baseline []float64) (float64, error) {
	if len(baseline) < c.n {
		return 0, fmt.Errorf("backend: baseline has %d entries, need %d", len(baseline), c.n)
	}
	var sum float64
	for i := 0; i < c.n; i++ {
		d := c.state[i] - baseline[i]
		sum += d * d
	}
	return math.Sqrt(sum / float64(c.n)), nil
}

func (c *Chain) energy() float64 {
	n := c.n
	pos := c.state[:n]
	vel := c.state[n:]

	var e float64
	for i := 0; i < n; i++ {
		e += 0.5 * c.masses[i] * vel[i] * vel[i]
	}
	for i := 0; i < n; i++ {
		if i == 0 {
			e += 0.5 * c.stiffness[0] * pos[0] * pos[0]
		} else {
			stretch := pos[i] - pos[i-1]
			e += 0.5 * c.stiffness[i] * stretch * stretch
		}
	}
	e += 0.5 * c.stiffness[n] * pos[n-1] * pos[n-1]
	return e
}

func (c *Chain) temperature() float64 {
	n := c.n
	vel := c.state[n:]
	var ke float64
	for i := 0; i < n; i++ {
		ke += c.masses[i] * vel[i] * vel[i]
	}
	return ke / float64(n)
}

// RunPre restores the checkpoint when restarting. It is safe to call whether
// or not a checkpoint was already restored: a fresh run is a no-op, and a
// restart restores from disk.
func (c *Chain) RunPre(restart bool) error {
	if !restart {
		return nil
	}
	if !traj.HasCheckpoint(c.dir) {
		c.log.Warn("restart requested but no checkpoint found", logx.Str("dir", c.dir))
		return nil
	}
	data, err := traj.RestoreCheckpoint(c.dir)
	if err != nil {
		return fmt.Errorf("backend: %w", err)
	}
	if len(data.State) != len(c.state) {
		return fmt.Errorf("backend: checkpoint state has %d entries, chain needs %d",
			len(data.State), len(c.state))
	}
	copy(c.state, data.State)
	c.steps = data.Step
	c.log.Info("checkpoint restored", logx.Int64("step", c.steps))
	return nil
}

func (c *Chain) RunEnd() error { return nil }
