package backend

import (
	"context"
	"testing"
	"time"

	"simdrive/internal/logx"
	"simdrive/internal/traj"
)

func newTestChain(t *testing.T, dir string) *Chain {
	t.Helper()
	c, err := NewChain(logx.Nop(), dir, 4, DefaultDt, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestNewChainValidation(t *testing.T) {
	if _, err := NewChain(logx.Nop(), "", 0, DefaultDt, 0); err == nil {
		t.Error("zero masses should fail")
	}
	if _, err := NewChain(logx.Nop(), "", 4, 0, 0); err == nil {
		t.Error("zero dt should fail")
	}
	if _, err := NewChain(logx.Nop(), "", 4, -0.01, 0); err == nil {
		t.Error("negative dt should fail")
	}
}

func TestAdvanceSetsSteps(t *testing.T) {
	c := newTestChain(t, t.TempDir())
	ctx := context.Background()

	if err := c.Advance(ctx, 0, 100); err != nil {
		t.Fatal(err)
	}
	if c.Steps() != 100 {
		t.Errorf("steps = %d, want 100", c.Steps())
	}

	if err := c.Advance(ctx, 100, 250); err != nil {
		t.Fatal(err)
	}
	if c.Steps() != 250 {
		t.Errorf("steps = %d, want 250", c.Steps())
	}
}

func TestAdvanceFromWrongStep(t *testing.T) {
	c := newTestChain(t, t.TempDir())
	if err := c.Advance(context.Background(), 50, 100); err == nil {
		t.Error("advance from mismatched step should fail")
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	c := newTestChain(t, t.TempDir())
	baseline := c.Snapshot()

	if err := c.Advance(context.Background(), 0, 500); err != nil {
		t.Fatal(err)
	}
	after := c.Snapshot()

	same := true
	for i := range baseline {
		if baseline[i] != after[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("baseline snapshot tracked the live state")
	}
}

func TestRMSD(t *testing.T) {
	c := newTestChain(t, t.TempDir())
	baseline := c.Snapshot()

	v, err := c.Value("rmsd", baseline)
	if err != nil {
		t.Fatal(err)
	}
	if v != 0 {
		t.Errorf("rmsd before stepping = %g, want 0", v)
	}

	if err := c.Advance(context.Background(), 0, 200); err != nil {
		t.Fatal(err)
	}
	v, err = c.Value("rmsd", baseline)
	if err != nil {
		t.Fatal(err)
	}
	if v <= 0 {
		t.Errorf("rmsd after stepping = %g, want > 0", v)
	}
}

func TestEnergyDoesNotGrow(t *testing.T) {
	c := newTestChain(t, t.TempDir())
	baseline := c.Snapshot()

	before, err := c.Value("energy", baseline)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Advance(context.Background(), 0, 2000); err != nil {
		t.Fatal(err)
	}
	after, err := c.Value("energy", baseline)
	if err != nil {
		t.Fatal(err)
	}
	// The chain is damped, so total energy must decay.
	if after >= before {
		t.Errorf("energy grew from %g to %g", before, after)
	}
}

func TestUnknownValue(t *testing.T) {
	c := newTestChain(t, t.TempDir())
	if _, err := c.Value("pressure", c.Snapshot()); err == nil {
		t.Error("unknown value name should fail")
	}
}

func TestRunPreRestoresCheckpoint(t *testing.T) {
	dir := t.TempDir()

	// Drive one chain forward and checkpoint it.
	c1 := newTestChain(t, dir)
	if err := c1.Advance(context.Background(), 0, 300); err != nil {
		t.Fatal(err)
	}
	cp := traj.NewCheckpoint(dir)
	if err := cp.Write(&chainEnv{c1}); err != nil {
		t.Fatal(err)
	}

	// A fresh chain restarted from the same dir picks up step and state.
	c2 := newTestChain(t, dir)
	if err := c2.RunPre(true); err != nil {
		t.Fatal(err)
	}
	if c2.Steps() != 300 {
		t.Errorf("restored steps = %d, want 300", c2.Steps())
	}
	want := c1.Snapshot()
	got := c2.Snapshot()
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("restored state[%d] = %g, want %g", i, got[i], want[i])
		}
	}
}

func TestRunPreFreshRun(t *testing.T) {
	c := newTestChain(t, t.TempDir())
	if err := c.RunPre(false); err != nil {
		t.Fatal(err)
	}
	if err := c.RunPre(true); err != nil {
		// Restart with no checkpoint present is tolerated with a warning.
		t.Fatal(err)
	}
}

// chainEnv adapts a Chain to the observer env for checkpointing in tests.
type chainEnv struct{ c *Chain }

func (e *chainEnv) Steps() int64 { return e.c.Steps() }
func (e *chainEnv) Value(name string) (float64, error) {
	return e.c.Value(name, nil)
}
func (e *chainEnv) State() []float64       { return e.c.Snapshot() }
func (e *chainEnv) Elapsed() time.Duration { return 0 }
