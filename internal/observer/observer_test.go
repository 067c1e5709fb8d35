package observer

import (
	"fmt"
	"testing"
	"time"

	"simdrive/internal/logx"
)

type fakeEnv struct {
	steps   int64
	values  map[string]float64
	elapsed time.Duration
	state   []float64
}

func (f *fakeEnv) Steps() int64 { return f.steps }

func (f *fakeEnv) Value(name string) (float64, error) {
	if name == "steps" {
		return float64(f.steps), nil
	}
	v, ok := f.values[name]
	if !ok {
		return 0, fmt.Errorf("unknown value %q", name)
	}
	return v, nil
}

func (f *fakeEnv) Elapsed() time.Duration { return f.elapsed }
func (f *fakeEnv) State() []float64       { return f.state }

func TestThreshold(t *testing.T) {
	obs := StepsTarget(logx.Nop(), 100)

	stop, err := obs.Observe(&fakeEnv{steps: 99})
	if err != nil {
		t.Fatal(err)
	}
	if stop != nil {
		t.Errorf("steps=99 should not stop, got %+v", stop)
	}

	stop, err = obs.Observe(&fakeEnv{steps: 100})
	if err != nil {
		t.Fatal(err)
	}
	if stop == nil {
		t.Fatal("steps=100 should stop")
	}
	if stop.Reason != TargetReached {
		t.Errorf("reason = %v, want TargetReached", stop.Reason)
	}
	if stop.Message != "achieved target steps: 100" {
		t.Errorf("message = %q", stop.Message)
	}

	// Above the limit stops too.
	stop, _ = obs.Observe(&fakeEnv{steps: 150})
	if stop == nil {
		t.Error("steps=150 should stop")
	}
}

func TestThresholdUnknownValue(t *testing.T) {
	obs := NewThreshold(logx.Nop(), "pressure", 1.0)
	_, err := obs.Observe(&fakeEnv{})
	if err == nil {
		t.Fatal("expected error for unknown value name")
	}
}

func TestThresholdFraction(t *testing.T) {
	obs := DeviationTarget(logx.Nop(), 4.0)
	env := &fakeEnv{values: map[string]float64{"rmsd": 1.0}}
	frac, err := obs.Fraction(env)
	if err != nil {
		t.Fatal(err)
	}
	if frac != 0.25 {
		t.Errorf("fraction = %v, want 0.25", frac)
	}
}

func TestWallClock(t *testing.T) {
	obs := NewWallClock(logx.Nop(), 5*time.Second)

	stop, err := obs.Observe(&fakeEnv{elapsed: 4 * time.Second})
	if err != nil {
		t.Fatal(err)
	}
	if stop != nil {
		t.Errorf("4s elapsed should not stop, got %+v", stop)
	}

	stop, err = obs.Observe(&fakeEnv{elapsed: 6 * time.Second})
	if err != nil {
		t.Fatal(err)
	}
	if stop == nil {
		t.Fatal("6s elapsed should stop")
	}
	if stop.Reason != DeadlineExceeded {
		t.Errorf("reason = %v, want DeadlineExceeded", stop.Reason)
	}
}

func TestUserStop(t *testing.T) {
	requested := false
	obs := &UserStop{Poll: func() bool { return requested }}

	stop, _ := obs.Observe(&fakeEnv{})
	if stop != nil {
		t.Error("no marker, should not stop")
	}

	requested = true
	stop, _ = obs.Observe(&fakeEnv{})
	if stop == nil {
		t.Fatal("marker present, should stop")
	}
	if stop.Message != "user requested stop" {
		t.Errorf("message = %q", stop.Message)
	}
}

func TestFuncAdapter(t *testing.T) {
	called := 0
	obs := Func(func(env Env) error {
		called++
		return nil
	})
	stop, err := obs.Observe(&fakeEnv{})
	if err != nil || stop != nil {
		t.Fatalf("stop=%v err=%v", stop, err)
	}
	if called != 1 {
		t.Errorf("called = %d", called)
	}
}
