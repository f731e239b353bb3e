package flow

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunnerExecutesStepsInOrder(t *testing.T) {
	var order []string

	r := NewRunner(WithPollInterval(5 * time.Millisecond))
	r.Action("first", func(ctx context.Context) error {
		order = append(order, "first")
		return nil
	})
	r.Wait("flag set", func(ctx context.Context) (bool, error) {
		order = append(order, "wait")
		return true, nil
	})
	r.Action("second", func(ctx context.Context) error {
		order = append(order, "second")
		return nil
	})

	err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "wait", "second"}, order)
}

func TestWaitAdvancesImmediatelyWhenAlreadyTrue(t *testing.T) {
	r := NewRunner(WithPollInterval(100*time.Millisecond), WithWaitTimeout(5*time.Second))
	r.Wait("already ready", func(ctx context.Context) (bool, error) {
		return true, nil
	})

	start := time.Now()
	err := r.Run(context.Background())
	require.NoError(t, err)

	// An already-true predicate must not wait out even a single poll tick.
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestWaitPollsUntilSatisfied(t *testing.T) {
	var polls int32

	r := NewRunner(WithPollInterval(5 * time.Millisecond))
	r.Wait("third poll succeeds", func(ctx context.Context) (bool, error) {
		return atomic.AddInt32(&polls, 1) >= 3, nil
	})

	err := r.Run(context.Background())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&polls), int32(3))
}

func TestWaitTimeoutNamesTheUnmetCondition(t *testing.T) {
	r := NewRunner(WithPollInterval(5 * time.Millisecond))
	r.WaitWithTimeout("upload to finish", 30*time.Millisecond, func(ctx context.Context) (bool, error) {
		return false, nil
	})

	err := r.Run(context.Background())
	require.Error(t, err)

	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, "upload to finish", timeoutErr.Label)
	assert.Contains(t, err.Error(), "upload to finish")
}

func TestWaitTimeoutFailsExactlyOnce(t *testing.T) {
	var failures int

	r := NewRunner(WithPollInterval(5 * time.Millisecond))
	r.WaitWithTimeout("never", 20*time.Millisecond, func(ctx context.Context) (bool, error) {
		return false, nil
	})
	r.Action("unreachable", func(ctx context.Context) error {
		t.Fatal("steps after a timed-out wait must not run")
		return nil
	})

	if err := r.Run(context.Background()); err != nil {
		failures++
	}
	assert.Equal(t, 1, failures)
}

func TestConsecutiveWaitsAllowed(t *testing.T) {
	r := NewRunner(WithPollInterval(5 * time.Millisecond))
	r.Wait("first condition", func(ctx context.Context) (bool, error) { return true, nil })
	r.Wait("second condition", func(ctx context.Context) (bool, error) { return true, nil })

	require.NoError(t, r.Run(context.Background()))
}

func TestPredicateErrorIsFatal(t *testing.T) {
	boom := errors.New("selector engine exploded")

	r := NewRunner(WithPollInterval(5 * time.Millisecond))
	r.Wait("doomed", func(ctx context.Context) (bool, error) {
		return false, boom
	})

	err := r.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestGuardedPredicateTreatsErrorAsNotReady(t *testing.T) {
	var calls int32

	r := NewRunner(WithPollInterval(5 * time.Millisecond))
	r.Wait("element appears", Guarded(func(ctx context.Context) (bool, error) {
		if atomic.AddInt32(&calls, 1) < 3 {
			return false, errors.New("no such element")
		}
		return true, nil
	}))

	require.NoError(t, r.Run(context.Background()))
}

func TestActionErrorAbortsScenario(t *testing.T) {
	var ran bool

	r := NewRunner()
	r.Action("failing", func(ctx context.Context) error {
		return fmt.Errorf("click failed")
	})
	r.Action("after", func(ctx context.Context) error {
		ran = true
		return nil
	})

	err := r.Run(context.Background())
	require.Error(t, err)
	assert.False(t, ran)
}

func TestRunConsumesQueue(t *testing.T) {
	r := NewRunner()
	r.Action("noop", func(ctx context.Context) error { return nil })

	require.NoError(t, r.Run(context.Background()))

	err := r.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already consumed")
}

func TestRunHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewRunner()
	r.Action("never runs", func(ctx context.Context) error {
		t.Fatal("action ran despite cancelled context")
		return nil
	})

	err := r.Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

type recordingObserver struct {
	started  []string
	timeouts []string
}

func (o *recordingObserver) StepStarted(kind, label string) {
	o.started = append(o.started, kind+":"+label)
}

func (o *recordingObserver) StepFinished(kind, label string, d time.Duration, err error) {}

func (o *recordingObserver) WaitTimedOut(label string, timeout time.Duration) {
	o.timeouts = append(o.timeouts, label)
}

func TestObserverSeesStepsAndTimeouts(t *testing.T) {
	obs := &recordingObserver{}

	r := NewRunner(WithPollInterval(5*time.Millisecond), WithObserver(obs))
	r.Action("setup", func(ctx context.Context) error { return nil })
	r.WaitWithTimeout("stuck", 20*time.Millisecond, func(ctx context.Context) (bool, error) {
		return false, nil
	})

	err := r.Run(context.Background())
	require.Error(t, err)

	assert.Equal(t, []string{"action:setup", "wait:stuck"}, obs.started)
	assert.Equal(t, []string{"stuck"}, obs.timeouts)
}

func TestExpectFormatsExpectedAndActual(t *testing.T) {
	require.NoError(t, Expect("user count", 3, 3))

	err := Expect("user count", 3, 4)
	require.Error(t, err)

	var assertErr *AssertionError
	require.ErrorAs(t, err, &assertErr)
	assert.Contains(t, err.Error(), "expected 3")
	assert.Contains(t, err.Error(), "got 4")
}
