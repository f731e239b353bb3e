// Package flow provides the deferred-step scheduler that scenario builders
// compose: an ordered queue of one-shot actions and polled wait conditions,
// executed strictly sequentially with per-wait timeouts.
package flow

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultWaitTimeout bounds how long a single wait step may poll before
	// the scenario fails.
	DefaultWaitTimeout = 5 * time.Second

	// DefaultPollInterval is the cadence at which wait predicates are
	// re-evaluated.
	DefaultPollInterval = 50 * time.Millisecond
)

// Scenario is a runnable test flow. Scenario builders return one of these;
// the host test case invokes it exactly once.
type Scenario func(ctx context.Context) error

// ActionFunc is a one-shot side-effecting step. It runs to completion
// synchronously when the scheduler reaches it.
type ActionFunc func(ctx context.Context) error

// Predicate is a read-only readiness check for a wait step. It must not
// mutate application state; side effects belong in actions.
type Predicate func(ctx context.Context) (bool, error)

type stepKind int

const (
	stepAction stepKind = iota
	stepWait
)

type step struct {
	kind    stepKind
	label   string
	action  ActionFunc
	pred    Predicate
	timeout time.Duration // zero means runner default
}

// Observer receives step lifecycle notifications. Implementations must be
// cheap; they are called inline on the scheduling path.
type Observer interface {
	StepStarted(kind, label string)
	StepFinished(kind, label string, d time.Duration, err error)
	WaitTimedOut(label string, timeout time.Duration)
}

// Runner owns one step queue for the duration of a scenario. It is not safe
// for concurrent use; a scenario is single-threaded by contract.
type Runner struct {
	steps        []step
	consumed     bool
	pollInterval time.Duration
	waitTimeout  time.Duration
	logger       *zap.Logger
	observer     Observer
}

// Option configures a Runner.
type Option func(*Runner)

// WithPollInterval overrides the predicate polling cadence.
func WithPollInterval(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.pollInterval = d
		}
	}
}

// WithWaitTimeout overrides the default wait timeout for all wait steps that
// do not carry their own.
func WithWaitTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.waitTimeout = d
		}
	}
}

// WithLogger attaches a logger for step-level debug output.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithObserver attaches a step lifecycle observer (metrics, tracing).
func WithObserver(obs Observer) Option {
	return func(r *Runner) {
		r.observer = obs
	}
}

// NewRunner creates an empty step queue with the given options applied.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		pollInterval: DefaultPollInterval,
		waitTimeout:  DefaultWaitTimeout,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Action appends a one-shot step. The name is used in failure diagnostics.
func (r *Runner) Action(name string, fn ActionFunc) *Runner {
	r.steps = append(r.steps, step{kind: stepAction, label: name, action: fn})
	return r
}

// Wait appends a polled readiness condition using the runner's default
// timeout. The label identifies the awaited condition in timeout errors.
func (r *Runner) Wait(label string, pred Predicate) *Runner {
	r.steps = append(r.steps, step{kind: stepWait, label: label, pred: pred})
	return r
}

// WaitWithTimeout appends a polled readiness condition with its own deadline.
func (r *Runner) WaitWithTimeout(label string, timeout time.Duration, pred Predicate) *Runner {
	r.steps = append(r.steps, step{kind: stepWait, label: label, pred: pred, timeout: timeout})
	return r
}

// Len returns the number of enqueued steps.
func (r *Runner) Len() int {
	return len(r.steps)
}

// Scenario packages the runner as a Scenario. Like Run, the resulting
// scenario may be invoked only once.
func (r *Runner) Scenario() Scenario {
	return r.Run
}

// Run executes the queue strictly in enqueue order. The first failing step
// aborts the run; there is no partial-recovery path. The queue is consumed:
// a second Run returns an error rather than silently re-executing steps.
func (r *Runner) Run(ctx context.Context) error {
	if r.consumed {
		return fmt.Errorf("flow: step queue already consumed")
	}
	r.consumed = true

	for i, s := range r.steps {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("flow: aborted before step %d (%s): %w", i, s.label, err)
		}

		kind := "action"
		if s.kind == stepWait {
			kind = "wait"
		}
		if r.observer != nil {
			r.observer.StepStarted(kind, s.label)
		}
		start := time.Now()

		var err error
		switch s.kind {
		case stepAction:
			r.logger.Debug("Running action step", zap.Int("step", i), zap.String("name", s.label))
			err = s.action(ctx)
		case stepWait:
			r.logger.Debug("Polling wait step", zap.Int("step", i), zap.String("label", s.label))
			err = r.runWait(ctx, s)
		}

		if r.observer != nil {
			r.observer.StepFinished(kind, s.label, time.Since(start), err)
		}
		if err != nil {
			r.logger.Debug("Step failed",
				zap.Int("step", i),
				zap.String("label", s.label),
				zap.Error(err))
			return err
		}
	}

	r.steps = nil
	return nil
}

// runWait polls the predicate until it reports ready, the step deadline
// passes, or the context is cancelled. The predicate is evaluated once
// immediately so an already-satisfied condition advances without waiting a
// full tick.
func (r *Runner) runWait(ctx context.Context, s step) error {
	timeout := s.timeout
	if timeout <= 0 {
		timeout = r.waitTimeout
	}

	deadline := time.Now().Add(timeout)

	ok, err := s.pred(ctx)
	if err != nil {
		return fmt.Errorf("flow: wait %q: predicate failed: %w", s.label, err)
	}
	if ok {
		return nil
	}

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("flow: wait %q: %w", s.label, ctx.Err())
		case now := <-ticker.C:
			ok, err := s.pred(ctx)
			if err != nil {
				return fmt.Errorf("flow: wait %q: predicate failed: %w", s.label, err)
			}
			if ok {
				return nil
			}
			if now.After(deadline) {
				if r.observer != nil {
					r.observer.WaitTimedOut(s.label, timeout)
				}
				return &TimeoutError{Label: s.label, Timeout: timeout}
			}
		}
	}
}

// Guarded wraps a predicate so that errors are treated as "not yet
// satisfied" instead of failing the scenario. Use for predicates that probe
// state which legitimately does not exist yet (missing DOM nodes, 404s).
func Guarded(pred Predicate) Predicate {
	return func(ctx context.Context) (bool, error) {
		ok, err := pred(ctx)
		if err != nil {
			return false, nil
		}
		return ok, nil
	}
}
