package flow

import (
	"fmt"
	"time"
)

// TimeoutError reports a wait step whose predicate never became true within
// its deadline. The label names the unmet condition.
type TimeoutError struct {
	Label   string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("flow: timed out after %s waiting for %s", e.Timeout, e.Label)
}

// AssertionError reports an expectation about observed state that did not
// hold, with expected and actual values for diagnostics.
type AssertionError struct {
	What     string
	Expected interface{}
	Actual   interface{}
}

func (e *AssertionError) Error() string {
	return fmt.Sprintf("flow: assertion failed: %s: expected %v, got %v", e.What, e.Expected, e.Actual)
}

// Expect returns nil when expected equals actual (by string formatting for
// scalars), or an *AssertionError otherwise.
func Expect(what string, expected, actual interface{}) error {
	if fmt.Sprintf("%v", expected) == fmt.Sprintf("%v", actual) {
		return nil
	}
	return &AssertionError{What: what, Expected: expected, Actual: actual}
}
