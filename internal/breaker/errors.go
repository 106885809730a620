package breaker

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrOpen matches every *OpenError via errors.Is.
var ErrOpen = errors.New("circuit breaker is open")

// OpenError is returned when a breaker rejects a call without running it.
// RetryAfter is the time left until the next probe is allowed; it is zero
// when the half-open trial budget is exhausted.
type OpenError struct {
	Name       string
	RetryAfter time.Duration
}

func (e *OpenError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("circuit breaker %q is open (retry after %s)", e.Name, e.RetryAfter.Round(time.Millisecond))
	}
	return fmt.Sprintf("circuit breaker %q is open", e.Name)
}

func (e *OpenError) Is(target error) bool {
	return target == ErrOpen
}

// RetryAfter extracts the retry interval from err, if it is a breaker rejection.
func RetryAfter(err error) (time.Duration, bool) {
	var oe *OpenError
	if errors.As(err, &oe) {
		return oe.RetryAfter, true
	}
	return 0, false
}

// AnyError classifies every non-nil error as a failure.
func AnyError(err error) bool {
	return err != nil
}

// IgnoreErrors classifies every error as a failure except those matching one of ignored.
func IgnoreErrors(ignored ...error) func(error) bool {
	return func(err error) bool {
		if err == nil {
			return false
		}
		for _, target := range ignored {
			if errors.Is(err, target) {
				return false
			}
		}
		return true
	}
}

// IgnoreCanceled treats caller cancellation as neutral. Deadlines still count as failures.
var IgnoreCanceled = IgnoreErrors(context.Canceled)
