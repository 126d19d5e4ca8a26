package step

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
)

// TimeoutError indicates a step exceeded its time budget
type TimeoutError struct {
	Step  string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("step '%s' timed out after %v", e.Step, e.After)
}

// Error wraps a failure raised by the step's adapter
type Error struct {
	Step string
	err  error
}

// NewError creates new step error
func NewError(step string, err error) error {
	return &Error{Step: step, err: err}
}

func (e *Error) Error() string {
	return fmt.Sprintf("step '%s': %v", e.Step, e.err)
}

func (e *Error) Unwrap() error {
	return e.err
}

// Run invokes fn with a bounded time budget.
// On timeout it returns *TimeoutError, on adapter failure *Error wrapping the cause.
// A partial value is never returned together with success
func Run[O any](ctx context.Context, name string, timeout time.Duration, fn func(context.Context) (O, error)) (O, error) {
	var empty O
	goapp.Log.Info().Str("step", name).Dur("timeout", timeout).Msg("step start")
	start := time.Now()
	sCtx, cf := context.WithTimeout(ctx, timeout)
	defer cf()
	res, err := fn(sCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && sCtx.Err() == context.DeadlineExceeded {
			goapp.Log.Warn().Str("step", name).Dur("after", time.Since(start)).Msg("step timeout")
			return empty, &TimeoutError{Step: name, After: timeout}
		}
		goapp.Log.Warn().Err(err).Str("step", name).Msg("step failed")
		return empty, NewError(name, err)
	}
	// fn may ignore its context, a value produced past the deadline is still late
	if sCtx.Err() == context.DeadlineExceeded {
		goapp.Log.Warn().Str("step", name).Dur("after", time.Since(start)).Msg("step timeout")
		return empty, &TimeoutError{Step: name, After: timeout}
	}
	goapp.Log.Info().Str("step", name).Dur("elapsed", time.Since(start)).Msg("step end")
	return res, nil
}
