package session

import (
	"context"
	"errors"
	"time"
)

// ErrResolveTimeout is returned by ResolveWithTimeout when fn does not
// settle within the bound. Callers recover locally; it never reaches the
// UI as an error state.
var ErrResolveTimeout = errors.New("resolve timed out")

// ResolveWithTimeout runs fn under a deadline and returns its result, or
// the zero value and ErrResolveTimeout when the bound elapses first.
// This is the one timeout primitive shared by auth resolution and role
// resolution, so the fallback behavior cannot drift between them.
//
// fn receives a context cancelled at the deadline; a well-behaved fn
// returns promptly on cancellation, but ResolveWithTimeout does not wait
// for it: the caller gets the timeout as soon as the bound elapses and a
// late result is discarded here, never delivered.
func ResolveWithTimeout[T any](ctx context.Context, bound time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	type outcome struct {
		val T
		err error
	}

	fnCtx, cancel := context.WithTimeout(ctx, bound)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		val, err := fn(fnCtx)
		done <- outcome{val: val, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil && fnCtx.Err() != nil {
			var zero T
			if ctx.Err() != nil {
				return zero, ctx.Err()
			}
			return zero, ErrResolveTimeout
		}
		return out.val, out.err
	case <-fnCtx.Done():
		var zero T
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		return zero, ErrResolveTimeout
	}
}
