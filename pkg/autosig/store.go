package autosig

import (
	"context"
	"time"

	"code.autosig.org/golang/internal/utils"
)

// DefaultTimeout bounds each credential store call when no Timeout is configured.
const DefaultTimeout = 3 * time.Second

// callStore runs fn with a Context that expires after timeout.
// callStore returns as soon as the Context expires even if fn does not honor it,
// fn results are then discarded.
func callStore[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		value T
		err   error
	}
	done := make(chan result, 1)
	go func() {
		value, err := fn(ctx)
		done <- result{value: value, err: err}
	}()

	select {
	case res := <-done:
		return res.value, res.err
	case <-ctx.Done():
		var zero T
		return zero, utils.WrapError(ctx.Err(), 0, ErrTimeout, "no store answer after %s", timeout)
	}
}

// callStoreErr is callStore for store methods that only return an error.
func callStoreErr(ctx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	_, err := callStore(ctx, timeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
