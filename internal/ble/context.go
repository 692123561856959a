package ble

import (
	"context"
	"sync"
)

// callWithContext runs fn in its own goroutine and returns its result, or
// ctx.Err() if ctx ends first. tinygo/bluetooth calls block with their own
// internal timeouts and cannot be cancelled, so an abandoned call is left to
// finish in the background.
func callWithContext[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	return callWithRelease(ctx, fn, nil)
}

// callWithRelease is callWithContext for calls that acquire a resource. When
// ctx ends first and fn later succeeds, release receives the value nobody
// will collect.
func callWithRelease[T any](ctx context.Context, fn func() (T, error), release func(T)) (T, error) {
	type result struct {
		v   T
		err error
	}
	var (
		mu        sync.Mutex
		abandoned bool
	)
	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		mu.Lock()
		if !abandoned {
			ch <- result{v, err}
			mu.Unlock()
			return
		}
		mu.Unlock()
		if err == nil && release != nil {
			release(v)
		}
	}()

	select {
	case <-ctx.Done():
		mu.Lock()
		defer mu.Unlock()
		select {
		case r := <-ch:
			return r.v, r.err
		default:
		}
		abandoned = true
		var zero T
		return zero, ctx.Err()
	case r := <-ch:
		return r.v, r.err
	}
}
