// Package future provides a single-assignment result cell for asynchronous
// request/response correlation.
//
// A Future is created empty by whoever sends a request and is resolved exactly
// once by whoever handles it. Readers may block on it, poll it, or wait with a
// deadline. Resolution closes a channel, so every reader observes the stored
// value without sharing a lock with the resolver.
package future

import (
	"context"
	"sync"
	"time"
)

// Future holds a value of type T that becomes available later.
type Future[T any] struct {
	once  sync.Once
	done  chan struct{}
	value T
}

// New creates an unresolved future.
func New[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolved creates a future that already holds v.
func Resolved[T any](v T) *Future[T] {
	f := New[T]()
	f.Resolve(v)
	return f
}

// Resolve stores v and wakes all waiters.
// Only the first call has any effect; it returns true. Later calls return
// false and leave the stored value untouched.
func (f *Future[T]) Resolve(v T) bool {
	resolved := false
	f.once.Do(func() {
		f.value = v
		close(f.done)
		resolved = true
	})
	return resolved
}

// Get blocks until the future is resolved and returns its value.
func (f *Future[T]) Get() T {
	<-f.done
	return f.value
}

// GetTimeout waits up to timeout for the value.
// The boolean is false if the future was not resolved in time; the returned
// value is then the zero value of T. A timeout <= 0 polls without blocking.
func (f *Future[T]) GetTimeout(timeout time.Duration) (T, bool) {
	if timeout <= 0 {
		select {
		case <-f.done:
			return f.value, true
		default:
			var zero T
			return zero, false
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-f.done:
		return f.value, true
	case <-timer.C:
		// Resolution may race the timer; prefer the value if both are ready.
		select {
		case <-f.done:
			return f.value, true
		default:
		}
		var zero T
		return zero, false
	}
}

// GetContext waits for the value or for ctx to end.
func (f *Future[T]) GetContext(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// IsDone reports whether the future has been resolved.
func (f *Future[T]) IsDone() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Done returns a channel that is closed once the future is resolved.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}
