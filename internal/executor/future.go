package executor

import (
	"context"
	"fmt"
)

// Future is the handle of a submitted task.
type Future[T any] struct {
	done   chan struct{}
	cancel context.CancelFunc
	value  T
	err    error
}

// Go submits fn to s and returns its future. fn receives a context that is
// cancelled when ctx ends or Cancel is called. A panic inside fn resolves
// the future with an error instead of crashing the pool.
func Go[T any](ctx context.Context, s Submitter, fn func(ctx context.Context) (T, error)) (*Future[T], error) {
	taskCtx, cancel := context.WithCancel(ctx)
	f := &Future[T]{done: make(chan struct{}), cancel: cancel}

	err := s.Submit(func() {
		defer close(f.done)
		defer cancel()
		defer func() {
			if rvr := recover(); rvr != nil {
				f.err = fmt.Errorf("task panic: %v", rvr)
			}
		}()
		f.value, f.err = fn(taskCtx)
	})
	if err != nil {
		cancel()
		return nil, err
	}
	return f, nil
}

// Done is closed once the task has returned.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Cancel asks the task to stop. The task may ignore it.
func (f *Future[T]) Cancel() { f.cancel() }

// Result returns the task outcome. It must only be called after Done is closed.
func (f *Future[T]) Result() (T, error) {
	return f.value, f.err
}

// Wait blocks until the task returns or ctx ends.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
