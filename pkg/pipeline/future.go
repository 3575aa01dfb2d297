package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Outcome is the state of a Future.
type Outcome int

const (
	Pending Outcome = iota
	Succeeded
	Failed
	Canceled
)

func (o Outcome) String() string {
	switch o {
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case Canceled:
		return "canceled"
	}
	return "pending"
}

// ErrCanceled is returned by Result and Await for a canceled future.
var ErrCanceled = fmt.Errorf("pipeline: deferred value canceled: %w", context.Canceled)

// Future is a value computed later. It settles exactly once: resolved with a
// value, rejected with an error, or canceled.
type Future struct {
	once    sync.Once
	done    chan struct{}
	outcome Outcome
	value   any
	err     error
}

// NewFuture creates a pending future.
func NewFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Resolved returns a future already resolved with v.
func Resolved(v any) *Future {
	f := NewFuture()
	f.Resolve(v)
	return f
}

// Rejected returns a future already rejected with err.
func Rejected(err error) *Future {
	f := NewFuture()
	f.Reject(err)
	return f
}

// Go runs fn on a new goroutine and returns its future. The future is
// canceled if ctx ends before fn returns.
func Go(ctx context.Context, fn func(ctx context.Context) (any, error)) *Future {
	f := NewFuture()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				f.Reject(NewPanicError(r))
			}
		}()
		v, err := fn(ctx)
		switch {
		case err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()):
			f.Cancel()
		case err != nil:
			f.Reject(err)
		default:
			f.Resolve(v)
		}
	}()
	if ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				f.Cancel()
			case <-f.done:
			}
		}()
	}
	return f
}

func (f *Future) settle(o Outcome, v any, err error) bool {
	settled := false
	f.once.Do(func() {
		f.outcome, f.value, f.err = o, v, err
		close(f.done)
		settled = true
	})
	return settled
}

// Resolve settles the future with v. It reports false if already settled.
func (f *Future) Resolve(v any) bool { return f.settle(Succeeded, v, nil) }

// Reject settles the future with err. It reports false if already settled.
func (f *Future) Reject(err error) bool {
	if err == nil {
		err = errors.New("pipeline: rejected with nil error")
	}
	return f.settle(Failed, nil, err)
}

// Cancel settles the future as canceled. It reports false if already settled.
func (f *Future) Cancel() bool { return f.settle(Canceled, nil, nil) }

// Done is closed when the future settles.
func (f *Future) Done() <-chan struct{} { return f.done }

// Outcome returns the current state without blocking.
func (f *Future) Outcome() Outcome {
	select {
	case <-f.done:
		return f.outcome
	default:
		return Pending
	}
}

// Result returns the settled value without blocking. A pending future
// returns (nil, nil).
func (f *Future) Result() (any, error) {
	switch f.Outcome() {
	case Succeeded:
		return f.value, nil
	case Failed:
		return nil, f.err
	case Canceled:
		return nil, ErrCanceled
	}
	return nil, nil
}

// Await blocks until the future settles or ctx ends. Ending ctx does not
// cancel the future.
func (f *Future) Await(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.Result()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Then runs fn once, on a new goroutine, after f settles. fn settles dst; if
// it returns without doing so dst resolves with nil, and if it panics dst is
// rejected with a *PanicError. Then never blocks the caller.
func (f *Future) Then(fn func(src, dst *Future)) *Future {
	dst := NewFuture()
	go func() {
		<-f.done
		defer func() {
			if r := recover(); r != nil {
				dst.Reject(NewPanicError(r))
			}
			dst.Resolve(nil)
		}()
		fn(f, dst)
	}()
	return dst
}

// settleLike waits for src and settles dst the same way.
func settleLike(dst, src *Future) {
	<-src.done
	switch src.outcome {
	case Succeeded:
		dst.Resolve(src.value)
	case Failed:
		dst.Reject(src.err)
	default:
		dst.Cancel()
	}
}
