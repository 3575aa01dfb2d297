// Package pipeline wraps operation calls with policies. Policies observe
// immediate and deferred results through the same hooks.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
)

const logPrefix = "pipeline:pipeline"

// Next invokes the rest of the chain.
type Next func(ctx context.Context, inv *Invocation) *Result

// Interceptor wraps a call.
type Interceptor interface {
	Invoke(ctx context.Context, inv *Invocation, next Next) *Result
}

// InterceptorFunc adapts a function to Interceptor.
type InterceptorFunc func(ctx context.Context, inv *Invocation, next Next) *Result

func (f InterceptorFunc) Invoke(ctx context.Context, inv *Invocation, next Next) *Result {
	return f(ctx, inv, next)
}

// Policy hooks a call. T is per-call state created by Prepare and handed to
// the later hooks.
//
// PreInvoke may return a non-nil result to skip the target. PostInvoke sees
// immediate results, and deferred results when the policy has no
// continuation; returning nil keeps the result unchanged.
type Policy[T any] interface {
	Prepare(ctx context.Context, inv *Invocation) (T, error)
	PreInvoke(ctx context.Context, inv *Invocation, state T) *Result
	PostInvoke(ctx context.Context, inv *Invocation, res *Result, state T) *Result
}

// Continuer is implemented by policies that want to observe a deferred
// result once it settles. res carries the settled value or error, and the
// settled future. Returning nil keeps the settled result.
type Continuer[T any] interface {
	Continue(ctx context.Context, inv *Invocation, res *Result, state T) *Result
}

// Base provides pass-through hooks for embedding.
type Base[T any] struct{}

func (Base[T]) Prepare(context.Context, *Invocation) (T, error) {
	var zero T
	return zero, nil
}

func (Base[T]) PreInvoke(context.Context, *Invocation, T) *Result { return nil }

func (Base[T]) PostInvoke(_ context.Context, _ *Invocation, res *Result, _ T) *Result {
	return res
}

// Pipeline runs one policy around the next stage of a chain.
type Pipeline[T any] struct {
	name   string
	policy Policy[T]
	cache  *StrategyCache
}

// NewParams configures New.
type NewParams struct {
	// Cache overrides the process-wide strategy cache.
	Cache *StrategyCache
}

// New wraps policy. name identifies the policy in errors and logs.
func New[T any](name string, policy Policy[T], params ...NewParams) *Pipeline[T] {
	p := &Pipeline[T]{name: name, policy: policy, cache: sharedStrategies}
	for _, o := range params {
		if o.Cache != nil {
			p.cache = o.Cache
		}
	}
	return p
}

// Name returns the policy name.
func (p *Pipeline[T]) Name() string { return p.name }

func (p *Pipeline[T]) strategy(m *Method) strategy {
	pt := reflect.TypeOf(p.policy)
	return p.cache.resolve(pt, func() bool {
		_, ok := p.policy.(Continuer[T])
		return ok
	}, m)
}

func (p *Pipeline[T]) failure(phase Phase, cause error) *PolicyError {
	slog.Error(fmt.Sprintf("%s - policy %s failed in %s: %v", logPrefix, p.name, phase, cause))
	return &PolicyError{Policy: p.name, Phase: phase, Cause: cause}
}

// Invoke runs Prepare, PreInvoke, the next stage, then either PostInvoke or,
// for a deferred method whose policy continues, attaches Continue to the
// returned future. A panic or error inside a hook becomes a *PolicyError
// result; a panic in the next stage becomes a *PanicError result.
func (p *Pipeline[T]) Invoke(ctx context.Context, inv *Invocation, next Next) (res *Result) {
	phase := PhasePrepare
	defer func() {
		if r := recover(); r != nil {
			res = Failure(p.failure(phase, NewPanicError(r)))
		}
	}()

	state, err := p.policy.Prepare(ctx, inv)
	if err != nil {
		return Failure(p.failure(PhasePrepare, err))
	}

	phase = PhasePreInvoke
	if short := p.policy.PreInvoke(ctx, inv, state); short != nil {
		slog.Debug(fmt.Sprintf("%s - policy %s short-circuited %s", logPrefix, p.name, inv.Method.Key()))
		return short
	}

	out := callNext(ctx, inv, next)

	st := p.strategy(inv.Method)
	if st.deferred && st.continues && out.Future != nil {
		cont := p.policy.(Continuer[T])
		return Later(p.attach(ctx, inv, out.Future, state, cont, st))
	}

	phase = PhasePostInvoke
	if post := p.policy.PostInvoke(ctx, inv, out, state); post != nil {
		return post
	}
	return out
}

// attach runs the continuation exactly once when src settles. A canceled
// source yields a canceled future whatever the continuation returns.
func (p *Pipeline[T]) attach(ctx context.Context, inv *Invocation, src *Future, state T, cont Continuer[T], st strategy) *Future {
	return src.Then(func(src, dst *Future) {
		defer func() {
			if r := recover(); r != nil {
				dst.Reject(p.failure(PhaseContinue, NewPanicError(r)))
			}
		}()
		settled := settledResult(src)
		out := cont.Continue(ctx, inv, settled, state)
		if src.Outcome() == Canceled {
			dst.Cancel()
			return
		}
		if out == nil {
			out = settled
		}
		switch {
		case out.Future != nil && out.Future != src:
			settleLike(dst, out.Future)
		case out.Err != nil:
			dst.Reject(out.Err)
		default:
			v := out.Value
			if v == nil && st.zero != nil {
				v = st.zero()
			}
			dst.Resolve(v)
		}
	})
}

func callNext(ctx context.Context, inv *Invocation, next Next) (res *Result) {
	if next == nil {
		return Failure(fmt.Errorf("%s - no target for %s", logPrefix, inv.Method.Key()))
	}
	defer func() {
		if r := recover(); r != nil {
			res = Failure(NewPanicError(r))
		}
	}()
	res = next(ctx, inv)
	if res == nil {
		res = &Result{}
	}
	return res
}

// Chain composes interceptors around terminal. The first interceptor is the
// outermost.
func Chain(terminal Next, interceptors ...Interceptor) Next {
	next := terminal
	for i := len(interceptors) - 1; i >= 0; i-- {
		ic, inner := interceptors[i], next
		next = func(ctx context.Context, inv *Invocation) *Result {
			return ic.Invoke(ctx, inv, inner)
		}
	}
	return next
}
