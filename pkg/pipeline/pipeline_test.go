package pipeline

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

const pipelineTestPrefix = "pipeline:pipeline_test"

type counts struct {
	pre, post, cont atomic.Int32
	outcome         atomic.Int32
}

type countingPolicy struct {
	Base[*counts]
	c *counts
}

func (p countingPolicy) Prepare(context.Context, *Invocation) (*counts, error) { return p.c, nil }

func (p countingPolicy) PreInvoke(_ context.Context, _ *Invocation, s *counts) *Result {
	s.pre.Add(1)
	return nil
}

func (p countingPolicy) PostInvoke(_ context.Context, _ *Invocation, res *Result, s *counts) *Result {
	s.post.Add(1)
	return res
}

type continuingPolicy struct {
	countingPolicy
}

func (p continuingPolicy) Continue(_ context.Context, _ *Invocation, res *Result, s *counts) *Result {
	s.cont.Add(1)
	s.outcome.Store(int32(res.Outcome()))
	return nil
}

func immediateInv() *Invocation {
	return &Invocation{Method: &Method{Target: "widgets", Name: "get", ResultType: reflect.TypeOf(0)}}
}

func deferredInv() *Invocation {
	return &Invocation{Method: &Method{Target: "widgets", Name: "load", Result: Deferred, ResultType: reflect.TypeOf(0)}}
}

func await(t *testing.T, f *Future) (any, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	v, err := f.Await(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("%s - future never settled", pipelineTestPrefix)
	}
	return v, err
}

func TestInvoke_ImmediateRunsPostInvokeOnce(t *testing.T) {
	c := &counts{}
	p := New[*counts]("count", continuingPolicy{countingPolicy{c: c}}, NewParams{Cache: NewStrategyCache()})
	res := p.Invoke(context.Background(), immediateInv(), func(context.Context, *Invocation) *Result {
		return Value(7)
	})
	if res.Err != nil || res.Value != 7 {
		t.Fatalf("%s - result = %+v", pipelineTestPrefix, res)
	}
	if c.pre.Load() != 1 || c.post.Load() != 1 || c.cont.Load() != 0 {
		t.Errorf("%s - pre=%d post=%d cont=%d", pipelineTestPrefix, c.pre.Load(), c.post.Load(), c.cont.Load())
	}
}

func TestInvoke_DeferredContinuesOnceAfterSettle(t *testing.T) {
	c := &counts{}
	p := New[*counts]("count", continuingPolicy{countingPolicy{c: c}}, NewParams{Cache: NewStrategyCache()})
	src := NewFuture()
	res := p.Invoke(context.Background(), deferredInv(), func(context.Context, *Invocation) *Result {
		return Later(src)
	})
	if !res.IsDeferred() || res.Future == src {
		t.Fatalf("%s - expected a wrapping future", pipelineTestPrefix)
	}
	if c.cont.Load() != 0 {
		t.Errorf("%s - continuation ran before settle", pipelineTestPrefix)
	}
	src.Resolve(5)
	v, err := await(t, res.Future)
	if err != nil || v != 5 {
		t.Errorf("%s - await = %v, %v", pipelineTestPrefix, v, err)
	}
	if c.cont.Load() != 1 || c.post.Load() != 0 {
		t.Errorf("%s - cont=%d post=%d", pipelineTestPrefix, c.cont.Load(), c.post.Load())
	}
	if Outcome(c.outcome.Load()) != Succeeded {
		t.Errorf("%s - outcome seen = %s", pipelineTestPrefix, Outcome(c.outcome.Load()))
	}
}

func TestInvoke_DeferredRejectionPropagates(t *testing.T) {
	c := &counts{}
	p := New[*counts]("count", continuingPolicy{countingPolicy{c: c}}, NewParams{Cache: NewStrategyCache()})
	boom := errors.New("boom")
	res := p.Invoke(context.Background(), deferredInv(), func(context.Context, *Invocation) *Result {
		return Later(Rejected(boom))
	})
	_, err := await(t, res.Future)
	if !errors.Is(err, boom) {
		t.Errorf("%s - err = %v, want boom", pipelineTestPrefix, err)
	}
	if c.cont.Load() != 1 || Outcome(c.outcome.Load()) != Failed {
		t.Errorf("%s - cont=%d outcome=%s", pipelineTestPrefix, c.cont.Load(), Outcome(c.outcome.Load()))
	}
}

func TestInvoke_DeferredCancellationSurvives(t *testing.T) {
	c := &counts{}
	p := New[*counts]("count", continuingPolicy{countingPolicy{c: c}}, NewParams{Cache: NewStrategyCache()})
	src := NewFuture()
	res := p.Invoke(context.Background(), deferredInv(), func(context.Context, *Invocation) *Result {
		return Later(src)
	})
	src.Cancel()
	_, err := await(t, res.Future)
	if res.Future.Outcome() != Canceled {
		t.Errorf("%s - outcome = %s, want canceled", pipelineTestPrefix, res.Future.Outcome())
	}
	if !errors.Is(err, ErrCanceled) || !errors.Is(err, context.Canceled) {
		t.Errorf("%s - err = %v", pipelineTestPrefix, err)
	}
	if c.cont.Load() != 1 || Outcome(c.outcome.Load()) != Canceled {
		t.Errorf("%s - cont=%d outcome=%s", pipelineTestPrefix, c.cont.Load(), Outcome(c.outcome.Load()))
	}
}

func TestInvoke_DeferredNilValueBecomesZero(t *testing.T) {
	c := &counts{}
	p := New[*counts]("count", continuingPolicy{countingPolicy{c: c}}, NewParams{Cache: NewStrategyCache()})
	res := p.Invoke(context.Background(), deferredInv(), func(context.Context, *Invocation) *Result {
		return Later(Resolved(nil))
	})
	v, err := await(t, res.Future)
	if err != nil || v != 0 {
		t.Errorf("%s - await = %#v, %v; want int zero", pipelineTestPrefix, v, err)
	}
}

func TestInvoke_DeferredWithoutContinuationUsesPostInvoke(t *testing.T) {
	c := &counts{}
	p := New[*counts]("count", countingPolicy{c: c}, NewParams{Cache: NewStrategyCache()})
	src := NewFuture()
	res := p.Invoke(context.Background(), deferredInv(), func(context.Context, *Invocation) *Result {
		return Later(src)
	})
	if res.Future != src {
		t.Errorf("%s - future should pass through untouched", pipelineTestPrefix)
	}
	if c.post.Load() != 1 {
		t.Errorf("%s - post = %d", pipelineTestPrefix, c.post.Load())
	}
}

type shortPolicy struct{ Base[struct{}] }

func (shortPolicy) PreInvoke(context.Context, *Invocation, struct{}) *Result {
	return Failure(errors.New("denied"))
}

func TestInvoke_PreInvokeShortCircuits(t *testing.T) {
	called := false
	p := New[struct{}]("deny", shortPolicy{})
	res := p.Invoke(context.Background(), immediateInv(), func(context.Context, *Invocation) *Result {
		called = true
		return Value(1)
	})
	if called {
		t.Errorf("%s - target should not run", pipelineTestPrefix)
	}
	if res.Err == nil || res.Err.Error() != "denied" {
		t.Errorf("%s - err = %v", pipelineTestPrefix, res.Err)
	}
}

type panicPolicy struct {
	Base[int]
	phase Phase
}

func (p panicPolicy) Prepare(context.Context, *Invocation) (int, error) {
	if p.phase == PhasePrepare {
		return 0, errors.New("no state")
	}
	return 1, nil
}

func (p panicPolicy) PreInvoke(context.Context, *Invocation, int) *Result {
	if p.phase == PhasePreInvoke {
		panic("pre")
	}
	return nil
}

func (p panicPolicy) PostInvoke(_ context.Context, _ *Invocation, res *Result, _ int) *Result {
	if p.phase == PhasePostInvoke {
		panic("post")
	}
	return res
}

func (p panicPolicy) Continue(_ context.Context, _ *Invocation, res *Result, _ int) *Result {
	if p.phase == PhaseContinue {
		panic("continue")
	}
	return res
}

func TestInvoke_PolicyFailuresAreReported(t *testing.T) {
	for _, phase := range []Phase{PhasePrepare, PhasePreInvoke, PhasePostInvoke} {
		t.Run(string(phase), func(t *testing.T) {
			p := New[int]("fragile", panicPolicy{phase: phase}, NewParams{Cache: NewStrategyCache()})
			res := p.Invoke(context.Background(), immediateInv(), func(context.Context, *Invocation) *Result {
				return Value(1)
			})
			var pe *PolicyError
			if !errors.As(res.Err, &pe) {
				t.Fatalf("%s - err = %v, want PolicyError", pipelineTestPrefix, res.Err)
			}
			if pe.Phase != phase || pe.Policy != "fragile" {
				t.Errorf("%s - policy error = %+v", pipelineTestPrefix, pe)
			}
		})
	}
}

func TestInvoke_ContinuePanicRejectsFuture(t *testing.T) {
	p := New[int]("fragile", panicPolicy{phase: PhaseContinue}, NewParams{Cache: NewStrategyCache()})
	res := p.Invoke(context.Background(), deferredInv(), func(context.Context, *Invocation) *Result {
		return Later(Resolved(1))
	})
	_, err := await(t, res.Future)
	var pe *PolicyError
	if !errors.As(err, &pe) || pe.Phase != PhaseContinue {
		t.Errorf("%s - err = %v", pipelineTestPrefix, err)
	}
}

func TestInvoke_TargetPanicIsNotPolicyFailure(t *testing.T) {
	p := New[struct{}]("noop", Base[struct{}]{})
	res := p.Invoke(context.Background(), immediateInv(), func(context.Context, *Invocation) *Result {
		panic("target")
	})
	var pe *PolicyError
	if errors.As(res.Err, &pe) {
		t.Errorf("%s - target panic reported as policy failure", pipelineTestPrefix)
	}
	var panicErr *PanicError
	if !errors.As(res.Err, &panicErr) || panicErr.Value != "target" {
		t.Errorf("%s - err = %v", pipelineTestPrefix, res.Err)
	}
}

func TestStrategyCache_ComputesOncePerMethod(t *testing.T) {
	cache := NewStrategyCache()
	p := New[*counts]("count", continuingPolicy{countingPolicy{c: &counts{}}}, NewParams{Cache: cache})
	target := func(context.Context, *Invocation) *Result { return Value(1) }

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Invoke(context.Background(), immediateInv(), target)
		}()
	}
	wg.Wait()
	if got := cache.Computed(); got != 1 {
		t.Errorf("%s - computed = %d, want 1", pipelineTestPrefix, got)
	}
	p.Invoke(context.Background(), deferredInv(), target)
	if got := cache.Computed(); got != 2 {
		t.Errorf("%s - computed = %d, want 2", pipelineTestPrefix, got)
	}
}

func TestChain_Order(t *testing.T) {
	var order []string
	mark := func(name string) Interceptor {
		return InterceptorFunc(func(ctx context.Context, inv *Invocation, next Next) *Result {
			order = append(order, name)
			return next(ctx, inv)
		})
	}
	call := Chain(func(context.Context, *Invocation) *Result {
		order = append(order, "target")
		return Value(nil)
	}, mark("outer"), mark("inner"))
	call(context.Background(), immediateInv())
	if len(order) != 3 || order[0] != "outer" || order[1] != "inner" || order[2] != "target" {
		t.Errorf("%s - order = %v", pipelineTestPrefix, order)
	}
}

func TestMethodOf(t *testing.T) {
	m := MethodOf("widgets", "get", func(context.Context, string) (int, error) { return 0, nil })
	if m.Result != Immediate || m.ResultType != reflect.TypeOf(0) {
		t.Errorf("%s - immediate method = %+v", pipelineTestPrefix, m)
	}
	m = MethodOf("widgets", "load", func(context.Context) *Future { return nil })
	if m.Result != Deferred {
		t.Errorf("%s - deferred method = %+v", pipelineTestPrefix, m)
	}
	if m.Key() != "widgets.load" {
		t.Errorf("%s - key = %q", pipelineTestPrefix, m.Key())
	}
	if m.ResultType != nil {
		t.Errorf("%s - a future return cannot name its payload type, got %v", pipelineTestPrefix, m.ResultType)
	}
}

func TestDeferredMethodOf_EmptyPayloadBecomesZero(t *testing.T) {
	m := DeferredMethodOf[string]("widgets", "name")
	if m.Result != Deferred || m.ResultType != reflect.TypeOf("") || m.Key() != "widgets.name" {
		t.Fatalf("%s - method = %+v", pipelineTestPrefix, m)
	}
	c := &counts{}
	p := New[*counts]("count", continuingPolicy{countingPolicy{c: c}}, NewParams{Cache: NewStrategyCache()})
	res := p.Invoke(context.Background(), &Invocation{Method: m}, func(context.Context, *Invocation) *Result {
		return Later(Resolved(nil))
	})
	v, err := await(t, res.Future)
	if err != nil || v != "" {
		t.Errorf("%s - await = %#v, %v; want empty string", pipelineTestPrefix, v, err)
	}
}
