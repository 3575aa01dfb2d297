package pipeline

import (
	"reflect"
)

// ResultKind is the declared result shape of an operation.
type ResultKind int

const (
	// Immediate operations return their value directly.
	Immediate ResultKind = iota
	// Deferred operations return a *Future.
	Deferred
)

var (
	futureType = reflect.TypeOf((*Future)(nil))
	errorType  = reflect.TypeOf((*error)(nil)).Elem()
)

// Method describes an operation target.
type Method struct {
	Target string
	Name   string
	Result ResultKind
	// ResultType is the unwrapped result type; nil when the operation has no payload.
	ResultType reflect.Type
}

// Key identifies the method in caches.
func (m *Method) Key() string {
	if m == nil {
		return ""
	}
	return m.Target + "." + m.Name
}

// MethodOf describes fn by inspecting its signature: a *Future return makes
// the method deferred, otherwise the first non-error return is the result type.
// A future does not name its payload type, so a deferred method has a nil
// ResultType and settles an empty payload as nil; use DeferredMethodOf to
// declare it.
func MethodOf(target, name string, fn any) *Method {
	m := &Method{Target: target, Name: name}
	ft := reflect.TypeOf(fn)
	if ft == nil || ft.Kind() != reflect.Func {
		return m
	}
	for i := 0; i < ft.NumOut(); i++ {
		out := ft.Out(i)
		switch {
		case out == futureType:
			m.Result = Deferred
		case out.Implements(errorType):
		case m.ResultType == nil:
			m.ResultType = out
		}
	}
	if m.Result == Deferred {
		m.ResultType = nil
	}
	return m
}

// DeferredMethodOf describes a deferred method whose future settles with an R.
// An empty payload then settles as R's zero value.
func DeferredMethodOf[R any](target, name string) *Method {
	return &Method{Target: target, Name: name, Result: Deferred, ResultType: reflect.TypeOf((*R)(nil)).Elem()}
}

// Param is one argument of an invocation.
type Param struct {
	Name  string
	Value any
	Type  reflect.Type
}

// Invocation is the read-only view of one call.
type Invocation struct {
	Method    *Method
	Params    []Param
	RequestID string
	Caller    string
}

// Param returns the parameter named name.
func (inv *Invocation) Param(name string) (Param, bool) {
	for _, p := range inv.Params {
		if p.Name == name {
			return p, true
		}
	}
	return Param{}, false
}

// Result is what an invocation produced: a value, an error, or a future.
type Result struct {
	Value  any
	Err    error
	Future *Future
}

// Value returns an immediate successful result.
func Value(v any) *Result { return &Result{Value: v} }

// Failure returns an immediate failed result.
func Failure(err error) *Result { return &Result{Err: err} }

// Later returns a deferred result.
func Later(f *Future) *Result { return &Result{Future: f} }

// IsDeferred reports whether the result carries an unsettled or settled future.
func (r *Result) IsDeferred() bool { return r != nil && r.Future != nil }

// Outcome classifies the result; a deferred result reports its future's state.
func (r *Result) Outcome() Outcome {
	switch {
	case r == nil:
		return Succeeded
	case r.Future != nil:
		return r.Future.Outcome()
	case r.Err != nil:
		return Failed
	}
	return Succeeded
}

func settledResult(f *Future) *Result {
	v, err := f.Result()
	return &Result{Value: v, Err: err, Future: f}
}
