package dispatcher

import (
	"context"
	"encoding/json"
	"reflect"

	"github.com/morezero/callguard/pkg/faults"
	"github.com/morezero/callguard/pkg/negotiate"
	"github.com/morezero/callguard/pkg/pipeline"
)

// Operation is a registered call target.
type Operation struct {
	Method *pipeline.Method
	// DefaultFormat is the fault format used when the caller sends no signal.
	DefaultFormat negotiate.Format

	decode func(raw json.RawMessage) ([]pipeline.Param, error)
	call   pipeline.Next
}

// Key returns the operation name callers use.
func (o *Operation) Key() string { return o.Method.Key() }

// WithFormat sets the operation's default fault format.
func (o *Operation) WithFormat(f negotiate.Format) *Operation {
	o.DefaultFormat = f
	return o
}

// Func registers an operation that returns its result directly.
func Func[P, R any](target, name string, fn func(ctx context.Context, params P) (R, error)) *Operation {
	return &Operation{
		Method: pipeline.MethodOf(target, name, fn),
		decode: decodeParams[P](target + "." + name),
		call: func(ctx context.Context, inv *pipeline.Invocation) *pipeline.Result {
			v, err := fn(ctx, paramOf[P](inv))
			if err != nil {
				return pipeline.Failure(err)
			}
			return pipeline.Value(v)
		},
	}
}

// AsyncFunc registers an operation that returns a future settling with an R.
func AsyncFunc[P, R any](target, name string, fn func(ctx context.Context, params P) *pipeline.Future) *Operation {
	return &Operation{
		Method: pipeline.DeferredMethodOf[R](target, name),
		decode: decodeParams[P](target + "." + name),
		call: func(ctx context.Context, inv *pipeline.Invocation) *pipeline.Result {
			f := fn(ctx, paramOf[P](inv))
			if f == nil {
				return pipeline.Value(nil)
			}
			return pipeline.Later(f)
		},
	}
}

func decodeParams[P any](key string) func(json.RawMessage) ([]pipeline.Param, error) {
	return func(raw json.RawMessage) ([]pipeline.Param, error) {
		var p P
		if len(raw) > 0 && string(raw) != "null" {
			if err := json.Unmarshal(raw, &p); err != nil {
				return nil, faults.NewSerializationError(err, "invalid params for %s", key)
			}
		}
		return []pipeline.Param{{Name: "params", Value: p, Type: reflect.TypeOf((*P)(nil)).Elem()}}, nil
	}
}

func paramOf[P any](inv *pipeline.Invocation) P {
	var zero P
	if inv == nil {
		return zero
	}
	p, ok := inv.Param("params")
	if !ok {
		return zero
	}
	if v, ok := p.Value.(P); ok {
		return v
	}
	return zero
}
