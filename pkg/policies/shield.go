package policies

import (
	"context"
	"errors"

	"github.com/morezero/callguard/pkg/boundary"
	"github.com/morezero/callguard/pkg/faults"
	"github.com/morezero/callguard/pkg/pipeline"
)

// Shield translates target failures into errors carrying a fault, so the
// fault is built where the operation's policy is known.
type Shield struct {
	pipeline.Base[struct{}]
	Builder *boundary.Builder
}

func (p *Shield) PostInvoke(_ context.Context, _ *pipeline.Invocation, res *pipeline.Result, _ struct{}) *pipeline.Result {
	return p.shield(res)
}

func (p *Shield) Continue(_ context.Context, _ *pipeline.Invocation, res *pipeline.Result, _ struct{}) *pipeline.Result {
	if res.Outcome() == pipeline.Canceled {
		return nil
	}
	return p.shield(res)
}

func (p *Shield) shield(res *pipeline.Result) *pipeline.Result {
	if res == nil || res.Err == nil || p.Builder == nil {
		return nil
	}
	var fe *faults.FaultError
	if errors.As(res.Err, &fe) {
		return nil
	}
	return pipeline.Failure(&faults.FaultError{Fault: p.Builder.Build(res.Err), Cause: res.Err})
}
