// Package policies holds the built-in pipeline policies.
package policies

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/morezero/callguard/pkg/pipeline"
)

const tracingLogPrefix = "policies:tracing"

// Trace is the per-call state of Tracing.
type Trace struct {
	RequestID string
	Start     time.Time
}

// Tracing logs the start and the outcome of every call.
type Tracing struct {
	pipeline.Base[Trace]
	Logger *slog.Logger
}

func (p *Tracing) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.Default()
	}
	return p.Logger
}

func (p *Tracing) Prepare(_ context.Context, inv *pipeline.Invocation) (Trace, error) {
	id := inv.RequestID
	if id == "" {
		id = uuid.NewString()
	}
	return Trace{RequestID: id, Start: time.Now()}, nil
}

func (p *Tracing) PreInvoke(_ context.Context, inv *pipeline.Invocation, tr Trace) *pipeline.Result {
	p.logger().Debug(fmt.Sprintf("%s - start %s", tracingLogPrefix, inv.Method.Key()),
		"requestId", tr.RequestID, "caller", inv.Caller, "params", len(inv.Params))
	return nil
}

func (p *Tracing) PostInvoke(_ context.Context, inv *pipeline.Invocation, res *pipeline.Result, tr Trace) *pipeline.Result {
	if res.IsDeferred() {
		p.logger().Debug(fmt.Sprintf("%s - %s returned a deferred result", tracingLogPrefix, inv.Method.Key()),
			"requestId", tr.RequestID)
		return nil
	}
	p.finish(inv, res, tr)
	return nil
}

func (p *Tracing) Continue(_ context.Context, inv *pipeline.Invocation, res *pipeline.Result, tr Trace) *pipeline.Result {
	p.finish(inv, res, tr)
	return nil
}

func (p *Tracing) finish(inv *pipeline.Invocation, res *pipeline.Result, tr Trace) {
	outcome := res.Outcome()
	attrs := []any{"requestId", tr.RequestID, "outcome", outcome.String(), "duration", time.Since(tr.Start)}
	if outcome == pipeline.Failed {
		p.logger().Warn(fmt.Sprintf("%s - %s failed: %v", tracingLogPrefix, inv.Method.Key(), res.Err), attrs...)
		return
	}
	p.logger().Info(fmt.Sprintf("%s - %s %s", tracingLogPrefix, inv.Method.Key(), outcome), attrs...)
}
