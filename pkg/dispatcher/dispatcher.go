package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/morezero/callguard/pkg/boundary"
	"github.com/morezero/callguard/pkg/faults"
	"github.com/morezero/callguard/pkg/negotiate"
	"github.com/morezero/callguard/pkg/pipeline"
)

const logPrefix = "dispatcher:dispatch"

// Dispatcher routes requests to operations. Every call runs through the
// interceptor chain; failures are translated by the error boundary.
type Dispatcher struct {
	mu              sync.RWMutex
	ops             map[string]*Operation
	interceptors    []pipeline.Interceptor
	boundary        *boundary.Boundary
	endpointDefault negotiate.Format
	endpoints       map[string]negotiate.Format
}

// NewDispatcherParams holds parameters for NewDispatcher.
type NewDispatcherParams struct {
	Boundary *boundary.Boundary
	// Interceptors wrap every call; the first is outermost.
	Interceptors []pipeline.Interceptor
	// EndpointDefault is the fault format of endpoints missing from Endpoints.
	EndpointDefault negotiate.Format
	// Endpoints holds the fault format per endpoint name (EndpointNATS, EndpointHTTP).
	Endpoints map[string]negotiate.Format
}

// NewDispatcher creates a new Dispatcher.
func NewDispatcher(params NewDispatcherParams) *Dispatcher {
	b := params.Boundary
	if b == nil {
		b = boundary.New(boundary.NewParams{})
	}
	endpoints := make(map[string]negotiate.Format, len(params.Endpoints))
	for name, f := range params.Endpoints {
		endpoints[name] = f
	}
	return &Dispatcher{
		ops:             make(map[string]*Operation),
		interceptors:    params.Interceptors,
		boundary:        b,
		endpointDefault: params.EndpointDefault,
		endpoints:       endpoints,
	}
}

// Boundary returns the error boundary.
func (d *Dispatcher) Boundary() *boundary.Boundary { return d.boundary }

// Register adds operations. A duplicate name fails with *faults.AlreadyExistsError
// and nothing from the call is registered.
func (d *Dispatcher) Register(ops ...*Operation) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	seen := make(map[string]bool, len(ops))
	for _, op := range ops {
		if op == nil || op.Method == nil {
			return faults.NewArgumentNilError("operation")
		}
		key := op.Key()
		if _, ok := d.ops[key]; ok || seen[key] {
			return faults.NewAlreadyExistsError("operation %s is already registered", key)
		}
		seen[key] = true
	}
	for _, op := range ops {
		d.ops[op.Key()] = op
		slog.Debug(fmt.Sprintf("%s - registered %s", logPrefix, op.Key()))
	}
	return nil
}

// Operations returns the registered operation names, sorted.
func (d *Dispatcher) Operations() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.ops))
	for k := range d.ops {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (d *Dispatcher) lookup(name string) (*Operation, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	op, ok := d.ops[name]
	return op, ok
}

// Execute runs req and returns the result value, or the serialized fault when
// the call failed. Deferred results are awaited with ctx.
func (d *Dispatcher) Execute(ctx context.Context, req *OperationRequest) (any, *boundary.Response) {
	meta := d.meta(req)

	op, ok := d.lookup(req.Op)
	if !ok {
		return nil, d.fail(faults.NewNotImplementedError("unknown operation: %s", req.Op), meta)
	}

	params, err := op.decode(req.Params)
	if err != nil {
		return nil, d.fail(err, meta)
	}

	if req.Ctx != nil && req.Ctx.TimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(req.Ctx.TimeoutMs)*time.Millisecond)
		defer cancel()
	}

	inv := &pipeline.Invocation{
		Method:    op.Method,
		Params:    params,
		RequestID: requestID(req),
		Caller:    caller(req),
	}
	res := pipeline.Chain(op.call, d.interceptors...)(ctx, inv)

	v, err := await(ctx, res)
	if err != nil {
		return nil, d.fail(err, meta)
	}
	return v, nil
}

// Dispatch runs req and wraps the outcome in a response envelope.
func (d *Dispatcher) Dispatch(ctx context.Context, req *OperationRequest) *OperationResponse {
	slog.Debug(fmt.Sprintf("%s - op=%s id=%s", logPrefix, req.Op, req.ID))

	v, fault := d.Execute(ctx, req)
	if fault != nil {
		return errorResponse(req.ID, fault)
	}
	return &OperationResponse{ID: req.ID, Ok: true, Result: v}
}

// Reject answers req with the fault of err without running any operation.
func (d *Dispatcher) Reject(req *OperationRequest, err error) *OperationResponse {
	return errorResponse(req.ID, d.Fail(req, err))
}

// Fail translates err for req with the same format signals Execute uses.
func (d *Dispatcher) Fail(req *OperationRequest, err error) *boundary.Response {
	return d.fail(err, d.meta(req))
}

func (d *Dispatcher) meta(req *OperationRequest) boundary.RequestMeta {
	meta := boundary.RequestMeta{
		Operation:       req.Op,
		Accept:          req.Accept,
		ContentType:     req.ContentType,
		EndpointDefault: d.endpointFormat(req.Endpoint),
		FaultVersion:    req.FaultVersion,
	}
	if op, ok := d.lookup(req.Op); ok {
		meta.OperationDefault = op.DefaultFormat
	}
	return meta
}

func (d *Dispatcher) endpointFormat(name string) negotiate.Format {
	if f, ok := d.endpoints[name]; ok && f != negotiate.FormatUnset {
		return f
	}
	return d.endpointDefault
}

func (d *Dispatcher) fail(err error, meta boundary.RequestMeta) *boundary.Response {
	resp := d.boundary.Handle(err, meta)
	return &resp
}

func await(ctx context.Context, res *pipeline.Result) (any, error) {
	if res == nil {
		return nil, nil
	}
	if res.Future != nil {
		v, err := res.Future.Await(ctx)
		if err != nil && ctx.Err() != nil {
			// The deadline or the caller ended the call.
			return nil, ctx.Err()
		}
		return v, err
	}
	return res.Value, res.Err
}

func requestID(req *OperationRequest) string {
	if req.Ctx != nil && req.Ctx.RequestID != "" {
		return req.Ctx.RequestID
	}
	if req.ID != "" {
		return req.ID
	}
	return uuid.NewString()
}

func caller(req *OperationRequest) string {
	if req.Ctx != nil && req.Ctx.UserID != "" {
		return req.Ctx.UserID
	}
	return "system"
}

// --- helpers ---

func errorResponse(id string, resp *boundary.Response) *OperationResponse {
	detail := &ErrorDetail{
		Status:      resp.Status,
		Retryable:   retryable(resp.Status),
		Body:        string(resp.Body),
		ContentType: resp.ContentType,
		Version:     resp.Version,
	}
	wire := resp.Wire
	if wire == nil {
		wire = resp.Fault
	}
	if wire != nil {
		detail.Code = string(wire.Kind)
		detail.Message = wire.Message
		detail.CorrelationID = wire.CorrelationID
	}
	return &OperationResponse{ID: id, Ok: false, Error: detail}
}

func retryable(status int) bool {
	switch status {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusGatewayTimeout, http.StatusInternalServerError:
		return true
	}
	return false
}
