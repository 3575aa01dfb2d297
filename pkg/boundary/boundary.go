package boundary

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/morezero/callguard/pkg/commsutil"
	"github.com/morezero/callguard/pkg/events"
	"github.com/morezero/callguard/pkg/faults"
	"github.com/morezero/callguard/pkg/negotiate"
	"github.com/morezero/callguard/pkg/semver"
)

const boundaryLogPrefix = "boundary:boundary"

// RequestMeta describes the failing call.
type RequestMeta struct {
	Operation        string
	Accept           string
	ContentType      string
	OperationDefault negotiate.Format
	EndpointDefault  negotiate.Format
	// FaultVersion is a SemVer constraint on the fault schema.
	FaultVersion string
}

// Response is a serialized fault ready to be written.
type Response struct {
	Body        []byte
	Status      int
	Format      negotiate.Format
	ContentType string
	// Version is the fault schema version of Body.
	Version string
	// Fault is the full fault, diagnostics included.
	Fault *faults.Fault
	// Wire is the fault as serialized into Body.
	Wire *faults.Fault
}

// Boundary is the last line of defense for a failing call.
type Boundary struct {
	builder    *Builder
	negotiator negotiate.Negotiator
	logger     Logger
	trace      io.Writer
	encoders   map[negotiate.Format]commsutil.FaultEncoder
	publisher  events.EventPublisher
	env        string
}

// NewParams holds parameters for New.
type NewParams struct {
	Builder *Builder
	// ProcessDefault is the format used when nothing else decides.
	ProcessDefault negotiate.Format
	// Logger defaults to SlogLogger.
	Logger Logger
	// Trace receives a line when Logger fails. Defaults to stderr.
	Trace io.Writer
	// Encoders override the built-in fault encoders per format.
	Encoders  map[negotiate.Format]commsutil.FaultEncoder
	Publisher events.EventPublisher
	Env       string
}

// New creates a boundary.
func New(params NewParams) *Boundary {
	b := &Boundary{
		builder:    params.Builder,
		negotiator: negotiate.Negotiator{ProcessDefault: params.ProcessDefault},
		logger:     params.Logger,
		trace:      params.Trace,
		encoders:   commsutil.FaultEncoders(),
		publisher:  params.Publisher,
		env:        params.Env,
	}
	if b.builder == nil {
		b.builder = NewBuilder(nil, "", false)
	}
	if b.logger == nil {
		b.logger = SlogLogger{}
	}
	if b.trace == nil {
		b.trace = os.Stderr
	}
	if b.publisher == nil {
		b.publisher = &events.NoOpPublisher{}
	}
	for f, enc := range params.Encoders {
		b.encoders[f] = enc
	}
	return b
}

// Builder returns the fault builder.
func (b *Boundary) Builder() *Builder { return b.builder }

// Handle translates err into a serialized fault. It logs the full fault,
// negotiates the format and schema version, and publishes a fault event. It
// never panics: if encoding fails the response is a minimal plain-text fault.
func (b *Boundary) Handle(err error, meta RequestMeta) (resp Response) {
	var f *faults.Fault
	defer func() {
		if r := recover(); r != nil {
			id := ""
			if f != nil {
				id = f.CorrelationID
			}
			if id == "" {
				id = safeID()
			}
			resp = minimalResponse(id)
		}
	}()

	f = b.builder.Build(err)
	b.log(err, f, meta)

	version, _ := semver.Resolve(semver.ResolveParams{Range: meta.FaultVersion})
	out := b.builder.Present(f, err, version.NestedDetails)
	format := b.negotiator.Resolve(negotiate.Context{
		Accept:           meta.Accept,
		ContentType:      meta.ContentType,
		OperationDefault: meta.OperationDefault,
		EndpointDefault:  meta.EndpointDefault,
	})

	body, encErr := b.encode(format, out)
	if encErr != nil {
		slog.Error(fmt.Sprintf("%s - failed to encode %s fault %s: %v", boundaryLogPrefix, format, f.CorrelationID, encErr))
		resp = minimalResponse(f.CorrelationID)
		resp.Fault = f
		b.publish(err, f, meta, resp.Format, resp.Version)
		return resp
	}

	b.publish(err, f, meta, format, version.Version)
	return Response{
		Body:        body,
		Status:      f.HTTPStatus,
		Format:      format,
		ContentType: format.ContentType(),
		Version:     version.Version,
		Fault:       f,
		Wire:        out,
	}
}

func (b *Boundary) encode(format negotiate.Format, f *faults.Fault) (body []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			body, err = nil, fmt.Errorf("%s - encoder panicked: %v", boundaryLogPrefix, r)
		}
	}()
	enc, ok := b.encoders[format]
	if !ok || enc == nil {
		return nil, fmt.Errorf("%s - no encoder for %s", boundaryLogPrefix, format)
	}
	return enc.EncodeFault(f)
}

func (b *Boundary) log(err error, f *faults.Fault, meta RequestMeta) {
	dump, _ := f.Data.Get(faults.DumpKey)
	entry := Entry{
		CorrelationID: f.CorrelationID,
		FaultKind:     string(f.Kind),
		ErrorKind:     string(faults.KindOf(err)),
		Status:        f.HTTPStatus,
		Message:       f.Message,
		Operation:     meta.Operation,
		Dump:          dump,
	}
	defer func() {
		if r := recover(); r != nil {
			trace(b.trace, err, entry, r)
		}
	}()
	if !b.logger.IsEnabled() {
		return
	}
	if werr := b.logger.Write(err, entry); werr != nil {
		trace(b.trace, err, entry, werr)
	}
}

func (b *Boundary) publish(err error, f *faults.Fault, meta RequestMeta, format negotiate.Format, version string) {
	event := &events.FaultRaisedEvent{
		CorrelationID: f.CorrelationID,
		FaultKind:     string(f.Kind),
		ErrorKind:     string(faults.KindOf(err)),
		Status:        f.HTTPStatus,
		Message:       f.Message,
		Operation:     meta.Operation,
		Policy:        b.builder.Policy,
		Format:        format.String(),
		SchemaVersion: version,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Env:           b.env,
	}
	if perr := b.publisher.PublishFault(context.Background(), event); perr != nil {
		slog.Warn(fmt.Sprintf("%s - failed to publish fault %s: %v", boundaryLogPrefix, f.CorrelationID, perr))
	}
}

// minimalResponse renders the internal fault with string concatenation only.
func minimalResponse(correlationID string) Response {
	body := string(InternalFault) + ": " + internalMessage + "\n"
	if correlationID != "" {
		body += "correlationId: " + correlationID + "\n"
	}
	return Response{
		Body:        []byte(body),
		Status:      http.StatusInternalServerError,
		Format:      negotiate.FormatText,
		ContentType: "text/plain; charset=utf-8",
		Version:     semver.Current,
		Fault:       Minimal(correlationID),
		Wire:        Minimal(correlationID),
	}
}
