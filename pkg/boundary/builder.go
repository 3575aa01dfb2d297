// Package boundary turns failures into serialized faults at the edge of the
// service. It never lets a failure escape while doing so.
package boundary

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/morezero/callguard/pkg/faults"
	"github.com/morezero/callguard/pkg/pipeline"
)

const builderLogPrefix = "boundary:builder"

// Fault kinds produced by the builder itself.
const (
	InternalFault      faults.FaultKind = "InternalFault"
	PolicyFailureFault faults.FaultKind = "PolicyFailureFault"
)

// TypeKey holds the error's Go type in debug responses.
const TypeKey = "Exception.Type"

const internalMessage = "An internal error occurred."

// Builder translates errors into faults.
type Builder struct {
	Policies *faults.Policies
	// Policy is consulted before DefaultPolicy. Empty means the default only.
	Policy string
	// DefaultPolicy defaults to faults.DefaultPolicy.
	DefaultPolicy string
	Debug         bool
}

// NewBuilder creates a builder over policies with the seeded default policy
// when policies is nil.
func NewBuilder(policies *faults.Policies, policy string, debug bool) *Builder {
	if policies == nil {
		policies = faults.NewPolicies()
	}
	return &Builder{Policies: policies, Policy: policy, DefaultPolicy: faults.DefaultPolicy, Debug: debug}
}

// Minimal returns the fault used when translation itself fails.
func Minimal(correlationID string) *faults.Fault {
	return &faults.Fault{
		Kind:          InternalFault,
		Message:       internalMessage,
		CorrelationID: correlationID,
		HTTPStatus:    http.StatusInternalServerError,
	}
}

func (b *Builder) defaultPolicy() string {
	if b.DefaultPolicy == "" {
		return faults.DefaultPolicy
	}
	return b.DefaultPolicy
}

func (b *Builder) registry(name string) *faults.Registry {
	if b.Policies == nil || name == "" {
		return nil
	}
	return b.Policies.Get(name)
}

// Build translates err. In order: a fault carried by err is used as is; a
// policy failure becomes PolicyFailureFault; the specific policy's mapping for
// any error in err's chain; the default policy's mapping; the default factory.
// The result always has a correlation id and a status, and Build never panics.
// Diagnostic data such as the dump is kept; Present strips it.
func (b *Builder) Build(err error) (f *faults.Fault) {
	correlation := CorrelationID(messageOf(err))
	defer func() {
		if r := recover(); r != nil {
			slog.Error(fmt.Sprintf("%s - fault factory panicked: %v", builderLogPrefix, r))
			f = Minimal(correlation)
		}
	}()

	f = b.translate(err)
	if f == nil {
		f = Minimal(correlation)
	}
	if f.CorrelationID == "" {
		f.CorrelationID = correlation
	}
	if f.HTTPStatus == 0 {
		f.HTTPStatus = b.status(f.Kind)
	}
	return f
}

func (b *Builder) translate(err error) *faults.Fault {
	var fe *faults.FaultError
	if errors.As(err, &fe) && fe.Fault != nil {
		return fe.Fault.Clone()
	}

	var pe *pipeline.PolicyError
	if errors.As(err, &pe) {
		f := &faults.Fault{
			Kind:       PolicyFailureFault,
			Message:    fmt.Sprintf("policy %s failed in %s", pe.Policy, pe.Phase),
			Data:       faults.DataOf("Policy", pe.Policy, "Phase", string(pe.Phase)),
			HTTPStatus: http.StatusInternalServerError,
		}
		f.Data.Set(faults.DumpKey, faults.Dump(err))
		return f
	}

	chain := faults.Chain(err)
	for _, name := range []string{b.Policy, b.defaultPolicy()} {
		reg := b.registry(name)
		if reg == nil {
			continue
		}
		for _, e := range chain {
			m, ok := reg.Get(faults.KindOf(e))
			if !ok {
				continue
			}
			f, ferr := m.ToFault(e)
			if ferr != nil {
				slog.Error(fmt.Sprintf("%s - %s factory failed: %v", builderLogPrefix, m.ErrorKind, ferr))
				return Minimal("")
			}
			if f == nil {
				return Minimal("")
			}
			if f.HTTPStatus == 0 {
				f.HTTPStatus = m.HTTPStatus
			}
			return f
		}
	}

	reg := b.registry(b.defaultPolicy())
	if reg == nil {
		reg = faults.NewRegistry()
	}
	return reg.DefaultFaultFactory(err)
}

func (b *Builder) status(fk faults.FaultKind) int {
	for _, name := range []string{b.Policy, b.defaultPolicy()} {
		if reg := b.registry(name); reg != nil {
			if s, ok := reg.Status(fk); ok {
				return s
			}
		}
	}
	return http.StatusInternalServerError
}

// Present returns a copy of f fit for the caller. Outside debug mode it drops
// diagnostic data and replaces messages that may carry internal error text
// with a generic one; in debug mode it adds the error's type. Nested details
// are dropped when nested is false.
func (b *Builder) Present(f *faults.Fault, err error, nested bool) *faults.Fault {
	out := f.Clone()
	if out == nil {
		return nil
	}
	if b.Debug {
		if err != nil {
			out.Data.Set(TypeKey, fmt.Sprintf("%T", err))
		}
	} else {
		conceal(out)
	}
	if !nested {
		out.Details = nil
	}
	return out
}

// conceal strips f and its details of server internals.
func conceal(f *faults.Fault) {
	if cause, ok := f.Data.Get("Cause"); ok && cause != "" && strings.Contains(f.Message, cause) {
		f.Message = internalMessage
	}
	switch f.Kind {
	case faults.GenericFault, InternalFault:
		f.Message = internalMessage
	}
	for _, k := range f.Data.Keys() {
		if faults.IsDiagnosticKey(k) {
			f.Data.Delete(k)
		}
	}
	for _, d := range f.Details {
		if d != nil {
			conceal(d)
		}
	}
}

func messageOf(err error) (msg string) {
	if err == nil {
		return ""
	}
	defer func() {
		if recover() != nil {
			msg = ""
		}
	}()
	return err.Error()
}
