// Package faults implements the bidirectional error <-> wire fault registry.
package faults

import (
	"encoding/xml"
	"fmt"
)

// FaultKind is the self-describing type tag of a wire fault.
type FaultKind string

// GenericFault is used when no mapping exists for an error.
const GenericFault FaultKind = "GenericFault"

// Fault is the wire-safe representation of a server-side failure.
// HTTPStatus travels out of band and is never serialized in the body.
type Fault struct {
	XMLName       xml.Name  `json:"-" xml:"fault"`
	Kind          FaultKind `json:"faultKind" xml:"faultKind"`
	Message       string    `json:"message" xml:"message"`
	CorrelationID string    `json:"correlationId,omitempty" xml:"correlationId,omitempty"`
	Data          Data      `json:"data" xml:"data"`
	Details       []*Fault  `json:"nestedDetails,omitempty" xml:"nestedDetails>fault,omitempty"`
	HTTPStatus    int       `json:"-" xml:"-"`
}

// Clone returns a deep copy of the fault.
func (f *Fault) Clone() *Fault {
	if f == nil {
		return nil
	}
	out := *f
	out.Data = f.Data.Clone()
	if len(f.Details) > 0 {
		out.Details = make([]*Fault, len(f.Details))
		for i, d := range f.Details {
			out.Details[i] = d.Clone()
		}
	}
	return &out
}

// FaultError is an error raised deliberately with an embedded fault.
type FaultError struct {
	Fault *Fault
	Cause error
}

// NewFaultError wraps a fault as an error.
func NewFaultError(f *Fault) *FaultError {
	return &FaultError{Fault: f}
}

func (e *FaultError) Error() string {
	if e == nil || e.Fault == nil {
		return "fault: <nil>"
	}
	return fmt.Sprintf("%s: %s", e.Fault.Kind, e.Fault.Message)
}

func (e *FaultError) Unwrap() error { return e.Cause }
