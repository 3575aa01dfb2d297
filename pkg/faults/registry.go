package faults

import (
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
)

const logPrefix = "faults:registry"

// ToFaultFunc converts an error into a wire fault.
type ToFaultFunc func(err error) (*Fault, error)

// ToErrorFunc converts a wire fault back into an error.
type ToErrorFunc func(f *Fault) error

// Mapping pairs an error kind with a fault kind.
type Mapping struct {
	ErrorKind  Kind
	FaultKind  FaultKind
	ToFault    ToFaultFunc
	ToError    ToErrorFunc
	HTTPStatus int
}

// Registry is a bijection between error kinds and fault kinds.
//
// Readers take the shared lock. Writers first take writeMu, which only
// excludes other writers, re-check the invariants against the current maps,
// and then hold the exclusive lock just long enough to update both sides.
type Registry struct {
	writeMu sync.Mutex
	mu      sync.RWMutex
	byError map[Kind]*Mapping
	byFault map[FaultKind]*Mapping
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byError: make(map[Kind]*Mapping),
		byFault: make(map[FaultKind]*Mapping),
	}
}

// NewSeededRegistry creates a registry populated with the built-in table.
func NewSeededRegistry() *Registry {
	r := NewRegistry()
	for _, m := range SeedMappings() {
		if err := r.RegisterMapping(m, false); err != nil {
			// The seed table is a bijection; a conflict here is a programming error.
			panic(err)
		}
	}
	return r
}

// RegisterMapping adds or replaces m. Without force it fails with
// *ConflictError when either side is mapped to a different counterpart, and
// the registry is left unchanged. With force, the stale counterparts are
// removed so both directions stay consistent.
func (r *Registry) RegisterMapping(m Mapping, force bool) error {
	if m.ErrorKind == "" || m.FaultKind == "" {
		return fmt.Errorf("%s - mapping requires both an error kind and a fault kind", logPrefix)
	}
	if m.HTTPStatus == 0 {
		m.HTTPStatus = http.StatusInternalServerError
	}
	if m.ToFault == nil {
		fk, status := m.FaultKind, m.HTTPStatus
		m.ToFault = func(err error) (*Fault, error) {
			return CopyFields(err, fk, status), nil
		}
	}
	if m.ToError == nil {
		m.ToError = func(f *Fault) error { return NewFaultError(f) }
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	// Only writers mutate the maps and they all hold writeMu, so these reads
	// need no shared lock and do not block concurrent readers.
	prevByError := r.byError[m.ErrorKind]
	prevByFault := r.byFault[m.FaultKind]
	conflict := (prevByError != nil && prevByError.FaultKind != m.FaultKind) ||
		(prevByFault != nil && prevByFault.ErrorKind != m.ErrorKind)
	if conflict && !force {
		ce := &ConflictError{ErrorKind: m.ErrorKind, FaultKind: m.FaultKind}
		if prevByError != nil {
			ce.ExistingFault = prevByError.FaultKind
		}
		if prevByFault != nil {
			ce.ExistingError = prevByFault.ErrorKind
		}
		return ce
	}

	entry := m
	r.mu.Lock()
	if prevByError != nil {
		delete(r.byFault, prevByError.FaultKind)
	}
	if prevByFault != nil {
		delete(r.byError, prevByFault.ErrorKind)
	}
	r.byError[m.ErrorKind] = &entry
	r.byFault[m.FaultKind] = &entry
	r.mu.Unlock()

	if conflict {
		slog.Warn(fmt.Sprintf("%s - forced mapping %s <-> %s", logPrefix, m.ErrorKind, m.FaultKind))
	} else {
		slog.Debug(fmt.Sprintf("%s - registered mapping %s <-> %s (%d)", logPrefix, m.ErrorKind, m.FaultKind, m.HTTPStatus))
	}
	return nil
}

// Unregister removes the mappings of errorKind and faultKind in both
// directions. Removing kinds that are not mapped is a no-op.
func (r *Registry) Unregister(errorKind Kind, faultKind FaultKind) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	var victims []*Mapping
	if m := r.byError[errorKind]; m != nil {
		victims = append(victims, m)
	}
	if m := r.byFault[faultKind]; m != nil {
		victims = append(victims, m)
	}
	if len(victims) == 0 {
		return
	}

	r.mu.Lock()
	for _, m := range victims {
		delete(r.byError, m.ErrorKind)
		delete(r.byFault, m.FaultKind)
	}
	r.mu.Unlock()
}

func (r *Registry) lookupByError(k Kind) (Mapping, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byError[k]
	if !ok {
		return Mapping{}, false
	}
	return *m, true
}

func (r *Registry) lookupByFault(k FaultKind) (Mapping, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byFault[k]
	if !ok {
		return Mapping{}, false
	}
	return *m, true
}

// LookupFault returns the fault kind mapped to errorKind.
func (r *Registry) LookupFault(errorKind Kind) (FaultKind, bool) {
	m, ok := r.lookupByError(errorKind)
	return m.FaultKind, ok
}

// LookupError returns the error kind mapped to faultKind.
func (r *Registry) LookupError(faultKind FaultKind) (Kind, bool) {
	m, ok := r.lookupByFault(faultKind)
	return m.ErrorKind, ok
}

// ToFaultFactory returns the conversion registered for errorKind.
func (r *Registry) ToFaultFactory(errorKind Kind) (ToFaultFunc, bool) {
	m, ok := r.lookupByError(errorKind)
	return m.ToFault, ok
}

// ToErrorFactory returns the conversion registered for faultKind.
func (r *Registry) ToErrorFactory(faultKind FaultKind) (ToErrorFunc, bool) {
	m, ok := r.lookupByFault(faultKind)
	return m.ToError, ok
}

// Status returns the default status mapped to faultKind.
func (r *Registry) Status(faultKind FaultKind) (int, bool) {
	m, ok := r.lookupByFault(faultKind)
	return m.HTTPStatus, ok
}

// Get returns the full mapping registered for errorKind.
func (r *Registry) Get(errorKind Kind) (Mapping, bool) {
	return r.lookupByError(errorKind)
}

// Mappings returns a snapshot sorted by error kind.
func (r *Registry) Mappings() []Mapping {
	r.mu.RLock()
	out := make([]Mapping, 0, len(r.byError))
	for _, m := range r.byError {
		out = append(out, *m)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ErrorKind < out[j].ErrorKind })
	return out
}

// Len returns the number of mappings.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byError)
}
