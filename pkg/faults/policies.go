package faults

import (
	"sort"
	"sync"
)

// DefaultPolicy names the lower-priority registry consulted after a specific one.
const DefaultPolicy = "default"

// Policies holds named registries. A fault builder consults a specific policy
// first and the default policy second.
type Policies struct {
	mu     sync.RWMutex
	byName map[string]*Registry
}

// NewPolicies creates a set whose default policy is the seeded registry.
func NewPolicies() *Policies {
	return &Policies{byName: map[string]*Registry{DefaultPolicy: NewSeededRegistry()}}
}

// Get returns the registry named name, or nil.
func (p *Policies) Get(name string) *Registry {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.byName[name]
}

// Set installs reg under name, replacing any previous registry.
func (p *Policies) Set(name string, reg *Registry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.byName == nil {
		p.byName = make(map[string]*Registry)
	}
	p.byName[name] = reg
}

// Ensure returns the registry named name, creating an empty one if needed.
func (p *Policies) Ensure(name string) *Registry {
	if reg := p.Get(name); reg != nil {
		return reg
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.byName == nil {
		p.byName = make(map[string]*Registry)
	}
	if reg, ok := p.byName[name]; ok {
		return reg
	}
	reg := NewRegistry()
	p.byName[name] = reg
	return reg
}

// Names returns the policy names in sorted order.
func (p *Policies) Names() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, 0, len(p.byName))
	for n := range p.byName {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
