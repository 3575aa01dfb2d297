// Package bootstrap loads error <-> fault mapping overrides applied at startup.
package bootstrap

import "sort"

// MappingOverride is one entry of the overrides file. Status 0 keeps the
// registry default (500). Policy empty means the default policy.
type MappingOverride struct {
	ErrorKind string `json:"errorKind" yaml:"errorKind"`
	FaultKind string `json:"faultKind" yaml:"faultKind"`
	Status    int    `json:"status,omitempty" yaml:"status,omitempty"`
	Force     bool   `json:"force,omitempty" yaml:"force,omitempty"`
	Policy    string `json:"policy,omitempty" yaml:"policy,omitempty"`
}

// MappingsConfig is the root of the overrides file.
// Aliases map short policy names to registered policy names.
type MappingsConfig struct {
	Name        string            `json:"name" yaml:"name"`
	Version     string            `json:"version" yaml:"version"`
	Description string            `json:"description,omitempty" yaml:"description,omitempty"`
	Aliases     map[string]string `json:"aliases,omitempty" yaml:"aliases,omitempty"`
	Mappings    []MappingOverride `json:"mappings" yaml:"mappings"`
}

// ResolvedMappings groups overrides by their resolved policy name.
type ResolvedMappings struct {
	name     string
	version  string
	aliases  map[string]string
	byPolicy map[string][]MappingOverride
}

// ResolvePolicy resolves an alias to a policy name. Empty resolves to the default policy.
func (rm *ResolvedMappings) ResolvePolicy(name string) string {
	return resolvePolicy(rm.aliases, name)
}

// ByPolicy returns the overrides of a policy (alias accepted), in file order.
func (rm *ResolvedMappings) ByPolicy(name string) []MappingOverride {
	return rm.byPolicy[rm.ResolvePolicy(name)]
}

// Policies returns the policy names with at least one override, sorted.
func (rm *ResolvedMappings) Policies() []string {
	out := make([]string, 0, len(rm.byPolicy))
	for p := range rm.byPolicy {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of overrides.
func (rm *ResolvedMappings) Len() int {
	n := 0
	for _, ms := range rm.byPolicy {
		n += len(ms)
	}
	return n
}

// Name returns the config name.
func (rm *ResolvedMappings) Name() string {
	return rm.name
}

// Version returns the config version.
func (rm *ResolvedMappings) Version() string {
	return rm.version
}
