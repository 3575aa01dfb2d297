package bootstrap

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/morezero/callguard/pkg/faults"
)

const logPrefix = "bootstrap:loader"

// EnvMappingsFile names the environment variable holding the overrides path.
const EnvMappingsFile = "CALLGUARD_MAPPINGS_FILE"

// LoadMappingsConfig loads the overrides file. It tries paths in order: first
// any paths passed in, then CALLGUARD_MAPPINGS_FILE, then the defaults. An
// unreadable or unparsable file is skipped; when none loads the empty default
// config is returned.
func LoadMappingsConfig(paths ...string) (*MappingsConfig, error) {
	all := make([]string, 0, len(paths)+4)
	for _, p := range paths {
		if p != "" {
			all = append(all, p)
		}
	}
	if envPath := os.Getenv(EnvMappingsFile); envPath != "" {
		all = append(all, envPath)
	}
	all = append(all, "config/mappings.yaml", "config/mappings.json", "mappings.yaml")

	for _, p := range all {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}

		cfg, err := ParseMappingsConfig(data, p)
		if err != nil {
			slog.Warn(fmt.Sprintf("%s - Failed to parse mappings file %s: %v", logPrefix, p, err))
			continue
		}

		slog.Info(fmt.Sprintf("%s - Loaded %d mapping overrides from %s", logPrefix, len(cfg.Mappings), p))
		return cfg, nil
	}

	slog.Info(fmt.Sprintf("%s - Using default mappings config", logPrefix))
	return GetDefaultMappingsConfig(), nil
}

// ParseMappingsConfig decodes data as YAML or JSON, chosen by the file
// extension. Other extensions try JSON first, then YAML.
func ParseMappingsConfig(data []byte, filename string) (*MappingsConfig, error) {
	var cfg MappingsConfig
	switch {
	case strings.HasSuffix(filename, ".yaml"), strings.HasSuffix(filename, ".yml"):
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("%s - parse YAML: %w", logPrefix, err)
		}
	case strings.HasSuffix(filename, ".json"):
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("%s - parse JSON: %w", logPrefix, err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			cfg = MappingsConfig{}
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("%s - parse mappings: %w", logPrefix, err)
			}
		}
	}
	return &cfg, nil
}

// GetDefaultMappingsConfig returns the empty fallback configuration.
func GetDefaultMappingsConfig() *MappingsConfig {
	return &MappingsConfig{
		Name:        "callguard-mappings",
		Version:     "1.0.0",
		Description: "No overrides; the built-in table applies",
		Aliases:     map[string]string{},
	}
}

// CreateResolvedMappings groups cfg by resolved policy name.
func CreateResolvedMappings(cfg *MappingsConfig) *ResolvedMappings {
	aliases := make(map[string]string, len(cfg.Aliases))
	for alias, target := range cfg.Aliases {
		aliases[alias] = target
	}
	byPolicy := make(map[string][]MappingOverride)
	for _, m := range cfg.Mappings {
		p := resolvePolicy(aliases, m.Policy)
		byPolicy[p] = append(byPolicy[p], m)
	}
	return &ResolvedMappings{
		name:     cfg.Name,
		version:  cfg.Version,
		aliases:  aliases,
		byPolicy: byPolicy,
	}
}

// MergeMappingsConfigs merges override into base. An override entry replaces
// the base entry with the same policy and error kind; new entries are appended.
func MergeMappingsConfigs(base, override *MappingsConfig) *MappingsConfig {
	merged := *base

	merged.Aliases = make(map[string]string, len(base.Aliases)+len(override.Aliases))
	for alias, target := range base.Aliases {
		merged.Aliases[alias] = target
	}
	for alias, target := range override.Aliases {
		merged.Aliases[alias] = target
	}

	merged.Mappings = make([]MappingOverride, len(base.Mappings), len(base.Mappings)+len(override.Mappings))
	copy(merged.Mappings, base.Mappings)
	index := make(map[string]int, len(merged.Mappings))
	for i, m := range merged.Mappings {
		index[overrideKey(merged.Aliases, m)] = i
	}
	for _, m := range override.Mappings {
		key := overrideKey(merged.Aliases, m)
		if i, ok := index[key]; ok {
			merged.Mappings[i] = m
			continue
		}
		index[key] = len(merged.Mappings)
		merged.Mappings = append(merged.Mappings, m)
	}

	if override.Version != "" {
		merged.Version = override.Version
	}
	return &merged
}

// Apply registers every override of cfg into the policy registries, creating
// named policies as needed. Entries that fail are reported together; the
// others are still applied. It returns the number of applied overrides.
func Apply(policies *faults.Policies, cfg *MappingsConfig) (int, error) {
	if policies == nil {
		return 0, faults.NewArgumentNilError("policies")
	}
	if cfg == nil {
		return 0, nil
	}

	applied := 0
	var errs []error
	for i, o := range cfg.Mappings {
		if strings.TrimSpace(o.ErrorKind) == "" || strings.TrimSpace(o.FaultKind) == "" {
			errs = append(errs, faults.NewArgumentError("mappings", "entry %d requires errorKind and faultKind", i))
			continue
		}
		policy := resolvePolicy(cfg.Aliases, o.Policy)
		err := policies.Ensure(policy).RegisterMapping(faults.Mapping{
			ErrorKind:  faults.Kind(o.ErrorKind),
			FaultKind:  faults.FaultKind(o.FaultKind),
			HTTPStatus: o.Status,
		}, o.Force)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s - override %s -> %s in policy %s: %w", logPrefix, o.ErrorKind, o.FaultKind, policy, err))
			continue
		}
		applied++
	}

	if len(errs) > 0 {
		slog.Warn(fmt.Sprintf("%s - Applied %d of %d mapping overrides", logPrefix, applied, len(cfg.Mappings)))
		return applied, errors.Join(errs...)
	}
	slog.Info(fmt.Sprintf("%s - Applied %d mapping overrides", logPrefix, applied))
	return applied, nil
}

func resolvePolicy(aliases map[string]string, name string) string {
	if name == "" {
		return faults.DefaultPolicy
	}
	if target, ok := aliases[name]; ok && target != "" {
		return target
	}
	return name
}

func overrideKey(aliases map[string]string, m MappingOverride) string {
	return resolvePolicy(aliases, m.Policy) + "|" + m.ErrorKind
}
