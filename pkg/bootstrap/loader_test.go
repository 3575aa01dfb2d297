package bootstrap

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/morezero/callguard/pkg/faults"
)

const loaderTestPrefix = "bootstrap:loader_test"

const sampleYAML = `
name: billing-overrides
version: 1.2.0
aliases:
  bill: billing
mappings:
  - errorKind: NotFoundError
    faultKind: NotFoundFault
    status: 410
  - errorKind: NotFoundError
    faultKind: BillingMissingFault
    status: 404
    policy: bill
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		t.Fatalf("%s - write %s: %v", loaderTestPrefix, name, err)
	}
	return p
}

func TestLoadMappingsConfig_YAML(t *testing.T) {
	cfg, err := LoadMappingsConfig(writeFile(t, "mappings.yaml", sampleYAML))
	if err != nil {
		t.Fatalf("%s - unexpected error: %v", loaderTestPrefix, err)
	}
	if cfg.Name != "billing-overrides" || len(cfg.Mappings) != 2 {
		t.Fatalf("%s - cfg = %+v", loaderTestPrefix, cfg)
	}
	if cfg.Mappings[0].Status != 410 || cfg.Mappings[1].Policy != "bill" {
		t.Errorf("%s - mappings = %+v", loaderTestPrefix, cfg.Mappings)
	}
}

func TestLoadMappingsConfig_JSON(t *testing.T) {
	p := writeFile(t, "mappings.json", `{"name":"j","mappings":[{"errorKind":"TimeoutError","faultKind":"TimeoutFault","status":503}]}`)
	cfg, err := LoadMappingsConfig(p)
	if err != nil {
		t.Fatalf("%s - unexpected error: %v", loaderTestPrefix, err)
	}
	if len(cfg.Mappings) != 1 || cfg.Mappings[0].Status != 503 {
		t.Errorf("%s - cfg = %+v", loaderTestPrefix, cfg)
	}
}

func TestLoadMappingsConfig_FallsBackToDefault(t *testing.T) {
	t.Setenv(EnvMappingsFile, "")
	bad := writeFile(t, "broken.json", "{not json")
	cfg, err := LoadMappingsConfig(bad, filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("%s - unexpected error: %v", loaderTestPrefix, err)
	}
	if cfg.Name != "callguard-mappings" || len(cfg.Mappings) != 0 {
		t.Errorf("%s - expected default config, got %+v", loaderTestPrefix, cfg)
	}
}

func TestLoadMappingsConfig_EnvPath(t *testing.T) {
	t.Setenv(EnvMappingsFile, writeFile(t, "env.yml", sampleYAML))
	cfg, err := LoadMappingsConfig()
	if err != nil {
		t.Fatalf("%s - unexpected error: %v", loaderTestPrefix, err)
	}
	if cfg.Version != "1.2.0" {
		t.Errorf("%s - expected env file to load, got %+v", loaderTestPrefix, cfg)
	}
}

func TestParseMappingsConfig_UnknownExtension(t *testing.T) {
	cfg, err := ParseMappingsConfig([]byte(sampleYAML), "overrides.conf")
	if err != nil {
		t.Fatalf("%s - unexpected error: %v", loaderTestPrefix, err)
	}
	if len(cfg.Mappings) != 2 {
		t.Errorf("%s - expected YAML fallback, got %+v", loaderTestPrefix, cfg)
	}
}

func TestApply(t *testing.T) {
	cfg, err := ParseMappingsConfig([]byte(sampleYAML), "m.yaml")
	if err != nil {
		t.Fatalf("%s - parse: %v", loaderTestPrefix, err)
	}
	policies := faults.NewPolicies()
	n, err := Apply(policies, cfg)
	if err != nil || n != 2 {
		t.Fatalf("%s - Apply = %d, %v", loaderTestPrefix, n, err)
	}

	if status, _ := policies.Get(faults.DefaultPolicy).Status(faults.NotFoundFault); status != 410 {
		t.Errorf("%s - default NotFoundFault status = %d, want 410", loaderTestPrefix, status)
	}
	billing := policies.Get("billing")
	if billing == nil {
		t.Fatalf("%s - billing policy should be created", loaderTestPrefix)
	}
	if fk, ok := billing.LookupFault("NotFoundError"); !ok || fk != "BillingMissingFault" {
		t.Errorf("%s - billing lookup = %q, %v", loaderTestPrefix, fk, ok)
	}
}

func TestApply_ConflictNeedsForce(t *testing.T) {
	policies := faults.NewPolicies()
	cfg := &MappingsConfig{Mappings: []MappingOverride{
		{ErrorKind: "NotFoundError", FaultKind: "MissingFault", Status: 404},
		{ErrorKind: "", FaultKind: "X"},
		{ErrorKind: "TimeoutError", FaultKind: "SlowFault", Status: 503, Force: true},
	}}
	n, err := Apply(policies, cfg)
	if n != 1 {
		t.Errorf("%s - applied = %d, want 1", loaderTestPrefix, n)
	}
	var conflict *faults.ConflictError
	if !errors.As(err, &conflict) {
		t.Errorf("%s - expected ConflictError, got %v", loaderTestPrefix, err)
	}
	var argErr *faults.ArgumentError
	if !errors.As(err, &argErr) {
		t.Errorf("%s - expected ArgumentError for the empty entry, got %v", loaderTestPrefix, err)
	}

	reg := policies.Get(faults.DefaultPolicy)
	if fk, _ := reg.LookupFault("NotFoundError"); fk != faults.NotFoundFault {
		t.Errorf("%s - conflicting override must not change the registry, got %q", loaderTestPrefix, fk)
	}
	if fk, _ := reg.LookupFault("TimeoutError"); fk != "SlowFault" {
		t.Errorf("%s - forced override should apply, got %q", loaderTestPrefix, fk)
	}
	if _, ok := reg.LookupError(faults.TimeoutFault); ok {
		t.Errorf("%s - forced override should remove the stale fault kind", loaderTestPrefix)
	}
}

func TestApply_NilArguments(t *testing.T) {
	if _, err := Apply(nil, GetDefaultMappingsConfig()); err == nil {
		t.Errorf("%s - expected error for nil policies", loaderTestPrefix)
	}
	if n, err := Apply(faults.NewPolicies(), nil); n != 0 || err != nil {
		t.Errorf("%s - nil config should be a no-op, got %d, %v", loaderTestPrefix, n, err)
	}
}

func TestCreateResolvedMappings(t *testing.T) {
	cfg, _ := ParseMappingsConfig([]byte(sampleYAML), "m.yaml")
	resolved := CreateResolvedMappings(cfg)

	if resolved.Len() != 2 {
		t.Errorf("%s - Len = %d", loaderTestPrefix, resolved.Len())
	}
	if got := resolved.ResolvePolicy("bill"); got != "billing" {
		t.Errorf("%s - alias resolved to %q", loaderTestPrefix, got)
	}
	if got := resolved.ResolvePolicy(""); got != faults.DefaultPolicy {
		t.Errorf("%s - empty policy resolved to %q", loaderTestPrefix, got)
	}
	if len(resolved.ByPolicy("bill")) != 1 || len(resolved.ByPolicy("billing")) != 1 {
		t.Errorf("%s - billing overrides missing", loaderTestPrefix)
	}
	policies := resolved.Policies()
	if len(policies) != 2 || policies[0] != "billing" || policies[1] != faults.DefaultPolicy {
		t.Errorf("%s - Policies = %v", loaderTestPrefix, policies)
	}
}

func TestMergeMappingsConfigs(t *testing.T) {
	base := &MappingsConfig{
		Version:  "1.0.0",
		Aliases:  map[string]string{"bill": "billing"},
		Mappings: []MappingOverride{{ErrorKind: "NotFoundError", FaultKind: "NotFoundFault", Status: 404}},
	}
	override := &MappingsConfig{
		Version: "2.0.0",
		Mappings: []MappingOverride{
			{ErrorKind: "NotFoundError", FaultKind: "NotFoundFault", Status: 410},
			{ErrorKind: "NotFoundError", FaultKind: "BillingMissingFault", Policy: "bill"},
		},
	}

	merged := MergeMappingsConfigs(base, override)
	if len(merged.Mappings) != 2 {
		t.Fatalf("%s - merged = %+v", loaderTestPrefix, merged.Mappings)
	}
	if merged.Mappings[0].Status != 410 {
		t.Errorf("%s - override should replace the base entry", loaderTestPrefix)
	}
	if merged.Version != "2.0.0" || merged.Aliases["bill"] != "billing" {
		t.Errorf("%s - merged = %+v", loaderTestPrefix, merged)
	}
	if base.Mappings[0].Status != 404 {
		t.Errorf("%s - base must not be modified", loaderTestPrefix)
	}
}
