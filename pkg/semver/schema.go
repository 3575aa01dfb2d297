// Package semver resolves the fault schema version a response is written in.
package semver

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"

	masterminds "github.com/Masterminds/semver/v3"
)

const logPrefix = "semver:schema"

// SchemaVersion is one supported fault schema.
type SchemaVersion struct {
	Version string
	Status  string // "active", "deprecated", "disabled"
	// NestedDetails reports whether faults carry nested details in this schema.
	NestedDetails bool
}

// Current is the schema written when a caller states no usable preference.
const Current = "1.1.0"

// Supported lists the fault schema versions this build can write.
var Supported = []SchemaVersion{
	{Version: "1.0.0", Status: "deprecated"},
	{Version: "1.1.0", Status: "active", NestedDetails: true},
}

var majorOnlyRegex = regexp.MustCompile(`^\d+$`)

// ResolveParams holds parameters for Resolve.
type ResolveParams struct {
	// Versions defaults to Supported.
	Versions []SchemaVersion
	// Range is a SemVer constraint, a major-only specifier, an exact version, or empty.
	Range string
}

// Resolve picks the highest version satisfying params.Range, preferring
// active over deprecated. Disabled versions never match. An empty, invalid, or
// unsatisfiable range yields Current; the second return reports whether the
// range matched.
func Resolve(params ResolveParams) (SchemaVersion, bool) {
	versions := params.Versions
	if versions == nil {
		versions = Supported
	}
	current := find(versions, Current)
	if params.Range == "" {
		return current, true
	}

	var matching []SchemaVersion
	for _, v := range versions {
		if v.Status == "disabled" {
			continue
		}
		if SatisfiesRange(v.Version, params.Range) || v.Version == params.Range {
			matching = append(matching, v)
		}
	}
	if len(matching) == 0 {
		slog.Debug(fmt.Sprintf("%s - no schema satisfies %q, using %s", logPrefix, params.Range, current.Version))
		return current, false
	}

	sortVersionsDesc(matching)
	for _, v := range matching {
		if v.Status == "active" {
			return v, true
		}
	}
	return matching[0], true
}

// IsMajorOnly checks if a range is a major-only specifier (e.g., "1").
func IsMajorOnly(rangeStr string) bool {
	return majorOnlyRegex.MatchString(rangeStr)
}

// ExtractMajorFromRange extracts the major version if the range is major-only.
// Returns -1 if not a major-only range.
func ExtractMajorFromRange(rangeStr string) int {
	if !IsMajorOnly(rangeStr) {
		return -1
	}
	var major int
	fmt.Sscanf(rangeStr, "%d", &major)
	return major
}

// SatisfiesRange checks if a version string satisfies a range.
func SatisfiesRange(version, rangeStr string) bool {
	sv, err := masterminds.NewVersion(version)
	if err != nil {
		return false
	}
	if IsMajorOnly(rangeStr) {
		return int(sv.Major()) == ExtractMajorFromRange(rangeStr)
	}
	constraint, err := masterminds.NewConstraint(rangeStr)
	if err != nil {
		return false
	}
	return constraint.Check(sv)
}

func find(versions []SchemaVersion, version string) SchemaVersion {
	for _, v := range versions {
		if v.Version == version {
			return v
		}
	}
	if len(versions) == 0 {
		return SchemaVersion{Version: version, Status: "active", NestedDetails: true}
	}
	sorted := append([]SchemaVersion(nil), versions...)
	sortVersionsDesc(sorted)
	return sorted[0]
}

func sortVersionsDesc(versions []SchemaVersion) {
	sort.SliceStable(versions, func(i, j int) bool {
		vi, err1 := masterminds.NewVersion(versions[i].Version)
		vj, err2 := masterminds.NewVersion(versions[j].Version)
		if err1 != nil || err2 != nil {
			return false
		}
		return vi.GreaterThan(vj)
	})
}
