package commsutil

import (
	"fmt"
	"strings"
)

// Default COMMS subjects.
const (
	SubjectOperations  = "callguard.ops.v1"
	SubjectFaultRaised = "faults.raised"
)

// BuildFaultSubject builds the granular fault event subject for a fault kind.
func BuildFaultSubject(faultKind string) string {
	return fmt.Sprintf("%s.%s", SubjectFaultRaised, safeToken(faultKind))
}

// BuildOperationSubject builds the per-operation request subject.
func BuildOperationSubject(operation string) string {
	return fmt.Sprintf("%s.%s", SubjectOperations, safeToken(operation))
}

func safeToken(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "unknown"
	}
	return strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_").Replace(s)
}
