package boundary

import (
	"regexp"

	"github.com/google/uuid"
)

var correlationPattern = regexp.MustCompile(
	`(?i)correlation[ _-]?id\W{0,4}([0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12})`)

// CorrelationID returns the identifier labelled "correlation id" in text, or a
// fresh random one.
func CorrelationID(text string) string {
	if m := correlationPattern.FindStringSubmatch(text); m != nil {
		if id, err := uuid.Parse(m[1]); err == nil {
			return id.String()
		}
	}
	return uuid.NewString()
}

// safeID mints an identifier without panicking.
func safeID() string {
	id, err := uuid.NewRandom()
	if err != nil {
		return ""
	}
	return id.String()
}
