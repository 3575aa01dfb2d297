// Package negotiate picks the serialization format of a fault response.
package negotiate

import (
	"mime"
	"strings"

	"github.com/munnerz/goautoneg"
)

// Format is a wire serialization format.
type Format int

const (
	// FormatUnset means no preference was configured.
	FormatUnset Format = iota
	// FormatJSON is the primary structured format.
	FormatJSON
	// FormatXML is the secondary structured format.
	FormatXML
	// FormatText is plain text.
	FormatText
)

func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatXML:
		return "xml"
	case FormatText:
		return "text"
	}
	return "unset"
}

// ContentType returns the media type written with the format.
func (f Format) ContentType() string {
	switch f {
	case FormatXML:
		return "application/xml; charset=utf-8"
	case FormatText:
		return "text/plain; charset=utf-8"
	}
	return "application/json"
}

// ParseFormat accepts a format name ("json", "xml", "text") or a media type.
// Unknown values return FormatUnset.
func ParseFormat(s string) Format {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "":
		return FormatUnset
	case "json":
		return FormatJSON
	case "xml":
		return FormatXML
	case "text", "plain", "txt":
		return FormatText
	}
	if f := structuredFormat(s); f != FormatUnset {
		return f
	}
	if strings.HasPrefix(s, "text/plain") {
		return FormatText
	}
	return FormatUnset
}

// Context carries the signals for one failing call.
type Context struct {
	Accept           string
	ContentType      string
	OperationDefault Format
	EndpointDefault  Format
}

// Negotiator resolves formats. The zero value defaults to JSON.
type Negotiator struct {
	ProcessDefault Format
}

// Resolve applies, in order: an unambiguous structured type in Accept, a
// structured Content-Type, the operation default, the endpoint default, then
// the process default. The first signal that resolves wins.
func (n Negotiator) Resolve(c Context) Format {
	if f := fromAccept(c.Accept); f != FormatUnset {
		return f
	}
	if f := fromContentType(c.ContentType); f != FormatUnset {
		return f
	}
	if c.OperationDefault != FormatUnset {
		return c.OperationDefault
	}
	if c.EndpointDefault != FormatUnset {
		return c.EndpointDefault
	}
	if n.ProcessDefault != FormatUnset {
		return n.ProcessDefault
	}
	return FormatJSON
}

// fromAccept returns the structured format named by the highest-quality
// structured entries, or FormatUnset when those entries name both formats.
func fromAccept(header string) Format {
	if strings.TrimSpace(header) == "" {
		return FormatUnset
	}
	best := -1.0
	found := map[Format]bool{}
	for _, a := range goautoneg.ParseAccept(header) {
		if a.Q <= 0 || a.Type == "*" || a.SubType == "*" {
			continue
		}
		f := structuredFormat(a.Type + "/" + a.SubType)
		if f == FormatUnset {
			continue
		}
		switch {
		case a.Q > best:
			best = a.Q
			found = map[Format]bool{f: true}
		case a.Q == best:
			found[f] = true
		}
	}
	if len(found) != 1 {
		return FormatUnset
	}
	for f := range found {
		return f
	}
	return FormatUnset
}

func fromContentType(header string) Format {
	if strings.TrimSpace(header) == "" {
		return FormatUnset
	}
	mt, _, err := mime.ParseMediaType(header)
	if err != nil {
		return FormatUnset
	}
	return structuredFormat(mt)
}

func structuredFormat(mediaType string) Format {
	mt := strings.ToLower(strings.TrimSpace(mediaType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	switch {
	case mt == "application/json", mt == "text/json", strings.HasSuffix(mt, "+json"):
		return FormatJSON
	case mt == "application/xml", mt == "text/xml", strings.HasSuffix(mt, "+xml"):
		return FormatXML
	}
	return FormatUnset
}
