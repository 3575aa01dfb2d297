package commsutil

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/morezero/callguard/pkg/faults"
	"github.com/morezero/callguard/pkg/negotiate"
)

const codecLogPrefix = "commsutil:codec"

// EncodePayload serializes a value to JSON bytes.
func EncodePayload(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

// DecodePayload deserializes JSON bytes into the given target.
func DecodePayload(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

// FaultEncoder renders a fault in one wire format.
type FaultEncoder interface {
	EncodeFault(f *faults.Fault) ([]byte, error)
}

// FaultEncoderFunc adapts a function to FaultEncoder.
type FaultEncoderFunc func(f *faults.Fault) ([]byte, error)

func (fn FaultEncoderFunc) EncodeFault(f *faults.Fault) ([]byte, error) { return fn(f) }

// JSONFaultEncoder writes the JSON schema.
type JSONFaultEncoder struct{}

func (JSONFaultEncoder) EncodeFault(f *faults.Fault) ([]byte, error) {
	if f == nil {
		return nil, fmt.Errorf("%s - nil fault", codecLogPrefix)
	}
	return json.Marshal(f)
}

// XMLFaultEncoder writes the XML schema with an XML declaration.
type XMLFaultEncoder struct{}

func (XMLFaultEncoder) EncodeFault(f *faults.Fault) ([]byte, error) {
	if f == nil {
		return nil, fmt.Errorf("%s - nil fault", codecLogPrefix)
	}
	body, err := xml.Marshal(f)
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), body...), nil
}

// TextFaultEncoder writes a human-readable rendering.
type TextFaultEncoder struct{}

func (TextFaultEncoder) EncodeFault(f *faults.Fault) ([]byte, error) {
	if f == nil {
		return nil, fmt.Errorf("%s - nil fault", codecLogPrefix)
	}
	var b bytes.Buffer
	writeText(&b, f, "")
	return b.Bytes(), nil
}

func writeText(b *bytes.Buffer, f *faults.Fault, indent string) {
	fmt.Fprintf(b, "%s%s: %s\n", indent, f.Kind, f.Message)
	if f.CorrelationID != "" {
		fmt.Fprintf(b, "%scorrelationId: %s\n", indent, f.CorrelationID)
	}
	for _, k := range f.Data.Keys() {
		v, _ := f.Data.Get(k)
		fmt.Fprintf(b, "%s%s: %s\n", indent, k, strings.ReplaceAll(v, "\n", "\n"+indent+"  "))
	}
	for _, d := range f.Details {
		if d != nil {
			writeText(b, d, indent+"  ")
		}
	}
}

// FaultEncoders returns the built-in encoder for each format.
func FaultEncoders() map[negotiate.Format]FaultEncoder {
	return map[negotiate.Format]FaultEncoder{
		negotiate.FormatJSON: JSONFaultEncoder{},
		negotiate.FormatXML:  XMLFaultEncoder{},
		negotiate.FormatText: TextFaultEncoder{},
	}
}
