package faults

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"fmt"
)

// Data is an insertion-ordered string -> string map carried by a fault.
// The zero value is ready to use.
type Data struct {
	keys []string
	vals map[string]string
}

// DataOf builds Data from alternating key/value pairs.
func DataOf(kv ...string) Data {
	var d Data
	for i := 0; i+1 < len(kv); i += 2 {
		d.Set(kv[i], kv[i+1])
	}
	return d
}

// Set stores v under k. An existing key keeps its position.
func (d *Data) Set(k, v string) {
	if d.vals == nil {
		d.vals = make(map[string]string)
	}
	if _, ok := d.vals[k]; !ok {
		d.keys = append(d.keys, k)
	}
	d.vals[k] = v
}

// Get returns the value stored under k.
func (d Data) Get(k string) (string, bool) {
	v, ok := d.vals[k]
	return v, ok
}

// Delete removes k.
func (d *Data) Delete(k string) {
	if _, ok := d.vals[k]; !ok {
		return
	}
	delete(d.vals, k)
	for i, key := range d.keys {
		if key == k {
			d.keys = append(d.keys[:i:i], d.keys[i+1:]...)
			break
		}
	}
}

// Len returns the number of entries.
func (d Data) Len() int { return len(d.keys) }

// Keys returns the keys in insertion order.
func (d Data) Keys() []string {
	out := make([]string, len(d.keys))
	copy(out, d.keys)
	return out
}

// Clone returns an independent copy.
func (d Data) Clone() Data {
	var out Data
	for _, k := range d.keys {
		out.Set(k, d.vals[k])
	}
	return out
}

// MarshalJSON writes the entries as a JSON object in insertion order.
func (d Data) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range d.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(d.vals[k])
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object keeping the document order.
func (d *Data) UnmarshalJSON(b []byte) error {
	*d = Data{}
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("faults:data - expected object, got %v", tok)
	}
	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := kt.(string)
		var val string
		if err := dec.Decode(&val); err != nil {
			return err
		}
		d.Set(key, val)
	}
	_, err = dec.Token()
	return err
}

type xmlItem struct {
	Key   string `xml:"key,attr"`
	Value string `xml:",chardata"`
}

// MarshalXML writes one <item key="..."> element per entry; empty data is omitted.
func (d Data) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	if len(d.keys) == 0 {
		return nil
	}
	if err := e.EncodeToken(start); err != nil {
		return err
	}
	for _, k := range d.keys {
		item := xmlItem{Key: k, Value: d.vals[k]}
		if err := e.EncodeElement(item, xml.StartElement{Name: xml.Name{Local: "item"}}); err != nil {
			return err
		}
	}
	return e.EncodeToken(start.End())
}

// UnmarshalXML reads the <item> elements written by MarshalXML.
func (d *Data) UnmarshalXML(dec *xml.Decoder, start xml.StartElement) error {
	var wrapper struct {
		Items []xmlItem `xml:"item"`
	}
	if err := dec.DecodeElement(&wrapper, &start); err != nil {
		return err
	}
	*d = Data{}
	for _, it := range wrapper.Items {
		d.Set(it.Key, it.Value)
	}
	return nil
}
