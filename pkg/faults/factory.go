package faults

import (
	"fmt"
	"net/http"
	"reflect"
	"strings"
)

// DumpKey holds the full diagnostic dump of an unmapped error.
const DumpKey = "Exception.Dump"

// CopyErrorKey holds the reason CopyFields fell back to the message only.
const CopyErrorKey = "Fault.CopyError"

// Data keys that carry server internals: wrapped causes, recovered panic
// values and stacks, and dumps. They only leave the process in debug mode.
var diagnosticKeys = map[string]bool{
	DumpKey:      true,
	CopyErrorKey: true,
	"Cause":      true,
	"Stack":      true,
	"Value":      true,
}

// IsDiagnosticKey reports whether the Data key k carries server internals.
func IsDiagnosticKey(k string) bool {
	return diagnosticKeys[k]
}

var faultFields = func() map[string]reflect.Type {
	out := make(map[string]reflect.Type)
	t := reflect.TypeOf(Fault{})
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.Name == "XMLName" {
			continue
		}
		out[f.Name] = f.Type
	}
	return out
}()

// CopyFields builds a fault of kind fk from err by copying the exported fields
// of err's concrete struct (promoted fields included) onto same-named,
// same-typed fault fields. Other non-nil fields are appended to Data as
// strings. Message falls back to err.Error(). It never panics and never
// returns nil.
func CopyFields(err error, fk FaultKind, status int) (f *Fault) {
	f = &Fault{Kind: fk, HTTPStatus: status}
	defer func() {
		if r := recover(); r != nil {
			f = &Fault{Kind: fk, HTTPStatus: status, Message: safeMessage(err)}
			f.Data.Set(CopyErrorKey, fmt.Sprint(r))
		}
	}()
	if err == nil {
		f.Message = "unknown error"
		return f
	}

	v := reflect.ValueOf(err)
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			break
		}
		v = v.Elem()
	}
	if v.Kind() == reflect.Struct {
		copyStruct(f, v)
	}
	if f.Message == "" {
		f.Message = safeMessage(err)
	}
	if f.Kind == "" {
		f.Kind = fk
	}
	if f.HTTPStatus == 0 {
		f.HTTPStatus = status
	}
	return f
}

func copyStruct(f *Fault, v reflect.Value) {
	dst := reflect.ValueOf(f).Elem()
	for _, sf := range reflect.VisibleFields(v.Type()) {
		if !sf.IsExported() || sf.Anonymous {
			continue
		}
		fv, err := v.FieldByIndexErr(sf.Index)
		if err != nil {
			continue
		}
		if isNilish(fv) {
			continue
		}
		if ft, ok := faultFields[sf.Name]; ok && ft == sf.Type {
			if d, ok := fv.Interface().(Data); ok {
				for _, k := range d.keys {
					f.Data.Set(k, d.vals[k])
				}
				continue
			}
			dst.FieldByName(sf.Name).Set(fv)
			continue
		}
		f.Data.Set(sf.Name, stringValue(fv))
	}
}

func isNilish(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return v.IsNil()
	}
	return false
}

func stringValue(v reflect.Value) string {
	if !v.CanInterface() {
		return ""
	}
	switch x := v.Interface().(type) {
	case []byte:
		return string(x)
	case error:
		return x.Error()
	case fmt.Stringer:
		return x.String()
	}
	return fmt.Sprintf("%v", v.Interface())
}

func safeMessage(err error) (msg string) {
	defer func() {
		if recover() != nil {
			msg = fmt.Sprintf("%T", err)
		}
	}()
	if err == nil {
		return ""
	}
	return err.Error()
}

// Dump renders err and everything it wraps for server-side diagnosis.
func Dump(err error) (out string) {
	defer func() {
		if r := recover(); r != nil {
			out = fmt.Sprintf("%T (dump failed: %v)", err, r)
		}
	}()
	var b strings.Builder
	for i, e := range Chain(err) {
		if i > 0 {
			b.WriteString("\ncause: ")
		}
		fmt.Fprintf(&b, "type=%T kind=%s msg=%q", e, KindOf(e), safeMessage(e))
	}
	return b.String()
}

// DefaultFaultFactory translates err with the registry's mapping when one
// exists for err's kind, otherwise into a GenericFault carrying the message and
// a full dump under DumpKey. Always returns a non-nil fault.
func (r *Registry) DefaultFaultFactory(err error) *Fault {
	if m, ok := r.lookupByError(KindOf(err)); ok {
		return CopyFields(err, m.FaultKind, m.HTTPStatus)
	}
	f := CopyFields(err, GenericFault, http.StatusInternalServerError)
	f.Data.Set(DumpKey, Dump(err))
	return f
}
