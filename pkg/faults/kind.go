package faults

import (
	"context"
	"io"
	"os"
	"reflect"
)

// Kind names an error kind. Two errors of the same kind share a mapping.
type Kind string

// Kinded lets an error name its own kind instead of using its Go type name.
type Kinded interface {
	ErrorKind() string
}

// Standard library sentinels that have a seeded counterpart.
var sentinelKinds = map[error]Kind{
	context.Canceled:         "CanceledError",
	context.DeadlineExceeded: "TimeoutError",
	os.ErrNotExist:           "FileNotFoundError",
	os.ErrPermission:         "UnauthorizedError",
	os.ErrDeadlineExceeded:   "TimeoutError",
	io.ErrUnexpectedEOF:      "IOError",
}

// KindOf returns the kind of err: its ErrorKind() when it is Kinded, the seeded
// kind for well-known standard library sentinels, else its concrete type name.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	if k, ok := err.(Kinded); ok {
		return Kind(k.ErrorKind())
	}
	if k, ok := sentinelKind(err); ok {
		return k
	}
	return KindOfType(reflect.TypeOf(err))
}

// KindOfType returns the kind for a Go error type.
func KindOfType(t reflect.Type) Kind {
	if t == nil {
		return ""
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() != "" {
		return Kind(t.Name())
	}
	return Kind(t.String())
}

func sentinelKind(err error) (k Kind, ok bool) {
	// Sentinels are compared by identity; uncomparable error values never match.
	defer func() {
		if recover() != nil {
			k, ok = "", false
		}
	}()
	k, ok = sentinelKinds[err]
	return k, ok
}

// Chain flattens err and everything it wraps, depth first, outermost first.
func Chain(err error) []error {
	var out []error
	var walk func(error)
	walk = func(e error) {
		if e == nil || len(out) >= 64 {
			return
		}
		out = append(out, e)
		switch u := e.(type) {
		case interface{ Unwrap() []error }:
			for _, inner := range u.Unwrap() {
				walk(inner)
			}
		case interface{ Unwrap() error }:
			walk(u.Unwrap())
		}
	}
	walk(err)
	return out
}
