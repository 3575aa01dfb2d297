package boundary

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"
)

// Entry is what the boundary records about a translated failure.
type Entry struct {
	CorrelationID string
	FaultKind     string
	ErrorKind     string
	Status        int
	Message       string
	Operation     string
	Dump          string
}

// Logger records failures for server-side diagnosis.
type Logger interface {
	IsEnabled() bool
	Write(err error, entry Entry) error
}

// SlogLogger writes entries to a slog logger at error level.
type SlogLogger struct {
	Logger *slog.Logger
}

func (l SlogLogger) logger() *slog.Logger {
	if l.Logger == nil {
		return slog.Default()
	}
	return l.Logger
}

func (l SlogLogger) IsEnabled() bool {
	return l.logger().Enabled(context.Background(), slog.LevelError)
}

func (l SlogLogger) Write(err error, e Entry) error {
	l.logger().Error(fmt.Sprintf("%s - %s %s: %s", boundaryLogPrefix, e.FaultKind, e.CorrelationID, e.Message),
		"correlationId", e.CorrelationID,
		"faultKind", e.FaultKind,
		"errorKind", e.ErrorKind,
		"status", e.Status,
		"operation", e.Operation,
		"error", messageOf(err),
		"dump", e.Dump,
	)
	return nil
}

// MultiLogger writes to every enabled logger and reports the first failure.
type MultiLogger []Logger

func (m MultiLogger) IsEnabled() bool {
	for _, l := range m {
		if l != nil && l.IsEnabled() {
			return true
		}
	}
	return false
}

func (m MultiLogger) Write(err error, e Entry) error {
	var first error
	for _, l := range m {
		if l == nil || !l.IsEnabled() {
			continue
		}
		if werr := l.Write(err, e); werr != nil && first == nil {
			first = werr
		}
	}
	return first
}

// trace is the last-resort writer used when the logger fails.
func trace(w io.Writer, err error, e Entry, cause any) {
	if w == nil {
		return
	}
	defer func() { _ = recover() }()
	fmt.Fprintf(w, "%s %s - logger failed (%v); %s %s status=%d op=%s: %s\n",
		time.Now().UTC().Format(time.RFC3339), boundaryLogPrefix, cause,
		e.FaultKind, e.CorrelationID, e.Status, e.Operation, messageOf(err))
}
