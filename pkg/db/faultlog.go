package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/morezero/callguard/pkg/boundary"
	"github.com/morezero/callguard/pkg/faults"
)

const faultLogPrefix = "db:faultlog"

// Querier is the subset of *pgxpool.Pool used by FaultLog.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// FaultLog stores translated failures keyed by correlation id. It implements
// boundary.Logger.
type FaultLog struct {
	db           Querier
	writeTimeout time.Duration
}

// NewFaultLog creates a FaultLog over db.
func NewFaultLog(db Querier) *FaultLog {
	return &FaultLog{db: db, writeTimeout: 2 * time.Second}
}

// IsEnabled reports whether a store is attached.
func (l *FaultLog) IsEnabled() bool { return l != nil && l.db != nil }

// Write records entry. A duplicate correlation id keeps the first record.
func (l *FaultLog) Write(_ error, e boundary.Entry) error {
	ctx, cancel := context.WithTimeout(context.Background(), l.writeTimeout)
	defer cancel()
	return l.Insert(ctx, FaultRecord{
		CorrelationID: e.CorrelationID,
		FaultKind:     e.FaultKind,
		ErrorKind:     e.ErrorKind,
		Status:        e.Status,
		Message:       e.Message,
		Operation:     e.Operation,
		Dump:          e.Dump,
	})
}

// Insert stores rec.
func (l *FaultLog) Insert(ctx context.Context, rec FaultRecord) error {
	if rec.CorrelationID == "" {
		return faults.NewArgumentNilError("correlationId")
	}
	if rec.Created.IsZero() {
		rec.Created = time.Now().UTC()
	}
	_, err := l.db.Exec(ctx,
		`INSERT INTO fault_log (correlation_id, fault_kind, error_kind, status, message, operation, dump, created)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (correlation_id) DO NOTHING`,
		rec.CorrelationID, rec.FaultKind, rec.ErrorKind, rec.Status, rec.Message, rec.Operation, rec.Dump, rec.Created)
	if err != nil {
		return fmt.Errorf("%s - failed to insert %s: %w", faultLogPrefix, rec.CorrelationID, err)
	}
	slog.Debug(fmt.Sprintf("%s - stored %s %s", faultLogPrefix, rec.FaultKind, rec.CorrelationID))
	return nil
}

// Lookup returns the record of correlationID, or a *faults.NotFoundError.
func (l *FaultLog) Lookup(ctx context.Context, correlationID string) (*FaultRecord, error) {
	row := l.db.QueryRow(ctx,
		`SELECT correlation_id, fault_kind, error_kind, status, message, operation, dump, created
		 FROM fault_log
		 WHERE correlation_id = $1`, correlationID)

	var rec FaultRecord
	err := row.Scan(&rec.CorrelationID, &rec.FaultKind, &rec.ErrorKind, &rec.Status,
		&rec.Message, &rec.Operation, &rec.Dump, &rec.Created)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, faults.NewNotFoundError("no fault recorded for correlation id %s", correlationID)
	}
	if err != nil {
		return nil, fmt.Errorf("%s - failed to look up %s: %w", faultLogPrefix, correlationID, err)
	}
	return &rec, nil
}

// Purge deletes records created before cutoff and returns how many were removed.
func (l *FaultLog) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := l.db.Exec(ctx, `DELETE FROM fault_log WHERE created < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("%s - failed to purge: %w", faultLogPrefix, err)
	}
	slog.Info(fmt.Sprintf("%s - purged %d records older than %s", faultLogPrefix, tag.RowsAffected(), cutoff.Format(time.RFC3339)))
	return tag.RowsAffected(), nil
}
