//go:build integration

package db

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/morezero/callguard/pkg/faults"
)

const dbIntegrationPrefix = "db:integration_test"

// testDBEnv returns the database URL for integration tests; skips the test if not set.
func testDBEnv(t *testing.T) string {
	t.Helper()
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("db:integration_test - DATABASE_URL not set, skipping")
	}
	return url
}

// setupIntegrationPool creates a pool with migrations applied.
func setupIntegrationPool(t *testing.T) (context.Context, *pgxpool.Pool) {
	t.Helper()
	ctx := context.Background()

	pool, err := NewPool(ctx, testDBEnv(t))
	if err != nil {
		t.Fatalf("%s - NewPool failed: %v", dbIntegrationPrefix, err)
	}
	t.Cleanup(pool.Close)

	migrationPath := "migrations"
	if _, err := os.Stat(migrationPath); os.IsNotExist(err) {
		migrationPath = filepath.Join("..", "..", "migrations")
	}
	migrations, err := LoadMigrationFiles(migrationPath)
	if err != nil {
		t.Fatalf("%s - LoadMigrationFiles failed: %v", dbIntegrationPrefix, err)
	}
	if err := RunMigrations(ctx, pool, migrations); err != nil {
		t.Fatalf("%s - RunMigrations failed: %v", dbIntegrationPrefix, err)
	}
	return ctx, pool
}

func TestIntegration_RunMigrationsIsIdempotent(t *testing.T) {
	ctx, pool := setupIntegrationPool(t)
	migrations, err := LoadMigrationFiles(filepath.Join("..", "..", "migrations"))
	if err != nil {
		t.Fatalf("%s - LoadMigrationFiles failed: %v", dbIntegrationPrefix, err)
	}
	if err := RunMigrations(ctx, pool, migrations); err != nil {
		t.Errorf("%s - second run failed: %v", dbIntegrationPrefix, err)
	}
}

func TestIntegration_FaultLogRoundTrip(t *testing.T) {
	ctx, pool := setupIntegrationPool(t)
	log := NewFaultLog(pool)

	id := uuid.NewString()
	rec := FaultRecord{
		CorrelationID: id,
		FaultKind:     "NotFoundFault",
		ErrorKind:     "NotFoundError",
		Status:        404,
		Message:       "widget 7",
		Operation:     "widgets.get",
		Dump:          "type=*faults.NotFoundError",
	}
	if err := log.Insert(ctx, rec); err != nil {
		t.Fatalf("%s - Insert failed: %v", dbIntegrationPrefix, err)
	}
	if err := log.Insert(ctx, rec); err != nil {
		t.Errorf("%s - duplicate insert should be ignored: %v", dbIntegrationPrefix, err)
	}

	got, err := log.Lookup(ctx, id)
	if err != nil {
		t.Fatalf("%s - Lookup failed: %v", dbIntegrationPrefix, err)
	}
	if got.FaultKind != rec.FaultKind || got.Status != 404 || got.Operation != "widgets.get" {
		t.Errorf("%s - got %+v", dbIntegrationPrefix, got)
	}

	if _, err := log.Purge(ctx, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("%s - Purge failed: %v", dbIntegrationPrefix, err)
	}
	_, err = log.Lookup(ctx, id)
	var nf *faults.NotFoundError
	if !errors.As(err, &nf) {
		t.Errorf("%s - expected NotFoundError after purge, got %v", dbIntegrationPrefix, err)
	}
}
