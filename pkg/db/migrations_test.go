package db

import (
	"os"
	"path/filepath"
	"testing"
)

const migrationsTestPrefix = "db:migrations_test"

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatalf("%s - failed to write test file %s: %v", migrationsTestPrefix, name, err)
		}
	}
}

func TestLoadMigrationFiles_SortedAndNamed(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"0002_add_index.sql":    "CREATE INDEX idx ON fault_log(created);",
		"0001_create_table.sql": "CREATE TABLE fault_log (correlation_id UUID);",
		"README.md":             "# Migrations",
	})
	if err := os.Mkdir(filepath.Join(dir, "nested.sql"), 0755); err != nil {
		t.Fatalf("%s - failed to create subdir: %v", migrationsTestPrefix, err)
	}

	result, err := LoadMigrationFiles(dir)
	if err != nil {
		t.Fatalf("%s - unexpected error: %v", migrationsTestPrefix, err)
	}
	if len(result) != 2 {
		t.Fatalf("%s - expected 2 migrations, got %d", migrationsTestPrefix, len(result))
	}
	if result[0].Name != "0001_create_table" || result[1].Name != "0002_add_index" {
		t.Errorf("%s - order = %s, %s", migrationsTestPrefix, result[0].Name, result[1].Name)
	}
	if result[0].SQL != "CREATE TABLE fault_log (correlation_id UUID);" {
		t.Errorf("%s - first migration content mismatch", migrationsTestPrefix)
	}
}

func TestLoadMigrationFiles_EmptyDir(t *testing.T) {
	result, err := LoadMigrationFiles(t.TempDir())
	if err != nil {
		t.Fatalf("%s - unexpected error: %v", migrationsTestPrefix, err)
	}
	if len(result) != 0 {
		t.Errorf("%s - expected empty result, got %d items", migrationsTestPrefix, len(result))
	}
}

func TestLoadMigrationFiles_NonExistentDir(t *testing.T) {
	if _, err := LoadMigrationFiles(filepath.Join(t.TempDir(), "nonexistent")); err == nil {
		t.Errorf("%s - expected error for non-existent directory", migrationsTestPrefix)
	}
}

func TestLoadMigrationFiles_RepositoryMigrations(t *testing.T) {
	result, err := LoadMigrationFiles(filepath.Join("..", "..", "migrations"))
	if err != nil {
		t.Fatalf("%s - unexpected error: %v", migrationsTestPrefix, err)
	}
	if len(result) == 0 || result[0].Name != "0001_create_fault_log" {
		t.Errorf("%s - repository migrations = %+v", migrationsTestPrefix, result)
	}
}

func TestPending(t *testing.T) {
	migrations := []Migration{{Name: "0001"}, {Name: "0002"}, {Name: "0003"}}
	pending := Pending(migrations, map[string]bool{"0001": true, "0003": true})
	if len(pending) != 1 || pending[0].Name != "0002" {
		t.Errorf("%s - pending = %+v", migrationsTestPrefix, pending)
	}
	if got := Pending(migrations, nil); len(got) != 3 {
		t.Errorf("%s - all should be pending, got %d", migrationsTestPrefix, len(got))
	}
}
