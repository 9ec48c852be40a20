package migrate

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestValidateDirAcceptsShippedMigrations(t *testing.T) {
	if err := ValidateDir("migrations"); err != nil {
		t.Fatalf("shipped migrations should validate: %v", err)
	}
}

func TestValidateDirRejectsBadNames(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "001_init.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	err := ValidateDir(dir)
	if err == nil || !strings.Contains(err.Error(), "invalid migration filename") {
		t.Fatalf("expected filename error, got %v", err)
	}
}

func TestValidateDirRequiresDownSection(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "20260101000000_init.sql"), []byte("-- +goose Up\nSELECT 1;\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := ValidateDir(dir); err == nil {
		t.Fatal("expected missing down section to fail")
	}
}

func TestValidateDirRejectsEmptyDir(t *testing.T) {
	if err := ValidateDir(t.TempDir()); err == nil {
		t.Fatal("expected empty dir to fail")
	}
}

func TestCreateSQLMigrationSanitizesName(t *testing.T) {
	dir := t.TempDir()
	path, err := CreateSQLMigration(dir, "Add Custody Notes!")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !strings.HasSuffix(path, "_add_custody_notes.sql") {
		t.Fatalf("unexpected filename %s", path)
	}
	if err := ValidateDir(dir); err != nil {
		t.Fatalf("created migration should validate: %v", err)
	}
}

func TestEmbeddedMigrationsMatchDisk(t *testing.T) {
	entries, err := Migrations.ReadDir(embeddedDir)
	if err != nil {
		t.Fatalf("read embedded: %v", err)
	}
	onDisk, err := filepath.Glob(filepath.Join("migrations", "*.sql"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(entries) != len(onDisk) {
		t.Fatalf("embedded %d migrations, disk has %d", len(entries), len(onDisk))
	}
}

func TestValidateEmbedded(t *testing.T) {
	if err := ValidateEmbedded(); err != nil {
		t.Fatalf("embedded migrations should validate: %v", err)
	}
}

func TestValidateDirRejectsDownBeforeUp(t *testing.T) {
	dir := t.TempDir()
	body := "-- +goose Down\nDROP TABLE x;\n-- +goose Up\nCREATE TABLE x ();\n"
	if err := os.WriteFile(filepath.Join(dir, "20260101000000_init.sql"), []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := ValidateDir(dir); err == nil || !strings.Contains(err.Error(), "before Up") {
		t.Fatalf("expected ordering error, got %v", err)
	}
}

func TestNextVersionStaysAheadOfExisting(t *testing.T) {
	existing := []migrationFile{{version: "20990101000000", name: "20990101000000_future.sql"}}
	got := nextVersion(existing, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	if got != "20990101000001" {
		t.Fatalf("expected version bumped past existing, got %s", got)
	}
	if got := nextVersion(nil, time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)); got != "20260301090000" {
		t.Fatalf("expected clock version, got %s", got)
	}
}

func TestSourceSelectsEmbeddedOrDisk(t *testing.T) {
	embedded, err := Source("", true)
	if err != nil {
		t.Fatalf("embedded source: %v", err)
	}
	if _, err := fs.Stat(embedded, "."); err != nil {
		t.Fatalf("embedded root: %v", err)
	}
	matches, err := fs.Glob(embedded, "*.sql")
	if err != nil || len(matches) == 0 {
		t.Fatalf("expected embedded sql files at the root, got %v (%v)", matches, err)
	}

	if _, err := Source("", false); err == nil {
		t.Fatal("expected error without a dir")
	}
	disk, err := Source("migrations", false)
	if err != nil {
		t.Fatalf("disk source: %v", err)
	}
	onDisk, _ := fs.Glob(disk, "*.sql")
	if len(onDisk) != len(matches) {
		t.Fatalf("disk has %d files, embedded %d", len(onDisk), len(matches))
	}
}

func TestNewRunnerRequiresDB(t *testing.T) {
	if _, err := NewRunner(nil, os.DirFS("migrations")); err == nil {
		t.Fatal("expected error for nil db")
	}
}
