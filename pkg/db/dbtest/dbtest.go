// Package dbtest opens in-memory sqlite databases shaped like the migrated
// Postgres schema for repository and service tests.
package dbtest

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var schema = []string{
	`CREATE TABLE operators (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL,
		email TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		full_name TEXT,
		role TEXT NOT NULL DEFAULT 'operator',
		is_active BOOLEAN NOT NULL DEFAULT 1,
		last_login_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE UNIQUE INDEX ux_operators_username ON operators (lower(username))`,
	`CREATE UNIQUE INDEX ux_operators_email ON operators (lower(email))`,
	`CREATE TABLE custody_records (
		id TEXT PRIMARY KEY,
		link_token TEXT NOT NULL,
		material TEXT NOT NULL,
		material_kind TEXT NOT NULL,
		quantity TEXT NOT NULL,
		custodian_name TEXT NOT NULL,
		custodian_contact TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		issued_at DATETIME NOT NULL,
		signed_at DATETIME,
		returned_at DATETIME,
		cancelled_at DATETIME,
		latest_signature_image TEXT,
		notes TEXT,
		created_by TEXT NOT NULL,
		created_at DATETIME,
		updated_at DATETIME,
		CHECK ((returned_at IS NOT NULL) = (status = 'returned'))
	)`,
	`CREATE UNIQUE INDEX ux_custody_records_link_token ON custody_records (link_token)`,
	`CREATE TABLE signature_events (
		id TEXT PRIMARY KEY,
		custody_record_id TEXT NOT NULL,
		role TEXT,
		signer_name TEXT NOT NULL,
		signer_title TEXT,
		signature_image TEXT NOT NULL,
		portrait_image TEXT,
		captured_at DATETIME NOT NULL,
		created_at DATETIME
	)`,
	`CREATE UNIQUE INDEX ux_signature_events_record_role ON signature_events (custody_record_id, role) WHERE role IS NOT NULL`,
	`CREATE TABLE custody_link_tokens (
		token TEXT PRIMARY KEY,
		custody_record_id TEXT NOT NULL,
		issued_at DATETIME NOT NULL,
		retired_at DATETIME
	)`,
	`CREATE UNIQUE INDEX ux_custody_link_tokens_active ON custody_link_tokens (custody_record_id) WHERE retired_at IS NULL`,
	`CREATE TABLE outbox_events (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at DATETIME,
		published_at DATETIME,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT
	)`,
	`CREATE TABLE outbox_dlq (
		id TEXT PRIMARY KEY,
		event_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload_json TEXT NOT NULL,
		error_reason TEXT NOT NULL,
		error_message TEXT,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		failed_at DATETIME,
		created_at DATETIME
	)`,
	`CREATE UNIQUE INDEX ux_outbox_dlq_event ON outbox_dlq (event_id)`,
}

// Open returns a private in-memory database with the full schema applied.
// The pool holds a single connection so concurrent transactions serialize.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_", "#", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		SkipDefaultTransaction: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sqlite handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}
	return conn
}
