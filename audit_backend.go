// audit_backend.go: Storage backends for the audit trail
//
// Two backends share one contract: JSONL files, human-readable and easy to
// ship to a log aggregator, and an SQLite table for queryable history.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package dynconf

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/agilira/go-errors"
)

// DefaultAuditTable is the SQLite table holding audit events.
const DefaultAuditTable = "dynconf_audit"

// auditBackend persists batches of audit events. Implementations must be
// safe for concurrent use.
type auditBackend interface {
	Write(events []AuditEvent) error
	Flush() error
	Close() error
}

// auditFormat returns "jsonl" or "sqlite" for an audit output file.
func auditFormat(outputFile string) (string, error) {
	if outputFile == "" {
		return "", invalidConfigError("audit output file cannot be empty")
	}
	if outputFile == ":memory:" {
		return "sqlite", nil
	}
	switch strings.ToLower(filepath.Ext(outputFile)) {
	case ".jsonl":
		return "jsonl", nil
	case ".db", ".sqlite", ".sqlite3":
		return "sqlite", nil
	default:
		return "", invalidConfigError("unsupported audit file extension '%s'", filepath.Ext(outputFile))
	}
}

func createAuditBackend(config AuditConfig) (auditBackend, error) {
	format, err := auditFormat(config.OutputFile)
	if err != nil {
		return nil, err
	}
	if format == "jsonl" {
		return newJSONLAuditBackend(config.OutputFile)
	}
	return newSQLiteAuditBackend(config.OutputFile)
}

// sqliteAuditBackend writes events to DefaultAuditTable.
type sqliteAuditBackend struct {
	db         *sql.DB
	insertStmt *sql.Stmt
	mu         sync.RWMutex
	closed     bool
}

func newSQLiteAuditBackend(path string) (*sqliteAuditBackend, error) {
	db, err := OpenSQLite(path)
	if err != nil {
		return nil, err
	}

	backend := &sqliteAuditBackend{db: db}
	if err := backend.initializeSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	backend.insertStmt, err = db.Prepare(`INSERT INTO ` + DefaultAuditTable + ` (
		timestamp, level, event, manager, item_id, old_value, new_value, process_id, context, checksum
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, ErrCodeStorage, "failed to prepare audit insert")
	}
	return backend, nil
}

func (s *sqliteAuditBackend) initializeSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS ` + DefaultAuditTable + ` (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp TEXT NOT NULL,
			level TEXT NOT NULL,
			event TEXT NOT NULL,
			manager TEXT NOT NULL,
			item_id TEXT,
			old_value TEXT,
			new_value TEXT,
			process_id INTEGER NOT NULL,
			context TEXT,
			checksum TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_dynconf_audit_timestamp ON ` + DefaultAuditTable + `(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_dynconf_audit_manager ON ` + DefaultAuditTable + `(manager, event)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return errors.Wrap(err, ErrCodeStorage, "failed to create audit schema")
		}
	}
	return nil
}

// Write inserts the batch in one transaction.
func (s *sqliteAuditBackend) Write(events []AuditEvent) (err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("cannot write to closed SQLite audit backend")
	}
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin audit transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	txStmt := tx.Stmt(s.insertStmt)
	defer func() { _ = txStmt.Close() }()

	for _, event := range events {
		if err = insertAuditEvent(txStmt, event); err != nil {
			return fmt.Errorf("failed to insert audit event: %w", err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit audit transaction: %w", err)
	}
	return nil
}

func insertAuditEvent(stmt *sql.Stmt, event AuditEvent) error {
	oldValue, err := nullableJSON(event.OldValue)
	if err != nil {
		return fmt.Errorf("failed to serialize old_value: %w", err)
	}
	newValue, err := nullableJSON(event.NewValue)
	if err != nil {
		return fmt.Errorf("failed to serialize new_value: %w", err)
	}
	context, err := nullableJSON(event.Context)
	if err != nil {
		return fmt.Errorf("failed to serialize context: %w", err)
	}

	_, err = stmt.Exec(
		event.Timestamp.Format(time.RFC3339Nano),
		event.Level.String(),
		event.Event,
		event.Manager,
		event.ItemID,
		oldValue,
		newValue,
		event.ProcessID,
		context,
		event.Checksum,
	)
	return err
}

// nullableJSON encodes v, mapping nil to SQL NULL.
func nullableJSON(v interface{}) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	if m, ok := v.(map[string]interface{}); ok && m == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// Flush checkpoints the WAL.
func (s *sqliteAuditBackend) Flush() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil
	}
	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("failed to flush SQLite audit backend: %w", err)
	}
	return nil
}

// Close releases the statement and the database. Safe to call twice.
func (s *sqliteAuditBackend) Close() error {
	if err := s.Flush(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var errs []string
	if err := s.insertStmt.Close(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := s.db.Close(); err != nil {
		errs = append(errs, err.Error())
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors closing SQLite audit backend: %s", strings.Join(errs, "; "))
	}
	return nil
}

// jsonlAuditBackend appends one JSON object per line.
type jsonlAuditBackend struct {
	file   *os.File
	mu     sync.Mutex
	closed bool
}

func newJSONLAuditBackend(path string) (*jsonlAuditBackend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, errors.Wrap(err, ErrCodeStorage, "failed to create audit log directory")
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, errors.Wrap(err, ErrCodeStorage, "failed to open audit log file")
	}
	return &jsonlAuditBackend{file: file}, nil
}

func (j *jsonlAuditBackend) Write(events []AuditEvent) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return fmt.Errorf("cannot write to closed JSONL audit backend")
	}

	for _, event := range events {
		data, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("failed to serialize audit event: %w", err)
		}
		if _, err := j.file.Write(append(data, '\n')); err != nil {
			return fmt.Errorf("failed to write audit event: %w", err)
		}
	}
	return nil
}

func (j *jsonlAuditBackend) Flush() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	if err := j.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync audit log file: %w", err)
	}
	return nil
}

func (j *jsonlAuditBackend) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	j.closed = true
	return j.file.Close()
}
