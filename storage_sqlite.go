// storage_sqlite.go: SQLite flavour of the SQL storage
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package dynconf

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/agilira/go-errors"
	_ "github.com/mattn/go-sqlite3" // SQLite driver registration
)

// OpenSQLite opens a SQLite database at path, creating parent directories
// as needed. ":memory:" opens a private in-memory database.
func OpenSQLite(path string) (*sql.DB, error) {
	if path == "" {
		return nil, invalidConfigError("SQLite path cannot be empty")
	}

	dsn := ":memory:"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, errors.Wrap(err, ErrCodeStorage, "failed to create SQLite directory")
		}
		dsn = fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", path)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, ErrCodeStorage, "failed to open SQLite database")
	}
	// One connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, errors.Wrap(err, ErrCodeStorage,
				fmt.Sprintf("failed to ping SQLite database (close error: %v)", closeErr))
		}
		return nil, errors.Wrap(err, ErrCodeStorage, "failed to ping SQLite database")
	}
	return db, nil
}

// NewSQLiteStorage opens path and returns a storage owning the connection,
// with its table created when missing.
func NewSQLiteStorage(ctx context.Context, path string, config SQLStorageConfig) (*SQLStorage, error) {
	db, err := OpenSQLite(path)
	if err != nil {
		return nil, err
	}

	storage, err := NewSQLStorage(db, config)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	storage.owned = true

	if err := storage.EnsureTable(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return storage, nil
}
