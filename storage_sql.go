// storage_sql.go: SQL table storage backend
//
// SQLStorage keeps one row per item id in a table with an id column, a value
// column holding the JSON-encoded value, and optional filter columns that
// scope the rows to one application or tenant. Statements use "?"
// placeholders and identifiers are validated before they reach a query.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package dynconf

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/agilira/go-errors"
)

// Default SQL layout
const (
	DefaultSQLTable       = "dynconf_values"
	DefaultSQLIDColumn    = "id"
	DefaultSQLValueColumn = "value"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLStorageConfig describes the table layout.
type SQLStorageConfig struct {
	Table       string
	IDColumn    string
	ValueColumn string
	Filter      Filter
}

func (c *SQLStorageConfig) applyDefaults() {
	if c.Table == "" {
		c.Table = DefaultSQLTable
	}
	if c.IDColumn == "" {
		c.IDColumn = DefaultSQLIDColumn
	}
	if c.ValueColumn == "" {
		c.ValueColumn = DefaultSQLValueColumn
	}
}

func validateIdentifier(kind, name string) error {
	if !identifierPattern.MatchString(name) {
		return invalidConfigError("invalid SQL %s name '%s'", kind, name)
	}
	return nil
}

// SQLStorage is a Storage backed by a database/sql table.
type SQLStorage struct {
	db     *sql.DB
	config SQLStorageConfig
	owned  bool
}

// NewSQLStorage creates a storage over an existing connection pool. The pool
// stays owned by the caller; Close is a no-op.
func NewSQLStorage(db *sql.DB, config SQLStorageConfig) (*SQLStorage, error) {
	if db == nil {
		return nil, invalidConfigError("SQL storage requires a database handle")
	}
	config.applyDefaults()
	if err := validateIdentifier("table", config.Table); err != nil {
		return nil, err
	}
	for _, col := range []string{config.IDColumn, config.ValueColumn} {
		if err := validateIdentifier("column", col); err != nil {
			return nil, err
		}
	}
	return &SQLStorage{db: db, config: config}, nil
}

// DB returns the underlying connection pool.
func (s *SQLStorage) DB() *sql.DB { return s.db }

// Table returns the table name.
func (s *SQLStorage) Table() string { return s.config.Table }

// EnsureTable creates the table when missing, with one TEXT column per
// filter condition currently in effect. Existing tables are left untouched.
func (s *SQLStorage) EnsureTable(ctx context.Context) error {
	conditions := s.config.Filter.conditions()
	columns := []string{
		fmt.Sprintf("%s TEXT NOT NULL", s.config.IDColumn),
		fmt.Sprintf("%s TEXT", s.config.ValueColumn),
	}
	for _, col := range sortedKeys(conditions) {
		if err := validateIdentifier("column", col); err != nil {
			return err
		}
		columns = append(columns, fmt.Sprintf("%s TEXT", col))
	}

	query := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", s.config.Table, strings.Join(columns, ", "))
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return storageError(err, "create table")
	}
	return nil
}

// scope evaluates the filter into a map owned by the caller; the filter may
// hand out a map it keeps using.
func (s *SQLStorage) scope() map[string]interface{} {
	conditions := s.config.Filter.conditions()
	scoped := make(map[string]interface{}, len(conditions)+1)
	for k, v := range conditions {
		scoped[k] = v
	}
	return scoped
}

// where renders the filter conditions plus extra equality clauses.
func (s *SQLStorage) where(extra map[string]interface{}) (string, []interface{}, error) {
	conditions := s.scope()
	for k, v := range extra {
		conditions[k] = v
	}
	if len(conditions) == 0 {
		return "", nil, nil
	}

	clauses := make([]string, 0, len(conditions))
	args := make([]interface{}, 0, len(conditions))
	for _, col := range sortedKeys(conditions) {
		if err := validateIdentifier("column", col); err != nil {
			return "", nil, err
		}
		clauses = append(clauses, col+" = ?")
		args = append(args, conditions[col])
	}
	return " WHERE " + strings.Join(clauses, " AND "), args, nil
}

// Save implements Storage; existing rows in scope are replaced in one transaction.
func (s *SQLStorage) Save(ctx context.Context, values map[string]interface{}) (err error) {
	where, whereArgs, err := s.where(nil)
	if err != nil {
		return err
	}

	conditions := s.scope()
	filterCols := sortedKeys(conditions)
	columns := append([]string{s.config.IDColumn, s.config.ValueColumn}, filterCols...)
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	insertSQL := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		s.config.Table, strings.Join(columns, ", "), placeholders)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageError(err, "begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, "DELETE FROM "+s.config.Table+where, whereArgs...); err != nil {
		return storageError(err, "save")
	}

	stmt, err := tx.PrepareContext(ctx, insertSQL)
	if err != nil {
		return storageError(err, "prepare insert")
	}
	defer func() { _ = stmt.Close() }()

	for id, value := range values {
		var encoded []byte
		encoded, err = json.Marshal(value)
		if err != nil {
			return errors.Wrap(err, ErrCodeStorage, fmt.Sprintf("failed to encode value of '%s'", id))
		}
		args := []interface{}{id, string(encoded)}
		for _, col := range filterCols {
			args = append(args, conditions[col])
		}
		if _, err = stmt.ExecContext(ctx, args...); err != nil {
			return storageError(err, "save")
		}
	}

	if err = tx.Commit(); err != nil {
		return storageError(err, "commit")
	}
	return nil
}

// Get implements Storage.
func (s *SQLStorage) Get(ctx context.Context) (map[string]interface{}, error) {
	where, args, err := s.where(nil)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT %s, %s FROM %s%s",
		s.config.IDColumn, s.config.ValueColumn, s.config.Table, where)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageError(err, "get")
	}
	defer func() { _ = rows.Close() }()

	values := map[string]interface{}{}
	for rows.Next() {
		var id string
		var raw sql.NullString
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, storageError(err, "get")
		}
		if !raw.Valid {
			values[id] = nil
			continue
		}
		value, err := decodeJSONValue(raw.String)
		if err != nil {
			return nil, errors.Wrap(err, ErrCodeStorage, fmt.Sprintf("failed to decode value of '%s'", id))
		}
		values[id] = value
	}
	if err := rows.Err(); err != nil {
		return nil, storageError(err, "get")
	}
	return values, nil
}

// Clear implements Storage.
func (s *SQLStorage) Clear(ctx context.Context) error {
	where, args, err := s.where(nil)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM "+s.config.Table+where, args...); err != nil {
		return storageError(err, "clear")
	}
	return nil
}

// ClearValue implements Storage.
func (s *SQLStorage) ClearValue(ctx context.Context, id string) error {
	where, args, err := s.where(map[string]interface{}{s.config.IDColumn: id})
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM "+s.config.Table+where, args...); err != nil {
		return storageError(err, "clear value")
	}
	return nil
}

// Close closes the connection pool when the storage opened it itself.
func (s *SQLStorage) Close() error {
	if !s.owned {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return storageError(err, "close")
	}
	return nil
}

// decodeJSONValue decodes a stored value, keeping integral numbers as int64.
func decodeJSONValue(raw string) (interface{}, error) {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()

	var value interface{}
	if err := dec.Decode(&value); err != nil {
		return nil, err
	}
	return normalizeJSONNumbers(value), nil
}

func normalizeJSONNumbers(v interface{}) interface{} {
	switch val := v.(type) {
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return n
		}
		f, _ := val.Float64()
		return f
	case map[string]interface{}:
		for k, item := range val {
			val[k] = normalizeJSONNumbers(item)
		}
		return val
	case []interface{}:
		for i, item := range val {
			val[i] = normalizeJSONNumbers(item)
		}
		return val
	default:
		return v
	}
}
