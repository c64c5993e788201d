// settings.go: Manager settings from command-line flags and environment
//
// Precedence is flags, then APPNAME_* environment variables, then defaults:
//
//	myapp --storage-driver sqlite --storage-dsn ./config.db
//	MYAPP_CACHE_DURATION=5m myapp
//
// Copyright (c) 2025 AGILira
// Series: AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package dynconf

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	flashflags "github.com/agilira/flash-flags"
	"github.com/agilira/go-errors"
)

// Settings configures a Manager from outside the program.
type Settings struct {
	ItemsFile            string
	ItemsSection         string
	StorageDriver        string
	StorageDSN           string
	StorageTable         string
	CacheID              string
	CacheDuration        time.Duration
	AutoRestoreValues    bool
	IgnoreConfigureError bool
	LogLevel             string
	AuditFile            string
}

// ErrHelpRequested is returned by LoadSettings when -h or --help is passed.
var ErrHelpRequested = errors.New(ErrCodeInvalidConfig, "help requested")

// DefaultSettings returns the settings used when nothing is configured.
func DefaultSettings() Settings {
	return Settings{
		StorageDriver: "memory",
		StorageTable:  DefaultSQLTable,
		CacheID:       DefaultCacheID,
	}
}

// Flag names
const (
	flagItemsFile            = "items-file"
	flagItemsSection         = "items-section"
	flagStorageDriver        = "storage-driver"
	flagStorageDSN           = "storage-dsn"
	flagStorageTable         = "storage-table"
	flagCacheID              = "cache-id"
	flagCacheDuration        = "cache-duration"
	flagAutoRestore          = "auto-restore"
	flagIgnoreConfigureError = "ignore-configure-error"
	flagLogLevel             = "log-level"
	flagAuditFile            = "audit-file"
)

// LoadSettings parses args for appName. Environment variables named
// APPNAME_<FLAG_NAME> provide values for flags absent from args.
func LoadSettings(appName string, args []string) (*Settings, error) {
	if appName == "" {
		return nil, invalidConfigError("application name cannot be empty")
	}
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return nil, ErrHelpRequested
		}
	}

	env := envLookup(appName)
	defaults := DefaultSettings()

	cacheDuration, err := env.getDuration(flagCacheDuration, defaults.CacheDuration)
	if err != nil {
		return nil, err
	}
	autoRestore, err := env.getBool(flagAutoRestore, defaults.AutoRestoreValues)
	if err != nil {
		return nil, err
	}
	ignoreErrors, err := env.getBool(flagIgnoreConfigureError, defaults.IgnoreConfigureError)
	if err != nil {
		return nil, err
	}

	fs := flashflags.New(appName)
	fs.SetDescription("Dynamic configuration manager settings")
	fs.String(flagItemsFile, env.getString(flagItemsFile, defaults.ItemsFile), "YAML file declaring config items")
	fs.String(flagItemsSection, env.getString(flagItemsSection, defaults.ItemsSection), "Dotted section of the items file holding the items")
	fs.String(flagStorageDriver, env.getString(flagStorageDriver, defaults.StorageDriver), "Storage driver: memory, file or sqlite")
	fs.String(flagStorageDSN, env.getString(flagStorageDSN, defaults.StorageDSN), "Storage location (file path or database path)")
	fs.String(flagStorageTable, env.getString(flagStorageTable, defaults.StorageTable), "Table holding values for SQL storages")
	fs.String(flagCacheID, env.getString(flagCacheID, defaults.CacheID), "Cache key of the composed configuration")
	fs.Duration(flagCacheDuration, cacheDuration, "Lifetime of the cached configuration (0 never expires, negative disables)")
	fs.Bool(flagAutoRestore, autoRestore, "Restore stored values when the manager is created")
	fs.Bool(flagIgnoreConfigureError, ignoreErrors, "Log and skip failing property assignments")
	fs.String(flagLogLevel, env.getString(flagLogLevel, defaults.LogLevel), "Log level: debug, info, warn, error (empty disables logging)")
	fs.String(flagAuditFile, env.getString(flagAuditFile, defaults.AuditFile), "Audit trail of storage writes (.jsonl or .db)")

	if err := fs.Parse(args); err != nil {
		return nil, errors.Wrap(err, ErrCodeInvalidConfig, "failed to parse command-line flags")
	}

	settings := &Settings{
		ItemsFile:            fs.GetString(flagItemsFile),
		ItemsSection:         fs.GetString(flagItemsSection),
		StorageDriver:        fs.GetString(flagStorageDriver),
		StorageDSN:           fs.GetString(flagStorageDSN),
		StorageTable:         fs.GetString(flagStorageTable),
		CacheID:              fs.GetString(flagCacheID),
		CacheDuration:        fs.GetDuration(flagCacheDuration),
		AutoRestoreValues:    fs.GetBool(flagAutoRestore),
		IgnoreConfigureError: fs.GetBool(flagIgnoreConfigureError),
		LogLevel:             fs.GetString(flagLogLevel),
		AuditFile:            fs.GetString(flagAuditFile),
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return settings, nil
}

// Validate checks the settings for consistency.
func (s *Settings) Validate() error {
	if s.StorageDriver == "" {
		return invalidConfigError("storage driver cannot be empty")
	}
	known := false
	for _, name := range StorageDrivers() {
		if name == s.StorageDriver {
			known = true
			break
		}
	}
	if !known {
		return errors.New(ErrCodeUnknownDriver,
			fmt.Sprintf("no storage driver registered for '%s'", s.StorageDriver))
	}
	if (s.StorageDriver == "file" || s.StorageDriver == "sqlite") && s.StorageDSN == "" {
		return invalidConfigError("storage driver '%s' requires a DSN", s.StorageDriver)
	}
	if s.StorageTable != "" {
		if err := validateIdentifier("table", s.StorageTable); err != nil {
			return err
		}
	}
	if s.ItemsSection != "" && s.ItemsFile == "" {
		return invalidConfigError("items section requires an items file")
	}
	if s.LogLevel != "" {
		if _, err := parseLogLevel(s.LogLevel); err != nil {
			return err
		}
	}
	if s.AuditFile != "" {
		if _, err := auditFormat(s.AuditFile); err != nil {
			return err
		}
	}
	return nil
}

// NewFromSettings builds a Manager from settings. Extra options are applied
// last and win over the settings.
func NewFromSettings(ctx context.Context, s *Settings, opts ...Option) (*Manager, error) {
	if s == nil {
		return nil, invalidConfigError("settings cannot be nil")
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}

	logger, err := NewLogger(s.LogLevel)
	if err != nil {
		return nil, err
	}

	storageConfig := StorageConfig{DSN: s.StorageDSN, Table: s.StorageTable}
	driver := s.StorageDriver

	base := []Option{
		WithLogger(logger),
		WithStorageFactory(func() (Storage, error) {
			return OpenStorage(ctx, driver, storageConfig)
		}),
		WithCacheID(s.CacheID),
		WithCacheDuration(s.CacheDuration),
		WithAutoRestoreValues(s.AutoRestoreValues),
		WithIgnoreConfigureError(s.IgnoreConfigureError),
	}
	if s.ItemsFile != "" {
		base = append(base, WithItemsSource(ItemsFile{Path: s.ItemsFile, Section: s.ItemsSection}))
	}

	var audit *AuditLogger
	if s.AuditFile != "" {
		audit, err = NewAuditLogger(DefaultAuditConfig(s.AuditFile))
		if err != nil {
			return nil, err
		}
		base = append(base, WithAuditLogger(audit))
	}

	m, err := New(append(base, opts...)...)
	if err != nil {
		_ = audit.Close()
		return nil, err
	}
	return m, nil
}

// envLookup reads APPNAME_* variables.
type envLookup string

func (e envLookup) key(flag string) string {
	return strings.ToUpper(strings.ReplaceAll(string(e)+"_"+flag, "-", "_"))
}

func (e envLookup) getString(flag, def string) string {
	if value := os.Getenv(e.key(flag)); value != "" {
		return value
	}
	return def
}

func (e envLookup) getDuration(flag string, def time.Duration) (time.Duration, error) {
	value := os.Getenv(e.key(flag))
	if value == "" {
		return def, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, errors.Wrap(err, ErrCodeInvalidConfig, fmt.Sprintf("invalid %s", e.key(flag)))
	}
	return d, nil
}

func (e envLookup) getBool(flag string, def bool) (bool, error) {
	value := os.Getenv(e.key(flag))
	if value == "" {
		return def, nil
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1", "yes", "on", "enabled":
		return true, nil
	case "false", "0", "no", "off", "disabled":
		return false, nil
	}
	if b, err := strconv.ParseBool(value); err == nil {
		return b, nil
	}
	return false, invalidConfigError("invalid boolean %s=%q", e.key(flag), value)
}
