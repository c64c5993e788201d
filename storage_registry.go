// storage_registry.go: Named storage drivers
//
// Drivers turn a DSN into a Storage so storages can be selected from
// settings. Built-in drivers:
//
//	memory   DSN ignored
//	file     DSN is the file path (.yaml, .yml or .json); filters are rejected
//	sqlite   DSN is the database path or ":memory:"
//
// Additional drivers can be added with RegisterStorageDriver, typically
// from an init function.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package dynconf

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/agilira/go-errors"
)

// StorageConfig carries the driver-independent storage settings.
type StorageConfig struct {
	DSN    string
	Table  string
	Filter Filter
}

// StorageDriver opens a Storage from its configuration.
type StorageDriver func(ctx context.Context, config StorageConfig) (Storage, error)

var (
	storageDrivers = map[string]StorageDriver{}
	driverMutex    sync.RWMutex
)

func init() {
	storageDrivers["memory"] = func(_ context.Context, config StorageConfig) (Storage, error) {
		return NewMemoryStorage(config.Filter), nil
	}
	storageDrivers["file"] = func(_ context.Context, config StorageConfig) (Storage, error) {
		if config.Filter != nil {
			return nil, invalidConfigError("file storage does not support filters")
		}
		storage, err := NewFileStorage(config.DSN)
		if err != nil {
			return nil, err
		}
		return storage, nil
	}
	storageDrivers["sqlite"] = func(ctx context.Context, config StorageConfig) (Storage, error) {
		storage, err := NewSQLiteStorage(ctx, config.DSN, SQLStorageConfig{
			Table:  config.Table,
			Filter: config.Filter,
		})
		if err != nil {
			return nil, err
		}
		return storage, nil
	}
}

// RegisterStorageDriver registers a driver under name. Duplicate names are rejected.
func RegisterStorageDriver(name string, driver StorageDriver) error {
	if name == "" {
		return errors.New(ErrCodeInvalidConfig, "storage driver name cannot be empty")
	}
	if driver == nil {
		return errors.New(ErrCodeInvalidConfig, "storage driver cannot be nil")
	}

	driverMutex.Lock()
	defer driverMutex.Unlock()

	if _, exists := storageDrivers[name]; exists {
		return errors.New(ErrCodeInvalidConfig,
			fmt.Sprintf("storage driver '%s' already registered", name))
	}
	storageDrivers[name] = driver
	return nil
}

// StorageDrivers lists the registered driver names in sorted order.
func StorageDrivers() []string {
	driverMutex.RLock()
	defer driverMutex.RUnlock()

	names := make([]string, 0, len(storageDrivers))
	for name := range storageDrivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// OpenStorage opens a storage with the named driver.
func OpenStorage(ctx context.Context, driver string, config StorageConfig) (Storage, error) {
	driverMutex.RLock()
	open, ok := storageDrivers[driver]
	driverMutex.RUnlock()

	if !ok {
		return nil, errors.New(ErrCodeUnknownDriver,
			fmt.Sprintf("no storage driver registered for '%s'", driver))
	}
	return open(ctx, config)
}
