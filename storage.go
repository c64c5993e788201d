// storage.go: Persistence contract for item values
//
// A Storage keeps a flat id -> value mapping. Save replaces the whole
// mapping, Get reads it back verbatim, Clear and ClearValue delete.
// Backends wrap their own failures with DYNCONF_STORAGE and never retry.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package dynconf

import (
	"context"
	"fmt"

	"github.com/agilira/go-errors"
)

// Storage persists item values.
type Storage interface {
	// Save replaces the stored mapping with values.
	Save(ctx context.Context, values map[string]interface{}) error
	// Get returns the stored mapping; an empty store yields an empty map.
	Get(ctx context.Context) (map[string]interface{}, error)
	// Clear deletes every stored value.
	Clear(ctx context.Context) error
	// ClearValue deletes the value stored under id.
	ClearValue(ctx context.Context, id string) error
}

// StorageFactory builds a Storage on first use.
type StorageFactory func() (Storage, error)

// ClearValueBySave removes id with a read-modify-write cycle. Backends
// without a native single-key delete use it to implement ClearValue.
func ClearValueBySave(ctx context.Context, s Storage, id string) error {
	values, err := s.Get(ctx)
	if err != nil {
		return err
	}
	if _, ok := values[id]; !ok {
		return nil
	}
	delete(values, id)
	return s.Save(ctx, values)
}

func storageError(err error, op string) error {
	return errors.Wrap(err, ErrCodeStorage, fmt.Sprintf("storage %s failed", op))
}
