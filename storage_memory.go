// storage_memory.go: In-process storage backend
//
// MemoryStorage keeps values in memory, one namespace per filter scope.
// Useful in tests and for managers whose values only live as long as the process.
//
// Copyright (c) 2025 AGILira
// Series: AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package dynconf

import (
	"context"
	"sync"
)

// MemoryStorage is a Storage backed by process memory. Safe for concurrent use.
type MemoryStorage struct {
	mu         sync.RWMutex
	namespaces map[string]map[string]interface{}
	filter     Filter
}

// NewMemoryStorage creates an empty in-memory storage scoped by filter (may be nil).
func NewMemoryStorage(filter Filter) *MemoryStorage {
	return &MemoryStorage{
		namespaces: make(map[string]map[string]interface{}),
		filter:     filter,
	}
}

// Save implements Storage.
func (s *MemoryStorage) Save(ctx context.Context, values map[string]interface{}) error {
	if err := ctx.Err(); err != nil {
		return storageError(err, "save")
	}
	ns := filterKey(s.filter.conditions())
	copied := deepCopy(values)
	if copied == nil {
		copied = make(map[string]interface{})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.namespaces[ns] = copied
	return nil
}

// Get implements Storage.
func (s *MemoryStorage) Get(ctx context.Context) (map[string]interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, storageError(err, "get")
	}
	ns := filterKey(s.filter.conditions())

	s.mu.RLock()
	defer s.mu.RUnlock()
	values := deepCopy(s.namespaces[ns])
	if values == nil {
		values = make(map[string]interface{})
	}
	return values, nil
}

// Clear implements Storage.
func (s *MemoryStorage) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return storageError(err, "clear")
	}
	ns := filterKey(s.filter.conditions())

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.namespaces, ns)
	return nil
}

// ClearValue implements Storage.
func (s *MemoryStorage) ClearValue(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return storageError(err, "clear value")
	}
	ns := filterKey(s.filter.conditions())

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.namespaces[ns], id)
	return nil
}
