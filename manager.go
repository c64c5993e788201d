// manager.go: Dynamic configuration manager
//
// The Manager owns an ordered set of items, the storage their values are
// persisted to and the cache holding the composed configuration tree. A
// typical lifecycle:
//
//	mgr, err := dynconf.New(
//	    dynconf.WithItemsSource(dynconf.ItemsFile{Path: "items.yaml"}),
//	    dynconf.WithStorage(storage),
//	    dynconf.WithSource(app),
//	)
//	...
//	mgr.SetItemValues(form)          // values entered by an operator
//	if mgr.Validate() {
//	    err = mgr.SaveValues(ctx)    // persist, drop the cached tree
//	}
//	...
//	err = mgr.Configure(ctx, app, nil) // at startup: fetch and apply
//
// A Manager is not safe for concurrent use; only the cache drop triggered
// by WatchStorage runs on another goroutine.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package dynconf

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/agilira/go-errors"
	"go.uber.org/zap"
)

// Manager manages dynamic configuration items.
type Manager struct {
	items []*Item
	index map[string]*Item

	storage        Storage
	storageFactory StorageFactory

	cache         Cache
	cacheID       string
	cacheDuration time.Duration

	source               interface{}
	ignoreConfigureError bool
	logger               *zap.Logger
	audit                *AuditLogger
}

// New builds a Manager. Item definitions are loaded and realized immediately;
// duplicate or malformed definitions fail construction.
func New(opts ...Option) (*Manager, error) {
	var options Options
	for _, apply := range opts {
		apply(&options)
	}

	m := &Manager{
		storage:              options.Storage,
		storageFactory:       options.StorageFactory,
		cache:                options.Cache,
		cacheID:              options.CacheID,
		cacheDuration:        options.CacheDuration,
		source:               options.Source,
		ignoreConfigureError: options.IgnoreConfigureError,
		logger:               options.Logger,
		audit:                options.AuditLogger,
	}
	if m.logger == nil {
		m.logger = zap.NewNop()
	}
	if m.cache == nil {
		m.cache = NewMemoryCache()
	}
	if options.CacheIDFunc != nil {
		m.cacheID = options.CacheIDFunc()
	}
	if m.cacheID == "" {
		m.cacheID = DefaultCacheID
	}

	var defs []ItemDefinition
	for _, source := range options.ItemsSources {
		if source == nil {
			return nil, invalidConfigError("items source cannot be nil")
		}
		loaded, err := source.LoadItems()
		if err != nil {
			return nil, errors.Wrap(err, ErrCodeInvalidConfig, "failed to load item definitions")
		}
		defs = append(defs, loaded...)
	}

	items, err := buildItems(defs, m.source)
	if err != nil {
		return nil, err
	}
	m.items = items
	m.index = make(map[string]*Item, len(items))
	for _, item := range items {
		m.index[item.ID()] = item
	}

	m.logger.Debug("config manager created",
		zap.Int("items", len(m.items)),
		zap.String("cache_id", m.cacheID),
		zap.Duration("cache_duration", m.cacheDuration))

	if options.AutoRestoreValues {
		if err := m.RestoreValues(context.Background()); err != nil {
			// A storage realized by the factory belongs to the Manager.
			if closer, ok := m.storage.(io.Closer); ok && options.Storage == nil {
				_ = closer.Close()
			}
			return nil, err
		}
	}
	return m, nil
}

// Items returns the items in declaration order.
func (m *Manager) Items() []*Item {
	return append([]*Item(nil), m.items...)
}

// Item returns the item with the given id.
func (m *Manager) Item(id string) (*Item, error) {
	item, ok := m.index[id]
	if !ok {
		return nil, unknownItemError(id)
	}
	return item, nil
}

// CacheID returns the key the composed configuration is cached under.
func (m *Manager) CacheID() string { return m.cacheID }

// Logger returns the manager logger.
func (m *Manager) Logger() *zap.Logger { return m.logger }

// Storage returns the storage, realizing the factory on first call. Without
// any storage configured an in-memory storage is used.
func (m *Manager) Storage() (Storage, error) {
	if m.storage != nil {
		return m.storage, nil
	}
	if m.storageFactory == nil {
		m.logger.Debug("no storage configured, using in-memory storage")
		m.storage = NewMemoryStorage(nil)
		return m.storage, nil
	}

	storage, err := m.storageFactory()
	if err != nil {
		return nil, errors.Wrap(err, ErrCodeInvalidConfig, "failed to create storage")
	}
	if storage == nil {
		return nil, invalidConfigError("storage factory returned nil")
	}
	m.storage = storage
	return storage, nil
}

// ItemValues returns id -> value for every item, extracting values not set yet.
func (m *Manager) ItemValues() (map[string]interface{}, error) {
	values := make(map[string]interface{}, len(m.items))
	for _, item := range m.items {
		v, err := item.Value()
		if err != nil {
			return nil, err
		}
		values[item.ID()] = v
	}
	return values, nil
}

// ItemValue returns the value of one item.
func (m *Manager) ItemValue(id string) (interface{}, error) {
	item, err := m.Item(id)
	if err != nil {
		return nil, err
	}
	return item.Value()
}

// SetItemValues sets item values explicitly. Every id is checked before any
// value is applied, so an unknown id leaves all items untouched.
func (m *Manager) SetItemValues(values map[string]interface{}) error {
	for id := range values {
		if _, ok := m.index[id]; !ok {
			return unknownItemError(id)
		}
	}
	for id, v := range values {
		m.index[id].SetValue(v)
	}
	return nil
}

// ComposeConfig merges the branches of all items, in declaration order, into
// one configuration tree.
func (m *Manager) ComposeConfig() (map[string]interface{}, error) {
	config := make(map[string]interface{})
	for _, item := range m.items {
		branch, err := item.ComposeConfig()
		if err != nil {
			return nil, err
		}
		mergeInto(config, branch)
	}
	return config, nil
}

// SaveValues persists the current item values and drops the cached tree.
func (m *Manager) SaveValues(ctx context.Context) error {
	values, err := m.ItemValues()
	if err != nil {
		return err
	}
	storage, err := m.Storage()
	if err != nil {
		return err
	}
	previous, err := m.auditSnapshot(ctx, storage)
	if err != nil {
		return err
	}
	if err := storage.Save(ctx, values); err != nil {
		return err
	}

	m.audit.LogValuesSaved(m.cacheID, previous, values)
	m.invalidateCache()
	m.logger.Debug("config values saved", zap.Int("items", len(values)))
	return nil
}

// RestoreValues loads stored values into the items.
func (m *Manager) RestoreValues(ctx context.Context) error {
	storage, err := m.Storage()
	if err != nil {
		return err
	}
	values, err := storage.Get(ctx)
	if err != nil {
		return err
	}
	if err := m.SetItemValues(values); err != nil {
		return err
	}

	m.logger.Debug("config values restored", zap.Int("items", len(values)))
	return nil
}

// ClearValues deletes all stored values and drops the cached tree.
func (m *Manager) ClearValues(ctx context.Context) error {
	storage, err := m.Storage()
	if err != nil {
		return err
	}
	previous, err := m.auditSnapshot(ctx, storage)
	if err != nil {
		return err
	}
	if err := storage.Clear(ctx); err != nil {
		return err
	}

	m.audit.LogValuesCleared(m.cacheID, previous)
	m.invalidateCache()
	m.logger.Debug("config values cleared")
	return nil
}

// ClearValue deletes the stored value of one item and drops the cached tree.
func (m *Manager) ClearValue(ctx context.Context, id string) error {
	if _, err := m.Item(id); err != nil {
		return err
	}
	storage, err := m.Storage()
	if err != nil {
		return err
	}
	previous, err := m.auditSnapshot(ctx, storage)
	if err != nil {
		return err
	}
	if err := storage.ClearValue(ctx, id); err != nil {
		return err
	}

	m.audit.LogValueCleared(m.cacheID, id, previous[id])
	m.invalidateCache()
	m.logger.Debug("config value cleared", zap.String("item", id))
	return nil
}

// FetchConfig returns the composed configuration built from stored values.
// Callers own the returned tree; the cached copy is never handed out.
// The tree is cached for the configured duration; a negative duration
// rebuilds it on every call.
func (m *Manager) FetchConfig(ctx context.Context) (map[string]interface{}, error) {
	useCache := m.cacheDuration >= 0
	if useCache {
		if cached, ok := m.cache.Get(m.cacheID); ok {
			if config, ok := cached.(map[string]interface{}); ok {
				m.logger.Debug("config served from cache", zap.String("cache_id", m.cacheID))
				return deepCopy(config), nil
			}
		}
	}

	if err := m.RestoreValues(ctx); err != nil {
		return nil, err
	}
	config, err := m.ComposeConfig()
	if err != nil {
		return nil, err
	}

	if useCache {
		m.cache.Set(m.cacheID, deepCopy(config), m.cacheDuration)
		m.logger.Debug("config cached",
			zap.String("cache_id", m.cacheID),
			zap.Duration("ttl", m.cacheDuration))
	}
	return config, nil
}

// Validate validates every item and reports whether all of them passed.
func (m *Manager) Validate() bool {
	valid := true
	for _, item := range m.items {
		if !item.Validate() {
			valid = false
		}
	}
	return valid
}

// ValidationErrors returns the messages of items that failed the last validation.
func (m *Manager) ValidationErrors() map[string][]string {
	result := make(map[string][]string)
	for _, item := range m.items {
		if item.HasErrors() {
			result[item.ID()] = item.Errors()
		}
	}
	return result
}

// WatchStorage registers the file behind the storage with w. Every change
// drops the cached tree so the next FetchConfig reads the new values;
// onChange, when set, receives the event afterwards on the watcher goroutine.
func (m *Manager) WatchStorage(w *Watcher, onChange ChangeCallback) error {
	if w == nil {
		return invalidConfigError("watcher cannot be nil")
	}
	storage, err := m.Storage()
	if err != nil {
		return err
	}
	fileBacked, ok := storage.(interface{ Path() string })
	if !ok {
		return invalidConfigError("storage %T is not file-backed", storage)
	}

	return w.Watch(fileBacked.Path(), func(event ChangeEvent) {
		m.invalidateCache()
		m.logger.Info("config storage changed, cache dropped",
			zap.String("path", event.Path),
			zap.String("cache_id", m.cacheID))
		if onChange != nil {
			onChange(event)
		}
	})
}

// Close closes the audit logger and releases the storage when it
// implements io.Closer.
func (m *Manager) Close() error {
	auditErr := m.audit.Close()

	closer, ok := m.storage.(io.Closer)
	if !ok {
		return auditErr
	}
	if err := closer.Close(); err != nil {
		return errors.Wrap(err, ErrCodeStorage, fmt.Sprintf("failed to close storage %T", m.storage))
	}
	return auditErr
}

// auditSnapshot reads the stored values before a write. Without an audit
// logger it returns nil and skips the read.
func (m *Manager) auditSnapshot(ctx context.Context, storage Storage) (map[string]interface{}, error) {
	if m.audit == nil {
		return nil, nil
	}
	return storage.Get(ctx)
}

func (m *Manager) invalidateCache() {
	m.cache.Delete(m.cacheID)
}
