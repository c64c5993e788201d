// options.go: Functional options for the Manager
//
// Copyright (c) 2025 AGILira
// Series: AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package dynconf

import (
	"time"

	"go.uber.org/zap"
)

// DefaultCacheID is the cache key used when no cache id is configured.
const DefaultCacheID = "dynconf.Manager"

// Options holds the Manager construction settings.
type Options struct {
	ItemsSources         []ItemsSource
	Storage              Storage
	StorageFactory       StorageFactory
	Cache                Cache
	CacheID              string
	CacheIDFunc          func() string
	CacheDuration        time.Duration
	AutoRestoreValues    bool
	Source               interface{}
	IgnoreConfigureError bool
	Logger               *zap.Logger
	AuditLogger          *AuditLogger
}

// Option applies a setting to Options.
type Option func(*Options)

// WithItems declares items in the given order.
func WithItems(defs ...ItemDefinition) Option {
	return func(opts *Options) {
		opts.ItemsSources = append(opts.ItemsSources, Items(defs...))
	}
}

// WithItemsSource adds a source of item definitions. Sources are read in order.
func WithItemsSource(source ItemsSource) Option {
	return func(opts *Options) {
		opts.ItemsSources = append(opts.ItemsSources, source)
	}
}

// WithStorage sets a ready storage instance.
func WithStorage(storage Storage) Option {
	return func(opts *Options) {
		opts.Storage = storage
	}
}

// WithStorageFactory defers storage creation until first use.
func WithStorageFactory(factory StorageFactory) Option {
	return func(opts *Options) {
		opts.StorageFactory = factory
	}
}

// WithCache sets the cache for composed configurations.
func WithCache(cache Cache) Option {
	return func(opts *Options) {
		opts.Cache = cache
	}
}

// WithCacheID sets a static cache key.
func WithCacheID(id string) Option {
	return func(opts *Options) {
		opts.CacheID = id
	}
}

// WithCacheIDFunc computes the cache key once, when the Manager is built.
// It takes precedence over WithCacheID.
func WithCacheIDFunc(fn func() string) Option {
	return func(opts *Options) {
		opts.CacheIDFunc = fn
	}
}

// WithCacheDuration sets the cached tree lifetime. Zero never expires,
// a negative duration disables caching.
func WithCacheDuration(d time.Duration) Option {
	return func(opts *Options) {
		opts.CacheDuration = d
	}
}

// WithAutoRestoreValues restores stored values right after construction.
func WithAutoRestoreValues(enabled bool) Option {
	return func(opts *Options) {
		opts.AutoRestoreValues = enabled
	}
}

// WithSource sets the live graph item values are extracted from.
func WithSource(source interface{}) Option {
	return func(opts *Options) {
		opts.Source = source
	}
}

// WithIgnoreConfigureError logs and skips failed property assignments in
// Configure instead of returning them.
func WithIgnoreConfigureError(enabled bool) Option {
	return func(opts *Options) {
		opts.IgnoreConfigureError = enabled
	}
}

// WithLogger sets the logger. Without it the Manager logs nothing.
func WithLogger(logger *zap.Logger) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// WithAuditLogger records every storage write in the audit trail. The
// Manager closes the audit logger in Close.
func WithAuditLogger(audit *AuditLogger) Option {
	return func(opts *Options) {
		opts.AuditLogger = audit
	}
}
