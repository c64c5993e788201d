// manager_test.go: Tests for the configuration manager
//
// Copyright (c) 2025 AGILira
// Series: AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package dynconf

import (
	"context"
	goerrors "errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"go.uber.org/zap/zapcore"
)

// countingStorage wraps MemoryStorage and counts backend calls.
type countingStorage struct {
	*MemoryStorage
	gets   int
	saves  int
	closed bool
	getErr error
}

func newCountingStorage() *countingStorage {
	return &countingStorage{MemoryStorage: NewMemoryStorage(nil)}
}

func (s *countingStorage) Get(ctx context.Context) (map[string]interface{}, error) {
	s.gets++
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.MemoryStorage.Get(ctx)
}

func (s *countingStorage) Save(ctx context.Context, values map[string]interface{}) error {
	s.saves++
	return s.MemoryStorage.Save(ctx, values)
}

func (s *countingStorage) Close() error {
	s.closed = true
	return nil
}

func demoItems() Option {
	return WithItemsSource(ItemsMap(map[string]map[string]interface{}{
		"appName": {
			"path":  "name",
			"rules": []interface{}{"required", []interface{}{"string", map[string]interface{}{"max": 16}}},
		},
		"nullDisplay": {
			"path": "components.formatter.nullDisplay",
		},
		"adminEmail": {
			"rules": []interface{}{"required", "email"},
		},
	}))
}

func demoSource() map[string]interface{} {
	return map[string]interface{}{
		"name": "demo",
		"components": map[string]interface{}{
			"formatter": map[string]interface{}{"nullDisplay": "(none)"},
		},
		"params": map[string]interface{}{"adminEmail": "admin@example.com"},
	}
}

func TestNew_Defaults(t *testing.T) {
	mgr, err := New()
	require.NoError(t, err)

	assert.Empty(t, mgr.Items())
	assert.Equal(t, DefaultCacheID, mgr.CacheID())
	assert.NotNil(t, mgr.Logger())

	storage, err := mgr.Storage()
	require.NoError(t, err)
	assert.IsType(t, &MemoryStorage{}, storage)

	again, err := mgr.Storage()
	require.NoError(t, err)
	assert.Same(t, storage, again)
	assert.NoError(t, mgr.Close())
}

func TestNew_InvalidDefinitions(t *testing.T) {
	_, err := New(WithItems(ItemDefinition{ID: "a"}, ItemDefinition{ID: "a"}))
	assert.Equal(t, ErrCodeInvalidConfig, ErrorCode(err))

	_, err = New(WithItemsSource(nil))
	assert.Equal(t, ErrCodeInvalidConfig, ErrorCode(err))

	_, err = New(WithItemsSource(ItemsFunc(func() ([]ItemDefinition, error) {
		return nil, goerrors.New("boom")
	})))
	assert.Equal(t, ErrCodeInvalidConfig, ErrorCode(err))

	_, err = New(WithItemsSource(ItemsFile{Path: filepath.Join(t.TempDir(), "none.yaml")}))
	assert.Equal(t, ErrCodeInvalidConfig, ErrorCode(err))
}

func TestManager_ItemsAndValues(t *testing.T) {
	mgr, err := New(demoItems(), WithSource(demoSource()))
	require.NoError(t, err)

	ids := make([]string, 0)
	for _, item := range mgr.Items() {
		ids = append(ids, item.ID())
	}
	assert.Equal(t, []string{"adminEmail", "appName", "nullDisplay"}, ids)

	values, err := mgr.ItemValues()
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{
		"appName":     "demo",
		"nullDisplay": "(none)",
		"adminEmail":  "admin@example.com",
	}, values)

	v, err := mgr.ItemValue("nullDisplay")
	require.NoError(t, err)
	assert.Equal(t, "(none)", v)

	_, err = mgr.ItemValue("nope")
	assert.Equal(t, ErrCodeUnknownItem, ErrorCode(err))

	_, err = mgr.Item("nope")
	assert.Equal(t, ErrCodeUnknownItem, ErrorCode(err))
}

func TestManager_SetItemValuesIsAtomic(t *testing.T) {
	mgr, err := New(demoItems(), WithSource(demoSource()))
	require.NoError(t, err)

	err = mgr.SetItemValues(map[string]interface{}{"appName": "changed", "ghost": 1})
	require.Error(t, err)
	assert.Equal(t, ErrCodeUnknownItem, ErrorCode(err))

	v, err := mgr.ItemValue("appName")
	require.NoError(t, err)
	assert.Equal(t, "demo", v, "no value applied when any id is unknown")

	require.NoError(t, mgr.SetItemValues(map[string]interface{}{"appName": "changed"}))
	v, err = mgr.ItemValue("appName")
	require.NoError(t, err)
	assert.Equal(t, "changed", v)
}

func TestManager_ComposeConfig(t *testing.T) {
	mgr, err := New(demoItems())
	require.NoError(t, err)
	require.NoError(t, mgr.SetItemValues(map[string]interface{}{
		"appName":     "app",
		"nullDisplay": "-",
		"adminEmail":  "a@b.co",
	}))

	config, err := mgr.ComposeConfig()
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{
		"name": "app",
		"components": map[string]interface{}{
			"formatter": map[string]interface{}{"nullDisplay": "-"},
		},
		"params": map[string]interface{}{"adminEmail": "a@b.co"},
	}, config)
}

func TestManager_SaveAndRestore(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage(nil)

	writer, err := New(demoItems(), WithSource(demoSource()), WithStorage(storage))
	require.NoError(t, err)
	require.NoError(t, writer.SetItemValues(map[string]interface{}{"appName": "saved"}))
	require.NoError(t, writer.SaveValues(ctx))

	stored, err := storage.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{
		"appName":     "saved",
		"nullDisplay": "(none)",
		"adminEmail":  "admin@example.com",
	}, stored)

	reader, err := New(demoItems(), WithStorage(storage), WithAutoRestoreValues(true))
	require.NoError(t, err)
	v, err := reader.ItemValue("appName")
	require.NoError(t, err)
	assert.Equal(t, "saved", v)
}

func TestManager_SaveValuesExtractionFailure(t *testing.T) {
	mgr, err := New(demoItems(), WithSource(map[string]interface{}{}))
	require.NoError(t, err)

	err = mgr.SaveValues(context.Background())
	require.Error(t, err)
	assert.True(t, HasCode(err, ErrCodePathResolution))
}

func TestManager_RestoreValuesRejectsStaleIDs(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage(nil)
	require.NoError(t, storage.Save(ctx, map[string]interface{}{"removedItem": 1}))

	mgr, err := New(demoItems(), WithStorage(storage))
	require.NoError(t, err)
	err = mgr.RestoreValues(ctx)
	assert.Equal(t, ErrCodeUnknownItem, ErrorCode(err))

	_, err = New(demoItems(), WithStorage(storage), WithAutoRestoreValues(true))
	assert.Equal(t, ErrCodeUnknownItem, ErrorCode(err))
}

func TestManager_FetchConfigCachesTree(t *testing.T) {
	ctx := context.Background()
	storage := newCountingStorage()
	cache, now := newFakeClockCache()

	mgr, err := New(demoItems(), WithSource(demoSource()), WithStorage(storage),
		WithCache(cache), WithCacheDuration(time.Minute))
	require.NoError(t, err)

	first, err := mgr.FetchConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, "demo", first["name"])
	assert.Equal(t, 1, storage.gets)

	_, err = mgr.FetchConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, storage.gets, "second fetch is served from cache")

	*now += int64(time.Minute)
	_, err = mgr.FetchConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, storage.gets, "expired entry triggers a rebuild")
}

func TestManager_WritesInvalidateCache(t *testing.T) {
	ctx := context.Background()
	storage := newCountingStorage()

	mgr, err := New(demoItems(), WithSource(demoSource()), WithStorage(storage))
	require.NoError(t, err)

	_, err = mgr.FetchConfig(ctx)
	require.NoError(t, err)

	require.NoError(t, mgr.SetItemValues(map[string]interface{}{"appName": "renamed"}))
	require.NoError(t, mgr.SaveValues(ctx))

	config, err := mgr.FetchConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, "renamed", config["name"])
	assert.Equal(t, 2, storage.gets)

	require.NoError(t, mgr.ClearValue(ctx, "appName"))
	_, err = mgr.FetchConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, storage.gets)

	require.NoError(t, mgr.ClearValues(ctx))
	_, err = mgr.FetchConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, storage.gets)

	err = mgr.ClearValue(ctx, "ghost")
	assert.Equal(t, ErrCodeUnknownItem, ErrorCode(err))
}

func TestManager_NegativeCacheDurationBypassesCache(t *testing.T) {
	ctx := context.Background()
	storage := newCountingStorage()
	cache := NewMemoryCache()

	mgr, err := New(demoItems(), WithSource(demoSource()), WithStorage(storage),
		WithCache(cache), WithCacheDuration(-1))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := mgr.FetchConfig(ctx)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, storage.gets)
	assert.Equal(t, 0, cache.Len())
}

func TestManager_CacheIDFuncEvaluatedOnce(t *testing.T) {
	calls := 0
	mgr, err := New(
		WithCacheID("static"),
		WithCacheIDFunc(func() string {
			calls++
			return "tenant-a"
		}),
	)
	require.NoError(t, err)
	assert.Equal(t, "tenant-a", mgr.CacheID())
	assert.Equal(t, "tenant-a", mgr.CacheID())
	assert.Equal(t, 1, calls)

	mgr, err = New(WithCacheIDFunc(func() string { return "" }))
	require.NoError(t, err)
	assert.Equal(t, DefaultCacheID, mgr.CacheID())
}

func TestManager_StorageErrorsPropagate(t *testing.T) {
	ctx := context.Background()
	storage := newCountingStorage()
	storage.getErr = storageError(goerrors.New("disk gone"), "get")

	mgr, err := New(demoItems(), WithStorage(storage))
	require.NoError(t, err)

	_, err = mgr.FetchConfig(ctx)
	assert.Equal(t, ErrCodeStorage, ErrorCode(err))
}

func TestManager_StorageFactory(t *testing.T) {
	calls := 0
	mgr, err := New(WithStorageFactory(func() (Storage, error) {
		calls++
		return newCountingStorage(), nil
	}))
	require.NoError(t, err)
	assert.Equal(t, 0, calls, "factory is lazy")

	s1, err := mgr.Storage()
	require.NoError(t, err)
	s2, err := mgr.Storage()
	require.NoError(t, err)
	assert.Same(t, s1, s2)
	assert.Equal(t, 1, calls)

	require.NoError(t, mgr.Close())
	assert.True(t, s1.(*countingStorage).closed)

	failing, err := New(WithStorageFactory(func() (Storage, error) {
		return nil, goerrors.New("no db")
	}))
	require.NoError(t, err)
	_, err = failing.Storage()
	assert.Equal(t, ErrCodeInvalidConfig, ErrorCode(err))

	nilFactory, err := New(WithStorageFactory(func() (Storage, error) { return nil, nil }))
	require.NoError(t, err)
	_, err = nilFactory.Storage()
	assert.Equal(t, ErrCodeInvalidConfig, ErrorCode(err))
}

func TestManager_Validate(t *testing.T) {
	mgr, err := New(demoItems())
	require.NoError(t, err)
	require.NoError(t, mgr.SetItemValues(map[string]interface{}{
		"appName":     "a name far longer than sixteen",
		"nullDisplay": nil,
		"adminEmail":  "",
	}))

	assert.False(t, mgr.Validate())
	assert.Equal(t, map[string][]string{
		"appName":    {"App Name should contain at most 16 characters"},
		"adminEmail": {"Admin Email cannot be blank"},
	}, mgr.ValidationErrors())

	require.NoError(t, mgr.SetItemValues(map[string]interface{}{
		"appName":    "ok",
		"adminEmail": "admin@example.com",
	}))
	assert.True(t, mgr.Validate())
	assert.Empty(t, mgr.ValidationErrors())
}

func TestManager_LogsWithInjectedLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	mgr, err := New(demoItems(), WithSource(demoSource()), WithLogger(zap.New(core)))
	require.NoError(t, err)
	require.NoError(t, mgr.SaveValues(context.Background()))

	assert.Equal(t, 1, logs.FilterMessage("config manager created").Len())
	assert.Equal(t, 1, logs.FilterMessage("config values saved").Len())
}

func TestManager_FetchConfigReturnsCallerOwnedTree(t *testing.T) {
	ctx := context.Background()
	mgr, err := New(
		WithItems(ItemDefinition{ID: "siteName", Properties: map[string]interface{}{"value": "demo"}}),
		WithStorage(NewMemoryStorage(nil)),
	)
	require.NoError(t, err)
	require.NoError(t, mgr.SaveValues(ctx))

	first, err := mgr.FetchConfig(ctx)
	require.NoError(t, err)
	first["params"].(map[string]interface{})["siteName"] = "changed"

	second, err := mgr.FetchConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"params": map[string]interface{}{"siteName": "demo"}}, second)

	second["extra"] = true
	third, err := mgr.FetchConfig(ctx)
	require.NoError(t, err)
	assert.NotContains(t, third, "extra")
}

func TestManager_ComposeConfigSharedBranches(t *testing.T) {
	hosts := []interface{}{"a", "b"}
	mgr, err := New(WithItems(
		ItemDefinition{ID: "sender", Properties: map[string]interface{}{"path": "components.mailer.sender", "value": "ops@example.com"}},
		ItemDefinition{ID: "port", Properties: map[string]interface{}{"path": "components.mailer.port", "value": 25}},
		ItemDefinition{ID: "hosts", Properties: map[string]interface{}{"path": "components.mailer.hosts", "value": hosts}},
		ItemDefinition{ID: "siteName", Properties: map[string]interface{}{"value": "demo"}},
	))
	require.NoError(t, err)

	config, err := mgr.ComposeConfig()
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{
		"components": map[string]interface{}{
			"mailer": map[string]interface{}{
				"sender": "ops@example.com",
				"port":   25,
				"hosts":  []interface{}{"a", "b"},
			},
		},
		"params": map[string]interface{}{"siteName": "demo"},
	}, config)

	config["components"].(map[string]interface{})["mailer"].(map[string]interface{})["hosts"].([]interface{})[0] = "z"
	assert.Equal(t, "a", hosts[0], "item values are copied into the tree")
}

func TestManager_AutoRestoreFailureClosesFactoryStorage(t *testing.T) {
	storage := newCountingStorage()
	require.NoError(t, storage.MemoryStorage.Save(context.Background(), map[string]interface{}{"removedItem": 1}))

	_, err := New(demoItems(),
		WithStorageFactory(func() (Storage, error) { return storage, nil }),
		WithAutoRestoreValues(true))
	assert.Equal(t, ErrCodeUnknownItem, ErrorCode(err))
	assert.True(t, storage.closed)

	supplied := newCountingStorage()
	require.NoError(t, supplied.MemoryStorage.Save(context.Background(), map[string]interface{}{"removedItem": 1}))
	_, err = New(demoItems(), WithStorage(supplied), WithAutoRestoreValues(true))
	require.Error(t, err)
	assert.False(t, supplied.closed, "caller-supplied storage stays open")
}
