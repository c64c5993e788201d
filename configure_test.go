// configure_test.go: Tests for applying configuration onto live targets
//
// Copyright (c) 2025 AGILira
// Series: AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package dynconf

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"go.uber.org/zap/zapcore"
)

type formatter struct {
	NullDisplay string
	Precision   int
}

func newFormatter(props map[string]interface{}) (interface{}, error) {
	f := &formatter{}
	for name, v := range props {
		if err := assignProperty(f, name, v); err != nil {
			return nil, err
		}
	}
	return f, nil
}

type serverSettings struct {
	Host    string
	Port    int
	Timeout time.Duration `dynconf:"timeout"`
	Tags    []string
}

func newConfiguredApp(t *testing.T) *Container {
	t.Helper()
	app := NewContainer("app")
	app.SetParams(map[string]interface{}{"siteName": "demo", "keep": true})
	require.NoError(t, app.SetComponent("formatter", ComponentDefinition{
		Factory:    newFormatter,
		Properties: map[string]interface{}{"NullDisplay": "(none)", "Precision": 2},
	}))
	return app
}

func TestConfigure_Container(t *testing.T) {
	app := newConfiguredApp(t)
	admin := NewContainer("admin")
	admin.SetParams(map[string]interface{}{"perPage": 10})
	require.NoError(t, app.SetModule("admin", admin))
	require.NoError(t, app.SetModule("lazy", map[string]interface{}{"class": "Lazy", "enabled": false}))

	mgr, err := New()
	require.NoError(t, err)

	err = mgr.Configure(context.Background(), app, map[string]interface{}{
		"name": "renamed",
		"params": map[string]interface{}{
			"siteName": "changed",
		},
		"components": map[string]interface{}{
			"formatter": map[string]interface{}{"NullDisplay": "-"},
		},
		"modules": map[string]interface{}{
			"admin":   map[string]interface{}{"params": map[string]interface{}{"perPage": 50}},
			"lazy":    map[string]interface{}{"enabled": true},
			"missing": map[string]interface{}{"x": 1},
		},
	})
	require.NoError(t, err)

	name, ok := app.Property("name")
	assert.True(t, ok)
	assert.Equal(t, "renamed", name)

	assert.Equal(t, map[string]interface{}{"siteName": "changed", "keep": true}, app.Params())

	component, err := app.Component("formatter")
	require.NoError(t, err)
	assert.Equal(t, &formatter{NullDisplay: "-", Precision: 2}, component)

	assert.Equal(t, map[string]interface{}{"perPage": 50}, admin.Params())

	lazy, ok := app.Module("lazy")
	require.True(t, ok)
	assert.Equal(t, map[string]interface{}{"class": "Lazy", "enabled": true}, lazy)

	_, ok = app.Module("missing")
	assert.False(t, ok, "undeclared modules are not created")
}

func TestConfigure_ReadyComponentInstance(t *testing.T) {
	app := NewContainer("app")
	server := &serverSettings{Host: "localhost", Port: 80}
	require.NoError(t, app.SetComponent("server", server))

	mgr, err := New()
	require.NoError(t, err)
	require.NoError(t, mgr.Configure(context.Background(), app, map[string]interface{}{
		"components": map[string]interface{}{
			"server": map[string]interface{}{
				"Port":    uint64(8080),
				"timeout": "1m30s",
				"Tags":    []interface{}{"a", "b"},
			},
		},
	}))

	current, err := app.Component("server")
	require.NoError(t, err)
	assert.Same(t, server, current)
	assert.Equal(t, &serverSettings{
		Host:    "localhost",
		Port:    8080,
		Timeout: 90 * time.Second,
		Tags:    []string{"a", "b"},
	}, server)
}

func TestConfigure_Struct(t *testing.T) {
	mgr, err := New()
	require.NoError(t, err)

	target := &serverSettings{}
	require.NoError(t, mgr.Configure(context.Background(), target, map[string]interface{}{
		"host":    "example.com",
		"Port":    "9000",
		"timeout": nil,
	}))
	assert.Equal(t, &serverSettings{Host: "example.com", Port: 9000}, target)

	err = mgr.Configure(context.Background(), target, map[string]interface{}{"unknown": 1})
	require.Error(t, err)
	assert.Equal(t, ErrCodePropertyAssignment, ErrorCode(err))

	err = mgr.Configure(context.Background(), serverSettings{}, map[string]interface{}{"host": "x"})
	assert.Equal(t, ErrCodePropertyAssignment, ErrorCode(err))

	err = mgr.Configure(context.Background(), nil, map[string]interface{}{"host": "x"})
	assert.Equal(t, ErrCodePropertyAssignment, ErrorCode(err))
}

func TestConfigure_Map(t *testing.T) {
	mgr, err := New()
	require.NoError(t, err)

	target := map[string]interface{}{"a": 1}
	require.NoError(t, mgr.Configure(context.Background(), target, map[string]interface{}{"b": 2}))
	assert.Equal(t, map[string]interface{}{"a": 1, "b": 2}, target)
}

func TestConfigure_IgnoreConfigureError(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	mgr, err := New(WithIgnoreConfigureError(true), WithLogger(zap.New(core)))
	require.NoError(t, err)

	target := &serverSettings{}
	require.NoError(t, mgr.Configure(context.Background(), target, map[string]interface{}{
		"bogus": 1,
		"host":  "applied",
	}))
	assert.Equal(t, "applied", target.Host, "later keys are still applied")

	entries := logs.FilterMessage("config property assignment skipped").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "bogus", entries[0].ContextMap()["property"])
}

func TestConfigure_StructuralKeysMustBeMappings(t *testing.T) {
	mgr, err := New()
	require.NoError(t, err)

	for _, key := range []string{KeyComponents, KeyModules, KeyParams} {
		t.Run(key, func(t *testing.T) {
			err := mgr.Configure(context.Background(), NewContainer("app"), map[string]interface{}{key: "flat"})
			require.Error(t, err)
			assert.Equal(t, ErrCodePropertyAssignment, ErrorCode(err))
		})
	}
}

func TestConfigure_FetchesWhenConfigIsNil(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage(nil)
	require.NoError(t, storage.Save(ctx, map[string]interface{}{
		"siteName":    "stored",
		"nullDisplay": "n/a",
	}))

	app := newConfiguredApp(t)
	mgr, err := New(
		WithItems(
			ItemDefinition{ID: "siteName"},
			ItemDefinition{ID: "nullDisplay", Properties: map[string]interface{}{
				"path": "components.formatter.NullDisplay",
			}},
		),
		WithSource(app),
		WithStorage(storage),
	)
	require.NoError(t, err)

	require.NoError(t, mgr.Configure(ctx, app, nil))
	assert.Equal(t, "stored", app.Params()["siteName"])

	f, err := app.Component("formatter")
	require.NoError(t, err)
	assert.Equal(t, "n/a", f.(*formatter).NullDisplay)
}

func TestConfigure_ExtractsLiveDefaultsFromContainer(t *testing.T) {
	app := newConfiguredApp(t)
	mgr, err := New(
		WithItems(ItemDefinition{ID: "nullDisplay", Properties: map[string]interface{}{
			"path": "components.formatter.NullDisplay",
		}}),
		WithSource(app),
	)
	require.NoError(t, err)

	v, err := mgr.ItemValue("nullDisplay")
	require.NoError(t, err)
	assert.Equal(t, "(none)", v)
	assert.True(t, app.IsRealized("formatter"))
}

func TestConfigure_AssignedValuesAreCopied(t *testing.T) {
	mgr, err := New()
	require.NoError(t, err)

	config := map[string]interface{}{"mailer": map[string]interface{}{"port": 25}}
	target := map[string]interface{}{}
	require.NoError(t, mgr.Configure(context.Background(), target, config))

	config["mailer"].(map[string]interface{})["port"] = 2525
	assert.Equal(t, map[string]interface{}{"mailer": map[string]interface{}{"port": 25}}, target)

	app := NewContainer("app")
	require.NoError(t, mgr.Configure(context.Background(), app, config))
	config["mailer"].(map[string]interface{})["port"] = 587

	prop, ok := app.Property("mailer")
	require.True(t, ok)
	assert.Equal(t, map[string]interface{}{"port": 2525}, prop)
}
