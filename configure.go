// configure.go: Applying a composed configuration onto a live target
//
// Hierarchical targets (Module implementations) get structural treatment for
// the components, modules and params keys; every other key, and every key of
// a non-module target, is a plain property assignment.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package dynconf

import (
	"context"
	"fmt"
	"reflect"

	"github.com/agilira/go-errors"
	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"
)

// Module is a hierarchical application node with component declarations,
// nested modules and a parameter bag.
type Module interface {
	// Components returns every component declaration by id: property
	// mappings for declared components and instances for ready ones.
	Components() map[string]interface{}
	// SetComponents replaces the whole component set.
	SetComponents(components map[string]interface{}) error
	// Modules returns nested modules by id, as live objects or declarative mappings.
	Modules() map[string]interface{}
	// SetModules replaces the whole nested module set.
	SetModules(modules map[string]interface{}) error
	// Params returns the parameter bag.
	Params() map[string]interface{}
	// SetParams replaces the parameter bag.
	SetParams(params map[string]interface{})
}

// PropertySetter is implemented by objects accepting named property writes.
type PropertySetter interface {
	SetProperty(name string, value interface{}) error
}

// Configure applies config onto target. A nil config is fetched with FetchConfig.
func (m *Manager) Configure(ctx context.Context, target interface{}, config map[string]interface{}) error {
	if config == nil {
		fetched, err := m.FetchConfig(ctx)
		if err != nil {
			return err
		}
		config = fetched
	}
	return m.configure(target, config)
}

func (m *Manager) configure(target interface{}, config map[string]interface{}) error {
	if target == nil {
		return errors.New(ErrCodePropertyAssignment, "cannot configure a nil target")
	}
	module, isModule := target.(Module)

	for _, key := range sortedKeys(config) {
		value := config[key]

		var err error
		switch {
		case isModule && key == KeyComponents:
			err = m.configureComponents(module, value)
		case isModule && key == KeyModules:
			err = m.configureModules(module, value)
		case isModule && key == KeyParams:
			err = m.configureParams(module, value)
		default:
			err = m.assign(target, key, value)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) configureComponents(module Module, value interface{}) error {
	overrides, ok := value.(map[string]interface{})
	if !ok {
		return errors.New(ErrCodePropertyAssignment,
			fmt.Sprintf("components configuration must be a mapping, got %T", value))
	}
	merged := Merge(module.Components(), overrides)
	if err := module.SetComponents(merged); err != nil {
		return errors.Wrap(err, ErrCodePropertyAssignment, "failed to set components")
	}
	return nil
}

func (m *Manager) configureModules(module Module, value interface{}) error {
	overrides, ok := value.(map[string]interface{})
	if !ok {
		return errors.New(ErrCodePropertyAssignment,
			fmt.Sprintf("modules configuration must be a mapping, got %T", value))
	}

	nested := module.Modules()
	for id, current := range nested {
		override, present := overrides[id]
		if !present {
			continue
		}
		overrideMap, ok := override.(map[string]interface{})
		if !ok {
			return errors.New(ErrCodePropertyAssignment,
				fmt.Sprintf("configuration of module '%s' must be a mapping, got %T", id, override))
		}

		if declared, isDecl := current.(map[string]interface{}); isDecl {
			nested[id] = Merge(declared, overrideMap)
			continue
		}
		if err := m.configure(current, overrideMap); err != nil {
			return errors.Wrap(err, ErrCodePropertyAssignment,
				fmt.Sprintf("failed to configure module '%s'", id))
		}
	}

	if err := module.SetModules(nested); err != nil {
		return errors.Wrap(err, ErrCodePropertyAssignment, "failed to set modules")
	}
	return nil
}

func (m *Manager) configureParams(module Module, value interface{}) error {
	overrides, ok := value.(map[string]interface{})
	if !ok {
		return errors.New(ErrCodePropertyAssignment,
			fmt.Sprintf("params configuration must be a mapping, got %T", value))
	}
	module.SetParams(Merge(module.Params(), overrides))
	return nil
}

// assign performs a property assignment, honoring ignoreConfigureError.
func (m *Manager) assign(target interface{}, name string, value interface{}) error {
	err := assignProperty(target, name, deepCopyValue(value))
	if err == nil {
		return nil
	}
	if m.ignoreConfigureError {
		m.logger.Warn("config property assignment skipped",
			zap.String("property", name),
			zap.String("target", fmt.Sprintf("%T", target)),
			zap.Error(err))
		return nil
	}
	return err
}

// assignProperty writes value to the named property of target. Struct
// fields are matched like in Extract and values are converted with
// mapstructure when not directly assignable.
func assignProperty(target interface{}, name string, value interface{}) error {
	switch t := target.(type) {
	case PropertySetter:
		if err := t.SetProperty(name, value); err != nil {
			return errors.Wrap(err, ErrCodePropertyAssignment,
				fmt.Sprintf("failed to set property \"%T::%s\"", target, name))
		}
		return nil
	case map[string]interface{}:
		t[name] = value
		return nil
	}

	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return errors.New(ErrCodePropertyAssignment,
			fmt.Sprintf("cannot set property \"%s\" on non-pointer %T", name, target))
	}
	field, ok := structField(rv, name)
	if !ok {
		return errors.New(ErrCodePropertyAssignment,
			fmt.Sprintf("property \"%T::%s\" not present", target, name))
	}
	if !field.CanSet() {
		return errors.New(ErrCodePropertyAssignment,
			fmt.Sprintf("property \"%T::%s\" is read-only", target, name))
	}
	if err := setField(field, value); err != nil {
		return errors.Wrap(err, ErrCodePropertyAssignment,
			fmt.Sprintf("failed to set property \"%T::%s\"", target, name))
	}
	return nil
}

func setField(field reflect.Value, value interface{}) error {
	if value == nil {
		field.Set(reflect.Zero(field.Type()))
		return nil
	}

	v := reflect.ValueOf(value)
	if v.Type().AssignableTo(field.Type()) {
		field.Set(v)
		return nil
	}
	if isNumericKind(v.Kind()) && isNumericKind(field.Kind()) {
		field.Set(v.Convert(field.Type()))
		return nil
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		Result:           field.Addr().Interface(),
	})
	if err != nil {
		return err
	}
	return dec.Decode(value)
}

func isNumericKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
