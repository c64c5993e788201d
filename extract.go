// extract.go: Path-addressed value extraction and composition
//
// Extraction walks a live object graph one segment at a time. Each step
// inspects the current node at runtime and picks an accessor:
//   - string-keyed maps, slices and arrays are indexed directly
//   - component containers expose realized components under "components"
//   - PropertyGetter implementations and exported struct fields are read as properties
//   - Indexer implementations provide map-like indexed access
//
// Composition is the inverse: it builds the single-branch tree that holds a
// value at a path, ready to be merged with other branches.
//
// Copyright (c) 2025 AGILira
// Series: AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package dynconf

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/agilira/go-errors"
)

// Structural keys of a hierarchical module configuration.
const (
	KeyComponents = "components"
	KeyModules    = "modules"
	KeyParams     = "params"
)

// ComponentLocator is implemented by service-locator-like containers whose
// components are declared up front and instantiated on first access.
type ComponentLocator interface {
	// Component returns the component with the given id, instantiating it if needed.
	Component(id string) (interface{}, error)
	// RealizedComponents instantiates every declared component and returns them by id.
	RealizedComponents() (map[string]interface{}, error)
}

// PropertyGetter is implemented by objects exposing named properties.
type PropertyGetter interface {
	Property(name string) (interface{}, bool)
}

// Indexer is implemented by objects supporting map-like indexed access.
type Indexer interface {
	Index(key string) (interface{}, bool)
}

// componentView defers component instantiation to the next path segment so
// that only the addressed component gets realized.
type componentView struct {
	locator ComponentLocator
}

// Extract resolves path against source and returns the value found at its end.
func Extract(source interface{}, path Path) (interface{}, error) {
	if path.IsEmpty() {
		return nil, emptyPathError()
	}

	current := source
	for i, name := range path {
		next, err := descend(current, name, path[i+1:])
		if err != nil {
			return nil, err
		}
		current = next
	}

	if view, ok := current.(componentView); ok {
		components, err := view.locator.RealizedComponents()
		if err != nil {
			return nil, errors.Wrap(err, ErrCodePathResolution, "failed to realize components")
		}
		return components, nil
	}
	return current, nil
}

// descend performs a single extraction step.
func descend(node interface{}, name string, rest Path) (interface{}, error) {
	if node == nil {
		return nil, unextractableError(name, rest, node)
	}

	switch v := node.(type) {
	case map[string]interface{}:
		if result, ok := v[name]; ok {
			return result, nil
		}
		return nil, keyNotPresentError(name)
	case componentView:
		component, err := v.locator.Component(name)
		if err != nil {
			return nil, errors.Wrap(err, ErrCodePathResolution,
				fmt.Sprintf("failed to realize component '%s'", name))
		}
		return component, nil
	}

	if name == KeyComponents {
		if locator, ok := node.(ComponentLocator); ok {
			return componentView{locator: locator}, nil
		}
	}

	if getter, ok := node.(PropertyGetter); ok {
		if result, found := getter.Property(name); found {
			return result, nil
		}
	}

	rv := reflect.ValueOf(node)
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, unextractableError(name, rest, node)
		}
		result := rv.MapIndex(reflect.ValueOf(name).Convert(rv.Type().Key()))
		if !result.IsValid() {
			return nil, keyNotPresentError(name)
		}
		return result.Interface(), nil
	case reflect.Slice, reflect.Array:
		idx, err := strconv.Atoi(name)
		if err != nil || idx < 0 || idx >= rv.Len() {
			return nil, keyNotPresentError(name)
		}
		return rv.Index(idx).Interface(), nil
	case reflect.Ptr, reflect.Struct, reflect.Interface:
		if field, ok := structField(rv, name); ok {
			return field.Interface(), nil
		}
		if indexer, ok := node.(Indexer); ok {
			if result, found := indexer.Index(name); found {
				return result, nil
			}
		}
		return nil, errors.New(ErrCodePathResolution,
			fmt.Sprintf("property \"%T::%s\" not present", node, name))
	default:
		if indexer, ok := node.(Indexer); ok {
			if result, found := indexer.Index(name); found {
				return result, nil
			}
		}
		return nil, unextractableError(name, rest, node)
	}
}

// structField finds the exported field addressed by name. The `dynconf` tag
// wins over the field name; names are compared case-insensitively.
func structField(rv reflect.Value, name string) (reflect.Value, bool) {
	for rv.Kind() == reflect.Ptr || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return reflect.Value{}, false
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return reflect.Value{}, false
	}

	rt := rv.Type()
	fallback := -1
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		tag := field.Tag.Get("dynconf")
		if tag == "-" {
			continue
		}
		if tag != "" {
			if strings.Split(tag, ",")[0] == name {
				return rv.Field(i), true
			}
			continue
		}
		if fallback < 0 && strings.EqualFold(field.Name, name) {
			fallback = i
		}
	}
	if fallback >= 0 {
		return rv.Field(fallback), true
	}
	return reflect.Value{}, false
}

func keyNotPresentError(name string) error {
	return errors.New(ErrCodePathResolution, fmt.Sprintf("key \"%s\" not present", name))
}

func unextractableError(name string, rest Path, node interface{}) error {
	full := append(Path{name}, rest...)
	typeName := "nil"
	if node != nil {
		typeName = reflect.TypeOf(node).String()
	}
	return errors.New(ErrCodePathResolution,
		fmt.Sprintf("unable to extract path \"%s\" from \"%s\"", full.String(), typeName))
}

// Compose builds the single-branch tree holding value at path:
//
//	Compose(Path{"a", "b"}, 1) // map[a:map[b:1]]
func Compose(path Path, value interface{}) (map[string]interface{}, error) {
	if path.IsEmpty() {
		return nil, emptyPathError()
	}

	last := len(path) - 1
	branch := map[string]interface{}{path[last]: value}
	for i := last - 1; i >= 0; i-- {
		branch = map[string]interface{}{path[i]: branch}
	}
	return branch, nil
}
