// container.go: Hierarchical module container
//
// Container is a concrete live application node: it holds an id, a params
// bag, free-form properties, lazily realized components and nested modules.
// It is the natural extraction source and Configure target for applications
// that do not bring their own module tree.
//
//	app := dynconf.NewContainer("app")
//	app.SetParams(map[string]interface{}{"siteName": "demo"})
//	_ = app.SetComponent("formatter", dynconf.ComponentDefinition{
//	    Factory:    newFormatter,
//	    Properties: map[string]interface{}{"nullDisplay": "-"},
//	})
//
// Copyright (c) 2025 AGILira
// Series: AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package dynconf

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/agilira/go-errors"
)

// ComponentFactory builds a component from its declared properties.
type ComponentFactory func(properties map[string]interface{}) (interface{}, error)

// ComponentDefinition declares a component realized on first access.
type ComponentDefinition struct {
	Factory    ComponentFactory
	Properties map[string]interface{}
}

type componentEntry struct {
	definition *ComponentDefinition // nil for ready instances
	instance   interface{}
	realized   bool
}

// Container implements Module, ComponentLocator, PropertyGetter and PropertySetter.
// Not safe for concurrent use.
type Container struct {
	id         string
	params     map[string]interface{}
	properties map[string]interface{}
	components map[string]*componentEntry
	modules    map[string]interface{}
}

// NewContainer creates an empty container.
func NewContainer(id string) *Container {
	return &Container{
		id:         id,
		params:     make(map[string]interface{}),
		properties: make(map[string]interface{}),
		components: make(map[string]*componentEntry),
		modules:    make(map[string]interface{}),
	}
}

// ID returns the container id.
func (c *Container) ID() string { return c.id }

// SetComponent declares a component. component is either a ComponentDefinition
// (or pointer to one) or a ready instance.
func (c *Container) SetComponent(id string, component interface{}) error {
	entry, err := newComponentEntry(id, component)
	if err != nil {
		return err
	}
	c.components[id] = entry
	return nil
}

func newComponentEntry(id string, component interface{}) (*componentEntry, error) {
	var def ComponentDefinition
	switch v := component.(type) {
	case nil:
		return nil, invalidConfigError("component '%s' cannot be nil", id)
	case ComponentDefinition:
		def = v
	case *ComponentDefinition:
		if v == nil {
			return nil, invalidConfigError("component '%s' cannot be nil", id)
		}
		def = *v
	default:
		return &componentEntry{instance: component, realized: true}, nil
	}

	if def.Factory == nil {
		return nil, invalidConfigError("component '%s' requires a factory", id)
	}
	def.Properties = deepCopy(def.Properties)
	return &componentEntry{definition: &def}, nil
}

// HasComponent reports whether id is declared.
func (c *Container) HasComponent(id string) bool {
	_, ok := c.components[id]
	return ok
}

// IsRealized reports whether component id has been instantiated.
func (c *Container) IsRealized(id string) bool {
	entry, ok := c.components[id]
	return ok && entry.realized
}

// Component implements ComponentLocator.
func (c *Container) Component(id string) (interface{}, error) {
	entry, ok := c.components[id]
	if !ok {
		return nil, invalidConfigError("unknown component '%s' in module '%s'", id, c.id)
	}
	if entry.realized {
		return entry.instance, nil
	}

	instance, err := entry.definition.Factory(deepCopy(entry.definition.Properties))
	if err != nil {
		return nil, errors.Wrap(err, ErrCodeInvalidConfig,
			fmt.Sprintf("failed to create component '%s'", id))
	}
	entry.instance = instance
	entry.realized = true
	return instance, nil
}

// RealizedComponents implements ComponentLocator.
func (c *Container) RealizedComponents() (map[string]interface{}, error) {
	result := make(map[string]interface{}, len(c.components))
	for _, id := range c.componentIDs() {
		instance, err := c.Component(id)
		if err != nil {
			return nil, err
		}
		result[id] = instance
	}
	return result, nil
}

func (c *Container) componentIDs() []string {
	ids := make([]string, 0, len(c.components))
	for id := range c.components {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Components implements Module. Declared components are reported by their
// properties, ready instances as is.
func (c *Container) Components() map[string]interface{} {
	result := make(map[string]interface{}, len(c.components))
	for id, entry := range c.components {
		if entry.definition == nil {
			result[id] = entry.instance
			continue
		}
		props := deepCopy(entry.definition.Properties)
		if props == nil {
			props = make(map[string]interface{})
		}
		result[id] = props
	}
	return result
}

// SetComponents implements Module. A changed property mapping re-declares a
// declared component, dropping its instance, and is assigned property by
// property to a ready instance.
func (c *Container) SetComponents(components map[string]interface{}) error {
	next := make(map[string]*componentEntry, len(components))

	ids := make([]string, 0, len(components))
	for id := range components {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		value := components[id]
		props, isProps := value.(map[string]interface{})
		if !isProps {
			entry, err := newComponentEntry(id, value)
			if err != nil {
				return err
			}
			next[id] = entry
			continue
		}

		current, exists := c.components[id]
		switch {
		case !exists:
			return invalidConfigError("component '%s' is not declared and has no factory", id)
		case current.definition != nil && sameProperties(current.definition.Properties, props):
			next[id] = current
		case current.definition != nil:
			next[id] = &componentEntry{definition: &ComponentDefinition{
				Factory:    current.definition.Factory,
				Properties: deepCopy(props),
			}}
		default:
			for _, name := range sortedKeys(props) {
				if err := assignProperty(current.instance, name, props[name]); err != nil {
					return err
				}
			}
			next[id] = current
		}
	}

	c.components = next
	return nil
}

// sameProperties treats nil and empty mappings as equal.
func sameProperties(a, b map[string]interface{}) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	return reflect.DeepEqual(a, b)
}

// Modules implements Module.
func (c *Container) Modules() map[string]interface{} {
	result := make(map[string]interface{}, len(c.modules))
	for id, module := range c.modules {
		result[id] = module
	}
	return result
}

// SetModules implements Module.
func (c *Container) SetModules(modules map[string]interface{}) error {
	next := make(map[string]interface{}, len(modules))
	for id, module := range modules {
		if module == nil {
			return invalidConfigError("module '%s' cannot be nil", id)
		}
		next[id] = module
	}
	c.modules = next
	return nil
}

// SetModule declares one nested module, a live object or a declarative mapping.
func (c *Container) SetModule(id string, module interface{}) error {
	if module == nil {
		return invalidConfigError("module '%s' cannot be nil", id)
	}
	c.modules[id] = module
	return nil
}

// Module returns a nested module.
func (c *Container) Module(id string) (interface{}, bool) {
	module, ok := c.modules[id]
	return module, ok
}

// Params implements Module.
func (c *Container) Params() map[string]interface{} { return c.params }

// SetParams implements Module.
func (c *Container) SetParams(params map[string]interface{}) {
	if params == nil {
		params = make(map[string]interface{})
	}
	c.params = params
}

// Property implements PropertyGetter.
func (c *Container) Property(name string) (interface{}, bool) {
	switch name {
	case "id":
		return c.id, true
	case KeyParams:
		return c.params, true
	case KeyModules:
		return c.Modules(), true
	case KeyComponents:
		return c.Components(), true
	}
	v, ok := c.properties[name]
	return v, ok
}

// SetProperty implements PropertySetter.
func (c *Container) SetProperty(name string, value interface{}) error {
	switch name {
	case "id":
		return errors.New(ErrCodePropertyAssignment, "property 'id' is read-only")
	case KeyParams, KeyModules, KeyComponents:
		m, ok := value.(map[string]interface{})
		if !ok {
			return errors.New(ErrCodePropertyAssignment,
				fmt.Sprintf("property '%s' must be a mapping, got %T", name, value))
		}
		switch name {
		case KeyParams:
			c.SetParams(m)
			return nil
		case KeyModules:
			return c.SetModules(m)
		default:
			return c.SetComponents(m)
		}
	}
	c.properties[name] = value
	return nil
}
