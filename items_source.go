// items_source.go: Item definition sources for the Manager
//
// Items can be declared in code, as a map, in a YAML file (optionally nested
// under a section) or through a callback. Every source yields an ordered list
// of definitions; the order drives composition and storage iteration.
//
// Copyright (c) 2025 AGILira
// Series: AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package dynconf

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/agilira/go-errors"
	"github.com/goccy/go-yaml"
)

// ItemDefinition declares one item. Item, when set, is used as is and
// Properties are ignored.
type ItemDefinition struct {
	ID         string
	Properties map[string]interface{}
	Item       *Item
}

// ItemsSource produces item definitions.
type ItemsSource interface {
	LoadItems() ([]ItemDefinition, error)
}

// ItemsFunc adapts a function to ItemsSource.
type ItemsFunc func() ([]ItemDefinition, error)

// LoadItems calls f.
func (f ItemsFunc) LoadItems() ([]ItemDefinition, error) {
	return f()
}

type staticItems []ItemDefinition

func (s staticItems) LoadItems() ([]ItemDefinition, error) {
	return append([]ItemDefinition(nil), s...), nil
}

// Items returns a source serving defs in the given order.
func Items(defs ...ItemDefinition) ItemsSource {
	return staticItems(defs)
}

// ItemsMap returns a source built from id -> properties, ordered by id.
func ItemsMap(items map[string]map[string]interface{}) ItemsSource {
	ids := make([]string, 0, len(items))
	for id := range items {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	defs := make([]ItemDefinition, 0, len(ids))
	for _, id := range ids {
		defs = append(defs, ItemDefinition{ID: id, Properties: items[id]})
	}
	return staticItems(defs)
}

// ItemsFile loads item definitions from a YAML file. Section selects a nested
// mapping with a dotted key, e.g. "dynconf.items". Key order in the file is
// preserved.
//
//	dynconf:
//	  items:
//	    appName:
//	      rules: [required]
//	    adminEmail:
//	      path: params.adminEmail
//	      rules: [email]
type ItemsFile struct {
	Path    string
	Section string
}

// LoadItems reads and decodes the file.
func (f ItemsFile) LoadItems() ([]ItemDefinition, error) {
	if f.Path == "" {
		return nil, invalidConfigError("items file path cannot be empty")
	}

	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, errors.Wrap(err, ErrCodeInvalidConfig,
			fmt.Sprintf("failed to read items file '%s'", f.Path))
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var entries yaml.MapSlice
	if f.Section == "" {
		err = yaml.Unmarshal(data, &entries)
	} else {
		err = readSection(data, f.Section, &entries)
	}
	if err != nil {
		return nil, errors.Wrap(err, ErrCodeInvalidConfig,
			fmt.Sprintf("failed to parse items file '%s'", f.Path))
	}

	defs := make([]ItemDefinition, 0, len(entries))
	for _, entry := range entries {
		id, ok := entry.Key.(string)
		if !ok {
			return nil, invalidConfigError("item id must be a string, got %T in '%s'", entry.Key, f.Path)
		}

		var props map[string]interface{}
		switch v := entry.Value.(type) {
		case nil:
		case map[string]interface{}:
			props = v
		default:
			return nil, invalidConfigError("item '%s' must be a mapping, got %T", id, entry.Value)
		}
		defs = append(defs, ItemDefinition{ID: id, Properties: props})
	}
	return defs, nil
}

// readSection decodes the mapping found under a dotted section key.
func readSection(data []byte, section string, target interface{}) error {
	path, err := yaml.PathString("$." + strings.Trim(section, "."))
	if err != nil {
		return fmt.Errorf("invalid section %q: %w", section, err)
	}
	if err := path.Read(bytes.NewReader(data), target); err != nil {
		if yaml.IsNotFoundNodeError(err) {
			return fmt.Errorf("section %q not found", section)
		}
		return fmt.Errorf("reading section %q: %w", section, err)
	}
	return nil
}

// buildItems realizes definitions into items bound to source, keeping order.
func buildItems(defs []ItemDefinition, source interface{}) ([]*Item, error) {
	items := make([]*Item, 0, len(defs))
	seen := make(map[string]struct{}, len(defs))

	for _, def := range defs {
		item := def.Item
		if item == nil {
			desc, err := DecodeItemDescriptor(def.Properties)
			if err != nil {
				return nil, errors.Wrap(err, ErrCodeInvalidConfig,
					fmt.Sprintf("invalid definition for item '%s'", def.ID))
			}
			item, err = NewItem(def.ID, desc, source)
			if err != nil {
				return nil, err
			}
		} else if def.ID != "" && def.ID != item.ID() {
			return nil, invalidConfigError("definition id '%s' does not match item id '%s'", def.ID, item.ID())
		}

		if _, dup := seen[item.ID()]; dup {
			return nil, invalidConfigError("duplicate config item '%s'", item.ID())
		}
		seen[item.ID()] = struct{}{}
		items = append(items, item)
	}
	return items, nil
}
