// item.go: Configuration item, a named path-addressed value
//
// An Item binds an id to a path inside the application configuration tree.
// Its value is extracted lazily from the source graph the first time it is
// read and then memoized for the lifetime of the item. SetValue replaces the
// value explicitly, including with nil, and disables extraction.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package dynconf

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/agilira/go-errors"
	"github.com/mitchellh/mapstructure"
)

// ItemDescriptor is the declarative form of an item.
//
// YAML example:
//
//	appName:
//	  path: params.appName
//	  label: Application name
//	  rules: [required, [string, {max: 64}]]
type ItemDescriptor struct {
	// ID, when present, must match the id the item is declared under.
	ID           string                 `mapstructure:"id"`
	Path         interface{}            `mapstructure:"path"`
	Rules        interface{}            `mapstructure:"rules"`
	Label        string                 `mapstructure:"label"`
	Description  string                 `mapstructure:"description"`
	InputOptions map[string]interface{} `mapstructure:"inputOptions"`
	Value        interface{}            `mapstructure:"value"`

	// HasValue marks Value as explicitly set, even when nil.
	HasValue bool `mapstructure:"-"`
}

// DecodeItemDescriptor decodes a property mapping into a descriptor.
// Unknown keys are rejected.
func DecodeItemDescriptor(props map[string]interface{}) (ItemDescriptor, error) {
	var desc ItemDescriptor
	if props == nil {
		return desc, nil
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		ErrorUnused: true,
		Result:      &desc,
	})
	if err != nil {
		return desc, errors.Wrap(err, ErrCodeInvalidConfig, "failed to create descriptor decoder")
	}
	if err := dec.Decode(props); err != nil {
		return desc, errors.Wrap(err, ErrCodeInvalidConfig, "invalid item descriptor")
	}
	_, desc.HasValue = props["value"]
	return desc, nil
}

// Item is a single configuration value with metadata and validation rules.
// Items are not safe for concurrent use.
type Item struct {
	id           string
	path         Path
	rules        []Rule
	label        string
	description  string
	inputOptions map[string]interface{}

	source   interface{}
	value    interface{}
	hasValue bool

	errors []string
}

// NewItem creates an item from its descriptor. The source is the live graph
// the value gets extracted from; it may be nil when the value is set explicitly.
func NewItem(id string, desc ItemDescriptor, source interface{}) (*Item, error) {
	if id == "" {
		return nil, invalidConfigError("item id cannot be empty")
	}
	if desc.ID != "" && desc.ID != id {
		return nil, invalidConfigError("descriptor id '%s' does not match item id '%s'", desc.ID, id)
	}

	path, err := ParsePath(desc.Path)
	if err != nil {
		return nil, errors.Wrap(err, ErrCodeInvalidConfig, fmt.Sprintf("invalid path for item '%s'", id))
	}
	rules, err := ParseRules(desc.Rules)
	if err != nil {
		return nil, errors.Wrap(err, ErrCodeInvalidConfig, fmt.Sprintf("invalid rules for item '%s'", id))
	}

	item := &Item{
		id:           id,
		path:         path,
		rules:        append([]Rule{{Kind: RuleSafe}}, rules...),
		label:        desc.Label,
		description:  desc.Description,
		inputOptions: desc.InputOptions,
		source:       source,
	}
	if desc.HasValue {
		item.SetValue(desc.Value)
	}
	return item, nil
}

// ID returns the item id.
func (i *Item) ID() string { return i.id }

// Path returns the configured path, or params.<id> when none was given.
func (i *Item) Path() Path {
	if i.path.IsEmpty() {
		return defaultPath(i.id)
	}
	return i.path
}

// Rules returns the item rules, including the implicit leading safe rule.
func (i *Item) Rules() []Rule { return i.rules }

// Label returns the configured label or one derived from the id ("appName" -> "App Name").
func (i *Item) Label() string {
	if i.label == "" {
		return idToWords(i.id)
	}
	return i.label
}

// Description returns the item description.
func (i *Item) Description() string { return i.description }

// InputOptions returns presentation hints for input widgets.
func (i *Item) InputOptions() map[string]interface{} { return i.inputOptions }

// Source returns the graph the value is extracted from.
func (i *Item) Source() interface{} { return i.source }

// Value returns the memoized value, extracting it from the source on first use.
// Extraction failures are returned and not memoized.
func (i *Item) Value() (interface{}, error) {
	if i.hasValue {
		return i.value, nil
	}
	v, err := i.ExtractCurrentValue()
	if err != nil {
		return nil, err
	}
	i.value = v
	i.hasValue = true
	return v, nil
}

// SetValue sets the value explicitly.
func (i *Item) SetValue(v interface{}) {
	i.value = v
	i.hasValue = true
}

// ExtractCurrentValue reads the value at the item path from the source,
// bypassing the memoized value.
func (i *Item) ExtractCurrentValue() (interface{}, error) {
	v, err := Extract(i.source, i.Path())
	if err != nil {
		return nil, errors.Wrap(err, ErrCodePathResolution,
			fmt.Sprintf("failed to extract value of item '%s'", i.id))
	}
	return v, nil
}

// ComposeConfig returns the configuration branch holding the item value.
func (i *Item) ComposeConfig() (map[string]interface{}, error) {
	v, err := i.Value()
	if err != nil {
		return nil, err
	}
	return Compose(i.Path(), v)
}

// Validate runs every rule against the value and records failures.
// An unreadable value counts as a failure.
func (i *Item) Validate() bool {
	i.errors = i.errors[:0]

	v, err := i.Value()
	if err != nil {
		i.errors = append(i.errors, err.Error())
		return false
	}
	for _, rule := range i.rules {
		if err := rule.Check(v); err != nil {
			i.errors = append(i.errors, fmt.Sprintf("%s %s", i.Label(), err.Error()))
		}
	}
	return len(i.errors) == 0
}

// Errors returns the failures recorded by the last Validate call.
func (i *Item) Errors() []string {
	return append([]string(nil), i.errors...)
}

// HasErrors reports whether the last Validate call failed.
func (i *Item) HasErrors() bool {
	return len(i.errors) > 0
}

// idToWords turns an identifier into title-cased words:
// "appName" -> "App Name", "smtp_host" -> "Smtp Host".
func idToWords(id string) string {
	var b strings.Builder
	runes := []rune(id)
	for idx, r := range runes {
		switch {
		case r == '_' || r == '-' || r == '.':
			b.WriteRune(' ')
			continue
		case unicode.IsUpper(r) && idx > 0:
			prev := runes[idx-1]
			nextLower := idx+1 < len(runes) && unicode.IsLower(runes[idx+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				b.WriteRune(' ')
			}
		}
		b.WriteRune(r)
	}

	words := strings.Fields(b.String())
	for idx, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[idx] = string(r)
	}
	return strings.Join(words, " ")
}
