// storage_filter.go: Scoping filters for table-like storages
//
// A filter is a set of column -> value conditions that scopes every read and
// write of a backend, so several applications or tenants can share one table.
//
// Copyright (c) 2025 AGILira
// Series: AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package dynconf

import (
	"fmt"
	"sort"
	"strings"
)

// Filter computes the scoping conditions at call time. A nil Filter scopes nothing.
type Filter func() map[string]interface{}

// StaticFilter returns a Filter always yielding a copy of conditions.
func StaticFilter(conditions map[string]interface{}) Filter {
	fixed := deepCopy(conditions)
	return func() map[string]interface{} {
		return deepCopy(fixed)
	}
}

// conditions evaluates the filter, tolerating a nil receiver.
func (f Filter) conditions() map[string]interface{} {
	if f == nil {
		return nil
	}
	return f()
}

// sortedKeys returns condition columns in a stable order.
func sortedKeys(conditions map[string]interface{}) []string {
	keys := make([]string, 0, len(conditions))
	for k := range conditions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// filterKey renders conditions as a stable namespace key, e.g. `"app"="api";"env"="prod"`.
// Keys and values are quoted so distinct filters never share a key.
func filterKey(conditions map[string]interface{}) string {
	if len(conditions) == 0 {
		return ""
	}
	parts := make([]string, 0, len(conditions))
	for _, k := range sortedKeys(conditions) {
		parts = append(parts, fmt.Sprintf("%q=%q", k, fmt.Sprint(conditions[k])))
	}
	return strings.Join(parts, ";")
}
