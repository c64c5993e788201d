// path.go: Configuration path parsing for dynconf
//
// A path locates one value inside a nested configuration tree, e.g.
// "components.formatter.nullDisplay". Literal dots inside a key cannot be
// escaped; use the segment form (a []string) for such keys.
//
// Copyright (c) 2025 AGILira
// Series: AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package dynconf

import (
	"fmt"
	"strings"
)

// PathSeparator separates segments in the string form of a Path.
const PathSeparator = "."

// Path is an ordered sequence of segment keys.
type Path []string

// ParsePath normalizes the declarative form of a path into segments.
//
// Accepted forms:
//
//	"params.siteName"              // split on "."
//	[]string{"params", "site.name"} // used as is
//	[]interface{}{"params", "x"}   // decoded from YAML/JSON
//
// An empty string or nil yields an empty Path.
func ParsePath(raw interface{}) (Path, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case string:
		if v == "" {
			return nil, nil
		}
		return Path(strings.Split(v, PathSeparator)), nil
	case Path:
		return append(Path(nil), v...), nil
	case []string:
		return append(Path(nil), v...), nil
	case []interface{}:
		parts := make(Path, 0, len(v))
		for i, seg := range v {
			s, ok := seg.(string)
			if !ok {
				return nil, invalidConfigError("path segment %d must be a string, got %T", i, seg)
			}
			parts = append(parts, s)
		}
		return parts, nil
	default:
		return nil, invalidConfigError("path must be a string or a list of strings, got %T", raw)
	}
}

// MustParsePath is like ParsePath but panics on malformed input.
// Intended for package-level declarations and tests.
func MustParsePath(raw interface{}) Path {
	p, err := ParsePath(raw)
	if err != nil {
		panic(fmt.Sprintf("dynconf: %v", err))
	}
	return p
}

// String returns the dotted form of the path.
func (p Path) String() string {
	return strings.Join(p, PathSeparator)
}

// IsEmpty reports whether the path has no segments.
func (p Path) IsEmpty() bool {
	return len(p) == 0
}

// defaultPath points an item into the generic parameters bag.
func defaultPath(id string) Path {
	return Path{KeyParams, id}
}
