// merge.go: Deep merge of configuration trees
//
// Merge rules, applied key by key:
//   - both sides hold a mapping: merge recursively
//   - anything else (scalars, sequences, type conflicts): the later side wins
//
// Sequences are replaced wholesale, never concatenated. Inputs are never
// mutated; every mapping and sequence in the result is a fresh copy.
//
// Copyright (c) 2025 AGILira
// Series: AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package dynconf

// Merge returns a new tree holding dst overlaid with src.
//
// Example:
//
//	Merge(
//	    map[string]interface{}{"db": map[string]interface{}{"host": "a", "port": 1}},
//	    map[string]interface{}{"db": map[string]interface{}{"host": "b"}},
//	) // {"db": {"host": "b", "port": 1}}
func Merge(dst, src map[string]interface{}) map[string]interface{} {
	result := deepCopy(dst)
	if result == nil {
		result = make(map[string]interface{}, len(src))
	}
	mergeInto(result, src)
	return result
}

// MergeAll folds trees left to right, later trees winning on conflicts.
func MergeAll(trees ...map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{})
	for _, tree := range trees {
		mergeInto(result, tree)
	}
	return result
}

// mergeInto overlays src onto dst in place. dst must be owned by the caller;
// values taken from src are copied.
func mergeInto(dst, src map[string]interface{}) {
	for key, srcVal := range src {
		srcMap, srcIsMap := srcVal.(map[string]interface{})
		dstMap, dstIsMap := dst[key].(map[string]interface{})
		if srcIsMap && dstIsMap {
			mergeInto(dstMap, srcMap)
			continue
		}
		dst[key] = deepCopyValue(srcVal)
	}
}

// deepCopy creates a deep copy of a configuration mapping.
func deepCopy(src map[string]interface{}) map[string]interface{} {
	if src == nil {
		return nil
	}

	dst := make(map[string]interface{}, len(src))
	for k, v := range src {
		dst[k] = deepCopyValue(v)
	}
	return dst
}

// deepCopySlice creates a deep copy of a sequence.
func deepCopySlice(src []interface{}) []interface{} {
	if src == nil {
		return nil
	}

	dst := make([]interface{}, len(src))
	for i, v := range src {
		dst[i] = deepCopyValue(v)
	}
	return dst
}

func deepCopyValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return deepCopy(val)
	case []interface{}:
		return deepCopySlice(val)
	case []string:
		return append([]string(nil), val...)
	default:
		return val
	}
}
