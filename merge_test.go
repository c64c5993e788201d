// merge_test.go: Tests for deep merge
//
// Copyright (c) 2025 AGILira
// Series: AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package dynconf

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMerge_DisjointBranches(t *testing.T) {
	a := map[string]interface{}{"params": map[string]interface{}{"a": 1}}
	b := map[string]interface{}{"params": map[string]interface{}{"b": 2}}

	assert.Equal(t, map[string]interface{}{
		"params": map[string]interface{}{"a": 1, "b": 2},
	}, Merge(a, b))
}

func TestMerge_LaterWins(t *testing.T) {
	tests := []struct {
		name string
		dst  map[string]interface{}
		src  map[string]interface{}
		want map[string]interface{}
	}{
		{
			name: "scalar leaf",
			dst:  map[string]interface{}{"name": "old"},
			src:  map[string]interface{}{"name": "new"},
			want: map[string]interface{}{"name": "new"},
		},
		{
			name: "sequences are replaced",
			dst:  map[string]interface{}{"hosts": []interface{}{"a", "b"}},
			src:  map[string]interface{}{"hosts": []interface{}{"c"}},
			want: map[string]interface{}{"hosts": []interface{}{"c"}},
		},
		{
			name: "mapping replaced by scalar",
			dst:  map[string]interface{}{"db": map[string]interface{}{"host": "x"}},
			src:  map[string]interface{}{"db": "sqlite://"},
			want: map[string]interface{}{"db": "sqlite://"},
		},
		{
			name: "scalar replaced by mapping",
			dst:  map[string]interface{}{"db": "sqlite://"},
			src:  map[string]interface{}{"db": map[string]interface{}{"host": "x"}},
			want: map[string]interface{}{"db": map[string]interface{}{"host": "x"}},
		},
		{
			name: "nil value overrides",
			dst:  map[string]interface{}{"a": 1},
			src:  map[string]interface{}{"a": nil},
			want: map[string]interface{}{"a": nil},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Merge(tt.dst, tt.src))
		})
	}
}

func TestMerge_DoesNotMutateInputs(t *testing.T) {
	dst := map[string]interface{}{"params": map[string]interface{}{"a": 1}}
	src := map[string]interface{}{"params": map[string]interface{}{"b": []interface{}{1}}}

	result := Merge(dst, src)
	result["params"].(map[string]interface{})["c"] = 3
	result["params"].(map[string]interface{})["b"].([]interface{})[0] = 99

	assert.Equal(t, map[string]interface{}{"params": map[string]interface{}{"a": 1}}, dst)
	assert.Equal(t, []interface{}{1}, src["params"].(map[string]interface{})["b"])
}

func TestMerge_NilInputs(t *testing.T) {
	assert.Equal(t, map[string]interface{}{}, Merge(nil, nil))
	assert.Equal(t, map[string]interface{}{"a": 1}, Merge(nil, map[string]interface{}{"a": 1}))
	assert.Equal(t, map[string]interface{}{"a": 1}, Merge(map[string]interface{}{"a": 1}, nil))
}

func TestMergeAll(t *testing.T) {
	got := MergeAll(
		map[string]interface{}{"params": map[string]interface{}{"a": 1}},
		map[string]interface{}{"params": map[string]interface{}{"a": 2, "b": 1}},
		map[string]interface{}{"name": "app"},
	)
	assert.Equal(t, map[string]interface{}{
		"name":   "app",
		"params": map[string]interface{}{"a": 2, "b": 1},
	}, got)
}
