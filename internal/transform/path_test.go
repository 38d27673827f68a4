package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetPath(t *testing.T) {
	t.Parallel()

	data := map[string]interface{}{
		"name": "alice",
		"user": map[string]interface{}{
			"profile": map[string]interface{}{"age": 30},
		},
		"items": []interface{}{
			map[string]interface{}{"id": "a"},
			map[string]interface{}{"id": "b"},
		},
		"nested": Record{"k": "v"},
		"empty":  nil,
	}

	tests := []struct {
		name      string
		path      string
		expected  interface{}
		wantFound bool
	}{
		{name: "top level", path: "name", expected: "alice", wantFound: true},
		{name: "nested", path: "user.profile.age", expected: 30, wantFound: true},
		{name: "array element", path: "items[1].id", expected: "b", wantFound: true},
		{name: "record value", path: "nested.k", expected: "v", wantFound: true},
		{name: "explicit nil", path: "empty", expected: nil, wantFound: true},
		{name: "missing", path: "user.email"},
		{name: "through scalar", path: "name.first"},
		{name: "index out of range", path: "items[5].id"},
		{name: "index on map", path: "user[0]"},
		{name: "empty path", path: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, found := GetPath(data, tt.path)
			assert.Equal(t, tt.wantFound, found)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestSetPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		data     map[string]interface{}
		path     string
		value    interface{}
		expected map[string]interface{}
	}{
		{
			name:     "top level",
			data:     map[string]interface{}{},
			path:     "name",
			value:    "bob",
			expected: map[string]interface{}{"name": "bob"},
		},
		{
			name:  "creates intermediate maps",
			data:  map[string]interface{}{},
			path:  "a.b.c",
			value: 1,
			expected: map[string]interface{}{
				"a": map[string]interface{}{"b": map[string]interface{}{"c": 1}},
			},
		},
		{
			name:     "replaces nil on path",
			data:     map[string]interface{}{"a": nil},
			path:     "a.b",
			value:    true,
			expected: map[string]interface{}{"a": map[string]interface{}{"b": true}},
		},
		{
			name:  "keeps siblings",
			data:  map[string]interface{}{"user": map[string]interface{}{"name": "a"}},
			path:  "user.email",
			value: "a@example.com",
			expected: map[string]interface{}{
				"user": map[string]interface{}{"name": "a", "email": "a@example.com"},
			},
		},
		{
			name:     "extends array",
			data:     map[string]interface{}{},
			path:     "items[1]",
			value:    "x",
			expected: map[string]interface{}{"items": []interface{}{nil, "x"}},
		},
		{
			name:  "creates map inside array",
			data:  map[string]interface{}{"items": []interface{}{"keep"}},
			path:  "items[1].id",
			value: "b",
			expected: map[string]interface{}{
				"items": []interface{}{"keep", map[string]interface{}{"id": "b"}},
			},
		},
		{
			name:     "record intermediate",
			data:     map[string]interface{}{"user": Record{"name": "a"}},
			path:     "user.age",
			value:    3,
			expected: map[string]interface{}{"user": Record{"name": "a", "age": 3}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			require.NoError(t, SetPath(tt.data, tt.path, tt.value))
			assert.Equal(t, tt.expected, tt.data)
		})
	}
}

func TestSetPath_EmptyPath(t *testing.T) {
	t.Parallel()

	for _, path := range []string{"", ".", ".."} {
		err := SetPath(map[string]interface{}{}, path, 1)
		assert.ErrorIs(t, err, ErrInvalidFieldPath, path)
	}
}

func TestSetPath_ScalarOnPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data map[string]interface{}
		path string
	}{
		{name: "string intermediate", data: map[string]interface{}{"name": "alice"}, path: "name.first"},
		{name: "number intermediate", data: map[string]interface{}{"a": map[string]interface{}{"b": 1.0}}, path: "a.b.c"},
		{name: "index into map", data: map[string]interface{}{"user": map[string]interface{}{}}, path: "user[0]"},
		{name: "scalar array element", data: map[string]interface{}{"items": []interface{}{"x"}}, path: "items[0].id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			before := cloneMap(tt.data)
			err := SetPath(tt.data, tt.path, "v")
			require.ErrorIs(t, err, ErrInvalidDataType)
			assert.Equal(t, before, tt.data)
		})
	}
}

func TestSplitPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path     string
		expected []segment
	}{
		{path: "name", expected: []segment{{key: "name", index: noIndex}}},
		{path: "user.name", expected: []segment{{key: "user", index: noIndex}, {key: "name", index: noIndex}}},
		{path: "items[2].id", expected: []segment{{key: "items", index: 2}, {key: "id", index: noIndex}}},
		{path: "a[x]", expected: []segment{{key: "a[x]", index: noIndex}}},
		{path: "a[-1]", expected: []segment{{key: "a[-1]", index: noIndex}}},
		{path: "[0]", expected: []segment{{key: "[0]", index: noIndex}}},
		{path: "a..b", expected: []segment{{key: "a", index: noIndex}, {key: "b", index: noIndex}}},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			t.Parallel()

			got, err := splitPath(tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestCloneMap(t *testing.T) {
	t.Parallel()

	src := map[string]interface{}{
		"user": map[string]interface{}{"name": "a"},
		"tags": []interface{}{"x", map[string]interface{}{"k": 1}},
		"rec":  Record{"n": 1},
	}

	dst := cloneMap(src)
	require.Equal(t, src, dst)

	dst["user"].(map[string]interface{})["name"] = "b"
	dst["tags"].([]interface{})[1].(map[string]interface{})["k"] = 2
	dst["rec"].(Record)["n"] = 2

	assert.Equal(t, "a", src["user"].(map[string]interface{})["name"])
	assert.Equal(t, 1, src["tags"].([]interface{})[1].(map[string]interface{})["k"])
	assert.Equal(t, 1, src["rec"].(Record)["n"])
	assert.Nil(t, cloneMap(nil))
}
