package structpath

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		want    []Step
		wantErr bool
	}{
		{
			name: "dotted keys",
			path: "data.content",
			want: []Step{{Key: "data"}, {Key: "content"}},
		},
		{
			name: "index inside path",
			path: "data.indexingList[0].entries",
			want: []Step{{Key: "data"}, {Key: "indexingList"}, {Index: 0, IsIndex: true}, {Key: "entries"}},
		},
		{
			name: "consecutive indices",
			path: "grid[1][2]",
			want: []Step{{Key: "grid"}, {Index: 1, IsIndex: true}, {Index: 2, IsIndex: true}},
		},
		{name: "empty", path: "", wantErr: true},
		{name: "empty segment", path: "data..content", wantErr: true},
		{name: "negative index", path: "list[-1]", wantErr: true},
		{name: "unterminated index", path: "list[1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.path)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSetCreatesIntermediateContainers(t *testing.T) {
	root := map[string]any{"id": "b1"}

	require.NoError(t, Set(root, "data.indexingList[0].entries", []any{"x"}))
	require.NoError(t, Set(root, "data.indexingList[0].status", "pending"))

	list, ok := Get(root, "data.indexingList")
	require.True(t, ok)
	assert.Len(t, list, 1)

	entries, ok := Get(root, "data.indexingList[0].entries")
	require.True(t, ok)
	assert.Equal(t, []any{"x"}, entries)

	status, ok := Get(root, "data.indexingList[0].status")
	require.True(t, ok)
	assert.Equal(t, "pending", status)
}

func TestSetGrowsArraysAndReplacesScalars(t *testing.T) {
	root := map[string]any{
		"data": map[string]any{
			"items":   []any{"a"},
			"content": "placeholder",
		},
	}

	require.NoError(t, Set(root, "data.items[2]", "c"))
	require.NoError(t, Set(root, "data.content.text", "hello"))

	items, _ := Get(root, "data.items")
	assert.Equal(t, []any{"a", nil, "c"}, items)

	text, ok := Get(root, "data.content.text")
	require.True(t, ok)
	assert.Equal(t, "hello", text)
}

func TestSetRejectsLeadingIndex(t *testing.T) {
	assert.Error(t, Set(map[string]any{}, "[0].x", 1))
	assert.Error(t, Set(nil, "a", 1))
}

func TestGetMissing(t *testing.T) {
	root := map[string]any{"data": map[string]any{"list": []any{1.0}}}

	_, ok := Get(root, "data.missing")
	assert.False(t, ok)

	_, ok = Get(root, "data.list[3]")
	assert.False(t, ok)

	_, ok = Get(root, "data.list.key")
	assert.False(t, ok)
}

func TestDelete(t *testing.T) {
	root := map[string]any{
		"data": map[string]any{
			"external_metadata": map[string]any{"resource_key": "k"},
		},
	}

	assert.True(t, Delete(root, "data.external_metadata"))
	assert.False(t, Delete(root, "data.external_metadata"))
	_, ok := Get(root, "data.external_metadata")
	assert.False(t, ok)
}

func TestCloneIsDeep(t *testing.T) {
	original := map[string]any{
		"data": map[string]any{
			"list": []any{map[string]any{"k": "v"}},
		},
	}

	copied := Clone(original).(map[string]any)
	require.NoError(t, Set(copied, "data.list[0].k", "changed"))

	v, _ := Get(original, "data.list[0].k")
	assert.Equal(t, "v", v)
}
