package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/puppyone-ai/puppyone-sub007/pkg/models"
)

func key(k string) models.PathSegment {
	return models.PathSegment{Type: models.PathSegmentKey, Value: k}
}

func num(n int) models.PathSegment {
	return models.PathSegment{Type: models.PathSegmentNum, Value: float64(n)}
}

func TestExpression(t *testing.T) {
	tests := []struct {
		path []models.PathSegment
		want string
	}{
		{nil, "@"},
		{[]models.PathSegment{key("question")}, `"question"`},
		{[]models.PathSegment{key("qa"), num(0), key("answer")}, `"qa"[0]."answer"`},
		{[]models.PathSegment{num(2)}, `[2]`},
		{[]models.PathSegment{key(`we"ird.key`)}, `"we\"ird.key"`},
	}
	for _, tt := range tests {
		got, err := Expression(tt.path)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := Expression([]models.PathSegment{{Type: "bogus", Value: "x"}})
	assert.Error(t, err)
}

func TestExtractEntries(t *testing.T) {
	content := []any{
		map[string]any{"question": "What is Go?", "answer": map[string]any{"text": "A language"}},
		map[string]any{"question": "Who made it?", "answer": map[string]any{"text": "Google"}},
	}
	cfg := models.IndexingConfig{
		KeyPath:   []models.PathSegment{key("question")},
		ValuePath: []models.PathSegment{key("answer"), key("text")},
	}

	entries, err := ExtractEntries(content, cfg)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "What is Go?", entries[0].Content)
	assert.Equal(t, 0, entries[0].Metadata.ID)
	assert.Equal(t, "A language", entries[0].Metadata.RetrievalContent)
	assert.Equal(t, "Who made it?", entries[1].Content)
	assert.Equal(t, 1, entries[1].Metadata.ID)
}

func TestExtractEntriesMalformedRecord(t *testing.T) {
	content := []any{
		map[string]any{"k": "one", "v": "payload"},
		map[string]any{"k": "two"},
		nil,
		"scalar",
	}
	cfg := models.IndexingConfig{
		KeyPath:   []models.PathSegment{key("k")},
		ValuePath: []models.PathSegment{key("v"), num(0)},
	}

	entries, err := ExtractEntries(content, cfg)
	require.NoError(t, err)
	require.Len(t, entries, 4)

	assert.Equal(t, "two", entries[1].Content)
	assert.Nil(t, entries[1].Metadata.RetrievalContent)
	assert.Equal(t, "", entries[2].Content)
	assert.Nil(t, entries[2].Metadata.RetrievalContent)
	assert.Equal(t, 3, entries[3].Metadata.ID)
}

func TestExtractEntriesStringifiesNonStringKeys(t *testing.T) {
	content := []any{
		map[string]any{"k": map[string]any{"a": 1.0}},
		map[string]any{"k": 42.0},
	}
	cfg := models.IndexingConfig{KeyPath: []models.PathSegment{key("k")}}

	entries, err := ExtractEntries(content, cfg)
	require.NoError(t, err)

	assert.Equal(t, `{"a":1}`, entries[0].Content)
	assert.Equal(t, "42", entries[1].Content)
	// An empty value path retrieves the whole record.
	assert.Equal(t, content[1], entries[1].Metadata.RetrievalContent)
}

func TestExtractEntriesRequiresArray(t *testing.T) {
	_, err := ExtractEntries(map[string]any{"k": "v"}, models.IndexingConfig{})
	assert.Error(t, err)

	_, err = ExtractEntries("plain text", models.IndexingConfig{})
	assert.Error(t, err)
}

func TestExtractEntriesInvalidIndexResolvesToNil(t *testing.T) {
	content := []any{
		map[string]any{"k": "one", "v": []any{"first", "last"}},
	}

	for _, idx := range []any{-1.0, 1.5, "-2"} {
		cfg := models.IndexingConfig{
			KeyPath:   []models.PathSegment{key("k")},
			ValuePath: []models.PathSegment{key("v"), {Type: models.PathSegmentNum, Value: idx}},
		}

		entries, err := ExtractEntries(content, cfg)
		require.NoError(t, err, "index %v", idx)
		require.Len(t, entries, 1)
		assert.Equal(t, "one", entries[0].Content)
		assert.Nil(t, entries[0].Metadata.RetrievalContent, "index %v", idx)
	}
}
