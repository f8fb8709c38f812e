// Package extract turns records of a vector collection into entries ready
// for embedding.
package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jmespath/go-jmespath"

	"github.com/puppyone-ai/puppyone-sub007/pkg/models"
)

// ExtractEntries resolves cfg.KeyPath and cfg.ValuePath against every
// element of content. A path that runs into a missing or null value yields
// nil for that element only. A path with a negative or fractional index
// resolves to nil for every element.
func ExtractEntries(content any, cfg models.IndexingConfig) ([]models.VectorEntry, error) {
	records, ok := content.([]any)
	if !ok {
		return nil, fmt.Errorf("vector content must be an array, got %T", content)
	}

	keyExpr, err := compile(cfg.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("key path: %w", err)
	}
	valueExpr, err := compile(cfg.ValuePath)
	if err != nil {
		return nil, fmt.Errorf("value path: %w", err)
	}

	entries := make([]models.VectorEntry, 0, len(records))
	for i, record := range records {
		key := search(keyExpr, record)
		value := search(valueExpr, record)
		entries = append(entries, models.VectorEntry{
			Content: stringify(key),
			Metadata: models.VectorEntryMetadata{
				ID:               i,
				RetrievalContent: value,
			},
		})
	}
	return entries, nil
}

// Expression renders a path as a JMESPath expression. An empty path selects
// the record itself.
func Expression(path []models.PathSegment) (string, error) {
	if len(path) == 0 {
		return "@", nil
	}

	var b strings.Builder
	for i, seg := range path {
		switch seg.Type {
		case models.PathSegmentNum:
			n, err := seg.Index()
			if err != nil {
				return "", err
			}
			b.WriteString("[" + strconv.Itoa(n) + "]")
		case models.PathSegmentKey:
			quoted, err := json.Marshal(seg.Key())
			if err != nil {
				return "", err
			}
			if i > 0 {
				b.WriteByte('.')
			}
			b.Write(quoted)
		default:
			return "", fmt.Errorf("unknown path segment type %q", seg.Type)
		}
	}
	return b.String(), nil
}

func compile(path []models.PathSegment) (*jmespath.JMESPath, error) {
	expr, err := Expression(path)
	if errors.Is(err, models.ErrInvalidIndex) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	compiled, err := jmespath.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("compiling %q: %w", expr, err)
	}
	return compiled, nil
}

func search(expr *jmespath.JMESPath, record any) any {
	if expr == nil || record == nil {
		return nil
	}
	result, err := expr.Search(record)
	if err != nil {
		return nil
	}
	return result
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		encoded, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(encoded)
	}
}
