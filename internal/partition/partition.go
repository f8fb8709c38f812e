// Package partition splits resource payloads into size-bounded parts.
package partition

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/puppyone-ai/puppyone-sub007/pkg/models"
)

// DefaultPartSize is the upper bound for a single part (1 MiB).
const DefaultPartSize = 1024 * 1024

const (
	textMime  = "text/plain; charset=utf-8"
	jsonlMime = "application/jsonl"
)

// Service partitions content. It holds no state besides the part size.
type Service struct {
	PartSize int
}

// New returns a Service with the given part size, or DefaultPartSize when
// size is not positive.
func New(size int) *Service {
	if size <= 0 {
		size = DefaultPartSize
	}
	return &Service{PartSize: size}
}

// Partition splits content into ordered parts. Structured content that is
// not valid JSON is partitioned as text.
func (s *Service) Partition(content []byte, kind models.ContentKind) []models.PartDescriptor {
	if kind == models.ContentKindStructured {
		if parts, ok := s.structured(content); ok {
			return parts
		}
	}
	return s.text(content)
}

func (s *Service) size() int {
	if s.PartSize <= 0 {
		return DefaultPartSize
	}
	return s.PartSize
}

func (s *Service) text(content []byte) []models.PartDescriptor {
	size := s.size()
	var parts []models.PartDescriptor
	for offset := 0; offset < len(content); offset += size {
		end := min(offset+size, len(content))
		parts = append(parts, part(len(parts), "txt", textMime, content[offset:end]))
	}
	return parts
}

func (s *Service) structured(content []byte) ([]models.PartDescriptor, bool) {
	trimmed := bytes.TrimSpace(content)
	if !json.Valid(trimmed) {
		return nil, false
	}

	if len(trimmed) == 0 || trimmed[0] != '[' {
		line, err := jsonLine(trimmed)
		if err != nil {
			return nil, false
		}
		return []models.PartDescriptor{part(0, "jsonl", jsonlMime, line)}, true
	}

	var records []json.RawMessage
	if err := json.Unmarshal(trimmed, &records); err != nil {
		return nil, false
	}

	size := s.size()
	var parts []models.PartDescriptor
	var current []byte
	flush := func() {
		if len(current) > 0 {
			parts = append(parts, part(len(parts), "jsonl", jsonlMime, current))
			current = nil
		}
	}

	for _, record := range records {
		line, err := jsonLine(record)
		if err != nil {
			return nil, false
		}
		if len(line) > size {
			flush()
			parts = append(parts, part(len(parts), "jsonl", jsonlMime, line))
			continue
		}
		if len(current)+len(line) > size {
			flush()
		}
		current = append(current, line...)
	}
	flush()

	return parts, true
}

// jsonLine compacts a record onto a single newline-terminated line.
func jsonLine(record []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, record); err != nil {
		return nil, err
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

func part(index int, ext, mime string, data []byte) models.PartDescriptor {
	return models.PartDescriptor{
		Name:  Name(index, ext),
		Mime:  mime,
		Bytes: data,
		Index: index,
	}
}

// Name returns the canonical part file name, e.g. part_000003.jsonl.
func Name(index int, ext string) string {
	return fmt.Sprintf("part_%06d.%s", index, ext)
}

// Join concatenates parts by ascending index.
func Join(parts []models.PartDescriptor) []byte {
	ordered := make([][]byte, len(parts))
	for _, p := range parts {
		if p.Index >= 0 && p.Index < len(ordered) {
			ordered[p.Index] = p.Bytes
		}
	}
	return bytes.Join(ordered, nil)
}
