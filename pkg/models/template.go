// Package models defines the domain models for template materialization.
package models

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

// ErrInvalidIndex is returned for array indexes that are negative or not
// whole numbers. Such an index never selects an element.
var ErrInvalidIndex = errors.New("invalid array index")

// ResourceType identifies which materialization handler a resource uses.
type ResourceType string

const (
	ResourceTypeExternalStorage  ResourceType = "external_storage"
	ResourceTypeVectorCollection ResourceType = "vector_collection"
	ResourceTypeFile             ResourceType = "file"
)

// SourceFormat describes how a resource payload is encoded on disk.
type SourceFormat string

const (
	SourceFormatText       SourceFormat = "text"
	SourceFormatStructured SourceFormat = "structured"
	SourceFormatBinary     SourceFormat = "binary"
)

// ContentKind selects the partitioning strategy.
type ContentKind string

const (
	ContentKindText       ContentKind = "text"
	ContentKindStructured ContentKind = "structured"
)

// FallbackStrategy is the template author's policy for a missing embedding model.
type FallbackStrategy string

const (
	FallbackAuto   FallbackStrategy = "auto"
	FallbackManual FallbackStrategy = "manual"
	FallbackSkip   FallbackStrategy = "skip"
)

// Storage classes written into block data.
const (
	StorageClassInternal = "internal"
	StorageClassExternal = "external"
)

// TemplateMetadata identifies a template package.
type TemplateMetadata struct {
	ID          string   `json:"id" validate:"required"`
	Version     string   `json:"version" validate:"required"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Author      string   `json:"author,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	CreatedAt   string   `json:"created_at,omitempty"`
}

// TemplatePackage is the immutable input to instantiation.
type TemplatePackage struct {
	Metadata  TemplateMetadata   `json:"metadata"`
	Workflow  WorkflowDefinition `json:"workflow"`
	Resources ResourceManifest   `json:"resources"`
}

// ResourceManifest lists the external dependencies of a template.
type ResourceManifest struct {
	Resources []ResourceDescriptor `json:"resources" validate:"dive"`
}

// ResourceDescriptor is one declared external dependency of a template.
type ResourceDescriptor struct {
	ID           string            `json:"id" validate:"required"`
	Type         ResourceType      `json:"type" validate:"required,oneof=external_storage vector_collection file"`
	BlockID      string            `json:"block_id" validate:"required"`
	MountedPath  string            `json:"mounted_path,omitempty"`
	MountedPaths map[string]string `json:"mounted_paths,omitempty"`
	Source       ResourceSource    `json:"source"`
	Target       ResourceTarget    `json:"target"`
}

// ContentPath returns the path the resource content is mounted at.
// mounted_paths.content takes precedence over mounted_path.
func (r ResourceDescriptor) ContentPath() string {
	if p := r.MountedPaths["content"]; p != "" {
		return p
	}
	if r.MountedPath != "" {
		return r.MountedPath
	}
	return "data.content"
}

// ResourceSource locates the payload inside the template package.
type ResourceSource struct {
	Path     string       `json:"path" validate:"required"`
	Format   SourceFormat `json:"format,omitempty" validate:"omitempty,oneof=text structured binary"`
	MimeType string       `json:"mime_type,omitempty"`
}

// ResourceTarget describes where the payload lands for the user.
type ResourceTarget struct {
	Pattern           string                     `json:"pattern,omitempty"`
	RequiresUserScope bool                       `json:"requires_user_scope"`
	VectorHandling    *VectorHandling            `json:"vector_handling,omitempty"`
	EmbeddingModel    *EmbeddingModelRequirement `json:"embedding_model,omitempty"`
}

// VectorHandling declares how records of a vector collection map to entries.
type VectorHandling struct {
	KeyPath   []PathSegment `json:"key_path,omitempty"`
	ValuePath []PathSegment `json:"value_path,omitempty"`
}

// PathSegmentType is the kind of navigation step.
type PathSegmentType string

const (
	PathSegmentKey PathSegmentType = "key"
	PathSegmentNum PathSegmentType = "num"
)

// PathSegment is one step of a key/value path: an object key or an array index.
type PathSegment struct {
	Type  PathSegmentType `json:"type"`
	Value any             `json:"value"`
}

// Key returns the segment value as an object key.
func (s PathSegment) Key() string {
	switch v := s.Value.(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Index returns the segment value as an array index.
func (s PathSegment) Index() (int, error) {
	var (
		n   int
		err error
	)
	switch v := s.Value.(type) {
	case int:
		n = v
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("%w: %v", ErrInvalidIndex, v)
		}
		n = int(v)
	case fmt.Stringer:
		n, err = strconv.Atoi(v.String())
	case string:
		n, err = strconv.Atoi(v)
	default:
		return 0, fmt.Errorf("path segment value %v is not an index", s.Value)
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidIndex, s.Value)
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidIndex, n)
	}
	return n, nil
}

// IndexingConfig is the key/value path pair used to extract vector entries.
type IndexingConfig struct {
	KeyPath   []PathSegment `json:"key_path"`
	ValuePath []PathSegment `json:"value_path"`
}

// PartDescriptor is one size-bounded fragment of a resource.
type PartDescriptor struct {
	Name  string `json:"name"`
	Mime  string `json:"mime"`
	Bytes []byte `json:"-"`
	Index int    `json:"index"`
}
