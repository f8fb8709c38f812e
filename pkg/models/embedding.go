package models

// ModelType classifies a model offered by the user's environment.
type ModelType string

const (
	ModelTypeEmbedding ModelType = "embedding"
	ModelTypeLLM       ModelType = "llm"
)

// Model is a model available in the user's environment.
type Model struct {
	ID         string    `json:"id"`
	Name       string    `json:"name,omitempty"`
	Provider   string    `json:"provider"`
	Type       ModelType `json:"type"`
	Dimensions int       `json:"dimensions,omitempty"`
}

// IsEmbedding reports whether the model can produce embeddings. Untyped
// models are assumed to; only models typed as something else are not.
func (m Model) IsEmbedding() bool {
	return m.Type == "" || m.Type == ModelTypeEmbedding
}

// EmbeddingModelRequirement is the model a template's vector index was built with.
type EmbeddingModelRequirement struct {
	ModelID          string           `json:"model_id"`
	Provider         string           `json:"provider"`
	FallbackStrategy FallbackStrategy `json:"fallback_strategy,omitempty"`
}

// Confidence grades a compatibility verdict.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// CompatibilityAction is what the caller should do with a vector resource.
type CompatibilityAction string

const (
	ActionAutoRebuild    CompatibilityAction = "auto_rebuild"
	ActionWarnAndRebuild CompatibilityAction = "warn_and_rebuild"
	ActionManualSelect   CompatibilityAction = "manual_select"
	ActionSkip           CompatibilityAction = "skip"
)

// CompatibilityResult is the verdict of the model compatibility check.
type CompatibilityResult struct {
	Compatible     bool                `json:"compatible"`
	Confidence     Confidence          `json:"confidence"`
	Reason         string              `json:"reason"`
	Warning        string              `json:"warning,omitempty"`
	SuggestedModel *Model              `json:"suggested_model,omitempty"`
	Action         CompatibilityAction `json:"action"`
}

// RebuildStatus is the terminal state of an auto-rebuild attempt.
type RebuildStatus string

const (
	RebuildCompleted RebuildStatus = "completed"
	RebuildPending   RebuildStatus = "pending"
	RebuildFailed    RebuildStatus = "failed"
	RebuildSkipped   RebuildStatus = "skipped"
)

// RebuildResult reports what happened to a vector collection.
type RebuildResult struct {
	Success        bool          `json:"success"`
	Status         RebuildStatus `json:"status"`
	Entries        []VectorEntry `json:"entries,omitempty"`
	CollectionName string        `json:"collection_name,omitempty"`
	Model          *Model        `json:"model,omitempty"`
	Error          string        `json:"error,omitempty"`
	Warning        string        `json:"warning,omitempty"`
}

// VectorEntry is one record staged for embedding.
type VectorEntry struct {
	Content  string              `json:"content"`
	Metadata VectorEntryMetadata `json:"metadata"`
}

// VectorEntryMetadata links an entry back to its source record.
type VectorEntryMetadata struct {
	ID               int `json:"id"`
	RetrievalContent any `json:"retrieval_content,omitempty"`
}

// Value returns the entry as a JSON dynamic value for writing into block data.
func (e VectorEntry) Value() map[string]any {
	metadata := map[string]any{"id": e.Metadata.ID}
	if e.Metadata.RetrievalContent != nil {
		metadata["retrieval_content"] = e.Metadata.RetrievalContent
	}
	return map[string]any{
		"content":  e.Content,
		"metadata": metadata,
	}
}
