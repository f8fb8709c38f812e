// Package services holds clients for collaborators outside the pipeline.
package services

import (
	"context"

	"github.com/puppyone-ai/puppyone-sub007/pkg/models"
)

// EmbeddingRequest asks the embedding service to index entries into a collection.
type EmbeddingRequest struct {
	Entries        []models.VectorEntry `json:"entries"`
	CollectionName string               `json:"collection_name"`
	ModelID        string               `json:"model_id"`
	Provider       string               `json:"provider,omitempty"`
}

// Embedder is an interface for communicating with the embedding service.
type Embedder interface {
	// TriggerEmbedding submits entries for embedding. A returned error means
	// the collection was not built.
	TriggerEmbedding(ctx context.Context, req EmbeddingRequest) error
}

// Logger defines the logging interface compatible with the application logger.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}
