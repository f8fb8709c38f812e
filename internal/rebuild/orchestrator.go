// Package rebuild decides whether a vector collection shipped with a
// template can be re-indexed automatically for a new user.
package rebuild

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/puppyone-ai/puppyone-sub007/internal/compat"
	"github.com/puppyone-ai/puppyone-sub007/internal/extract"
	"github.com/puppyone-ai/puppyone-sub007/internal/services"
	"github.com/puppyone-ai/puppyone-sub007/internal/telemetry"
	"github.com/puppyone-ai/puppyone-sub007/pkg/models"
)

// Logger defines the logging interface compatible with the application logger.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Orchestrator combines the compatibility check, entry extraction and the
// embedding trigger.
type Orchestrator struct {
	embedder services.Embedder
	logger   Logger
}

// NewOrchestrator creates a new Orchestrator.
func NewOrchestrator(embedder services.Embedder, logger Logger) *Orchestrator {
	return &Orchestrator{embedder: embedder, logger: logger}
}

// CollectionName is the deterministic vector collection name for a block.
func CollectionName(userID, workspaceID, blockID string) string {
	return fmt.Sprintf("user_%s_workspace_%s_block_%s", userID, workspaceID, blockID)
}

// IndexingConfig returns the key/value paths declared by the resource. A
// missing path selects the whole record.
func IndexingConfig(resource models.ResourceDescriptor) models.IndexingConfig {
	var cfg models.IndexingConfig
	if vh := resource.Target.VectorHandling; vh != nil {
		cfg.KeyPath = vh.KeyPath
		cfg.ValuePath = vh.ValuePath
	}
	return cfg
}

// AttemptAutoRebuild never returns an error: every outcome, including an
// embedding failure, is reported through the result status.
func (o *Orchestrator) AttemptAutoRebuild(ctx context.Context, resource models.ResourceDescriptor, content any,
	available []models.Model, userID, workspaceID, blockID string) models.RebuildResult {
	ctx, span := telemetry.StartSpan(ctx, "rebuild.attempt",
		attribute.String("resource.id", resource.ID),
		attribute.String("block.id", blockID),
	)
	result := o.attempt(ctx, resource, content, available, userID, workspaceID, blockID)
	span.SetAttributes(attribute.String("rebuild.status", string(result.Status)))
	telemetry.EndSpan(span, nil)
	telemetry.RecordRebuild(ctx, string(result.Status))
	return result
}

func (o *Orchestrator) attempt(ctx context.Context, resource models.ResourceDescriptor, content any,
	available []models.Model, userID, workspaceID, blockID string) models.RebuildResult {
	if resource.Type != models.ResourceTypeVectorCollection {
		return models.RebuildResult{Status: models.RebuildSkipped}
	}

	verdict := compat.CheckCompatibility(resource.Target.EmbeddingModel, available)
	switch verdict.Action {
	case models.ActionSkip:
		o.logger.Info("vector rebuild skipped", "resource_id", resource.ID, "reason", verdict.Reason)
		return models.RebuildResult{Status: models.RebuildSkipped, Warning: verdict.Reason}
	case models.ActionManualSelect:
		o.logger.Info("vector rebuild needs manual model selection", "resource_id", resource.ID, "reason", verdict.Reason)
		return models.RebuildResult{Status: models.RebuildPending, Warning: verdict.Reason}
	}

	entries, err := extract.ExtractEntries(content, IndexingConfig(resource))
	if err != nil {
		o.logger.Warn("vector entry extraction failed", "resource_id", resource.ID, "error", err)
		return models.RebuildResult{Status: models.RebuildFailed, Error: err.Error()}
	}
	if len(entries) == 0 {
		return models.RebuildResult{
			Status:  models.RebuildPending,
			Warning: "no entries extracted, collection is waiting for content",
		}
	}

	collection := CollectionName(userID, workspaceID, blockID)
	model := verdict.SuggestedModel
	req := services.EmbeddingRequest{
		Entries:        entries,
		CollectionName: collection,
		ModelID:        model.ID,
		Provider:       model.Provider,
	}
	if err := o.embedder.TriggerEmbedding(ctx, req); err != nil {
		o.logger.Warn("embedding trigger failed", "resource_id", resource.ID, "collection", collection, "error", err)
		return models.RebuildResult{
			Status:         models.RebuildFailed,
			Entries:        entries,
			CollectionName: collection,
			Model:          model,
			Error:          err.Error(),
		}
	}

	result := models.RebuildResult{
		Success:        true,
		Status:         models.RebuildCompleted,
		Entries:        entries,
		CollectionName: collection,
		Model:          model,
	}
	if verdict.Confidence != models.ConfidenceHigh {
		result.Warning = verdict.Warning
	}
	o.logger.Info("vector rebuild prepared", "resource_id", resource.ID, "collection", collection,
		"model_id", model.ID, "entries", len(entries))
	return result
}
