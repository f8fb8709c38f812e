// Package compat decides which embedding model a user's environment should
// use to rebuild a vector index shipped with a template.
package compat

import (
	"fmt"

	"github.com/puppyone-ai/puppyone-sub007/pkg/models"
)

// CheckCompatibility evaluates the required model against the available
// ones. The checks run in a fixed order and the first match wins; a
// same-provider substitute always beats a blind fallback.
func CheckCompatibility(required *models.EmbeddingModelRequirement, available []models.Model) models.CompatibilityResult {
	embedding := EmbeddingModels(available)

	if len(embedding) == 0 {
		return models.CompatibilityResult{
			Compatible: false,
			Confidence: models.ConfidenceHigh,
			Reason:     "no embedding model is available",
			Action:     models.ActionSkip,
		}
	}

	if required == nil || (required.ModelID == "" && required.Provider == "") {
		model := embedding[0]
		return models.CompatibilityResult{
			Compatible:     true,
			Confidence:     models.ConfidenceHigh,
			Reason:         fmt.Sprintf("template declares no embedding model, using %s", model.ID),
			SuggestedModel: &model,
			Action:         models.ActionAutoRebuild,
		}
	}

	for _, m := range embedding {
		if m.ID == required.ModelID {
			model := m
			return models.CompatibilityResult{
				Compatible:     true,
				Confidence:     models.ConfidenceHigh,
				Reason:         fmt.Sprintf("required model %s is available", required.ModelID),
				SuggestedModel: &model,
				Action:         models.ActionAutoRebuild,
			}
		}
	}

	if required.Provider != "" {
		for _, m := range embedding {
			if m.Provider == required.Provider {
				model := m
				warning := fmt.Sprintf("model %s is not available, substituting %s from the same provider %s",
					required.ModelID, m.ID, required.Provider)
				return models.CompatibilityResult{
					Compatible:     true,
					Confidence:     models.ConfidenceMedium,
					Reason:         warning,
					Warning:        warning,
					SuggestedModel: &model,
					Action:         models.ActionWarnAndRebuild,
				}
			}
		}
	}

	switch required.FallbackStrategy {
	case models.FallbackAuto:
		model := embedding[0]
		warning := fmt.Sprintf("neither model %s nor provider %s is available, falling back to %s (%s)",
			required.ModelID, required.Provider, model.ID, model.Provider)
		return models.CompatibilityResult{
			Compatible:     true,
			Confidence:     models.ConfidenceLow,
			Reason:         warning,
			Warning:        warning,
			SuggestedModel: &model,
			Action:         models.ActionAutoRebuild,
		}
	case models.FallbackSkip:
		return models.CompatibilityResult{
			Compatible: false,
			Confidence: models.ConfidenceHigh,
			Reason:     fmt.Sprintf("model %s is not available and the template asks to skip rebuilding", required.ModelID),
			Action:     models.ActionSkip,
		}
	default:
		return models.CompatibilityResult{
			Compatible: false,
			Confidence: models.ConfidenceHigh,
			Reason:     fmt.Sprintf("model %s is not available, select an embedding model manually", required.ModelID),
			Action:     models.ActionManualSelect,
		}
	}
}

// EmbeddingModels filters the embedding-capable models, preserving order.
func EmbeddingModels(available []models.Model) []models.Model {
	var out []models.Model
	for _, m := range available {
		if m.IsEmbedding() {
			out = append(out, m)
		}
	}
	return out
}
