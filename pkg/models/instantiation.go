package models

import (
	"time"
)

// Instantiation records one successful template instantiation.
type Instantiation struct {
	ID              string            `json:"id"`
	TemplateID      string            `json:"template_id"`
	TemplateVersion string            `json:"template_version"`
	UserID          string            `json:"user_id"`
	WorkspaceID     string            `json:"workspace_id"`
	Resources       []ResourceOutcome `json:"resources"`
	CreatedAt       time.Time         `json:"created_at"`
}

// ResourceOutcome is how a single resource ended up materialized.
type ResourceOutcome struct {
	ResourceID    string        `json:"resource_id"`
	Type          ResourceType  `json:"type"`
	BlockID       string        `json:"block_id"`
	StorageClass  string        `json:"storage_class"`
	ResourceKey   string        `json:"resource_key,omitempty"`
	PartCount     int           `json:"part_count,omitempty"`
	RebuildStatus RebuildStatus `json:"rebuild_status,omitempty"`
	Warning       string        `json:"warning,omitempty"`
}
