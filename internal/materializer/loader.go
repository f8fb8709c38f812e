// Package materializer instantiates template packages into a user's storage
// namespace and rewrites the workflow graph to reference what was written.
package materializer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/puppyone-ai/puppyone-sub007/internal/storage"
	"github.com/puppyone-ai/puppyone-sub007/internal/telemetry"
	"github.com/puppyone-ai/puppyone-sub007/pkg/models"
)

// DefaultStorageThreshold is the payload size from which resources are
// stored externally (1 MiB).
const DefaultStorageThreshold = 1024 * 1024

// Logger defines the logging interface compatible with the application logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// PackageSource loads template packages and their resource payloads.
type PackageSource interface {
	Load(ctx context.Context, templateID string) (*models.TemplatePackage, error)
	ReadResource(ctx context.Context, templateID, path string) ([]byte, error)
}

// Transfer writes resources to object storage.
type Transfer interface {
	UploadPartitioned(ctx context.Context, target storage.Target, parts []models.PartDescriptor) (*storage.Manifest, error)
	UploadFile(ctx context.Context, up storage.FileUpload) (*storage.FileResult, error)
	UploadManifest(ctx context.Context, target storage.Target, manifest any) (*storage.PartResult, error)
}

// Partitioner splits payloads into parts.
type Partitioner interface {
	Partition(content []byte, kind models.ContentKind) []models.PartDescriptor
}

// Rebuilder prepares vector collections for the user's embedding models.
type Rebuilder interface {
	AttemptAutoRebuild(ctx context.Context, resource models.ResourceDescriptor, content any,
		available []models.Model, userID, workspaceID, blockID string) models.RebuildResult
}

// Recorder persists instantiation records.
type Recorder interface {
	Save(ctx context.Context, inst *models.Instantiation) error
}

// Options wires a Loader. Recorder is optional.
type Options struct {
	Source           PackageSource
	Transfer         Transfer
	Partitioner      Partitioner
	Rebuilder        Rebuilder
	Recorder         Recorder
	StorageThreshold int
	Logger           Logger
}

// Loader is the top-level materialization orchestrator.
type Loader struct {
	source      PackageSource
	transfer    Transfer
	partitioner Partitioner
	rebuilder   Rebuilder
	recorder    Recorder
	threshold   int
	logger      Logger
	newVersion  func() string
}

// NewLoader creates a new Loader.
func NewLoader(opts Options) *Loader {
	threshold := opts.StorageThreshold
	if threshold <= 0 {
		threshold = DefaultStorageThreshold
	}
	return &Loader{
		source:      opts.Source,
		transfer:    opts.Transfer,
		partitioner: opts.Partitioner,
		rebuilder:   opts.Rebuilder,
		recorder:    opts.Recorder,
		threshold:   threshold,
		logger:      opts.Logger,
		newVersion:  uuid.NewString,
	}
}

// Result is a finished instantiation.
type Result struct {
	Workflow      *models.WorkflowDefinition `json:"workflow"`
	Instantiation *models.Instantiation      `json:"instantiation"`
}

// InstantiateByID loads templateID from the package source, instantiates it
// and hands the record to the recorder.
func (l *Loader) InstantiateByID(ctx context.Context, templateID, userID, workspaceID string, available []models.Model) (*Result, error) {
	pkg, err := l.source.Load(ctx, templateID)
	if err != nil {
		return nil, err
	}

	workflow, outcomes, err := l.instantiate(ctx, pkg, userID, workspaceID, available)
	if err != nil {
		return nil, err
	}

	record := &models.Instantiation{
		ID:              uuid.NewString(),
		TemplateID:      pkg.Metadata.ID,
		TemplateVersion: pkg.Metadata.Version,
		UserID:          userID,
		WorkspaceID:     workspaceID,
		Resources:       outcomes,
		CreatedAt:       time.Now().UTC(),
	}
	if l.recorder != nil {
		// The resources are already written; a lost record does not undo them.
		if err := l.recorder.Save(ctx, record); err != nil {
			l.logger.Warn("failed to record instantiation", "template_id", templateID, "user_id", userID, "error", err)
		}
	}
	return &Result{Workflow: workflow, Instantiation: record}, nil
}

// InstantiateTemplate materializes every resource of pkg for the user and
// returns the rewritten copy of the workflow. pkg is never modified. Any
// resource failure aborts the call and no workflow is returned.
func (l *Loader) InstantiateTemplate(ctx context.Context, pkg *models.TemplatePackage, userID, workspaceID string, available []models.Model) (*models.WorkflowDefinition, error) {
	workflow, _, err := l.instantiate(ctx, pkg, userID, workspaceID, available)
	return workflow, err
}

func (l *Loader) instantiate(ctx context.Context, pkg *models.TemplatePackage, userID, workspaceID string,
	available []models.Model) (_ *models.WorkflowDefinition, _ []models.ResourceOutcome, err error) {
	ctx, span := telemetry.StartSpan(ctx, "materializer.instantiate",
		attribute.String("template.id", pkg.Metadata.ID),
		attribute.String("template.version", pkg.Metadata.Version),
		attribute.Int("resources", len(pkg.Resources.Resources)),
	)
	defer func() { telemetry.EndSpan(span, err) }()

	workflow := pkg.Workflow.Clone()
	outcomes := make([]models.ResourceOutcome, 0, len(pkg.Resources.Resources))

	// Resources run one at a time; the cloned graph is not synchronized.
	for _, resource := range pkg.Resources.Resources {
		outcome, err := l.materialize(ctx, pkg.Metadata.ID, workflow, resource, userID, workspaceID, available)
		if err != nil {
			telemetry.RecordResource(ctx, string(resource.Type), "", "failed")
			l.logger.Error("resource materialization failed", "template_id", pkg.Metadata.ID,
				"resource_id", resource.ID, "error", err)
			return nil, nil, &ResourceError{ResourceID: resource.ID, Err: err}
		}
		telemetry.RecordResource(ctx, string(resource.Type), outcome.StorageClass, "materialized")
		outcomes = append(outcomes, outcome)
	}

	l.logger.Info("template instantiated", "template_id", pkg.Metadata.ID, "user_id", userID,
		"workspace_id", workspaceID, "resources", len(outcomes))
	return workflow, outcomes, nil
}

// job carries everything one resource handler needs.
type job struct {
	resource    models.ResourceDescriptor
	block       models.Block
	raw         []byte
	content     any
	external    bool
	target      storage.Target
	userID      string
	workspaceID string
	available   []models.Model
}

func (l *Loader) materialize(ctx context.Context, templateID string, workflow *models.WorkflowDefinition,
	resource models.ResourceDescriptor, userID, workspaceID string, available []models.Model) (_ models.ResourceOutcome, err error) {
	ctx, span := telemetry.StartSpan(ctx, "materializer.resource",
		attribute.String("resource.id", resource.ID),
		attribute.String("resource.type", string(resource.Type)),
	)
	defer func() { telemetry.EndSpan(span, err) }()

	raw, err := l.source.ReadResource(ctx, templateID, resource.Source.Path)
	if err != nil {
		return models.ResourceOutcome{}, err
	}
	content := l.decode(resource, raw)
	external := len(raw) >= l.threshold

	block, ok := workflow.FindBlock(resource.BlockID)
	if !ok {
		return models.ResourceOutcome{}, &ResourceResolutionError{ResourceID: resource.ID, BlockID: resource.BlockID}
	}

	j := &job{
		resource: resource,
		block:    block,
		raw:      raw,
		content:  content,
		external: external,
		target: storage.Target{
			UserID:    userID,
			BlockID:   block.ID(),
			VersionID: l.newVersion(),
		},
		userID:      userID,
		workspaceID: workspaceID,
		available:   available,
	}
	l.logger.Debug("materializing resource", "resource_id", resource.ID, "type", resource.Type,
		"bytes", len(raw), "external", external)

	switch resource.Type {
	case models.ResourceTypeExternalStorage:
		return l.handleExternalStorage(ctx, j)
	case models.ResourceTypeVectorCollection:
		return l.handleVectorCollection(ctx, j)
	case models.ResourceTypeFile:
		return l.handleFile(ctx, j)
	default:
		return models.ResourceOutcome{}, fmt.Errorf("unsupported resource type %q", resource.Type)
	}
}

// decode parses structured payloads. A payload that is not valid JSON is
// kept as text, the same way partitioning treats it.
func (l *Loader) decode(resource models.ResourceDescriptor, raw []byte) any {
	if resource.Source.Format != models.SourceFormatStructured {
		return string(raw)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if !json.Valid(raw) || dec.Decode(&v) != nil {
		l.logger.Warn("structured resource is not valid JSON, using it as text", "resource_id", resource.ID)
		return string(raw)
	}
	return v
}
