package materializer

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/puppyone-ai/puppyone-sub007/internal/storage"
	"github.com/puppyone-ai/puppyone-sub007/pkg/models"
	"github.com/puppyone-ai/puppyone-sub007/pkg/structpath"
)

// Block data fields written by the handlers.
const (
	fieldExternalMetadata = "data.external_metadata"
	fieldStorageClass     = "data.storage_class"
	fieldIsExternal       = "data.isExternalStorage"
	fieldIndex            = "data.indexingList[0]"
)

// placeholderStatus marks file placeholders awaiting the prefetch step.
const placeholderStatus = "pending_prefetch"

// FileEntry describes one uploaded file in a files manifest.
type FileEntry struct {
	Name     string `json:"name"`
	Mime     string `json:"mime"`
	Size     int64  `json:"size"`
	ETag     string `json:"etag"`
	FileType string `json:"file_type"`
}

// FilesManifest is the manifest written next to uploaded files.
type FilesManifest struct {
	Format string      `json:"format"`
	Files  []FileEntry `json:"files"`
}

// mountPath resolves a mounted path against the block. Paths are written
// relative to the block; a path that does not start at data is taken to be
// relative to data.
func mountPath(p string) string {
	if p == "data" || strings.HasPrefix(p, "data.") || strings.HasPrefix(p, "data[") {
		return p
	}
	return "data." + p
}

func set(block models.Block, p string, value any) error {
	if err := structpath.Set(block, p, value); err != nil {
		return fmt.Errorf("writing %s: %w", p, err)
	}
	return nil
}

func contentKind(resource models.ResourceDescriptor) models.ContentKind {
	if resource.Source.Format == models.SourceFormatStructured {
		return models.ContentKindStructured
	}
	return models.ContentKindText
}

// store writes the payload either inline at the content path or as a
// partitioned external object, and returns the storage outcome.
func (l *Loader) store(ctx context.Context, j *job) (models.ResourceOutcome, error) {
	outcome := models.ResourceOutcome{
		ResourceID: j.resource.ID,
		Type:       j.resource.Type,
		BlockID:    j.block.ID(),
	}

	if !j.external {
		if err := set(j.block, mountPath(j.resource.ContentPath()), j.content); err != nil {
			return outcome, err
		}
		if err := set(j.block, fieldStorageClass, models.StorageClassInternal); err != nil {
			return outcome, err
		}
		if err := set(j.block, fieldIsExternal, false); err != nil {
			return outcome, err
		}
		structpath.Delete(j.block, fieldExternalMetadata)
		outcome.StorageClass = models.StorageClassInternal
		return outcome, nil
	}

	kind := contentKind(j.resource)
	parts := l.partitioner.Partition(j.raw, kind)
	if _, err := l.transfer.UploadPartitioned(ctx, j.target, parts); err != nil {
		return outcome, err
	}

	key := j.target.Key()
	metadata := map[string]any{
		"resource_key": key,
		"content_type": string(kind),
	}
	if err := l.markExternal(j.block, metadata); err != nil {
		return outcome, err
	}
	outcome.StorageClass = models.StorageClassExternal
	outcome.ResourceKey = key
	outcome.PartCount = len(parts)
	return outcome, nil
}

func (l *Loader) markExternal(block models.Block, metadata map[string]any) error {
	if err := set(block, fieldExternalMetadata, metadata); err != nil {
		return err
	}
	if err := set(block, fieldStorageClass, models.StorageClassExternal); err != nil {
		return err
	}
	return set(block, fieldIsExternal, true)
}

func (l *Loader) handleExternalStorage(ctx context.Context, j *job) (models.ResourceOutcome, error) {
	outcome, err := l.store(ctx, j)
	if err != nil {
		return outcome, err
	}
	l.logger.Info("resource materialized", "resource_id", j.resource.ID, "block_id", outcome.BlockID,
		"storage_class", outcome.StorageClass, "resource_key", outcome.ResourceKey, "parts", outcome.PartCount)
	return outcome, nil
}

func (l *Loader) handleVectorCollection(ctx context.Context, j *job) (models.ResourceOutcome, error) {
	outcome, err := l.store(ctx, j)
	if err != nil {
		return outcome, err
	}

	index := map[string]any{
		"entries":            []any{},
		"status":             string(models.RebuildPending),
		"index_name":         "",
		"collection_configs": map[string]any{},
	}
	if vh := j.resource.Target.VectorHandling; vh != nil {
		if len(vh.KeyPath) > 0 {
			index["key_path"] = segmentsValue(vh.KeyPath)
		}
		if len(vh.ValuePath) > 0 {
			index["value_path"] = segmentsValue(vh.ValuePath)
		}
	}
	for field, value := range index {
		if err := set(j.block, fieldIndex+"."+field, value); err != nil {
			return outcome, err
		}
	}

	result := l.rebuilder.AttemptAutoRebuild(ctx, j.resource, j.content, j.available,
		j.userID, j.workspaceID, j.block.ID())
	outcome.RebuildStatus = result.Status
	outcome.Warning = result.Warning
	if result.Error != "" {
		outcome.Warning = result.Error
	}

	// A successful rebuild only stages entries; the index stays pending until
	// the embedding service reports it built.
	if result.Success {
		entries := make([]any, len(result.Entries))
		for i, e := range result.Entries {
			entries[i] = e.Value()
		}
		if err := set(j.block, fieldIndex+".entries", entries); err != nil {
			return outcome, err
		}
		configs := map[string]any{"collection_name": result.CollectionName}
		if result.Model != nil {
			configs["model_id"] = result.Model.ID
			configs["provider"] = result.Model.Provider
		}
		if err := set(j.block, fieldIndex+".collection_configs", configs); err != nil {
			return outcome, err
		}
	}

	l.logger.Info("vector collection materialized", "resource_id", j.resource.ID, "block_id", outcome.BlockID,
		"storage_class", outcome.StorageClass, "rebuild_status", result.Status, "entries", len(result.Entries))
	return outcome, nil
}

// handleFile always stores the file externally, whatever its size.
func (l *Loader) handleFile(ctx context.Context, j *job) (models.ResourceOutcome, error) {
	name := path.Base(j.resource.Source.Path)
	mimeType := detectMime(j.resource.Source.MimeType, name, j.raw)
	kind := fileType(name, mimeType)

	uploaded, err := l.transfer.UploadFile(ctx, storage.FileUpload{
		BlockID:     j.target.BlockID,
		FileName:    name,
		VersionID:   j.target.VersionID,
		ContentType: mimeType,
		Data:        j.raw,
	})
	if err != nil {
		return models.ResourceOutcome{}, err
	}

	manifest := FilesManifest{
		Format: storage.FormatFiles,
		Files: []FileEntry{{
			Name:     name,
			Mime:     mimeType,
			Size:     int64(len(j.raw)),
			ETag:     uploaded.ETag,
			FileType: kind,
		}},
	}
	if _, err := l.transfer.UploadManifest(ctx, j.target, manifest); err != nil {
		return models.ResourceOutcome{}, fmt.Errorf("manifest: %w", err)
	}

	key := j.target.Key()
	if err := l.markExternal(j.block, map[string]any{
		"resource_key": key,
		"content_type": storage.FormatFiles,
	}); err != nil {
		return models.ResourceOutcome{}, err
	}

	placeholder := []any{map[string]any{
		"name":         name,
		"file_type":    kind,
		"mime_type":    mimeType,
		"size":         len(j.raw),
		"resource_key": key,
		"status":       placeholderStatus,
	}}
	if err := set(j.block, mountPath(j.resource.ContentPath()), placeholder); err != nil {
		return models.ResourceOutcome{}, err
	}

	l.logger.Info("file materialized", "resource_id", j.resource.ID, "block_id", j.target.BlockID,
		"file_name", name, "mime", mimeType, "resource_key", key)
	return models.ResourceOutcome{
		ResourceID:   j.resource.ID,
		Type:         j.resource.Type,
		BlockID:      j.target.BlockID,
		StorageClass: models.StorageClassExternal,
		ResourceKey:  key,
		PartCount:    1,
	}, nil
}

func segmentsValue(segs []models.PathSegment) []any {
	out := make([]any, len(segs))
	for i, s := range segs {
		out[i] = map[string]any{"type": string(s.Type), "value": s.Value}
	}
	return out
}
