package storage

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"golang.org/x/sync/errgroup"

	"github.com/puppyone-ai/puppyone-sub007/internal/telemetry"
	"github.com/puppyone-ai/puppyone-sub007/pkg/models"
)

const (
	pathFileDirect = "/upload/file/direct"
	pathPartDirect = "/upload/chunk/direct"

	// ManifestName is the file name of the table of contents of a resource.
	ManifestName = "manifest.json"

	// FormatPartitioned marks a manifest listing JSONL or text parts.
	FormatPartitioned = "partitioned"
	// FormatFiles marks a manifest listing whole uploaded files.
	FormatFiles = "files"
)

// Target identifies where a resource's objects are written.
type Target struct {
	UserID    string
	BlockID   string
	VersionID string
}

// Key returns the resource key for the target.
func (t Target) Key() string {
	return ResourceKey(t.UserID, t.BlockID, t.VersionID)
}

// FileUpload is a whole binary file sent in a single request.
type FileUpload struct {
	BlockID     string
	FileName    string
	VersionID   string
	ContentType string
	Data        []byte
}

// FileResult is the storage service's answer to a file upload.
type FileResult struct {
	ETag string `json:"etag"`
}

// PartUpload is one part sent through the direct part endpoint.
type PartUpload struct {
	UserID      string
	BlockID     string
	VersionID   string
	FileName    string
	ContentType string
	Content     []byte
}

// PartResult is what the store durably wrote for one part.
type PartResult struct {
	ETag string `json:"etag"`
	Size int64  `json:"size"`
}

// ManifestPart describes one uploaded part.
type ManifestPart struct {
	Name string `json:"name"`
	Mime string `json:"mime"`
	Size int64  `json:"size"`
	ETag string `json:"etag"`
}

// Manifest is the durable table of contents of a partitioned resource.
type Manifest struct {
	Format string         `json:"format"`
	Parts  []ManifestPart `json:"parts"`
}

// UploadFile sends a whole file in one request. The block, file name and
// version travel as query parameters; the body is the raw file.
func (c *Client) UploadFile(ctx context.Context, up FileUpload) (*FileResult, error) {
	query := url.Values{}
	query.Set("block_id", up.BlockID)
	query.Set("file_name", up.FileName)
	query.Set("version_id", up.VersionID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+pathFileDirect+"?"+query.Encode(), bytes.NewReader(up.Data))
	if err != nil {
		return nil, fmt.Errorf("upload file: failed to create request: %w", err)
	}
	contentType := up.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)

	_, body, err := c.send(ctx, "upload_file", req, true)
	if err != nil {
		return nil, err
	}

	var result FileResult
	if err := decode("upload_file", body, &result); err != nil {
		return nil, err
	}
	telemetry.RecordUpload(ctx, "file", int64(len(up.Data)))
	c.logger.Info("uploaded file", "block_id", up.BlockID, "file_name", up.FileName, "version_id", up.VersionID, "etag", result.ETag)
	return &result, nil
}

// UploadPart sends one part, base64-encoded, through the direct part endpoint.
func (c *Client) UploadPart(ctx context.Context, up PartUpload) (*PartResult, error) {
	payload := map[string]string{
		"user_id":      up.UserID,
		"block_id":     up.BlockID,
		"version_id":   up.VersionID,
		"file_name":    up.FileName,
		"content":      base64.StdEncoding.EncodeToString(up.Content),
		"content_type": up.ContentType,
	}

	var result PartResult
	if err := c.postJSON(ctx, "upload_part", pathPartDirect, payload, &result); err != nil {
		return nil, fmt.Errorf("part %s: %w", up.FileName, err)
	}
	telemetry.RecordUpload(ctx, "part", result.Size)
	return &result, nil
}

// UploadManifest serializes manifest and writes it as manifest.json next to
// the resource's parts.
func (c *Client) UploadManifest(ctx context.Context, target Target, manifest any) (*PartResult, error) {
	data, err := json.Marshal(manifest)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal manifest: %w", err)
	}
	return c.UploadPart(ctx, PartUpload{
		UserID:      target.UserID,
		BlockID:     target.BlockID,
		VersionID:   target.VersionID,
		FileName:    ManifestName,
		ContentType: "application/json",
		Content:     data,
	})
}

// UploadPartitioned uploads every part, with at most PartConcurrency in
// flight, then writes the manifest. The manifest records the etag and size
// reported by the store and is only written once all parts have succeeded.
func (c *Client) UploadPartitioned(ctx context.Context, target Target, parts []models.PartDescriptor) (*Manifest, error) {
	entries := make([]ManifestPart, len(parts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.PartConcurrency)
	for i, part := range parts {
		g.Go(func() error {
			result, err := c.UploadPart(gctx, PartUpload{
				UserID:      target.UserID,
				BlockID:     target.BlockID,
				VersionID:   target.VersionID,
				FileName:    part.Name,
				ContentType: part.Mime,
				Content:     part.Bytes,
			})
			if err != nil {
				return err
			}
			entries[i] = ManifestPart{
				Name: part.Name,
				Mime: part.Mime,
				Size: result.Size,
				ETag: result.ETag,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	manifest := &Manifest{Format: FormatPartitioned, Parts: entries}
	if _, err := c.UploadManifest(ctx, target, manifest); err != nil {
		return nil, fmt.Errorf("manifest: %w", err)
	}

	c.logger.Info("uploaded partitioned resource", "resource_key", target.Key(), "parts", len(parts))
	return manifest, nil
}
