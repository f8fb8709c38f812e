package storage

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/puppyone-ai/puppyone-sub007/internal/telemetry"
	"github.com/puppyone-ai/puppyone-sub007/pkg/models"
)

// Legacy four-step multipart protocol: init, presigned URL per part, PUT,
// complete. The materializer uses the direct endpoints; this flow is kept
// for storage deployments that only expose presigned uploads.

const (
	pathMultipartInit     = "/upload/init"
	pathMultipartURL      = "/upload/get_upload_url"
	pathMultipartComplete = "/upload/complete"
)

// MultipartUpload identifies an in-progress multipart upload.
type MultipartUpload struct {
	UploadID string `json:"upload_id"`
	Key      string `json:"key"`
}

// CompletedPart is one part acknowledged by the presigned PUT.
type CompletedPart struct {
	ETag       string `json:"ETag"`
	PartNumber int    `json:"PartNumber"`
}

// CompleteResult describes the assembled object.
type CompleteResult struct {
	Key  string `json:"key"`
	Size int64  `json:"size"`
	ETag string `json:"etag"`
}

// InitMultipart starts a multipart upload.
func (c *Client) InitMultipart(ctx context.Context, blockID, fileName, contentType string) (*MultipartUpload, error) {
	payload := map[string]string{
		"block_id":     blockID,
		"file_name":    fileName,
		"content_type": contentType,
	}
	var upload MultipartUpload
	if err := c.postJSON(ctx, "init_multipart", pathMultipartInit, payload, &upload); err != nil {
		return nil, err
	}
	if upload.UploadID == "" || upload.Key == "" {
		return nil, fmt.Errorf("init_multipart: response is missing upload_id or key")
	}
	return &upload, nil
}

// PartURL asks for a presigned URL for partNumber (1-based).
func (c *Client) PartURL(ctx context.Context, upload *MultipartUpload, partNumber int) (string, error) {
	payload := map[string]any{
		"key":         upload.Key,
		"upload_id":   upload.UploadID,
		"part_number": partNumber,
	}
	var out struct {
		URL string `json:"url"`
	}
	if err := c.postJSON(ctx, "get_upload_url", pathMultipartURL, payload, &out); err != nil {
		return "", err
	}
	if out.URL == "" {
		return "", fmt.Errorf("get_upload_url: response is missing url")
	}
	return out.URL, nil
}

// PutPart uploads data to a presigned URL and returns the ETag header.
// Presigned URLs carry their own credentials, so no Authorization header is sent.
func (c *Client) PutPart(ctx context.Context, presignedURL string, data []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, presignedURL, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("put_part: failed to create request: %w", err)
	}
	resp, _, err := c.send(ctx, "put_part", req, false)
	if err != nil {
		return "", err
	}
	etag := resp.Header.Get("ETag")
	if etag == "" {
		return "", fmt.Errorf("put_part: response has no ETag header")
	}
	telemetry.RecordUpload(ctx, "multipart", int64(len(data)))
	return etag, nil
}

// CompleteMultipart assembles the uploaded parts into one object.
func (c *Client) CompleteMultipart(ctx context.Context, upload *MultipartUpload, parts []CompletedPart) (*CompleteResult, error) {
	payload := map[string]any{
		"key":       upload.Key,
		"upload_id": upload.UploadID,
		"parts":     parts,
	}
	var result CompleteResult
	if err := c.postJSON(ctx, "complete_multipart", pathMultipartComplete, payload, &result); err != nil {
		return nil, err
	}
	if result.Key == "" {
		result.Key = upload.Key
	}
	return &result, nil
}

// UploadMultipart runs the whole legacy protocol for parts, in order.
func (c *Client) UploadMultipart(ctx context.Context, blockID, fileName, contentType string, parts []models.PartDescriptor) (*CompleteResult, error) {
	upload, err := c.InitMultipart(ctx, blockID, fileName, contentType)
	if err != nil {
		return nil, err
	}

	completed := make([]CompletedPart, 0, len(parts))
	for _, part := range parts {
		number := part.Index + 1
		presigned, err := c.PartURL(ctx, upload, number)
		if err != nil {
			return nil, fmt.Errorf("part %d: %w", number, err)
		}
		etag, err := c.PutPart(ctx, presigned, part.Bytes)
		if err != nil {
			return nil, fmt.Errorf("part %d: %w", number, err)
		}
		completed = append(completed, CompletedPart{ETag: etag, PartNumber: number})
	}

	return c.CompleteMultipart(ctx, upload, completed)
}
