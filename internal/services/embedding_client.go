package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/puppyone-ai/puppyone-sub007/internal/telemetry"
)

// HTTPEmbeddingClient is an HTTP implementation of the Embedder interface.
type HTTPEmbeddingClient struct {
	url    string
	client *http.Client
}

// NewHTTPEmbeddingClient creates a new HTTPEmbeddingClient. A zero timeout
// leaves deadlines to the caller's context.
func NewHTTPEmbeddingClient(url string, timeout time.Duration) *HTTPEmbeddingClient {
	return &HTTPEmbeddingClient{
		url:    strings.TrimRight(url, "/"),
		client: &http.Client{Timeout: timeout},
	}
}

// TriggerEmbedding posts the entries to {url}/embed.
func (c *HTTPEmbeddingClient) TriggerEmbedding(ctx context.Context, r EmbeddingRequest) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "embedding.trigger",
		attribute.String("collection", r.CollectionName),
		attribute.String("model_id", r.ModelID),
		attribute.Int("entries", len(r.Entries)),
	)
	defer func() { telemetry.EndSpan(span, err) }()

	requestBody, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/embed", bytes.NewReader(requestBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("embedding failed: status code %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

// DeferredEmbedder accepts every request without contacting a service. It is
// used when no embedding service is configured; collections stay pending
// until a later indexing run picks them up.
type DeferredEmbedder struct {
	logger Logger
}

// NewDeferredEmbedder creates a new DeferredEmbedder.
func NewDeferredEmbedder(logger Logger) *DeferredEmbedder {
	return &DeferredEmbedder{logger: logger}
}

// TriggerEmbedding logs the request and returns nil.
func (d *DeferredEmbedder) TriggerEmbedding(ctx context.Context, r EmbeddingRequest) error {
	d.logger.Info("embedding deferred", "collection", r.CollectionName, "model_id", r.ModelID, "entries", len(r.Entries))
	return nil
}
