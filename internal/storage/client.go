// Package storage uploads materialized resources to the remote object
// storage service under a {userId}/{blockId}/{versionId} key hierarchy.
package storage

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

// DeploymentCloud selects per-user bearer tokens. Any other deployment mode
// authenticates with the fixed development token.
const DeploymentCloud = "cloud"

// maxErrorBody bounds how much of a failed response is kept in a TransferError.
const maxErrorBody = 64 * 1024

// Logger defines the logging interface compatible with the application logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds the storage client settings.
type Config struct {
	BaseURL         string
	DeploymentMode  string
	DevToken        string
	PartConcurrency int
	// Timeout bounds a single HTTP request. Zero means no timeout; callers
	// impose outer deadlines through the context.
	Timeout time.Duration
}

// Client talks to the object storage service.
type Client struct {
	cfg    Config
	http   *http.Client
	logger Logger
}

// NewClient creates a new Client.
func NewClient(cfg Config, logger Logger) *Client {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.PartConcurrency <= 0 {
		cfg.PartConcurrency = 1
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// ResourceKey builds the storage key prefix for one materialized resource.
func ResourceKey(userID, blockID, versionID string) string {
	return userID + "/" + blockID + "/" + versionID
}

type tokenKey struct{}

// WithAccessToken attaches the caller's bearer token to ctx. It is used in
// cloud deployments.
func WithAccessToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

// AccessTokenFromContext returns the token set by WithAccessToken.
func AccessTokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(tokenKey{}).(string)
	return token, ok && token != ""
}

func (c *Client) authorization(ctx context.Context) (string, error) {
	if !strings.EqualFold(c.cfg.DeploymentMode, DeploymentCloud) {
		return "Bearer " + c.cfg.DevToken, nil
	}
	token, ok := AccessTokenFromContext(ctx)
	if !ok {
		return "", fmt.Errorf("no access token in context for cloud storage request")
	}
	return "Bearer " + token, nil
}

// send executes req with authorization and returns the body of a 2xx
// response. Non-2xx responses become a *TransferError.
func (c *Client) send(ctx context.Context, op string, req *http.Request, authorize bool) (*http.Response, []byte, error) {
	ctx, span := telemetry.StartSpan(ctx, "storage."+op,
		attribute.String("http.method", req.Method),
		attribute.String("http.url", req.URL.Redacted()),
	)
	var err error
	defer func() { telemetry.EndSpan(span, err) }()

	if authorize {
		var auth string
		auth, err = c.authorization(ctx)
		if err != nil {
			return nil, nil, err
		}
		req.Header.Set("Authorization", auth)
	}

	start := time.Now()
	resp, err := c.http.Do(req.WithContext(ctx))
	if err != nil {
		c.logger.Error("storage request failed", "op", op, "url", req.URL.Redacted(), "error", err)
		err = fmt.Errorf("%s request failed: %w", op, err)
		return nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		err = fmt.Errorf("%s: failed to read response body: %w", op, err)
		return nil, nil, err
	}

	c.logger.Debug("storage request", "op", op, "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		err = &TransferError{Op: op, StatusCode: resp.StatusCode, Body: string(body)}
		return nil, nil, err
	}
	return resp, body, nil
}

// postJSON sends payload as JSON and decodes the response into out.
func (c *Client) postJSON(ctx context.Context, op, path string, payload, out any) error {
	requestBody, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%s: failed to marshal request body: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(requestBody))
	if err != nil {
		return fmt.Errorf("%s: failed to create request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	_, body, err := c.send(ctx, op, req, true)
	if err != nil {
		return err
	}
	return decode(op, body, out)
}

func decode(op string, body []byte, out any) error {
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: failed to decode response body %q: %w", op, truncate(body, 256), err)
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
