// Package api contains the HTTP handlers for the template service.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/puppyone-ai/puppyone-sub007/internal/materializer"
	"github.com/puppyone-ai/puppyone-sub007/internal/repository"
	"github.com/puppyone-ai/puppyone-sub007/internal/storage"
	"github.com/puppyone-ai/puppyone-sub007/internal/templates"
	"github.com/puppyone-ai/puppyone-sub007/pkg/models"
)

// Instantiator materializes a stored template for a user.
type Instantiator interface {
	InstantiateByID(ctx context.Context, templateID, userID, workspaceID string, available []models.Model) (*materializer.Result, error)
}

// TemplateLister enumerates the installed templates.
type TemplateLister interface {
	List(ctx context.Context) ([]string, error)
}

// Handler contains HTTP handlers for the template service REST API.
type Handler struct {
	instantiator Instantiator
	templates    TemplateLister
	store        repository.InstantiationStore
}

// NewHandler creates a new Handler. store may be nil when persistence is disabled.
func NewHandler(instantiator Instantiator, templates TemplateLister, store repository.InstantiationStore) *Handler {
	return &Handler{instantiator: instantiator, templates: templates, store: store}
}

// RegisterHandlers mounts the API routes on g.
func RegisterHandlers(g *echo.Group, h *Handler) {
	g.GET("/templates", h.ListTemplates)
	g.POST("/templates/:id/instantiate", h.InstantiateTemplate)
	g.POST("/compatibility", h.CheckCompatibility)
	g.GET("/instantiations", h.ListInstantiations)
}

// HealthStatus represents the health check response
type HealthStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service"`
	Database  string    `json:"database,omitempty"`
}

// HandleHealth reports service health. A failing database turns the status
// into 503.
func (h *Handler) HandleHealth(c echo.Context) error {
	status := HealthStatus{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Service:   "template-materializer",
	}
	if h.store != nil {
		status.Database = "ok"
		if err := h.store.Ping(c.Request().Context()); err != nil {
			status.Status = "degraded"
			status.Database = err.Error()
			return c.JSON(http.StatusServiceUnavailable, status)
		}
	}
	return c.JSON(http.StatusOK, status)
}

// ProblemDetails represents an RFC 7807 Problem Details response
type ProblemDetails struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail"`
	Instance string `json:"instance,omitempty"`
}

// ErrorHandler renders every error as RFC 7807 Problem Details.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status, detail := http.StatusInternalServerError, err.Error()
	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		if msg, ok := he.Message.(string); ok {
			detail = msg
		} else {
			detail = http.StatusText(status)
		}
	}

	problem := ProblemDetails{
		Type:     "about:blank",
		Title:    http.StatusText(status),
		Status:   status,
		Detail:   detail,
		Instance: c.Request().URL.Path,
	}
	c.Response().Header().Set(echo.HeaderContentType, "application/problem+json")
	c.Response().WriteHeader(status)
	_ = c.Echo().JSONSerializer.Serialize(c, problem, "")
}

// statusFor maps pipeline errors to HTTP statuses.
func statusFor(err error) int {
	var (
		validation *templates.ValidationError
		resolution *materializer.ResourceResolutionError
		transfer   *storage.TransferError
	)
	switch {
	case errors.Is(err, templates.ErrTemplateNotFound):
		return http.StatusNotFound
	case errors.As(err, &resolution):
		return http.StatusUnprocessableEntity
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &transfer):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
