package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/oapi-codegen/runtime"

	"github.com/puppyone-ai/puppyone-sub007/internal/auth"
	"github.com/puppyone-ai/puppyone-sub007/internal/compat"
	"github.com/puppyone-ai/puppyone-sub007/pkg/models"
)

// InstantiateRequest is the body of POST /templates/:id/instantiate.
type InstantiateRequest struct {
	WorkspaceID     string         `json:"workspace_id"`
	AvailableModels []models.Model `json:"available_models"`
}

// CompatibilityRequest is the body of POST /compatibility.
type CompatibilityRequest struct {
	Required        *models.EmbeddingModelRequirement `json:"required,omitempty"`
	AvailableModels []models.Model                    `json:"available_models"`
}

func principal(c echo.Context) (*auth.Principal, error) {
	p, ok := auth.PrincipalFromContext(c.Request().Context())
	if !ok {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "no authenticated principal")
	}
	return p, nil
}

// ListTemplates returns the installed template ids
// (GET /api/v1/templates)
func (h *Handler) ListTemplates(c echo.Context) error {
	ids, err := h.templates.List(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if ids == nil {
		ids = []string{}
	}
	return c.JSON(http.StatusOK, map[string]any{"templates": ids})
}

// InstantiateTemplate materializes a template into the caller's storage
// (POST /api/v1/templates/{id}/instantiate)
func (h *Handler) InstantiateTemplate(c echo.Context) error {
	var templateID string
	err := runtime.BindStyledParameterWithOptions("simple", "id", c.Param("id"), &templateID,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid format for parameter id: "+err.Error())
	}

	p, err := principal(c)
	if err != nil {
		return err
	}

	var req InstantiateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	if req.WorkspaceID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "workspace_id is required")
	}

	result, err := h.instantiator.InstantiateByID(c.Request().Context(), templateID, p.UserID, req.WorkspaceID, req.AvailableModels)
	if err != nil {
		return echo.NewHTTPError(statusFor(err), err.Error())
	}
	return c.JSON(http.StatusOK, result)
}

// CheckCompatibility evaluates an embedding model requirement
// (POST /api/v1/compatibility)
func (h *Handler) CheckCompatibility(c echo.Context) error {
	var req CompatibilityRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	return c.JSON(http.StatusOK, compat.CheckCompatibility(req.Required, req.AvailableModels))
}

// ListInstantiations returns the caller's instantiation history
// (GET /api/v1/instantiations)
func (h *Handler) ListInstantiations(c echo.Context) error {
	if h.store == nil {
		return echo.NewHTTPError(http.StatusNotImplemented, "instantiation history is disabled")
	}
	p, err := principal(c)
	if err != nil {
		return err
	}

	limit := 50
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = n
	}

	list, err := h.store.ListByUser(c.Request().Context(), p.UserID, limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if list == nil {
		list = []*models.Instantiation{}
	}
	return c.JSON(http.StatusOK, list)
}
