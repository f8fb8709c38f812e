// Package mcp exposes the template pipeline as MCP tools.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/puppyone-ai/puppyone-sub007/internal/auth"
	"github.com/puppyone-ai/puppyone-sub007/internal/compat"
	"github.com/puppyone-ai/puppyone-sub007/internal/materializer"
	"github.com/puppyone-ai/puppyone-sub007/internal/storage"
	"github.com/puppyone-ai/puppyone-sub007/pkg/models"
)

// Instantiator materializes a stored template for a user.
type Instantiator interface {
	InstantiateByID(ctx context.Context, templateID, userID, workspaceID string, available []models.Model) (*materializer.Result, error)
}

type Server struct {
	mcpServer    *server.MCPServer
	instantiator Instantiator
}

func NewServer(instantiator Instantiator) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(
			"Template Materializer",
			"1.0.0",
			server.WithToolCapabilities(true),
		),
		instantiator: instantiator,
	}

	s.registerTools()
	return s
}

func (s *Server) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcp.NewTool(
			"instantiate_template",
			mcp.WithDescription("Instantiate a template into the caller's workspace and return the rewritten workflow"),
			mcp.WithString("template_id", mcp.Required(), mcp.Description("The id of the template package")),
			mcp.WithString("workspace_id", mcp.Required(), mcp.Description("The workspace receiving the workflow")),
			mcp.WithString("available_models_json", mcp.Description("JSON array of models available to the user")),
		),
		s.handleInstantiate,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"check_embedding_compatibility",
			mcp.WithDescription("Decide which embedding model to use for a template's vector collection"),
			mcp.WithString("available_models_json", mcp.Required(), mcp.Description("JSON array of models available to the user")),
			mcp.WithString("required_json", mcp.Description("JSON object with model_id, provider and fallback_strategy")),
		),
		s.handleCheckCompatibility,
	)
}

func (s *Server) handleInstantiate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	principal, ok := auth.PrincipalFromContext(ctx)
	if !ok {
		return mcp.NewToolResultError("Not authenticated"), nil
	}

	templateID, err := request.RequireString("template_id")
	if err != nil || templateID == "" {
		return mcp.NewToolResultError("Missing required parameter: template_id"), nil
	}
	workspaceID, err := request.RequireString("workspace_id")
	if err != nil || workspaceID == "" {
		return mcp.NewToolResultError("Missing required parameter: workspace_id"), nil
	}

	var available []models.Model
	if raw := request.GetString("available_models_json", ""); raw != "" {
		if err := json.Unmarshal([]byte(raw), &available); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Invalid available_models_json: %v", err)), nil
		}
	}

	result, err := s.instantiator.InstantiateByID(ctx, templateID, principal.UserID, workspaceID, available)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to instantiate: %v", err)), nil
	}

	jsonBytes, _ := json.Marshal(result)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleCheckCompatibility(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rawModels, err := request.RequireString("available_models_json")
	if err != nil {
		return mcp.NewToolResultError("Missing required parameter: available_models_json"), nil
	}
	var available []models.Model
	if err := json.Unmarshal([]byte(rawModels), &available); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Invalid available_models_json: %v", err)), nil
	}

	var required *models.EmbeddingModelRequirement
	if raw := request.GetString("required_json", ""); raw != "" {
		required = &models.EmbeddingModelRequirement{}
		if err := json.Unmarshal([]byte(raw), required); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Invalid required_json: %v", err)), nil
		}
	}

	jsonBytes, _ := json.Marshal(compat.CheckCompatibility(required, available))
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

// sessionContext carries the authenticated caller from the HTTP request into
// tool calls of the SSE session.
func sessionContext(ctx context.Context, r *http.Request) context.Context {
	if p, ok := auth.PrincipalFromContext(r.Context()); ok {
		ctx = auth.WithPrincipal(ctx, p)
	}
	if token, ok := storage.AccessTokenFromContext(r.Context()); ok {
		ctx = storage.WithAccessToken(ctx, token)
	}
	return ctx
}

func MountHTTPHandlers(mux *http.ServeMux, mcpServer *server.MCPServer) {
	sseServer := server.NewSSEServer(mcpServer,
		server.WithStaticBasePath("/mcp"),
		server.WithSSEContextFunc(sessionContext),
	)

	mux.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			sseServer.ServeHTTP(w, r)
			return
		}
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	})

	mux.HandleFunc("/mcp/sse", sseServer.ServeHTTP)
	mux.HandleFunc("/mcp/message", sseServer.ServeHTTP)
}
