// Package tools exposes a map session as MCP tools.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/NERVsystems/poimap/pkg/monitoring"
	"github.com/NERVsystems/poimap/pkg/session"
	"github.com/NERVsystems/poimap/pkg/tracing"
)

// Handler is the signature shared by every tool handler.
type Handler func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)

// Registry contains all tool definitions and handlers
type Registry struct {
	logger  *slog.Logger
	session *session.Session
}

// NewRegistry creates a registry whose tools operate on sess.
func NewRegistry(logger *slog.Logger, sess *session.Session) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		logger:  logger.With("component", "tools"),
		session: sess,
	}
}

// ToolDefinition pairs an MCP tool with its handler.
type ToolDefinition struct {
	Name    string
	Tool    mcp.Tool
	Handler Handler
}

// GetToolDefinitions returns the list of all available tools.
func (r *Registry) GetToolDefinitions() []ToolDefinition {
	return []ToolDefinition{
		{Name: "get_version", Tool: GetVersionTool(), Handler: HandleGetVersion},

		// Catalog
		{Name: "list_locations", Tool: ListLocationsTool(), Handler: r.HandleListLocations},
		{Name: "nearest_location", Tool: NearestLocationTool(), Handler: r.HandleNearestLocation},
		{Name: "navigation_url", Tool: NavigationURLTool(), Handler: r.HandleNavigationURL},
		{Name: "refresh_catalog", Tool: RefreshCatalogTool(), Handler: r.HandleRefreshCatalog},

		// Positioning and camera
		{Name: "locate", Tool: LocateTool(), Handler: r.HandleLocate},
		{Name: "open_settings", Tool: OpenSettingsTool(), Handler: r.HandleOpenSettings},
		{Name: "fit_all", Tool: FitAllTool(), Handler: r.HandleFitAll},

		// Tiles
		{Name: "render_viewport", Tool: RenderViewportTool(), Handler: r.HandleRenderViewport},
		{Name: "tile_health", Tool: TileHealthTool(), Handler: r.HandleTileHealth},
		{Name: "reset_tile_health", Tool: ResetTileHealthTool(), Handler: r.HandleResetTileHealth},
		{Name: "tile_cache_stats", Tool: GetTileCacheTool(), Handler: r.HandleTileCache},
	}
}

// RegisterTools registers all tools with the MCP server.
func (r *Registry) RegisterTools(mcpServer *server.MCPServer) {
	for _, def := range r.GetToolDefinitions() {
		r.logger.Info("registering tool", "name", def.Name)
		mcpServer.AddTool(def.Tool, r.wrapWithTracing(def.Name, def.Handler))
	}
}

// wrapWithTracing wraps a tool handler with a span and request metrics.
func (r *Registry) wrapWithTracing(toolName string, handler Handler) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ctx, span := tracing.StartSpan(ctx, fmt.Sprintf("mcp.tool.%s", toolName),
			trace.WithAttributes(
				attribute.String(tracing.AttrMCPToolName, toolName),
			),
		)
		defer span.End()

		startTime := time.Now()
		result, err := handler(ctx, req)
		duration := time.Since(startTime)

		// Tool failures come back as error results, not Go errors.
		success := err == nil && (result == nil || !result.IsError)
		status := tracing.StatusSuccess
		if !success {
			status = tracing.StatusError
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}

		resultSize := 0
		if result != nil && result.Content != nil {
			if data, marshalErr := json.Marshal(result.Content); marshalErr == nil {
				resultSize = len(data)
			}
		}

		span.SetAttributes(tracing.MCPToolAttributes(toolName, status, duration.Milliseconds(), resultSize)...)
		monitoring.RecordMCPRequest(toolName, duration, success)

		r.logger.Debug("tool execution traced",
			"tool", toolName,
			"duration_ms", duration.Milliseconds(),
			"status", status,
			"result_size", resultSize,
		)

		return result, err
	}
}

// GetToolNames returns a list of all tool names.
func (r *Registry) GetToolNames() []string {
	defs := r.GetToolDefinitions()
	names := make([]string, len(defs))
	for i, def := range defs {
		names[i] = def.Name
	}
	return names
}
