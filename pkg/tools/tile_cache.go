package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/NERVsystems/poimap/pkg/core"
)

// GetTileCacheTool returns a tool definition for tile fetcher statistics.
func GetTileCacheTool() mcp.Tool {
	return mcp.NewTool("tile_cache_stats",
		mcp.WithDescription("Report how many tiles were downloaded, how many failed and how many are cached"),
	)
}

// HandleTileCache returns the tile fetcher counters.
func (r *Registry) HandleTileCache(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	logger := r.logger.With("tool", "tile_cache_stats")

	stats, ok := r.session.TileStats()
	if !ok {
		return errorResult(core.NewError(core.ErrTileFailure, "no tile source configured").
			WithGuidance("Set tiles.url_template to enable tile loading.")), nil
	}
	logger.Debug("retrieved tile stats", "cached_tiles", stats.CacheSize)
	return jsonResult(logger, stats), nil
}
