package tracing

import "go.opentelemetry.io/otel/attribute"

// Attribute keys
const (
	AttrMCPToolName     = "mcp.tool.name"
	AttrMCPToolStatus   = "mcp.tool.status"
	AttrMCPToolDuration = "mcp.tool.duration_ms"
	AttrMCPResultSize   = "mcp.tool.result_size"

	AttrDatasetURL      = "poimap.dataset.url"
	AttrDatasetAccepted = "poimap.dataset.accepted"
	AttrDatasetRejected = "poimap.dataset.rejected"

	AttrFixPrompt = "poimap.fix.prompt"
	AttrFixState  = "poimap.fix.state"

	AttrTileZoom = "poimap.tile.zoom"
	AttrTileX    = "poimap.tile.x"
	AttrTileY    = "poimap.tile.y"

	AttrCacheType = "poimap.cache.type"
	AttrCacheHit  = "poimap.cache.hit"
	AttrCacheKey  = "poimap.cache.key"

	AttrHTTPMethod     = "http.method"
	AttrHTTPPath       = "http.path"
	AttrHTTPStatusCode = "http.status_code"
	AttrHTTPSessionID  = "http.session_id"

	AttrErrorType    = "error.type"
	AttrErrorMessage = "error.message"
)

// Status values
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Cache types
const (
	CacheTypeTile = "tile"
)

// MCPToolAttributes returns attributes for MCP tool execution
func MCPToolAttributes(toolName string, status string, durationMs int64, resultSize int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrMCPToolName, toolName),
		attribute.String(AttrMCPToolStatus, status),
		attribute.Int64(AttrMCPToolDuration, durationMs),
		attribute.Int(AttrMCPResultSize, resultSize),
	}
}

// TileAttributes returns attributes identifying a tile.
func TileAttributes(z, x, y int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(AttrTileZoom, z),
		attribute.Int(AttrTileX, x),
		attribute.Int(AttrTileY, y),
	}
}

// CacheAttributes returns attributes for cache operations
func CacheAttributes(cacheType string, hit bool, key string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrCacheType, cacheType),
		attribute.Bool(AttrCacheHit, hit),
		attribute.String(AttrCacheKey, key),
	}
}

// ErrorAttributes returns attributes for errors
func ErrorAttributes(err error) []attribute.KeyValue {
	if err == nil {
		return nil
	}
	return []attribute.KeyValue{
		attribute.String(AttrErrorType, "error"),
		attribute.String(AttrErrorMessage, err.Error()),
	}
}
