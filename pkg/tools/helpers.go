package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/NERVsystems/poimap/pkg/coords"
	"github.com/NERVsystems/poimap/pkg/core"
	"github.com/NERVsystems/poimap/pkg/geo"
)

// ErrorResponse returns a plain error result.
func ErrorResponse(message string) *mcp.CallToolResult {
	return mcp.NewToolResultError(message)
}

// errorResult converts err to a tool error, keeping the code and guidance
// of a *core.Error.
func errorResult(err error) *mcp.CallToolResult {
	var e *core.Error
	if errors.As(err, &e) {
		return e.ToMCPResult()
	}
	return ErrorResponse(err.Error())
}

// jsonResult marshals v into a text result.
func jsonResult(logger *slog.Logger, v any) *mcp.CallToolResult {
	data, err := json.Marshal(v)
	if err != nil {
		logger.Error("failed to marshal result", "error", err)
		return ErrorResponse("Failed to generate result")
	}
	return mcp.NewToolResultText(string(data))
}

// parsePosition reads a position either from a "position" string
// ("lat,lng" or MGRS) or from numeric latitude and longitude arguments.
func parsePosition(req mcp.CallToolRequest) (geo.Location, error) {
	if raw := req.GetString("position", ""); raw != "" {
		res, err := coords.Parse(raw)
		if err != nil {
			return geo.Location{}, core.NewValidationError(core.ErrInvalidInput, err.Error())
		}
		return res.Location, nil
	}
	return core.ParseCoords(req, "latitude", "longitude")
}

// intArg reads an integer argument bounded to [lo, hi].
func intArg(req mcp.CallToolRequest, key string, def, lo, hi int) (int, error) {
	v := req.GetInt(key, def)
	if v < lo || v > hi {
		return 0, core.NewValidationError(core.ErrInvalidInput,
			fmt.Sprintf("%s must be between %d and %d, got %d", key, lo, hi, v))
	}
	return v, nil
}
