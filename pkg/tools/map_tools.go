package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/NERVsystems/poimap/pkg/geo"
	"github.com/NERVsystems/poimap/pkg/positioning"
	"github.com/NERVsystems/poimap/pkg/tiles"
)

// LocateTool returns a tool definition for centering on the device.
func LocateTool() mcp.Tool {
	return mcp.NewTool("locate",
		mcp.WithDescription("Get the device position, center the map on it and report the nearest location"),
		mcp.WithBoolean("prompt",
			mcp.Description("Ask for location permission if it has not been decided yet"),
			mcp.DefaultBool(true),
		),
	)
}

// LocateOutput is the locate result.
type LocateOutput struct {
	State   string           `json:"state"`
	Fix     *positioning.Fix `json:"fix,omitempty"`
	Nearest *NearbyLocation  `json:"nearest,omitempty"`
	Zoom    float64          `json:"zoom"`
}

// HandleLocate runs a user-initiated locate.
func (r *Registry) HandleLocate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	logger := r.logger.With("tool", "locate")

	res, err := r.session.Locate(ctx, req.GetBool("prompt", true))
	if err != nil {
		logger.Debug("locate failed", "state", res.State.String(), "remedy", res.State.Remedy().String())
		return errorResult(err), nil
	}

	out := LocateOutput{State: res.State.Kind.String(), Fix: res.State.Fix, Zoom: r.session.Viewport().CurrentZoom()}
	if res.Nearest != nil {
		out.Nearest = &NearbyLocation{
			Location:      res.Nearest.Record,
			DistanceM:     res.Nearest.Distance,
			NavigationURL: res.Nearest.Record.NavigationURL(),
		}
	}
	return jsonResult(logger, out), nil
}

// OpenSettingsTool returns a tool definition for the positioning remedy.
func OpenSettingsTool() mcp.Tool {
	return mcp.NewTool("open_settings",
		mcp.WithDescription("Open the device settings screen that would fix the last locate failure"),
	)
}

// HandleOpenSettings opens the location or app settings, as the current
// positioning state requires.
func (r *Registry) HandleOpenSettings(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	logger := r.logger.With("tool", "open_settings")

	remedy, err := r.session.OpenSettings(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(logger, map[string]string{
		"state":  r.session.Positioning().Kind.String(),
		"opened": remedy.String(),
	}), nil
}

// FitAllTool returns a tool definition for showing the whole catalog.
func FitAllTool() mcp.Tool {
	return mcp.NewTool("fit_all",
		mcp.WithDescription("Move the map so every catalog location is visible"),
	)
}

// CameraOutput describes the camera after a move request.
type CameraOutput struct {
	Moved  bool         `json:"moved"`
	Center geo.Location `json:"center"`
	Zoom   float64      `json:"zoom"`
}

// HandleFitAll frames the catalog.
func (r *Registry) HandleFitAll(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	logger := r.logger.With("tool", "fit_all")

	moved := r.session.FitAll()
	view := r.session.Viewport()
	return jsonResult(logger, CameraOutput{
		Moved:  moved,
		Center: view.CurrentCenter(),
		Zoom:   view.CurrentZoom(),
	}), nil
}

// RenderViewportTool returns a tool definition for loading visible tiles.
func RenderViewportTool() mcp.Tool {
	return mcp.NewTool("render_viewport",
		mcp.WithDescription("Fetch the map tiles covering the current camera for a screen of the given size"),
		mcp.WithNumber("width",
			mcp.Description("Viewport width in pixels"),
			mcp.DefaultNumber(1024),
		),
		mcp.WithNumber("height",
			mcp.Description("Viewport height in pixels"),
			mcp.DefaultNumber(768),
		),
	)
}

// HandleRenderViewport loads the visible tiles and reports how many failed.
func (r *Registry) HandleRenderViewport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	logger := r.logger.With("tool", "render_viewport")

	width, err := intArg(req, "width", 1024, 1, 8192)
	if err != nil {
		return errorResult(err), nil
	}
	height, err := intArg(req, "height", 768, 1, 8192)
	if err != nil {
		return errorResult(err), nil
	}

	report, err := r.session.LoadTiles(ctx, width, height)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(logger, report), nil
}

// TileHealthTool returns a tool definition for the tile failure banner.
func TileHealthTool() mcp.Tool {
	return mcp.NewTool("tile_health",
		mcp.WithDescription("Report how many map tiles failed to load since the last reset"),
	)
}

// TileHealthOutput is the tile_health result.
type TileHealthOutput struct {
	Healthy      bool    `json:"healthy"`
	FailureCount uint    `json:"failure_count"`
	LastError    *string `json:"last_error,omitempty"`
}

func tileHealthOutput(hs tiles.HealthState) TileHealthOutput {
	return TileHealthOutput{Healthy: hs.Healthy(), FailureCount: hs.FailureCount, LastError: hs.LastError}
}

// HandleTileHealth returns the current tile health snapshot.
func (r *Registry) HandleTileHealth(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(r.logger.With("tool", "tile_health"), tileHealthOutput(r.session.TileHealth())), nil
}

// ResetTileHealthTool returns a tool definition for the banner retry action.
func ResetTileHealthTool() mcp.Tool {
	return mcp.NewTool("reset_tile_health",
		mcp.WithDescription("Dismiss the tile failure banner and retry tiles on the next render"),
	)
}

// HandleResetTileHealth clears the failure count and the tile cache.
func (r *Registry) HandleResetTileHealth(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	r.session.RetryTiles()
	return jsonResult(r.logger.With("tool", "reset_tile_health"), tileHealthOutput(r.session.TileHealth())), nil
}
