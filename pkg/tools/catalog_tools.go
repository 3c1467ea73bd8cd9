package tools

import (
	"context"
	"math"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/NERVsystems/poimap/pkg/catalog"
	"github.com/NERVsystems/poimap/pkg/core"
	"github.com/NERVsystems/poimap/pkg/geo"
)

const (
	maxListLimit    = 500
	maxNearestLimit = 50
)

// ListLocationsTool returns a tool definition for listing the catalog.
func ListLocationsTool() mcp.Tool {
	return mcp.NewTool("list_locations",
		mcp.WithDescription("List the points of interest in the current catalog, in dataset order"),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of locations to return (0 for all)"),
			mcp.DefaultNumber(0),
		),
		mcp.WithNumber("offset",
			mcp.Description("Number of locations to skip"),
			mcp.DefaultNumber(0),
		),
	)
}

// ListLocationsOutput is the list_locations result.
type ListLocationsOutput struct {
	Total     int                      `json:"total"`
	Source    string                   `json:"source,omitempty"`
	LoadedAt  *time.Time               `json:"loaded_at,omitempty"`
	Locations []catalog.LocationRecord `json:"locations"`
}

// HandleListLocations returns a page of the current catalog.
func (r *Registry) HandleListLocations(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	logger := r.logger.With("tool", "list_locations")

	limit, err := intArg(req, "limit", 0, 0, maxListLimit)
	if err != nil {
		return errorResult(err), nil
	}
	offset, err := intArg(req, "offset", 0, 0, math.MaxInt)
	if err != nil {
		return errorResult(err), nil
	}

	cat := r.session.Catalog()
	out := ListLocationsOutput{Total: cat.Len(), Source: cat.Source, Locations: []catalog.LocationRecord{}}
	if !cat.LoadedAt.IsZero() {
		loaded := cat.LoadedAt
		out.LoadedAt = &loaded
	}

	if offset < len(cat.Records) {
		page := cat.Records[offset:]
		if limit > 0 && limit < len(page) {
			page = page[:limit]
		}
		out.Locations = page
	}
	return jsonResult(logger, out), nil
}

// NearestLocationTool returns a tool definition for the nearest search.
func NearestLocationTool() mcp.Tool {
	return mcp.NewTool("nearest_location",
		mcp.WithDescription("Find the catalog locations closest to a position. Give either position (\"lat,lng\" or MGRS) or latitude and longitude."),
		mcp.WithString("position",
			mcp.Description("Position as \"lat,lng\" or an MGRS reference such as 30TWN0512092718"),
		),
		mcp.WithNumber("latitude",
			mcp.Description("Latitude in decimal degrees"),
		),
		mcp.WithNumber("longitude",
			mcp.Description("Longitude in decimal degrees"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Number of locations to return, closest first"),
			mcp.DefaultNumber(1),
		),
	)
}

// NearbyLocation is a location with its distance from the query point.
type NearbyLocation struct {
	Location      catalog.LocationRecord `json:"location"`
	DistanceM     float64                `json:"distance_m"`
	NavigationURL string                 `json:"navigation_url"`
}

// NearestLocationOutput is the nearest_location result.
type NearestLocationOutput struct {
	From    geo.Location     `json:"from"`
	Results []NearbyLocation `json:"results"`
}

// HandleNearestLocation ranks the catalog by distance from a position.
func (r *Registry) HandleNearestLocation(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	logger := r.logger.With("tool", "nearest_location")

	from, err := parsePosition(req)
	if err != nil {
		logger.Debug("invalid position", "error", err)
		return errorResult(err), nil
	}
	limit, err := intArg(req, "limit", 1, 1, maxNearestLimit)
	if err != nil {
		return errorResult(err), nil
	}

	records := r.session.Catalog().Records
	if len(records) == 0 {
		return errorResult(catalog.ErrEmptyCatalog), nil
	}

	out := NearestLocationOutput{From: from}
	for _, ranked := range catalog.NearestN(from, records, limit) {
		out.Results = append(out.Results, NearbyLocation{
			Location:      ranked.Record,
			DistanceM:     ranked.Distance,
			NavigationURL: ranked.Record.NavigationURL(),
		})
	}
	return jsonResult(logger, out), nil
}

// NavigationURLTool returns a tool definition for outbound navigation.
func NavigationURLTool() mcp.Tool {
	return mcp.NewTool("navigation_url",
		mcp.WithDescription("Open external navigation to a catalog location and return the maps link"),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Location id from list_locations"),
		),
	)
}

// HandleNavigationURL hands the maps link for a location to the launcher.
func (r *Registry) HandleNavigationURL(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	logger := r.logger.With("tool", "navigation_url")

	id := req.GetString("id", "")
	if id == "" {
		return errorResult(core.NewValidationError(core.ErrMissingParameter, `missing parameter "id"`)), nil
	}

	link, err := r.session.Navigate(ctx, id)
	if err != nil {
		logger.Debug("navigation failed", "id", id, "error", err)
		return errorResult(err), nil
	}
	return jsonResult(logger, map[string]string{"id": id, "url": link}), nil
}

// RefreshCatalogTool returns a tool definition for re-ingesting the dataset.
func RefreshCatalogTool() mcp.Tool {
	return mcp.NewTool("refresh_catalog",
		mcp.WithDescription("Download the dataset again and replace the catalog. On failure the previous catalog is kept."),
	)
}

// RefreshCatalogOutput is the refresh_catalog result.
type RefreshCatalogOutput struct {
	Accepted int `json:"accepted"`
	Rejected int `json:"rejected"`
	Total    int `json:"total"`
}

// HandleRefreshCatalog re-runs ingestion.
func (r *Registry) HandleRefreshCatalog(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	logger := r.logger.With("tool", "refresh_catalog")

	res, err := r.session.Refresh(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(logger, RefreshCatalogOutput{
		Accepted: len(res.Accepted),
		Rejected: res.Rejected,
		Total:    r.session.Catalog().Len(),
	}), nil
}
