package core

import (
	"fmt"

	"github.com/NERVsystems/poimap/pkg/geo"
	"github.com/mark3labs/mcp-go/mcp"
)

// ValidateCoords checks if latitude and longitude are within valid ranges.
// Only caller-supplied coordinates are validated; dataset records are
// accepted as published.
func ValidateCoords(lat, lon float64) error {
	if lat < -90 || lat > 90 {
		return NewError(ErrInvalidLatitude, fmt.Sprintf("Latitude must be between -90 and 90, got %f", lat)).
			WithGuidance("Ensure latitude is in decimal degrees")
	}
	if lon < -180 || lon > 180 {
		return NewError(ErrInvalidLongitude, fmt.Sprintf("Longitude must be between -180 and 180, got %f", lon)).
			WithGuidance("Ensure longitude is in decimal degrees")
	}
	return nil
}

// ParseCoords extracts and validates a location from a tool request.
// Empty keys default to "latitude" and "longitude".
func ParseCoords(req mcp.CallToolRequest, latKey, lonKey string) (geo.Location, error) {
	if latKey == "" {
		latKey = "latitude"
	}
	if lonKey == "" {
		lonKey = "longitude"
	}

	args := req.GetArguments()
	if _, ok := args[latKey]; !ok {
		return geo.Location{}, NewValidationError(ErrMissingParameter, fmt.Sprintf("missing parameter %q", latKey))
	}
	if _, ok := args[lonKey]; !ok {
		return geo.Location{}, NewValidationError(ErrMissingParameter, fmt.Sprintf("missing parameter %q", lonKey))
	}

	lat := mcp.ParseFloat64(req, latKey, 0)
	lon := mcp.ParseFloat64(req, lonKey, 0)
	if err := ValidateCoords(lat, lon); err != nil {
		return geo.Location{}, err
	}
	return geo.Location{Latitude: lat, Longitude: lon}, nil
}
