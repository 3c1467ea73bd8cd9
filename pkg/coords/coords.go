// Package coords parses coordinates from dataset cells and from user input.
//
// Dataset cells hold a single decimal degree value and may use a comma as
// the decimal separator. User input, such as a fixed position handed to the
// static positioning platform, may be a "lat, lng" pair or an MGRS string
// (e.g. "30TWN0512092718").
package coords

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/NERVsystems/poimap/pkg/geo"
	"github.com/akhenakh/mgrs"
)

// Format represents a coordinate format type
type Format int

const (
	FormatUnknown Format = iota
	FormatDecimal        // Decimal degrees (lat, lng)
	FormatMGRS           // Military Grid Reference System
)

// String returns the format name
func (f Format) String() string {
	switch f {
	case FormatDecimal:
		return "decimal"
	case FormatMGRS:
		return "mgrs"
	default:
		return "unknown"
	}
}

// ParseResult contains the parsed coordinate and metadata
type ParseResult struct {
	Location geo.Location
	Format   Format
	Original string
}

var (
	// Grid zone (1-60) + latitude band (C-X without I and O) + 100km square + 2-10 digits
	mgrsRegex = regexp.MustCompile(`(?i)^(\d{1,2})([C-HJ-NP-X])([A-HJ-NP-Z]{2})(\d{2,10})$`)

	// "lat, lng" or "lat lng"
	decimalRegex = regexp.MustCompile(`^(-?\d+\.?\d*)[,;\s]+(-?\d+\.?\d*)$`)
)

// ParseDegrees parses a single dataset cell as decimal degrees.
// Every comma is treated as a decimal separator before parsing and
// surrounding whitespace is ignored. Out-of-range values are accepted
// as-is, but NaN, infinities and hex floats are not coordinates.
func ParseDegrees(cell string) (float64, error) {
	s := strings.ReplaceAll(strings.TrimSpace(cell), ",", ".")
	if s == "" {
		return 0, fmt.Errorf("empty coordinate value")
	}
	if strings.ContainsAny(s, "xX") {
		return 0, fmt.Errorf("invalid coordinate value %q: not a decimal number", cell)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid coordinate value %q: %w", cell, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("invalid coordinate value %q: not a finite number", cell)
	}
	return v, nil
}

// Parse detects the coordinate format and converts to decimal degrees.
func Parse(input string) (*ParseResult, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, fmt.Errorf("empty coordinate string")
	}

	if result, err := ParseMGRS(input); err == nil {
		return result, nil
	}
	if result, err := ParseDecimal(input); err == nil {
		return result, nil
	}

	return nil, fmt.Errorf("unrecognized coordinate format: %q", input)
}

// DetectFormat returns the detected coordinate format without full parsing.
func DetectFormat(input string) Format {
	input = strings.TrimSpace(input)
	switch {
	case input == "":
		return FormatUnknown
	case mgrsRegex.MatchString(input):
		return FormatMGRS
	case decimalRegex.MatchString(input):
		return FormatDecimal
	}
	return FormatUnknown
}

// ParseMGRS parses an MGRS coordinate string.
func ParseMGRS(input string) (*ParseResult, error) {
	input = strings.TrimSpace(strings.ToUpper(input))

	if !mgrsRegex.MatchString(input) {
		return nil, fmt.Errorf("invalid MGRS format: %q", input)
	}

	lat, lon, err := mgrs.MGRSToLatLng(input)
	if err != nil {
		return nil, fmt.Errorf("MGRS conversion failed: %w", err)
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return nil, fmt.Errorf("MGRS conversion produced invalid coordinates: lat=%f, lon=%f", lat, lon)
	}

	return &ParseResult{
		Location: geo.Location{Latitude: lat, Longitude: lon},
		Format:   FormatMGRS,
		Original: input,
	}, nil
}

// ParseDecimal parses a "lat, lng" pair. Unlike dataset cells, user input
// is range checked.
func ParseDecimal(input string) (*ParseResult, error) {
	input = strings.TrimSpace(input)

	matches := decimalRegex.FindStringSubmatch(input)
	if matches == nil {
		return nil, fmt.Errorf("invalid decimal format: %q", input)
	}

	lat, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return nil, fmt.Errorf("invalid latitude: %s", matches[1])
	}
	lon, err := strconv.ParseFloat(matches[2], 64)
	if err != nil {
		return nil, fmt.Errorf("invalid longitude: %s", matches[2])
	}

	if lat < -90 || lat > 90 {
		return nil, fmt.Errorf("latitude out of range: %f", lat)
	}
	if lon < -180 || lon > 180 {
		return nil, fmt.Errorf("longitude out of range: %f", lon)
	}

	return &ParseResult{
		Location: geo.Location{Latitude: lat, Longitude: lon},
		Format:   FormatDecimal,
		Original: input,
	}, nil
}

// ToMGRS converts a lat/lng to an MGRS string.
// Precision is 1-5 representing: 10km, 1km, 100m, 10m, 1m
func ToMGRS(lat, lon float64, precision int) (string, error) {
	if precision < 1 || precision > 5 {
		precision = 5
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return "", fmt.Errorf("coordinates out of range: lat=%f, lon=%f", lat, lon)
	}

	result, err := mgrs.LatLngToMGRS(lat, lon, precision)
	if err != nil {
		return "", fmt.Errorf("MGRS conversion failed: %w", err)
	}
	return result, nil
}
