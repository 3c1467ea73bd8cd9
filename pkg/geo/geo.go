// Package geo provides the coordinate types and great-circle math shared by
// the catalog, positioning and viewport packages.
package geo

import (
	"fmt"
	"math"
	"strconv"

	"github.com/golang/geo/s2"
)

// EarthRadius is the mean earth radius in meters used for distance calculations.
const EarthRadius = 6371000.0

// MapsSearchURL is the base of the outbound navigation link.
const MapsSearchURL = "https://www.google.com/maps/search/"

// Location is a WGS84 coordinate in decimal degrees.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// String formats the location as "lat,lng".
func (l Location) String() string {
	return strconv.FormatFloat(l.Latitude, 'f', -1, 64) + "," + strconv.FormatFloat(l.Longitude, 'f', -1, 64)
}

// HaversineDistance returns the great-circle distance in meters between two points.
func HaversineDistance(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadius * c
}

// Distance returns the great-circle distance in meters between a and b.
func Distance(a, b Location) float64 {
	return HaversineDistance(a.Latitude, a.Longitude, b.Latitude, b.Longitude)
}

// NavigationURL builds the external maps search link for a location.
// The query parameter carries "lat,lng" with the comma left unescaped.
func NavigationURL(l Location) string {
	return fmt.Sprintf("%s?api=1&query=%s", MapsSearchURL, l.String())
}

// BoundingBox is an axis-aligned lat/lng rectangle backed by an s2.Rect.
type BoundingBox struct {
	MinLat float64 `json:"minLat"`
	MinLon float64 `json:"minLon"`
	MaxLat float64 `json:"maxLat"`
	MaxLon float64 `json:"maxLon"`

	rect   s2.Rect
	points int
}

// NewBoundingBox returns an empty bounding box.
func NewBoundingBox() *BoundingBox {
	return &BoundingBox{}
}

// ExtendWithPoint grows the box to include the given point.
func (b *BoundingBox) ExtendWithPoint(lat, lon float64) {
	if b.points == 0 {
		b.rect = s2.EmptyRect()
	}
	b.rect = b.rect.AddPoint(s2.LatLngFromDegrees(lat, lon))
	b.points++
	if b.rect.IsEmpty() {
		return
	}
	b.MinLat = b.rect.Lat.Lo * 180 / math.Pi
	b.MaxLat = b.rect.Lat.Hi * 180 / math.Pi
	b.MinLon = b.rect.Lng.Lo * 180 / math.Pi
	b.MaxLon = b.rect.Lng.Hi * 180 / math.Pi
}

// IsEmpty reports whether the box covers nothing. Points outside the
// valid lat/lng range are not added to the rectangle, so a box fed only
// such points is empty.
func (b *BoundingBox) IsEmpty() bool {
	return b.points == 0 || b.rect.IsEmpty()
}

// Center returns the midpoint of the box.
func (b *BoundingBox) Center() Location {
	c := b.rect.Center()
	return Location{Latitude: c.Lat.Degrees(), Longitude: c.Lng.Degrees()}
}

// Span returns the latitude and longitude extent of the box in degrees.
func (b *BoundingBox) Span() (latSpan, lonSpan float64) {
	size := b.rect.Size()
	return size.Lat.Degrees(), size.Lng.Degrees()
}

// FitZoom returns the web-mercator zoom at which the box fits in a single
// 256px tile column, bounded by minZoom and maxZoom.
func (b *BoundingBox) FitZoom(minZoom, maxZoom float64) float64 {
	if b.IsEmpty() {
		return minZoom
	}
	latSpan, lonSpan := b.Span()
	span := math.Max(latSpan, lonSpan)
	if span <= 0 {
		return maxZoom
	}
	z := math.Log2(360 / span)
	return math.Max(minZoom, math.Min(maxZoom, z))
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
