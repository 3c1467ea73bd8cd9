package geo

import (
	"math"
	"testing"

	. "gopkg.in/check.v1"
)

// Hook up gocheck into the "go test" runner.
func Test(t *testing.T) { TestingT(t) }

type GeoSuite struct{}

var _ = Suite(&GeoSuite{})

func near(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func (s *GeoSuite) TestHaversineKnownPairs(c *C) {
	// Paris to London is roughly 343.5 km.
	d := HaversineDistance(48.8566, 2.3522, 51.5074, -0.1278)
	c.Assert(near(d, 343500, 1000), Equals, true, Commentf("got %f", d))

	// One degree of latitude along a meridian.
	d = HaversineDistance(0, 0, 1, 0)
	c.Assert(near(d, EarthRadius*math.Pi/180, 0.001), Equals, true, Commentf("got %f", d))
}

func (s *GeoSuite) TestDistanceIsSymmetricAndZeroOnSelf(c *C) {
	a := Location{Latitude: 40.4168, Longitude: -3.7038}
	b := Location{Latitude: 43.2630, Longitude: -2.9350}

	c.Assert(Distance(a, a), Equals, 0.0)
	c.Assert(near(Distance(a, b), Distance(b, a), 1e-9), Equals, true)
}

func (s *GeoSuite) TestNavigationURL(c *C) {
	c.Assert(NavigationURL(Location{Latitude: 48.85, Longitude: 2.35}), Equals,
		"https://www.google.com/maps/search/?api=1&query=48.85,2.35")
	c.Assert(NavigationURL(Location{Latitude: -33.8688, Longitude: 151.2093}), Equals,
		"https://www.google.com/maps/search/?api=1&query=-33.8688,151.2093")
}

func (s *GeoSuite) TestBoundingBox(c *C) {
	bbox := NewBoundingBox()
	c.Assert(bbox.IsEmpty(), Equals, true)
	c.Assert(bbox.FitZoom(3, 19), Equals, 3.0)

	bbox.ExtendWithPoint(10, 20)
	bbox.ExtendWithPoint(12, 24)
	c.Assert(bbox.IsEmpty(), Equals, false)

	c.Assert(near(bbox.MinLat, 10, 1e-9), Equals, true)
	c.Assert(near(bbox.MaxLat, 12, 1e-9), Equals, true)
	c.Assert(near(bbox.MinLon, 20, 1e-9), Equals, true)
	c.Assert(near(bbox.MaxLon, 24, 1e-9), Equals, true)

	center := bbox.Center()
	c.Assert(near(center.Latitude, 11, 1e-9), Equals, true)
	c.Assert(near(center.Longitude, 22, 1e-9), Equals, true)

	latSpan, lonSpan := bbox.Span()
	c.Assert(near(latSpan, 2, 1e-9), Equals, true)
	c.Assert(near(lonSpan, 4, 1e-9), Equals, true)

	c.Assert(near(bbox.FitZoom(3, 19), math.Log2(90), 1e-9), Equals, true)
}

func (s *GeoSuite) TestFitZoomSinglePoint(c *C) {
	bbox := NewBoundingBox()
	bbox.ExtendWithPoint(43.26, -2.93)
	c.Assert(bbox.FitZoom(3, 19), Equals, 19.0)
}

func (s *GeoSuite) TestBoundingBoxIgnoresOutOfRangePoints(c *C) {
	bbox := NewBoundingBox()
	bbox.ExtendWithPoint(95, 200)
	bbox.ExtendWithPoint(100, 190)
	c.Assert(bbox.IsEmpty(), Equals, true)
	c.Assert(bbox.FitZoom(3, 19), Equals, 3.0)

	bbox.ExtendWithPoint(43.26, -2.93)
	c.Assert(bbox.IsEmpty(), Equals, false)
	c.Assert(near(bbox.Center().Latitude, 43.26, 1e-9), Equals, true)
	c.Assert(near(bbox.Center().Longitude, -2.93, 1e-9), Equals, true)
}
