package tiles

import (
	"fmt"
	"math"
	"strconv"

	"github.com/NERVsystems/poimap/pkg/geo"
)

const (
	// TileSize is the edge of a standard web-mercator tile in pixels.
	TileSize = 256

	// MaxLatitude is the web-mercator latitude limit.
	MaxLatitude = 85.05112878
)

// Tile addresses one web-mercator tile.
type Tile struct {
	Z int `json:"z"`
	X int `json:"x"`
	Y int `json:"y"`
}

func (t Tile) String() string {
	return fmt.Sprintf("%d/%d/%d", t.Z, t.X, t.Y)
}

// LatLonToTile converts latitude, longitude and zoom to tile coordinates
func LatLonToTile(lat, lon float64, zoom int) (x, y int) {
	lat = math.Max(-MaxLatitude, math.Min(MaxLatitude, lat))
	n := math.Pow(2, float64(zoom))

	x = int(math.Floor((lon + 180.0) / 360.0 * n))
	y = int(math.Floor((1.0 - math.Log(math.Tan(lat*math.Pi/180.0)+1.0/math.Cos(lat*math.Pi/180.0))/math.Pi) / 2.0 * n))

	last := int(n) - 1
	return clampInt(x, 0, last), clampInt(y, 0, last)
}

// TileToLatLon returns the north-west corner of a tile.
func TileToLatLon(x, y, zoom int) (lat, lon float64) {
	n := math.Pow(2, float64(zoom))
	lon = float64(x)/n*360.0 - 180.0

	latRad := math.Atan(math.Sinh(math.Pi * (1 - 2*float64(y)/n)))
	lat = latRad * 180.0 / math.Pi

	return lat, lon
}

// Bounds returns the bounding box covered by the tile.
func (t Tile) Bounds() *geo.BoundingBox {
	north, west := TileToLatLon(t.X, t.Y, t.Z)
	south, east := TileToLatLon(t.X+1, t.Y+1, t.Z)
	bbox := geo.NewBoundingBox()
	bbox.ExtendWithPoint(north, west)
	bbox.ExtendWithPoint(south, east)
	return bbox
}

// MetersPerPixel returns the ground resolution at a latitude and zoom.
func MetersPerPixel(lat float64, zoom float64) float64 {
	return 2 * math.Pi * geo.EarthRadius * math.Cos(lat*math.Pi/180) / (TileSize * math.Pow(2, zoom))
}

// MapScale formats the approximate scale at 96 DPI, e.g. "1:10000".
func MapScale(lat float64, zoom float64) string {
	scale := MetersPerPixel(lat, zoom) / 0.00026
	return "1:" + strconv.FormatInt(int64(math.Round(scale)), 10)
}

// VisibleTiles returns the tiles covering a viewport of width x height
// pixels centered on center at a fractional zoom. Tiles are taken from the
// integer zoom below and ordered from the center outwards so the middle of
// the map loads first.
func VisibleTiles(center geo.Location, zoom float64, width, height int) []Tile {
	if width <= 0 || height <= 0 {
		return nil
	}
	z := int(math.Floor(zoom))
	if z < 0 {
		z = 0
	}
	n := 1 << z
	scale := math.Pow(2, zoom-float64(z))

	lat := math.Max(-MaxLatitude, math.Min(MaxLatitude, center.Latitude))
	latRad := lat * math.Pi / 180
	worldX := (center.Longitude + 180) / 360 * float64(n) * TileSize
	worldY := (1 - math.Log(math.Tan(latRad)+1/math.Cos(latRad))/math.Pi) / 2 * float64(n) * TileSize

	halfW := float64(width) / 2 / scale
	halfH := float64(height) / 2 / scale

	minX := int(math.Floor((worldX - halfW) / TileSize))
	maxX := int(math.Floor((worldX + halfW) / TileSize))
	minY := clampInt(int(math.Floor((worldY-halfH)/TileSize)), 0, n-1)
	maxY := clampInt(int(math.Floor((worldY+halfH)/TileSize)), 0, n-1)
	if maxX-minX >= n {
		minX, maxX = 0, n-1
	}

	cx, cy := worldX/TileSize, worldY/TileSize
	type ranked struct {
		tile Tile
		d    float64
	}
	var out []ranked
	seen := make(map[Tile]bool)
	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			t := Tile{Z: z, X: ((x % n) + n) % n, Y: y}
			if seen[t] {
				continue
			}
			seen[t] = true
			dx, dy := float64(x)+0.5-cx, float64(y)+0.5-cy
			out = append(out, ranked{tile: t, d: dx*dx + dy*dy})
		}
	}

	// insertion sort keeps equal distances in row order
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].d < out[j-1].d; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}

	tiles := make([]Tile, len(out))
	for i, r := range out {
		tiles[i] = r.tile
	}
	return tiles
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
