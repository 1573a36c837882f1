package cluster

import (
	"math"

	"github.com/paulmach/orb"
)

const (
	// TileSize is the pixel width of the world at zoom 0
	TileSize = 256.0
	// MaxLatitude is the Web Mercator latitude limit in degrees
	MaxLatitude = 85.0511287798
)

// WorldSize returns the pixel width (and height) of the world at zoom
func WorldSize(zoom int) float64 {
	return TileSize * math.Exp2(float64(zoom))
}

// ClampLatitude limits lat to the range Web Mercator can represent
func ClampLatitude(lat float64) float64 {
	return math.Max(-MaxLatitude, math.Min(MaxLatitude, lat))
}

// WrapLongitude folds lon into [-180, 180)
func WrapLongitude(lon float64) float64 {
	w := math.Mod(lon+180, 360)
	if w < 0 {
		w += 360
	}
	return w - 180
}

// Project converts a geographic coordinate to world pixels at zoom.
// The origin is the top-left corner of the world (lon -180, lat MaxLatitude).
func Project(c Coordinate, zoom int) orb.Point {
	ws := WorldSize(zoom)
	lat := ClampLatitude(c.Lat)
	lon := WrapLongitude(c.Lon)

	sinLat := math.Sin(lat * math.Pi / 180)
	x := (lon + 180) / 360 * ws
	y := (0.5 - math.Log((1+sinLat)/(1-sinLat))/(4*math.Pi)) * ws
	return orb.Point{x, y}
}

// Unproject converts world pixels at zoom back to a geographic coordinate
func Unproject(p orb.Point, zoom int) Coordinate {
	ws := WorldSize(zoom)
	lon := p.X()/ws*360 - 180
	n := math.Pi - 2*math.Pi*p.Y()/ws
	lat := math.Atan(math.Sinh(n)) * 180 / math.Pi
	return Coordinate{Lat: lat, Lon: lon}
}

// alignWrappedX moves x by whole world widths until it lies within half a
// world of ref, so points across the antimeridian stay adjacent.
func alignWrappedX(x, ref, ws float64) float64 {
	for x < ref-ws/2 {
		x += ws
	}
	for x > ref+ws/2 {
		x -= ws
	}
	return x
}

// ToScreen returns the screen position of c relative to the viewport's
// top-left corner at zoom.
func ToScreen(v Viewport, zoom int, c Coordinate) orb.Point {
	ws := WorldSize(zoom)
	ref := Project(v.TopLeft, zoom)
	p := Project(c, zoom)

	x := alignWrappedX(p.X(), ref.X(), ws)
	return orb.Point{x - ref.X(), p.Y() - ref.Y()}
}
