package cluster

import (
	"math"

	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb/geo"
)

// DefaultNearestLimit is the number of markers Nearest returns by default
const DefaultNearestLimit = 12

// nearestTolerance gives indexed points a non-degenerate bounding box
const nearestTolerance = 1e-12

// NearbyMarker is a marker with its great-circle distance from a query point
type NearbyMarker struct {
	Marker   Marker  `json:"marker"`
	Distance float64 `json:"distanceMeters"`
}

// markerEntry stores a marker on the unit sphere so that euclidean order
// matches great-circle order.
type markerEntry struct {
	marker Marker
	bounds rtreego.Rect
}

// Bounds implements rtreego.Spatial interface
func (e *markerEntry) Bounds() rtreego.Rect {
	return e.bounds
}

// NearestIndex answers k-nearest-marker queries
type NearestIndex struct {
	tree *rtreego.Rtree
}

// NewNearestIndex indexes the valid markers. Repeated ids are indexed once.
func NewNearestIndex(markers []Marker) *NearestIndex {
	tree := rtreego.NewTree(3, 25, 50) // 3D, min 25, max 50 entries per node
	seen := make(map[int]struct{}, len(markers))

	for _, m := range markers {
		if !m.Valid() {
			continue
		}
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		tree.Insert(&markerEntry{
			marker: m,
			bounds: unitSphere(m.Coordinate).ToRect(nearestTolerance),
		})
	}

	return &NearestIndex{tree: tree}
}

// Len returns the number of indexed markers
func (idx *NearestIndex) Len() int {
	return idx.tree.Size()
}

// Nearest returns up to n markers closest to position, nearest first
func (idx *NearestIndex) Nearest(position Coordinate, n int) []NearbyMarker {
	if n <= 0 || idx.tree.Size() == 0 || !position.Valid() {
		return []NearbyMarker{}
	}

	if size := idx.tree.Size(); n > size {
		n = size
	}

	results := idx.tree.NearestNeighbors(n, unitSphere(position))
	out := make([]NearbyMarker, 0, len(results))
	for _, s := range results {
		entry, ok := s.(*markerEntry)
		if !ok || entry == nil {
			continue
		}
		out = append(out, NearbyMarker{
			Marker:   entry.marker,
			Distance: geo.Distance(position.Point(), entry.marker.Point()),
		})
	}
	return out
}

// NearestMarkers is a one-shot helper that indexes markers and queries them
func NearestMarkers(markers []Marker, position Coordinate, n int) []NearbyMarker {
	return NewNearestIndex(markers).Nearest(position, n)
}

func unitSphere(c Coordinate) rtreego.Point {
	lat := c.Lat * math.Pi / 180
	lon := c.Lon * math.Pi / 180
	return rtreego.Point{
		math.Cos(lat) * math.Cos(lon),
		math.Cos(lat) * math.Sin(lon),
		math.Sin(lat),
	}
}
