package cluster

import (
	"encoding/json"
	"math"

	"github.com/paulmach/orb"
)

// Coordinate is a geographic position in degrees
type Coordinate struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lon float64 `json:"lon" yaml:"lon"`
}

// Valid reports whether the coordinate is finite with latitude in
// [-90, 90]. Any finite longitude is accepted and wrapped on projection.
func (c Coordinate) Valid() bool {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lon) || math.IsInf(c.Lat, 0) || math.IsInf(c.Lon, 0) {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90
}

// Point returns the coordinate as an orb point (lon, lat order)
func (c Coordinate) Point() orb.Point {
	return orb.Point{c.Lon, c.Lat}
}

// Marker is one geotagged photo supplied by the caller
type Marker struct {
	ID int `json:"id"`
	Coordinate
	NativeZoom int `json:"zoom"`
	Year       int `json:"year,omitempty"`
}

// UnmarshalJSON leaves lat and lon as NaN when they are absent so the
// marker fails Valid and is skipped rather than placed at 0,0.
func (m *Marker) UnmarshalJSON(data []byte) error {
	type plain Marker
	p := plain{Coordinate: Coordinate{Lat: math.NaN(), Lon: math.NaN()}}
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*m = Marker(p)
	return nil
}

// Viewport is the visible geographic rectangle. Only TopLeft anchors the
// screen origin; the other corners are carried for callers and previews.
type Viewport struct {
	TopLeft     Coordinate `json:"topLeft"`
	TopRight    Coordinate `json:"topRight"`
	BottomLeft  Coordinate `json:"bottomLeft"`
	BottomRight Coordinate `json:"bottomRight"`
}

// NewViewport builds an axis-aligned viewport from two opposite corners
func NewViewport(topLeft, bottomRight Coordinate) Viewport {
	return Viewport{
		TopLeft:     topLeft,
		TopRight:    Coordinate{Lat: topLeft.Lat, Lon: bottomRight.Lon},
		BottomLeft:  Coordinate{Lat: bottomRight.Lat, Lon: topLeft.Lon},
		BottomRight: bottomRight,
	}
}

// Valid reports whether every corner is a valid coordinate
func (v Viewport) Valid() bool {
	return v.TopLeft.Valid() && v.TopRight.Valid() && v.BottomLeft.Valid() && v.BottomRight.Valid()
}

// ProjectedItem is a marker positioned in screen space for one pass
type ProjectedItem struct {
	Marker Marker
	Screen orb.Point
	Cell   CellIndex
}

// Node is one displayable result: either an *Individual or a *Cluster.
// The set of implementations is closed.
type Node interface {
	// Position is where the node is drawn on the map
	Position() Coordinate
	// Count is the number of markers the node stands for
	Count() int

	node()
}

// Individual is a marker that has no neighbour within the threshold
type Individual struct {
	Marker Marker
}

func (i *Individual) Position() Coordinate { return i.Marker.Coordinate }
func (i *Individual) Count() int           { return 1 }
func (*Individual) node()                  {}

// Cluster is a connected group of two or more markers
type Cluster struct {
	Centroid Coordinate
	Members  []Marker
}

func (c *Cluster) Position() Coordinate { return c.Centroid }
func (c *Cluster) Count() int           { return len(c.Members) }
func (*Cluster) node()                  {}

// MemberIDs returns the ids of every marker represented by the node
func MemberIDs(n Node) []int {
	switch v := n.(type) {
	case *Individual:
		return []int{v.Marker.ID}
	case *Cluster:
		ids := make([]int, len(v.Members))
		for i, m := range v.Members {
			ids[i] = m.ID
		}
		return ids
	}
	return nil
}

// DeclusterHints maps a marker id to the zoom at which it separates from
// its nearest neighbour.
type DeclusterHints map[int]int
