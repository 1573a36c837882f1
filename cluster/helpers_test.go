package cluster

import (
	"github.com/paulmach/orb"
)

// ---------------------------------------------------------------------------
// shared fixtures
// ---------------------------------------------------------------------------

const testZoom = 13

var (
	moscow = Coordinate{Lat: 55.7558, Lon: 37.6173}
	spb    = Coordinate{Lat: 59.9343, Lon: 30.3351}
)

// moscowViewport covers central Moscow
func moscowViewport() Viewport {
	return NewViewport(Coordinate{Lat: 56.0, Lon: 37.0}, Coordinate{Lat: 55.5, Lon: 38.0})
}

// markerAt places a marker at an approximate screen offset from the
// viewport's top-left corner at testZoom.
func markerAt(v Viewport, id int, x, y float64) Marker {
	ref := Project(v.TopLeft, testZoom)
	c := Unproject(orb.Point{ref.X() + x, ref.Y() + y}, testZoom)
	return Marker{ID: id, Coordinate: c, NativeZoom: testZoom}
}

// itemsAt builds items and a grid directly from exact screen positions.
// Marker ids are 1..n and coordinates are synthetic (lat = y, lon = x).
func itemsAt(cellSize float64, points ...orb.Point) ([]ProjectedItem, *Grid) {
	grid := NewGrid(cellSize)
	items := make([]ProjectedItem, len(points))
	for i, p := range points {
		idx := grid.CellOf(p)
		items[i] = ProjectedItem{
			Marker: Marker{ID: i + 1, Coordinate: Coordinate{Lat: p.Y(), Lon: p.X()}},
			Screen: p,
			Cell:   idx,
		}
		grid.cells[idx] = append(grid.cells[idx], i)
	}
	return items, grid
}

// nodeIDs flattens the member ids of every node
func nodeIDs(nodes []Node) [][]int {
	out := make([][]int, len(nodes))
	for i, n := range nodes {
		out[i] = MemberIDs(n)
	}
	return out
}
