package cluster

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// DefaultThreshold is the link distance in screen pixels. It is also the
// grid cell size so that every candidate lies in the 3x3 block around a cell.
const DefaultThreshold = 20.0

// CellIndex addresses one grid cell
type CellIndex struct {
	X, Y int
}

// Grid buckets projected items by screen cell. It is rebuilt every pass.
type Grid struct {
	CellSize float64
	cells    map[CellIndex][]int
}

// NewGrid creates an empty grid. A non-positive cellSize falls back to
// DefaultThreshold.
func NewGrid(cellSize float64) *Grid {
	if cellSize <= 0 {
		cellSize = DefaultThreshold
	}
	return &Grid{
		CellSize: cellSize,
		cells:    make(map[CellIndex][]int),
	}
}

// CellOf returns the cell containing a screen position
func (g *Grid) CellOf(p orb.Point) CellIndex {
	return CellIndex{
		X: int(math.Floor(p.X() / g.CellSize)),
		Y: int(math.Floor(p.Y() / g.CellSize)),
	}
}

// Cell returns the item indices stored in a cell
func (g *Grid) Cell(idx CellIndex) []int {
	return g.cells[idx]
}

// Len returns the number of occupied cells
func (g *Grid) Len() int {
	return len(g.cells)
}

// BuildStats reports the markers a grid build left out
type BuildStats struct {
	Skipped    []int // ids with invalid coordinates
	Duplicates []int // ids seen more than once; only the first was kept
}

// Build projects markers into screen space and indexes them using the
// default threshold. Invalid markers and repeated ids are dropped.
func Build(markers []Marker, viewport Viewport) ([]ProjectedItem, *Grid) {
	items, grid, _ := BuildWithStats(markers, viewport, DefaultThreshold)
	return items, grid
}

// BuildWithStats is Build with an explicit cell size, also returning what
// was dropped. Each marker is projected at its own NativeZoom. The first
// occurrence of an id wins.
func BuildWithStats(markers []Marker, viewport Viewport, cellSize float64) ([]ProjectedItem, *Grid, BuildStats) {
	grid := NewGrid(cellSize)
	items := make([]ProjectedItem, 0, len(markers))
	seen := make(map[int]struct{}, len(markers))
	var stats BuildStats

	for _, m := range markers {
		if !m.Valid() {
			stats.Skipped = append(stats.Skipped, m.ID)
			continue
		}
		if _, dup := seen[m.ID]; dup {
			stats.Duplicates = append(stats.Duplicates, m.ID)
			continue
		}
		seen[m.ID] = struct{}{}

		screen := ToScreen(viewport, m.NativeZoom, m.Coordinate)
		idx := grid.CellOf(screen)
		grid.cells[idx] = append(grid.cells[idx], len(items))
		items = append(items, ProjectedItem{
			Marker: m,
			Screen: screen,
			Cell:   idx,
		})
	}

	return items, grid, stats
}

// Neighbor is a candidate near a given item
type Neighbor struct {
	Index  int
	DistSq float64
}

// Neighbors returns every other item in the 3x3 cell block around item i
// with its squared screen distance. Order is unspecified and no distance
// filter is applied.
func Neighbors(items []ProjectedItem, grid *Grid, i int) []Neighbor {
	origin := items[i]
	var out []Neighbor

	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			idx := CellIndex{X: origin.Cell.X + dx, Y: origin.Cell.Y + dy}
			for _, j := range grid.cells[idx] {
				if j == i {
					continue
				}
				out = append(out, Neighbor{
					Index:  j,
					DistSq: planar.DistanceSquared(origin.Screen, items[j].Screen),
				})
			}
		}
	}

	return out
}
