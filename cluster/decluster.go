package cluster

import "math"

// DefaultMaxZoom caps decluster hints
const DefaultMaxZoom = 20

// EstimateDeclusterZoom returns, for every item, the zoom at which it would
// separate from its nearest neighbour, capped at DefaultMaxZoom.
func EstimateDeclusterZoom(items []ProjectedItem, grid *Grid, currentZoom int) DeclusterHints {
	return estimateDeclusterZoom(items, grid, currentZoom, DefaultMaxZoom)
}

func estimateDeclusterZoom(items []ProjectedItem, grid *Grid, currentZoom, maxZoom int) DeclusterHints {
	hints := make(DeclusterHints, len(items))
	for i, item := range items {
		nearest := math.Inf(1)
		for _, n := range Neighbors(items, grid, i) {
			if n.DistSq < nearest {
				nearest = n.DistSq
			}
		}
		hints[item.Marker.ID] = declusterZoom(math.Sqrt(nearest), grid.CellSize, currentZoom, maxZoom)
	}
	return hints
}

// declusterZoom maps a nearest-neighbour distance to a zoom level. Each zoom
// step doubles screen distances, so log2(threshold/d) steps separate a pair.
func declusterZoom(dist, threshold float64, currentZoom, maxZoom int) int {
	switch {
	case math.IsInf(dist, 1), dist > threshold:
		return currentZoom
	case dist <= 0:
		return min(maxZoom, currentZoom+1)
	}

	steps := int(math.Ceil(math.Log2(threshold / dist)))
	return min(maxZoom, currentZoom+max(1, steps))
}
