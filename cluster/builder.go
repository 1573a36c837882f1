package cluster

// BuildClusters groups items into connected components where each link is
// at most grid.CellSize pixels long. Components are discovered in input
// order; single-member components become *Individual nodes.
func BuildClusters(items []ProjectedItem, grid *Grid) []Node {
	if len(items) == 0 {
		return []Node{}
	}

	limit := grid.CellSize * grid.CellSize
	visited := make([]bool, len(items))
	nodes := make([]Node, 0, len(items))

	for seed := range items {
		if visited[seed] {
			continue
		}
		visited[seed] = true

		component := []int{seed}
		for head := 0; head < len(component); head++ {
			for _, n := range Neighbors(items, grid, component[head]) {
				if visited[n.Index] || n.DistSq > limit {
					continue
				}
				visited[n.Index] = true
				component = append(component, n.Index)
			}
		}

		nodes = append(nodes, newNode(items, component))
	}

	return nodes
}

// newNode turns a component into an Individual or a Cluster whose centroid
// is the mean of member latitudes and longitudes.
func newNode(items []ProjectedItem, component []int) Node {
	if len(component) == 1 {
		return &Individual{Marker: items[component[0]].Marker}
	}

	members := make([]Marker, len(component))
	var sumLat, sumLon float64
	for i, idx := range component {
		m := items[idx].Marker
		members[i] = m
		sumLat += m.Lat
		sumLon += m.Lon
	}

	n := float64(len(members))
	return &Cluster{
		Centroid: Coordinate{Lat: sumLat / n, Lon: sumLon / n},
		Members:  members,
	}
}
