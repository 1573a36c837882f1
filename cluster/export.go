package cluster

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// NodeKind names the variant of a Node in exported payloads
type NodeKind string

const (
	KindIndividual NodeKind = "individual"
	KindCluster    NodeKind = "cluster"
)

// NodeSummary is the wire form of a Node
type NodeSummary struct {
	Kind          NodeKind `json:"kind"`
	Lat           float64  `json:"lat"`
	Lon           float64  `json:"lon"`
	Count         int      `json:"count"`
	IDs           []int    `json:"ids"`
	DeclusterZoom int      `json:"declusterZoom"`
}

// Summarize converts nodes to their wire form. A cluster's decluster zoom
// is the smallest hint among its members, the first zoom at which any of
// them splits off.
func Summarize(nodes []Node, hints DeclusterHints) []NodeSummary {
	out := make([]NodeSummary, 0, len(nodes))
	for _, n := range nodes {
		pos := n.Position()
		ids := MemberIDs(n)
		s := NodeSummary{
			Kind:          KindIndividual,
			Lat:           pos.Lat,
			Lon:           pos.Lon,
			Count:         n.Count(),
			IDs:           ids,
			DeclusterZoom: nodeDeclusterZoom(ids, hints),
		}
		if _, ok := n.(*Cluster); ok {
			s.Kind = KindCluster
		}
		out = append(out, s)
	}
	return out
}

func nodeDeclusterZoom(ids []int, hints DeclusterHints) int {
	best := 0
	for i, id := range ids {
		z := hints[id]
		if i == 0 || z < best {
			best = z
		}
	}
	return best
}

// NodesToFeatureCollection exports nodes as GeoJSON point features with
// cluster, point_count, ids and declusterZoom properties.
func NodesToFeatureCollection(nodes []Node, hints DeclusterHints) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, s := range Summarize(nodes, hints) {
		f := geojson.NewFeature(orb.Point{s.Lon, s.Lat})
		f.Properties["cluster"] = s.Kind == KindCluster
		f.Properties["point_count"] = s.Count
		f.Properties["ids"] = s.IDs
		f.Properties["declusterZoom"] = s.DeclusterZoom
		if s.Kind == KindIndividual {
			f.ID = s.IDs[0]
		}
		fc.Append(f)
	}
	return fc
}
