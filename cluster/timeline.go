package cluster

// YearRange limits markers to a half-open span of years (Min, Max].
// Max <= 0 leaves the range unbounded above.
type YearRange struct {
	Min int `json:"min" yaml:"min"`
	Max int `json:"max" yaml:"max"`
}

// Contains reports whether year falls inside the range
func (r YearRange) Contains(year int) bool {
	if year <= r.Min {
		return false
	}
	return r.Max <= 0 || year <= r.Max
}

// FilterByYears returns the markers whose Year lies inside r, in input order
func FilterByYears(markers []Marker, r YearRange) []Marker {
	out := make([]Marker, 0, len(markers))
	for _, m := range markers {
		if r.Contains(m.Year) {
			out = append(out, m)
		}
	}
	return out
}
