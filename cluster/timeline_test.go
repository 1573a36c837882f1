package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestYearRange_Contains(t *testing.T) {
	tests := []struct {
		name string
		r    YearRange
		year int
		want bool
	}{
		{"lower bound is exclusive", YearRange{Min: 1900, Max: 2000}, 1900, false},
		{"upper bound is inclusive", YearRange{Min: 1900, Max: 2000}, 2000, true},
		{"inside", YearRange{Min: 1900, Max: 2000}, 1950, true},
		{"above", YearRange{Min: 1900, Max: 2000}, 2001, false},
		{"unbounded above", YearRange{Min: 1900}, 2024, true},
		{"unbounded still has a floor", YearRange{Min: 1900}, 1850, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.r.Contains(tt.year))
		})
	}
}

func TestFilterByYears(t *testing.T) {
	markers := []Marker{
		{ID: 1, Year: 1890},
		{ID: 2, Year: 1920},
		{ID: 3, Year: 1945},
		{ID: 4, Year: 1990},
	}

	got := FilterByYears(markers, YearRange{Min: 1900, Max: 1945})
	assert.Equal(t, []Marker{markers[1], markers[2]}, got)

	assert.Empty(t, FilterByYears(markers, YearRange{Min: 2000}))
	assert.Empty(t, FilterByYears(nil, YearRange{}))
}
