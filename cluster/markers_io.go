package cluster

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// DecodeMarkers reads a JSON array of markers
func DecodeMarkers(r io.Reader) ([]Marker, error) {
	var markers []Marker
	if err := json.NewDecoder(r).Decode(&markers); err != nil {
		return nil, fmt.Errorf("decoding markers: %w", err)
	}
	return markers, nil
}

// LoadMarkers reads a JSON marker file such as
//
//	[{"id": 1, "lat": 55.75, "lon": 37.61, "zoom": 13, "year": 1995}]
func LoadMarkers(path string) ([]Marker, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("marker file not found: %s", path)
		}
		return nil, fmt.Errorf("opening marker file: %w", err)
	}
	defer f.Close()

	return DecodeMarkers(f)
}
