package cluster

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

// ---------------------------------------------------------------------------
// WorldSize / ClampLatitude / WrapLongitude
// ---------------------------------------------------------------------------

func TestWorldSize(t *testing.T) {
	assert.Equal(t, 256.0, WorldSize(0))
	assert.Equal(t, 512.0, WorldSize(1))
	assert.Equal(t, 256.0*1024, WorldSize(10))
}

func TestClampLatitude(t *testing.T) {
	assert.Equal(t, MaxLatitude, ClampLatitude(90))
	assert.Equal(t, -MaxLatitude, ClampLatitude(-90))
	assert.Equal(t, 45.0, ClampLatitude(45))
}

func TestWrapLongitude(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0, 0},
		{179.5, 179.5},
		{180, -180},
		{-180, -180},
		{190, -170},
		{-190, 170},
		{540, -180},
		{-360, 0},
	}

	for _, tt := range tests {
		got := WrapLongitude(tt.in)
		assert.InDelta(t, tt.want, got, 1e-9, "WrapLongitude(%v)", tt.in)
		assert.GreaterOrEqual(t, got, -180.0)
		assert.Less(t, got, 180.0)
	}
}

// ---------------------------------------------------------------------------
// Project / Unproject
// ---------------------------------------------------------------------------

func TestProject(t *testing.T) {
	tests := []struct {
		name  string
		c     Coordinate
		zoom  int
		wantX float64
		wantY float64
	}{
		{"origin at zoom 0", Coordinate{0, 0}, 0, 128, 128},
		{"origin at zoom 1", Coordinate{0, 0}, 1, 256, 256},
		{"quarter east", Coordinate{0, 90}, 0, 192, 128},
		{"top-left of world", Coordinate{MaxLatitude, -180}, 0, 0, 0},
		{"bottom of world", Coordinate{-MaxLatitude, 0}, 0, 128, 256},
		{"latitude beyond limit is clamped", Coordinate{89.9, 0}, 0, 128, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Project(tt.c, tt.zoom)
			assert.InDelta(t, tt.wantX, p.X(), 1e-6)
			assert.InDelta(t, tt.wantY, p.Y(), 1e-6)
		})
	}
}

func TestProject_WrapsLongitude(t *testing.T) {
	a := Project(Coordinate{Lat: 10, Lon: 200}, 4)
	b := Project(Coordinate{Lat: 10, Lon: -160}, 4)
	assert.InDelta(t, a.X(), b.X(), 1e-9)
	assert.InDelta(t, a.Y(), b.Y(), 1e-9)
}

func TestUnproject_RoundTrip(t *testing.T) {
	for _, c := range []Coordinate{moscow, spb, {Lat: -33.86, Lon: 151.21}, {Lat: 0, Lon: -179.9}} {
		for _, zoom := range []int{0, 5, 13, 20} {
			got := Unproject(Project(c, zoom), zoom)
			assert.InDelta(t, c.Lat, got.Lat, 1e-9)
			assert.InDelta(t, c.Lon, got.Lon, 1e-9)
		}
	}
}

// ---------------------------------------------------------------------------
// ToScreen
// ---------------------------------------------------------------------------

func TestToScreen(t *testing.T) {
	t.Run("viewport corner is the origin", func(t *testing.T) {
		v := moscowViewport()
		p := ToScreen(v, testZoom, v.TopLeft)
		assert.InDelta(t, 0, p.X(), 1e-9)
		assert.InDelta(t, 0, p.Y(), 1e-9)
	})

	t.Run("offset matches world pixel difference", func(t *testing.T) {
		v := NewViewport(Coordinate{0, 0}, Coordinate{-10, 10})
		p := ToScreen(v, 0, Coordinate{0, 90})
		assert.InDelta(t, 64, p.X(), 1e-9)
		assert.InDelta(t, 0, p.Y(), 1e-9)
	})

	t.Run("south-east corner is positive", func(t *testing.T) {
		v := moscowViewport()
		p := ToScreen(v, testZoom, v.BottomRight)
		assert.Greater(t, p.X(), 0.0)
		assert.Greater(t, p.Y(), 0.0)
	})

	t.Run("antimeridian neighbours stay adjacent", func(t *testing.T) {
		v := NewViewport(Coordinate{Lat: 0, Lon: 179}, Coordinate{Lat: -1, Lon: -179})
		p := ToScreen(v, 0, Coordinate{Lat: 0, Lon: -179})
		assert.InDelta(t, 2.0/360*256, p.X(), 1e-9)
	})

	t.Run("point west of an antimeridian viewport", func(t *testing.T) {
		v := NewViewport(Coordinate{Lat: 0, Lon: -179}, Coordinate{Lat: -1, Lon: 179})
		p := ToScreen(v, 0, Coordinate{Lat: 0, Lon: 179})
		assert.InDelta(t, -2.0/360*256, p.X(), 1e-9)
	})

	t.Run("one zoom step doubles distances", func(t *testing.T) {
		v := moscowViewport()
		p1 := ToScreen(v, 10, moscow)
		p2 := ToScreen(v, 11, moscow)
		assert.InDelta(t, 2*p1.X(), p2.X(), 1e-6)
		assert.InDelta(t, 2*p1.Y(), p2.Y(), 1e-6)
	})
}

func TestCoordinate_Valid(t *testing.T) {
	tests := []struct {
		name string
		c    Coordinate
		want bool
	}{
		{"moscow", moscow, true},
		{"poles", Coordinate{Lat: 90, Lon: 0}, true},
		{"unwrapped longitude", Coordinate{Lat: 0, Lon: 270}, true},
		{"latitude too large", Coordinate{Lat: 91, Lon: 0}, false},
		{"longitude past a full turn", Coordinate{Lat: 0, Lon: 400}, true},
		{"nan latitude", Coordinate{Lat: math.NaN(), Lon: 0}, false},
		{"infinite longitude", Coordinate{Lat: 0, Lon: math.Inf(1)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.c.Valid())
		})
	}
}
