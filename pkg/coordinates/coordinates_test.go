package coordinates

import (
	"math"
	"testing"
)

// TestDistanceKm tests the Haversine distance against known values.
func TestDistanceKm(t *testing.T) {
	tests := []struct {
		name      string
		from, to  Geographic
		expected  float64
		tolerance float64
	}{
		{"Same point", Geographic{Latitude: 10, Longitude: 10}, Geographic{Latitude: 10, Longitude: 10}, 0, 1e-9},
		{"One degree of latitude", Geographic{Latitude: 0, Longitude: 0}, Geographic{Latitude: 1, Longitude: 0}, 111.195, 0.01},
		{"One degree of longitude at equator", Geographic{Latitude: 0, Longitude: 0}, Geographic{Latitude: 0, Longitude: 1}, 111.195, 0.01},
		{"JFK to LHR", Geographic{Latitude: 40.6413, Longitude: -73.7781}, Geographic{Latitude: 51.4700, Longitude: -0.4543}, 5555, 30},
		{"Antimeridian", Geographic{Latitude: 0, Longitude: 179.5}, Geographic{Latitude: 0, Longitude: -179.5}, 111.195, 0.01},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DistanceKm(tt.from, tt.to)
			if math.Abs(got-tt.expected) > tt.tolerance {
				t.Errorf("Expected %.3f km, got %.3f km", tt.expected, got)
			}
		})
	}
}

// TestDistanceNauticalMiles tests the NM conversion.
func TestDistanceNauticalMiles(t *testing.T) {
	from := Geographic{Latitude: 0, Longitude: 0}
	to := Geographic{Latitude: 1, Longitude: 0}
	nm := DistanceNauticalMiles(from, to)
	if math.Abs(nm-60.04) > 0.05 {
		t.Errorf("Expected ~60 NM per degree of latitude, got %.3f", nm)
	}
}

// TestBearing tests cardinal bearings.
func TestBearing(t *testing.T) {
	origin := Geographic{Latitude: 0, Longitude: 0}
	tests := []struct {
		name     string
		to       Geographic
		expected float64
	}{
		{"North", Geographic{Latitude: 1, Longitude: 0}, 0},
		{"East", Geographic{Latitude: 0, Longitude: 1}, 90},
		{"South", Geographic{Latitude: -1, Longitude: 0}, 180},
		{"West", Geographic{Latitude: 0, Longitude: -1}, 270},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Bearing(origin, tt.to)
			if math.Abs(got-tt.expected) > 0.01 {
				t.Errorf("Expected bearing %.1f, got %.3f", tt.expected, got)
			}
		})
	}
}

// TestDestination tests that Destination inverts DistanceKm and Bearing.
func TestDestination(t *testing.T) {
	start := Geographic{Latitude: 38.9, Longitude: -77.0}
	for _, brg := range []float64{10, 45, 135, 270} {
		dest := Destination(start, brg, 0.5)
		if d := DistanceKm(start, dest); math.Abs(d-0.5) > 1e-6 {
			t.Errorf("bearing %.0f: expected 0.5 km, got %.9f", brg, d)
		}
		if b := Bearing(start, dest); math.Abs(b-brg) > 0.01 {
			t.Errorf("bearing %.0f: got %.3f back", brg, b)
		}
	}
}

// TestNormalizeAzimuth tests azimuth normalization to 0-360 range.
func TestNormalizeAzimuth(t *testing.T) {
	tests := []struct {
		input, expected float64
	}{
		{0, 0},
		{359, 359},
		{360, 0},
		{-90, 270},
		{725, 5},
	}
	for _, tt := range tests {
		if got := NormalizeAzimuth(tt.input); math.Abs(got-tt.expected) > 1e-9 {
			t.Errorf("NormalizeAzimuth(%.0f) = %.3f, expected %.0f", tt.input, got, tt.expected)
		}
	}
}
