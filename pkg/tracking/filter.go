package tracking

import (
	"strings"

	"github.com/unklstewy/ads-radar/pkg/adsb"
)

// FilterState selects which aircraft are visible.
type FilterState struct {
	ShowCivilian bool    `json:"showCivilian"`
	ShowMilitary bool    `json:"showMilitary"`
	MinAltitude  float64 `json:"minAltitude"`
	MaxAltitude  float64 `json:"maxAltitude"`

	// Search matches callsign or id, case-insensitively. Surrounding
	// whitespace is ignored, so a blank search matches everything.
	Search string `json:"search"`
}

// DefaultFilterState shows everything between the surface and FL600.
func DefaultFilterState() FilterState {
	return FilterState{
		ShowCivilian: true,
		ShowMilitary: true,
		MinAltitude:  0,
		MaxAltitude:  adsb.DefaultAltitudeMaxFt,
	}
}

// Matches reports whether rec passes every active predicate.
func (fs FilterState) Matches(rec *adsb.AircraftRecord) bool {
	if rec.IsMilitary && !fs.ShowMilitary {
		return false
	}
	if !rec.IsMilitary && !fs.ShowCivilian {
		return false
	}

	// Aircraft without a reported altitude always pass the band
	if alt := rec.Position.Altitude; alt != nil {
		if *alt < fs.MinAltitude || *alt > fs.MaxAltitude {
			return false
		}
	}

	if q := strings.ToLower(strings.TrimSpace(fs.Search)); q != "" {
		return strings.Contains(strings.ToLower(rec.Callsign), q) ||
			strings.Contains(strings.ToLower(rec.ID), q)
	}
	return true
}

// Apply returns the records passing fs, in their original order. It never
// modifies records and returns an empty, non-nil slice when nothing passes.
func Apply(records []adsb.AircraftRecord, fs FilterState) []adsb.AircraftRecord {
	out := make([]adsb.AircraftRecord, 0, len(records))
	for i := range records {
		if fs.Matches(&records[i]) {
			out = append(out, records[i])
		}
	}
	return out
}
