package tracking

import (
	"time"

	"github.com/unklstewy/ads-radar/pkg/adsb"
	"github.com/unklstewy/ads-radar/pkg/coordinates"
)

// Trail defaults.
const (
	DefaultTrailMaxPoints    = 100
	DefaultTrailDuration     = 10 * time.Minute
	DefaultMinDisplacementKm = 0.1
	DefaultEvictAfter        = 120 * time.Second
)

// TrailOptions bounds the position history kept per aircraft.
type TrailOptions struct {
	// MaxPoints caps the trail length (default: 100)
	MaxPoints int

	// Duration is the maximum age of a trail point (default: 10 minutes)
	Duration time.Duration

	// MinDisplacementKm is the great-circle distance an aircraft must move
	// before a new point is recorded (default: 0.1 km)
	MinDisplacementKm float64
}

// DefaultTrailOptions returns the default trail bounds.
func DefaultTrailOptions() TrailOptions {
	return TrailOptions{
		MaxPoints:         DefaultTrailMaxPoints,
		Duration:          DefaultTrailDuration,
		MinDisplacementKm: DefaultMinDisplacementKm,
	}
}

func (o TrailOptions) withDefaults() TrailOptions {
	d := DefaultTrailOptions()
	if o.MaxPoints <= 0 {
		o.MaxPoints = d.MaxPoints
	}
	if o.Duration <= 0 {
		o.Duration = d.Duration
	}
	if o.MinDisplacementKm <= 0 {
		o.MinDisplacementKm = d.MinDisplacementKm
	}
	return o
}

// TrailTracker maintains the bounded position history of a record.
// It holds no per-aircraft state; the trail lives on the record.
type TrailTracker struct {
	opts TrailOptions
}

// NewTrailTracker creates a tracker. Zero fields in opts take defaults.
func NewTrailTracker(opts TrailOptions) *TrailTracker {
	return &TrailTracker{opts: opts.withDefaults()}
}

// Options returns the effective trail bounds.
func (t *TrailTracker) Options() TrailOptions {
	return t.opts
}

// Start seeds an empty trail with the record's current position.
func (t *TrailTracker) Start(rec *adsb.AircraftRecord, now time.Time) {
	rec.Trail = append(rec.Trail[:0], pointAt(rec.Position, now))
}

// AddPoint appends next to the record's trail when the aircraft moved at
// least the minimum displacement since prev, then applies the bounds:
// truncation to MaxPoints first, age pruning second. It reports whether
// a point was appended.
func (t *TrailTracker) AddPoint(rec *adsb.AircraftRecord, prev, next adsb.Position, now time.Time) bool {
	from := coordinates.Geographic{Latitude: prev.Latitude, Longitude: prev.Longitude}
	to := coordinates.Geographic{Latitude: next.Latitude, Longitude: next.Longitude}

	appended := false
	if coordinates.DistanceKm(from, to) >= t.opts.MinDisplacementKm {
		rec.Trail = append(rec.Trail, pointAt(next, now))
		appended = true
	}

	if n := len(rec.Trail); n > t.opts.MaxPoints {
		rec.Trail = append(rec.Trail[:0], rec.Trail[n-t.opts.MaxPoints:]...)
	}
	rec.Trail = t.Prune(rec.Trail, now)
	return appended
}

// Prune drops points older than Duration, reusing the backing array.
// Points are oldest first, so pruning stops at the first fresh one.
func (t *TrailTracker) Prune(trail []adsb.TrailPoint, now time.Time) []adsb.TrailPoint {
	cutoff := now.Add(-t.opts.Duration)
	i := 0
	for i < len(trail) && trail[i].Timestamp.Before(cutoff) {
		i++
	}
	if i == 0 {
		return trail
	}
	return append(trail[:0], trail[i:]...)
}

func pointAt(p adsb.Position, now time.Time) adsb.TrailPoint {
	return adsb.TrailPoint{
		Latitude:  p.Latitude,
		Longitude: p.Longitude,
		Altitude:  copyFloat(p.Altitude),
		Timestamp: now,
	}
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
