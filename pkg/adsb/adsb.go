package adsb

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// PositionSource identifies how an aircraft position was obtained.
type PositionSource int

const (
	// SourceADSB is a position broadcast by the aircraft itself.
	SourceADSB PositionSource = iota

	// SourceASTERIX is a position relayed from ground radar.
	SourceASTERIX

	// SourceMLAT is a position computed by multilateration.
	SourceMLAT

	// SourceUnknown covers FLARM and anything the feed does not label.
	SourceUnknown
)

// PositionSourceFromCode maps the integer code used by state vector feeds
// (0=ADS-B, 1=ASTERIX, 2=MLAT) to a PositionSource.
func PositionSourceFromCode(code int) PositionSource {
	switch code {
	case 0:
		return SourceADSB
	case 1:
		return SourceASTERIX
	case 2:
		return SourceMLAT
	default:
		return SourceUnknown
	}
}

func (s PositionSource) String() string {
	switch s {
	case SourceADSB:
		return "ADS-B"
	case SourceASTERIX:
		return "ASTERIX"
	case SourceMLAT:
		return "MLAT"
	default:
		return "Unknown"
	}
}

// MarshalJSON renders the source as its display name.
func (s PositionSource) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON accepts the display name produced by MarshalJSON.
func (s *PositionSource) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	switch name {
	case "ADS-B":
		*s = SourceADSB
	case "ASTERIX":
		*s = SourceASTERIX
	case "MLAT":
		*s = SourceMLAT
	default:
		*s = SourceUnknown
	}
	return nil
}

// Position is an aircraft's reported location.
type Position struct {
	// Latitude in decimal degrees (-90 to +90)
	Latitude float64 `json:"lat" msgpack:"lat"`

	// Longitude in decimal degrees (-180 to +180)
	Longitude float64 `json:"lon" msgpack:"lon"`

	// Altitude in feet above mean sea level, nil when not reported
	Altitude *float64 `json:"altitude,omitempty" msgpack:"altitude"`

	// OnGround is true when the transponder reports a surface position
	OnGround bool `json:"onGround" msgpack:"on_ground"`
}

// Velocity holds the aircraft's movement. Every field is nullable.
type Velocity struct {
	// Speed is ground speed in knots
	Speed *float64 `json:"speed,omitempty" msgpack:"speed"`

	// Heading is the true track in degrees (0-360), 0 = North
	Heading *float64 `json:"heading,omitempty" msgpack:"heading"`

	// VerticalRate in feet per minute (positive = climbing)
	VerticalRate *float64 `json:"verticalRate,omitempty" msgpack:"vertical_rate"`
}

// TrailPoint is one historical position of an aircraft.
type TrailPoint struct {
	Latitude  float64   `json:"lat" msgpack:"lat"`
	Longitude float64   `json:"lon" msgpack:"lon"`
	Altitude  *float64  `json:"altitude,omitempty" msgpack:"altitude"`
	Timestamp time.Time `json:"timestamp" msgpack:"timestamp"`
}

// AircraftRecord is the last known state of one tracked aircraft.
// Records coming out of a DataSource are observations; records held by
// the tracking store additionally carry a trail and a derived
// military flag.
type AircraftRecord struct {
	// ID is the 24-bit ICAO transponder address in hex (e.g., "adf7c9")
	ID string `json:"id" msgpack:"id"`

	// Callsign is the flight number or registration, possibly blank
	Callsign string `json:"callsign" msgpack:"callsign"`

	// OriginCountry is the country inferred from the ICAO address block
	OriginCountry string `json:"originCountry" msgpack:"origin_country"`

	Position Position `json:"position" msgpack:"position"`
	Velocity Velocity `json:"velocity" msgpack:"velocity"`

	// Squawk is the four digit transponder code
	Squawk string `json:"squawk,omitempty" msgpack:"squawk"`

	PositionSource PositionSource `json:"positionSource" msgpack:"position_source"`

	// IsMilitary is derived from ID and Callsign by the store
	IsMilitary bool `json:"isMilitary" msgpack:"is_military"`

	// Trail holds recent positions, oldest first
	Trail []TrailPoint `json:"trail,omitempty" msgpack:"trail"`

	// LastSeen is when the store last ingested an observation for ID
	LastSeen time.Time `json:"lastSeen" msgpack:"last_seen"`
}

// Copy returns a deep copy of the record so callers can hand it out
// without sharing the trail or any nullable field.
func (a *AircraftRecord) Copy() AircraftRecord {
	cpy := *a
	cpy.Position.Altitude = copyFloat(a.Position.Altitude)
	cpy.Velocity.Speed = copyFloat(a.Velocity.Speed)
	cpy.Velocity.Heading = copyFloat(a.Velocity.Heading)
	cpy.Velocity.VerticalRate = copyFloat(a.Velocity.VerticalRate)
	cpy.Trail = nil
	if len(a.Trail) > 0 {
		cpy.Trail = make([]TrailPoint, len(a.Trail))
		for i, p := range a.Trail {
			p.Altitude = copyFloat(p.Altitude)
			cpy.Trail[i] = p
		}
	}
	return cpy
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// Bounds is a latitude/longitude bounding box used to scope a fetch.
// A zero Bounds means "everything the source will return".
type Bounds struct {
	MinLatitude  float64 `json:"min_latitude"`
	MinLongitude float64 `json:"min_longitude"`
	MaxLatitude  float64 `json:"max_latitude"`
	MaxLongitude float64 `json:"max_longitude"`
}

// IsZero reports whether no bounding box was set.
func (b Bounds) IsZero() bool {
	return b == Bounds{}
}

// Center returns the midpoint of the box.
func (b Bounds) Center() (lat, lon float64) {
	return (b.MinLatitude + b.MaxLatitude) / 2, (b.MinLongitude + b.MaxLongitude) / 2
}

// String formats the bounds for logging.
func (b Bounds) String() string {
	if b.IsZero() {
		return "global"
	}
	return fmt.Sprintf("[%.2f,%.2f]-[%.2f,%.2f]", b.MinLatitude, b.MinLongitude, b.MaxLatitude, b.MaxLongitude)
}

// DataSource is the interface that all ADS-B data providers must implement.
// This abstraction allows switching between the OpenSky state vector feed
// and the airplanes.live point query API.
type DataSource interface {
	// FetchStates returns the validated observations for the given area.
	// Candidates rejected by the ingestion validator are counted in
	// IngestStats, never returned as errors. On error no records are
	// returned.
	FetchStates(ctx context.Context, bounds Bounds) ([]AircraftRecord, IngestStats, error)

	// Name identifies the source in logs.
	Name() string

	// Close cleanly shuts down the data source connection.
	Close() error
}
