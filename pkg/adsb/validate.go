package adsb

// Plausibility bounds. Values outside them are treated as sensor error
// and the whole candidate is dropped, never clamped.
const (
	DefaultAltitudeMinFt = -1000.0
	DefaultAltitudeMaxFt = 60000.0
	DefaultSpeedMinKts   = 30.0
	DefaultSpeedMaxKts   = 700.0
)

// IngestStats counts what happened to a batch at the ingestion boundary.
type IngestStats struct {
	Received          int `json:"received"`
	Accepted          int `json:"accepted"`
	DroppedNoPosition int `json:"droppedNoPosition"`
	DroppedBounds     int `json:"droppedBounds"`
	DroppedAltitude   int `json:"droppedAltitude"`
	DroppedSpeed      int `json:"droppedSpeed"`
}

// Dropped returns the total number of rejected candidates.
func (s IngestStats) Dropped() int {
	return s.DroppedNoPosition + s.DroppedBounds + s.DroppedAltitude + s.DroppedSpeed
}

// Validator rejects implausible observation candidates before they reach
// the tracking store.
type Validator struct {
	AltitudeMin float64
	AltitudeMax float64
	SpeedMin    float64
	SpeedMax    float64

	// ExemptGroundSpeed skips the speed check for aircraft on the ground,
	// keeping taxiing and parked traffic
	ExemptGroundSpeed bool
}

// DefaultValidator returns a validator using the default plausibility bounds.
func DefaultValidator() Validator {
	return Validator{
		AltitudeMin: DefaultAltitudeMinFt,
		AltitudeMax: DefaultAltitudeMaxFt,
		SpeedMin:    DefaultSpeedMinKts,
		SpeedMax:    DefaultSpeedMaxKts,
	}
}

// candidate is a decoded observation whose position may still be missing.
type candidate struct {
	record    AircraftRecord
	latitude  *float64
	longitude *float64
}

// rejection reasons
const (
	accepted = iota
	noPosition
	outOfBounds
	badAltitude
	badSpeed
)

func (v Validator) check(c candidate) int {
	if c.record.ID == "" || c.latitude == nil || c.longitude == nil {
		return noPosition
	}
	lat, lon := *c.latitude, *c.longitude
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return outOfBounds
	}
	if alt := c.record.Position.Altitude; alt != nil {
		if *alt < v.AltitudeMin || *alt > v.AltitudeMax {
			return badAltitude
		}
	}
	if spd := c.record.Velocity.Speed; spd != nil && !(v.ExemptGroundSpeed && c.record.Position.OnGround) {
		if *spd < v.SpeedMin || *spd > v.SpeedMax {
			return badSpeed
		}
	}
	return accepted
}

// filter converts candidates to records, dropping the implausible ones.
func (v Validator) filter(cands []candidate) ([]AircraftRecord, IngestStats) {
	stats := IngestStats{Received: len(cands)}
	out := make([]AircraftRecord, 0, len(cands))
	for _, c := range cands {
		switch v.check(c) {
		case noPosition:
			stats.DroppedNoPosition++
		case outOfBounds:
			stats.DroppedBounds++
		case badAltitude:
			stats.DroppedAltitude++
		case badSpeed:
			stats.DroppedSpeed++
		default:
			rec := c.record
			rec.Position.Latitude = *c.latitude
			rec.Position.Longitude = *c.longitude
			out = append(out, rec)
			stats.Accepted++
		}
	}
	return out, stats
}

// Filter applies the validator to already-decoded records. Records built
// in memory always carry a position, so only range checks apply.
func (v Validator) Filter(records []AircraftRecord) ([]AircraftRecord, IngestStats) {
	cands := make([]candidate, len(records))
	for i := range records {
		lat, lon := records[i].Position.Latitude, records[i].Position.Longitude
		cands[i] = candidate{record: records[i], latitude: &lat, longitude: &lon}
	}
	return v.filter(cands)
}
