package adsb

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/unklstewy/ads-radar/pkg/coordinates"
)

// MaxAirplanesLiveRadiusNM is the largest radius the point endpoint accepts.
const MaxAirplanesLiveRadiusNM = 250.0

// AirplanesLiveClient implements the DataSource interface for airplanes.live API.
// API Documentation: https://airplanes.live/api-guide/
// Rate Limit: 1 request per second
type AirplanesLiveClient struct {
	// baseURL is the API base URL (default: https://api.airplanes.live/v2)
	baseURL string

	// httpClient is the HTTP client used for API requests
	httpClient *http.Client

	// center and radiusNM are used when a fetch has no bounds
	center   coordinates.Geographic
	radiusNM float64

	validator Validator
}

// AirplanesLiveOptions configures an AirplanesLiveClient.
type AirplanesLiveOptions struct {
	BaseURL   string
	Latitude  float64
	Longitude float64
	RadiusNM  float64
	Timeout   time.Duration
	Validator Validator
}

// NewAirplanesLiveClient creates a new airplanes.live API client.
func NewAirplanesLiveClient(opts AirplanesLiveOptions) *AirplanesLiveClient {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.airplanes.live/v2"
	}
	if opts.Timeout == 0 {
		opts.Timeout = defaultClientTimeout
	}
	if opts.RadiusNM <= 0 {
		opts.RadiusNM = MaxAirplanesLiveRadiusNM
	}
	if opts.Validator == (Validator{}) {
		opts.Validator = DefaultValidator()
	}
	return &AirplanesLiveClient{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		httpClient: &http.Client{Timeout: opts.Timeout},
		center:     coordinates.Geographic{Latitude: opts.Latitude, Longitude: opts.Longitude},
		radiusNM:   opts.RadiusNM,
		validator:  opts.Validator,
	}
}

// Name identifies the source in logs.
func (c *AirplanesLiveClient) Name() string {
	return "airplanes.live"
}

// FetchStates returns all aircraft around the center of bounds.
// Uses the /point/[lat]/[lon]/[radius] endpoint; the radius is the
// distance from the box center to its corner, capped at 250 NM.
func (c *AirplanesLiveClient) FetchStates(ctx context.Context, bounds Bounds) ([]AircraftRecord, IngestStats, error) {
	center, radiusNM := c.center, c.radiusNM
	if !bounds.IsZero() {
		lat, lon := bounds.Center()
		center = coordinates.Geographic{Latitude: lat, Longitude: lon}
		corner := coordinates.Geographic{Latitude: bounds.MaxLatitude, Longitude: bounds.MaxLongitude}
		radiusNM = math.Ceil(coordinates.DistanceNauticalMiles(center, corner))
	}
	if radiusNM > MaxAirplanesLiveRadiusNM {
		radiusNM = MaxAirplanesLiveRadiusNM
	}

	u := fmt.Sprintf("%s/point/%.4f/%.4f/%.0f", c.baseURL, center.Latitude, center.Longitude, radiusNM)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, IngestStats{}, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, IngestStats{}, fmt.Errorf("failed to fetch aircraft data: %w", err)
	}
	defer resp.Body.Close()

	if err := checkResponse(resp); err != nil {
		return nil, IngestStats{}, err
	}

	var apiResp airplanesLiveResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, IngestStats{}, fmt.Errorf("failed to parse API response: %w", err)
	}

	cands := make([]candidate, 0, len(apiResp.Aircraft))
	for _, ac := range apiResp.Aircraft {
		cands = append(cands, convertAirplanesLiveAircraft(ac))
	}

	records, stats := c.validator.filter(cands)
	return records, stats, nil
}

// Close is a no-op; there are no persistent connections.
func (c *AirplanesLiveClient) Close() error {
	return nil
}

// airplanesLiveResponse represents the JSON response from airplanes.live API.
type airplanesLiveResponse struct {
	Aircraft []airplanesLiveAircraft `json:"ac"`
	Total    int                     `json:"total"`
	Now      float64                 `json:"now"`
}

// airplanesLiveAircraft represents a single aircraft in the airplanes.live API response.
// Field documentation: https://airplanes.live/adsb-field-explanations/
type airplanesLiveAircraft struct {
	// Hex is the ICAO Mode S hex code (e.g., "a12345"); a leading "~"
	// marks a non-ICAO (TIS-B) address
	Hex string `json:"hex"`

	// Type is the message source, e.g. "adsb_icao", "mlat", "tisb_other"
	Type string `json:"type"`

	Flight *string  `json:"flight"`
	Lat    *float64 `json:"lat"`
	Lon    *float64 `json:"lon"`

	// AltBaro is barometric altitude in feet, or the string "ground"
	AltBaro interface{} `json:"alt_baro"`

	// AltGeom is geometric (GPS) altitude in feet
	AltGeom interface{} `json:"alt_geom"`

	Gs       *float64 `json:"gs"`
	Track    *float64 `json:"track"`
	BaroRate *float64 `json:"baro_rate"`
	Squawk   *string  `json:"squawk"`
}

// convertAirplanesLiveAircraft converts an airplanes.live aircraft to a candidate.
func convertAirplanesLiveAircraft(ac airplanesLiveAircraft) candidate {
	c := candidate{latitude: ac.Lat, longitude: ac.Lon}
	rec := &c.record

	rec.ID = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ac.Hex), "~"))
	if ac.Flight != nil {
		rec.Callsign = strings.TrimSpace(*ac.Flight)
	}
	if ac.Squawk != nil {
		rec.Squawk = *ac.Squawk
	}

	if s, ok := ac.AltBaro.(string); ok && s == "ground" {
		rec.Position.OnGround = true
	}
	// Prefer barometric altitude to match what a radar scope shows
	if alt := parseAltitude(ac.AltBaro); alt != nil {
		rec.Position.Altitude = alt
	} else {
		rec.Position.Altitude = parseAltitude(ac.AltGeom)
	}

	rec.Velocity.Speed = ac.Gs
	rec.Velocity.Heading = ac.Track
	rec.Velocity.VerticalRate = ac.BaroRate

	switch {
	case strings.HasPrefix(ac.Type, "adsb"), strings.HasPrefix(ac.Type, "adsr"):
		rec.PositionSource = SourceADSB
	case ac.Type == "mlat":
		rec.PositionSource = SourceMLAT
	default:
		rec.PositionSource = SourceUnknown
	}

	return c
}

// parseAltitude safely extracts altitude from interface{} which can be float64 or string.
// Returns nil if the value is invalid; "ground" maps to zero.
func parseAltitude(val interface{}) *float64 {
	switch v := val.(type) {
	case float64:
		return &v
	case string:
		if v == "ground" {
			zero := 0.0
			return &zero
		}
		return nil
	default:
		return nil
	}
}
