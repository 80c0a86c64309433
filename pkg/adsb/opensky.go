package adsb

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Unit conversions for the OpenSky feed, which reports SI units.
const (
	MetersToFeet         = 3.28084
	MetersPerSecToKnots  = 1.943844
	MetersPerSecToFtMin  = 196.850394
	DefaultOpenSkyURL    = "https://opensky-network.org/api"
	defaultClientTimeout = 10 * time.Second
)

// OpenSkyClient implements the DataSource interface for the OpenSky
// Network REST API. API Documentation: https://openskynetwork.github.io/opensky-api/rest.html
// Anonymous users get a 10 second resolution and a daily credit budget;
// authenticated users get 5 seconds.
type OpenSkyClient struct {
	// baseURL is the API base URL (default: https://opensky-network.org/api)
	baseURL string

	// httpClient is the HTTP client used for API requests
	httpClient *http.Client

	// username and password enable basic auth when both are set
	username string
	password string

	validator Validator
}

// OpenSkyOptions configures an OpenSkyClient.
type OpenSkyOptions struct {
	BaseURL   string
	Username  string
	Password  string
	Timeout   time.Duration
	Validator Validator
}

// NewOpenSkyClient creates a new OpenSky Network API client.
func NewOpenSkyClient(opts OpenSkyOptions) *OpenSkyClient {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultOpenSkyURL
	}
	if opts.Timeout == 0 {
		opts.Timeout = defaultClientTimeout
	}
	if opts.Validator == (Validator{}) {
		opts.Validator = DefaultValidator()
	}
	return &OpenSkyClient{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		httpClient: &http.Client{Timeout: opts.Timeout},
		username:   opts.Username,
		password:   opts.Password,
		validator:  opts.Validator,
	}
}

// Name identifies the source in logs.
func (c *OpenSkyClient) Name() string {
	return "opensky"
}

// FetchStates returns all state vectors inside bounds.
// Uses the /states/all endpoint.
func (c *OpenSkyClient) FetchStates(ctx context.Context, bounds Bounds) ([]AircraftRecord, IngestStats, error) {
	u := c.baseURL + "/states/all"
	if !bounds.IsZero() {
		q := url.Values{}
		q.Set("lamin", fmt.Sprintf("%.4f", bounds.MinLatitude))
		q.Set("lomin", fmt.Sprintf("%.4f", bounds.MinLongitude))
		q.Set("lamax", fmt.Sprintf("%.4f", bounds.MaxLatitude))
		q.Set("lomax", fmt.Sprintf("%.4f", bounds.MaxLongitude))
		u += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, IngestStats{}, fmt.Errorf("failed to build request: %w", err)
	}
	if c.username != "" && c.password != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, IngestStats{}, fmt.Errorf("failed to fetch state vectors: %w", err)
	}
	defer resp.Body.Close()

	if err := checkResponse(resp); err != nil {
		return nil, IngestStats{}, err
	}

	var apiResp openSkyResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, IngestStats{}, fmt.Errorf("failed to parse API response: %w", err)
	}

	cands := make([]candidate, 0, len(apiResp.States))
	for _, row := range apiResp.States {
		cands = append(cands, parseStateVector(row))
	}

	records, stats := c.validator.filter(cands)
	return records, stats, nil
}

// Close is a no-op; the client holds no persistent connections.
func (c *OpenSkyClient) Close() error {
	return nil
}

// openSkyResponse is the /states/all payload. States is null when no
// aircraft match.
type openSkyResponse struct {
	Time   int64               `json:"time"`
	States [][]json.RawMessage `json:"states"`
}

// State vector column indices.
const (
	svICAO24 = iota
	svCallsign
	svOriginCountry
	svTimePosition
	svLastContact
	svLongitude
	svLatitude
	svBaroAltitude
	svOnGround
	svVelocity
	svTrueTrack
	svVerticalRate
	svSensors
	svGeoAltitude
	svSquawk
	svSpi
	svPositionSource
)

// parseStateVector decodes one positional state vector. Columns that are
// missing, null or of an unexpected type are treated as absent.
func parseStateVector(row []json.RawMessage) candidate {
	var c candidate
	rec := &c.record

	rec.ID = strings.ToLower(strings.TrimSpace(stringAt(row, svICAO24)))
	rec.Callsign = strings.TrimSpace(stringAt(row, svCallsign))
	rec.OriginCountry = stringAt(row, svOriginCountry)
	rec.Squawk = stringAt(row, svSquawk)

	c.longitude = floatAt(row, svLongitude)
	c.latitude = floatAt(row, svLatitude)

	// Prefer barometric altitude; fall back to geometric.
	alt := floatAt(row, svBaroAltitude)
	if alt == nil {
		alt = floatAt(row, svGeoAltitude)
	}
	rec.Position.Altitude = scale(alt, MetersToFeet)
	rec.Position.OnGround = boolAt(row, svOnGround)

	rec.Velocity.Speed = scale(floatAt(row, svVelocity), MetersPerSecToKnots)
	rec.Velocity.Heading = floatAt(row, svTrueTrack)
	rec.Velocity.VerticalRate = scale(floatAt(row, svVerticalRate), MetersPerSecToFtMin)

	rec.PositionSource = SourceUnknown
	if src := floatAt(row, svPositionSource); src != nil {
		rec.PositionSource = PositionSourceFromCode(int(*src))
	}

	return c
}

func stringAt(row []json.RawMessage, i int) string {
	if i >= len(row) {
		return ""
	}
	var s string
	if err := json.Unmarshal(row[i], &s); err != nil {
		return ""
	}
	return s
}

func floatAt(row []json.RawMessage, i int) *float64 {
	if i >= len(row) {
		return nil
	}
	var f *float64
	if err := json.Unmarshal(row[i], &f); err != nil {
		return nil
	}
	return f
}

func boolAt(row []json.RawMessage, i int) bool {
	if i >= len(row) {
		return false
	}
	var b bool
	if err := json.Unmarshal(row[i], &b); err != nil {
		return false
	}
	return b
}

func scale(v *float64, factor float64) *float64 {
	if v == nil {
		return nil
	}
	s := *v * factor
	return &s
}
