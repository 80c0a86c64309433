package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/brunoga/deep"
	"github.com/joho/godotenv"

	"github.com/unklstewy/ads-radar/pkg/classify"
)

// Config represents the complete application configuration.
type Config struct {
	Server     ServerConfig     `json:"server"`
	Database   DatabaseConfig   `json:"database"`
	ADSB       ADSBConfig       `json:"adsb"`
	Poller     PollerConfig     `json:"poller"`
	Tracking   TrackingConfig   `json:"tracking"`
	Validation ValidationConfig `json:"validation"`
	Military   MilitaryConfig   `json:"military"`
	Logging    LoggingConfig    `json:"logging"`
	Export     ExportConfig     `json:"export"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	// Port is the HTTP server port (default: 8080)
	Port string `json:"port"`

	// Host is the server bind address (default: "0.0.0.0")
	Host string `json:"host"`

	// AllowedOrigins lists CORS origins; empty allows any
	AllowedOrigins []string `json:"allowed_origins"`

	// PauseWhenIdle suspends polling while no websocket client is connected
	PauseWhenIdle bool `json:"pause_when_idle"`
}

// DatabaseConfig contains database connection settings for the
// snapshot archive.
type DatabaseConfig struct {
	// Enabled turns on snapshot archiving to PostgreSQL
	Enabled bool `json:"enabled"`

	// Driver is the database driver (postgres)
	Driver string `json:"driver"`

	// Host is the database server hostname
	Host string `json:"host"`

	// Port is the database server port
	Port int `json:"port"`

	// Database is the database name
	Database string `json:"database"`

	// Username for database authentication
	Username string `json:"username"`

	// Password for database authentication (should be loaded from environment)
	Password string `json:"password"`

	// SSLMode for PostgreSQL connections (disable, require, verify-ca, verify-full)
	SSLMode string `json:"ssl_mode"`

	// MaxOpenConns is the maximum number of open connections
	MaxOpenConns int `json:"max_open_conns"`

	// MaxIdleConns is the maximum number of idle connections
	MaxIdleConns int `json:"max_idle_conns"`
}

// ADSBConfig contains ADS-B data source configuration.
type ADSBConfig struct {
	// Sources is a list of configured ADS-B data sources; the first
	// enabled one is polled
	Sources []ADSBSource `json:"sources"`

	// Bounds limits the area fetched; all zero means the whole world
	Bounds BoundsConfig `json:"bounds"`
}

// ADSBSource represents a single ADS-B data source configuration.
type ADSBSource struct {
	// Name is a friendly name for this source
	Name string `json:"name"`

	// Type is the source type: "opensky" or "airplanes.live"
	Type string `json:"type"`

	// Enabled determines if this source should be used
	Enabled bool `json:"enabled"`

	// BaseURL is the API base URL
	BaseURL string `json:"base_url"`

	// Username and Password enable OpenSky basic auth
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`

	// TimeoutSeconds bounds a single HTTP request (default: 10)
	TimeoutSeconds int `json:"timeout_seconds"`
}

// BoundsConfig is the latitude/longitude box to fetch.
type BoundsConfig struct {
	MinLatitude  float64 `json:"min_latitude"`
	MinLongitude float64 `json:"min_longitude"`
	MaxLatitude  float64 `json:"max_latitude"`
	MaxLongitude float64 `json:"max_longitude"`
}

// PollerConfig controls the fetch schedule.
type PollerConfig struct {
	// IntervalSeconds is how often to refresh aircraft data (default: 10)
	IntervalSeconds int `json:"interval_seconds"`

	// MinIntervalSeconds is the minimum spacing between two fetches;
	// polls attempted sooner are skipped (default: IntervalSeconds)
	MinIntervalSeconds int `json:"min_interval_seconds"`

	// SweepOnError evicts stale aircraft even when a fetch fails
	SweepOnError bool `json:"sweep_on_error"`
}

// TrackingConfig bounds the state store and its trails.
type TrackingConfig struct {
	EvictAfterSeconds      int     `json:"evict_after_seconds"`
	TrailsEnabled          bool    `json:"trails_enabled"`
	TrailMaxPoints         int     `json:"trail_max_points"`
	TrailDurationSeconds   int     `json:"trail_duration_seconds"`
	TrailMinDisplacementKm float64 `json:"trail_min_displacement_km"`
}

// ValidationConfig holds the plausibility bounds applied at ingestion.
type ValidationConfig struct {
	AltitudeMinFt float64 `json:"altitude_min_ft"`
	AltitudeMaxFt float64 `json:"altitude_max_ft"`
	SpeedMinKts   float64 `json:"speed_min_kts"`
	SpeedMaxKts   float64 `json:"speed_max_kts"`

	// ExemptGroundSpeed keeps on-ground aircraft whose speed is outside
	// the speed bounds
	ExemptGroundSpeed bool `json:"exempt_ground_speed"`
}

// MilitaryConfig drives the military classifier.
type MilitaryConfig struct {
	// HexRanges are inclusive ICAO address blocks, e.g. "ADF7C8-AFFFFF"
	HexRanges []string `json:"hex_ranges"`

	// CallsignPrefixes are matched against the start of the callsign
	CallsignPrefixes []string `json:"callsign_prefixes"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level is debug, info, warn or error (default: info)
	Level string `json:"level"`

	// File is the log file path; empty logs to stderr
	File string `json:"file"`

	MaxSizeMB  int  `json:"max_size_mb"`
	MaxBackups int  `json:"max_backups"`
	MaxAgeDays int  `json:"max_age_days"`
	Compress   bool `json:"compress"`
}

// ExportConfig schedules read-only snapshots of the store.
type ExportConfig struct {
	// Schedule is a cron expression such as "@every 5m"; empty disables exports
	Schedule string `json:"schedule"`

	// Path is the snapshot file; the extension picks the encoding
	// (.msgpack.zst or .json). Empty skips file exports.
	Path string `json:"path"`

	// ToDatabase archives each snapshot when the database is enabled
	ToDatabase bool `json:"to_database"`

	// Keep is how many database snapshots to retain (default: 288)
	Keep int `json:"keep"`
}

// Load reads configuration from a JSON file, layered over DefaultConfig.
// If the file doesn't exist, the defaults are used. A .env file next to
// the config file is loaded into the environment before the ADS_RADAR_*
// overrides are applied.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		// Slices in the file replace the defaults rather than merging
		cfg.ADSB.Sources = nil
		cfg.Military = MilitaryConfig{}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
		defaults := DefaultConfig()
		if cfg.ADSB.Sources == nil {
			cfg.ADSB.Sources = defaults.ADSB.Sources
		}
		if cfg.Military.HexRanges == nil && cfg.Military.CallsignPrefixes == nil {
			cfg.Military = defaults.Military
		}
	}

	envFile := filepath.Join(filepath.Dir(path), ".env")
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	if err := cfg.applyEnvironmentOverrides(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the configuration to a JSON file.
func (c *Config) Save(path string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Clone returns a deep copy that shares no slices with c.
func (c *Config) Clone() *Config {
	cpy := deep.MustCopy(*c)
	return &cpy
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8080",
			Host: "0.0.0.0",
		},
		Database: DatabaseConfig{
			Enabled:      false,
			Driver:       "postgres",
			Host:         "localhost",
			Port:         5432,
			Database:     "adsradar",
			Username:     "adsradar",
			SSLMode:      "disable",
			MaxOpenConns: 10,
			MaxIdleConns: 2,
		},
		ADSB: ADSBConfig{
			Sources: []ADSBSource{
				{
					Name:           "opensky",
					Type:           "opensky",
					Enabled:        true,
					BaseURL:        "https://opensky-network.org/api",
					TimeoutSeconds: 10,
				},
				{
					Name:           "airplanes.live",
					Type:           "airplanes.live",
					Enabled:        false,
					BaseURL:        "https://api.airplanes.live/v2",
					TimeoutSeconds: 10,
				},
			},
		},
		Poller: PollerConfig{
			IntervalSeconds:    10,
			MinIntervalSeconds: 10,
		},
		Tracking: TrackingConfig{
			EvictAfterSeconds:      120,
			TrailsEnabled:          true,
			TrailMaxPoints:         100,
			TrailDurationSeconds:   600,
			TrailMinDisplacementKm: 0.1,
		},
		Validation: ValidationConfig{
			AltitudeMinFt: -1000,
			AltitudeMaxFt: 60000,
			SpeedMinKts:   30,
			SpeedMaxKts:   700,
		},
		Military: MilitaryConfig{
			HexRanges: []string{
				"ADF7C8-AFFFFF", // United States
				"43C000-43CFFF", // United Kingdom
				"3AA000-3AFFFF", // France
				"3B7000-3BFFFF", // France
				"3EA000-3EBFFF", // Germany
				"3F4000-3FBFFF", // Germany
				"33FF00-33FFFF", // Italy
				"350000-37FFFF", // Spain
				"480000-480FFF", // Netherlands
				"7CF800-7CFAFF", // Australia
				"C20000-C3FFFF", // Canada
			},
			CallsignPrefixes: []string{
				"RCH", "REACH", "CNV", "PAT", "SAM", "SPAR", "EXEC",
				"EVAC", "HOMER", "DUKE", "KING", "JAKE", "TOPCAT",
				"RRR", "ASCOT", "TARTAN", "COMET", "GAF", "FAF",
				"CTM", "IAM", "BAF", "NAF", "CFC", "RSD",
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  64,
			MaxBackups: 3,
			MaxAgeDays: 14,
			Compress:   true,
		},
		Export: ExportConfig{
			Schedule: "",
			Path:     "snapshots/latest.msgpack.zst",
			Keep:     288,
		},
	}
}

// Validate reports the first inconsistent setting.
func (c *Config) Validate() error {
	if c.Poller.IntervalSeconds <= 0 {
		return fmt.Errorf("poller.interval_seconds must be positive, got %d", c.Poller.IntervalSeconds)
	}
	if c.Poller.MinIntervalSeconds < 0 {
		return fmt.Errorf("poller.min_interval_seconds must not be negative, got %d", c.Poller.MinIntervalSeconds)
	}
	if c.Tracking.EvictAfterSeconds <= 0 {
		return fmt.Errorf("tracking.evict_after_seconds must be positive, got %d", c.Tracking.EvictAfterSeconds)
	}
	if c.Tracking.TrailMaxPoints <= 0 {
		return fmt.Errorf("tracking.trail_max_points must be positive, got %d", c.Tracking.TrailMaxPoints)
	}
	if c.Tracking.TrailDurationSeconds <= 0 {
		return fmt.Errorf("tracking.trail_duration_seconds must be positive, got %d", c.Tracking.TrailDurationSeconds)
	}
	if c.Tracking.TrailMinDisplacementKm < 0 {
		return fmt.Errorf("tracking.trail_min_displacement_km must not be negative, got %f", c.Tracking.TrailMinDisplacementKm)
	}
	if c.Validation.AltitudeMinFt > c.Validation.AltitudeMaxFt {
		return fmt.Errorf("validation altitude bounds inverted: %f > %f", c.Validation.AltitudeMinFt, c.Validation.AltitudeMaxFt)
	}
	if c.Validation.SpeedMinKts > c.Validation.SpeedMaxKts {
		return fmt.Errorf("validation speed bounds inverted: %f > %f", c.Validation.SpeedMinKts, c.Validation.SpeedMaxKts)
	}
	b := c.ADSB.Bounds
	if b != (BoundsConfig{}) && (b.MinLatitude > b.MaxLatitude || b.MinLongitude > b.MaxLongitude) {
		return fmt.Errorf("adsb.bounds min exceeds max")
	}
	if _, err := c.Military.Ranges(); err != nil {
		return fmt.Errorf("military.hex_ranges: %w", err)
	}
	if _, err := c.ActiveSource(); err != nil {
		return err
	}
	return nil
}

// Ranges parses the configured hex ranges.
func (m MilitaryConfig) Ranges() ([]classify.HexRange, error) {
	return classify.ParseHexRanges(m.HexRanges)
}

// Classifier builds the military classifier from the configured lists.
func (m MilitaryConfig) Classifier() (*classify.Classifier, error) {
	ranges, err := m.Ranges()
	if err != nil {
		return nil, err
	}
	return classify.New(ranges, m.CallsignPrefixes), nil
}

// ActiveSource returns the first enabled source.
func (c *Config) ActiveSource() (ADSBSource, error) {
	for _, src := range c.ADSB.Sources {
		if src.Enabled {
			return src, nil
		}
	}
	return ADSBSource{}, fmt.Errorf("no enabled ADS-B source configured")
}

// Interval returns the poll interval as a duration.
func (p PollerConfig) Interval() time.Duration {
	return time.Duration(p.IntervalSeconds) * time.Second
}

// MinInterval returns the rate limit window, defaulting to the interval.
func (p PollerConfig) MinInterval() time.Duration {
	if p.MinIntervalSeconds <= 0 {
		return p.Interval()
	}
	return time.Duration(p.MinIntervalSeconds) * time.Second
}

// applyEnvironmentOverrides applies environment variable overrides to the config.
// This allows sensitive data like passwords to be kept out of config files.
func (c *Config) applyEnvironmentOverrides() error {
	if port := os.Getenv("ADS_RADAR_PORT"); port != "" {
		c.Server.Port = port
	}
	if host := os.Getenv("ADS_RADAR_HOST"); host != "" {
		c.Server.Host = host
	}
	if dbHost := os.Getenv("ADS_RADAR_DB_HOST"); dbHost != "" {
		c.Database.Host = dbHost
	}
	if dbPassword := os.Getenv("ADS_RADAR_DB_PASSWORD"); dbPassword != "" {
		c.Database.Password = dbPassword
	}
	if user := os.Getenv("ADS_RADAR_OPENSKY_USERNAME"); user != "" {
		for i := range c.ADSB.Sources {
			if c.ADSB.Sources[i].Type == "opensky" {
				c.ADSB.Sources[i].Username = user
			}
		}
	}
	if pass := os.Getenv("ADS_RADAR_OPENSKY_PASSWORD"); pass != "" {
		for i := range c.ADSB.Sources {
			if c.ADSB.Sources[i].Type == "opensky" {
				c.ADSB.Sources[i].Password = pass
			}
		}
	}
	if v := os.Getenv("ADS_RADAR_POLL_INTERVAL"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid ADS_RADAR_POLL_INTERVAL %q: %w", v, err)
		}
		c.Poller.IntervalSeconds = n
	}
	if level := os.Getenv("ADS_RADAR_LOG_LEVEL"); level != "" {
		c.Logging.Level = strings.ToLower(level)
	}
	if file := os.Getenv("ADS_RADAR_LOG_FILE"); file != "" {
		c.Logging.File = file
	}
	return nil
}
