// Package radar assembles the data source, tracking store, application
// context and poller from a loaded configuration.
package radar

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/unklstewy/ads-radar/internal/app"
	"github.com/unklstewy/ads-radar/internal/poller"
	"github.com/unklstewy/ads-radar/pkg/adsb"
	"github.com/unklstewy/ads-radar/pkg/config"
	"github.com/unklstewy/ads-radar/pkg/tracking"
)

// Radar is a fully wired tracking pipeline.
type Radar struct {
	Source adsb.DataSource
	Store  *tracking.Store
	App    *app.App
	Poller *poller.Poller
}

// NewSource creates the client for src.
func NewSource(src config.ADSBSource, v config.ValidationConfig) (adsb.DataSource, error) {
	validator := Validator(v)
	timeout := time.Duration(src.TimeoutSeconds) * time.Second

	switch src.Type {
	case "opensky":
		return adsb.NewOpenSkyClient(adsb.OpenSkyOptions{
			BaseURL:   src.BaseURL,
			Username:  src.Username,
			Password:  src.Password,
			Timeout:   timeout,
			Validator: validator,
		}), nil
	case "airplanes.live":
		return adsb.NewAirplanesLiveClient(adsb.AirplanesLiveOptions{
			BaseURL:   src.BaseURL,
			Timeout:   timeout,
			Validator: validator,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported source type %q", src.Type)
	}
}

// Validator converts the configured plausibility bounds.
func Validator(v config.ValidationConfig) adsb.Validator {
	return adsb.Validator{
		AltitudeMin: v.AltitudeMinFt,
		AltitudeMax: v.AltitudeMaxFt,
		SpeedMin:    v.SpeedMinKts,
		SpeedMax:    v.SpeedMaxKts,

		ExemptGroundSpeed: v.ExemptGroundSpeed,
	}
}

// Bounds converts the configured fetch area.
func Bounds(b config.BoundsConfig) adsb.Bounds {
	return adsb.Bounds{
		MinLatitude:  b.MinLatitude,
		MinLongitude: b.MinLongitude,
		MaxLatitude:  b.MaxLatitude,
		MaxLongitude: b.MaxLongitude,
	}
}

// StoreOptions converts the tracking section. The classifier is left to
// the caller.
func StoreOptions(t config.TrackingConfig) tracking.StoreOptions {
	return tracking.StoreOptions{
		EvictAfter:    time.Duration(t.EvictAfterSeconds) * time.Second,
		TrailsEnabled: t.TrailsEnabled,
		Trails: tracking.TrailOptions{
			MaxPoints:         t.TrailMaxPoints,
			Duration:          time.Duration(t.TrailDurationSeconds) * time.Second,
			MinDisplacementKm: t.TrailMinDisplacementKm,
		},
	}
}

// New wires a pipeline for cfg. If source is nil the active configured
// source is used. The poller is created but not started.
func New(cfg *config.Config, source adsb.DataSource, log *slog.Logger) (*Radar, error) {
	if log == nil {
		log = slog.Default()
	}

	if source == nil {
		src, err := cfg.ActiveSource()
		if err != nil {
			return nil, err
		}
		if source, err = NewSource(src, cfg.Validation); err != nil {
			return nil, err
		}
	}

	classifier, err := cfg.Military.Classifier()
	if err != nil {
		return nil, fmt.Errorf("invalid military config: %w", err)
	}
	opts := StoreOptions(cfg.Tracking)
	opts.Classifier = classifier
	store := tracking.NewStore(opts)

	a := app.New(store, app.Options{Logger: log})

	p, err := poller.New(poller.Options{
		Source:       source,
		Store:        store,
		Bounds:       Bounds(cfg.ADSB.Bounds),
		Interval:     cfg.Poller.Interval(),
		MinInterval:  cfg.Poller.MinInterval(),
		SweepOnError: cfg.Poller.SweepOnError,
		OnResult:     a.HandleResult,
		OnError:      a.HandleError,
		Logger:       log,
	})
	if err != nil {
		return nil, err
	}
	a.AttachPoller(p)

	return &Radar{
		Source: source,
		Store:  store,
		App:    a,
		Poller: p,
	}, nil
}

// Close stops the poller and releases the source.
func (r *Radar) Close() error {
	r.Poller.Stop()
	return r.Source.Close()
}
