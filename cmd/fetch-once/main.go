package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/unklstewy/ads-radar/internal/export"
	"github.com/unklstewy/ads-radar/internal/logging"
	"github.com/unklstewy/ads-radar/internal/radar"
	"github.com/unklstewy/ads-radar/pkg/adsb"
	"github.com/unklstewy/ads-radar/pkg/config"
	"github.com/unklstewy/ads-radar/pkg/coordinates"
	"github.com/unklstewy/ads-radar/pkg/tracking"
)

var (
	configPath = flag.String("config", "configs/config.json", "Path to configuration file")
	sourceType = flag.String("source", "", "Source type to query (default: first enabled source)")
	limit      = flag.Int("limit", 10, "Number of aircraft to print")
	military   = flag.Bool("military", false, "Only print military aircraft")
	outPath    = flag.String("out", "", "Write a snapshot (.json or .msgpack.zst)")
	retries    = flag.Int("retries", 3, "Retries on failure or rate limiting")
)

// main fetches one batch from the configured source, classifies it
// through a tracking store and prints a summary.
func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg, os.Stdout, logger.Logger); err != nil {
		logger.Error("fetch failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func pickSource(cfg *config.Config, typ string) (config.ADSBSource, error) {
	if typ == "" {
		return cfg.ActiveSource()
	}
	for _, src := range cfg.ADSB.Sources {
		if src.Type == typ {
			return src, nil
		}
	}
	return config.ADSBSource{}, fmt.Errorf("no %q source configured", typ)
}

func run(ctx context.Context, cfg *config.Config, w io.Writer, log *slog.Logger) error {
	srcCfg, err := pickSource(cfg, *sourceType)
	if err != nil {
		return err
	}
	source, err := radar.NewSource(srcCfg, cfg.Validation)
	if err != nil {
		return err
	}
	defer source.Close()

	classifier, err := cfg.Military.Classifier()
	if err != nil {
		return err
	}
	opts := radar.StoreOptions(cfg.Tracking)
	opts.Classifier = classifier
	store := tracking.NewStore(opts)

	bounds := radar.Bounds(cfg.ADSB.Bounds)
	fmt.Fprintf(w, "ADS-B fetch - %s (%s)\n", source.Name(), srcCfg.BaseURL)
	fmt.Fprintf(w, "Bounds: %s\n", bounds)
	fmt.Fprintln(w, "=====================================")

	retry := adsb.DefaultRetryConfig()
	retry.MaxRetries = *retries
	retry.Logger = log

	type batch struct {
		records []adsb.AircraftRecord
		stats   adsb.IngestStats
	}
	start := time.Now()
	b, err := adsb.RetryWithBackoffResult(ctx, retry, func() (batch, error) {
		recs, stats, err := source.FetchStates(ctx, bounds)
		return batch{recs, stats}, err
	})
	if err != nil {
		return err
	}

	res := store.Reconcile(b.records)
	fmt.Fprintf(w, "Fetched in %v: %d received, %d accepted\n", time.Since(start).Round(time.Millisecond), b.stats.Received, b.stats.Accepted)
	fmt.Fprintf(w, "Dropped: %d no position, %d out of bounds, %d altitude, %d speed\n",
		b.stats.DroppedNoPosition, b.stats.DroppedBounds, b.stats.DroppedAltitude, b.stats.DroppedSpeed)
	fmt.Fprintf(w, "Tracked: %d (%d military, %d on ground)\n", res.Total, res.Military, res.Ground)
	fmt.Fprintln(w, "=====================================")

	fs := tracking.DefaultFilterState()
	fs.ShowCivilian = !*military
	printAircraft(w, store.View(fs), bounds, *limit)

	if *outPath != "" {
		snap := export.Take(store, source.Name(), time.Now())
		if err := export.WriteFile(*outPath, snap); err != nil {
			return err
		}
		fmt.Fprintf(w, "\nSnapshot written to %s\n", *outPath)
	}
	return nil
}

func printAircraft(w io.Writer, aircraft []adsb.AircraftRecord, bounds adsb.Bounds, limit int) {
	var center *coordinates.Geographic
	if !bounds.IsZero() {
		lat, lon := bounds.Center()
		center = &coordinates.Geographic{Latitude: lat, Longitude: lon}
	}

	for i, ac := range aircraft {
		if i >= limit {
			fmt.Fprintf(w, "\n... and %d more aircraft\n", len(aircraft)-limit)
			break
		}

		class := "civil"
		if ac.IsMilitary {
			class = "MILITARY"
		}
		fmt.Fprintf(w, "\nAircraft #%d: %s\n", i+1, class)
		fmt.Fprintf(w, "  ICAO:     %s\n", strings.ToUpper(ac.ID))
		fmt.Fprintf(w, "  Callsign: %s\n", ac.Callsign)
		fmt.Fprintf(w, "  Country:  %s\n", ac.OriginCountry)
		fmt.Fprintf(w, "  Position: %.4f°, %.4f° (%s)\n", ac.Position.Latitude, ac.Position.Longitude, ac.PositionSource)
		if ac.Position.OnGround {
			fmt.Fprintln(w, "  Altitude: on ground")
		} else if ac.Position.Altitude != nil {
			fmt.Fprintf(w, "  Altitude: %.0f ft\n", *ac.Position.Altitude)
		}
		if ac.Velocity.Speed != nil {
			fmt.Fprintf(w, "  Speed:    %.0f knots\n", *ac.Velocity.Speed)
		}
		if ac.Velocity.Heading != nil {
			fmt.Fprintf(w, "  Track:    %.0f° (%s)\n", *ac.Velocity.Heading, azimuthToCardinal(*ac.Velocity.Heading))
		}
		if ac.Velocity.VerticalRate != nil {
			fmt.Fprintf(w, "  V/S:      %.0f fpm\n", *ac.Velocity.VerticalRate)
		}
		if center != nil {
			pos := coordinates.Geographic{Latitude: ac.Position.Latitude, Longitude: ac.Position.Longitude}
			bearing := coordinates.Bearing(*center, pos)
			fmt.Fprintf(w, "  From center: %.1f nm %s\n", coordinates.DistanceNauticalMiles(*center, pos), azimuthToCardinal(bearing))
		}
	}
}

// azimuthToCardinal converts azimuth in degrees to cardinal direction.
func azimuthToCardinal(azimuth float64) string {
	directions := []string{"N", "NNE", "NE", "ENE", "E", "ESE", "SE", "SSE",
		"S", "SSW", "SW", "WSW", "W", "WNW", "NW", "NNW"}
	index := int((coordinates.NormalizeAzimuth(azimuth) + 11.25) / 22.5)
	return directions[index%16]
}
