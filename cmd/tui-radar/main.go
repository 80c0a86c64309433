package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/unklstewy/ads-radar/internal/app"
	"github.com/unklstewy/ads-radar/internal/logging"
	"github.com/unklstewy/ads-radar/internal/radar"
	"github.com/unklstewy/ads-radar/pkg/config"
	"github.com/unklstewy/ads-radar/pkg/coordinates"
)

var (
	configPath = flag.String("config", "configs/config.json", "Path to configuration file")
	centerLat  = flag.Float64("lat", 0, "Scope center latitude (default: center of the configured bounds)")
	centerLon  = flag.Float64("lon", 0, "Scope center longitude (default: center of the configured bounds)")
	radiusNM   = flag.Float64("radius", 0, "Scope radius in NM (default: fits the configured bounds)")
	logFile    = flag.String("log", "logs/tui-radar.log", "Log file used when the config does not name one")
)

// forwarder hands frames to the program without blocking the publisher.
// Only the newest undelivered frame is kept.
type forwarder struct {
	frames chan app.Frame
}

func newForwarder() *forwarder {
	return &forwarder{frames: make(chan app.Frame, 1)}
}

func (f *forwarder) Render(frame app.Frame) {
	for {
		select {
		case f.frames <- frame:
			return
		default:
		}
		select {
		case <-f.frames:
		default:
		}
	}
}

func (f *forwarder) run(ctx context.Context, p *tea.Program) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-f.frames:
			p.Send(frameMsg(frame))
		}
	}
}

// scopeFor picks the scope center and radius from the flags, falling
// back to the configured bounds.
func scopeFor(cfg *config.Config) (coordinates.Geographic, float64) {
	center := coordinates.Geographic{Latitude: *centerLat, Longitude: *centerLon}
	radius := *radiusNM

	bounds := radar.Bounds(cfg.ADSB.Bounds)
	if !bounds.IsZero() {
		lat, lon := bounds.Center()
		if *centerLat == 0 && *centerLon == 0 {
			center = coordinates.Geographic{Latitude: lat, Longitude: lon}
		}
		if radius <= 0 {
			corner := coordinates.Geographic{Latitude: bounds.MaxLatitude, Longitude: bounds.MaxLongitude}
			radius = math.Ceil(coordinates.DistanceNauticalMiles(center, corner))
		}
	}
	if radius <= 0 {
		radius = maxRadiusNM
	}
	return center, math.Min(math.Max(radius, minRadiusNM), maxRadiusNM)
}

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	// The terminal belongs to the UI, so logs always go to a file
	if cfg.Logging.File == "" {
		cfg.Logging.File = *logFile
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()
	slog.SetDefault(logger.Logger)

	r, err := radar.New(cfg, nil, logger.Logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start radar: %v\n", err)
		os.Exit(1)
	}
	defer r.Close()

	center, radius := scopeFor(cfg)
	p := tea.NewProgram(newModel(r.App, center, radius), tea.WithAltScreen(), tea.WithReportFocus())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fwd := newForwarder()
	r.App.AddRenderer(fwd)
	go fwd.run(ctx, p)

	if err := r.Poller.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start poller: %v\n", err)
		os.Exit(1)
	}
	logger.Info("tui started", slog.String("source", r.Source.Name()), slog.Float64("radius_nm", radius))

	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
