package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/unklstewy/ads-radar/internal/logging"
	"github.com/unklstewy/ads-radar/internal/radar"
	"github.com/unklstewy/ads-radar/pkg/config"
)

var (
	configPath = flag.String("config", "configs/config.json", "Path to configuration file")
	logFile    = flag.String("log", "logs/aircraft-table.log", "Log file used when the config does not name one")
)

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

	if cfg.Logging.File == "" {
		cfg.Logging.File = *logFile
	}
	fileLogger, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	defer fileLogger.Close()

	// Log to the file and to the logs panel
	panel := newLogPanel(200)
	log := slog.New(fanout{fileLogger.Handler(), newPanelHandler(panel, slog.LevelInfo)})
	slog.SetDefault(log)

	r, err := radar.New(cfg, nil, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start radar: %v\n", err)
		os.Exit(1)
	}
	defer r.Close()

	v := newView(r.App, panel)
	r.App.AddRenderer(v)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		v.tviewApp.Stop()
	}()

	if err := r.Poller.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start poller: %v\n", err)
		os.Exit(1)
	}
	log.Info("aircraft table started", slog.String("source", r.Source.Name()))

	if err := v.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
