package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"golang.org/x/sync/errgroup"

	"github.com/unklstewy/ads-radar/internal/api"
	"github.com/unklstewy/ads-radar/internal/db"
	"github.com/unklstewy/ads-radar/internal/export"
	"github.com/unklstewy/ads-radar/internal/logging"
	"github.com/unklstewy/ads-radar/internal/radar"
	"github.com/unklstewy/ads-radar/pkg/config"
)

var (
	configPath = flag.String("config", "configs/config.json", "Path to configuration file")
	noBanner   = flag.Bool("no-banner", false, "Skip the startup banner")
)

func main() {
	flag.Parse()

	if !*noBanner {
		for _, line := range figure.NewFigure("ADS Radar", "", false).Slicify() {
			fmt.Fprintln(os.Stderr, line)
		}
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()
	slog.SetDefault(logger.Logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger.Logger); err != nil {
		logger.Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	r, err := radar.New(cfg, nil, log)
	if err != nil {
		return err
	}
	defer r.Close()

	src, _ := cfg.ActiveSource()
	log.Info("starting radar server",
		slog.String("source", r.Source.Name()),
		slog.String("base_url", src.BaseURL),
		slog.Duration("interval", cfg.Poller.Interval()),
		slog.Duration("min_interval", cfg.Poller.MinInterval()),
		slog.String("bounds", radar.Bounds(cfg.ADSB.Bounds).String()))

	hub := api.NewHub(r.App, api.HubOptions{
		PauseWhenIdle: cfg.Server.PauseWhenIdle,
		Logger:        log,
	})
	r.App.AddRenderer(hub)

	srv := api.NewServer(r.App, api.ServerOptions{
		Config: cfg.Server,
		Source:   r.Source.Name(),
		Hub:    hub,
		Logger: log,
	})

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hub.Run(ctx)
		return nil
	})

	if err := r.Poller.Start(ctx); err != nil {
		return err
	}

	g.Go(func() error {
		return srv.ListenAndServe(ctx)
	})

	if cfg.Export.Schedule != "" {
		sched, closeArchive, err := newScheduler(ctx, cfg, r, log)
		if err != nil {
			return err
		}
		defer closeArchive()
		g.Go(func() error {
			sched.Start(ctx)
			return nil
		})
	}

	return g.Wait()
}

// newScheduler builds the export job, connecting to the snapshot
// archive when one is configured.
func newScheduler(ctx context.Context, cfg *config.Config, r *radar.Radar, log *slog.Logger) (*export.Scheduler, func(), error) {
	opts := export.SchedulerOptions{
		Schedule: cfg.Export.Schedule,
		Path:     cfg.Export.Path,
		Keep:     cfg.Export.Keep,
		Source:   r.Source.Name(),
		Logger:   log,
	}
	closeArchive := func() {}

	if cfg.Export.ToDatabase && cfg.Database.Enabled {
		database, err := db.ReconnectWithRetry(ctx, cfg.Database, 5, 2*time.Second)
		if err != nil {
			return nil, nil, err
		}
		if err := database.InitSchema(ctx); err != nil {
			database.Close()
			return nil, nil, err
		}
		arch := &archive{
			db:   database,
			repo: db.NewSnapshotRepository(database),
			cfg:  cfg.Database,
		}
		opts.Archiver = arch
		closeArchive = func() { arch.db.Close() }
		log.Info("archiving snapshots", slog.String("host", cfg.Database.Host), slog.String("database", cfg.Database.Database))
	}

	sched, err := export.NewScheduler(r.Store, opts)
	if err != nil {
		closeArchive()
		return nil, nil, err
	}
	return sched, closeArchive, nil
}

// archive checks the connection before every save.
type archive struct {
	db   *db.DB
	repo *db.SnapshotRepository
	cfg  config.DatabaseConfig
}

func (a *archive) Save(ctx context.Context, snap export.Snapshot) (int64, error) {
	database, err := db.EnsureConnection(ctx, a.db, a.cfg)
	if err != nil {
		return 0, err
	}
	if database != a.db {
		a.db = database
		a.repo = db.NewSnapshotRepository(database)
	}
	return a.repo.Save(ctx, snap)
}

func (a *archive) Prune(ctx context.Context, keep int) (int64, error) {
	return a.repo.Prune(ctx, keep)
}
