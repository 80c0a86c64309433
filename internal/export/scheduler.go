package export

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/unklstewy/ads-radar/pkg/tracking"
)

// Archiver stores snapshots outside the process, e.g. in a database.
type Archiver interface {
	Save(ctx context.Context, snap Snapshot) (int64, error)
	Prune(ctx context.Context, keep int) (int64, error)
}

// SchedulerOptions configures a Scheduler.
type SchedulerOptions struct {
	// Schedule is a cron expression such as "@every 5m"
	Schedule string

	// Path is the snapshot file; empty skips file exports
	Path string

	// Archiver receives every snapshot when set
	Archiver Archiver

	// Keep is how many archived snapshots to retain; 0 keeps all
	Keep int

	// Source names the data source in snapshots
	Source string

	Logger *slog.Logger
	Clock  func() time.Time
}

// Scheduler takes periodic snapshots of a store.
type Scheduler struct {
	store *tracking.Store
	opts  SchedulerOptions
	log   *slog.Logger
	cron  *cron.Cron

	// mu serializes runs so a slow archive never overlaps the next one
	mu sync.Mutex
}

// NewScheduler validates opts and registers the export job. Call Start
// to begin running it.
func NewScheduler(store *tracking.Store, opts SchedulerOptions) (*Scheduler, error) {
	if opts.Path == "" && opts.Archiver == nil {
		return nil, fmt.Errorf("export needs a path or an archiver")
	}
	if opts.Path != "" {
		if _, err := FormatFromPath(opts.Path); err != nil {
			return nil, err
		}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	s := &Scheduler{
		store: store,
		opts:  opts,
		log:   opts.Logger.With(slog.String("component", "export")),
		cron:  cron.New(),
	}
	if _, err := s.cron.AddFunc(opts.Schedule, func() { s.Run(context.Background()) }); err != nil {
		return nil, fmt.Errorf("invalid export schedule %q: %w", opts.Schedule, err)
	}
	return s, nil
}

// Start runs the job on its schedule until ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	s.cron.Start()
	s.log.Info("export scheduled", slog.String("schedule", s.opts.Schedule), slog.String("path", s.opts.Path))

	<-ctx.Done()
	<-s.cron.Stop().Done()
}

// Run takes one snapshot and writes it to every configured destination.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Take(s.store, s.opts.Source, s.opts.Clock())

	var firstErr error
	if s.opts.Path != "" {
		if err := WriteFile(s.opts.Path, snap); err != nil {
			s.log.Error("snapshot write failed", slog.Any("error", err))
			firstErr = err
		} else {
			s.log.Debug("snapshot written", slog.String("path", s.opts.Path), slog.Int("aircraft", len(snap.Aircraft)))
		}
	}

	if s.opts.Archiver != nil {
		id, err := s.opts.Archiver.Save(ctx, snap)
		if err != nil {
			s.log.Error("snapshot archive failed", slog.Any("error", err))
			if firstErr == nil {
				firstErr = err
			}
			return firstErr
		}
		s.log.Debug("snapshot archived", slog.Int64("id", id), slog.Int("aircraft", len(snap.Aircraft)))

		if s.opts.Keep > 0 {
			if n, err := s.opts.Archiver.Prune(ctx, s.opts.Keep); err != nil {
				s.log.Warn("snapshot prune failed", slog.Any("error", err))
			} else if n > 0 {
				s.log.Debug("pruned snapshots", slog.Int64("removed", n))
			}
		}
	}
	return firstErr
}
