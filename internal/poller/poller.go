// Package poller fetches aircraft observations on a fixed schedule and
// reconciles them into the tracking store.
//
// The poller is the only writer to the store. Fetches are spaced by a
// rate limiter: a poll attempted before the minimum interval has elapsed,
// or while another poll is still in flight, is skipped rather than queued.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/unklstewy/ads-radar/pkg/adsb"
	"github.com/unklstewy/ads-radar/pkg/tracking"
)

// DefaultInterval is the default time between scheduled polls.
const DefaultInterval = 10 * time.Second

// tickTolerance is the fraction of the rate limit window that must have
// elapsed for a scheduled tick to fetch. Ticks fire on the ticker's
// phase, not relative to the previous fetch, so they routinely arrive a
// little short of a full window.
const tickTolerance = 0.9

var (
	// ErrSkipped is returned when a poll is attempted too early or while
	// another poll is in flight.
	ErrSkipped = errors.New("poll skipped: rate limit window not elapsed")

	// ErrStopped is returned by PollNow after Stop.
	ErrStopped = errors.New("poller stopped")
)

// Result describes one completed poll.
type Result struct {
	Ingest    adsb.IngestStats        `json:"ingest"`
	Reconcile tracking.ReconcileStats `json:"reconcile"`
	Duration  time.Duration           `json:"duration"`
}

// Status is a point-in-time view of the poller.
type Status struct {
	Running   bool      `json:"running"`
	Paused    bool      `json:"paused"`
	Source    string    `json:"source"`
	LastPoll  time.Time `json:"lastPoll"`
	LastError string    `json:"lastError,omitempty"`
	Polls     int       `json:"polls"`
	Failures  int       `json:"failures"`
	Skipped   int       `json:"skipped"`
}

// Options configures a Poller.
type Options struct {
	Source adsb.DataSource
	Store  *tracking.Store
	Bounds adsb.Bounds

	// Interval is the schedule period (default: 10s)
	Interval time.Duration

	// MinInterval is the minimum spacing between fetches (default: Interval)
	MinInterval time.Duration

	// SweepOnError runs an eviction sweep after a failed fetch
	SweepOnError bool

	// OnResult is called after every successful reconcile
	OnResult func(Result)

	// OnError is called with every fetch failure
	OnError func(error)

	Logger *slog.Logger

	// Clock returns the current time (default: time.Now)
	Clock func() time.Time
}

// Poller drives the fetch/reconcile cycle.
type Poller struct {
	opts    Options
	log     *slog.Logger
	limiter *rate.Limiter

	// inflight is held for the duration of one poll
	inflight sync.Mutex

	mu      sync.Mutex
	status  Status
	stopped bool
	cancel  context.CancelFunc
	done    chan struct{}
	wake    chan struct{}
}

// New creates a poller. Source and Store are required.
func New(opts Options) (*Poller, error) {
	if opts.Source == nil {
		return nil, fmt.Errorf("poller requires a data source")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("poller requires a store")
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.MinInterval <= 0 {
		opts.MinInterval = opts.Interval
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Poller{
		opts:    opts,
		log:     opts.Logger.With(slog.String("component", "poller"), slog.String("source", opts.Source.Name())),
		limiter: rate.NewLimiter(rate.Every(opts.MinInterval), 1),
		status:  Status{Source: opts.Source.Name()},
		wake:    make(chan struct{}, 1),
	}, nil
}

// Start runs the schedule in a new goroutine. The first poll happens
// immediately unless the poller is paused.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return ErrStopped
	}
	if p.status.Running {
		return fmt.Errorf("poller already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.status.Running = true

	go p.run(ctx, p.done)
	return nil
}

// Stop ends the schedule and waits for an in-flight poll to finish.
// A stopped poller cannot be restarted.
func (p *Poller) Stop() {
	p.mu.Lock()
	p.stopped = true
	cancel, done := p.cancel, p.done
	p.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// Wait blocks until the schedule goroutine exits.
func (p *Poller) Wait() {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Pause suspends the schedule. A poll already in flight still applies
// its result.
func (p *Poller) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.status.Paused {
		p.status.Paused = true
		p.log.Info("polling paused")
	}
}

// Resume restarts the schedule and requests an immediate refresh, which
// is still subject to the rate limit.
func (p *Poller) Resume() {
	p.mu.Lock()
	wasPaused := p.status.Paused
	p.status.Paused = false
	p.mu.Unlock()

	if !wasPaused {
		return
	}
	p.log.Info("polling resumed")
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Paused reports whether the schedule is suspended.
func (p *Poller) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status.Paused
}

// Status returns a copy of the current status.
func (p *Poller) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *Poller) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer func() {
		p.mu.Lock()
		p.status.Running = false
		p.mu.Unlock()
	}()

	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()

	if !p.Paused() {
		p.tick(ctx, true)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !p.Paused() {
				p.tick(ctx, true)
			}
		case <-p.wake:
			p.tick(ctx, false)
		}
	}
}

func (p *Poller) tick(ctx context.Context, scheduled bool) {
	res, err := p.poll(ctx, scheduled)
	switch {
	case errors.Is(err, ErrSkipped):
		p.log.Debug("poll skipped")
	case err != nil:
		// Already logged and reported by PollNow
	default:
		p.log.Debug("poll complete",
			slog.Int("received", res.Ingest.Received),
			slog.Int("accepted", res.Ingest.Accepted),
			slog.Int("dropped", res.Ingest.Dropped()),
			slog.Int("total", res.Reconcile.Total),
			slog.Int("evicted", res.Reconcile.Evicted),
			slog.Duration("duration", res.Duration))
	}
}

// PollNow fetches once and reconciles the result into the store. It
// returns ErrSkipped when the rate limit window has not elapsed or a poll
// is already running. On a fetch failure the store is left unchanged,
// except for an eviction sweep when SweepOnError is set.
func (p *Poller) PollNow(ctx context.Context) (Result, error) {
	return p.poll(ctx, false)
}

// allow reports whether a fetch may start at now and, if so, takes the
// token. Scheduled ticks pass at tickTolerance of the window.
func (p *Poller) allow(now time.Time, scheduled bool) bool {
	if !scheduled {
		return p.limiter.AllowN(now, 1)
	}
	if p.limiter.TokensAt(now) < tickTolerance {
		return false
	}
	p.limiter.ReserveN(now, 1)
	return true
}

func (p *Poller) poll(ctx context.Context, scheduled bool) (Result, error) {
	p.mu.Lock()
	stopped := p.stopped
	p.mu.Unlock()
	if stopped {
		return Result{}, ErrStopped
	}

	if !p.inflight.TryLock() {
		p.countSkip()
		return Result{}, ErrSkipped
	}
	defer p.inflight.Unlock()

	start := p.opts.Clock()
	if !p.allow(start, scheduled) {
		p.countSkip()
		return Result{}, ErrSkipped
	}

	records, ingest, err := p.fetch(ctx)
	if err != nil {
		if ctx.Err() != nil {
			p.log.Debug("poll cancelled", slog.Any("error", err))
			return Result{}, err
		}
		return p.fail(err), err
	}

	res := Result{
		Ingest:    ingest,
		Reconcile: p.opts.Store.Reconcile(records),
		Duration:  p.opts.Clock().Sub(start),
	}

	p.mu.Lock()
	p.status.Polls++
	p.status.LastPoll = start
	p.status.LastError = ""
	p.mu.Unlock()

	if ingest.Dropped() > 0 {
		p.log.Debug("dropped implausible observations",
			slog.Int("no_position", ingest.DroppedNoPosition),
			slog.Int("bounds", ingest.DroppedBounds),
			slog.Int("altitude", ingest.DroppedAltitude),
			slog.Int("speed", ingest.DroppedSpeed))
	}
	if res.Reconcile.SelectionCleared {
		p.log.Info("selected aircraft evicted")
	}
	if p.opts.OnResult != nil {
		p.opts.OnResult(res)
	}
	return res, nil
}

// fetch calls the data source, converting a panic into an error.
func (p *Poller) fetch(ctx context.Context) (records []adsb.AircraftRecord, stats adsb.IngestStats, err error) {
	defer func() {
		if r := recover(); r != nil {
			records, stats = nil, adsb.IngestStats{}
			err = fmt.Errorf("panic in %s fetch: %v", p.opts.Source.Name(), r)
		}
	}()
	return p.opts.Source.FetchStates(ctx, p.opts.Bounds)
}

func (p *Poller) fail(err error) Result {
	p.mu.Lock()
	p.status.Failures++
	p.status.LastError = err.Error()
	p.mu.Unlock()

	if rle, ok := adsb.IsRateLimitError(err); ok {
		p.log.Warn("upstream rate limit", slog.Duration("retry_after", rle.RetryAfter))
	} else {
		p.log.Error("fetch failed", slog.Any("error", err))
	}

	var res Result
	if p.opts.SweepOnError {
		res.Reconcile = p.opts.Store.Sweep()
	}
	if p.opts.OnError != nil {
		p.opts.OnError(err)
	}
	return res
}

func (p *Poller) countSkip() {
	p.mu.Lock()
	p.status.Skipped++
	p.mu.Unlock()
}
