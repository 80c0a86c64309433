// Package app owns the tracking store, the filter state and the poller,
// and fans out render frames to display collaborators.
package app

import (
	"log/slog"
	"sync"
	"time"

	"github.com/unklstewy/ads-radar/internal/poller"
	"github.com/unklstewy/ads-radar/pkg/adsb"
	"github.com/unklstewy/ads-radar/pkg/tracking"
)

// Frame is everything a renderer needs to draw one update.
type Frame struct {
	Aircraft  []adsb.AircraftRecord `json:"aircraft"`
	Stats     tracking.Counts       `json:"stats"`
	Visible   int                   `json:"visible"`
	Filter    tracking.FilterState  `json:"filter"`
	Selected  string                `json:"selected,omitempty"`
	Paused    bool                  `json:"paused"`
	UpdatedAt time.Time             `json:"updatedAt"`

	// LastError is the most recent fetch failure, cleared by the next
	// successful poll
	LastError string `json:"lastError,omitempty"`
}

// Renderer consumes frames. Render is called synchronously after every
// reconcile and every filter or selection change, so it must not block.
// Frames are shared between renderers and must not be modified.
type Renderer interface {
	Render(Frame)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(Frame)

// Render calls f(frame).
func (f RendererFunc) Render(frame Frame) { f(frame) }

// Options configures an App.
type Options struct {
	// Filter is the initial filter (default: tracking.DefaultFilterState)
	Filter *tracking.FilterState

	Logger *slog.Logger
	Clock  func() time.Time
}

// App is the top-level application context.
type App struct {
	store *tracking.Store
	log   *slog.Logger
	now   func() time.Time

	mu        sync.Mutex
	filter    tracking.FilterState
	poller    *poller.Poller
	renderers []Renderer
	updatedAt time.Time
	lastError string
}

// New creates an application context around store.
func New(store *tracking.Store, opts Options) *App {
	fs := tracking.DefaultFilterState()
	if opts.Filter != nil {
		fs = *opts.Filter
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &App{
		store:  store,
		filter: fs,
		log:    opts.Logger.With(slog.String("component", "app")),
		now:    opts.Clock,
	}
}

// AttachPoller hands the poller to the app so visibility changes can
// pause and resume it. The poller's OnResult should call HandleResult
// and its OnError should call HandleError.
func (a *App) AttachPoller(p *poller.Poller) {
	a.mu.Lock()
	a.poller = p
	a.mu.Unlock()
}

// Poller returns the attached poller, or nil.
func (a *App) Poller() *poller.Poller {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.poller
}

// Store returns the tracking store.
func (a *App) Store() *tracking.Store {
	return a.store
}

// AddRenderer registers r and immediately sends it the current frame.
func (a *App) AddRenderer(r Renderer) {
	a.mu.Lock()
	a.renderers = append(a.renderers, r)
	a.mu.Unlock()
	r.Render(a.Frame())
}

// RemoveRenderer unregisters r. Renderers must be comparable.
func (a *App) RemoveRenderer(r Renderer) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i, existing := range a.renderers {
		if existing == r {
			a.renderers = append(a.renderers[:i], a.renderers[i+1:]...)
			return
		}
	}
}

// HandleResult publishes a frame after a reconcile.
func (a *App) HandleResult(res poller.Result) {
	a.mu.Lock()
	a.updatedAt = a.now()
	a.lastError = ""
	a.mu.Unlock()

	if res.Reconcile.SelectionCleared {
		a.log.Debug("selection cleared by eviction")
	}
	a.publish()
}

// HandleError publishes a frame carrying a fetch failure. The store may
// still have changed if the poller swept stale aircraft.
func (a *App) HandleError(err error) {
	a.mu.Lock()
	a.lastError = err.Error()
	a.mu.Unlock()
	a.publish()
}

// Filter returns the current filter state.
func (a *App) Filter() tracking.FilterState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.filter
}

// SetFilter replaces the filter state.
func (a *App) SetFilter(fs tracking.FilterState) {
	a.mu.Lock()
	a.filter = fs
	a.mu.Unlock()
	a.publish()
}

// UpdateFilter applies fn to the filter state and returns the result.
func (a *App) UpdateFilter(fn func(*tracking.FilterState)) tracking.FilterState {
	a.mu.Lock()
	fn(&a.filter)
	fs := a.filter
	a.mu.Unlock()
	a.publish()
	return fs
}

// TryUpdateFilter applies fn to a copy of the filter state and commits it
// only if fn returns nil. The check and the update are atomic with respect
// to other filter changes.
func (a *App) TryUpdateFilter(fn func(*tracking.FilterState) error) (tracking.FilterState, error) {
	a.mu.Lock()
	next := a.filter
	if err := fn(&next); err != nil {
		fs := a.filter
		a.mu.Unlock()
		return fs, err
	}
	a.filter = next
	a.mu.Unlock()
	a.publish()
	return next, nil
}

// Select marks id as selected; it reports false for unknown aircraft.
func (a *App) Select(id string) bool {
	if !a.store.Select(id) {
		return false
	}
	a.publish()
	return true
}

// ClearSelection deselects any aircraft.
func (a *App) ClearSelection() {
	a.store.ClearSelection()
	a.publish()
}

// SetVisible pauses polling while the display is hidden and resumes it,
// with an immediate refresh, when it becomes visible again.
func (a *App) SetVisible(visible bool) {
	p := a.Poller()
	if p == nil {
		return
	}
	if visible {
		p.Resume()
	} else {
		p.Pause()
	}
	a.publish()
}

// Frame builds the current frame.
func (a *App) Frame() Frame {
	a.mu.Lock()
	fs := a.filter
	updatedAt, lastError := a.updatedAt, a.lastError
	p := a.poller
	a.mu.Unlock()

	cv := a.store.ConsistentView(fs)
	frame := Frame{
		Aircraft:  cv.Aircraft,
		Stats:     cv.Counts,
		Visible:   len(cv.Aircraft),
		Filter:    fs,
		Selected:  cv.Selected,
		UpdatedAt: updatedAt,
		LastError: lastError,
	}
	if p != nil {
		frame.Paused = p.Paused()
	}
	return frame
}

func (a *App) publish() {
	a.mu.Lock()
	renderers := append([]Renderer(nil), a.renderers...)
	a.mu.Unlock()

	if len(renderers) == 0 {
		return
	}
	frame := a.Frame()
	for _, r := range renderers {
		r.Render(frame)
	}
}
