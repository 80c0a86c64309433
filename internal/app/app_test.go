package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/unklstewy/ads-radar/internal/logging"
	"github.com/unklstewy/ads-radar/internal/poller"
	"github.com/unklstewy/ads-radar/pkg/adsb"
	"github.com/unklstewy/ads-radar/pkg/classify"
	"github.com/unklstewy/ads-radar/pkg/tracking"
)

// recorder is a Renderer that keeps every frame it receives.
type recorder struct {
	mu     sync.Mutex
	frames []Frame
}

func (r *recorder) Render(f Frame) {
	r.mu.Lock()
	r.frames = append(r.frames, f)
	r.mu.Unlock()
}

func (r *recorder) last(t *testing.T) Frame {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.frames) == 0 {
		t.Fatal("No frames rendered")
	}
	return r.frames[len(r.frames)-1]
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

type staticSource struct {
	records []adsb.AircraftRecord
}

func (s staticSource) FetchStates(context.Context, adsb.Bounds) ([]adsb.AircraftRecord, adsb.IngestStats, error) {
	return append([]adsb.AircraftRecord(nil), s.records...), adsb.IngestStats{Received: len(s.records), Accepted: len(s.records)}, nil
}
func (staticSource) Name() string { return "static" }
func (staticSource) Close() error { return nil }

func newTestApp(t *testing.T) (*App, *poller.Poller) {
	t.Helper()
	store := tracking.NewStore(tracking.StoreOptions{
		Classifier: classify.New([]classify.HexRange{{Start: 0xADF7C8, End: 0xAFFFFF}}, nil),
	})
	a := New(store, Options{Logger: logging.Discard()})

	src := staticSource{records: []adsb.AircraftRecord{
		{ID: "a1", Callsign: "UAL1", Position: adsb.Position{Latitude: 10, Longitude: 10}},
		{ID: "adf7c9", Callsign: "RCH1", Position: adsb.Position{Latitude: 11, Longitude: 11}},
	}}
	p, err := poller.New(poller.Options{
		Source:   src,
		Store:    store,
		Interval: time.Hour,
		OnResult: a.HandleResult,
		Logger:   logging.Discard(),
	})
	if err != nil {
		t.Fatalf("poller.New failed: %v", err)
	}
	a.AttachPoller(p)
	t.Cleanup(p.Stop)
	return a, p
}

func TestRenderAfterReconcile(t *testing.T) {
	a, p := newTestApp(t)
	rec := &recorder{}
	a.AddRenderer(rec)

	if got := rec.last(t); len(got.Aircraft) != 0 {
		t.Errorf("Expected an empty initial frame, got %d aircraft", len(got.Aircraft))
	}

	if _, err := p.PollNow(context.Background()); err != nil {
		t.Fatalf("PollNow failed: %v", err)
	}

	f := rec.last(t)
	if len(f.Aircraft) != 2 || f.Stats.Total != 2 || f.Stats.Military != 1 {
		t.Errorf("Unexpected frame %+v", f)
	}
	if f.UpdatedAt.IsZero() {
		t.Error("Expected UpdatedAt to be set")
	}
}

func TestFilterChangesRender(t *testing.T) {
	a, p := newTestApp(t)
	if _, err := p.PollNow(context.Background()); err != nil {
		t.Fatalf("PollNow failed: %v", err)
	}
	rec := &recorder{}
	a.AddRenderer(rec)

	fs := a.UpdateFilter(func(fs *tracking.FilterState) { fs.ShowMilitary = false })
	if fs.ShowMilitary {
		t.Error("Expected UpdateFilter to return the new state")
	}
	f := rec.last(t)
	if len(f.Aircraft) != 1 || f.Aircraft[0].ID != "a1" || f.Visible != 1 {
		t.Errorf("Expected only a1 visible, got %+v", f.Aircraft)
	}
	if f.Stats.Total != 2 {
		t.Errorf("Stats should count the whole store, got %d", f.Stats.Total)
	}

	a.SetFilter(tracking.FilterState{})
	if f := rec.last(t); len(f.Aircraft) != 0 {
		t.Errorf("Expected empty frame with everything hidden, got %d", len(f.Aircraft))
	}

	a.SetFilter(tracking.DefaultFilterState())
	if f := rec.last(t); len(f.Aircraft) != 2 {
		t.Errorf("Expected both aircraft after restoring defaults, got %d", len(f.Aircraft))
	}
}

func TestTryUpdateFilter(t *testing.T) {
	a, _ := newTestApp(t)
	rec := &recorder{}
	a.AddRenderer(rec)
	before := a.Filter()

	errInverted := errors.New("inverted")
	fs, err := a.TryUpdateFilter(func(fs *tracking.FilterState) error {
		fs.MinAltitude = 90000
		return errInverted
	})
	if !errors.Is(err, errInverted) {
		t.Fatalf("Expected errInverted, got %v", err)
	}
	if fs != before || a.Filter() != before {
		t.Errorf("Expected rejected update to leave the filter unchanged, got %+v", a.Filter())
	}
	if rec.count() != 1 {
		t.Errorf("Expected no frame for a rejected update, got %d frames", rec.count())
	}

	fs, err = a.TryUpdateFilter(func(fs *tracking.FilterState) error {
		fs.MinAltitude = 1000
		return nil
	})
	if err != nil || fs.MinAltitude != 1000 || a.Filter().MinAltitude != 1000 {
		t.Errorf("Expected committed update, got %+v (%v)", fs, err)
	}
	if rec.count() != 2 {
		t.Errorf("Expected a frame for the committed update, got %d frames", rec.count())
	}
}

func TestTryUpdateFilterConcurrentWriters(t *testing.T) {
	a, _ := newTestApp(t)
	low := tracking.FilterState{ShowCivilian: true, ShowMilitary: true, MinAltitude: 0, MaxAltitude: 1000}
	high := tracking.FilterState{ShowCivilian: true, ShowMilitary: true, MinAltitude: 30000, MaxAltitude: 40000}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			if i%2 == 0 {
				a.SetFilter(low)
			} else {
				a.SetFilter(high)
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			a.TryUpdateFilter(func(fs *tracking.FilterState) error {
				fs.MaxAltitude = 2000
				if fs.MinAltitude > fs.MaxAltitude {
					return errors.New("inverted")
				}
				return nil
			})
			if fs := a.Filter(); fs.MinAltitude > fs.MaxAltitude {
				t.Errorf("Filter band inverted: %+v", fs)
				return
			}
		}
	}()
	wg.Wait()
}

func TestSelection(t *testing.T) {
	a, p := newTestApp(t)
	if _, err := p.PollNow(context.Background()); err != nil {
		t.Fatalf("PollNow failed: %v", err)
	}
	rec := &recorder{}
	a.AddRenderer(rec)
	before := rec.count()

	if a.Select("zzz") {
		t.Error("Expected selecting an unknown aircraft to fail")
	}
	if rec.count() != before {
		t.Error("A failed selection should not render")
	}

	if !a.Select("adf7c9") {
		t.Fatal("Expected selection to succeed")
	}
	if got := rec.last(t).Selected; got != "adf7c9" {
		t.Errorf("Expected adf7c9 selected, got %q", got)
	}

	a.ClearSelection()
	if got := rec.last(t).Selected; got != "" {
		t.Errorf("Expected no selection, got %q", got)
	}
}

func TestSetVisible(t *testing.T) {
	a, p := newTestApp(t)
	rec := &recorder{}
	a.AddRenderer(rec)

	a.SetVisible(false)
	if !p.Paused() || !rec.last(t).Paused {
		t.Error("Expected hiding the display to pause polling")
	}
	a.SetVisible(true)
	if p.Paused() || rec.last(t).Paused {
		t.Error("Expected showing the display to resume polling")
	}
}

func TestSetVisibleWithoutPoller(t *testing.T) {
	a := New(tracking.NewStore(tracking.StoreOptions{}), Options{Logger: logging.Discard()})
	a.SetVisible(false)
	a.SetVisible(true)
}

func TestRemoveRenderer(t *testing.T) {
	a, _ := newTestApp(t)
	rec := &recorder{}
	a.AddRenderer(rec)
	a.RemoveRenderer(rec)

	n := rec.count()
	a.SetFilter(tracking.DefaultFilterState())
	if rec.count() != n {
		t.Error("Removed renderer still receives frames")
	}
}

func TestRendererFunc(t *testing.T) {
	a, _ := newTestApp(t)
	var got Frame
	a.AddRenderer(RendererFunc(func(f Frame) { got = f }))
	a.UpdateFilter(func(fs *tracking.FilterState) { fs.Search = "rch" })
	if got.Filter.Search != "rch" {
		t.Errorf("Expected search in frame, got %q", got.Filter.Search)
	}
}

// switchSource returns records until err is set.
type switchSource struct {
	mu      sync.Mutex
	records []adsb.AircraftRecord
	err     error
}

func (s *switchSource) FetchStates(context.Context, adsb.Bounds) ([]adsb.AircraftRecord, adsb.IngestStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, adsb.IngestStats{}, s.err
	}
	return append([]adsb.AircraftRecord(nil), s.records...), adsb.IngestStats{Received: len(s.records), Accepted: len(s.records)}, nil
}
func (*switchSource) Name() string { return "switch" }
func (*switchSource) Close() error { return nil }

func (s *switchSource) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func TestFetchFailureReachesRenderers(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	store := tracking.NewStore(tracking.StoreOptions{EvictAfter: time.Minute, Clock: clock})
	a := New(store, Options{Logger: logging.Discard(), Clock: clock})
	src := &switchSource{records: []adsb.AircraftRecord{
		{ID: "a1", Callsign: "UAL1", Position: adsb.Position{Latitude: 10, Longitude: 10}},
	}}
	p, err := poller.New(poller.Options{
		Source:       src,
		Store:        store,
		Interval:     time.Hour,
		SweepOnError: true,
		OnResult:     a.HandleResult,
		OnError:      a.HandleError,
		Logger:       logging.Discard(),
		Clock:        clock,
	})
	if err != nil {
		t.Fatalf("poller.New failed: %v", err)
	}
	a.AttachPoller(p)
	defer p.Stop()

	rec := &recorder{}
	a.AddRenderer(rec)

	if _, err := p.PollNow(context.Background()); err != nil {
		t.Fatalf("PollNow failed: %v", err)
	}
	a.Select("a1")
	if f := rec.last(t); len(f.Aircraft) != 1 || f.Selected != "a1" {
		t.Fatalf("Expected a1 visible and selected, got %+v", f)
	}

	// The outage outlasts the eviction timeout
	now = now.Add(2 * time.Hour)
	src.fail(errors.New("upstream unavailable"))
	before := rec.count()
	if _, err := p.PollNow(context.Background()); err == nil {
		t.Fatal("Expected fetch error")
	}
	if rec.count() != before+1 {
		t.Fatalf("Expected one frame for the failure, got %d", rec.count()-before)
	}
	f := rec.last(t)
	if len(f.Aircraft) != 0 || f.Stats.Total != 0 {
		t.Errorf("Expected swept aircraft to be gone from the frame, got %+v", f.Aircraft)
	}
	if f.Selected != "" {
		t.Errorf("Expected selection cleared by the sweep, got %q", f.Selected)
	}
	if f.LastError != "upstream unavailable" {
		t.Errorf("Expected LastError in frame, got %q", f.LastError)
	}

	now = now.Add(2 * time.Hour)
	src.fail(nil)
	if _, err := p.PollNow(context.Background()); err != nil {
		t.Fatalf("PollNow failed: %v", err)
	}
	if f := rec.last(t); f.LastError != "" || len(f.Aircraft) != 1 {
		t.Errorf("Expected recovery to clear the error, got %+v", f)
	}
}
