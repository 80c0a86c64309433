// Package tracking reconciles batches of aircraft observations into a
// table of last-known aircraft state with bounded position trails, and
// derives filtered views of that table for display.
package tracking

import (
	"sync"
	"time"

	"github.com/iancoleman/orderedmap"

	"github.com/unklstewy/ads-radar/pkg/adsb"
	"github.com/unklstewy/ads-radar/pkg/classify"
)

// Counts are read-side totals computed by scanning the store.
type Counts struct {
	Total    int `json:"total"`
	Military int `json:"military"`
	Ground   int `json:"ground"`
}

// ReconcileStats summarizes one reconciliation.
type ReconcileStats struct {
	Counts
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Evicted  int `json:"evicted"`

	// SelectionCleared is set when the selected aircraft was evicted
	SelectionCleared bool `json:"selectionCleared"`
}

// StoreOptions configures a Store.
type StoreOptions struct {
	// EvictAfter is how long an unobserved record is kept (default: 120s)
	EvictAfter time.Duration

	Trails        TrailOptions
	TrailsEnabled bool

	// Classifier derives IsMilitary; nil classifies everything civilian
	Classifier *classify.Classifier

	// Clock returns the current time (default: time.Now)
	Clock func() time.Time
}

// Store holds the last known record of every tracked aircraft, keyed by
// ID and iterated in insertion order.
//
// One goroutine is expected to call Reconcile and Sweep; any number may
// read. Readers never observe a partially applied batch.
type Store struct {
	mu         sync.RWMutex
	aircraft   *orderedmap.OrderedMap
	selected   string
	trails     *TrailTracker
	trailsOn   bool
	classifier *classify.Classifier
	evictAfter time.Duration
	now        func() time.Time
}

// NewStore creates an empty store.
func NewStore(opts StoreOptions) *Store {
	if opts.EvictAfter <= 0 {
		opts.EvictAfter = DefaultEvictAfter
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Store{
		aircraft:   orderedmap.New(),
		trails:     NewTrailTracker(opts.Trails),
		trailsOn:   opts.TrailsEnabled,
		classifier: opts.Classifier,
		evictAfter: opts.EvictAfter,
		now:        opts.Clock,
	}
}

// Reconcile merges a batch of validated observations into the store and
// evicts records that were neither in the batch nor seen within the
// eviction timeout.
//
// Unknown IDs are inserted. Known IDs have every observed field
// overwritten, including fields the upstream reported as null; the trail
// is extended from the position held before the overwrite. IsMilitary and
// LastSeen are always recomputed.
func (s *Store) Reconcile(observations []adsb.AircraftRecord) ReconcileStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var stats ReconcileStats
	inBatch := make(map[string]struct{}, len(observations))

	for i := range observations {
		obs := &observations[i]
		inBatch[obs.ID] = struct{}{}

		v, ok := s.aircraft.Get(obs.ID)
		if !ok {
			rec := obs.Copy()
			rec.Trail = nil
			rec.IsMilitary = s.classifier.IsMilitary(rec.ID, rec.Callsign)
			rec.LastSeen = now
			if s.trailsOn {
				s.trails.Start(&rec, now)
			}
			s.aircraft.Set(rec.ID, &rec)
			stats.Inserted++
			continue
		}

		rec := v.(*adsb.AircraftRecord)
		prev := rec.Position
		merge(rec, obs)
		rec.IsMilitary = s.classifier.IsMilitary(rec.ID, rec.Callsign)
		rec.LastSeen = now
		if s.trailsOn {
			s.trails.AddPoint(rec, prev, rec.Position, now)
		}
		stats.Updated++
	}

	stats.Evicted, stats.SelectionCleared = s.evict(now, inBatch)
	stats.Counts = s.counts()
	return stats
}

// Sweep evicts stale records without ingesting anything. With no batch,
// every record past the timeout is eligible.
func (s *Store) Sweep() ReconcileStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stats ReconcileStats
	stats.Evicted, stats.SelectionCleared = s.evict(s.now(), nil)
	stats.Counts = s.counts()
	return stats
}

// merge overwrites the observed fields of rec with those of obs. The
// trail and the derived fields are left to the caller.
func merge(rec, obs *adsb.AircraftRecord) {
	trail := rec.Trail
	*rec = obs.Copy()
	rec.Trail = trail
}

// evict must be called with the write lock held.
func (s *Store) evict(now time.Time, inBatch map[string]struct{}) (int, bool) {
	evicted := 0
	cleared := false

	// Keys returns the backing slice, which Delete rewrites.
	keys := append([]string(nil), s.aircraft.Keys()...)
	for _, id := range keys {
		if _, ok := inBatch[id]; ok {
			continue
		}
		v, _ := s.aircraft.Get(id)
		rec := v.(*adsb.AircraftRecord)
		if now.Sub(rec.LastSeen) <= s.evictAfter {
			continue
		}
		s.aircraft.Delete(id)
		evicted++
		if id == s.selected {
			s.selected = ""
			cleared = true
		}
	}
	return evicted, cleared
}

// counts must be called with a lock held.
func (s *Store) counts() Counts {
	var c Counts
	for _, id := range s.aircraft.Keys() {
		v, _ := s.aircraft.Get(id)
		rec := v.(*adsb.AircraftRecord)
		c.Total++
		if rec.IsMilitary {
			c.Military++
		}
		if rec.Position.OnGround {
			c.Ground++
		}
	}
	return c
}

// Stats returns current totals.
func (s *Store) Stats() Counts {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.counts()
}

// Len returns the number of tracked aircraft.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.aircraft.Keys())
}

// Get returns a copy of one record.
func (s *Store) Get(id string) (adsb.AircraftRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.aircraft.Get(id)
	if !ok {
		return adsb.AircraftRecord{}, false
	}
	return s.snapshot(v.(*adsb.AircraftRecord), s.now()), true
}

// Trail returns a copy of one aircraft's trail, oldest point first.
func (s *Store) Trail(id string) ([]adsb.TrailPoint, bool) {
	rec, ok := s.Get(id)
	if !ok {
		return nil, false
	}
	if rec.Trail == nil {
		rec.Trail = []adsb.TrailPoint{}
	}
	return rec.Trail, true
}

// Records returns copies of every record in insertion order.
func (s *Store) Records() []adsb.AircraftRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records()
}

// records must be called with a lock held.
func (s *Store) records() []adsb.AircraftRecord {
	now := s.now()
	keys := s.aircraft.Keys()
	out := make([]adsb.AircraftRecord, 0, len(keys))
	for _, id := range keys {
		v, _ := s.aircraft.Get(id)
		out = append(out, s.snapshot(v.(*adsb.AircraftRecord), now))
	}
	return out
}

// View returns the records passing fs, in insertion order.
func (s *Store) View(fs FilterState) []adsb.AircraftRecord {
	return Apply(s.Records(), fs)
}

// Consistent is a view, its totals and the selection taken from the same
// reconciled batch.
type Consistent struct {
	Aircraft []adsb.AircraftRecord
	Counts   Counts
	Selected string
}

// ConsistentView returns View(fs), Stats and Selected under one read lock.
func (s *Store) ConsistentView(fs FilterState) Consistent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Consistent{
		Aircraft: Apply(s.records(), fs),
		Counts:   s.counts(),
		Selected: s.selected,
	}
}

// snapshot copies rec and drops trail points that aged out since the
// record was last touched.
func (s *Store) snapshot(rec *adsb.AircraftRecord, now time.Time) adsb.AircraftRecord {
	cpy := rec.Copy()
	cpy.Trail = s.trails.Prune(cpy.Trail, now)
	return cpy
}

// Select marks id as the selected aircraft. It returns false, leaving the
// selection unchanged, when id is not tracked.
func (s *Store) Select(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.aircraft.Get(id); !ok {
		return false
	}
	s.selected = id
	return true
}

// ClearSelection deselects any aircraft.
func (s *Store) ClearSelection() {
	s.mu.Lock()
	s.selected = ""
	s.mu.Unlock()
}

// Selected returns the selected ID, or "" when nothing is selected.
func (s *Store) Selected() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selected
}

// TrailOptions returns the effective trail bounds.
func (s *Store) TrailOptions() TrailOptions {
	return s.trails.Options()
}
