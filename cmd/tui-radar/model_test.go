package main

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/unklstewy/ads-radar/internal/app"
	"github.com/unklstewy/ads-radar/internal/logging"
	"github.com/unklstewy/ads-radar/pkg/adsb"
	"github.com/unklstewy/ads-radar/pkg/classify"
	"github.com/unklstewy/ads-radar/pkg/coordinates"
	"github.com/unklstewy/ads-radar/pkg/tracking"
)

func floatPtr(v float64) *float64 { return &v }

func TestScopeToScreen(t *testing.T) {
	center := coordinates.Geographic{Latitude: 35.0, Longitude: -80.0}
	s := scope{center: center, radiusNM: 100, width: 82, height: 41}
	cx, cy := s.centerXY()

	tests := []struct {
		name    string
		bearing float64
		distNM  float64
		check   func(x, y int) bool
	}{
		{"center", 0, 0, func(x, y int) bool { return x == cx && y == cy }},
		{"north is up", 0, 50, func(x, y int) bool { return x == cx && y < cy }},
		{"south is down", 180, 50, func(x, y int) bool { return x == cx && y > cy }},
		{"east is right", 90, 50, func(x, y int) bool { return x > cx && y == cy }},
		{"west is left", 270, 50, func(x, y int) bool { return x < cx && y == cy }},
		{"outside radius", 0, 150, func(x, y int) bool { return x == -1 && y == -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pos := coordinates.Destination(center, tt.bearing, tt.distNM*coordinates.KmPerNauticalMile)
			x, y := s.toScreen(pos.Latitude, pos.Longitude)
			if !tt.check(x, y) {
				t.Errorf("Unexpected screen position (%d, %d), center (%d, %d)", x, y, cx, cy)
			}
		})
	}
}

func TestRenderRadarDrawsSymbols(t *testing.T) {
	center := coordinates.Geographic{Latitude: 35.0, Longitude: -80.0}
	s := scope{center: center, radiusNM: 100, width: 82, height: 41}

	civil := coordinates.Destination(center, 45, 60*coordinates.KmPerNauticalMile)
	mil := coordinates.Destination(center, 225, 60*coordinates.KmPerNauticalMile)
	trail := coordinates.Destination(center, 45, 40*coordinates.KmPerNauticalMile)

	out := s.renderRadar([]adsb.AircraftRecord{
		{
			ID: "a1b2c3", Callsign: "UAL123",
			Position: adsb.Position{Latitude: civil.Latitude, Longitude: civil.Longitude},
			Trail:    []adsb.TrailPoint{{Latitude: trail.Latitude, Longitude: trail.Longitude}},
		},
		{
			ID: "adf7c9", Callsign: "RCH871", IsMilitary: true,
			Position: adsb.Position{Latitude: mil.Latitude, Longitude: mil.Longitude},
		},
	}, "a1b2c3")

	for _, want := range []string{"◉", "◆", "U", "N", "+"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in radar output", want)
		}
	}
	if lines := strings.Split(out, "\n"); len(lines) != s.height+2 {
		t.Errorf("Expected %d lines, got %d", s.height+2, len(lines))
	}
}

func newTestModel(t *testing.T) model {
	t.Helper()
	store := tracking.NewStore(tracking.StoreOptions{
		Classifier: classify.New([]classify.HexRange{{Start: 0xADF7C8, End: 0xAFFFFF}}, nil),
	})
	store.Reconcile([]adsb.AircraftRecord{
		{ID: "a1b2c3", Callsign: "UAL123", Position: adsb.Position{Latitude: 35.1, Longitude: -80.1, Altitude: floatPtr(35000)}},
		{ID: "adf7c9", Callsign: "RCH871", Position: adsb.Position{Latitude: 35.2, Longitude: -80.2, Altitude: floatPtr(500)}},
	})
	a := app.New(store, app.Options{Logger: logging.Discard()})
	return newModel(a, coordinates.Geographic{Latitude: 35, Longitude: -80}, 100)
}

func press(t *testing.T, m model, keys ...tea.KeyMsg) model {
	t.Helper()
	for _, k := range keys {
		next, _ := m.Update(k)
		m = next.(model)
	}
	return m
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestFilterKeys(t *testing.T) {
	tests := []struct {
		name        string
		keys        []tea.KeyMsg
		wantVisible int
	}{
		{"initial", nil, 2},
		{"hide military", []tea.KeyMsg{runes("m")}, 1},
		{"hide civilian", []tea.KeyMsg{runes("c")}, 1},
		{"hide both", []tea.KeyMsg{runes("c"), runes("m")}, 0},
		{"raise floor", []tea.KeyMsg{runes("]")}, 1},
		{"search", []tea.KeyMsg{runes("/"), runes("u"), runes("a"), {Type: tea.KeyEnter}}, 1},
		{"search cancelled", []tea.KeyMsg{runes("/"), runes("zz"), {Type: tea.KeyEsc}}, 2},
		{"reset", []tea.KeyMsg{runes("m"), runes("c"), runes("x")}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := press(t, newTestModel(t), tt.keys...)
			if m.frame.Visible != tt.wantVisible {
				t.Errorf("Expected %d visible, got %d", tt.wantVisible, m.frame.Visible)
			}
			if m.frame.Stats.Total != 2 {
				t.Errorf("Filter changed the store: total %d", m.frame.Stats.Total)
			}
		})
	}
}

func TestSearchModeCapturesKeys(t *testing.T) {
	m := press(t, newTestModel(t), runes("/"), runes("q"))
	if !m.searching {
		t.Fatal("Expected to stay in search mode")
	}
	if got := m.app.Filter().Search; got != "q" {
		t.Errorf("Expected search %q, got %q", "q", got)
	}

	m = press(t, m, tea.KeyMsg{Type: tea.KeyBackspace}, tea.KeyMsg{Type: tea.KeyEnter})
	if m.searching || m.app.Filter().Search != "" {
		t.Errorf("Expected empty search after backspace, got %q", m.app.Filter().Search)
	}
}

func TestSelectionKeys(t *testing.T) {
	m := press(t, newTestModel(t), tea.KeyMsg{Type: tea.KeyDown}, tea.KeyMsg{Type: tea.KeyEnter})
	if m.frame.Selected != "adf7c9" {
		t.Errorf("Expected adf7c9 selected, got %q", m.frame.Selected)
	}
	if !strings.Contains(m.View(), "RCH871") {
		t.Error("Expected selected callsign in view")
	}

	m = press(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	if m.frame.Selected != "" {
		t.Errorf("Expected selection cleared, got %q", m.frame.Selected)
	}
}

func TestCursorClampedToFilteredList(t *testing.T) {
	m := press(t, newTestModel(t), tea.KeyMsg{Type: tea.KeyDown})
	if m.cursor != 1 {
		t.Fatalf("Expected cursor 1, got %d", m.cursor)
	}
	m = press(t, m, runes("m"))
	if m.cursor != 0 {
		t.Errorf("Expected cursor clamped to 0, got %d", m.cursor)
	}
}

func TestZoomKeys(t *testing.T) {
	m := press(t, newTestModel(t), runes("+"))
	if m.radiusNM != 50 {
		t.Errorf("Expected 50 NM, got %.0f", m.radiusNM)
	}
	m = press(t, m, runes("-"), runes("-"))
	if m.radiusNM != 200 {
		t.Errorf("Expected 200 NM, got %.0f", m.radiusNM)
	}
}

func TestForwarderKeepsNewestFrame(t *testing.T) {
	f := newForwarder()
	for i := 1; i <= 3; i++ {
		f.Render(app.Frame{Visible: i})
	}
	select {
	case frame := <-f.frames:
		if frame.Visible != 3 {
			t.Errorf("Expected newest frame, got %d", frame.Visible)
		}
	case <-time.After(time.Second):
		t.Fatal("Expected a queued frame")
	}
}

func TestFrameMsgUpdatesModel(t *testing.T) {
	m := newTestModel(t)
	next, _ := m.Update(frameMsg(app.Frame{Visible: 7, Paused: true}))
	m = next.(model)
	if m.frame.Visible != 7 || !m.frame.Paused {
		t.Errorf("Frame not applied: %+v", m.frame)
	}
	if !strings.Contains(m.View(), "PAUSED") {
		t.Error("Expected paused marker in view")
	}
}
