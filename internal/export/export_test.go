package export

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/unklstewy/ads-radar/pkg/adsb"
	"github.com/unklstewy/ads-radar/pkg/tracking"
)

func floatPtr(f float64) *float64 { return &f }

func testSnapshot(t *testing.T) Snapshot {
	t.Helper()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := tracking.NewStore(tracking.StoreOptions{
		TrailsEnabled: true,
		Clock:         func() time.Time { return now },
	})
	store.Reconcile([]adsb.AircraftRecord{
		{
			ID:             "adf7c9",
			Callsign:       "RCH871",
			OriginCountry:  "United States",
			Position:       adsb.Position{Latitude: 38.9, Longitude: -77.5, Altitude: floatPtr(10000)},
			Velocity:       adsb.Velocity{Speed: floatPtr(450), Heading: floatPtr(90)},
			Squawk:         "4521",
			PositionSource: adsb.SourceMLAT,
		},
		{ID: "a1", Position: adsb.Position{Latitude: 10, Longitude: 10, OnGround: true}},
	})
	return Take(store, "opensky", now)
}

func checkSnapshot(t *testing.T, want, got Snapshot) {
	t.Helper()
	if !got.TakenAt.Equal(want.TakenAt) || got.Source != want.Source || got.Stats != want.Stats {
		t.Errorf("Header mismatch: want %+v, got %+v", want, got)
	}
	if len(got.Aircraft) != len(want.Aircraft) {
		t.Fatalf("Expected %d aircraft, got %d", len(want.Aircraft), len(got.Aircraft))
	}
	for i := range want.Aircraft {
		w, g := want.Aircraft[i], got.Aircraft[i]
		if g.ID != w.ID || g.Callsign != w.Callsign || g.PositionSource != w.PositionSource {
			t.Errorf("Aircraft %d mismatch: want %+v, got %+v", i, w, g)
		}
		if (w.Position.Altitude == nil) != (g.Position.Altitude == nil) {
			t.Errorf("Aircraft %d altitude nullability changed", i)
		} else if w.Position.Altitude != nil && *w.Position.Altitude != *g.Position.Altitude {
			t.Errorf("Aircraft %d altitude %f, want %f", i, *g.Position.Altitude, *w.Position.Altitude)
		}
		if !g.LastSeen.Equal(w.LastSeen) {
			t.Errorf("Aircraft %d lastSeen %v, want %v", i, g.LastSeen, w.LastSeen)
		}
		if len(g.Trail) != len(w.Trail) {
			t.Errorf("Aircraft %d trail length %d, want %d", i, len(g.Trail), len(w.Trail))
		}
	}
}

func TestFormatFromPath(t *testing.T) {
	tests := []struct {
		path    string
		want    Format
		wantErr bool
	}{
		{"snapshots/latest.msgpack.zst", FormatMsgpackZstd, false},
		{"/tmp/now.json", FormatJSON, false},
		{"now.msgpack", 0, true},
		{"now", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := FormatFromPath(tt.path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("FormatFromPath(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
			if err == nil && got != tt.want {
				t.Errorf("FormatFromPath(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestWriteReadFile(t *testing.T) {
	snap := testSnapshot(t)
	for _, name := range []string{"snap.json", "snap.msgpack.zst"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", name)
			if err := WriteFile(path, snap); err != nil {
				t.Fatalf("WriteFile failed: %v", err)
			}
			got, err := ReadFile(path)
			if err != nil {
				t.Fatalf("ReadFile failed: %v", err)
			}
			checkSnapshot(t, snap, got)

			entries, _ := os.ReadDir(filepath.Dir(path))
			if len(entries) != 1 {
				t.Errorf("Expected only the snapshot in the directory, found %d entries", len(entries))
			}
		})
	}
}

func TestWriteFileRejectsUnknownExtension(t *testing.T) {
	if err := WriteFile(filepath.Join(t.TempDir(), "snap.txt"), Snapshot{}); err == nil {
		t.Error("Expected error for unknown extension")
	}
}

func TestMsgpackIsCompressed(t *testing.T) {
	snap := testSnapshot(t)
	for i := 0; i < 200; i++ {
		snap.Aircraft = append(snap.Aircraft, snap.Aircraft[0])
	}

	var js, mz bytes.Buffer
	if err := Encode(&js, FormatJSON, snap); err != nil {
		t.Fatalf("JSON encode failed: %v", err)
	}
	if err := Encode(&mz, FormatMsgpackZstd, snap); err != nil {
		t.Fatalf("msgpack encode failed: %v", err)
	}
	if mz.Len() >= js.Len() {
		t.Errorf("Expected compressed snapshot (%d bytes) to be smaller than JSON (%d bytes)", mz.Len(), js.Len())
	}
}

func TestReadFileCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.msgpack.zst")
	if err := os.WriteFile(path, []byte("not zstd"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadFile(path); err == nil {
		t.Error("Expected error decoding a corrupt snapshot")
	}
}
