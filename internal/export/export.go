// Package export writes read-only snapshots of the tracking store to
// files, either as JSON or as zstd-compressed msgpack.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/unklstewy/ads-radar/pkg/adsb"
	"github.com/unklstewy/ads-radar/pkg/tracking"
)

// Snapshot is a point-in-time copy of every tracked aircraft.
type Snapshot struct {
	TakenAt  time.Time             `json:"takenAt" msgpack:"taken_at"`
	Source   string                `json:"source,omitempty" msgpack:"source"`
	Stats    tracking.Counts       `json:"stats" msgpack:"stats"`
	Aircraft []adsb.AircraftRecord `json:"aircraft" msgpack:"aircraft"`
}

// Take copies the current contents of store.
func Take(store *tracking.Store, source string, now time.Time) Snapshot {
	return Snapshot{
		TakenAt:  now.UTC(),
		Source:   source,
		Stats:    store.Stats(),
		Aircraft: store.Records(),
	}
}

// Format is a snapshot encoding.
type Format int

const (
	FormatJSON Format = iota
	FormatMsgpackZstd
)

func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatMsgpackZstd:
		return "msgpack+zstd"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// FormatFromPath picks the encoding from the file extension.
func FormatFromPath(path string) (Format, error) {
	switch {
	case strings.HasSuffix(path, ".msgpack.zst"):
		return FormatMsgpackZstd, nil
	case strings.HasSuffix(path, ".json"):
		return FormatJSON, nil
	default:
		return 0, fmt.Errorf("%s: unknown snapshot extension, want .json or .msgpack.zst", path)
	}
}

// Encode writes snap to w.
func Encode(w io.Writer, f Format, snap Snapshot) error {
	switch f {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	case FormatMsgpackZstd:
		zw, err := zstd.NewWriter(w)
		if err != nil {
			return err
		}
		if err := msgpack.NewEncoder(zw).Encode(snap); err != nil {
			zw.Close()
			return err
		}
		return zw.Close()
	default:
		return fmt.Errorf("unsupported format %s", f)
	}
}

// Decode reads a snapshot written by Encode.
func Decode(r io.Reader, f Format) (Snapshot, error) {
	var snap Snapshot
	switch f {
	case FormatJSON:
		if err := json.NewDecoder(r).Decode(&snap); err != nil {
			return Snapshot{}, err
		}
	case FormatMsgpackZstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return Snapshot{}, err
		}
		defer zr.Close()
		if err := msgpack.NewDecoder(zr).Decode(&snap); err != nil {
			return Snapshot{}, err
		}
	default:
		return Snapshot{}, fmt.Errorf("unsupported format %s", f)
	}
	return snap, nil
}

// WriteFile writes snap to path, replacing any previous snapshot only
// once the new one is complete.
func WriteFile(path string, snap Snapshot) error {
	f, err := FormatFromPath(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".snapshot-*")
	if err != nil {
		return fmt.Errorf("failed to create snapshot file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := Encode(tmp, f, snap); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	return nil
}

// ReadFile loads a snapshot written by WriteFile.
func ReadFile(path string) (Snapshot, error) {
	f, err := FormatFromPath(path)
	if err != nil {
		return Snapshot{}, err
	}
	file, err := os.Open(path)
	if err != nil {
		return Snapshot{}, err
	}
	defer file.Close()

	snap, err := Decode(file, f)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return snap, nil
}
