package db

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/unklstewy/ads-radar/internal/export"
	"github.com/unklstewy/ads-radar/pkg/adsb"
	"github.com/unklstewy/ads-radar/pkg/config"
	"github.com/unklstewy/ads-radar/pkg/tracking"
)

// TestDSN tests connection string construction.
func TestDSN(t *testing.T) {
	cfg := config.DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		Username: "testuser",
		Password: "testpass",
		Database: "testdb",
		SSLMode:  "disable",
	}
	want := "host=localhost port=5432 user=testuser password=testpass dbname=testdb sslmode=disable"
	if got := DSN(cfg); got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}

	cfg.Password = ""
	if got := DSN(cfg); !strings.Contains(got, "password='' dbname=testdb") {
		t.Errorf("Expected empty password to be quoted, got %q", got)
	}

	cfg.Password = `it's a \secret`
	if got := DSN(cfg); !strings.Contains(got, `password='it\'s a \\secret'`) {
		t.Errorf("Expected password to be escaped, got %q", got)
	}
}

// TestConnect tests that a refused connection surfaces as an error.
func TestConnect(t *testing.T) {
	cfg := config.DatabaseConfig{
		Host:         "127.0.0.1",
		Port:         1,
		Username:     "nobody",
		Database:     "none",
		SSLMode:      "disable",
		MaxOpenConns: 1,
	}

	db, err := Connect(cfg)
	if err == nil {
		db.Close()
		t.Skip("Something is listening on port 1")
	}
	if !strings.Contains(err.Error(), "failed to ping database") {
		t.Errorf("Expected ping error, got %v", err)
	}
}

func TestReconnectWithRetryGivesUp(t *testing.T) {
	cfg := config.DatabaseConfig{Host: "127.0.0.1", Port: 1, SSLMode: "disable"}

	_, err := ReconnectWithRetry(context.Background(), cfg, 2, 10*time.Millisecond)
	if err == nil || !strings.Contains(err.Error(), "after 2 attempts") {
		t.Errorf("Expected failure after 2 attempts, got %v", err)
	}
}

func TestHealthCheckNil(t *testing.T) {
	if HealthCheck(context.Background(), nil) {
		t.Error("Expected nil database to be unhealthy")
	}
}

// TestIsConnectionError tests classification of retryable errors.
func TestIsConnectionError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("dial tcp 127.0.0.1:5432: connect: Connection Refused"), true},
		{errors.New("write: broken pipe"), true},
		{errors.New("unexpected EOF"), true},
		{errors.New("i/o timeout"), true},
		{errors.New("driver: bad connection"), true},
		{errors.New(`pq: duplicate key value violates unique constraint "snapshots_pkey"`), false},
	}
	for _, tt := range tests {
		name := "nil"
		if tt.err != nil {
			name = tt.err.Error()
		}
		t.Run(name, func(t *testing.T) {
			if got := IsConnectionError(tt.err); got != tt.want {
				t.Errorf("IsConnectionError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

// TestWithRetry tests retry behavior for connection and non-connection errors.
func TestWithRetry(t *testing.T) {
	old := retryUnit
	retryUnit = time.Millisecond
	t.Cleanup(func() { retryUnit = old })

	t.Run("Connection errors are retried", func(t *testing.T) {
		calls := 0
		err := WithRetry(func() error {
			calls++
			if calls < 3 {
				return errors.New("connection reset by peer")
			}
			return nil
		}, 3)
		if err != nil {
			t.Errorf("Expected success, got %v", err)
		}
		if calls != 3 {
			t.Errorf("Expected 3 calls, got %d", calls)
		}
	})

	t.Run("Other errors return immediately", func(t *testing.T) {
		calls := 0
		err := WithRetry(func() error {
			calls++
			return errors.New("syntax error at or near SELECT")
		}, 3)
		if err == nil || calls != 1 {
			t.Errorf("Expected 1 call and an error, got %d calls, err %v", calls, err)
		}
	})

	t.Run("Retries are bounded", func(t *testing.T) {
		calls := 0
		err := WithRetry(func() error {
			calls++
			return errors.New("connection refused")
		}, 2)
		if err == nil || calls != 3 {
			t.Errorf("Expected 3 calls and an error, got %d calls, err %v", calls, err)
		}
	})
}

func TestAircraftRow(t *testing.T) {
	alt := 35000.0
	ac := adsb.AircraftRecord{
		ID:             "adf7c9",
		Callsign:       "RCH871",
		Position:       adsb.Position{Latitude: 38.9, Longitude: -77.5, Altitude: &alt},
		PositionSource: adsb.SourceMLAT,
		IsMilitary:     true,
		LastSeen:       time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	row, err := aircraftRow(7, 3, ac)
	if err != nil {
		t.Fatalf("aircraftRow failed: %v", err)
	}
	if len(row) != len(snapshotAircraftColumns) {
		t.Fatalf("Expected %d values, got %d", len(snapshotAircraftColumns), len(row))
	}
	if row[0] != int64(7) || row[1] != 3 || row[2] != "adf7c9" {
		t.Errorf("Unexpected key columns %v", row[:3])
	}
	if row[13] != "MLAT" {
		t.Errorf("Expected position source MLAT, got %v", row[13])
	}
	if row[16] != "[]" {
		t.Errorf("Expected empty trail JSON, got %v", row[16])
	}
	if row[7] != (sql.NullFloat64{Float64: 35000, Valid: true}) {
		t.Errorf("Expected altitude 35000, got %v", row[7])
	}
	if row[9] != (sql.NullFloat64{}) {
		t.Errorf("Expected null speed, got %v", row[9])
	}
}

// testDB connects to the database named by ADS_RADAR_TEST_DB_* variables,
// skipping the test when none is configured.
func testDB(t *testing.T) *DB {
	t.Helper()
	host := os.Getenv("ADS_RADAR_TEST_DB_HOST")
	if host == "" {
		t.Skip("ADS_RADAR_TEST_DB_HOST not set")
	}
	port, _ := strconv.Atoi(os.Getenv("ADS_RADAR_TEST_DB_PORT"))
	if port == 0 {
		port = 5432
	}
	cfg := config.DatabaseConfig{
		Host:         host,
		Port:         port,
		Username:     os.Getenv("ADS_RADAR_TEST_DB_USER"),
		Password:     os.Getenv("ADS_RADAR_TEST_DB_PASSWORD"),
		Database:     os.Getenv("ADS_RADAR_TEST_DB_NAME"),
		SSLMode:      "disable",
		MaxOpenConns: 2,
		MaxIdleConns: 1,
	}
	db, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	if err := db.InitSchema(ctx); err != nil {
		t.Fatalf("InitSchema failed: %v", err)
	}
	if _, err := db.ExecContext(ctx, `TRUNCATE snapshots CASCADE`); err != nil {
		t.Fatalf("Failed to reset tables: %v", err)
	}
	return db
}

func TestSnapshotRepository(t *testing.T) {
	db := testDB(t)
	repo := NewSnapshotRepository(db)
	ctx := context.Background()

	if _, _, err := repo.Latest(ctx); !errors.Is(err, ErrNoSnapshot) {
		t.Fatalf("Expected ErrNoSnapshot, got %v", err)
	}

	alt := 12000.0
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		snap := export.Snapshot{
			TakenAt: base.Add(time.Duration(i) * time.Minute),
			Source:  "opensky",
			Stats:   tracking.Counts{Total: 2, Military: 1},
			Aircraft: []adsb.AircraftRecord{
				{ID: "adf7c9", IsMilitary: true, Position: adsb.Position{Latitude: 1, Longitude: 2, Altitude: &alt}, LastSeen: base,
					Trail: []adsb.TrailPoint{{Latitude: 1, Longitude: 2, Timestamp: base}}},
				{ID: "a1", PositionSource: adsb.SourceASTERIX, Position: adsb.Position{Latitude: 3, Longitude: 4}, LastSeen: base},
			},
		}
		if _, err := repo.Save(ctx, snap); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	latest, _, err := repo.Latest(ctx)
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if !latest.TakenAt.Equal(base.Add(2 * time.Minute)) {
		t.Errorf("Expected newest snapshot, got %v", latest.TakenAt)
	}
	if len(latest.Aircraft) != 2 || latest.Aircraft[0].ID != "adf7c9" || latest.Aircraft[1].ID != "a1" {
		t.Fatalf("Unexpected aircraft %+v", latest.Aircraft)
	}
	if got := latest.Aircraft[0]; got.Position.Altitude == nil || *got.Position.Altitude != alt || len(got.Trail) != 1 {
		t.Errorf("Altitude or trail lost: %+v", got)
	}
	if got := latest.Aircraft[1]; got.Position.Altitude != nil || got.PositionSource != adsb.SourceASTERIX {
		t.Errorf("Null altitude or source lost: %+v", got)
	}

	removed, err := repo.Prune(ctx, 1)
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if removed != 2 {
		t.Errorf("Expected 2 snapshots pruned, got %d", removed)
	}

	stats, err := db.GetStats(ctx)
	if err != nil {
		t.Fatalf("GetStats failed: %v", err)
	}
	if stats["snapshots"] != int64(1) || stats["aircraft_rows"] != int64(2) {
		t.Errorf("Unexpected stats %v", stats)
	}
}
