package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/unklstewy/ads-radar/internal/export"
	"github.com/unklstewy/ads-radar/pkg/adsb"
	"github.com/unklstewy/ads-radar/pkg/tracking"
)

// ErrNoSnapshot is returned by Latest when the archive is empty.
var ErrNoSnapshot = errors.New("no snapshot archived")

// snapshotAircraftColumns is the COPY column order for snapshot_aircraft.
var snapshotAircraftColumns = []string{
	"snapshot_id", "ordinal", "icao", "callsign", "origin_country",
	"latitude", "longitude", "altitude_ft", "on_ground",
	"speed_kts", "heading_deg", "vertical_rate_fpm",
	"squawk", "position_source", "is_military", "last_seen", "trail",
}

// SnapshotRepository archives store snapshots in PostgreSQL.
type SnapshotRepository struct {
	db *DB
}

// NewSnapshotRepository creates a new snapshot repository.
func NewSnapshotRepository(db *DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// Save writes the snapshot header and every aircraft in one transaction
// and returns the new snapshot ID.
func (r *SnapshotRepository) Save(ctx context.Context, snap export.Snapshot) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO snapshots (taken_at, source, total, military, ground)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		snap.TakenAt, snap.Source, snap.Stats.Total, snap.Stats.Military, snap.Stats.Ground,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert snapshot: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn("snapshot_aircraft", snapshotAircraftColumns...))
	if err != nil {
		return 0, fmt.Errorf("failed to prepare copy: %w", err)
	}
	for i, ac := range snap.Aircraft {
		row, err := aircraftRow(id, i, ac)
		if err != nil {
			stmt.Close()
			return 0, err
		}
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			stmt.Close()
			return 0, fmt.Errorf("failed to copy aircraft %s: %w", ac.ID, err)
		}
	}
	// An empty Exec flushes the COPY buffer
	if _, err := stmt.ExecContext(ctx); err != nil {
		stmt.Close()
		return 0, fmt.Errorf("failed to flush copy: %w", err)
	}
	if err := stmt.Close(); err != nil {
		return 0, fmt.Errorf("failed to close copy: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return id, nil
}

// aircraftRow flattens one record into snapshotAircraftColumns order.
func aircraftRow(snapshotID int64, ordinal int, ac adsb.AircraftRecord) ([]interface{}, error) {
	trail := ac.Trail
	if trail == nil {
		trail = []adsb.TrailPoint{}
	}
	trailJSON, err := json.Marshal(trail)
	if err != nil {
		return nil, fmt.Errorf("failed to encode trail for %s: %w", ac.ID, err)
	}

	return []interface{}{
		snapshotID, ordinal, ac.ID, ac.Callsign, ac.OriginCountry,
		ac.Position.Latitude, ac.Position.Longitude, nullFloat(ac.Position.Altitude), ac.Position.OnGround,
		nullFloat(ac.Velocity.Speed), nullFloat(ac.Velocity.Heading), nullFloat(ac.Velocity.VerticalRate),
		ac.Squawk, ac.PositionSource.String(), ac.IsMilitary, ac.LastSeen.UTC(), string(trailJSON),
	}, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

// Latest returns the newest archived snapshot and its ID.
func (r *SnapshotRepository) Latest(ctx context.Context) (export.Snapshot, int64, error) {
	var (
		snap  export.Snapshot
		id    int64
		stats tracking.Counts
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, taken_at, source, total, military, ground
		 FROM snapshots
		 ORDER BY taken_at DESC, id DESC
		 LIMIT 1`,
	).Scan(&id, &snap.TakenAt, &snap.Source, &stats.Total, &stats.Military, &stats.Ground)
	if errors.Is(err, sql.ErrNoRows) {
		return export.Snapshot{}, 0, ErrNoSnapshot
	}
	if err != nil {
		return export.Snapshot{}, 0, fmt.Errorf("failed to query latest snapshot: %w", err)
	}
	snap.Stats = stats

	rows, err := r.db.QueryContext(ctx,
		`SELECT icao, callsign, origin_country, latitude, longitude, altitude_ft,
		        on_ground, speed_kts, heading_deg, vertical_rate_fpm, squawk,
		        position_source, is_military, last_seen, trail
		 FROM snapshot_aircraft
		 WHERE snapshot_id = $1
		 ORDER BY ordinal`,
		id,
	)
	if err != nil {
		return export.Snapshot{}, 0, fmt.Errorf("failed to query snapshot aircraft: %w", err)
	}
	defer rows.Close()

	snap.Aircraft = []adsb.AircraftRecord{}
	for rows.Next() {
		var (
			ac                adsb.AircraftRecord
			alt, spd, hdg, vr sql.NullFloat64
			source            string
			trailJSON         []byte
		)
		if err := rows.Scan(&ac.ID, &ac.Callsign, &ac.OriginCountry,
			&ac.Position.Latitude, &ac.Position.Longitude, &alt,
			&ac.Position.OnGround, &spd, &hdg, &vr, &ac.Squawk,
			&source, &ac.IsMilitary, &ac.LastSeen, &trailJSON); err != nil {
			return export.Snapshot{}, 0, fmt.Errorf("failed to scan snapshot aircraft: %w", err)
		}
		ac.Position.Altitude = floatPtr(alt)
		ac.Velocity.Speed = floatPtr(spd)
		ac.Velocity.Heading = floatPtr(hdg)
		ac.Velocity.VerticalRate = floatPtr(vr)
		if err := ac.PositionSource.UnmarshalJSON([]byte(`"` + source + `"`)); err != nil {
			return export.Snapshot{}, 0, err
		}
		if err := json.Unmarshal(trailJSON, &ac.Trail); err != nil {
			return export.Snapshot{}, 0, fmt.Errorf("failed to decode trail for %s: %w", ac.ID, err)
		}
		snap.Aircraft = append(snap.Aircraft, ac)
	}
	if err := rows.Err(); err != nil {
		return export.Snapshot{}, 0, err
	}

	return snap, id, nil
}

// Prune deletes all but the newest keep snapshots and returns how many
// were removed. Aircraft rows go with them via ON DELETE CASCADE.
func (r *SnapshotRepository) Prune(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM snapshots
		 WHERE id NOT IN (
			SELECT id FROM snapshots ORDER BY taken_at DESC, id DESC LIMIT $1
		 )`,
		keep,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to prune snapshots: %w", err)
	}
	return res.RowsAffected()
}
