package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"dronecraft.ai/internal/sim/debugger"
	"dronecraft.ai/internal/sim/world"
)

// Reader runs read-only queries against an index written by SQLiteIndex,
// possibly from another process.
type Reader struct {
	db *sql.DB
}

func OpenReader(path string) (*Reader, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000;"); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Reader{db: db}, nil
}

func (r *Reader) Close() error { return r.db.Close() }

// Reader shares the writer's connection so queries see its commits.
func (s *SQLiteIndex) Reader() *Reader { return &Reader{db: s.db} }

func clampLimit(n int) int {
	if n <= 0 {
		return 50
	}
	if n > 5000 {
		return 5000
	}
	return n
}

// RecentDebug returns the newest debug entries, newest first. An empty
// droneID matches every drone.
func (r *Reader) RecentDebug(ctx context.Context, droneID string, limit int) ([]debugger.Entry, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT tick, drone_id, key, x, y, z FROM debug_entries
		WHERE (? = '' OR drone_id = ?) ORDER BY tick DESC, seq DESC LIMIT ?`, droneID, droneID, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query debug: %w", err)
	}
	defer rows.Close()
	var out []debugger.Entry
	for rows.Next() {
		var (
			e       debugger.Entry
			tick    int64
			x, y, z sql.NullInt64
		)
		if err := rows.Scan(&tick, &e.DroneID, &e.Key, &x, &y, &z); err != nil {
			return nil, err
		}
		e.Tick = uint64(tick)
		if x.Valid && y.Valid && z.Valid {
			e.Pos = &[3]int{int(x.Int64), int(y.Int64), int(z.Int64)}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// RecentSteps returns the newest step results, newest first. An empty
// drone name matches every drone.
func (r *Reader) RecentSteps(ctx context.Context, droneName string, limit int) ([]world.StepResult, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT raw_json FROM step_results
		WHERE (? = '' OR drone_name = ?) ORDER BY tick DESC, seq DESC LIMIT ?`, droneName, droneName, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query steps: %w", err)
	}
	defer rows.Close()
	var out []world.StepResult
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var res world.StepResult
		if err := json.Unmarshal([]byte(raw), &res); err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

type TickRow struct {
	Tick    uint64 `json:"tick"`
	Digest  string `json:"digest"`
	Drones  int    `json:"drones"`
	Actions int    `json:"actions"`
}

// RecentTicks returns the newest indexed ticks, newest first.
func (r *Reader) RecentTicks(ctx context.Context, limit int) ([]TickRow, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT tick, digest, drones, actions FROM ticks ORDER BY tick DESC LIMIT ?`, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query ticks: %w", err)
	}
	defer rows.Close()
	var out []TickRow
	for rows.Next() {
		var (
			t    TickRow
			tick int64
		)
		if err := rows.Scan(&tick, &t.Digest, &t.Drones, &t.Actions); err != nil {
			return nil, err
		}
		t.Tick = uint64(tick)
		out = append(out, t)
	}
	return out, rows.Err()
}

// LatestSnapshot returns the newest recorded snapshot, if any.
func (r *Reader) LatestSnapshot(ctx context.Context) (SnapshotRow, bool, error) {
	var (
		sn   SnapshotRow
		tick int64
	)
	err := r.db.QueryRowContext(ctx, `SELECT tick, path, seed, program, drones, blocks, claims FROM snapshots ORDER BY tick DESC LIMIT 1`).
		Scan(&tick, &sn.Path, &sn.Seed, &sn.Program, &sn.Drones, &sn.Blocks, &sn.Claims)
	if err == sql.ErrNoRows {
		return SnapshotRow{}, false, nil
	}
	if err != nil {
		return SnapshotRow{}, false, fmt.Errorf("query snapshots: %w", err)
	}
	sn.Tick = uint64(tick)
	return sn, true, nil
}

// CatalogDigest returns the stored digest of a catalog row.
func (r *Reader) CatalogDigest(ctx context.Context, name string) (string, error) {
	var d string
	err := r.db.QueryRowContext(ctx, `SELECT digest FROM catalogs WHERE name = ?`, name).Scan(&d)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return d, err
}
