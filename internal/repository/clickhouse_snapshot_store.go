package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"LiqMap/internal/domain/models"
	"LiqMap/internal/domain/repository"
)

// CHSnapshotStore implements SnapshotStore for ClickHouse. Levels are stored
// as a JSON column; range queries only ever need whole snapshots back.
type CHSnapshotStore struct {
	db    *sql.DB
	table string
}

// NewCHSnapshotStore creates ClickHouse snapshot storage.
func NewCHSnapshotStore(db *sql.DB, table string) repository.SnapshotStore {
	if table == "" {
		table = "liqmap.heatmap_snapshots"
	}
	return &CHSnapshotStore{db: db, table: table}
}

func (s *CHSnapshotStore) Init(ctx context.Context) error {
	return nil // Schema init in pkg
}

func (s *CHSnapshotStore) Store(ctx context.Context, snap *models.HeatmapSnapshot) error {
	return s.StoreBatch(ctx, []*models.HeatmapSnapshot{snap})
}

func (s *CHSnapshotStore) StoreBatch(ctx context.Context, snaps []*models.HeatmapSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}
	// Multi-row VALUES insert to reduce round-trips.
	const chunkSize = 500
	for start := 0; start < len(snaps); start += chunkSize {
		end := start + chunkSize
		if end > len(snaps) {
			end = len(snaps)
		}

		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*7)
		for _, snap := range snaps[start:end] {
			if snap == nil || snap.Symbol == "" || snap.Timestamp.IsZero() {
				continue
			}
			levels, err := json.Marshal(snap.Levels)
			if err != nil {
				return fmt.Errorf("marshal levels: %w", err)
			}
			values = append(values, "(?, ?, ?, ?, ?, ?, ?)")
			args = append(args,
				snap.Timestamp,
				snap.Symbol,
				string(levels),
				snap.Meta.TotalLongVolume,
				snap.Meta.TotalShortVolume,
				snap.Meta.PositionsCreated,
				snap.Meta.PositionsConsumed,
			)
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf("INSERT INTO %s (ts, symbol, levels, total_long, total_short, created, consumed) VALUES %s",
			s.table, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return err
		}
	}
	return nil
}

func (s *CHSnapshotStore) Query(ctx context.Context, symbol string, from, to time.Time, limit int) ([]*models.HeatmapSnapshot, error) {
	q := fmt.Sprintf(`
        SELECT ts, symbol, levels, total_long, total_short, created, consumed
        FROM %s
        WHERE symbol = ? AND ts >= ? AND ts <= ?
        ORDER BY ts ASC
        LIMIT ?`, s.table)
	rows, err := s.db.QueryContext(ctx, q, symbol, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.HeatmapSnapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

func (s *CHSnapshotStore) Latest(ctx context.Context, symbol string) (*models.HeatmapSnapshot, error) {
	q := fmt.Sprintf(`
        SELECT ts, symbol, levels, total_long, total_short, created, consumed
        FROM %s
        WHERE symbol = ?
        ORDER BY ts DESC
        LIMIT 1`, s.table)
	rows, err := s.db.QueryContext(ctx, q, symbol)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, sql.ErrNoRows
	}
	return scanSnapshot(rows)
}

func scanSnapshot(rows *sql.Rows) (*models.HeatmapSnapshot, error) {
	var snap models.HeatmapSnapshot
	var levels string
	if err := rows.Scan(&snap.Timestamp, &snap.Symbol, &levels,
		&snap.Meta.TotalLongVolume, &snap.Meta.TotalShortVolume,
		&snap.Meta.PositionsCreated, &snap.Meta.PositionsConsumed); err != nil {
		return nil, fmt.Errorf("scan snapshot: %w", err)
	}
	if levels != "" {
		if err := json.Unmarshal([]byte(levels), &snap.Levels); err != nil {
			return nil, fmt.Errorf("unmarshal levels: %w", err)
		}
	}
	return &snap, nil
}

func (s *CHSnapshotStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *CHSnapshotStore) Close() error {
	return nil // Managed by pkg
}
