package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SnapshotManager stores and loads engine state snapshots for recovery.
// A snapshot is the JSON-serialized engine state at a sequence; on warm
// restart the engine restores the latest snapshot and replays events
// from snapshot.sequence+1.
type SnapshotManager struct {
	db *sql.DB
}

// Snapshot is one stored engine state.
type Snapshot struct {
	Sequence  int64
	Data      []byte // JSON-encoded engine state
	CreatedAt time.Time
}

func NewSnapshotManager(db *sql.DB) *SnapshotManager {
	return &SnapshotManager{db: db}
}

// Save persists a snapshot. Re-saving the same sequence overwrites it.
func (sm *SnapshotManager) Save(ctx context.Context, snap *Snapshot) error {
	snapshotID := uuid.New()

	_, err := sm.db.ExecContext(ctx, `
		INSERT INTO event_log.snapshots
			(snapshot_id, sequence, data, size_bytes, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (sequence) DO UPDATE SET data = $3, size_bytes = $4
	`, snapshotID, snap.Sequence, snap.Data, len(snap.Data), snap.CreatedAt)

	return err
}

// LoadLatest returns the most recent snapshot, or nil on a cold start.
func (sm *SnapshotManager) LoadLatest(ctx context.Context) (*Snapshot, error) {
	row := sm.db.QueryRowContext(ctx, `
		SELECT sequence, data, created_at FROM event_log.snapshots
		ORDER BY sequence DESC
		LIMIT 1
	`)

	var snap Snapshot
	if err := row.Scan(&snap.Sequence, &snap.Data, &snap.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	return &snap, nil
}

// LoadEventsFrom loads events at or above a sequence, for replay.
func (sm *SnapshotManager) LoadEventsFrom(ctx context.Context, fromSequence int64, limit int) ([]EventRow, error) {
	rows, err := sm.db.QueryContext(ctx, `
		SELECT sequence, event_id, event_type, payload, timestamp
		FROM event_log.events
		WHERE sequence >= $1
		ORDER BY sequence ASC
		LIMIT $2
	`, fromSequence, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []EventRow
	for rows.Next() {
		var e EventRow
		if err := rows.Scan(&e.Sequence, &e.EventID, &e.EventType, &e.Payload, &e.Timestamp); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// LatestSequence returns the highest sequence in the event log.
func (sm *SnapshotManager) LatestSequence(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := sm.db.QueryRowContext(ctx, `
		SELECT MAX(sequence) FROM event_log.events
	`).Scan(&seq)
	if err != nil {
		return 0, err
	}
	if !seq.Valid {
		return 0, nil
	}
	return seq.Int64, nil
}
