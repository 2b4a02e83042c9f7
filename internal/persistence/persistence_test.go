package persistence_test

import (
	"context"
	"encoding/json"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"OptionVault/internal/event"
	"OptionVault/internal/persistence"
	"OptionVault/internal/testutil"
)

var owner = common.HexToAddress("0x0000000000000000000000000000000000000a11")

func eventRows(t *testing.T, from, count int64) []persistence.EventRow {
	t.Helper()
	rows := make([]persistence.EventRow, 0, count)
	for seq := from; seq < from+count; seq++ {
		payload, err := persistence.MarshalPayload(event.CollateralAdded{
			Owner:      owner,
			Amount:     big.NewInt(100),
			NewBalance: big.NewInt(100 * (seq + 1)),
		})
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		rows = append(rows, persistence.EventRow{
			Sequence:  seq,
			EventID:   uuid.New(),
			EventType: event.TypeCollateralAdded.String(),
			Payload:   payload,
			Timestamp: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		})
	}
	return rows
}

// ============================================================================
// Test: event batch writes (integration)
// ============================================================================

func TestWriteEventBatch_Idempotent(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	writer := persistence.NewEventLogWriter(db)
	rows := eventRows(t, 0, 5)

	for i := 0; i < 2; i++ {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			t.Fatalf("begin tx: %v", err)
		}
		if err := writer.WriteEventBatch(ctx, tx, rows); err != nil {
			tx.Rollback()
			t.Fatalf("write batch (pass %d): %v", i, err)
		}
		if err := tx.Commit(); err != nil {
			t.Fatalf("commit (pass %d): %v", i, err)
		}
	}

	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM event_log.events").Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 5 {
		t.Errorf("got %d rows after replayed batch, want 5", n)
	}
}

func TestLoadEventsFrom_OrderAndBound(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	writer := persistence.NewEventLogWriter(db)
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin tx: %v", err)
	}
	if err := writer.WriteEventBatch(ctx, tx, eventRows(t, 0, 10)); err != nil {
		tx.Rollback()
		t.Fatalf("write batch: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	sm := persistence.NewSnapshotManager(db)
	got, err := sm.LoadEventsFrom(ctx, 4, 100)
	if err != nil {
		t.Fatalf("load events: %v", err)
	}
	if len(got) != 6 {
		t.Fatalf("got %d events, want 6", len(got))
	}
	for i, e := range got {
		if e.Sequence != int64(4+i) {
			t.Errorf("event[%d] sequence = %d, want %d", i, e.Sequence, 4+i)
		}
	}

	// Rows decode back into engine-shaped envelopes.
	env, err := event.Decode(got[0].Sequence, got[0].EventID.String(), got[0].EventType, got[0].Payload, got[0].Timestamp)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := env.Payload.(event.CollateralAdded); !ok {
		t.Errorf("payload is %T, want event.CollateralAdded", env.Payload)
	}

	seq, err := sm.LatestSequence(ctx)
	if err != nil {
		t.Fatalf("latest sequence: %v", err)
	}
	if seq != 9 {
		t.Errorf("latest sequence = %d, want 9", seq)
	}
}

// ============================================================================
// Test: snapshot save / load (integration)
// ============================================================================

func TestSnapshot_SaveAndLoadLatest(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	sm := persistence.NewSnapshotManager(db)

	latest, err := sm.LoadLatest(ctx)
	if err != nil {
		t.Fatalf("load on cold start: %v", err)
	}
	if latest != nil {
		t.Fatalf("got snapshot %d on cold start, want nil", latest.Sequence)
	}

	for _, seq := range []int64{100, 250} {
		data, _ := json.Marshal(map[string]int64{"sequence": seq})
		err := sm.Save(ctx, &persistence.Snapshot{
			Sequence:  seq,
			Data:      data,
			CreatedAt: time.Now().UTC(),
		})
		if err != nil {
			t.Fatalf("save %d: %v", seq, err)
		}
	}

	latest, err = sm.LoadLatest(ctx)
	if err != nil {
		t.Fatalf("load latest: %v", err)
	}
	if latest == nil || latest.Sequence != 250 {
		t.Fatalf("latest = %+v, want sequence 250", latest)
	}

	// Re-saving the same sequence overwrites, never duplicates.
	if err := sm.Save(ctx, &persistence.Snapshot{Sequence: 250, Data: []byte(`{}`), CreatedAt: time.Now().UTC()}); err != nil {
		t.Fatalf("re-save: %v", err)
	}
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM event_log.snapshots WHERE sequence = 250").Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Errorf("got %d rows for sequence 250, want 1", n)
	}
}
