package projection_test

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"OptionVault/internal/event"
	"OptionVault/internal/persistence"
	"OptionVault/internal/projection"
	"OptionVault/internal/query"
	"OptionVault/internal/testutil"
)

var (
	alice = common.HexToAddress("0x0000000000000000000000000000000000000a11")
	carol = common.HexToAddress("0x0000000000000000000000000000000000000ca1")
)

// ============================================================================
// Test: rebuild from the event log (integration)
// ============================================================================

func TestRebuild_ReplaysEventLog(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	payloads := []struct {
		typ     event.Type
		payload interface{}
	}{
		{event.TypeVaultOpened, event.VaultOpened{Owner: alice}},
		{event.TypeCollateralAdded, event.CollateralAdded{
			Owner: alice, Amount: big.NewInt(1600), NewBalance: big.NewInt(1600),
		}},
		{event.TypeObligationsIssued, event.ObligationsIssued{
			Owner: alice, Receiver: carol, Count: big.NewInt(1000),
		}},
		{event.TypeExercised, event.Exercised{
			Exerciser: carol, VaultOwner: alice,
			Count:          big.NewInt(400),
			CollateralPaid: big.NewInt(400),
			UnderlyingPaid: big.NewInt(400),
		}},
	}

	writer := persistence.NewEventLogWriter(db)
	rows := make([]persistence.EventRow, 0, len(payloads))
	for i, p := range payloads {
		data, err := persistence.MarshalPayload(p.payload)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rows = append(rows, persistence.EventRow{
			Sequence:  int64(i),
			EventID:   uuid.New(),
			EventType: p.typ.String(),
			Payload:   data,
			Timestamp: at,
		})
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin tx: %v", err)
	}
	if err := writer.WriteEventBatch(ctx, tx, rows); err != nil {
		tx.Rollback()
		t.Fatalf("write batch: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	if err := projection.Rebuild(ctx, db, nil); err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	svc := query.NewService(db)
	v, err := svc.GetVault(ctx, alice.Hex())
	if err != nil {
		t.Fatalf("get vault: %v", err)
	}
	if v.Collateral != "1200" {
		t.Errorf("collateral = %s, want 1200", v.Collateral)
	}
	if v.Obligations != "600" {
		t.Errorf("obligations = %s, want 600", v.Obligations)
	}
	if v.Underlying != "400" {
		t.Errorf("underlying = %s, want 400", v.Underlying)
	}
	if v.AsOfSequence != 3 {
		t.Errorf("watermark = %d, want 3", v.AsOfSequence)
	}

	history, err := svc.GetExerciseHistory(ctx, alice.Hex(), 10, nil)
	if err != nil {
		t.Fatalf("exercise history: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("got %d history rows, want 1", len(history))
	}
	if history[0].Count != "400" || history[0].Exerciser != carol.Hex() {
		t.Errorf("history row = %+v", history[0])
	}

	// A second rebuild over the same log converges to the same state.
	if err := projection.Rebuild(ctx, db, nil); err != nil {
		t.Fatalf("second rebuild: %v", err)
	}
	v, err = svc.GetVault(ctx, alice.Hex())
	if err != nil {
		t.Fatalf("get vault after second rebuild: %v", err)
	}
	if v.Collateral != "1200" {
		t.Errorf("collateral after second rebuild = %s, want 1200", v.Collateral)
	}
}

// ============================================================================
// Test: unknown vault (integration)
// ============================================================================

func TestGetVault_Unknown(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	svc := query.NewService(db)
	_, err := svc.GetVault(context.Background(), alice.Hex())
	if !errors.Is(err, query.ErrVaultNotFound) {
		t.Errorf("got %v, want ErrVaultNotFound", err)
	}
}
