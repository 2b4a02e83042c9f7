package core_test

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"OptionVault/internal/core"
	"OptionVault/internal/event"
	"OptionVault/internal/vault"
)

// exerciseHarness opens two vaults with 5 and 10 outstanding obligations,
// all issued to carol, and funds carol with underlying to settle them.
func exerciseHarness(t *testing.T) *harness {
	t.Helper()
	h := newHarness(t)

	h.fundedVault(t, alice, 8)
	if err := h.engine.IssueObligations(alice, carol, big.NewInt(5), preWindow); err != nil {
		t.Fatalf("issue alice: %v", err)
	}
	h.fundedVault(t, bob, 16)
	if err := h.engine.IssueObligations(bob, carol, big.NewInt(10), preWindow); err != nil {
		t.Fatalf("issue bob: %v", err)
	}

	h.assets.Fund(underlyingAsset, carol, big.NewInt(100))
	h.drainEvents()
	return h
}

func vaultState(t *testing.T, h *harness, owner common.Address) (collateral, obligations, underlying *big.Int) {
	t.Helper()
	v, err := h.engine.Ledger().Get(owner)
	if err != nil {
		t.Fatalf("get %s: %v", owner.Hex(), err)
	}
	return new(big.Int).Set(v.Collateral), new(big.Int).Set(v.Obligations), new(big.Int).Set(v.Underlying)
}

// ============================================================================
// Test: settlement across the supplied vault list
// ============================================================================

func TestExercise_SpansVaults(t *testing.T) {
	h := exerciseHarness(t)

	err := h.engine.Exercise(carol, big.NewInt(8), []common.Address{alice, bob}, inWindow)
	if err != nil {
		t.Fatalf("exercise: %v", err)
	}

	// First vault drained entirely, second covers the remaining 3.
	coll, obl, und := vaultState(t, h, alice)
	if coll.Cmp(big.NewInt(3)) != 0 || obl.Sign() != 0 || und.Cmp(big.NewInt(5)) != 0 {
		t.Errorf("alice vault = %s/%s/%s, want 3/0/5", coll, obl, und)
	}
	coll, obl, und = vaultState(t, h, bob)
	if coll.Cmp(big.NewInt(13)) != 0 || obl.Cmp(big.NewInt(7)) != 0 || und.Cmp(big.NewInt(3)) != 0 {
		t.Errorf("bob vault = %s/%s/%s, want 13/7/3", coll, obl, und)
	}

	// Carol burned 8 of 15 tokens, paid 8 underlying, received 8 collateral.
	if got := h.obligations.BalanceOf(carol); got.Cmp(big.NewInt(7)) != 0 {
		t.Errorf("carol tokens = %s, want 7", got)
	}
	if got := h.assets.BalanceOf(underlyingAsset, carol); got.Cmp(big.NewInt(92)) != 0 {
		t.Errorf("carol underlying = %s, want 92", got)
	}
	if got := h.assets.BalanceOf(nativeAsset, carol); got.Cmp(big.NewInt(8)) != 0 {
		t.Errorf("carol collateral = %s, want 8", got)
	}

	// One settlement event per touched vault.
	var exercised int
	for _, env := range h.drainEvents() {
		if env.Type == event.TypeExercised {
			exercised++
		}
	}
	if exercised != 2 {
		t.Errorf("got %d exercise events, want 2", exercised)
	}
}

func TestExercise_StopsAtTerminatingVault(t *testing.T) {
	h := exerciseHarness(t)

	// Alice alone covers 5; bob is listed but never touched.
	if err := h.engine.Exercise(carol, big.NewInt(5), []common.Address{alice, bob}, inWindow); err != nil {
		t.Fatalf("exercise: %v", err)
	}
	coll, obl, und := vaultState(t, h, bob)
	if coll.Cmp(big.NewInt(16)) != 0 || obl.Cmp(big.NewInt(10)) != 0 || und.Sign() != 0 {
		t.Errorf("bob vault = %s/%s/%s, want untouched 16/10/0", coll, obl, und)
	}
}

// ============================================================================
// Test: rejection paths leave state untouched
// ============================================================================

func TestExercise_InsufficientVaults(t *testing.T) {
	h := exerciseHarness(t)

	err := h.engine.Exercise(carol, big.NewInt(20), []common.Address{alice, bob}, inWindow)
	if !errors.Is(err, core.ErrInsufficientVaultsSupplied) {
		t.Fatalf("got %v, want ErrInsufficientVaultsSupplied", err)
	}

	// Planning happens before any mutation; both vaults are intact.
	coll, obl, _ := vaultState(t, h, alice)
	if coll.Cmp(big.NewInt(8)) != 0 || obl.Cmp(big.NewInt(5)) != 0 {
		t.Errorf("alice vault mutated: %s/%s", coll, obl)
	}
	if got := h.obligations.BalanceOf(carol); got.Cmp(big.NewInt(15)) != 0 {
		t.Errorf("carol tokens = %s, want 15", got)
	}
	if events := h.drainEvents(); len(events) != 0 {
		t.Errorf("rejected exercise emitted %d events", len(events))
	}
}

func TestExercise_OutsideWindow(t *testing.T) {
	h := exerciseHarness(t)

	err := h.engine.Exercise(carol, big.NewInt(1), []common.Address{alice}, preWindow)
	if !errors.Is(err, core.ErrOutsideExerciseWindow) {
		t.Errorf("before window: got %v, want ErrOutsideExerciseWindow", err)
	}
	err = h.engine.Exercise(carol, big.NewInt(1), []common.Address{alice}, postExpiry)
	if !errors.Is(err, core.ErrOutsideExerciseWindow) {
		t.Errorf("after expiry: got %v, want ErrOutsideExerciseWindow", err)
	}
}

func TestExercise_UnknownVault(t *testing.T) {
	h := exerciseHarness(t)

	unknown := common.HexToAddress("0x00000000000000000000000000000000000000fe")
	err := h.engine.Exercise(carol, big.NewInt(1), []common.Address{unknown}, inWindow)
	if !errors.Is(err, vault.ErrVaultNotFound) {
		t.Errorf("got %v, want ErrVaultNotFound", err)
	}
}

func TestExercise_EmptyVaultInList(t *testing.T) {
	h := exerciseHarness(t)
	if err := h.engine.OpenVault(carol, preWindow); err != nil {
		t.Fatalf("open: %v", err)
	}

	err := h.engine.Exercise(carol, big.NewInt(3), []common.Address{carol, alice}, inWindow)
	if !errors.Is(err, core.ErrZeroExercise) {
		t.Errorf("got %v, want ErrZeroExercise", err)
	}
}

func TestExercise_InsufficientCallerBalance(t *testing.T) {
	h := exerciseHarness(t)
	h.obligations.Burn(carol, big.NewInt(12))

	err := h.engine.Exercise(carol, big.NewInt(8), []common.Address{alice, bob}, inWindow)
	if !errors.Is(err, core.ErrInsufficientCallerBalance) {
		t.Errorf("got %v, want ErrInsufficientCallerBalance", err)
	}
}

// An exerciser short of underlying fails the whole call, with every
// listed vault left as it was and no events emitted.
func TestExercise_UnderlyingShortfall(t *testing.T) {
	h := newHarness(t)
	h.fundedVault(t, alice, 8)
	if err := h.engine.IssueObligations(alice, carol, big.NewInt(5), preWindow); err != nil {
		t.Fatalf("issue alice: %v", err)
	}
	h.fundedVault(t, bob, 16)
	if err := h.engine.IssueObligations(bob, carol, big.NewInt(10), preWindow); err != nil {
		t.Fatalf("issue bob: %v", err)
	}

	// 8 obligations call for 8 underlying; carol holds only 5.
	h.assets.Fund(underlyingAsset, carol, big.NewInt(5))
	h.drainEvents()

	err := h.engine.Exercise(carol, big.NewInt(8), []common.Address{alice, bob}, inWindow)
	if err == nil {
		t.Fatal("exercise succeeded with 5 underlying against 8 due")
	}

	coll, obl, und := vaultState(t, h, alice)
	if coll.Cmp(big.NewInt(8)) != 0 || obl.Cmp(big.NewInt(5)) != 0 || und.Sign() != 0 {
		t.Errorf("alice vault = %s/%s/%s, want untouched 8/5/0", coll, obl, und)
	}
	coll, obl, und = vaultState(t, h, bob)
	if coll.Cmp(big.NewInt(16)) != 0 || obl.Cmp(big.NewInt(10)) != 0 || und.Sign() != 0 {
		t.Errorf("bob vault = %s/%s/%s, want untouched 16/10/0", coll, obl, und)
	}
	if got := h.obligations.BalanceOf(carol); got.Cmp(big.NewInt(15)) != 0 {
		t.Errorf("carol tokens = %s, want 15", got)
	}
	if got := h.assets.BalanceOf(underlyingAsset, carol); got.Cmp(big.NewInt(5)) != 0 {
		t.Errorf("carol underlying = %s, want 5", got)
	}
	if events := h.drainEvents(); len(events) != 0 {
		t.Errorf("rejected exercise emitted %d events", len(events))
	}
}

// ============================================================================
// Test: underlying withdrawal after settlement
// ============================================================================

func TestRemoveUnderlying(t *testing.T) {
	h := exerciseHarness(t)
	if err := h.engine.Exercise(carol, big.NewInt(8), []common.Address{alice, bob}, inWindow); err != nil {
		t.Fatalf("exercise: %v", err)
	}

	withdrawn, err := h.engine.RemoveUnderlying(alice, inWindow)
	if err != nil {
		t.Fatalf("remove underlying: %v", err)
	}
	if withdrawn.Cmp(big.NewInt(5)) != 0 {
		t.Errorf("withdrawn = %s, want 5", withdrawn)
	}
	if got := h.assets.BalanceOf(underlyingAsset, alice); got.Cmp(big.NewInt(5)) != 0 {
		t.Errorf("owner underlying balance = %s, want 5", got)
	}

	_, err = h.engine.RemoveUnderlying(alice, inWindow)
	if !errors.Is(err, core.ErrNoUnderlyingBalance) {
		t.Errorf("got %v, want ErrNoUnderlyingBalance", err)
	}
}

// Redemption after expiry pays out both collateral and underlying left
// in the vault.
func TestRedeem_IncludesUnderlying(t *testing.T) {
	h := exerciseHarness(t)
	if err := h.engine.Exercise(carol, big.NewInt(5), []common.Address{alice}, inWindow); err != nil {
		t.Fatalf("exercise: %v", err)
	}

	if err := h.engine.RedeemVaultBalance(alice, postExpiry); err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if got := h.assets.BalanceOf(nativeAsset, alice); got.Cmp(big.NewInt(3)) != 0 {
		t.Errorf("collateral paid = %s, want 3", got)
	}
	if got := h.assets.BalanceOf(underlyingAsset, alice); got.Cmp(big.NewInt(5)) != 0 {
		t.Errorf("underlying paid = %s, want 5", got)
	}
}
