package token

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// MemoryToken is an in-memory obligation-token ledger for tests and
// standalone runs. Burning below zero is rejected, never clamped.
type MemoryToken struct {
	balances map[common.Address]*big.Int
	name     string
	symbol   string
}

func NewMemoryToken() *MemoryToken {
	return &MemoryToken{balances: make(map[common.Address]*big.Int)}
}

func (t *MemoryToken) Mint(to common.Address, count *big.Int) error {
	if count.Sign() < 0 {
		return fmt.Errorf("mint negative count %s", count)
	}
	bal, ok := t.balances[to]
	if !ok {
		bal = new(big.Int)
		t.balances[to] = bal
	}
	bal.Add(bal, count)
	return nil
}

func (t *MemoryToken) Burn(from common.Address, count *big.Int) error {
	if count.Sign() < 0 {
		return fmt.Errorf("burn negative count %s", count)
	}
	bal, ok := t.balances[from]
	if !ok || bal.Cmp(count) < 0 {
		return fmt.Errorf("burn %s from %s: insufficient balance", count, from.Hex())
	}
	bal.Sub(bal, count)
	return nil
}

func (t *MemoryToken) BalanceOf(holder common.Address) *big.Int {
	bal, ok := t.balances[holder]
	if !ok {
		return new(big.Int)
	}
	return new(big.Int).Set(bal)
}

func (t *MemoryToken) SetDetails(name, symbol string) {
	t.name = name
	t.symbol = symbol
}

// Details returns the current token name and symbol.
func (t *MemoryToken) Details() (string, string) {
	return t.name, t.symbol
}

type assetKey struct {
	asset  common.Address
	holder common.Address
}

// MemoryAssets is an in-memory AssetTransfer. The pool is a reserved
// holder representing the vault contract's own custody.
type MemoryAssets struct {
	balances map[assetKey]*big.Int
	pool     common.Address
}

func NewMemoryAssets(pool common.Address) *MemoryAssets {
	return &MemoryAssets{
		balances: make(map[assetKey]*big.Int),
		pool:     pool,
	}
}

// Fund credits a holder with an asset balance. Test setup only.
func (a *MemoryAssets) Fund(asset, holder common.Address, amount *big.Int) {
	a.credit(asset, holder, amount)
}

// BalanceOf returns a holder's balance of an asset.
func (a *MemoryAssets) BalanceOf(asset, holder common.Address) *big.Int {
	bal, ok := a.balances[assetKey{asset, holder}]
	if !ok {
		return new(big.Int)
	}
	return new(big.Int).Set(bal)
}

// PoolBalance returns the vault pool's balance of an asset.
func (a *MemoryAssets) PoolBalance(asset common.Address) *big.Int {
	return a.BalanceOf(asset, a.pool)
}

func (a *MemoryAssets) TransferIn(asset, from common.Address, amount *big.Int) error {
	if err := a.debit(asset, from, amount); err != nil {
		return err
	}
	a.credit(asset, a.pool, amount)
	return nil
}

func (a *MemoryAssets) TransferOut(asset, to common.Address, amount *big.Int) error {
	if err := a.debit(asset, a.pool, amount); err != nil {
		return err
	}
	a.credit(asset, to, amount)
	return nil
}

func (a *MemoryAssets) credit(asset, holder common.Address, amount *big.Int) {
	key := assetKey{asset, holder}
	bal, ok := a.balances[key]
	if !ok {
		bal = new(big.Int)
		a.balances[key] = bal
	}
	bal.Add(bal, amount)
}

func (a *MemoryAssets) debit(asset, holder common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return fmt.Errorf("transfer negative amount %s", amount)
	}
	key := assetKey{asset, holder}
	bal, ok := a.balances[key]
	if !ok || bal.Cmp(amount) < 0 {
		return fmt.Errorf("transfer %s of %s from %s: insufficient balance",
			amount, asset.Hex(), holder.Hex())
	}
	bal.Sub(bal, amount)
	return nil
}
