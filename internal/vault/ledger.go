package vault

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrVaultAlreadyExists     = errors.New("vault already exists")
	ErrVaultNotFound          = errors.New("vault not found")
	ErrUnderflow              = errors.New("obligation count underflow")
	ErrInsufficientCollateral = errors.New("insufficient collateral")
)

// Ledger maps owners to vault records and keeps the append-only registry
// of owners in open order. It provides only primitive mutations; expiry
// gating and safety checks live in the engine, which is the sole caller.
type Ledger struct {
	vaults   map[common.Address]*Vault
	registry []common.Address
}

func NewLedger() *Ledger {
	return &Ledger{vaults: make(map[common.Address]*Vault)}
}

// Open creates a zero-valued vault and appends the owner to the
// registry. Re-opening is always rejected, never a silent no-op.
func (l *Ledger) Open(owner common.Address) (*Vault, error) {
	if _, ok := l.vaults[owner]; ok {
		return nil, fmt.Errorf("%w: %s", ErrVaultAlreadyExists, owner.Hex())
	}
	v := newVault(owner)
	l.vaults[owner] = v
	l.registry = append(l.registry, owner)
	return v, nil
}

// Get returns the vault for an owner.
func (l *Ledger) Get(owner common.Address) (*Vault, error) {
	v, ok := l.vaults[owner]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrVaultNotFound, owner.Hex())
	}
	return v, nil
}

// Exists reports whether the owner has opened a vault.
func (l *Ledger) Exists(owner common.Address) bool {
	_, ok := l.vaults[owner]
	return ok
}

// Len returns the number of vaults ever opened.
func (l *Ledger) Len() int {
	return len(l.registry)
}

// Owners returns the registry in open order. The returned slice is a copy.
func (l *Ledger) Owners() []common.Address {
	out := make([]common.Address, len(l.registry))
	copy(out, l.registry)
	return out
}

// OwnerAt returns the registry entry at index i.
func (l *Ledger) OwnerAt(i int) (common.Address, error) {
	if i < 0 || i >= len(l.registry) {
		return common.Address{}, fmt.Errorf("registry index %d out of range [0,%d)", i, len(l.registry))
	}
	return l.registry[i], nil
}

// AddCollateral increases a vault's collateral and returns the new balance.
func (l *Ledger) AddCollateral(owner common.Address, amount *big.Int) (*big.Int, error) {
	v, err := l.Get(owner)
	if err != nil {
		return nil, err
	}
	v.Collateral.Add(v.Collateral, amount)
	return new(big.Int).Set(v.Collateral), nil
}

// RemoveCollateral decreases a vault's collateral. The caller has
// already verified the amount against the balance and the safety check.
func (l *Ledger) RemoveCollateral(owner common.Address, amount *big.Int) error {
	v, err := l.Get(owner)
	if err != nil {
		return err
	}
	if v.Collateral.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s, remove %s", ErrInsufficientCollateral, v.Collateral, amount)
	}
	v.Collateral.Sub(v.Collateral, amount)
	return nil
}

// AddObligations increases a vault's outstanding obligation count.
func (l *Ledger) AddObligations(owner common.Address, count *big.Int) error {
	v, err := l.Get(owner)
	if err != nil {
		return err
	}
	v.Obligations.Add(v.Obligations, count)
	return nil
}

// RemoveObligations decreases a vault's outstanding obligation count,
// failing on underflow.
func (l *Ledger) RemoveObligations(owner common.Address, count *big.Int) error {
	v, err := l.Get(owner)
	if err != nil {
		return err
	}
	if v.Obligations.Cmp(count) < 0 {
		return fmt.Errorf("%w: have %s, remove %s", ErrUnderflow, v.Obligations, count)
	}
	v.Obligations.Sub(v.Obligations, count)
	return nil
}

// AddUnderlying registers underlying owed to the vault owner from an
// exercise settled against the vault.
func (l *Ledger) AddUnderlying(owner common.Address, amount *big.Int) error {
	v, err := l.Get(owner)
	if err != nil {
		return err
	}
	v.Underlying.Add(v.Underlying, amount)
	return nil
}

// ClearUnderlying zeroes the vault's underlying balance and returns the
// prior amount.
func (l *Ledger) ClearUnderlying(owner common.Address) (*big.Int, error) {
	v, err := l.Get(owner)
	if err != nil {
		return nil, err
	}
	prior := new(big.Int).Set(v.Underlying)
	v.Underlying.SetInt64(0)
	return prior, nil
}

// ZeroOut zeroes all three balances for post-expiry redemption and
// returns the prior collateral and underlying amounts. The vault record
// itself keeps existing.
func (l *Ledger) ZeroOut(owner common.Address) (collateral, underlying *big.Int, err error) {
	v, err := l.Get(owner)
	if err != nil {
		return nil, nil, err
	}
	collateral = new(big.Int).Set(v.Collateral)
	underlying = new(big.Int).Set(v.Underlying)
	v.Collateral.SetInt64(0)
	v.Obligations.SetInt64(0)
	v.Underlying.SetInt64(0)
	return collateral, underlying, nil
}

// State is the full ledger state, used for snapshots and recovery.
type State struct {
	Registry []common.Address `json:"registry"`
	Vaults   []Snapshot       `json:"vaults"`
}

// ExportState copies the full ledger state in registry order.
func (l *Ledger) ExportState() State {
	st := State{Registry: l.Owners()}
	st.Vaults = make([]Snapshot, 0, len(l.registry))
	for _, owner := range l.registry {
		st.Vaults = append(st.Vaults, l.vaults[owner].Snapshot())
	}
	return st
}

// RestoreState replaces the ledger contents from a snapshot.
func (l *Ledger) RestoreState(st State) error {
	vaults := make(map[common.Address]*Vault, len(st.Vaults))
	for _, s := range st.Vaults {
		v := newVault(s.Owner)
		if s.Collateral != nil {
			v.Collateral.Set(s.Collateral)
		}
		if s.Obligations != nil {
			v.Obligations.Set(s.Obligations)
		}
		if s.Underlying != nil {
			v.Underlying.Set(s.Underlying)
		}
		vaults[s.Owner] = v
	}
	for _, owner := range st.Registry {
		if _, ok := vaults[owner]; !ok {
			return fmt.Errorf("snapshot registry owner %s has no vault record", owner.Hex())
		}
	}
	l.vaults = vaults
	l.registry = append([]common.Address(nil), st.Registry...)
	return nil
}
