package vault

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Vault is one owner's position: collateral held, obligation tokens
// issued against it, and underlying owed from exercises settled against
// it. A vault that exists with all-zero balances is distinct from no
// vault at all (redeemed vaults keep existing).
type Vault struct {
	Owner       common.Address
	Collateral  *big.Int
	Obligations *big.Int
	Underlying  *big.Int
}

func newVault(owner common.Address) *Vault {
	return &Vault{
		Owner:       owner,
		Collateral:  new(big.Int),
		Obligations: new(big.Int),
		Underlying:  new(big.Int),
	}
}

// Snapshot is a copy of the vault's balances, safe to hand out of the
// engine goroutine.
type Snapshot struct {
	Owner       common.Address `json:"owner"`
	Collateral  *big.Int       `json:"collateral"`
	Obligations *big.Int       `json:"obligations"`
	Underlying  *big.Int       `json:"underlying"`
}

func (v *Vault) Snapshot() Snapshot {
	return Snapshot{
		Owner:       v.Owner,
		Collateral:  new(big.Int).Set(v.Collateral),
		Obligations: new(big.Int).Set(v.Obligations),
		Underlying:  new(big.Int).Set(v.Underlying),
	}
}
