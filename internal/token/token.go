package token

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ObligationToken is the fungible obligation-token ledger collaborator.
// The engine calls it to mint and burn oTokens; any error aborts the
// whole operation with no ledger mutation committed.
type ObligationToken interface {
	Mint(to common.Address, count *big.Int) error
	Burn(from common.Address, count *big.Int) error
	BalanceOf(holder common.Address) *big.Int
	SetDetails(name, symbol string)
}

// AssetTransfer moves collateral and underlying assets between external
// holders and the vault pool. TransferIn pulls from a holder into the
// pool; TransferOut pays from the pool to a holder.
type AssetTransfer interface {
	TransferIn(asset, from common.Address, amount *big.Int) error
	TransferOut(asset, to common.Address, amount *big.Int) error
}

// Guard gates administrative operations to a single principal.
type Guard interface {
	IsOwner(caller common.Address) bool
}

// OwnerGuard is the trivial Guard: one fixed administrative address.
type OwnerGuard struct {
	owner common.Address
}

func NewOwnerGuard(owner common.Address) *OwnerGuard {
	return &OwnerGuard{owner: owner}
}

func (g *OwnerGuard) IsOwner(caller common.Address) bool {
	return caller == g.owner
}
