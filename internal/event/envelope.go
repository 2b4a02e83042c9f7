package event

import (
	"time"

	"github.com/google/uuid"
)

// Type discriminator for event payloads
type Type int32

const (
	TypeUnknown Type = iota
	TypeVaultOpened
	TypeCollateralAdded
	TypeObligationsIssued
	TypeObligationsBurned
	TypeCollateralRemoved
	TypeUnderlyingRemoved
	TypeExercised
	TypeLiquidated
	TypeVaultRedeemed
	TypeParametersUpdated
)

// Envelope wraps every event in the log. The sequence is the global
// monotonic number assigned by the engine; it is the total order of all
// committed operations.
type Envelope struct {
	// Global monotonic sequence assigned by the engine
	Sequence int64

	// Unique event identifier
	EventID uuid.UUID

	// Event type discriminator
	Type Type

	// Versioned input timestamp of the operation (NOT wall-clock)
	Timestamp time.Time

	// Event-specific payload, JSON-encoded at the persistence boundary
	Payload interface{}
}

func (t Type) String() string {
	switch t {
	case TypeVaultOpened:
		return "VaultOpened"
	case TypeCollateralAdded:
		return "CollateralAdded"
	case TypeObligationsIssued:
		return "ObligationsIssued"
	case TypeObligationsBurned:
		return "ObligationsBurned"
	case TypeCollateralRemoved:
		return "CollateralRemoved"
	case TypeUnderlyingRemoved:
		return "UnderlyingRemoved"
	case TypeExercised:
		return "Exercised"
	case TypeLiquidated:
		return "Liquidated"
	case TypeVaultRedeemed:
		return "VaultRedeemed"
	case TypeParametersUpdated:
		return "ParametersUpdated"
	default:
		return "Unknown"
	}
}
