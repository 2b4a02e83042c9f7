package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TypeFromString maps a stored event_type back to its discriminator.
func TypeFromString(s string) Type {
	switch s {
	case "VaultOpened":
		return TypeVaultOpened
	case "CollateralAdded":
		return TypeCollateralAdded
	case "ObligationsIssued":
		return TypeObligationsIssued
	case "ObligationsBurned":
		return TypeObligationsBurned
	case "CollateralRemoved":
		return TypeCollateralRemoved
	case "UnderlyingRemoved":
		return TypeUnderlyingRemoved
	case "Exercised":
		return TypeExercised
	case "Liquidated":
		return TypeLiquidated
	case "VaultRedeemed":
		return TypeVaultRedeemed
	case "ParametersUpdated":
		return TypeParametersUpdated
	default:
		return TypeUnknown
	}
}

// Decode reconstructs an Envelope from its stored row form, unmarshaling
// the JSON payload into the concrete struct for the event type.
func Decode(sequence int64, eventID, eventType string, payload []byte, timestamp time.Time) (Envelope, error) {
	id, err := uuid.Parse(eventID)
	if err != nil {
		return Envelope{}, fmt.Errorf("parse event id: %w", err)
	}

	t := TypeFromString(eventType)
	var p interface{}
	switch t {
	case TypeVaultOpened:
		p = &VaultOpened{}
	case TypeCollateralAdded:
		p = &CollateralAdded{}
	case TypeObligationsIssued:
		p = &ObligationsIssued{}
	case TypeObligationsBurned:
		p = &ObligationsBurned{}
	case TypeCollateralRemoved:
		p = &CollateralRemoved{}
	case TypeUnderlyingRemoved:
		p = &UnderlyingRemoved{}
	case TypeExercised:
		p = &Exercised{}
	case TypeLiquidated:
		p = &Liquidated{}
	case TypeVaultRedeemed:
		p = &VaultRedeemed{}
	case TypeParametersUpdated:
		p = &ParametersUpdated{}
	default:
		return Envelope{}, fmt.Errorf("unknown event type %q", eventType)
	}

	if err := json.Unmarshal(payload, p); err != nil {
		return Envelope{}, fmt.Errorf("unmarshal %s payload: %w", eventType, err)
	}

	return Envelope{
		Sequence:  sequence,
		EventID:   id,
		Type:      t,
		Timestamp: timestamp,
		Payload:   dereference(p),
	}, nil
}

// dereference returns the struct value so consumers can type-switch on
// the same concrete types the engine emits.
func dereference(p interface{}) interface{} {
	switch v := p.(type) {
	case *VaultOpened:
		return *v
	case *CollateralAdded:
		return *v
	case *ObligationsIssued:
		return *v
	case *ObligationsBurned:
		return *v
	case *CollateralRemoved:
		return *v
	case *UnderlyingRemoved:
		return *v
	case *Exercised:
		return *v
	case *Liquidated:
		return *v
	case *VaultRedeemed:
		return *v
	case *ParametersUpdated:
		return *v
	default:
		return p
	}
}
