package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CardStatus is the lifecycle state of a card. ACTIVE and BLOCKED are
// interchangeable by explicit action; EXPIRED is set by the expiry sweep.
type CardStatus string

const (
	StatusActive  CardStatus = "ACTIVE"
	StatusBlocked CardStatus = "BLOCKED"
	StatusExpired CardStatus = "EXPIRED"
)

// Card represents a virtual payment card. The plaintext number is never
// stored; only its encrypted form (globally unique) and a display mask.
type Card struct {
	ID              int64           `json:"id"`
	EncryptedNumber string          `json:"-"` // Not serialized
	MaskedNumber    string          `json:"masked_card_number"`
	Holder          string          `json:"card_holder"`
	ExpiryDate      time.Time       `json:"expiry_date"`
	Status          CardStatus      `json:"status"`
	Balance         decimal.Decimal `json:"balance"`
	OwnerID         int64           `json:"owner_id"`
	CreatedAt       time.Time       `json:"created_at"`
}
