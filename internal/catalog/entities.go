package catalog

import (
	"time"

	"github.com/google/uuid"
)

// Product is the catalog row mutated by the checkout core. Stock holds the
// quantity currently available for reservation; it never goes below zero.
type Product struct {
	ID         uuid.UUID `json:"id" db:"id"`
	Name       string    `json:"name" db:"name"`
	SKU        string    `json:"sku" db:"sku"`
	PriceCents int64     `json:"price_cents" db:"price_cents"`
	Stock      int       `json:"stock" db:"stock"`
	Active     bool      `json:"active" db:"active"`
	QuoteOnly  bool      `json:"quote_only" db:"quote_only"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// Movement types recorded for every stock adjustment. The movements table is
// both the audit trail and the idempotency ledger: a probe for an existing
// (reference_id, movement_type) pair makes restores safe to replay.
const (
	MovementReserved = "reserved" // cart line reservation, stock decremented
	MovementReleased = "released" // cart line removed or expired, stock returned
	MovementRestored = "restored" // order failed/cancelled/expired/refunded, stock returned
)

// Movement is one stock adjustment. ReferenceID is the cart line or order
// the adjustment belongs to; ChangeQuantity is signed.
type Movement struct {
	ID             uuid.UUID `json:"id" db:"id"`
	ProductID      uuid.UUID `json:"product_id" db:"product_id"`
	ReferenceID    uuid.UUID `json:"reference_id" db:"reference_id"`
	MovementType   string    `json:"movement_type" db:"movement_type"`
	ChangeQuantity int       `json:"change_quantity" db:"change_quantity"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}
