package order

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the order state machine position.
type Status string

const (
	StatusPending         Status = "PENDING"
	StatusConfirmed       Status = "CONFIRMED"
	StatusCheckoutCreated Status = "CHECKOUT_CREATED"
	StatusProcessing      Status = "PROCESSING"
	StatusShipped         Status = "SHIPPED"
	StatusDelivered       Status = "DELIVERED"
	StatusPaid            Status = "PAID"
	StatusFailed          Status = "FAILED"
	StatusCancelled       Status = "CANCELLED"
	StatusExpired         Status = "EXPIRED"
	StatusRefunded        Status = "REFUNDED"
)

// Terminal statuses are sticky: once reached, only an idempotent replay of
// the same status is accepted.
func (s Status) Terminal() bool {
	switch s {
	case StatusPaid, StatusFailed, StatusCancelled, StatusExpired, StatusRefunded:
		return true
	}
	return false
}

// PaymentEligible statuses are the only ones from which a provider-driven
// terminal transition is accepted.
func (s Status) PaymentEligible() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCheckoutCreated:
		return true
	}
	return false
}

// Line is the immutable snapshot of a cart line taken at order creation.
type Line struct {
	ID             uuid.UUID `json:"id" db:"id"`
	OrderID        uuid.UUID `json:"order_id" db:"order_id"`
	ProductID      uuid.UUID `json:"product_id" db:"product_id"`
	ProductName    string    `json:"product_name" db:"product_name"`
	SKU            string    `json:"sku" db:"sku"`
	Quantity       int       `json:"quantity" db:"quantity"`
	UnitPriceCents int64     `json:"unit_price_cents" db:"unit_price_cents"`
}

func (l Line) TotalCents() int64 {
	return l.UnitPriceCents * int64(l.Quantity)
}

// Address holds the shipping fields captured at checkout.
type Address struct {
	Name       string `json:"name" db:"ship_name"`
	Street     string `json:"street" db:"ship_street"`
	City       string `json:"city" db:"ship_city"`
	PostalCode string `json:"postal_code" db:"ship_postal_code"`
	Country    string `json:"country" db:"ship_country"`
}

// Order is the system of record for payment state once checkout begins.
// InventoryLocked is true while the stock decrement carried over from the
// cart reservation has been neither finalized (PAID) nor reversed.
type Order struct {
	ID              uuid.UUID `json:"id" db:"id"`
	Number          string    `json:"number" db:"order_number"`
	UserID          uuid.UUID `json:"user_id" db:"user_id"`
	Status          Status    `json:"status" db:"status"`
	ItemsCents      int64     `json:"items_cents" db:"items_cents"`
	ShippingCents   int64     `json:"shipping_cents" db:"shipping_cents"`
	TaxCents        int64     `json:"tax_cents" db:"tax_cents"`
	TotalCents      int64     `json:"total_cents" db:"total_cents"`
	Shipping        Address   `json:"shipping"`
	InventoryLocked bool      `json:"inventory_locked" db:"inventory_locked"`

	PaymentProvider   string `json:"payment_provider" db:"payment_provider"`
	PaymentIntentID   string `json:"payment_intent_id" db:"payment_intent_id"`
	CheckoutSessionID string `json:"checkout_session_id" db:"checkout_session_id"`
	FailureCode       string `json:"failure_code" db:"failure_code"`
	FailureMessage    string `json:"failure_message" db:"failure_message"`

	CreatedAt           time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at" db:"updated_at"`
	PaidAt              *time.Time `json:"paid_at" db:"paid_at"`
	FailedAt            *time.Time `json:"failed_at" db:"failed_at"`
	CanceledAt          *time.Time `json:"canceled_at" db:"canceled_at"`
	ExpiredAt           *time.Time `json:"expired_at" db:"expired_at"`
	InventoryReleasedAt *time.Time `json:"inventory_released_at" db:"inventory_released_at"`

	Lines []Line `json:"lines"`
}

// ItemsTotalCents recomputes the items total strictly from the persisted
// lines; client-supplied totals are never trusted.
func (o *Order) ItemsTotalCents() int64 {
	var total int64
	for _, l := range o.Lines {
		total += l.TotalCents()
	}
	return total
}

// NewNumber builds the human-readable order number.
func NewNumber(now time.Time) string {
	return fmt.Sprintf("ORD-%s-%.8s", now.Format("20060102"), uuid.New().String())
}
