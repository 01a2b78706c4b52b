package cart

import (
	"time"

	"github.com/google/uuid"
)

// Line is one reserved cart entry. While the line exists its quantity is held
// against the product's stock; ReservedUntil bounds how long the hold lasts.
type Line struct {
	ID             uuid.UUID `json:"id" db:"id"`
	CartID         uuid.UUID `json:"cart_id" db:"cart_id"`
	ProductID      uuid.UUID `json:"product_id" db:"product_id"`
	ProductName    string    `json:"product_name" db:"product_name"`
	SKU            string    `json:"sku" db:"sku"`
	Quantity       int       `json:"quantity" db:"quantity"`
	UnitPriceCents int64     `json:"unit_price_cents" db:"unit_price_cents"`
	ReservedUntil  time.Time `json:"reserved_until" db:"reserved_until"`
}

// TotalCents is the line total at the snapshotted unit price.
func (l Line) TotalCents() int64 {
	return l.UnitPriceCents * int64(l.Quantity)
}

// Cart is a user's mutable collection of reserved lines. Totals are always
// derived from the lines, never stored.
type Cart struct {
	ID           uuid.UUID `json:"id" db:"id"`
	UserID       uuid.UUID `json:"user_id" db:"user_id"`
	Active       bool      `json:"active" db:"active"`
	LastActivity time.Time `json:"last_activity" db:"last_activity"`
	ExpiresAt    time.Time `json:"expires_at" db:"expires_at"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	Lines        []Line    `json:"lines"`
}

// TotalCents sums the line totals.
func (c *Cart) TotalCents() int64 {
	var total int64
	for _, l := range c.Lines {
		total += l.TotalCents()
	}
	return total
}

// Expired reports whether the cart's inactivity window has lapsed.
func (c *Cart) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

// CheckoutReady reports whether the cart can be converted into an order.
// An inactive or expired cart counts as empty.
func (c *Cart) CheckoutReady(now time.Time) bool {
	return c.Active && !c.Expired(now) && len(c.Lines) > 0
}

// FindLine returns the line with the given id, or nil.
func (c *Cart) FindLine(lineID uuid.UUID) *Line {
	for i := range c.Lines {
		if c.Lines[i].ID == lineID {
			return &c.Lines[i]
		}
	}
	return nil
}

// FindProductLine returns the line referencing the product, or nil.
func (c *Cart) FindProductLine(productID uuid.UUID) *Line {
	for i := range c.Lines {
		if c.Lines[i].ProductID == productID {
			return &c.Lines[i]
		}
	}
	return nil
}
