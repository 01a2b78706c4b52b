package cart

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestCartTotals(t *testing.T) {
	c := &Cart{
		Lines: []Line{
			{Quantity: 2, UnitPriceCents: 12999},
			{Quantity: 3, UnitPriceCents: 450},
		},
	}
	assert.Equal(t, int64(2*12999+3*450), c.TotalCents())
	assert.Equal(t, int64(0), (&Cart{}).TotalCents())
}

func TestCartExpired(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

	assert.False(t, (&Cart{}).Expired(now), "zero expiry never expires")
	assert.False(t, (&Cart{ExpiresAt: now.Add(time.Minute)}).Expired(now))
	assert.True(t, (&Cart{ExpiresAt: now.Add(-time.Minute)}).Expired(now))
}

func TestCheckoutReady(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	line := Line{ID: uuid.New(), Quantity: 1, UnitPriceCents: 100}

	ready := &Cart{Active: true, ExpiresAt: now.Add(time.Hour), Lines: []Line{line}}
	assert.True(t, ready.CheckoutReady(now))

	inactive := &Cart{Active: false, ExpiresAt: now.Add(time.Hour), Lines: []Line{line}}
	assert.False(t, inactive.CheckoutReady(now))

	expired := &Cart{Active: true, ExpiresAt: now.Add(-time.Hour), Lines: []Line{line}}
	assert.False(t, expired.CheckoutReady(now))

	empty := &Cart{Active: true, ExpiresAt: now.Add(time.Hour)}
	assert.False(t, empty.CheckoutReady(now))
}

func TestFindLine(t *testing.T) {
	l1 := Line{ID: uuid.New(), ProductID: uuid.New()}
	l2 := Line{ID: uuid.New(), ProductID: uuid.New()}
	c := &Cart{Lines: []Line{l1, l2}}

	found := c.FindLine(l2.ID)
	assert.NotNil(t, found)
	assert.Equal(t, l2.ID, found.ID)
	assert.Nil(t, c.FindLine(uuid.New()))

	byProduct := c.FindProductLine(l1.ProductID)
	assert.NotNil(t, byProduct)
	assert.Equal(t, l1.ID, byProduct.ID)
	assert.Nil(t, c.FindProductLine(uuid.New()))
}
