package cart

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/shopcore/checkout/internal/catalog"
	"github.com/shopcore/checkout/internal/domain"
)

// Config holds the externally configurable reservation knobs.
type Config struct {
	ReservationTTL time.Duration // how long an untouched line holds its stock
	InactivityTTL  time.Duration // how long an untouched cart stays active
	MaxLines       int           // distinct lines per cart
	SweepBatch     int           // expired lines released per sweep pass
}

// UseCase owns the reservation rules: stock is reserved optimistically at
// add-to-cart time, and every mutation to a line shares a transaction with
// the matching stock adjustment.
type UseCase struct {
	carts    Repository
	products catalog.Repository
	cache    Cache
	cfg      Config

	now func() time.Time
}

func NewUseCase(carts Repository, products catalog.Repository, cache Cache, cfg Config) *UseCase {
	return &UseCase{
		carts:    carts,
		products: products,
		cache:    cache,
		cfg:      cfg,
		now:      time.Now,
	}
}

// WithClock replaces the clock, for tests and sweeps driven synchronously.
func (uc *UseCase) WithClock(now func() time.Time) *UseCase {
	uc.now = now
	return uc
}

// GetCart returns the user's cart view, read-through cached. A user without
// a cart gets an empty view; carts are created lazily on first add.
func (uc *UseCase) GetCart(ctx context.Context, userID uuid.UUID) (*Cart, error) {
	if cached, err := uc.cache.Get(ctx, userID); err == nil {
		return cached, nil
	}

	c, err := uc.carts.GetByUser(ctx, userID)
	if errors.Is(err, domain.ErrCartNotFound) {
		return &Cart{UserID: userID}, nil
	}
	if err != nil {
		return nil, err
	}

	if err := uc.cache.Set(ctx, userID, c); err != nil {
		log.Printf("ℹ️  cart cache set failed for user %s: %v", userID, err)
	}
	return c, nil
}

// Quote prices a product without reserving stock. Quote-only products are
// allowed here even though AddLine rejects them.
func (uc *UseCase) Quote(ctx context.Context, productID uuid.UUID) (*catalog.Product, error) {
	return uc.products.FindActiveProduct(ctx, productID)
}

// AddLine reserves qty units of the product for the user's cart.
func (uc *UseCase) AddLine(ctx context.Context, userID, productID uuid.UUID, qty int) (*Cart, error) {
	if qty <= 0 {
		return nil, domain.ErrInvalidQuantity
	}

	tx, err := uc.carts.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	c, err := uc.carts.GetOrCreateForUpdate(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	existing := c.FindProductLine(productID)
	if existing == nil && uc.cfg.MaxLines > 0 && len(c.Lines) >= uc.cfg.MaxLines {
		return nil, domain.ErrCartLimit
	}

	product, err := uc.products.GetProductForUpdate(ctx, tx, productID)
	if err != nil {
		return nil, err
	}
	if product.QuoteOnly {
		return nil, domain.ErrQuoteOnly
	}
	if product.Stock < qty {
		log.Printf("❌ [ADD LINE] insufficient stock: product=%s requested=%d available=%d", productID, qty, product.Stock)
		return nil, domain.ErrInsufficientStock
	}

	now := uc.now()
	reservedUntil := now.Add(uc.cfg.ReservationTTL)

	var lineID uuid.UUID
	if existing != nil {
		lineID = existing.ID
		if err := uc.carts.UpdateLine(ctx, tx, existing.ID, existing.Quantity+qty, reservedUntil); err != nil {
			return nil, err
		}
	} else {
		line := &Line{
			ID:             uuid.New(),
			CartID:         c.ID,
			ProductID:      productID,
			Quantity:       qty,
			UnitPriceCents: product.PriceCents,
			ReservedUntil:  reservedUntil,
		}
		lineID = line.ID
		if err := uc.carts.InsertLine(ctx, tx, line); err != nil {
			return nil, err
		}
	}

	if err := uc.products.AdjustStock(ctx, tx, productID, -qty, lineID, catalog.MovementReserved); err != nil {
		return nil, err
	}
	if err := uc.carts.TouchCart(ctx, tx, c.ID, now, now.Add(uc.cfg.InactivityTTL)); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit add line: %w", err)
	}

	log.Printf("✅ [ADD LINE] user=%s product=%s qty=%d", userID, productID, qty)
	uc.invalidate(ctx, userID)
	return uc.GetCart(ctx, userID)
}

// UpdateLine sets the line quantity, adjusting the stock delta up or down and
// refreshing the reservation expiry.
func (uc *UseCase) UpdateLine(ctx context.Context, userID, lineID uuid.UUID, newQty int) (*Cart, error) {
	if newQty <= 0 {
		return nil, domain.ErrInvalidQuantity
	}

	tx, err := uc.carts.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	c, err := uc.carts.GetForUpdate(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	line := c.FindLine(lineID)
	if line == nil {
		return nil, domain.ErrCartLineNotFound
	}

	product, err := uc.products.GetProductForUpdate(ctx, tx, line.ProductID)
	if err != nil {
		return nil, err
	}

	delta := newQty - line.Quantity
	switch {
	case delta > 0:
		if product.Stock < delta {
			log.Printf("❌ [UPDATE LINE] insufficient stock: product=%s delta=%d available=%d", line.ProductID, delta, product.Stock)
			return nil, domain.ErrInsufficientStock
		}
		if err := uc.products.AdjustStock(ctx, tx, line.ProductID, -delta, line.ID, catalog.MovementReserved); err != nil {
			return nil, err
		}
	case delta < 0:
		if err := uc.products.AdjustStock(ctx, tx, line.ProductID, -delta, line.ID, catalog.MovementReleased); err != nil {
			return nil, err
		}
	}

	now := uc.now()
	if err := uc.carts.UpdateLine(ctx, tx, line.ID, newQty, now.Add(uc.cfg.ReservationTTL)); err != nil {
		return nil, err
	}
	if err := uc.carts.TouchCart(ctx, tx, c.ID, now, now.Add(uc.cfg.InactivityTTL)); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit update line: %w", err)
	}

	log.Printf("✅ [UPDATE LINE] user=%s line=%s qty=%d (delta %+d)", userID, lineID, newQty, delta)
	uc.invalidate(ctx, userID)
	return uc.GetCart(ctx, userID)
}

// RemoveLine deletes the line and returns its full quantity to stock.
func (uc *UseCase) RemoveLine(ctx context.Context, userID, lineID uuid.UUID) (*Cart, error) {
	tx, err := uc.carts.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	c, err := uc.carts.GetForUpdate(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	line := c.FindLine(lineID)
	if line == nil {
		return nil, domain.ErrCartLineNotFound
	}

	if _, err := uc.products.LockProduct(ctx, tx, line.ProductID); err != nil {
		return nil, err
	}
	if err := uc.products.AdjustStock(ctx, tx, line.ProductID, line.Quantity, line.ID, catalog.MovementReleased); err != nil {
		return nil, err
	}
	if err := uc.carts.DeleteLine(ctx, tx, line.ID); err != nil {
		return nil, err
	}

	now := uc.now()
	if err := uc.carts.TouchCart(ctx, tx, c.ID, now, now.Add(uc.cfg.InactivityTTL)); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit remove line: %w", err)
	}

	log.Printf("✅ [REMOVE LINE] user=%s line=%s qty=%d returned", userID, lineID, line.Quantity)
	uc.invalidate(ctx, userID)
	return uc.GetCart(ctx, userID)
}

// Clear removes every line, returning all reserved stock.
func (uc *UseCase) Clear(ctx context.Context, userID uuid.UUID) error {
	tx, err := uc.carts.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	c, err := uc.carts.GetForUpdate(ctx, tx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrCartNotFound) {
			return nil
		}
		return err
	}

	for _, line := range c.Lines {
		if _, err := uc.products.LockProduct(ctx, tx, line.ProductID); err != nil {
			return err
		}
		if err := uc.products.AdjustStock(ctx, tx, line.ProductID, line.Quantity, line.ID, catalog.MovementReleased); err != nil {
			return err
		}
	}
	if err := uc.carts.DeleteLines(ctx, tx, c.ID); err != nil {
		return err
	}

	now := uc.now()
	if err := uc.carts.TouchCart(ctx, tx, c.ID, now, now.Add(uc.cfg.InactivityTTL)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit clear: %w", err)
	}

	log.Printf("✅ [CLEAR CART] user=%s lines=%d", userID, len(c.Lines))
	uc.invalidate(ctx, userID)
	return nil
}

// ReleaseExpired restores stock for every line whose reservation lapsed and
// deletes the line. Locked lines are skipped, so the sweep never blocks a
// user-driven mutation; they are picked up on the next pass.
func (uc *UseCase) ReleaseExpired(ctx context.Context) (int, error) {
	tx, err := uc.carts.BeginTx(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	expired, err := uc.carts.ExpiredLines(ctx, tx, uc.now(), uc.cfg.SweepBatch)
	if err != nil {
		return 0, err
	}
	if len(expired) == 0 {
		return 0, nil
	}

	touched := make(map[uuid.UUID]struct{})
	for _, e := range expired {
		if _, err := uc.products.LockProduct(ctx, tx, e.ProductID); err != nil {
			return 0, err
		}
		if err := uc.products.AdjustStock(ctx, tx, e.ProductID, e.Quantity, e.ID, catalog.MovementReleased); err != nil {
			return 0, err
		}
		if err := uc.carts.DeleteLine(ctx, tx, e.ID); err != nil {
			return 0, err
		}
		touched[e.UserID] = struct{}{}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit expiry sweep: %w", err)
	}

	for userID := range touched {
		uc.invalidate(ctx, userID)
	}
	log.Printf("♻️  [RESERVATION SWEEP] released %d expired lines", len(expired))
	return len(expired), nil
}

// DeactivateStale soft-invalidates carts whose inactivity window lapsed.
func (uc *UseCase) DeactivateStale(ctx context.Context) (int, error) {
	userIDs, err := uc.carts.DeactivateStale(ctx, uc.now())
	if err != nil {
		return 0, err
	}
	for _, userID := range userIDs {
		uc.invalidate(ctx, userID)
	}
	if len(userIDs) > 0 {
		log.Printf("♻️  [CART SWEEP] deactivated %d stale carts", len(userIDs))
	}
	return len(userIDs), nil
}

func (uc *UseCase) invalidate(ctx context.Context, userID uuid.UUID) {
	if err := uc.cache.Delete(ctx, userID); err != nil {
		log.Printf("ℹ️  cart cache invalidation failed for user %s: %v", userID, err)
	}
}
