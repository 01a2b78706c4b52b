package order

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/shopcore/checkout/internal/cart"
	"github.com/shopcore/checkout/internal/catalog"
	"github.com/shopcore/checkout/internal/domain"
	"github.com/shopcore/checkout/internal/notification"
	"github.com/shopcore/checkout/internal/storage"
)

// Config holds the externally configurable checkout knobs.
type Config struct {
	CheckoutTTL       time.Duration // how long a payment-eligible order may sit before expiry
	SweepBatch        int           // stale orders expired per sweep pass
	FlatShippingCents int64         // tax computation is out of scope; shipping is a flat fee
}

// TransitionCommand carries a requested provider-driven state change.
type TransitionCommand struct {
	Target            Status
	Provider          string
	PaymentIntentID   string
	CheckoutSessionID string
	FailureCode       string
	FailureMessage    string
}

// UseCase owns order creation and the payment state machine. Every terminal
// transition runs in one transaction holding the order row lock, so
// duplicated or out-of-order provider events converge on the first terminal
// write.
type UseCase struct {
	orders   Repository
	products catalog.Repository
	carts    cart.Repository
	cache    cart.Cache
	notifier notification.Notifier
	alerts   notification.Alerter
	cfg      Config

	now func() time.Time
}

func NewUseCase(
	orders Repository,
	products catalog.Repository,
	carts cart.Repository,
	cache cart.Cache,
	notifier notification.Notifier,
	alerts notification.Alerter,
	cfg Config,
) *UseCase {
	return &UseCase{
		orders:   orders,
		products: products,
		carts:    carts,
		cache:    cache,
		notifier: notifier,
		alerts:   alerts,
		cfg:      cfg,
		now:      time.Now,
	}
}

// WithClock replaces the clock, for tests and sweeps driven synchronously.
func (uc *UseCase) WithClock(now func() time.Time) *UseCase {
	uc.now = now
	return uc
}

// CreateFromCart converts a valid, non-empty cart into a PENDING order.
// Ownership of the stock reservation transfers from the cart lines to the
// order's inventory lock; no stock moves at this instant. The cart is
// cleared afterward without restoring stock.
func (uc *UseCase) CreateFromCart(ctx context.Context, userID uuid.UUID, shipping Address) (*Order, error) {
	ctx, span := otel.Tracer("order").Start(ctx, "create_order_from_cart")
	defer span.End()

	tx, err := uc.orders.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	c, err := uc.carts.GetForUpdate(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	now := uc.now()
	if !c.Active || c.Expired(now) {
		return nil, domain.ErrCartExpired
	}
	if len(c.Lines) == 0 {
		return nil, domain.ErrCartEmpty
	}

	o := &Order{
		ID:              uuid.New(),
		Number:          NewNumber(now),
		UserID:          userID,
		Status:          StatusPending,
		ShippingCents:   uc.cfg.FlatShippingCents,
		Shipping:        shipping,
		InventoryLocked: true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	for _, l := range c.Lines {
		o.Lines = append(o.Lines, Line{
			ID:             uuid.New(),
			OrderID:        o.ID,
			ProductID:      l.ProductID,
			ProductName:    l.ProductName,
			SKU:            l.SKU,
			Quantity:       l.Quantity,
			UnitPriceCents: l.UnitPriceCents,
		})
	}
	o.ItemsCents = o.ItemsTotalCents()
	o.TotalCents = o.ItemsCents + o.ShippingCents + o.TaxCents
	if o.TotalCents <= 0 {
		return nil, domain.ErrInvalidTotal
	}

	if err := uc.orders.Create(ctx, tx, o); err != nil {
		return nil, err
	}
	// Reservation ownership moved to the order; clearing the lines must not
	// touch stock.
	if err := uc.carts.DeleteLines(ctx, tx, c.ID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit order creation: %w", err)
	}

	span.SetAttributes(
		attribute.String("order_id", o.ID.String()),
		attribute.String("order_number", o.Number),
		attribute.Int64("total_cents", o.TotalCents),
	)
	log.Printf("✅ [CREATE ORDER] %s (%s) user=%s total=%d lines=%d", o.ID, o.Number, userID, o.TotalCents, len(o.Lines))

	if err := uc.cache.Delete(ctx, userID); err != nil {
		log.Printf("ℹ️  cart cache invalidation failed for user %s: %v", userID, err)
	}
	return o, nil
}

// GetOwned loads an order and checks ownership.
func (uc *UseCase) GetOwned(ctx context.Context, userID, orderID uuid.UUID) (*Order, error) {
	o, err := uc.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, domain.ErrNotOrderOwner
	}
	return o, nil
}

// GetOwnedByNumber loads an order by its human-readable number and checks
// ownership.
func (uc *UseCase) GetOwnedByNumber(ctx context.Context, userID uuid.UUID, number string) (*Order, error) {
	o, err := uc.orders.GetByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, domain.ErrNotOrderOwner
	}
	return o, nil
}

// ListForUser returns the user's orders, newest first.
func (uc *UseCase) ListForUser(ctx context.Context, userID uuid.UUID) ([]Order, error) {
	return uc.orders.ListByUser(ctx, userID)
}

// FindByCorrelation resolves an order id from provider identifiers.
func (uc *UseCase) FindByCorrelation(ctx context.Context, paymentIntentID, checkoutSessionID string) (uuid.UUID, error) {
	return uc.orders.FindIDByCorrelation(ctx, paymentIntentID, checkoutSessionID)
}

// Transition drives the provider-facing state machine. Terminal states are
// sticky: a replay of the same terminal status refreshes diagnostics only,
// and any other transition request against a terminal order is discarded.
// Events targeting a terminal status are also discarded when the order has
// already moved outside the payment-eligible set.
func (uc *UseCase) Transition(ctx context.Context, orderID uuid.UUID, cmd TransitionCommand) (*Order, error) {
	ctx, span := otel.Tracer("order").Start(ctx, "order_transition")
	defer span.End()
	span.SetAttributes(
		attribute.String("order_id", orderID.String()),
		attribute.String("target", string(cmd.Target)),
	)

	tx, err := uc.orders.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	o, err := uc.orders.GetForUpdate(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	now := uc.now()

	if o.Status.Terminal() {
		if cmd.Target == o.Status {
			// Idempotent replay: diagnostics only, no state change.
			if cmd.FailureCode != "" {
				o.FailureCode = cmd.FailureCode
			}
			if cmd.FailureMessage != "" {
				o.FailureMessage = cmd.FailureMessage
			}
			if err := uc.orders.Save(ctx, tx, o); err != nil {
				return nil, err
			}
			if err := tx.Commit(); err != nil {
				return nil, fmt.Errorf("failed to commit replay: %w", err)
			}
			log.Printf("ℹ️  [TRANSITION] replay of %s for order %s, diagnostics refreshed", cmd.Target, o.ID)
			return o, nil
		}
		log.Printf("ℹ️  [TRANSITION] order %s already %s, ignoring stale %s", o.ID, o.Status, cmd.Target)
		return o, nil
	}

	if cmd.Target.Terminal() && !o.Status.PaymentEligible() {
		log.Printf("ℹ️  [TRANSITION] order %s is %s, ignoring stale terminal %s", o.ID, o.Status, cmd.Target)
		return o, nil
	}

	switch cmd.Target {
	case StatusPaid:
		if !o.InventoryLocked {
			// Unreachable under the creation invariants; surfaced loudly
			// instead of re-applying a decrement of unknown provenance.
			uc.alert(ctx, "paid order without inventory lock",
				fmt.Sprintf("order %s reached PAID with inventory_locked=false", o.ID))
		}
		o.Status = StatusPaid
		o.PaidAt = &now
		o.InventoryLocked = false
		o.FailureCode = ""
		o.FailureMessage = ""
		uc.attachCorrelation(o, cmd)
		if err := uc.orders.Save(ctx, tx, o); err != nil {
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("failed to commit PAID transition: %w", err)
		}
		log.Printf("✅ [TRANSITION] order %s PAID", o.ID)

		uc.notify(ctx, "order confirmation", func(ctx context.Context) error {
			return uc.notifier.SendOrderConfirmation(ctx, o.ID)
		})
		uc.notify(ctx, "owner notification", func(ctx context.Context) error {
			return uc.notifier.SendOwnerNotification(ctx, o.ID)
		})
		return o, nil

	case StatusFailed, StatusCancelled, StatusExpired:
		if o.InventoryLocked {
			if err := uc.restoreInventory(ctx, tx, o); err != nil {
				return nil, err
			}
			o.InventoryLocked = false
			o.InventoryReleasedAt = &now
		}
		o.Status = cmd.Target
		switch cmd.Target {
		case StatusFailed:
			o.FailedAt = &now
		case StatusCancelled:
			o.CanceledAt = &now
		case StatusExpired:
			o.ExpiredAt = &now
		}
		if cmd.FailureCode != "" {
			o.FailureCode = cmd.FailureCode
		}
		if cmd.FailureMessage != "" {
			o.FailureMessage = cmd.FailureMessage
		}
		uc.attachCorrelation(o, cmd)
		if err := uc.orders.Save(ctx, tx, o); err != nil {
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("failed to commit %s transition: %w", cmd.Target, err)
		}
		log.Printf("↩️  [TRANSITION] order %s %s, inventory restored", o.ID, cmd.Target)

		uc.notify(ctx, "status update", func(ctx context.Context) error {
			return uc.notifier.SendOrderStatusUpdate(ctx, o.ID, string(cmd.Target))
		})
		return o, nil

	case StatusConfirmed, StatusCheckoutCreated:
		o.Status = cmd.Target
		uc.attachCorrelation(o, cmd)
		if err := uc.orders.Save(ctx, tx, o); err != nil {
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("failed to commit %s transition: %w", cmd.Target, err)
		}
		log.Printf("➡️  [TRANSITION] order %s %s", o.ID, cmd.Target)
		return o, nil

	default:
		// PROCESSING/SHIPPED/DELIVERED/REFUNDED are owner-driven and go
		// through UpdateStatusManual.
		return nil, domain.ErrOrderNotPayable
	}
}

// UpdateStatusManual applies owner/admin-driven fulfillment updates. These
// are direct field updates outside the provider state machine; REFUNDED
// additionally restores inventory if it had not already been released.
func (uc *UseCase) UpdateStatusManual(ctx context.Context, orderID uuid.UUID, target Status) (*Order, error) {
	allowedFrom := map[Status][]Status{
		StatusCancelled:  {StatusPending, StatusConfirmed, StatusCheckoutCreated},
		StatusProcessing: {StatusPaid},
		StatusShipped:    {StatusPaid, StatusProcessing},
		StatusDelivered:  {StatusShipped},
		StatusRefunded:   {StatusPaid, StatusProcessing, StatusShipped, StatusDelivered},
	}
	from, ok := allowedFrom[target]
	if !ok {
		return nil, &domain.Error{Code: domain.EINVALID, Message: fmt.Sprintf("status %s cannot be set manually", target)}
	}

	// Manual cancellation of an in-flight checkout is a regular terminal
	// transition, with the same inventory restore semantics.
	if target == StatusCancelled {
		return uc.Transition(ctx, orderID, TransitionCommand{Target: StatusCancelled, FailureCode: "canceled_by_owner"})
	}

	tx, err := uc.orders.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	o, err := uc.orders.GetForUpdate(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status == target {
		return o, nil
	}
	valid := false
	for _, s := range from {
		if o.Status == s {
			valid = true
			break
		}
	}
	if !valid {
		return nil, &domain.Error{Code: domain.ECONFLICT, Message: fmt.Sprintf("cannot move order from %s to %s", o.Status, target)}
	}

	now := uc.now()
	if target == StatusRefunded && o.InventoryLocked {
		if err := uc.restoreInventory(ctx, tx, o); err != nil {
			return nil, err
		}
		o.InventoryLocked = false
		o.InventoryReleasedAt = &now
	}
	o.Status = target
	if err := uc.orders.Save(ctx, tx, o); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit manual %s update: %w", target, err)
	}
	log.Printf("✅ [MANUAL STATUS] order %s -> %s", o.ID, target)

	uc.notify(ctx, "status update", func(ctx context.Context) error {
		return uc.notifier.SendOrderStatusUpdate(ctx, o.ID, string(target))
	})
	return o, nil
}

// ExpireStale drives payment-eligible orders older than the checkout TTL to
// EXPIRED. Failures on individual orders are logged and skipped so one bad
// row cannot stall the sweep.
func (uc *UseCase) ExpireStale(ctx context.Context) (int, error) {
	cutoff := uc.now().Add(-uc.cfg.CheckoutTTL)
	ids, err := uc.orders.ListStalePaymentEligible(ctx, cutoff, uc.cfg.SweepBatch)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, id := range ids {
		_, err := uc.Transition(ctx, id, TransitionCommand{
			Target:         StatusExpired,
			FailureCode:    "checkout_expired",
			FailureMessage: "checkout not completed within the configured window",
		})
		if err != nil {
			log.Printf("❌ [CHECKOUT SWEEP] failed to expire order %s: %v", id, err)
			continue
		}
		expired++
	}
	if expired > 0 {
		log.Printf("♻️  [CHECKOUT SWEEP] expired %d stale checkouts", expired)
	}
	return expired, nil
}

// restoreInventory returns every line's quantity to its product. The
// movement probe makes the restore idempotent under retried transitions.
func (uc *UseCase) restoreInventory(ctx context.Context, tx storage.Tx, o *Order) error {
	exists, err := uc.products.MovementExists(ctx, tx, o.ID, catalog.MovementRestored)
	if err != nil {
		return fmt.Errorf("failed to check restore idempotency: %w", err)
	}
	if exists {
		log.Printf("ℹ️  [RESTORE] inventory already restored for order %s", o.ID)
		return nil
	}

	for _, l := range o.Lines {
		if _, err := uc.products.LockProduct(ctx, tx, l.ProductID); err != nil {
			return err
		}
		if err := uc.products.AdjustStock(ctx, tx, l.ProductID, l.Quantity, o.ID, catalog.MovementRestored); err != nil {
			return err
		}
	}
	return nil
}

func (uc *UseCase) attachCorrelation(o *Order, cmd TransitionCommand) {
	if cmd.Provider != "" {
		o.PaymentProvider = cmd.Provider
	}
	if cmd.PaymentIntentID != "" {
		o.PaymentIntentID = cmd.PaymentIntentID
	}
	if cmd.CheckoutSessionID != "" {
		o.CheckoutSessionID = cmd.CheckoutSessionID
	}
}

// notify runs a post-transition side effect; failures are logged, never
// propagated.
func (uc *UseCase) notify(ctx context.Context, label string, fn func(ctx context.Context) error) {
	if err := fn(ctx); err != nil {
		log.Printf("❌ [NOTIFY] %s failed: %v", label, err)
	}
}

func (uc *UseCase) alert(ctx context.Context, msg, detail string) {
	if err := uc.alerts.RecordSystemAlert(ctx, msg, detail); err != nil {
		log.Printf("❌ [ALERT] failed to record system alert: %v", err)
	}
}
