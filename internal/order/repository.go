package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shopcore/checkout/internal/domain"
	"github.com/shopcore/checkout/internal/storage"
)

// Repository defines order persistence. State transitions run inside a
// transaction holding the order row lock; the row is never deleted.
type Repository interface {
	BeginTx(ctx context.Context) (storage.Tx, error)

	// Create inserts the order and its lines.
	Create(ctx context.Context, tx storage.Tx, o *Order) error

	// GetByID loads the order with its lines, or domain.ErrOrderNotFound.
	GetByID(ctx context.Context, orderID uuid.UUID) (*Order, error)

	// GetByNumber loads the order by its human-readable number.
	GetByNumber(ctx context.Context, number string) (*Order, error)

	// GetForUpdate locks the order row and loads its lines.
	GetForUpdate(ctx context.Context, tx storage.Tx, orderID uuid.UUID) (*Order, error)

	// Save persists the mutable fields after a transition.
	Save(ctx context.Context, tx storage.Tx, o *Order) error

	// FindIDByCorrelation resolves an order id from provider identifiers,
	// payment intent first, then checkout session.
	FindIDByCorrelation(ctx context.Context, paymentIntentID, checkoutSessionID string) (uuid.UUID, error)

	// ListByUser returns the user's orders, newest first, without lines.
	ListByUser(ctx context.Context, userID uuid.UUID) ([]Order, error)

	// ListStalePaymentEligible returns ids of payment-eligible orders created
	// before the cutoff, for the checkout expiry sweep.
	ListStalePaymentEligible(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error)
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) BeginTx(ctx context.Context) (storage.Tx, error) {
	return storage.Begin(ctx, r.db)
}

const orderColumns = `id, order_number, user_id, status, items_cents, shipping_cents, tax_cents, total_cents,
	ship_name, ship_street, ship_city, ship_postal_code, ship_country, inventory_locked,
	payment_provider, payment_intent_id, checkout_session_id, failure_code, failure_message,
	created_at, updated_at, paid_at, failed_at, canceled_at, expired_at, inventory_released_at`

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	err := row.Scan(
		&o.ID, &o.Number, &o.UserID, &o.Status, &o.ItemsCents, &o.ShippingCents, &o.TaxCents, &o.TotalCents,
		&o.Shipping.Name, &o.Shipping.Street, &o.Shipping.City, &o.Shipping.PostalCode, &o.Shipping.Country, &o.InventoryLocked,
		&o.PaymentProvider, &o.PaymentIntentID, &o.CheckoutSessionID, &o.FailureCode, &o.FailureMessage,
		&o.CreatedAt, &o.UpdatedAt, &o.PaidAt, &o.FailedAt, &o.CanceledAt, &o.ExpiredAt, &o.InventoryReleasedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *PostgresRepository) Create(ctx context.Context, tx storage.Tx, o *Order) error {
	pgTx := storage.Unwrap(tx)

	_, err := pgTx.Exec(ctx, `
		INSERT INTO orders (id, order_number, user_id, status, items_cents, shipping_cents, tax_cents, total_cents,
			ship_name, ship_street, ship_city, ship_postal_code, ship_country, inventory_locked,
			payment_provider, payment_intent_id, checkout_session_id, failure_code, failure_message,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $20)
	`, o.ID, o.Number, o.UserID, o.Status, o.ItemsCents, o.ShippingCents, o.TaxCents, o.TotalCents,
		o.Shipping.Name, o.Shipping.Street, o.Shipping.City, o.Shipping.PostalCode, o.Shipping.Country, o.InventoryLocked,
		o.PaymentProvider, o.PaymentIntentID, o.CheckoutSessionID, o.FailureCode, o.FailureMessage,
		o.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	for _, l := range o.Lines {
		_, err := pgTx.Exec(ctx, `
			INSERT INTO order_lines (id, order_id, product_id, product_name, sku, quantity, unit_price_cents)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, l.ID, l.OrderID, l.ProductID, l.ProductName, l.SKU, l.Quantity, l.UnitPriceCents)
		if err != nil {
			return fmt.Errorf("failed to insert order line: %w", err)
		}
	}
	return nil
}

func (r *PostgresRepository) loadLines(ctx context.Context, q interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}, orderID uuid.UUID) ([]Line, error) {
	rows, err := q.Query(ctx, `
		SELECT id, order_id, product_id, product_name, sku, quantity, unit_price_cents
		FROM order_lines
		WHERE order_id = $1
		ORDER BY id
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []Line
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.OrderID, &l.ProductID, &l.ProductName, &l.SKU, &l.Quantity, &l.UnitPriceCents); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (r *PostgresRepository) GetByID(ctx context.Context, orderID uuid.UUID) (*Order, error) {
	o, err := scanOrder(r.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID))
	if err != nil {
		return nil, err
	}
	o.Lines, err = r.loadLines(ctx, r.db, o.ID)
	if err != nil {
		return nil, err
	}
	return o, nil
}

func (r *PostgresRepository) GetByNumber(ctx context.Context, number string) (*Order, error) {
	o, err := scanOrder(r.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_number = $1`, number))
	if err != nil {
		return nil, err
	}
	o.Lines, err = r.loadLines(ctx, r.db, o.ID)
	if err != nil {
		return nil, err
	}
	return o, nil
}

func (r *PostgresRepository) GetForUpdate(ctx context.Context, tx storage.Tx, orderID uuid.UUID) (*Order, error) {
	pgTx := storage.Unwrap(tx)
	o, err := scanOrder(pgTx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, orderID))
	if err != nil {
		return nil, err
	}
	o.Lines, err = r.loadLines(ctx, pgTx, o.ID)
	if err != nil {
		return nil, err
	}
	return o, nil
}

func (r *PostgresRepository) Save(ctx context.Context, tx storage.Tx, o *Order) error {
	_, err := storage.Unwrap(tx).Exec(ctx, `
		UPDATE orders
		SET status = $2, inventory_locked = $3,
		    payment_provider = $4, payment_intent_id = $5, checkout_session_id = $6,
		    failure_code = $7, failure_message = $8,
		    paid_at = $9, failed_at = $10, canceled_at = $11, expired_at = $12, inventory_released_at = $13,
		    updated_at = NOW()
		WHERE id = $1
	`, o.ID, o.Status, o.InventoryLocked,
		o.PaymentProvider, o.PaymentIntentID, o.CheckoutSessionID,
		o.FailureCode, o.FailureMessage,
		o.PaidAt, o.FailedAt, o.CanceledAt, o.ExpiredAt, o.InventoryReleasedAt)
	if err != nil {
		return fmt.Errorf("failed to save order: %w", err)
	}
	return nil
}

func (r *PostgresRepository) FindIDByCorrelation(ctx context.Context, paymentIntentID, checkoutSessionID string) (uuid.UUID, error) {
	if paymentIntentID != "" {
		var id uuid.UUID
		err := r.db.QueryRow(ctx, `SELECT id FROM orders WHERE payment_intent_id = $1`, paymentIntentID).Scan(&id)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, err
		}
	}
	if checkoutSessionID != "" {
		var id uuid.UUID
		err := r.db.QueryRow(ctx, `SELECT id FROM orders WHERE checkout_session_id = $1`, checkoutSessionID).Scan(&id)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, err
		}
	}
	return uuid.Nil, domain.ErrOrderNotFound
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]Order, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}

func (r *PostgresRepository) ListStalePaymentEligible(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id FROM orders
		WHERE status IN ($1, $2, $3) AND created_at < $4
		ORDER BY created_at
		LIMIT $5
	`, StatusPending, StatusConfirmed, StatusCheckoutCreated, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
