package cart

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

// ExpiredLine is a reservation found past its TTL, joined with the owning
// cart's user for cache invalidation.
type ExpiredLine struct {
	Line
	UserID uuid.UUID
}

// Repository defines cart persistence. Line mutations and the matching stock
// adjustments always share one transaction.
type Repository interface {
	BeginTx(ctx context.Context) (storage.Tx, error)

	// GetByUser loads the cart with its lines, or domain.ErrCartNotFound.
	GetByUser(ctx context.Context, userID uuid.UUID) (*Cart, error)

	// GetOrCreateForUpdate locks the user's cart row, creating it first if
	// missing (carts are created lazily on first add).
	GetOrCreateForUpdate(ctx context.Context, tx storage.Tx, userID uuid.UUID) (*Cart, error)

	// GetForUpdate locks the user's cart row, or domain.ErrCartNotFound.
	GetForUpdate(ctx context.Context, tx storage.Tx, userID uuid.UUID) (*Cart, error)

	InsertLine(ctx context.Context, tx storage.Tx, line *Line) error
	UpdateLine(ctx context.Context, tx storage.Tx, lineID uuid.UUID, quantity int, reservedUntil time.Time) error
	DeleteLine(ctx context.Context, tx storage.Tx, lineID uuid.UUID) error
	DeleteLines(ctx context.Context, tx storage.Tx, cartID uuid.UUID) error

	// TouchCart refreshes the activity window and re-activates the cart.
	TouchCart(ctx context.Context, tx storage.Tx, cartID uuid.UUID, lastActivity, expiresAt time.Time) error

	// ExpiredLines locks up to limit lines whose reservation lapsed before
	// now. The line and its parent cart are locked together with SKIP
	// LOCKED: a line whose cart is held by an in-flight user transaction is
	// left for the next pass, so the sweep never releases stock a concurrent
	// checkout is about to snapshot.
	ExpiredLines(ctx context.Context, tx storage.Tx, now time.Time, limit int) ([]ExpiredLine, error)

	// DeactivateStale soft-invalidates carts whose inactivity window lapsed
	// and returns the affected user ids.
	DeactivateStale(ctx context.Context, now time.Time) ([]uuid.UUID, error)
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

const cartColumns = `id, user_id, active, last_activity, expires_at, created_at`

func scanCart(row pgx.Row) (*Cart, error) {
	var c Cart
	err := row.Scan(&c.ID, &c.UserID, &c.Active, &c.LastActivity, &c.ExpiresAt, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrCartNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *PostgresRepository) loadLines(ctx context.Context, q interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}, cartID uuid.UUID) ([]Line, error) {
	rows, err := q.Query(ctx, `
		SELECT l.id, l.cart_id, l.product_id, p.name, p.sku, l.quantity, l.unit_price_cents, l.reserved_until
		FROM cart_lines l
		JOIN products p ON p.id = l.product_id
		WHERE l.cart_id = $1
		ORDER BY l.id
	`, cartID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []Line
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.CartID, &l.ProductID, &l.ProductName, &l.SKU, &l.Quantity, &l.UnitPriceCents, &l.ReservedUntil); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (r *PostgresRepository) GetByUser(ctx context.Context, userID uuid.UUID) (*Cart, error) {
	c, err := scanCart(r.db.QueryRow(ctx, `
		SELECT `+cartColumns+` FROM carts WHERE user_id = $1
	`, userID))
	if err != nil {
		return nil, err
	}
	c.Lines, err = r.loadLines(ctx, r.db, c.ID)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *PostgresRepository) GetOrCreateForUpdate(ctx context.Context, tx storage.Tx, userID uuid.UUID) (*Cart, error) {
	pgTx := storage.Unwrap(tx)

	_, err := pgTx.Exec(ctx, `
		INSERT INTO carts (id, user_id, active, last_activity, expires_at)
		VALUES ($1, $2, TRUE, NOW(), NOW())
		ON CONFLICT (user_id) DO NOTHING
	`, uuid.New(), userID)
	if err != nil {
		return nil, fmt.Errorf("failed to create cart: %w", err)
	}

	return r.lockCart(ctx, pgTx, userID)
}

func (r *PostgresRepository) GetForUpdate(ctx context.Context, tx storage.Tx, userID uuid.UUID) (*Cart, error) {
	return r.lockCart(ctx, storage.Unwrap(tx), userID)
}

func (r *PostgresRepository) lockCart(ctx context.Context, pgTx pgx.Tx, userID uuid.UUID) (*Cart, error) {
	c, err := scanCart(pgTx.QueryRow(ctx, `
		SELECT `+cartColumns+` FROM carts WHERE user_id = $1 FOR UPDATE
	`, userID))
	if err != nil {
		return nil, err
	}
	c.Lines, err = r.loadLines(ctx, pgTx, c.ID)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *PostgresRepository) InsertLine(ctx context.Context, tx storage.Tx, line *Line) error {
	_, err := storage.Unwrap(tx).Exec(ctx, `
		INSERT INTO cart_lines (id, cart_id, product_id, quantity, unit_price_cents, reserved_until)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, line.ID, line.CartID, line.ProductID, line.Quantity, line.UnitPriceCents, line.ReservedUntil)
	if err != nil {
		return fmt.Errorf("failed to insert cart line: %w", err)
	}
	return nil
}

func (r *PostgresRepository) UpdateLine(ctx context.Context, tx storage.Tx, lineID uuid.UUID, quantity int, reservedUntil time.Time) error {
	_, err := storage.Unwrap(tx).Exec(ctx, `
		UPDATE cart_lines
		SET quantity = $2, reserved_until = $3
		WHERE id = $1
	`, lineID, quantity, reservedUntil)
	if err != nil {
		return fmt.Errorf("failed to update cart line: %w", err)
	}
	return nil
}

func (r *PostgresRepository) DeleteLine(ctx context.Context, tx storage.Tx, lineID uuid.UUID) error {
	_, err := storage.Unwrap(tx).Exec(ctx, `DELETE FROM cart_lines WHERE id = $1`, lineID)
	return err
}

func (r *PostgresRepository) DeleteLines(ctx context.Context, tx storage.Tx, cartID uuid.UUID) error {
	_, err := storage.Unwrap(tx).Exec(ctx, `DELETE FROM cart_lines WHERE cart_id = $1`, cartID)
	return err
}

func (r *PostgresRepository) TouchCart(ctx context.Context, tx storage.Tx, cartID uuid.UUID, lastActivity, expiresAt time.Time) error {
	_, err := storage.Unwrap(tx).Exec(ctx, `
		UPDATE carts
		SET active = TRUE, last_activity = $2, expires_at = $3
		WHERE id = $1
	`, cartID, lastActivity, expiresAt)
	if err != nil {
		return fmt.Errorf("failed to touch cart: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ExpiredLines(ctx context.Context, tx storage.Tx, now time.Time, limit int) ([]ExpiredLine, error) {
	rows, err := storage.Unwrap(tx).Query(ctx, `
		SELECT l.id, l.cart_id, l.product_id, l.quantity, l.unit_price_cents, l.reserved_until, c.user_id
		FROM cart_lines l
		JOIN carts c ON c.id = l.cart_id
		WHERE l.reserved_until < $1
		ORDER BY l.reserved_until
		LIMIT $2
		FOR UPDATE OF l, c SKIP LOCKED
	`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var expired []ExpiredLine
	for rows.Next() {
		var e ExpiredLine
		if err := rows.Scan(&e.ID, &e.CartID, &e.ProductID, &e.Quantity, &e.UnitPriceCents, &e.ReservedUntil, &e.UserID); err != nil {
			return nil, err
		}
		expired = append(expired, e)
	}
	return expired, rows.Err()
}

func (r *PostgresRepository) DeactivateStale(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx, `
		UPDATE carts
		SET active = FALSE
		WHERE active AND expires_at < $1
		RETURNING user_id
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var userIDs []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		userIDs = append(userIDs, id)
	}
	return userIDs, rows.Err()
}
