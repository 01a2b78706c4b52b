package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shopcore/checkout/internal/domain"
	"github.com/shopcore/checkout/internal/storage"
)

// Repository defines the stock ledger operations. Mutations only run inside a
// caller-owned transaction; the product row lock taken by GetProductForUpdate
// serializes concurrent writers.
type Repository interface {
	// FindActiveProduct loads an active product outside any transaction.
	FindActiveProduct(ctx context.Context, productID uuid.UUID) (*Product, error)

	// GetProductForUpdate locks the product row (SELECT ... FOR UPDATE).
	// Inactive products report domain.ErrProductNotFound.
	GetProductForUpdate(ctx context.Context, tx storage.Tx, productID uuid.UUID) (*Product, error)

	// LockProduct locks the row regardless of the active flag. Restore paths
	// must return stock even when the product was deactivated meanwhile.
	LockProduct(ctx context.Context, tx storage.Tx, productID uuid.UUID) (*Product, error)

	// AdjustStock applies a signed delta and records the movement. The caller
	// must hold the row lock and have verified the delta keeps stock >= 0.
	AdjustStock(ctx context.Context, tx storage.Tx, productID uuid.UUID, delta int, referenceID uuid.UUID, movementType string) error

	// MovementExists probes for a prior movement (idempotency guard).
	MovementExists(ctx context.Context, tx storage.Tx, referenceID uuid.UUID, movementType string) (bool, error)
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const productColumns = `id, name, sku, price_cents, stock, active, quote_only, updated_at`

func scanProduct(row pgx.Row) (*Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Name, &p.SKU, &p.PriceCents, &p.Stock, &p.Active, &p.QuoteOnly, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PostgresRepository) FindActiveProduct(ctx context.Context, productID uuid.UUID) (*Product, error) {
	return scanProduct(r.db.QueryRow(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = $1 AND active
	`, productID))
}

func (r *PostgresRepository) GetProductForUpdate(ctx context.Context, tx storage.Tx, productID uuid.UUID) (*Product, error) {
	p, err := scanProduct(storage.Unwrap(tx).QueryRow(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = $1 AND active
		FOR UPDATE
	`, productID))
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *PostgresRepository) LockProduct(ctx context.Context, tx storage.Tx, productID uuid.UUID) (*Product, error) {
	return scanProduct(storage.Unwrap(tx).QueryRow(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = $1
		FOR UPDATE
	`, productID))
}

func (r *PostgresRepository) AdjustStock(ctx context.Context, tx storage.Tx, productID uuid.UUID, delta int, referenceID uuid.UUID, movementType string) error {
	pgTx := storage.Unwrap(tx)

	_, err := pgTx.Exec(ctx, `
		UPDATE products
		SET stock = stock + $2,
		    updated_at = NOW()
		WHERE id = $1
	`, productID, delta)
	if err != nil {
		return fmt.Errorf("failed to adjust stock: %w", err)
	}

	_, err = pgTx.Exec(ctx, `
		INSERT INTO inventory_movements (id, product_id, reference_id, movement_type, change_quantity)
		VALUES ($1, $2, $3, $4, $5)
	`, uuid.New(), productID, referenceID, movementType, delta)
	if err != nil {
		return fmt.Errorf("failed to insert movement record: %w", err)
	}

	return nil
}

func (r *PostgresRepository) MovementExists(ctx context.Context, tx storage.Tx, referenceID uuid.UUID, movementType string) (bool, error) {
	var exists bool
	err := storage.Unwrap(tx).QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM inventory_movements
			WHERE reference_id = $1 AND movement_type = $2
		)
	`, referenceID, movementType).Scan(&exists)
	return exists, err
}
