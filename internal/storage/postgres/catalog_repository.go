package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const productColumns = `id, name, description, price, category, image, stock, rating, created_at, updated_at`

type catalogRepository struct {
	db *sql.DB
}

// NewCatalogRepository создаёт PostgreSQL-реализацию CatalogRepository.
func NewCatalogRepository(store *Store) domain.CatalogRepository {
	return &catalogRepository{db: store.DB()}
}

func (r *catalogRepository) List(ctx context.Context) ([]domain.CatalogItem, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		ORDER BY name ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	items := make([]domain.CatalogItem, 0)
	for rows.Next() {
		item, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate product rows: %w", err)
	}

	return items, nil
}

func (r *catalogRepository) Get(ctx context.Context, id string) (domain.CatalogItem, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	item, err := scanProduct(r.db.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.CatalogItem{}, domain.ErrProductNotFound
		}
		return domain.CatalogItem{}, err
	}
	return item, nil
}

func (r *catalogRepository) Create(ctx context.Context, item domain.CatalogItem) error {
	if err := item.Validate(); err != nil {
		return err
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	now := time.Now().UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`,
		item.ID, item.Name, item.Description, item.Price, item.Category,
		item.Image, item.Stock, nullRating(item.Rating), item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrProductExists
		}
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

func (r *catalogRepository) Update(ctx context.Context, item domain.CatalogItem) error {
	if err := item.Validate(); err != nil {
		return err
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2,
		    description = $3,
		    price = $4,
		    category = $5,
		    image = $6,
		    stock = $7,
		    rating = $8,
		    updated_at = $9
		WHERE id = $1
	`,
		item.ID, item.Name, item.Description, item.Price, item.Category,
		item.Image, item.Stock, nullRating(item.Rating), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	return requireAffected(res, domain.ErrProductNotFound)
}

func (r *catalogRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	return requireAffected(res, domain.ErrProductNotFound)
}

// AdjustStock меняет остаток одним UPDATE с проверкой неотрицательности,
// поэтому конкурентные резервы не уводят stock в минус.
func (r *catalogRepository) AdjustStock(ctx context.Context, id string, delta int) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE products
		SET stock = stock + $2,
		    updated_at = $3
		WHERE id = $1
		  AND stock + $2 >= 0
	`, id, delta, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("adjust stock: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check product exists: %w", err)
	}
	if !exists {
		return domain.ErrProductNotFound
	}
	return fmt.Errorf("%w: %s", domain.ErrInsufficientStock, id)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (domain.CatalogItem, error) {
	var (
		item   domain.CatalogItem
		rating sql.NullFloat64
	)
	if err := row.Scan(
		&item.ID, &item.Name, &item.Description, &item.Price, &item.Category,
		&item.Image, &item.Stock, &rating, &item.CreatedAt, &item.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.CatalogItem{}, err
		}
		return domain.CatalogItem{}, fmt.Errorf("scan product: %w", err)
	}
	if rating.Valid {
		v := rating.Float64
		item.Rating = &v
	}
	return item, nil
}

func nullRating(rating *float64) sql.NullFloat64 {
	if rating == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *rating, Valid: true}
}

func requireAffected(res sql.Result, notFound error) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return notFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

var _ domain.CatalogRepository = (*catalogRepository)(nil)
