package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// cartLineRow: формат строки корзины в JSONB. Храним снимок товара,
// чтобы корзина поднималась без обращения к каталогу.
type cartLineRow struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Category  string          `json:"category,omitempty"`
	Image     string          `json:"image,omitempty"`
	Stock     int             `json:"stock"`
	Quantity  int             `json:"quantity"`
}

type cartRepository struct {
	db *sql.DB
}

// NewCartRepository создаёт PostgreSQL-реализацию CartRepository.
func NewCartRepository(store *Store) domain.CartRepository {
	return &cartRepository{db: store.DB()}
}

func (r *cartRepository) Load(ctx context.Context, sessionID string) (domain.Cart, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var (
		raw  []byte
		cart = domain.Cart{SessionID: sessionID}
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT lines, updated_at
		FROM carts
		WHERE session_id = $1
	`, sessionID).Scan(&raw, &cart.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Cart{}, domain.ErrCartNotFound
		}
		return domain.Cart{}, fmt.Errorf("load cart: %w", err)
	}

	var rows []cartLineRow
	if err := json.Unmarshal(raw, &rows); err != nil {
		return domain.Cart{}, fmt.Errorf("decode cart lines: %w", err)
	}
	cart.Lines = make([]domain.CartLine, 0, len(rows))
	for _, row := range rows {
		cart.Lines = append(cart.Lines, domain.CartLine{
			Item: domain.CatalogItem{
				ID:       row.ProductID,
				Name:     row.Name,
				Price:    row.Price,
				Category: row.Category,
				Image:    row.Image,
				Stock:    row.Stock,
			},
			Quantity: row.Quantity,
		})
	}
	return cart, nil
}

func (r *cartRepository) Save(ctx context.Context, cart domain.Cart) error {
	if cart.SessionID == "" {
		return domain.ErrSessionRequired
	}

	rows := make([]cartLineRow, 0, len(cart.Lines))
	for _, line := range cart.Lines {
		rows = append(rows, cartLineRow{
			ProductID: line.Item.ID,
			Name:      line.Item.Name,
			Price:     line.Item.Price,
			Category:  line.Item.Category,
			Image:     line.Item.Image,
			Stock:     line.Item.Stock,
			Quantity:  line.Quantity,
		})
	}
	raw, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("encode cart lines: %w", err)
	}

	updatedAt := cart.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO carts (session_id, lines, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (session_id)
		DO UPDATE SET lines = EXCLUDED.lines, updated_at = EXCLUDED.updated_at
	`, cart.SessionID, raw, updatedAt); err != nil {
		return fmt.Errorf("save cart: %w", err)
	}
	return nil
}

func (r *cartRepository) Delete(ctx context.Context, sessionID string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `DELETE FROM carts WHERE session_id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("delete cart: %w", err)
	}
	return requireAffected(res, domain.ErrCartNotFound)
}

func (r *cartRepository) DeleteStale(ctx context.Context, before time.Time, limit int) (int, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query, args := `DELETE FROM carts WHERE updated_at <= $1`, []any{before}
	if limit > 0 {
		query = `
			DELETE FROM carts
			WHERE session_id IN (
				SELECT session_id FROM carts
				WHERE updated_at <= $1
				ORDER BY updated_at
				LIMIT $2
			)`
		args = append(args, limit)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete stale carts: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("stale carts rows affected: %w", err)
	}
	return int(n), nil
}

var _ domain.CartRepository = (*cartRepository)(nil)
