package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// orderFields перечисляет колонки orders в порядке orderRow и scanOrder.
var orderFields = []string{
	"id", "customer_email", "status", "total",
	"shipping_name", "shipping_address", "shipping_city", "shipping_postal_code",
	"payment_provider", "payment_reference", "payment_status", "card_last_four", "payment_authorized_at",
	"failure_reason", "version", "created_at", "updated_at",
}

var (
	orderSelect = `SELECT ` + strings.Join(orderFields, ", ") + ` FROM orders`
	orderInsert = `INSERT INTO orders (` + strings.Join(orderFields, ", ") + `) VALUES `
	// orderUpdate меняет всё, кроме id и created_at, и поднимает версию.
	orderUpdate = `UPDATE orders SET
		customer_email = $2, status = $3, total = $4,
		shipping_name = $5, shipping_address = $6, shipping_city = $7, shipping_postal_code = $8,
		payment_provider = $9, payment_reference = $10, payment_status = $11,
		card_last_four = $12, payment_authorized_at = $13, failure_reason = $14,
		version = version + 1, updated_at = $16
		WHERE id = $1 AND version = $15`
)

const orderLinesInsert = `INSERT INTO order_lines (order_id, position, product_id, name, category, unit_price, quantity) VALUES `

type orderRepository struct {
	db *sql.DB
}

func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{db: store.DB()}
}

// Create пишет заказ и позиции в одной транзакции.
func (r *orderRepository) Create(ctx context.Context, order domain.Order) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query, args := multiRowInsert(orderInsert, [][]any{orderRow(order)})
	return inTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			if isUniqueViolation(err) {
				return domain.ErrOrderExists
			}
			return fmt.Errorf("insert order %s: %w", order.ID, err)
		}
		return writeLines(ctx, tx, order)
	})
}

func (r *orderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	orders, err := r.query(ctx, orderSelect+` WHERE id = $1`, id)
	if err != nil {
		return domain.Order{}, err
	}
	if len(orders) == 0 {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return orders[0], nil
}

func (r *orderRepository) List(ctx context.Context, limit int) ([]domain.Order, error) {
	return r.query(ctx, newestFirst(orderSelect, limit))
}

func (r *orderRepository) ListByCustomer(ctx context.Context, email string, limit int) ([]domain.Order, error) {
	return r.query(ctx, newestFirst(orderSelect+` WHERE customer_email = $1`, limit), email)
}

// Save обновляет заказ, если версия в базе совпала с order.Version, и
// целиком заменяет позиции.
func (r *orderRepository) Save(ctx context.Context, order domain.Order) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	return inTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, orderUpdate, updateArgs(order)...)
		if err != nil {
			return fmt.Errorf("update order %s: %w", order.ID, err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("rows affected: %w", err)
		} else if n == 0 {
			return staleOrder(ctx, tx, order.ID)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM order_lines WHERE order_id = $1`, order.ID); err != nil {
			return fmt.Errorf("delete lines of %s: %w", order.ID, err)
		}
		return writeLines(ctx, tx, order)
	})
}

// query читает заказы, а позиции всех найденных заказов догружает одним
// запросом после закрытия первого курсора.
func (r *orderRepository) query(ctx context.Context, query string, args ...any) ([]domain.Order, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	orders, err := collect(ctx, r.db, scanOrder, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	if len(orders) == 0 {
		return orders, nil
	}

	ids := make([]string, len(orders))
	index := make(map[string]int, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		index[o.ID] = i
		orders[i].Lines = []domain.OrderLine{}
	}
	lines, err := collect(ctx, r.db, scanOwnedLine, `
		SELECT order_id, product_id, name, category, unit_price, quantity
		FROM order_lines
		WHERE order_id = ANY($1)
		ORDER BY order_id, position`, ids)
	if err != nil {
		return nil, fmt.Errorf("load order lines: %w", err)
	}
	for _, l := range lines {
		i := index[l.orderID]
		orders[i].Lines = append(orders[i].Lines, l.OrderLine)
	}
	return orders, nil
}

type ownedLine struct {
	orderID string
	domain.OrderLine
}

func scanOwnedLine(row rowScanner) (ownedLine, error) {
	var l ownedLine
	err := row.Scan(&l.orderID, &l.ProductID, &l.Name, &l.Category, &l.UnitPrice, &l.Quantity)
	return l, err
}

// collect сканирует все строки запроса через scan.
func collect[T any](ctx context.Context, db *sql.DB, scan func(rowScanner) (T, error), query string, args ...any) (out []T, err error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()

	out = []T{}
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func newestFirst(query string, limit int) string {
	query += ` ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, limit)
	}
	return query
}

// staleOrder различает пропавший заказ и устаревшую версию.
func staleOrder(ctx context.Context, tx *sql.Tx, id string) error {
	var found string
	err := tx.QueryRowContext(ctx, `SELECT id FROM orders WHERE id = $1`, id).Scan(&found)
	switch {
	case err == nil:
		return domain.ErrOrderVersionConflict
	case errors.Is(err, sql.ErrNoRows):
		return domain.ErrOrderNotFound
	default:
		return fmt.Errorf("check order %s: %w", id, err)
	}
}

func writeLines(ctx context.Context, tx *sql.Tx, order domain.Order) error {
	if len(order.Lines) == 0 {
		return nil
	}
	rows := make([][]any, 0, len(order.Lines))
	for pos, l := range order.Lines {
		rows = append(rows, []any{order.ID, pos, l.ProductID, l.Name, l.Category, l.UnitPrice, l.Quantity})
	}
	query, args := multiRowInsert(orderLinesInsert, rows)
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert lines of %s: %w", order.ID, err)
	}
	return nil
}

func orderRow(o domain.Order) []any {
	return []any{
		o.ID, o.CustomerEmail, string(o.Status), o.Total,
		o.Shipping.Name, o.Shipping.Address, o.Shipping.City, o.Shipping.PostalCode,
		o.Payment.Provider, o.Payment.Reference, string(o.Payment.Status), o.Payment.CardLastFour, nullTime(o.Payment.AuthorizedAt),
		o.FailureReason, o.Version, o.CreatedAt, o.UpdatedAt,
	}
}

// updateArgs совпадает с orderRow без created_at.
func updateArgs(o domain.Order) []any {
	row := orderRow(o)
	return append(row[:15:15], o.UpdatedAt)
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		o             domain.Order
		status        string
		paymentStatus string
		authorizedAt  sql.NullTime
	)
	err := row.Scan(
		&o.ID, &o.CustomerEmail, &status, &o.Total,
		&o.Shipping.Name, &o.Shipping.Address, &o.Shipping.City, &o.Shipping.PostalCode,
		&o.Payment.Provider, &o.Payment.Reference, &paymentStatus, &o.Payment.CardLastFour, &authorizedAt,
		&o.FailureReason, &o.Version, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return domain.Order{}, fmt.Errorf("scan order: %w", err)
	}
	o.Status = domain.OrderStatus(status)
	o.Payment.Status = domain.PaymentStatus(paymentStatus)
	o.Payment.AuthorizedAt = authorizedAt.Time
	return o, nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

var _ domain.OrderRepository = (*orderRepository)(nil)
