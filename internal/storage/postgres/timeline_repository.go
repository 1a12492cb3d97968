package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const timelineInsertPrefix = `INSERT INTO timeline_events (order_id, type, reason, occurred) VALUES `

type timelineRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewTimelineRepository(store *Store) domain.TimelineRepository {
	return &timelineRepository{
		db:  store.DB(),
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Append пишет пачку одним многострочным INSERT, поэтому она атомарна
// без явной транзакции.
func (r *timelineRepository) Append(ctx context.Context, events ...domain.TimelineEvent) error {
	if len(events) == 0 {
		return nil
	}
	stamped, err := domain.StampTimeline(events, r.now())
	if err != nil {
		return err
	}

	query, args := timelineInsert(stamped)
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert %d timeline events for %s: %w", len(stamped), stamped[0].OrderID, err)
	}
	return nil
}

func timelineInsert(events []domain.TimelineEvent) (string, []any) {
	rows := make([][]any, 0, len(events))
	for _, e := range events {
		rows = append(rows, []any{e.OrderID, e.Type, e.Reason, e.Occurred})
	}
	return multiRowInsert(timelineInsertPrefix, rows)
}

// List отдаёт события заказа по времени, при равенстве по порядку вставки.
func (r *timelineRepository) List(ctx context.Context, orderID string) (events []domain.TimelineEvent, err error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT order_id, type, reason, occurred
		FROM timeline_events
		WHERE order_id = $1
		ORDER BY occurred, id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list timeline of %s: %w", orderID, err)
	}
	defer func() {
		if cerr := rows.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()

	for rows.Next() {
		var e domain.TimelineEvent
		if err := rows.Scan(&e.OrderID, &e.Type, &e.Reason, &e.Occurred); err != nil {
			return nil, fmt.Errorf("scan timeline event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

var _ domain.TimelineRepository = (*timelineRepository)(nil)
