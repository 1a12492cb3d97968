package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// CatalogRepository хранит карточки товаров.
type CatalogRepository interface {
	List(ctx context.Context) ([]CatalogItem, error)
	Get(ctx context.Context, id string) (CatalogItem, error)
	Create(ctx context.Context, item CatalogItem) error
	Update(ctx context.Context, item CatalogItem) error
	Delete(ctx context.Context, id string) error
	// AdjustStock атомарно меняет остаток на delta; возвращает
	// ErrInsufficientStock, если остаток ушёл бы в минус.
	AdjustStock(ctx context.Context, id string, delta int) error
}

// CartRepository сохраняет корзины сессий (best-effort персистентность).
type CartRepository interface {
	Load(ctx context.Context, sessionID string) (Cart, error)
	Save(ctx context.Context, cart Cart) error
	Delete(ctx context.Context, sessionID string) error
	// DeleteStale удаляет не более limit корзин, не менявшихся с before (limit <= 0: все).
	DeleteStale(ctx context.Context, before time.Time, limit int) (int, error)
}

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ. Возвращает ErrOrderExists, если запись с таким ID уже есть.
	Create(ctx context.Context, order Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound.
	Get(ctx context.Context, id string) (Order, error)
	// List возвращает заказы от новых к старым; limit <= 0 означает без ограничения.
	List(ctx context.Context, limit int) ([]Order, error)
	// ListByCustomer возвращает заказы покупателя от новых к старым.
	ListByCustomer(ctx context.Context, email string, limit int) ([]Order, error)
	// Save применяет обновления к заказу с учётом optimistic locking.
	Save(ctx context.Context, order Order) error
}

// InventoryService резервирует остатки под заказ.
type InventoryService interface {
	// Reserve списывает остатки по позициям заказа (всё или ничего).
	Reserve(ctx context.Context, orderID string, lines []OrderLine) error
	// Release возвращает остатки (компенсация).
	Release(ctx context.Context, orderID string, lines []OrderLine) error
}

// PaymentService: демо-провайдер оплаты, реальных списаний нет.
type PaymentService interface {
	Authorize(ctx context.Context, orderID string, amount decimal.Decimal, cardNumber string) (Payment, error)
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// TimelineRepository хранит события жизненного цикла заказа.
// Append записывает пачку событий целиком или не записывает ничего.
type TimelineRepository interface {
	Append(ctx context.Context, events ...TimelineEvent) error
	List(ctx context.Context, orderID string) ([]TimelineEvent, error)
}

// IdempotencyRepository хранит состояние обработки запросов по idempotency-key.
type IdempotencyRepository interface {
	CreateProcessing(ctx context.Context, key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(ctx context.Context, key string) (IdempotencyRecord, error)
	MarkDone(ctx context.Context, key string, responseBody []byte, httpStatus int) error
	MarkFailed(ctx context.Context, key string, responseBody []byte, httpStatus int) error
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error)
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
