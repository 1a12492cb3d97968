// Package checkout оформляет заказ из корзины сессии: резерв остатков,
// демо-оплата, сохранение заказа вместе с outbox-событием и таймлайном.
package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/cart"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

const aggregateTypeOrder = "order"

// Request: входные данные оформления.
type Request struct {
	SessionID string
	// CustomerEmail: аккаунт покупателя; если пуст, используется email из формы.
	CustomerEmail  string
	IdempotencyKey string
	Form           Form
}

// Result: итог оформления.
type Result struct {
	Order domain.Order
	// Replayed выставляется, когда ответ взят из кэша идемпотентности.
	Replayed bool
}

// Service выполняет оформление заказа.
type Service struct {
	sessions  *cart.Sessions
	orders    domain.OrderRepository
	inventory domain.InventoryService
	payments  domain.PaymentService
	outbox    domain.OutboxRepository
	timeline  domain.TimelineRepository
	idem      domain.IdempotencyRepository
	metrics   *metrics.StorefrontMetrics
	logger    *log.Entry
	now       func() time.Time
	newID     func() string

	locksMu sync.Mutex
	locks   map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// Option настраивает Service.
type Option func(*Service)

// WithOutbox включает запись событий в transactional outbox.
func WithOutbox(repo domain.OutboxRepository) Option {
	return func(s *Service) { s.outbox = repo }
}

// WithTimeline включает запись таймлайна заказа.
func WithTimeline(repo domain.TimelineRepository) Option {
	return func(s *Service) { s.timeline = repo }
}

// WithIdempotency включает обработку idempotency-key.
func WithIdempotency(repo domain.IdempotencyRepository) Option {
	return func(s *Service) { s.idem = repo }
}

// WithMetrics подключает метрики.
func WithMetrics(m *metrics.StorefrontMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock подменяет часы (для тестов).
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator подменяет генератор идентификаторов заказов.
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) {
		if newID != nil {
			s.newID = newID
		}
	}
}

// NewService собирает сервис оформления.
func NewService(
	sessions *cart.Sessions,
	orders domain.OrderRepository,
	inventory domain.InventoryService,
	payments domain.PaymentService,
	opts ...Option,
) *Service {
	s := &Service{
		sessions:  sessions,
		orders:    orders,
		inventory: inventory,
		payments:  payments,
		logger:    log.WithField("component", "checkout"),
		now:       time.Now,
		newID:     uuid.NewString,
		locks:     make(map[string]*sessionLock),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Checkout оформляет заказ по корзине сессии.
func (s *Service) Checkout(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.IdempotencyKey) == "" || s.idem == nil {
		order, err := s.checkout(ctx, req)
		return Result{Order: order}, err
	}
	return s.withIdempotency(ctx, req)
}

func (s *Service) checkout(ctx context.Context, req Request) (domain.Order, error) {
	started := s.now()
	logger := s.logger.WithField("session_id", req.SessionID)

	if err := req.Form.Validate(); err != nil {
		s.metrics.RecordCheckout(metrics.CheckoutResultRejected, time.Since(started))
		return domain.Order{}, err
	}

	// одна сессия оформляется строго последовательно, иначе корзина уйдёт в два заказа
	unlock := s.lockSession(req.SessionID)
	defer unlock()

	store, err := s.sessions.Get(ctx, req.SessionID)
	if err != nil {
		s.metrics.RecordCheckout(metrics.CheckoutResultRejected, time.Since(started))
		return domain.Order{}, err
	}
	lines := store.Lines()
	if len(lines) == 0 {
		s.metrics.RecordCheckout(metrics.CheckoutResultRejected, time.Since(started))
		return domain.Order{}, domain.ErrEmptyCart
	}

	order := s.newOrder(req, lines)
	if errs := order.ValidateInvariants(); len(errs) > 0 {
		s.metrics.RecordCheckout(metrics.CheckoutResultFailed, time.Since(started))
		return domain.Order{}, errors.Join(errs...)
	}
	logger = logger.WithField("order_id", order.ID)
	events := []domain.TimelineEvent{s.event(order.ID, domain.TimelineOrderCreated, "")}

	stepStarted := time.Now()
	if err := s.inventory.Reserve(ctx, order.ID, order.Lines); err != nil {
		s.metrics.RecordStepDuration("reserve", time.Since(stepStarted))
		result := metrics.CheckoutResultFailed
		if errors.Is(err, domain.ErrInsufficientStock) {
			result = metrics.CheckoutResultRejected
		}
		s.metrics.RecordCheckout(result, time.Since(started))
		logger.WithError(err).Warn("stock reservation failed")
		return domain.Order{}, fmt.Errorf("reserve stock: %w", err)
	}
	s.metrics.RecordStepDuration("reserve", time.Since(stepStarted))
	events = append(events, s.event(order.ID, domain.TimelineStockReserved, ""))

	stepStarted = time.Now()
	payment, payErr := s.payments.Authorize(ctx, order.ID, order.Total, req.Form.CardNumber)
	s.metrics.RecordStepDuration("payment", time.Since(stepStarted))
	if payErr != nil {
		s.release(ctx, logger, order)
		order.Status = domain.OrderStatusFailed
		order.FailureReason = payErr.Error()
		if payment.CardLastFour != "" {
			order.Payment = payment
		}
		order.Payment.Status = domain.PaymentStatusFailed
		if errors.Is(payErr, domain.ErrPaymentDeclined) {
			order.Payment.Status = domain.PaymentStatusDeclined
		}
		events = append(events,
			s.event(order.ID, domain.TimelinePaymentFailed, payErr.Error()),
			s.event(order.ID, domain.TimelineStockReleased, ""),
			s.event(order.ID, domain.TimelineOrderFailed, payErr.Error()),
		)

		if err := s.orders.Create(ctx, order); err != nil {
			logger.WithError(err).Error("failed to persist failed order")
		} else {
			s.recordTimeline(ctx, logger, events)
			s.enqueue(ctx, logger, kafka.EventTypeOrderFailed, order)
		}

		s.metrics.RecordCheckout(metrics.CheckoutResultRejected, time.Since(started))
		logger.WithError(payErr).Warn("payment was not authorized")
		return domain.Order{}, fmt.Errorf("authorize payment: %w", payErr)
	}
	events = append(events, s.event(order.ID, domain.TimelinePaymentOK, ""))

	order.Status = domain.OrderStatusPaid
	order.Payment = payment
	order.UpdatedAt = s.now().UTC()
	events = append(events, s.event(order.ID, domain.TimelineOrderPaid, ""))

	stepStarted = time.Now()
	if err := s.orders.Create(ctx, order); err != nil {
		s.metrics.RecordStepDuration("persist", time.Since(stepStarted))
		s.release(ctx, logger, order)
		s.metrics.RecordCheckout(metrics.CheckoutResultFailed, time.Since(started))
		logger.WithError(err).Error("failed to persist order")
		return domain.Order{}, fmt.Errorf("save order: %w", err)
	}
	s.recordTimeline(ctx, logger, events)
	s.enqueue(ctx, logger, kafka.EventTypeOrderPlaced, order)
	s.metrics.RecordStepDuration("persist", time.Since(stepStarted))

	// только оформленное: добавленное во время оплаты остаётся в корзине
	store.Deduct(lines)

	total, _ := order.Total.Float64()
	s.metrics.RecordOrderValue(total)
	s.metrics.RecordCheckout(metrics.CheckoutResultSuccess, time.Since(started))
	logger.WithFields(log.Fields{
		"customer": order.CustomerEmail,
		"total":    order.Total.StringFixed(2),
		"items":    order.ItemCount(),
	}).Info("order placed")

	return order, nil
}

func (s *Service) newOrder(req Request, lines []domain.CartLine) domain.Order {
	now := s.now().UTC()
	customer := strings.TrimSpace(req.CustomerEmail)
	if customer == "" {
		customer = strings.TrimSpace(req.Form.Email)
	}

	orderLines := make([]domain.OrderLine, 0, len(lines))
	for _, line := range lines {
		orderLines = append(orderLines, domain.OrderLine{
			ProductID: line.Item.ID,
			Name:      line.Item.Name,
			Category:  line.Item.Category,
			UnitPrice: line.Item.Price,
			Quantity:  line.Quantity,
		})
	}

	return domain.Order{
		ID:            s.newID(),
		CustomerEmail: customer,
		Status:        domain.OrderStatusPending,
		Total:         domain.CartTotal(lines),
		Lines:         orderLines,
		Shipping:      req.Form.Shipping(),
		Payment: domain.Payment{
			Status:       domain.PaymentStatusPending,
			CardLastFour: domain.CardLastFour(req.Form.CardNumber),
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (s *Service) release(ctx context.Context, logger *log.Entry, order domain.Order) {
	if err := s.inventory.Release(ctx, order.ID, order.Lines); err != nil {
		logger.WithError(err).Error("failed to release reserved stock")
	}
}

func (s *Service) event(orderID, eventType, reason string) domain.TimelineEvent {
	return domain.TimelineEvent{
		OrderID:  orderID,
		Type:     eventType,
		Reason:   reason,
		Occurred: s.now().UTC(),
	}
}

func (s *Service) recordTimeline(ctx context.Context, logger *log.Entry, events []domain.TimelineEvent) {
	if s.timeline == nil {
		return
	}
	if err := s.timeline.Append(ctx, events...); err != nil {
		logger.WithError(err).WithField("events", len(events)).Warn("failed to append order timeline")
		return
	}
	s.metrics.RecordTimelineEvents(len(events))
}

// enqueue кладёт событие в outbox; публикацией занимается outbox worker.
func (s *Service) enqueue(ctx context.Context, logger *log.Entry, eventType kafka.EventType, order domain.Order) {
	if s.outbox == nil {
		return
	}
	payload, err := json.Marshal(kafka.NewOrderEvent(eventType, order))
	if err != nil {
		logger.WithError(err).Error("failed to encode order event")
		return
	}
	if _, err := s.outbox.Enqueue(ctx, domain.OutboxMessage{
		AggregateType: aggregateTypeOrder,
		AggregateID:   order.ID,
		EventType:     string(eventType),
		Payload:       payload,
	}); err != nil {
		logger.WithError(err).WithField("event_type", eventType).Error("failed to enqueue outbox event")
		return
	}
	s.metrics.RecordOutboxEvent()
}

func (s *Service) lockSession(sessionID string) func() {
	s.locksMu.Lock()
	l, ok := s.locks[sessionID]
	if !ok {
		l = &sessionLock{}
		s.locks[sessionID] = l
	}
	l.refs++
	s.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, sessionID)
		}
		s.locksMu.Unlock()
	}
}
