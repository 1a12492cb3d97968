package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// ErrCircuitOpen возвращается, пока провайдер считается недоступным.
var ErrCircuitOpen = fmt.Errorf("%w: circuit breaker is open", domain.ErrPaymentUnavailable)

// RetryConfig конфигурация повторов авторизации.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryConfig возвращает конфигурацию по умолчанию.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      2 * time.Second,
		BackoffFactor: 2.0,
	}
}

// CircuitState: состояние автомата.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// CircuitBreaker размыкается после maxFailures технических сбоев подряд.
// Отказ банка (ErrPaymentDeclined) сбоем не считается.
type CircuitBreaker struct {
	mu           sync.Mutex
	maxFailures  int
	resetTimeout time.Duration
	failures     int
	lastFailure  time.Time
	state        CircuitState
	// в полуоткрытом состоянии выполняется пробный вызов
	trialInFlight bool
	now           func() time.Time
	logger        *log.Entry
}

// NewCircuitBreaker создаёт автомат в замкнутом состоянии.
func NewCircuitBreaker(maxFailures int, resetTimeout time.Duration, logger *log.Entry) *CircuitBreaker {
	if logger == nil {
		logger = log.New().WithField("component", "payment-breaker")
	}
	if maxFailures <= 0 {
		maxFailures = 1
	}
	return &CircuitBreaker{
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		state:        CircuitClosed,
		now:          time.Now,
		logger:       logger,
	}
}

// State возвращает текущее состояние.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Execute выполняет fn, если автомат не разомкнут. В полуоткрытом
// состоянии пропускается один пробный вызов, остальные получают ErrCircuitOpen.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	trial, err := cb.allow()
	if err != nil {
		return err
	}
	err = fn()
	cb.record(err, trial)
	return err
}

func (cb *CircuitBreaker) allow() (trial bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return false, nil
	case CircuitHalfOpen:
		if cb.trialInFlight {
			return false, ErrCircuitOpen
		}
	default:
		if cb.now().Sub(cb.lastFailure) < cb.resetTimeout {
			return false, ErrCircuitOpen
		}
		cb.state = CircuitHalfOpen
		cb.logger.Info("circuit breaker half-open")
	}
	cb.trialInFlight = true
	return true, nil
}

func (cb *CircuitBreaker) record(err error, trial bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if trial {
		cb.trialInFlight = false
	} else if cb.state != CircuitClosed {
		// вызов начат до размыкания, исход решает пробный
		return
	}

	if err == nil || errors.Is(err, domain.ErrPaymentDeclined) {
		if cb.state == CircuitHalfOpen {
			cb.logger.Info("circuit breaker closed")
		}
		cb.state = CircuitClosed
		cb.failures = 0
		return
	}

	cb.failures++
	cb.lastFailure = cb.now()
	if cb.state == CircuitHalfOpen || cb.failures >= cb.maxFailures {
		if cb.state != CircuitOpen {
			cb.logger.WithField("failures", cb.failures).Warn("circuit breaker opened")
		}
		cb.state = CircuitOpen
	}
}

// ResilientService добавляет к провайдеру повторы с экспоненциальной
// задержкой и circuit breaker.
type ResilientService struct {
	next    domain.PaymentService
	retry   RetryConfig
	breaker *CircuitBreaker
	logger  *log.Entry
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewResilientService оборачивает next. breaker может быть nil.
func NewResilientService(next domain.PaymentService, retry RetryConfig, breaker *CircuitBreaker, logger *log.Entry) *ResilientService {
	if logger == nil {
		logger = log.New().WithField("component", "payment")
	}
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = 1
	}
	if retry.BackoffFactor < 1 {
		retry.BackoffFactor = 1
	}
	return &ResilientService{
		next:    next,
		retry:   retry,
		breaker: breaker,
		logger:  logger,
		sleep:   sleepWithContext,
	}
}

// Authorize вызывает провайдера, повторяя только технические сбои.
func (s *ResilientService) Authorize(ctx context.Context, orderID string, amount decimal.Decimal, cardNumber string) (domain.Payment, error) {
	var (
		payment domain.Payment
		err     error
	)
	delay := s.retry.InitialDelay

	for attempt := 1; attempt <= s.retry.MaxAttempts; attempt++ {
		call := func() error {
			payment, err = s.next.Authorize(ctx, orderID, amount, cardNumber)
			return err
		}
		if s.breaker != nil {
			err = s.breaker.Execute(call)
		} else {
			err = call()
		}
		if err == nil {
			if attempt > 1 {
				s.logger.WithFields(log.Fields{"order_id": orderID, "attempt": attempt}).Info("payment authorized after retry")
			}
			return payment, nil
		}
		if !shouldRetry(err) || attempt == s.retry.MaxAttempts {
			break
		}

		s.logger.WithError(err).WithFields(log.Fields{
			"order_id": orderID,
			"attempt":  attempt,
			"delay":    delay,
		}).Warn("payment authorization failed, retrying")

		if sleepErr := s.sleep(ctx, delay); sleepErr != nil {
			return payment, sleepErr
		}
		delay = time.Duration(float64(delay) * s.retry.BackoffFactor)
		if s.retry.MaxDelay > 0 && delay > s.retry.MaxDelay {
			delay = s.retry.MaxDelay
		}
	}

	return payment, err
}

// shouldRetry: отказ банка окончателен, открытый breaker и отмена ctx тоже.
func shouldRetry(err error) bool {
	switch {
	case errors.Is(err, domain.ErrPaymentDeclined),
		errors.Is(err, ErrCircuitOpen),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	default:
		return true
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var _ domain.PaymentService = (*ResilientService)(nil)
