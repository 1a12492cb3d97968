package checkout

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

type idempotencyErrorPayload struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// replayableErrors: бизнес-ошибки, которые восстанавливаются из кэша как есть.
var replayableErrors = map[string]error{
	"empty_cart":          domain.ErrEmptyCart,
	"form_incomplete":     domain.ErrCheckoutFormIncomplete,
	"insufficient_stock":  domain.ErrInsufficientStock,
	"payment_declined":    domain.ErrPaymentDeclined,
	"payment_unavailable": domain.ErrPaymentUnavailable,
	"session_required":    domain.ErrSessionRequired,
}

// ErrPreviousAttemptFailed возвращается при повторе ключа, чья обработка упала
// с инфраструктурной ошибкой.
var ErrPreviousAttemptFailed = errors.New("previous request with the same idempotency key failed")

func (s *Service) withIdempotency(ctx context.Context, req Request) (Result, error) {
	key := strings.TrimSpace(req.IdempotencyKey)
	logger := s.logger.WithField("idempotency_key", key)

	reqHash, err := buildRequestHash(req)
	if err != nil {
		return Result{}, fmt.Errorf("build idempotency request hash: %w", err)
	}

	record, err := s.idem.CreateProcessing(ctx, key, reqHash, s.now().UTC().Add(domain.IdempotencyTTL))
	if err != nil {
		return s.replay(err, record)
	}

	order, runErr := s.checkout(ctx, req)
	if runErr != nil {
		s.cacheFailure(ctx, key, runErr)
		return Result{}, runErr
	}

	body, err := json.Marshal(order)
	if err != nil {
		logger.WithError(err).Warn("failed to encode idempotent response")
		body = nil
	}
	if err := s.idem.MarkDone(ctx, key, body, http.StatusCreated); err != nil {
		logger.WithError(err).Warn("failed to store idempotent success response")
	}
	return Result{Order: order}, nil
}

func (s *Service) replay(createErr error, record domain.IdempotencyRecord) (Result, error) {
	switch {
	case errors.Is(createErr, domain.ErrIdempotencyHashMismatch):
		return Result{}, createErr
	case errors.Is(createErr, domain.ErrIdempotencyKeyAlreadyExists):
		switch record.Status {
		case domain.IdempotencyStatusDone:
			var order domain.Order
			if len(record.ResponseBody) == 0 {
				return Result{}, fmt.Errorf("idempotency cache is empty for key %q", record.Key)
			}
			if err := json.Unmarshal(record.ResponseBody, &order); err != nil {
				return Result{}, fmt.Errorf("decode cached checkout response: %w", err)
			}
			s.metrics.RecordCheckout(metrics.CheckoutResultReplayed, 0)
			return Result{Order: order, Replayed: true}, nil
		case domain.IdempotencyStatusProcessing:
			return Result{}, fmt.Errorf("%w: request is still processing", domain.ErrIdempotencyKeyAlreadyExists)
		case domain.IdempotencyStatusFailed:
			return Result{}, decodeFailure(record)
		default:
			return Result{}, fmt.Errorf("unknown idempotency record status %q", record.Status)
		}
	default:
		return Result{}, fmt.Errorf("create idempotency record: %w", createErr)
	}
}

func (s *Service) cacheFailure(ctx context.Context, key string, runErr error) {
	kind := failureKind(runErr)
	payload, err := json.Marshal(idempotencyErrorPayload{Kind: kind, Message: runErr.Error()})
	if err != nil {
		s.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to encode idempotency failure payload")
		return
	}
	if err := s.idem.MarkFailed(ctx, key, payload, StatusForError(runErr)); err != nil {
		s.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to store idempotency failure response")
	}
}

func failureKind(err error) string {
	for kind, sentinel := range replayableErrors {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return "internal"
}

func decodeFailure(record domain.IdempotencyRecord) error {
	var payload idempotencyErrorPayload
	if len(record.ResponseBody) == 0 || json.Unmarshal(record.ResponseBody, &payload) != nil {
		return ErrPreviousAttemptFailed
	}
	if sentinel, ok := replayableErrors[payload.Kind]; ok {
		return sentinel
	}
	return fmt.Errorf("%w: %s", ErrPreviousAttemptFailed, payload.Message)
}

// StatusForError сопоставляет ошибку оформления с HTTP-статусом.
func StatusForError(err error) int {
	switch {
	case err == nil:
		return http.StatusCreated
	case errors.Is(err, domain.ErrCheckoutFormIncomplete),
		errors.Is(err, domain.ErrSessionRequired),
		errors.Is(err, domain.ErrIdempotencyKeyRequired):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrEmptyCart),
		errors.Is(err, domain.ErrInsufficientStock),
		errors.Is(err, domain.ErrIdempotencyHashMismatch),
		errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, domain.ErrPaymentDeclined):
		return http.StatusPaymentRequired
	case errors.Is(err, domain.ErrPaymentUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// buildRequestHash фиксирует содержимое запроса. Номер карты в хэш входит,
// но сам в хранилище не попадает.
func buildRequestHash(req Request) (string, error) {
	data, err := json.Marshal(struct {
		SessionID     string `json:"session_id"`
		CustomerEmail string `json:"customer_email"`
		Form          Form   `json:"form"`
	}{
		SessionID:     req.SessionID,
		CustomerEmail: req.CustomerEmail,
		Form:          req.Form,
	})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
