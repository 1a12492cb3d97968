package domain

import (
	"strings"
	"time"
)

// IdempotencyStatus: стадия обработки запроса с idempotency-key.
type IdempotencyStatus string

const (
	IdempotencyStatusProcessing IdempotencyStatus = "processing"
	IdempotencyStatusDone       IdempotencyStatus = "done"
	// IdempotencyStatusFailed хранит бизнес-отказ или инфраструктурную ошибку для повтора.
	IdempotencyStatusFailed IdempotencyStatus = "failed"
)

// IdempotencyTTL: срок хранения ответа на оформление.
const IdempotencyTTL = 24 * time.Hour

// IdempotencyRecord: сохранённый результат оформления по ключу.
type IdempotencyRecord struct {
	Key          string
	RequestHash  string
	ResponseBody []byte
	HTTPStatus   int
	Status       IdempotencyStatus
	TTLAt        time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Valid сообщает, известен ли статус.
func (s IdempotencyStatus) Valid() bool {
	return s == IdempotencyStatusProcessing || s == IdempotencyStatusDone || s == IdempotencyStatusFailed
}

// NewIdempotencyClaim проверяет ключ и хэш запроса и собирает запись в статусе
// processing. Нулевой ttlAt заменяется на now+IdempotencyTTL.
func NewIdempotencyClaim(key, requestHash string, ttlAt, now time.Time) (IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	requestHash = strings.TrimSpace(requestHash)
	switch {
	case key == "":
		return IdempotencyRecord{}, ErrIdempotencyKeyRequired
	case requestHash == "":
		return IdempotencyRecord{}, ErrIdempotencyRequestHashRequired
	}
	if ttlAt.IsZero() {
		ttlAt = now.Add(IdempotencyTTL)
	}
	return IdempotencyRecord{
		Key:         key,
		RequestHash: requestHash,
		Status:      IdempotencyStatusProcessing,
		TTLAt:       ttlAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Expired сообщает, истёк ли срок записи к моменту now. Запись без TTL вечна.
func (r IdempotencyRecord) Expired(now time.Time) bool {
	return !r.TTLAt.IsZero() && !now.Before(r.TTLAt)
}

// ConflictWith объясняет, почему живая запись не даёт занять ключ повторно.
func (r IdempotencyRecord) ConflictWith(requestHash string) error {
	if r.RequestHash != strings.TrimSpace(requestHash) {
		return ErrIdempotencyHashMismatch
	}
	return ErrIdempotencyKeyAlreadyExists
}
