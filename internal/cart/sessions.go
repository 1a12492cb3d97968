package cart

import (
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

const (
	defaultIdleTTL       = 30 * time.Minute
	defaultSaveTimeout   = 2 * time.Second
	defaultSweepInterval = time.Minute
)

// Sessions хранит корзины по идентификатору сессии. Корзина поднимается из
// репозитория при первом обращении и сохраняется после каждой мутации.
// Ошибки хранилища только логируются: персистентность best-effort.
type Sessions struct {
	repo    domain.CartRepository
	logger  *log.Entry
	metrics *metrics.StorefrontMetrics
	idleTTL time.Duration
	now     func() time.Time

	mu      sync.Mutex
	entries map[string]*sessionEntry
}

type sessionEntry struct {
	store       *Store
	unsubscribe func()
	lastAccess  time.Time
}

// SessionsOption настраивает реестр корзин.
type SessionsOption func(*Sessions)

// WithLogger задаёт логгер реестра.
func WithLogger(logger *log.Entry) SessionsOption {
	return func(s *Sessions) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics подключает метрики активных корзин.
func WithMetrics(m *metrics.StorefrontMetrics) SessionsOption {
	return func(s *Sessions) {
		s.metrics = m
	}
}

// WithIdleTTL задаёт, сколько неактивная корзина держится в памяти.
func WithIdleTTL(ttl time.Duration) SessionsOption {
	return func(s *Sessions) {
		if ttl > 0 {
			s.idleTTL = ttl
		}
	}
}

// WithClock подменяет источник времени (для тестов).
func WithClock(now func() time.Time) SessionsOption {
	return func(s *Sessions) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSessions создаёт реестр корзин поверх репозитория.
func NewSessions(repo domain.CartRepository, opts ...SessionsOption) *Sessions {
	s := &Sessions{
		repo:    repo,
		logger:  log.New().WithField("component", "cart-sessions"),
		idleTTL: defaultIdleTTL,
		now:     time.Now,
		entries: make(map[string]*sessionEntry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get возвращает корзину сессии, создавая её при необходимости. Загрузка из
// репозитория идёт без блокировки реестра; если корзину за это время уже
// подняли, побеждает первая.
func (s *Sessions) Get(ctx context.Context, sessionID string) (*Store, error) {
	if sessionID == "" {
		return nil, domain.ErrSessionRequired
	}
	if store, ok := s.lookup(sessionID); ok {
		return store, nil
	}

	loaded := s.load(ctx, sessionID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.entries[sessionID]; ok {
		entry.lastAccess = s.now()
		return entry.store, nil
	}
	entry := &sessionEntry{store: loaded, lastAccess: s.now()}
	entry.unsubscribe = loaded.Subscribe(s.persister(sessionID))
	s.entries[sessionID] = entry
	s.metrics.SetActiveCarts(len(s.entries))
	return loaded, nil
}

func (s *Sessions) lookup(sessionID string) (*Store, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[sessionID]
	if !ok {
		return nil, false
	}
	entry.lastAccess = s.now()
	return entry.store, true
}

// Drop забывает корзину сессии и удаляет её из хранилища.
func (s *Sessions) Drop(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	if entry, ok := s.entries[sessionID]; ok {
		entry.unsubscribe()
		delete(s.entries, sessionID)
		s.metrics.SetActiveCarts(len(s.entries))
	}
	s.mu.Unlock()

	if s.repo == nil {
		return nil
	}
	if err := s.repo.Delete(ctx, sessionID); err != nil && !errors.Is(err, domain.ErrCartNotFound) {
		return err
	}
	return nil
}

// Len возвращает число корзин в памяти.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Sweep выгружает из памяти корзины, к которым не обращались дольше idleTTL.
// Сохранённое состояние остаётся в репозитории.
func (s *Sessions) Sweep() int {
	cutoff := s.now().Add(-s.idleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for id, entry := range s.entries {
		if entry.lastAccess.Before(cutoff) {
			entry.unsubscribe()
			delete(s.entries, id)
			evicted++
		}
	}
	if evicted > 0 {
		s.metrics.SetActiveCarts(len(s.entries))
	}
	return evicted
}

// Run периодически вызывает Sweep до отмены контекста.
func (s *Sessions) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				s.logger.WithField("evicted", n).Debug("idle carts evicted")
			}
		}
	}
}

func (s *Sessions) load(ctx context.Context, sessionID string) *Store {
	if s.repo == nil {
		return NewStore()
	}

	saved, err := s.repo.Load(ctx, sessionID)
	switch {
	case err == nil:
		return Restore(saved.Lines)
	case errors.Is(err, domain.ErrCartNotFound):
		return NewStore()
	default:
		s.logger.WithError(err).WithField("session_id", sessionID).Warn("failed to load cart, starting empty")
		return NewStore()
	}
}

func (s *Sessions) persister(sessionID string) Listener {
	return func(snap Snapshot) {
		if s.repo == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), defaultSaveTimeout)
		defer cancel()

		err := s.repo.Save(ctx, domain.Cart{
			SessionID: sessionID,
			Lines:     snap.Lines,
			UpdatedAt: s.now().UTC(),
		})
		if err != nil {
			s.logger.WithError(err).WithFields(log.Fields{
				"session_id": sessionID,
				"version":    snap.Version,
			}).Warn("failed to persist cart")
		}
	}
}
