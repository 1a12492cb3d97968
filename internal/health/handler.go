package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// DefaultCheckTimeout ограничивает одну проверку.
const DefaultCheckTimeout = 2 * time.Second

// Checker проверяет один компонент и обязан уважать ctx.
type Checker interface {
	Check(ctx context.Context) Check
}

type entry struct {
	checker  Checker
	optional bool
}

// Handler хранит зарегистрированные проверки и обслуживает /healthz и /readyz.
type Handler struct {
	mu      sync.RWMutex
	entries map[string]entry
	timeout time.Duration

	version string
	started time.Time
	now     func() time.Time
}

func NewHandler(version string) *Handler {
	return &Handler{
		entries: make(map[string]entry),
		timeout: DefaultCheckTimeout,
		version: version,
		started: time.Now(),
		now:     time.Now,
	}
}

// SetCheckTimeout игнорирует значения <= 0.
func (h *Handler) SetCheckTimeout(timeout time.Duration) {
	if timeout > 0 {
		h.mu.Lock()
		h.timeout = timeout
		h.mu.Unlock()
	}
}

// RegisterChecker добавляет критичную проверку: её отказ снимает готовность.
func (h *Handler) RegisterChecker(name string, checker Checker) {
	h.add(name, entry{checker: checker})
}

// RegisterOptional добавляет проверку, отказ которой даёт только degraded.
func (h *Handler) RegisterOptional(name string, checker Checker) {
	h.add(name, entry{checker: checker, optional: true})
}

func (h *Handler) add(name string, e entry) {
	h.mu.Lock()
	h.entries[name] = e
	h.mu.Unlock()
}

// Evaluate запускает проверки параллельно, каждую со своим таймаутом.
func (h *Handler) Evaluate(ctx context.Context) Response {
	h.mu.RLock()
	entries := make(map[string]entry, len(h.entries))
	for name, e := range h.entries {
		entries[name] = e
	}
	timeout := h.timeout
	h.mu.RUnlock()

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		checks = make(map[string]Check, len(entries))
	)
	for name, e := range entries {
		wg.Add(1)
		go func() {
			defer wg.Done()
			checkCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			c := e.checker.Check(checkCtx)
			c.Optional = e.optional
			mu.Lock()
			checks[name] = c
			mu.Unlock()
		}()
	}
	wg.Wait()

	now := h.now()
	return Response{
		Status:        summarize(checks),
		Timestamp:     now.UTC(),
		Checks:        checks,
		Version:       h.version,
		UptimeSeconds: int64(now.Sub(h.started).Seconds()),
	}
}

// ServeHTTP отдаёт полный отчёт; 503 только при отказе критичной проверки.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := h.Evaluate(r.Context())

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode(resp.Ready()))
	_ = json.NewEncoder(w).Encode(resp)
}

func (h *Handler) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	ready := h.Evaluate(r.Context()).Ready()
	body := "ready"
	if !ready {
		body = "not ready"
	}
	w.WriteHeader(statusCode(ready))
	_, _ = w.Write([]byte(body))
}

// LivenessHandler отвечает 200, пока процесс обслуживает HTTP.
func LivenessHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func statusCode(ready bool) int {
	if ready {
		return http.StatusOK
	}
	return http.StatusServiceUnavailable
}
