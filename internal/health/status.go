// Package health отдаёт состояние зависимостей витрины для liveness- и readiness-проверок.
package health

import "time"

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// severity упорядочивает статусы: сводный статус равен худшему из проверок.
func (s Status) severity() int {
	switch s {
	case StatusHealthy:
		return 0
	case StatusDegraded:
		return 1
	default:
		return 2
	}
}

// Check: результат проверки одного компонента.
type Check struct {
	Name       string `json:"name"`
	Status     Status `json:"status"`
	Message    string `json:"message,omitempty"`
	DurationMs int64  `json:"duration_ms"`
	Optional   bool   `json:"optional,omitempty"`
}

// effective учитывает, что отказ необязательной зависимости только
// понижает сервис до degraded.
func (c Check) effective() Status {
	if c.Optional && c.Status == StatusUnhealthy {
		return StatusDegraded
	}
	return c.Status
}

// Response: тело /healthz.
type Response struct {
	Status        Status           `json:"status"`
	Timestamp     time.Time        `json:"timestamp"`
	Checks        map[string]Check `json:"checks,omitempty"`
	Version       string           `json:"version,omitempty"`
	UptimeSeconds int64            `json:"uptime_seconds"`
}

// Ready ложно только при отказе критичной проверки.
func (r Response) Ready() bool {
	return r.Status != StatusUnhealthy
}

func summarize(checks map[string]Check) Status {
	overall := StatusHealthy
	for _, c := range checks {
		if s := c.effective(); s.severity() > overall.severity() {
			overall = s
		}
	}
	return overall
}
