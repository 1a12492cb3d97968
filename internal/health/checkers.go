package health

import (
	"context"
	"time"
)

// FuncChecker превращает функцию в Checker: nil означает healthy.
type FuncChecker struct {
	name string
	fn   func(ctx context.Context) error
}

func NewFuncChecker(name string, fn func(ctx context.Context) error) *FuncChecker {
	return &FuncChecker{name: name, fn: fn}
}

func (c *FuncChecker) Check(ctx context.Context) Check {
	started := time.Now()
	err := c.fn(ctx)

	result := Check{Name: c.name, Status: StatusHealthy, DurationMs: time.Since(started).Milliseconds()}
	if err != nil {
		result.Status = StatusUnhealthy
		result.Message = err.Error()
	}
	return result
}

// Pinger реализуется *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

func NewPingChecker(name string, db Pinger) *FuncChecker {
	return NewFuncChecker(name, db.PingContext)
}
