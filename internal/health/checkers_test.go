package health

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type countingPinger struct {
	err   error
	calls int
}

func (p *countingPinger) PingContext(context.Context) error {
	p.calls++
	return p.err
}

func TestPingChecker(t *testing.T) {
	pinger := &countingPinger{}
	checker := NewPingChecker("postgres", pinger)

	c := checker.Check(context.Background())
	assert.Equal(t, StatusHealthy, c.Status)
	assert.Empty(t, c.Message)

	pinger.err = errors.New("dial tcp: refused")
	c = checker.Check(context.Background())
	assert.Equal(t, "postgres", c.Name)
	assert.Equal(t, StatusUnhealthy, c.Status)
	assert.Equal(t, "dial tcp: refused", c.Message)
	assert.Equal(t, 2, pinger.calls)
}
