package testutils

import (
	"context"
	"sync"
	"time"

	"quote-ingestor/internal/model"
)

// FakeCalendar 返回固定的交易时段
type FakeCalendar struct {
	mu      sync.Mutex
	Session model.MarketSession
	Err     error
	calls   int
}

func (c *FakeCalendar) GetSession(_ context.Context, date time.Time) (model.MarketSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.Err != nil {
		return model.MarketSession{}, c.Err
	}
	s := c.Session
	if s.Date.IsZero() {
		s.Date = date
	}
	return s, nil
}

func (c *FakeCalendar) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// CountingPoller 记录 Poll 调用次数
type CountingPoller struct {
	mu    sync.Mutex
	Err   error
	calls int
}

func (p *CountingPoller) Poll(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return p.Err
}

func (p *CountingPoller) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}
