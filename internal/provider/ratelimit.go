package provider

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Default minimum interval between calls per provider.
var defaultIntervals = map[ProviderName]time.Duration{
	NameMusicBrainz: 1100 * time.Millisecond,
	NameDeezer:      200 * time.Millisecond,
	NameSpotify:     250 * time.Millisecond,
	NameWikipedia:   200 * time.Millisecond,
}

// LimiterStats counts limiter use for one provider.
type LimiterStats struct {
	Interval time.Duration `json:"interval"` // 0 means unlimited
	Calls    int64         `json:"calls"`
	Waits    int64         `json:"waits"`
	Waited   time.Duration `json:"waited"`
}

type limiterEntry struct {
	lim    *rate.Limiter
	calls  atomic.Int64
	waits  atomic.Int64
	waited atomic.Int64
}

// RateLimiterMap holds one rate.Limiter per provider, created once at startup.
// Each limiter allows one call per interval with a burst of one.
type RateLimiterMap struct {
	mu       sync.RWMutex
	limiters map[ProviderName]*limiterEntry
}

// NewRateLimiterMap creates all provider rate limiters with default intervals.
func NewRateLimiterMap() *RateLimiterMap {
	m := &RateLimiterMap{
		limiters: make(map[ProviderName]*limiterEntry, len(defaultIntervals)),
	}
	for name, d := range defaultIntervals {
		m.limiters[name] = &limiterEntry{lim: rate.NewLimiter(rate.Every(d), 1)}
	}
	return m
}

// SetInterval replaces the minimum interval for name.
func (m *RateLimiterMap) SetInterval(name ProviderName, d time.Duration) {
	limit := rate.Inf
	if d > 0 {
		limit = rate.Every(d)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.limiters[name]; ok {
		e.lim.SetLimit(limit)
		return
	}
	m.limiters[name] = &limiterEntry{lim: rate.NewLimiter(limit, 1)}
}

// Wait blocks until the rate limiter for the given provider allows a request,
// or the context is canceled. Unknown providers are not limited.
func (m *RateLimiterMap) Wait(ctx context.Context, name ProviderName) error {
	m.mu.RLock()
	e, ok := m.limiters[name]
	m.mu.RUnlock()
	if !ok {
		return nil
	}

	e.calls.Add(1)
	r := e.lim.Reserve()
	d := r.Delay()
	if d <= 0 {
		return nil
	}

	e.waits.Add(1)
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		r.Cancel()
		return ctx.Err()
	case <-t.C:
		e.waited.Add(int64(d))
		return nil
	}
}

// Stats returns the counters for name.
func (m *RateLimiterMap) Stats(name ProviderName) LimiterStats {
	m.mu.RLock()
	e, ok := m.limiters[name]
	m.mu.RUnlock()
	if !ok {
		return LimiterStats{}
	}
	var interval time.Duration
	if l := e.lim.Limit(); l != rate.Inf && l > 0 {
		interval = time.Duration(float64(time.Second) / float64(l))
	}
	return LimiterStats{
		Interval: interval,
		Calls:    e.calls.Load(),
		Waits:    e.waits.Load(),
		Waited:   time.Duration(e.waited.Load()),
	}
}
