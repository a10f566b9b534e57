package rate

import (
	"context"
	"sync"
	"time"
)

// Config defines rate limiting parameters for one upstream host.
// RequestsPerSecond <= 0 disables limiting.
type Config struct {
	RequestsPerSecond int
	Burst             int
	Cooldown          time.Duration
}

// Limiter implements a token bucket rate limiter.
type Limiter struct {
	mu       sync.Mutex
	tokens   float64
	last     time.Time
	rate     float64
	burst    float64
	cooldown time.Duration
}

// New creates a new limiter.
func New(cfg Config) *Limiter {
	return &Limiter{
		tokens:   float64(cfg.Burst),
		last:     time.Now(),
		rate:     float64(cfg.RequestsPerSecond),
		burst:    float64(cfg.Burst),
		cooldown: cfg.Cooldown,
	}
}

// Allow takes a token if one is available.
func (l *Limiter) Allow() bool {
	if l.rate <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(l.last).Seconds()
	l.last = now

	l.tokens += elapsed * l.rate
	if l.tokens > l.burst {
		l.tokens = l.burst
	}

	if l.tokens >= 1 {
		l.tokens -= 1
		return true
	}

	return false
}

// Wait blocks until a token becomes available or context is canceled.
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		if l.Allow() {
			return nil
		}
		select {
		case <-time.After(l.retryAfter()):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// retryAfter is the time until the next token, capped so cancellation stays responsive.
func (l *Limiter) retryAfter() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	d := time.Duration((1 - l.tokens) / l.rate * float64(time.Second))
	if l.cooldown > 0 && d < l.cooldown {
		d = l.cooldown
	}
	if d <= 0 || d > 250*time.Millisecond {
		d = 250 * time.Millisecond
	}
	return d
}

// Manager holds one limiter per upstream key, e.g. "tanium:<host>".
type Manager struct {
	mu       sync.RWMutex
	limiters map[string]*Limiter
	defaults Config
}

// NewManager returns a Manager that creates limiters from defaults on first use.
func NewManager(defaults Config) *Manager {
	return &Manager{
		limiters: make(map[string]*Limiter),
		defaults: defaults,
	}
}

// GetLimiter returns the limiter for clientKey, creating it if needed.
func (m *Manager) GetLimiter(clientKey string) *Limiter {
	m.mu.RLock()
	if lim, ok := m.limiters[clientKey]; ok {
		m.mu.RUnlock()
		return lim
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if lim, ok := m.limiters[clientKey]; ok {
		return lim
	}
	lim := New(m.defaults)
	m.limiters[clientKey] = lim
	return lim
}

// Wait ensures rate limit compliance for a given key.
func (m *Manager) Wait(ctx context.Context, key string) error {
	lim := m.GetLimiter(key)
	return lim.Wait(ctx)
}
