// Package throttle limits request rates globally and per key.
package throttle

import (
	"sync"

	"github.com/Laisky/errors/v2"
	"golang.org/x/time/rate"
)

// Config for KeyedThrottle.
type Config struct {
	TotalNPerSec, TotalBurst int
	EachKeyNPerSec, EachKeyBurst int
}

// KeyedThrottle combines one global token bucket with one bucket per key.
type KeyedThrottle struct {
	cfg   Config
	total *rate.Limiter

	mu   sync.Mutex
	keys map[string]*rate.Limiter
}

// New creates a KeyedThrottle.
func New(cfg Config) (*KeyedThrottle, error) {
	if cfg.TotalNPerSec <= 0 || cfg.EachKeyNPerSec <= 0 {
		return nil, errors.New("NPerSec must bigger than 0")
	}
	if cfg.TotalBurst < cfg.TotalNPerSec || cfg.EachKeyBurst < cfg.EachKeyNPerSec {
		return nil, errors.New("burst must not be smaller than NPerSec")
	}

	return &KeyedThrottle{
		cfg:   cfg,
		total: rate.NewLimiter(rate.Limit(cfg.TotalNPerSec), cfg.TotalBurst),
		keys:  make(map[string]*rate.Limiter),
	}, nil
}

// Allow reports whether one more request for key may proceed.
// A request rejected by its key bucket does not consume a global token.
func (t *KeyedThrottle) Allow(key string) bool {
	t.mu.Lock()
	limiter, ok := t.keys[key]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(t.cfg.EachKeyNPerSec), t.cfg.EachKeyBurst)
		t.keys[key] = limiter
	}
	t.mu.Unlock()

	return limiter.Allow() && t.total.Allow()
}

// Forget drops the bucket of key, e.g. after the keyed resource is deleted.
func (t *KeyedThrottle) Forget(key string) {
	t.mu.Lock()
	delete(t.keys, key)
	t.mu.Unlock()
}
