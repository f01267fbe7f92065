// Package ratelimit implements a fixed-window rate limiter keyed by user
// and action kind, with LRU-bounded window state.
package ratelimit

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/vocalia/voice-engine/internal/config"
	"github.com/vocalia/voice-engine/internal/ports"
)

type window struct {
	start time.Time
	count int
}

// Limiter applies the configured per-kind rules. Kinds without a rule are
// unlimited. Window state lives in a bounded LRU so an arbitrary user
// population cannot grow memory without bound; evicting a live window only
// resets that user's count, which errs on the permissive side.
type Limiter struct {
	logger *zap.Logger
	rules  map[string]config.LimitRule

	mu    sync.Mutex
	cache *lru.Cache[string, *window]

	// now is swappable for tests.
	now func() time.Time
}

// NewLimiter creates a limiter from the configured rules.
func NewLimiter(logger *zap.Logger, cfg *config.Config) (*Limiter, error) {
	cache, err := lru.New[string, *window](cfg.Limits.CacheSize)
	if err != nil {
		return nil, err
	}

	logger.Info("rate limiter initialized",
		zap.Int("cache_size", cfg.Limits.CacheSize),
		zap.Int("rules", len(cfg.Limits.Rules)))

	return &Limiter{
		logger: logger,
		rules:  cfg.Limits.Rules,
		cache:  cache,
		now:    time.Now,
	}, nil
}

// Allow reports whether one more action of the given kind is within the
// user's budget, and if not, how long until the window rolls over.
func (l *Limiter) Allow(userID, kind string) ports.Decision {
	rule, ok := l.rules[kind]
	if !ok {
		return ports.Decision{Allowed: true}
	}

	key := userID + "|" + kind
	length := time.Duration(rule.WindowMs) * time.Millisecond

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	win, ok := l.cache.Get(key)
	if !ok || now.Sub(win.start) >= length {
		l.cache.Add(key, &window{start: now, count: 1})
		return ports.Decision{Allowed: true}
	}

	if win.count < rule.Max {
		win.count++
		return ports.Decision{Allowed: true}
	}

	retryAfter := win.start.Add(length).Sub(now)
	l.logger.Debug("action throttled",
		zap.String("user_id", userID),
		zap.String("kind", kind),
		zap.Duration("retry_after", retryAfter))
	return ports.Decision{Allowed: false, RetryAfter: retryAfter}
}
