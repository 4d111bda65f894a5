package bridge

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter gates outbound provider calls under the configured
// RateLimitPolicy (spec §6 rateLimitPolicy). The limiter keeps one bucket
// per key, except under the global (or empty) scope, where all keys share
// one bucket. BridgeClient passes the model's provider id as the key
// under every scope, so the "provider:model" and "provider:model:key"
// scopes limit per provider, not per model or per API key.
type RateLimiter interface {
	Wait(ctx context.Context, key string) error
	Stats(key string) RateLimitStats
}

// RateLimitStats mirrors the teacher's diagnostics shape, scoped to
// either the global limiter or one key's limiter.
type RateLimitStats struct {
	Allowed         int64
	Waited          int64
	TotalWaitTime   time.Duration
	AvailableTokens float64
	ActiveKeys      int
}

type keyedLimiter struct {
	limiter    *rate.Limiter
	stats      limiterStats
	lastAccess time.Time
}

type limiterStats struct {
	mu            sync.Mutex
	allowed       int64
	waited        int64
	totalWaitTime time.Duration
}

// tokenBucketLimiter implements RateLimiter using golang.org/x/time/rate,
// adapted from the teacher's per-key token bucket to the spec's
// scope-string keying instead of a boolean PerKey flag: scope=="global"
// always resolves to a single shared limiter regardless of key.
type tokenBucketLimiter struct {
	policy RateLimitPolicy

	mu       sync.RWMutex
	perKey   map[string]*keyedLimiter
	keyTTL   time.Duration
}

// NewRateLimiter constructs a limiter from policy, or a disabled no-op
// limiter when policy is nil or policy.Enabled is false.
func NewRateLimiter(policy *RateLimitPolicy) (RateLimiter, error) {
	if policy == nil || !policy.Enabled {
		return noopRateLimiter{}, nil
	}
	if policy.MaxRPS <= 0 {
		return nil, NewInvalidConfigError("rateLimitPolicy.maxRps must be positive when enabled")
	}
	burst := policy.Burst
	if burst < 1 {
		burst = 1
	}
	clamped := *policy
	clamped.Burst = burst
	return &tokenBucketLimiter{
		policy: clamped,
		perKey: make(map[string]*keyedLimiter),
		keyTTL: 5 * time.Minute,
	}, nil
}

func (tb *tokenBucketLimiter) effectiveKey(key string) string {
	if tb.policy.Scope == ScopeGlobal || tb.policy.Scope == "" {
		return ""
	}
	return key
}

func (tb *tokenBucketLimiter) get(key string) *keyedLimiter {
	key = tb.effectiveKey(key)

	tb.mu.RLock()
	kl, ok := tb.perKey[key]
	tb.mu.RUnlock()
	if ok {
		return kl
	}

	tb.mu.Lock()
	defer tb.mu.Unlock()
	if kl, ok := tb.perKey[key]; ok {
		return kl
	}
	kl = &keyedLimiter{
		limiter:    rate.NewLimiter(rate.Limit(tb.policy.MaxRPS), tb.policy.Burst),
		lastAccess: time.Now(),
	}
	tb.perKey[key] = kl
	return kl
}

func (tb *tokenBucketLimiter) Wait(ctx context.Context, key string) error {
	kl := tb.get(key)
	start := time.Now()
	err := kl.limiter.Wait(ctx)
	waited := time.Since(start)

	kl.stats.mu.Lock()
	if err == nil {
		kl.stats.allowed++
		if waited > 0 {
			kl.stats.waited++
			kl.stats.totalWaitTime += waited
		}
	}
	kl.stats.mu.Unlock()

	if err != nil {
		return NewRateLimitError("rate limit wait cancelled or timed out", nil, err)
	}
	return nil
}

func (tb *tokenBucketLimiter) Stats(key string) RateLimitStats {
	kl := tb.get(key)
	kl.stats.mu.Lock()
	defer kl.stats.mu.Unlock()

	tb.mu.RLock()
	active := len(tb.perKey)
	tb.mu.RUnlock()

	return RateLimitStats{
		Allowed:         kl.stats.allowed,
		Waited:          kl.stats.waited,
		TotalWaitTime:   kl.stats.totalWaitTime,
		AvailableTokens: float64(kl.limiter.Tokens()),
		ActiveKeys:      active,
	}
}

type noopRateLimiter struct{}

func (noopRateLimiter) Wait(ctx context.Context, key string) error { return nil }
func (noopRateLimiter) Stats(key string) RateLimitStats            { return RateLimitStats{} }
