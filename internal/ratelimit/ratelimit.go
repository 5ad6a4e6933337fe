// Package ratelimit enforces per-(tool_name, tier) admission windows ahead
// of tool dispatch.
package ratelimit

import (
	"strconv"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter grants or rejects admission for a tool call keyed by
// (tool_name, tier). Each key gets its own token bucket, lazily created
// from the tier's configured per-minute budget.
type Limiter struct {
	mu         sync.Mutex
	buckets    map[string]*rate.Limiter
	perMinute  map[int]int // tier -> requests per minute
	defaultRPM int
}

func New(defaultPerMinute int, byTier map[int]int) *Limiter {
	return &Limiter{
		buckets:    make(map[string]*rate.Limiter),
		perMinute:  byTier,
		defaultRPM: defaultPerMinute,
	}
}

// Allow reports whether a call to toolName at the given risk tier is
// admitted right now. It never blocks — a reject means the caller fails
// the task as RateLimited (spec.md §4.5.3), not that it should wait.
func (l *Limiter) Allow(toolName string, tier int) bool {
	return l.bucketFor(toolName, tier).Allow()
}

func (l *Limiter) bucketFor(toolName string, tier int) *rate.Limiter {
	key := bucketKey(toolName, tier)

	l.mu.Lock()
	defer l.mu.Unlock()

	if b, ok := l.buckets[key]; ok {
		return b
	}

	rpm := l.defaultRPM
	if configured, ok := l.perMinute[tier]; ok {
		rpm = configured
	}
	if rpm <= 0 {
		rpm = 1
	}

	b := rate.NewLimiter(rate.Limit(float64(rpm)/60.0), rpm)
	l.buckets[key] = b
	return b
}

func bucketKey(toolName string, tier int) string {
	return toolName + "#" + strconv.Itoa(tier)
}
