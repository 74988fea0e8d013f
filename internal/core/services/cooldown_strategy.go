package services

import (
	"fmt"
	"math"
	"time"

	"golang.org/x/time/rate"

	"roombot/internal/core/domain"
)

// sharedKey is the single key shared strategies are tracked under: the
// bot's own identity stands in for "the room".
const sharedKey = ""

// throttle is one side (personal or shared) of a cooldown. check must not
// mutate; commit is only called after every check of the cycle passed.
type throttle interface {
	check(key string, now time.Time) (ok bool, retryAfter time.Duration)
	commit(key string, now time.Time)
	// prune drops state that no longer affects check results.
	prune(now time.Time) int
}

func newThrottle(spec domain.StrategySpec, scope domain.ThrottleScope, now time.Time) (throttle, error) {
	switch spec.Kind {
	case domain.StrategySince:
		if spec.MinInterval < domain.MinCooldownInterval {
			return nil, fmt.Errorf("%s since interval %v is below %v: %w",
				scope, spec.MinInterval, domain.MinCooldownInterval, domain.ErrInvalidStrategy)
		}
		s := &sinceThrottle{interval: spec.MinInterval, last: make(map[string]time.Time)}
		if scope == domain.ScopeShared {
			// An immediate check after registration passes.
			s.last[sharedKey] = now.Add(-spec.MinInterval)
		}
		return s, nil

	case domain.StrategyBucket:
		if scope != domain.ScopeShared {
			return nil, fmt.Errorf("bucket is a shared-only strategy: %w", domain.ErrInvalidStrategy)
		}
		if spec.Capacity < 1 {
			return nil, fmt.Errorf("bucket capacity %d must be >= 1: %w", spec.Capacity, domain.ErrInvalidStrategy)
		}
		if spec.RefillEvery < domain.MinCooldownInterval {
			return nil, fmt.Errorf("bucket refill %v is below %v: %w",
				spec.RefillEvery, domain.MinCooldownInterval, domain.ErrInvalidStrategy)
		}
		return newBucketThrottle(spec.Capacity, spec.RefillEvery, now), nil

	case domain.StrategyLimiter:
		if scope != domain.ScopeShared {
			return nil, fmt.Errorf("limiter is a shared-only strategy: %w", domain.ErrInvalidStrategy)
		}
		if spec.Count < 1 {
			return nil, fmt.Errorf("limiter count %d must be >= 1: %w", spec.Count, domain.ErrInvalidStrategy)
		}
		window, ok := limiterUnits[spec.Unit]
		if !ok {
			return nil, fmt.Errorf("limiter unit %q is not one of second, minute, hour, day: %w",
				spec.Unit, domain.ErrInvalidStrategy)
		}
		return &windowThrottle{limit: spec.Count, window: window}, nil
	}
	return nil, fmt.Errorf("unknown strategy %q: %w", spec.Kind, domain.ErrInvalidStrategy)
}

var limiterUnits = map[string]time.Duration{
	"second": time.Second,
	"minute": time.Minute,
	"hour":   time.Hour,
	"day":    24 * time.Hour,
}

// sinceThrottle requires interval to elapse between successful uses. A key
// with no entry has never been used and always passes.
type sinceThrottle struct {
	interval time.Duration
	last     map[string]time.Time
}

func (s *sinceThrottle) check(key string, now time.Time) (bool, time.Duration) {
	last, ok := s.last[key]
	if !ok {
		return true, 0
	}
	if elapsed := now.Sub(last); elapsed < s.interval {
		return false, s.interval - elapsed
	}
	return true, 0
}

func (s *sinceThrottle) commit(key string, now time.Time) {
	s.last[key] = now
}

func (s *sinceThrottle) prune(now time.Time) int {
	n := 0
	for key, last := range s.last {
		if now.Sub(last) >= s.interval {
			delete(s.last, key)
			n++
		}
	}
	return n
}

// bucketThrottle is a token bucket that starts full and refills one token
// every refill period.
type bucketThrottle struct {
	limiter *rate.Limiter
	refill  time.Duration
}

func newBucketThrottle(capacity int, refill time.Duration, now time.Time) *bucketThrottle {
	lim := rate.NewLimiter(rate.Every(refill), capacity)
	// Anchor the limiter to the engine clock rather than the wall clock.
	lim.SetLimitAt(now, rate.Every(refill))
	return &bucketThrottle{limiter: lim, refill: refill}
}

func (b *bucketThrottle) check(_ string, now time.Time) (bool, time.Duration) {
	tokens := b.limiter.TokensAt(now)
	if tokens >= 1 {
		return true, 0
	}
	missing := 1 - tokens
	return false, time.Duration(math.Ceil(missing * float64(b.refill)))
}

func (b *bucketThrottle) commit(_ string, now time.Time) {
	b.limiter.AllowN(now, 1)
}

func (b *bucketThrottle) prune(time.Time) int { return 0 }

// windowThrottle admits limit uses per fixed window aligned to the unit.
type windowThrottle struct {
	limit  int
	window time.Duration

	start time.Time
	used  int
}

func (w *windowThrottle) current(now time.Time) (time.Time, int) {
	start := now.Truncate(w.window)
	if !start.Equal(w.start) {
		return start, 0
	}
	return start, w.used
}

func (w *windowThrottle) check(_ string, now time.Time) (bool, time.Duration) {
	start, used := w.current(now)
	if used < w.limit {
		return true, 0
	}
	return false, start.Add(w.window).Sub(now)
}

func (w *windowThrottle) commit(_ string, now time.Time) {
	start, used := w.current(now)
	w.start = start
	w.used = used + 1
}

func (w *windowThrottle) prune(time.Time) int { return 0 }
