package domain

import "time"

// StrategyKind selects a throttle algorithm for one side of a cooldown.
type StrategyKind string

const (
	StrategySince   StrategyKind = "since"
	StrategyBucket  StrategyKind = "bucket"
	StrategyLimiter StrategyKind = "limiter"
)

// MinCooldownInterval guards against misconfigured "since" strategies and bucket refill rates.
const MinCooldownInterval = 50 * time.Millisecond

// StrategySpec is a tagged variant: Kind picks which parameters apply.
//
//	since:   MinInterval
//	bucket:  Capacity, RefillEvery
//	limiter: Count, Unit ("second", "minute", "hour", "day")
type StrategySpec struct {
	Kind        StrategyKind  `json:"kind" yaml:"kind"`
	MinInterval time.Duration `json:"min_interval,omitempty" yaml:"min_interval"`
	Capacity    int           `json:"capacity,omitempty" yaml:"capacity"`
	RefillEvery time.Duration `json:"refill_every,omitempty" yaml:"refill_every"`
	Count       int           `json:"count,omitempty" yaml:"count"`
	Unit        string        `json:"unit,omitempty" yaml:"unit"`
}

func Since(d time.Duration) StrategySpec {
	return StrategySpec{Kind: StrategySince, MinInterval: d}
}

func Bucket(capacity int, refillEvery time.Duration) StrategySpec {
	return StrategySpec{Kind: StrategyBucket, Capacity: capacity, RefillEvery: refillEvery}
}

func Limiter(count int, unit string) StrategySpec {
	return StrategySpec{Kind: StrategyLimiter, Count: count, Unit: unit}
}

type CooldownDefinition struct {
	TypeID      string       `json:"type_id"`
	DisplayName string       `json:"display_name"`
	Personal    StrategySpec `json:"personal"`
	Shared      StrategySpec `json:"shared"`
}

type ThrottleScope string

const (
	ScopePersonal ThrottleScope = "personal"
	ScopeShared   ThrottleScope = "shared"
)

type CooldownRequest struct {
	Type      string
	User      string
	ModBypass bool
}

// Admission is the second stage of a command gate: Admitted, or Throttled in a scope.
type Admission struct {
	Admitted   bool
	Bypassed   bool
	Scope      ThrottleScope
	RetryAfter time.Duration
}

// Reason is the rejection string callers match on; empty when admitted.
func (a Admission) Reason() string {
	if a.Admitted {
		return ""
	}
	return string(a.Scope)
}
