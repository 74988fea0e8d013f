package services

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"roombot/internal/core/domain"
	apperrors "roombot/pkg/errors"
	"roombot/pkg/validation"
)

// CooldownObserver receives every check result, for metrics.
type CooldownObserver interface {
	ObserveCooldown(typeID string, admission domain.Admission)
}

type cooldownType struct {
	def domain.CooldownDefinition

	// mu makes check-then-commit atomic per type.
	mu       sync.Mutex
	personal throttle
	shared   throttle
}

// CooldownEngine enforces personal and shared rate limits per cooldown type.
type CooldownEngine struct {
	mu    sync.RWMutex
	types map[string]*cooldownType

	now      func() time.Time
	observer CooldownObserver
	logger   *zap.SugaredLogger
}

type CooldownOption func(*CooldownEngine)

// WithCooldownClock replaces time.Now as the engine's clock.
func WithCooldownClock(now func() time.Time) CooldownOption {
	return func(e *CooldownEngine) { e.now = now }
}

func WithCooldownObserver(o CooldownObserver) CooldownOption {
	return func(e *CooldownEngine) { e.observer = o }
}

func NewCooldownEngine(logger *zap.SugaredLogger, opts ...CooldownOption) *CooldownEngine {
	e := &CooldownEngine{
		types:  make(map[string]*cooldownType),
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Register adds a cooldown type. Duplicate ids, unknown strategies and
// out-of-range parameters are configuration faults.
func (e *CooldownEngine) Register(def domain.CooldownDefinition) error {
	if err := validation.ValidateCooldownID(def.TypeID); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeConfig, "register cooldown")
	}
	if def.Personal.Kind != domain.StrategySince {
		return apperrors.Wrap(domain.ErrInvalidStrategy, apperrors.ErrCodeConfig,
			fmt.Sprintf("cooldown %q: personal strategy must be %q, got %q", def.TypeID, domain.StrategySince, def.Personal.Kind))
	}

	now := e.now()
	personal, err := newThrottle(def.Personal, domain.ScopePersonal, now)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeConfig, fmt.Sprintf("cooldown %q", def.TypeID))
	}
	shared, err := newThrottle(def.Shared, domain.ScopeShared, now)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeConfig, fmt.Sprintf("cooldown %q", def.TypeID))
	}
	if def.DisplayName == "" {
		def.DisplayName = def.TypeID
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.types[def.TypeID]; exists {
		return apperrors.Wrap(domain.ErrDuplicateCooldown, apperrors.ErrCodeConfig, fmt.Sprintf("cooldown %q", def.TypeID))
	}
	e.types[def.TypeID] = &cooldownType{def: def, personal: personal, shared: shared}

	e.logger.Infow("Cooldown registered",
		"type", def.TypeID,
		"personal", def.Personal.Kind,
		"shared", def.Shared.Kind,
	)
	return nil
}

// Check runs the shared then the personal check and commits both only when
// both pass. A bypassed request is admitted without touching any state.
func (e *CooldownEngine) Check(req domain.CooldownRequest) (domain.Admission, error) {
	e.mu.RLock()
	ct, ok := e.types[req.Type]
	e.mu.RUnlock()
	if !ok {
		return domain.Admission{}, apperrors.Wrap(domain.ErrUnknownCooldown, apperrors.ErrCodeNotFound, req.Type)
	}
	if req.User == "" {
		return domain.Admission{}, apperrors.Wrap(domain.ErrMissingIdentity, apperrors.ErrCodeContract,
			fmt.Sprintf("cooldown %q", req.Type))
	}

	if req.ModBypass {
		adm := domain.Admission{Admitted: true, Bypassed: true}
		e.observe(req.Type, adm)
		return adm, nil
	}

	userKey := domain.UserKey(req.User)

	ct.mu.Lock()
	now := e.now()
	var adm domain.Admission
	if ok, wait := ct.shared.check(sharedKey, now); !ok {
		adm = domain.Admission{Scope: domain.ScopeShared, RetryAfter: wait}
	} else if ok, wait := ct.personal.check(userKey, now); !ok {
		adm = domain.Admission{Scope: domain.ScopePersonal, RetryAfter: wait}
	} else {
		ct.shared.commit(sharedKey, now)
		ct.personal.commit(userKey, now)
		adm = domain.Admission{Admitted: true}
	}
	ct.mu.Unlock()

	if !adm.Admitted {
		e.logger.Debugw("Cooldown throttled",
			"type", req.Type,
			"user", req.User,
			"scope", adm.Scope,
			"retry_after", adm.RetryAfter,
		)
	}
	e.observe(req.Type, adm)
	return adm, nil
}

func (e *CooldownEngine) observe(typeID string, adm domain.Admission) {
	if e.observer != nil {
		e.observer.ObserveCooldown(typeID, adm)
	}
}

// Definition returns one registered cooldown.
func (e *CooldownEngine) Definition(typeID string) (domain.CooldownDefinition, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ct, ok := e.types[typeID]
	if !ok {
		return domain.CooldownDefinition{}, false
	}
	return ct.def, true
}

// Definitions lists registered cooldowns sorted by type id.
func (e *CooldownEngine) Definitions() []domain.CooldownDefinition {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]domain.CooldownDefinition, 0, len(e.types))
	for _, ct := range e.types {
		out = append(out, ct.def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TypeID < out[j].TypeID })
	return out
}

// Prune drops personal and shared entries whose interval has fully elapsed.
// Check results are unchanged by pruning.
func (e *CooldownEngine) Prune() int {
	e.mu.RLock()
	types := make([]*cooldownType, 0, len(e.types))
	for _, ct := range e.types {
		types = append(types, ct)
	}
	e.mu.RUnlock()

	removed := 0
	for _, ct := range types {
		ct.mu.Lock()
		now := e.now()
		removed += ct.personal.prune(now) + ct.shared.prune(now)
		ct.mu.Unlock()
	}
	if removed > 0 {
		e.logger.Debugw("Pruned cooldown entries", "removed", removed)
	}
	return removed
}
