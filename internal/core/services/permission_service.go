package services

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"roombot/internal/core/domain"
	apperrors "roombot/pkg/errors"
)

// RankSource is the part of the room mirror the resolver reads.
type RankSource interface {
	Rank(name string) domain.Rank
	Permission(name string) (domain.Rank, bool)
}

// PermissionService resolves rank and hybrid capability checks.
type PermissionService struct {
	room   RankSource
	logger *zap.SugaredLogger

	mu     sync.RWMutex
	hybrid map[string]map[string]struct{}
}

// NewPermissionService seeds hybrid grants from config (user -> capabilities).
func NewPermissionService(room RankSource, hybrid map[string][]string, logger *zap.SugaredLogger) *PermissionService {
	p := &PermissionService{
		room:   room,
		logger: logger,
		hybrid: make(map[string]map[string]struct{}),
	}
	for user, caps := range hybrid {
		p.Grant(user, caps...)
	}
	return p
}

// CheckPermission succeeds when the user's rank reaches required, or when
// any of the requested hybrid capabilities was granted to the user. An
// empty user is a caller bug and panics.
func (p *PermissionService) CheckPermission(user string, required domain.Rank, hybrid ...string) (domain.PermissionOutcome, error) {
	if strings.TrimSpace(user) == "" {
		panic(apperrors.Wrap(domain.ErrMissingIdentity, apperrors.ErrCodeContract,
			fmt.Sprintf("permission check for rank %s", required)))
	}

	rank := p.room.Rank(user)
	if rank >= required {
		return domain.PermissionOutcome{Kind: domain.OutcomeRanked, Rank: rank}, nil
	}

	if len(hybrid) > 0 {
		p.mu.RLock()
		granted := p.hybrid[domain.UserKey(user)]
		matched := make(map[string]bool, len(hybrid))
		hit := false
		for _, capName := range hybrid {
			_, ok := granted[capName]
			matched[capName] = ok
			hit = hit || ok
		}
		p.mu.RUnlock()

		if hit {
			p.logger.Debugw("Permission granted by hybrid capability",
				"user", user,
				"required", required.String(),
				"matched", matched,
			)
			return domain.PermissionOutcome{Kind: domain.OutcomeHybrid, Rank: rank, Matched: matched}, nil
		}
	}

	p.logger.Debugw("Permission denied",
		"user", user,
		"rank", rank.String(),
		"required", required.String(),
	)
	return domain.PermissionOutcome{}, apperrors.Wrap(domain.ErrInsufficientRank, apperrors.ErrCodePermissionDenied,
		fmt.Sprintf("%s needs rank %s", user, required))
}

// RequiredRank resolves a named channel permission to the rank it demands.
// An unknown name means a plugin asked for a permission the room does not
// define, which is a configuration fault.
func (p *PermissionService) RequiredRank(permName string) (domain.Rank, error) {
	r, ok := p.room.Permission(permName)
	if !ok {
		return 0, apperrors.Wrap(domain.ErrUnknownPermission, apperrors.ErrCodeConfig, permName)
	}
	return r, nil
}

// Grant adds hybrid capabilities to a user.
func (p *PermissionService) Grant(user string, caps ...string) {
	key := domain.UserKey(user)
	p.mu.Lock()
	defer p.mu.Unlock()

	set, ok := p.hybrid[key]
	if !ok {
		set = make(map[string]struct{}, len(caps))
		p.hybrid[key] = set
	}
	for _, c := range caps {
		set[c] = struct{}{}
	}
}

// Revoke removes hybrid capabilities; with no caps it removes the user's entry.
func (p *PermissionService) Revoke(user string, caps ...string) {
	key := domain.UserKey(user)
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(caps) == 0 {
		delete(p.hybrid, key)
		return
	}
	set := p.hybrid[key]
	for _, c := range caps {
		delete(set, c)
	}
	if len(set) == 0 {
		delete(p.hybrid, key)
	}
}

// Capabilities lists a user's hybrid capabilities in sorted order.
func (p *PermissionService) Capabilities(user string) []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	set := p.hybrid[domain.UserKey(user)]
	out := make([]string, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
