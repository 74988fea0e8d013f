package memory

import (
	"context"
	"sync"
	"time"

	"roombot/internal/core/domain"
	"roombot/internal/core/ports"
)

// DefaultMaxStats bounds the media history kept in memory.
const DefaultMaxStats = 1000

type Store struct {
	mu       sync.RWMutex
	users    map[string]*domain.UserRecord
	flags    map[domain.MediaRef]domain.MediaFlags
	stats    []domain.MediaStat
	maxStats int
	now      func() time.Time
}

var _ ports.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		users:    make(map[string]*domain.UserRecord),
		flags:    make(map[domain.MediaRef]domain.MediaFlags),
		maxStats: DefaultMaxStats,
		now:      time.Now,
	}
}

func (s *Store) RecordUser(ctx context.Context, name string, rank domain.Rank) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	rec := s.userLocked(name, now)
	rec.Name = name
	rec.Rank = rank
	rec.LastSeen = now
	return nil
}

func (s *Store) userLocked(name string, now time.Time) *domain.UserRecord {
	key := domain.UserKey(name)
	rec, ok := s.users[key]
	if !ok {
		rec = &domain.UserRecord{Name: name, FirstSeen: now, LastSeen: now}
		s.users[key] = rec
	}
	return rec
}

func (s *Store) GetUser(ctx context.Context, name string) (*domain.UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.users[domain.UserKey(name)]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	c := *rec
	return &c, nil
}

func (s *Store) GetMediaFlags(ctx context.Context, media domain.MediaRef) (domain.MediaFlags, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.flags[media], nil
}

func (s *Store) SetMediaFlags(ctx context.Context, media domain.MediaRef, flags domain.MediaFlags) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if flags == 0 {
		delete(s.flags, media)
		return nil
	}
	s.flags[media] = flags
	return nil
}

func (s *Store) RecordMediaStat(ctx context.Context, stat domain.MediaStat) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats = append(s.stats, stat)
	if over := len(s.stats) - s.maxStats; over > 0 {
		s.stats = append(s.stats[:0:0], s.stats[over:]...)
	}
	return nil
}

func (s *Store) RecentMedia(ctx context.Context, limit int) ([]domain.MediaStat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > len(s.stats) {
		limit = len(s.stats)
	}
	out := make([]domain.MediaStat, 0, limit)
	for i := len(s.stats) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.stats[i])
	}
	return out, nil
}

func (s *Store) IsUserBlocked(ctx context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.users[domain.UserKey(name)]
	return ok && rec.Blocked, nil
}

func (s *Store) SetUserBlocked(ctx context.Context, name string, blocked bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.userLocked(name, s.now()).Blocked = blocked
	return nil
}

func (s *Store) HealthCheck(ctx context.Context) error {
	return nil
}

func (s *Store) Close() error {
	return nil
}
