package repositories

import (
	"context"
	"time"

	"roombot/internal/core/domain"
	"roombot/internal/core/ports"
	"roombot/pkg/cache"
)

// CachedStore answers block lookups from memory. The dispatcher asks
// IsUserBlocked for every command and the queue plugin asks GetMediaFlags
// for every add, so both go through a short-lived cache. Writes made
// through this store invalidate the affected key.
type CachedStore struct {
	ports.Store
	blocked *cache.Cache[bool]
	flags   *cache.Cache[domain.MediaFlags]
}

var _ ports.Store = (*CachedStore)(nil)

func NewCachedStore(store ports.Store, ttl time.Duration) *CachedStore {
	return &CachedStore{
		Store:   store,
		blocked: cache.New[bool](ttl),
		flags:   cache.New[domain.MediaFlags](ttl),
	}
}

func (s *CachedStore) IsUserBlocked(ctx context.Context, name string) (bool, error) {
	return s.blocked.GetOrLoad(ctx, domain.UserKey(name), func(ctx context.Context) (bool, error) {
		return s.Store.IsUserBlocked(ctx, name)
	})
}

func (s *CachedStore) SetUserBlocked(ctx context.Context, name string, blocked bool) error {
	defer s.blocked.Delete(domain.UserKey(name))
	return s.Store.SetUserBlocked(ctx, name, blocked)
}

func (s *CachedStore) GetMediaFlags(ctx context.Context, media domain.MediaRef) (domain.MediaFlags, error) {
	return s.flags.GetOrLoad(ctx, media.String(), func(ctx context.Context) (domain.MediaFlags, error) {
		return s.Store.GetMediaFlags(ctx, media)
	})
}

func (s *CachedStore) SetMediaFlags(ctx context.Context, media domain.MediaRef, flags domain.MediaFlags) error {
	defer s.flags.Delete(media.String())
	return s.Store.SetMediaFlags(ctx, media, flags)
}

// Purge drops expired entries from both caches.
func (s *CachedStore) Purge() int {
	return s.blocked.Purge() + s.flags.Purge()
}
