// Package pebble is an embedded on-disk store for single-instance
// deployments that want persistence without running Redis.
package pebble

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"

	"roombot/internal/core/domain"
	"roombot/internal/core/ports"
)

// DefaultMaxStats bounds the media history kept on disk.
const DefaultMaxStats = 1000

var (
	userPrefix  = []byte("u/")
	flagPrefix  = []byte("f/")
	statPrefix  = []byte("s/")
	statsUpper  = []byte("s0")
	healthProbe = []byte("meta:health")
)

// Store lays keys out as u/<user>, f/<type:id> and s/<seq>. Stats use a
// big-endian sequence so iteration order is insertion order.
type Store struct {
	db       *pebble.DB
	mu       sync.Mutex
	nextSeq  uint64
	maxStats uint64
	now      func() time.Time
}

var _ ports.Store = (*Store)(nil)

func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, err
	}
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble store: %w", err)
	}

	s := &Store{db: db, maxStats: DefaultMaxStats, now: time.Now}
	if err := s.loadSeq(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) loadSeq() error {
	it, err := s.db.NewIter(&pebble.IterOptions{LowerBound: statPrefix, UpperBound: statsUpper})
	if err != nil {
		return err
	}
	defer it.Close()

	if it.Last() {
		s.nextSeq = binary.BigEndian.Uint64(it.Key()[len(statPrefix):]) + 1
	}
	return nil
}

func statKey(seq uint64) []byte {
	k := make([]byte, len(statPrefix)+8)
	copy(k, statPrefix)
	binary.BigEndian.PutUint64(k[len(statPrefix):], seq)
	return k
}

func userKey(name string) []byte {
	return append(append([]byte{}, userPrefix...), domain.UserKey(name)...)
}

func flagKey(media domain.MediaRef) []byte {
	return append(append([]byte{}, flagPrefix...), media.String()...)
}

func (s *Store) get(key []byte) ([]byte, error) {
	v, closer, err := s.db.Get(key)
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (s *Store) loadUser(name string) (*domain.UserRecord, error) {
	raw, err := s.get(userKey(name))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read user: %w", err)
	}

	var rec domain.UserRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user: %w", err)
	}
	return &rec, nil
}

func (s *Store) saveUser(rec *domain.UserRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal user: %w", err)
	}
	return s.db.Set(userKey(rec.Name), data, pebble.Sync)
}

// updateUser applies fn to the stored record, creating it first if needed.
func (s *Store) updateUser(name string, fn func(rec *domain.UserRecord)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	rec, err := s.loadUser(name)
	if errors.Is(err, domain.ErrUserNotFound) {
		rec = &domain.UserRecord{Name: name, FirstSeen: now, LastSeen: now}
	} else if err != nil {
		return err
	}
	fn(rec)
	return s.saveUser(rec)
}

func (s *Store) RecordUser(ctx context.Context, name string, rank domain.Rank) error {
	now := s.now()
	return s.updateUser(name, func(rec *domain.UserRecord) {
		rec.Name = name
		rec.Rank = rank
		rec.LastSeen = now
	})
}

func (s *Store) GetUser(ctx context.Context, name string) (*domain.UserRecord, error) {
	return s.loadUser(name)
}

func (s *Store) GetMediaFlags(ctx context.Context, media domain.MediaRef) (domain.MediaFlags, error) {
	raw, err := s.get(flagKey(media))
	if errors.Is(err, pebble.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read media flags: %w", err)
	}
	if len(raw) != 4 {
		return 0, fmt.Errorf("corrupt media flags for %s", media)
	}
	return domain.MediaFlags(binary.BigEndian.Uint32(raw)), nil
}

func (s *Store) SetMediaFlags(ctx context.Context, media domain.MediaRef, flags domain.MediaFlags) error {
	if flags == 0 {
		return s.db.Delete(flagKey(media), pebble.Sync)
	}
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(flags))
	return s.db.Set(flagKey(media), buf[:], pebble.Sync)
}

func (s *Store) RecordMediaStat(ctx context.Context, stat domain.MediaStat) error {
	data, err := json.Marshal(stat)
	if err != nil {
		return fmt.Errorf("failed to marshal media stat: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.db.NewBatch()
	defer b.Close()

	seq := s.nextSeq
	if err := b.Set(statKey(seq), data, nil); err != nil {
		return err
	}
	if seq >= s.maxStats {
		if err := b.DeleteRange(statPrefix, statKey(seq-s.maxStats+1), nil); err != nil {
			return err
		}
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to record media stat: %w", err)
	}
	s.nextSeq++
	return nil
}

func (s *Store) RecentMedia(ctx context.Context, limit int) ([]domain.MediaStat, error) {
	it, err := s.db.NewIter(&pebble.IterOptions{LowerBound: statPrefix, UpperBound: statsUpper})
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var out []domain.MediaStat
	for ok := it.Last(); ok; ok = it.Prev() {
		if limit > 0 && len(out) >= limit {
			break
		}
		var stat domain.MediaStat
		if err := json.Unmarshal(it.Value(), &stat); err != nil {
			return nil, fmt.Errorf("failed to unmarshal media stat: %w", err)
		}
		out = append(out, stat)
	}
	return out, it.Error()
}

func (s *Store) IsUserBlocked(ctx context.Context, name string) (bool, error) {
	rec, err := s.loadUser(name)
	if errors.Is(err, domain.ErrUserNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return rec.Blocked, nil
}

func (s *Store) SetUserBlocked(ctx context.Context, name string, blocked bool) error {
	return s.updateUser(name, func(rec *domain.UserRecord) {
		rec.Blocked = blocked
	})
}

func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.db.Set(healthProbe, []byte("ok"), pebble.NoSync); err != nil {
		return fmt.Errorf("pebble store not writable: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
