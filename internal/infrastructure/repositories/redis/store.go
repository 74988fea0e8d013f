package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"roombot/internal/core/domain"
	"roombot/internal/core/ports"
)

const (
	fieldName      = "name"
	fieldRank      = "rank"
	fieldFirstSeen = "first_seen"
	fieldLastSeen  = "last_seen"
	fieldBlocked   = "blocked"

	// DefaultMaxStats bounds the recent media list.
	DefaultMaxStats = 1000
)

func userKey(prefix, name string) string {
	return prefix + "user:" + domain.UserKey(name)
}

// Store keeps users as hashes, media flags in one hash and the recent
// media history in a capped list, all under a common key prefix.
type Store struct {
	client   *redis.Client
	prefix   string
	maxStats int64
	now      func() time.Time
}

var _ ports.Store = (*Store)(nil)

func NewStore(client *redis.Client, prefix string) *Store {
	return &Store{
		client:   client,
		prefix:   prefix,
		maxStats: DefaultMaxStats,
		now:      time.Now,
	}
}

func (s *Store) flagsKey() string { return s.prefix + "media:flags" }
func (s *Store) statsKey() string { return s.prefix + "media:recent" }

func (s *Store) RecordUser(ctx context.Context, name string, rank domain.Rank) error {
	now := s.now().UnixNano()
	key := userKey(s.prefix, name)

	pipe := s.client.TxPipeline()
	pipe.HSetNX(ctx, key, fieldFirstSeen, now)
	pipe.HSet(ctx, key, fieldName, name, fieldRank, int(rank), fieldLastSeen, now)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record user in Redis: %w", err)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, name string) (*domain.UserRecord, error) {
	fields, err := s.client.HGetAll(ctx, userKey(s.prefix, name)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get user from Redis: %w", err)
	}
	if len(fields) == 0 {
		return nil, domain.ErrUserNotFound
	}

	rank, _ := strconv.Atoi(fields[fieldRank])
	return &domain.UserRecord{
		Name:      fields[fieldName],
		Rank:      domain.Rank(rank),
		FirstSeen: parseNanos(fields[fieldFirstSeen]),
		LastSeen:  parseNanos(fields[fieldLastSeen]),
		Blocked:   fields[fieldBlocked] == "1",
	}, nil
}

func parseNanos(v string) time.Time {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(0, n)
}

func (s *Store) GetMediaFlags(ctx context.Context, media domain.MediaRef) (domain.MediaFlags, error) {
	v, err := s.client.HGet(ctx, s.flagsKey(), media.String()).Uint64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get media flags from Redis: %w", err)
	}
	return domain.MediaFlags(v), nil
}

func (s *Store) SetMediaFlags(ctx context.Context, media domain.MediaRef, flags domain.MediaFlags) error {
	var err error
	if flags == 0 {
		err = s.client.HDel(ctx, s.flagsKey(), media.String()).Err()
	} else {
		err = s.client.HSet(ctx, s.flagsKey(), media.String(), uint64(flags)).Err()
	}
	if err != nil {
		return fmt.Errorf("failed to set media flags in Redis: %w", err)
	}
	return nil
}

func (s *Store) RecordMediaStat(ctx context.Context, stat domain.MediaStat) error {
	data, err := json.Marshal(stat)
	if err != nil {
		return fmt.Errorf("failed to marshal media stat: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, s.statsKey(), data)
	pipe.LTrim(ctx, s.statsKey(), 0, s.maxStats-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record media stat in Redis: %w", err)
	}
	return nil
}

func (s *Store) RecentMedia(ctx context.Context, limit int) ([]domain.MediaStat, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}

	items, err := s.client.LRange(ctx, s.statsKey(), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read media stats from Redis: %w", err)
	}

	out := make([]domain.MediaStat, 0, len(items))
	for _, item := range items {
		var stat domain.MediaStat
		if err := json.Unmarshal([]byte(item), &stat); err != nil {
			return nil, fmt.Errorf("failed to unmarshal media stat: %w", err)
		}
		out = append(out, stat)
	}
	return out, nil
}

func (s *Store) IsUserBlocked(ctx context.Context, name string) (bool, error) {
	v, err := s.client.HGet(ctx, userKey(s.prefix, name), fieldBlocked).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check user block in Redis: %w", err)
	}
	return v == "1", nil
}

func (s *Store) SetUserBlocked(ctx context.Context, name string, blocked bool) error {
	now := s.now().UnixNano()
	key := userKey(s.prefix, name)

	flag := 0
	if blocked {
		flag = 1
	}

	pipe := s.client.TxPipeline()
	pipe.HSetNX(ctx, key, fieldName, name)
	pipe.HSetNX(ctx, key, fieldFirstSeen, now)
	pipe.HSetNX(ctx, key, fieldLastSeen, now)
	pipe.HSet(ctx, key, fieldBlocked, flag)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to set user block in Redis: %w", err)
	}
	return nil
}

func (s *Store) HealthCheck(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.client.Close()
}
