package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const currentSchemaVersion = 2

// Migration is one step of the key layout under a prefix.
type Migration struct {
	Version int
	Up      func(ctx context.Context, client *redis.Client, prefix string) error
}

// Migrate runs every migration newer than the stored schema version.
func Migrate(ctx context.Context, client *redis.Client, prefix string, logger *zap.SugaredLogger) error {
	versionKey := prefix + "schema:version"

	current, err := client.Get(ctx, versionKey).Int()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	if current >= currentSchemaVersion {
		logger.Debugw("Redis schema is up to date", "version", current)
		return nil
	}

	for _, m := range migrations() {
		if m.Version <= current {
			continue
		}
		logger.Infow("Running Redis migration", "version", m.Version)
		if err := m.Up(ctx, client, prefix); err != nil {
			return fmt.Errorf("migration %d failed: %w", m.Version, err)
		}
		if err := client.Set(ctx, versionKey, m.Version, 0).Err(); err != nil {
			return fmt.Errorf("failed to update schema version: %w", err)
		}
	}

	logger.Infow("Redis migrations completed", "version", currentSchemaVersion)
	return nil
}

func migrations() []Migration {
	return []Migration{
		{
			// Version 1 kept blocked users in a set; they now live on the user hash.
			Version: 1,
			Up: func(ctx context.Context, client *redis.Client, prefix string) error {
				return nil
			},
		},
		{
			Version: 2,
			Up: func(ctx context.Context, client *redis.Client, prefix string) error {
				legacy := prefix + "blocked"
				names, err := client.SMembers(ctx, legacy).Result()
				if err != nil {
					return err
				}
				for _, name := range names {
					if err := client.HSet(ctx, userKey(prefix, name), fieldName, name, fieldBlocked, 1).Err(); err != nil {
						return err
					}
				}
				return client.Del(ctx, legacy).Err()
			},
		},
	}
}
