package repositories

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"roombot/internal/core/ports"
	"roombot/internal/infrastructure/reliability"
	"roombot/internal/infrastructure/repositories/memory"
	pebblerepo "roombot/internal/infrastructure/repositories/pebble"
	redisrepo "roombot/internal/infrastructure/repositories/redis"
	"roombot/pkg/circuitbreaker"
	"roombot/pkg/config"
	"roombot/pkg/retry"
)

// NewStore opens the configured backend. A Redis backend that cannot be
// reached falls back to memory so the bot still joins the room; a Pebble
// path that cannot be opened is a config fault.
func NewStore(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger) (ports.Store, error) {
	var store ports.Store
	backend := cfg.Store.Backend

	switch backend {
	case config.StoreRedis:
		r := cfg.Store.Redis
		client, err := redisrepo.NewRedisClient(ctx, r.Address, r.Password, r.DB, r.PoolSize, r.Prefix, logger)
		if err != nil {
			logger.Warnw("failed to connect to Redis, falling back to memory store",
				"error", err,
			)
			store = memory.NewStore()
			backend = config.StoreMemory
			break
		}
		logger.Info("using Redis store")
		store = redisrepo.NewStore(client, r.Prefix)
	case config.StorePebble:
		s, err := pebblerepo.Open(cfg.Store.Pebble.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open pebble store at %s: %w", cfg.Store.Pebble.Path, err)
		}
		logger.Infow("using Pebble store", "path", cfg.Store.Pebble.Path)
		store = s
	default:
		logger.Info("using memory store")
		store = memory.NewStore()
		backend = config.StoreMemory
	}

	rc := retry.DefaultConfig()
	rc.Enabled = cfg.Store.Retry.Enabled
	rc.MaxAttempts = cfg.Store.Retry.MaxAttempts
	rc.InitialDelay = cfg.Store.Retry.InitialDelay
	rc.MaxDelay = cfg.Store.Retry.MaxDelay

	cb := circuitbreaker.DefaultConfig()
	cb.FailureThreshold = cfg.Store.CircuitBreaker.FailureThreshold
	cb.Timeout = cfg.Store.CircuitBreaker.Timeout

	store = reliability.NewStoreWrapper(store, backend, rc, cb, logger)
	if cfg.Store.CacheTTL > 0 {
		store = NewCachedStore(store, cfg.Store.CacheTTL)
	}
	return store, nil
}
