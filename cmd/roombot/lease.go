package main

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"roombot/pkg/config"
	"roombot/pkg/distributed"
	apperrors "roombot/pkg/errors"
)

var errLeaseLost = errors.New("channel lease lost")

// acquireLease claims the channel for this process when the Redis backend
// is configured. It returns a nil lease when no lease applies, including
// when Redis cannot be reached and the store has fallen back to memory.
func acquireLease(ctx context.Context, cfg *config.Config, log *zap.SugaredLogger) (*distributed.Lease, func(), error) {
	r := cfg.Store.Redis
	if cfg.Store.Backend != config.StoreRedis || r.LeaseTTL == 0 {
		return nil, func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     r.Address,
		Password: r.Password,
		DB:       r.DB,
		PoolSize: 2,
	})
	key := r.Prefix + "lease:" + cfg.Room.Channel
	lease := distributed.NewLease(client, key, r.LeaseTTL)

	err := lease.Acquire(ctx)
	switch {
	case errors.Is(err, distributed.ErrHeld):
		client.Close()
		return nil, nil, apperrors.Wrap(err, apperrors.ErrCodeConfig, "channel "+cfg.Room.Channel+" is already served")
	case err != nil:
		client.Close()
		log.Warnw("Running without channel lease", "error", err)
		return nil, func() {}, nil
	}

	log.Infow("Channel lease acquired", "key", key, "holder", lease.Holder())
	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := lease.Release(ctx); err != nil {
			log.Warnw("Failed to release channel lease", "error", err)
		}
		client.Close()
	}
	return lease, release, nil
}
