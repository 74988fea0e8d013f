package reliability

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"roombot/internal/core/domain"
	"roombot/internal/core/ports"
	"roombot/pkg/circuitbreaker"
	apperrors "roombot/pkg/errors"
	"roombot/pkg/retry"
	"roombot/pkg/tracing"
)

// StoreWrapper guards a ports.Store with retries and a circuit breaker.
// While the breaker is open every call fails fast with
// domain.ErrStoreUnavailable and the backend is not touched.
type StoreWrapper struct {
	store   ports.Store
	backend string
	logger  *zap.SugaredLogger

	retryConfig    retry.Config
	circuitBreaker *circuitbreaker.CircuitBreaker
}

var _ ports.Store = (*StoreWrapper)(nil)

func NewStoreWrapper(
	store ports.Store,
	backend string,
	retryConfig retry.Config,
	cbConfig circuitbreaker.Config,
	logger *zap.SugaredLogger,
	opts ...circuitbreaker.Option,
) *StoreWrapper {
	w := &StoreWrapper{
		store:          store,
		backend:        backend,
		logger:         logger,
		retryConfig:    retryConfig,
		circuitBreaker: circuitbreaker.New(cbConfig, opts...),
	}

	w.circuitBreaker.OnStateChange(func(from, to circuitbreaker.State) {
		logger.Infow("store circuit breaker state changed",
			"from", from.String(),
			"to", to.String(),
		)
	})
	return w
}

// BreakerState reports the current breaker state for health checks.
func (w *StoreWrapper) BreakerState() circuitbreaker.State {
	return w.circuitBreaker.GetState()
}

func guard[T any](ctx context.Context, w *StoreWrapper, op string, fn func() (T, error)) (T, error) {
	ctx, span := tracing.TraceStoreOperation(ctx, w.backend, op)
	defer span.End()

	result, err := retry.RetryWithResult(ctx, w.retryConfig, func() (T, error) {
		v, err := circuitbreaker.ExecuteWithResult(ctx, w.circuitBreaker, fn)
		if errors.Is(err, circuitbreaker.ErrOpen) {
			return v, retry.Permanent(err)
		}
		return v, err
	})
	if errors.Is(err, circuitbreaker.ErrOpen) {
		var zero T
		return zero, apperrors.Wrap(domain.ErrStoreUnavailable, apperrors.ErrCodeUnavailable, op+" refused, circuit breaker open")
	}
	if err != nil {
		tracing.RecordError(ctx, err)
		w.logger.Debugw("store call failed", "backend", w.backend, "op", op, "error", err)
	}
	return result, err
}

func guardErr(ctx context.Context, w *StoreWrapper, op string, fn func() error) error {
	_, err := guard(ctx, w, op, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

func (w *StoreWrapper) RecordUser(ctx context.Context, name string, rank domain.Rank) error {
	return guardErr(ctx, w, "record_user", func() error {
		return w.store.RecordUser(ctx, name, rank)
	})
}

// GetUser keeps not-found answers away from the breaker; they are healthy replies.
func (w *StoreWrapper) GetUser(ctx context.Context, name string) (*domain.UserRecord, error) {
	var notFound error
	rec, err := guard(ctx, w, "get_user", func() (*domain.UserRecord, error) {
		rec, err := w.store.GetUser(ctx, name)
		if errors.Is(err, domain.ErrUserNotFound) {
			notFound = err
			return nil, nil
		}
		return rec, err
	})
	if err != nil {
		return nil, err
	}
	if notFound != nil {
		return nil, notFound
	}
	return rec, nil
}

func (w *StoreWrapper) GetMediaFlags(ctx context.Context, media domain.MediaRef) (domain.MediaFlags, error) {
	return guard(ctx, w, "get_media_flags", func() (domain.MediaFlags, error) {
		return w.store.GetMediaFlags(ctx, media)
	})
}

func (w *StoreWrapper) SetMediaFlags(ctx context.Context, media domain.MediaRef, flags domain.MediaFlags) error {
	return guardErr(ctx, w, "set_media_flags", func() error {
		return w.store.SetMediaFlags(ctx, media, flags)
	})
}

func (w *StoreWrapper) RecordMediaStat(ctx context.Context, stat domain.MediaStat) error {
	return guardErr(ctx, w, "record_media_stat", func() error {
		return w.store.RecordMediaStat(ctx, stat)
	})
}

func (w *StoreWrapper) RecentMedia(ctx context.Context, limit int) ([]domain.MediaStat, error) {
	return guard(ctx, w, "recent_media", func() ([]domain.MediaStat, error) {
		return w.store.RecentMedia(ctx, limit)
	})
}

func (w *StoreWrapper) IsUserBlocked(ctx context.Context, name string) (bool, error) {
	return guard(ctx, w, "is_user_blocked", func() (bool, error) {
		return w.store.IsUserBlocked(ctx, name)
	})
}

func (w *StoreWrapper) SetUserBlocked(ctx context.Context, name string, blocked bool) error {
	return guardErr(ctx, w, "set_user_blocked", func() error {
		return w.store.SetUserBlocked(ctx, name, blocked)
	})
}

// HealthCheck bypasses the breaker so a recovered backend shows up at once.
func (w *StoreWrapper) HealthCheck(ctx context.Context) error {
	return w.store.HealthCheck(ctx)
}

func (w *StoreWrapper) Close() error {
	return w.store.Close()
}
