package reliability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"roombot/internal/core/domain"
	"roombot/internal/testutil"
	"roombot/pkg/circuitbreaker"
	"roombot/pkg/retry"
)

var errBackend = errors.New("connection refused")

type clock struct{ t time.Time }

func (c *clock) Now() time.Time { return c.t }

func newTestWrapper(t *testing.T, store *testutil.MockStore, threshold int) (*StoreWrapper, *clock) {
	clk := &clock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	w := NewStoreWrapper(store, "mock",
		retry.Fixed(2, time.Millisecond),
		circuitbreaker.Config{FailureThreshold: threshold, SuccessThreshold: 1, Timeout: time.Minute},
		zaptest.NewLogger(t).Sugar(),
		circuitbreaker.WithClock(clk.Now),
	)
	return w, clk
}

func TestStoreWrapper_RetriesTransientFailure(t *testing.T) {
	store := &testutil.MockStore{}
	store.On("IsUserBlocked", mock.Anything, "troll").Return(false, errBackend).Once()
	store.On("IsUserBlocked", mock.Anything, "troll").Return(true, nil).Once()

	w, _ := newTestWrapper(t, store, 5)

	blocked, err := w.IsUserBlocked(context.Background(), "troll")
	require.NoError(t, err)
	assert.True(t, blocked)
	store.AssertNumberOfCalls(t, "IsUserBlocked", 2)
}

func TestStoreWrapper_OpensAndFailsFast(t *testing.T) {
	store := &testutil.MockStore{}
	store.On("IsUserBlocked", mock.Anything, "troll").Return(false, errBackend).Times(3)
	store.On("IsUserBlocked", mock.Anything, "troll").Return(true, nil)

	w, clk := newTestWrapper(t, store, 3)
	ctx := context.Background()

	_, err := w.IsUserBlocked(ctx, "troll")
	assert.ErrorIs(t, err, errBackend)
	assert.Equal(t, circuitbreaker.StateOpen, w.BreakerState())

	_, err = w.IsUserBlocked(ctx, "troll")
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	store.AssertNumberOfCalls(t, "IsUserBlocked", 3)

	clk.t = clk.t.Add(2 * time.Minute)
	blocked, err := w.IsUserBlocked(ctx, "troll")
	require.NoError(t, err)
	assert.True(t, blocked)
	assert.Equal(t, circuitbreaker.StateClosed, w.BreakerState())
}

func TestStoreWrapper_NotFoundIsHealthy(t *testing.T) {
	store := &testutil.MockStore{}
	store.On("GetUser", mock.Anything, "ghost").Return(nil, domain.ErrUserNotFound)

	w, _ := newTestWrapper(t, store, 1)

	for i := 0; i < 3; i++ {
		_, err := w.GetUser(context.Background(), "ghost")
		assert.ErrorIs(t, err, domain.ErrUserNotFound)
	}
	assert.Equal(t, circuitbreaker.StateClosed, w.BreakerState())
	store.AssertNumberOfCalls(t, "GetUser", 3)
}

func TestStoreWrapper_HealthCheckBypassesBreaker(t *testing.T) {
	store := &testutil.MockStore{}
	store.On("SetUserBlocked", mock.Anything, "x", true).Return(errBackend)
	store.On("HealthCheck", mock.Anything).Return(nil)

	w, _ := newTestWrapper(t, store, 1)

	err := w.SetUserBlocked(context.Background(), "x", true)
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable, "breaker opened mid-retry")
	store.AssertNumberOfCalls(t, "SetUserBlocked", 1)
	assert.Equal(t, circuitbreaker.StateOpen, w.BreakerState())

	assert.NoError(t, w.HealthCheck(context.Background()))
}
