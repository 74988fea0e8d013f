// Package storetest is the behaviour suite every ports.Store backend runs.
package storetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roombot/internal/core/domain"
	"roombot/internal/core/ports"
)

// Run exercises a backend. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) ports.Store) {
	t.Run("users", func(t *testing.T) { testUsers(t, newStore(t)) })
	t.Run("blocking", func(t *testing.T) { testBlocking(t, newStore(t)) })
	t.Run("media flags", func(t *testing.T) { testMediaFlags(t, newStore(t)) })
	t.Run("media stats", func(t *testing.T) { testMediaStats(t, newStore(t)) })
	t.Run("health", func(t *testing.T) {
		assert.NoError(t, newStore(t).HealthCheck(context.Background()))
	})
}

func testUsers(t *testing.T, s ports.Store) {
	ctx := context.Background()

	_, err := s.GetUser(ctx, "alice")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)

	require.NoError(t, s.RecordUser(ctx, "Alice", domain.RankUser))
	first, err := s.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice", first.Name)
	assert.Equal(t, domain.RankUser, first.Rank)
	assert.False(t, first.FirstSeen.IsZero())

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, s.RecordUser(ctx, "alice", domain.RankModerator))
	second, err := s.GetUser(ctx, "ALICE")
	require.NoError(t, err)
	assert.Equal(t, domain.RankModerator, second.Rank)
	assert.True(t, second.FirstSeen.Equal(first.FirstSeen), "first seen must not move")
	assert.True(t, second.LastSeen.After(first.LastSeen))
}

func testBlocking(t *testing.T, s ports.Store) {
	ctx := context.Background()

	blocked, err := s.IsUserBlocked(ctx, "troll")
	require.NoError(t, err)
	assert.False(t, blocked)

	require.NoError(t, s.SetUserBlocked(ctx, "Troll", true))
	blocked, err = s.IsUserBlocked(ctx, "troll")
	require.NoError(t, err)
	assert.True(t, blocked)

	require.NoError(t, s.RecordUser(ctx, "troll", domain.RankGuest))
	blocked, err = s.IsUserBlocked(ctx, "troll")
	require.NoError(t, err)
	assert.True(t, blocked, "recording a user keeps the block")

	require.NoError(t, s.SetUserBlocked(ctx, "troll", false))
	blocked, err = s.IsUserBlocked(ctx, "troll")
	require.NoError(t, err)
	assert.False(t, blocked)
}

func testMediaFlags(t *testing.T, s ports.Store) {
	ctx := context.Background()
	ref := domain.MediaRef{Type: "yt", ID: "abc"}

	flags, err := s.GetMediaFlags(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, domain.MediaFlags(0), flags)

	require.NoError(t, s.SetMediaFlags(ctx, ref, domain.FlagBlocked|domain.FlagNoRepeat))
	flags, err = s.GetMediaFlags(ctx, ref)
	require.NoError(t, err)
	assert.True(t, flags.Has(domain.FlagBlocked))
	assert.True(t, flags.Has(domain.FlagNoRepeat))

	other, err := s.GetMediaFlags(ctx, domain.MediaRef{Type: "vm", ID: "abc"})
	require.NoError(t, err)
	assert.Equal(t, domain.MediaFlags(0), other)

	require.NoError(t, s.SetMediaFlags(ctx, ref, 0))
	flags, err = s.GetMediaFlags(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, domain.MediaFlags(0), flags)
}

func testMediaStats(t *testing.T, s ports.Store) {
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.RecordMediaStat(ctx, domain.MediaStat{
			Media:    domain.MediaRef{Type: "yt", ID: fmt.Sprintf("v%d", i)},
			QueuedBy: "alice",
			At:       base.Add(time.Duration(i) * time.Minute),
		}))
	}

	recent, err := s.RecentMedia(ctx, 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, "v4", recent[0].Media.ID)
	assert.Equal(t, "v2", recent[2].Media.ID)
	assert.True(t, recent[0].At.Equal(base.Add(4*time.Minute)))

	all, err := s.RecentMedia(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}
