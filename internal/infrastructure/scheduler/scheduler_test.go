package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"roombot/internal/core/domain"
	"roombot/internal/core/services"
	"roombot/internal/infrastructure/repositories/memory"
	"roombot/internal/testutil"
	"roombot/pkg/backup"
	"roombot/pkg/config"
)

// instantClock fires every wait at once and records the requested durations.
type instantClock struct {
	now time.Time

	mu    sync.Mutex
	waits []time.Duration
}

func (c *instantClock) Now() time.Time { return c.now }

func (c *instantClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.waits = append(c.waits, d)
	c.mu.Unlock()

	ch := make(chan time.Time, 1)
	ch <- c.now.Add(d)
	return ch
}

func (c *instantClock) Waits() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.waits...)
}

type runRecorder struct {
	mu   sync.Mutex
	runs map[string][]error
}

func (r *runRecorder) RecordScheduledRun(job string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.runs == nil {
		r.runs = make(map[string][]error)
	}
	r.runs[job] = append(r.runs[job], err)
}

func TestScheduler_Add(t *testing.T) {
	s := New(zaptest.NewLogger(t).Sugar())
	noop := func(context.Context) error { return nil }

	assert.NoError(t, s.Add(Job{Name: "ok", Cron: "*/5 * * * *", Run: noop}))
	assert.Error(t, s.Add(Job{Name: "bad", Cron: "every tuesday", Run: noop}))
	assert.Error(t, s.Add(Job{Cron: "* * * * *", Run: noop}))
	assert.Error(t, s.Add(Job{Name: "nil", Cron: "* * * * *"}))
	assert.Equal(t, 1, s.Len())
}

func TestScheduler_RunsOnCronTicks(t *testing.T) {
	clock := &instantClock{now: time.Date(2024, 5, 1, 12, 0, 30, 0, time.UTC)}
	rec := &runRecorder{}
	s := New(zaptest.NewLogger(t).Sugar(), WithClock(clock.Now, clock.After), WithRunObserver(rec))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var runs atomic.Int32
	boom := errors.New("boom")
	require.NoError(t, s.Add(Job{
		Name: "tick",
		Cron: "* * * * *",
		Run: func(context.Context) error {
			if runs.Add(1) >= 3 {
				cancel()
			}
			return boom
		},
	}))

	s.Start(ctx)
	s.Wait()

	assert.GreaterOrEqual(t, int(runs.Load()), 3)
	waits := clock.Waits()
	require.NotEmpty(t, waits)
	assert.Equal(t, 30*time.Second, waits[0], "next minute boundary")

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.GreaterOrEqual(t, len(rec.runs["tick"]), 3)
	assert.ErrorIs(t, rec.runs["tick"][0], boom)
}

func TestScheduler_StopsOnCancel(t *testing.T) {
	s := New(zaptest.NewLogger(t).Sugar())
	require.NoError(t, s.Add(Job{Name: "yearly", Cron: "@yearly", Run: func(context.Context) error {
		t.Error("yearly job must not run")
		return nil
	}}))

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		s.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func newEnv(t *testing.T) (*services.Env, *testutil.RecordingClient) {
	logger := zaptest.NewLogger(t).Sugar()
	room := services.NewRoomState("roombot", logger)
	client := &testutil.RecordingClient{}
	return &services.Env{Room: room, Client: client, Logger: logger}, client
}

func TestAnnouncement(t *testing.T) {
	env, client := newEnv(t)
	job := Announcement(config.Job{Name: "rules", Cron: "0 * * * *", Message: "Be nice."}, env)

	assert.Equal(t, "rules", job.Name)
	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, []string{"Be nice."}, client.ChatLog())

	env.Room.SetMuted(true)
	require.NoError(t, job.Run(context.Background()))
	assert.Len(t, client.ChatLog(), 1, "muted bot stays quiet")
}

type pruneCounter struct{ n int }

func (p *pruneCounter) RecordPruned(n int) { p.n += n }

type gauge struct{ users, playlist int }

func (g *gauge) SetRoomSize(users, playlist int) { g.users, g.playlist = users, playlist }

func TestCooldownPrune(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	engine := services.NewCooldownEngine(zaptest.NewLogger(t).Sugar(),
		services.WithCooldownClock(func() time.Time { return now }))
	require.NoError(t, engine.Register(domain.CooldownDefinition{
		TypeID:   "roll",
		Personal: domain.Since(time.Second),
		Shared:   domain.Since(time.Second),
	}))
	_, err := engine.Check(domain.CooldownRequest{Type: "roll", User: "alice"})
	require.NoError(t, err)

	rec := &pruneCounter{}
	job := CooldownPrune("@hourly", engine, rec)
	now = now.Add(time.Minute)

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 2, rec.n)
}

func TestRoomStats(t *testing.T) {
	env, _ := newEnv(t)
	env.Room.SetUserlist([]domain.User{{Name: "alice"}, {Name: "bob"}})
	require.NoError(t, env.Room.SetPlaylist([]domain.PlaylistItem{
		{UID: 1, Media: domain.Media{MediaRef: domain.MediaRef{Type: "yt", ID: "a"}}},
	}))

	g := &gauge{}
	require.NoError(t, RoomStats(env.Room, g).Run(context.Background()))
	assert.Equal(t, 2, g.users)
	assert.Equal(t, 1, g.playlist)
}

func TestBackup(t *testing.T) {
	env, _ := newEnv(t)
	store := memory.NewStore()
	env.Store = store
	env.Room.SetUserlist([]domain.User{{Name: "alice"}})
	require.NoError(t, store.RecordMediaStat(context.Background(), domain.MediaStat{
		Media: domain.MediaRef{Type: "yt", ID: "abc"},
	}))

	storage, err := backup.NewFileStorage(t.TempDir())
	require.NoError(t, err)
	svc := backup.NewService(storage, "test")
	job := Backup("@daily", svc, 1, env)

	require.NoError(t, job.Run(context.Background()))
	require.NoError(t, job.Run(context.Background()))

	names, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, names, 1)

	var got roomBackup
	_, err = svc.Load(context.Background(), names[0], &got)
	require.NoError(t, err)
	require.Len(t, got.RecentMedia, 1)
	assert.Equal(t, "abc", got.RecentMedia[0].Media.ID)
	require.Len(t, got.Room.Users, 1)
	assert.Equal(t, "alice", got.Room.Users[0].Name)
}

type purgeCounter struct{ calls int }

func (p *purgeCounter) Purge() int { p.calls++; return 0 }

func TestCachePurge(t *testing.T) {
	p := &purgeCounter{}
	job := CachePurge("@hourly", p)
	assert.Equal(t, "cache_purge", job.Name)
	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 1, p.calls)
}
