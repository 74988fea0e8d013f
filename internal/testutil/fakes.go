// Package testutil holds fakes of the core's collaborator ports.
package testutil

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"roombot/internal/core/domain"
	"roombot/internal/core/ports"
)

type PrivateMessage struct {
	To   string
	Text string
}

type QueuedMedia struct {
	Media domain.MediaRef
	Next  bool
	Temp  bool
}

// RecordingClient is a ports.RoomClient that records every outbound call.
type RecordingClient struct {
	mu sync.Mutex

	Chats   []string
	PMs     []PrivateMessage
	Queued  []QueuedMedia
	Deleted []int
	Moved   [][2]int
	Kicked  []string
	Polls   []ports.Poll
	Closed  int

	// QueueErrs are returned by successive QueueMedia calls, then nil.
	QueueErrs []error
	// Err is returned by every other call when set.
	Err error
}

var _ ports.RoomClient = (*RecordingClient)(nil)

func (c *RecordingClient) SendChat(_ context.Context, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	c.Chats = append(c.Chats, text)
	return nil
}

func (c *RecordingClient) SendPrivate(_ context.Context, to, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	c.PMs = append(c.PMs, PrivateMessage{To: to, Text: text})
	return nil
}

func (c *RecordingClient) QueueMedia(_ context.Context, media domain.MediaRef, next, temp bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.QueueErrs) > 0 {
		err := c.QueueErrs[0]
		c.QueueErrs = c.QueueErrs[1:]
		if err != nil {
			return err
		}
	}
	c.Queued = append(c.Queued, QueuedMedia{Media: media, Next: next, Temp: temp})
	return nil
}

func (c *RecordingClient) DeleteMedia(_ context.Context, uid int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	c.Deleted = append(c.Deleted, uid)
	return nil
}

func (c *RecordingClient) MoveMedia(_ context.Context, from, after int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	c.Moved = append(c.Moved, [2]int{from, after})
	return nil
}

func (c *RecordingClient) Kick(_ context.Context, name, _ string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	c.Kicked = append(c.Kicked, name)
	return nil
}

func (c *RecordingClient) OpenPoll(_ context.Context, poll ports.Poll) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	c.Polls = append(c.Polls, poll)
	return nil
}

func (c *RecordingClient) ClosePoll(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	c.Closed++
	return nil
}

// ChatLog returns a copy of the public messages sent so far.
func (c *RecordingClient) ChatLog() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.Chats...)
}

// PMLog returns a copy of the private messages sent so far.
func (c *RecordingClient) PMLog() []PrivateMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]PrivateMessage(nil), c.PMs...)
}

// MockStore is a testify mock of ports.Store.
type MockStore struct {
	mock.Mock
}

var _ ports.Store = (*MockStore)(nil)

func (m *MockStore) RecordUser(ctx context.Context, name string, rank domain.Rank) error {
	args := m.Called(ctx, name, rank)
	return args.Error(0)
}

func (m *MockStore) GetUser(ctx context.Context, name string) (*domain.UserRecord, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.UserRecord), args.Error(1)
}

func (m *MockStore) GetMediaFlags(ctx context.Context, media domain.MediaRef) (domain.MediaFlags, error) {
	args := m.Called(ctx, media)
	return args.Get(0).(domain.MediaFlags), args.Error(1)
}

func (m *MockStore) SetMediaFlags(ctx context.Context, media domain.MediaRef, flags domain.MediaFlags) error {
	args := m.Called(ctx, media, flags)
	return args.Error(0)
}

func (m *MockStore) RecordMediaStat(ctx context.Context, stat domain.MediaStat) error {
	args := m.Called(ctx, stat)
	return args.Error(0)
}

func (m *MockStore) RecentMedia(ctx context.Context, limit int) ([]domain.MediaStat, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.MediaStat), args.Error(1)
}

func (m *MockStore) IsUserBlocked(ctx context.Context, name string) (bool, error) {
	args := m.Called(ctx, name)
	return args.Bool(0), args.Error(1)
}

func (m *MockStore) SetUserBlocked(ctx context.Context, name string, blocked bool) error {
	args := m.Called(ctx, name, blocked)
	return args.Error(0)
}

func (m *MockStore) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockStore) Close() error {
	args := m.Called()
	return args.Error(0)
}
