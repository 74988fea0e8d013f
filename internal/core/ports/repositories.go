package ports

import (
	"context"

	"roombot/internal/core/domain"
)

// Store is the persistent store collaborator. Every call may block on I/O
// and is made from handler goroutines, never from the room read loop.
// GetUser returns domain.ErrUserNotFound for names never recorded.
type Store interface {
	RecordUser(ctx context.Context, name string, rank domain.Rank) error
	GetUser(ctx context.Context, name string) (*domain.UserRecord, error)
	GetMediaFlags(ctx context.Context, media domain.MediaRef) (domain.MediaFlags, error)
	SetMediaFlags(ctx context.Context, media domain.MediaRef, flags domain.MediaFlags) error
	RecordMediaStat(ctx context.Context, stat domain.MediaStat) error
	// RecentMedia returns up to limit stats, newest first.
	RecentMedia(ctx context.Context, limit int) ([]domain.MediaStat, error)
	IsUserBlocked(ctx context.Context, name string) (bool, error)
	SetUserBlocked(ctx context.Context, name string, blocked bool) error
	HealthCheck(ctx context.Context) error
	Close() error
}
