package ports

import (
	"context"

	"roombot/internal/core/domain"
)

// Poll is an outbound poll definition.
type Poll struct {
	Title   string   `json:"title"`
	Options []string `json:"opts"`
	Obscure bool     `json:"obscured"`
}

// RoomClient is the outbound half of the room transport. Handlers only ever
// talk to the room through it.
type RoomClient interface {
	SendChat(ctx context.Context, text string) error
	SendPrivate(ctx context.Context, to, text string) error
	QueueMedia(ctx context.Context, media domain.MediaRef, next, temp bool) error
	DeleteMedia(ctx context.Context, uid int) error
	MoveMedia(ctx context.Context, from, after int) error
	Kick(ctx context.Context, name, reason string) error
	OpenPoll(ctx context.Context, poll Poll) error
	ClosePoll(ctx context.Context) error
}
