package plugins

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"roombot/internal/core/domain"
	"roombot/internal/core/services"
	apperrors "roombot/pkg/errors"
	"roombot/pkg/retry"
	"roombot/pkg/validation"
)

// noRepeatWindow is how many recent queue entries a no-repeat video must
// be absent from.
const noRepeatWindow = 50

// Queue adds media to the room playlist and lets moderators block media.
type Queue struct {
	retry retry.Config
}

// NewQueue builds the plugin; failed submissions are retried attempts
// times, delay apart.
func NewQueue(attempts int, delay time.Duration) *Queue {
	cfg := retry.Fixed(attempts, delay)
	cfg.Retryable = func(err error) bool {
		return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	}
	return &Queue{retry: cfg}
}

func (q *Queue) Name() string { return "queue" }

func (q *Queue) Cooldowns() []domain.CooldownDefinition {
	return []domain.CooldownDefinition{{
		TypeID:      "add",
		DisplayName: "Queue",
		Personal:    domain.Since(10 * time.Second),
		Shared:      domain.Limiter(200, "day"),
	}}
}

func (q *Queue) Commands() map[string]services.Command {
	return map[string]services.Command{
		"add": {
			Handler:      q.add,
			Help:         "Queue a video at the end of the playlist, or next.",
			Usage:        "add <type:id> [next]",
			CooldownType: "add",
		},
		"block": {
			Handler: q.block,
			Help:    "Block a video and remove it from the playlist.",
			Usage:   "block <type:id>",
		},
	}
}

// parseMediaRef reads a "type:id" reference.
func parseMediaRef(s string) (domain.MediaRef, error) {
	typ, id, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return domain.MediaRef{}, apperrors.Userf("Give me a media reference like yt:dQw4w9WgXcQ.")
	}
	if err := validation.ValidateMediaRef(typ, id); err != nil {
		return domain.MediaRef{}, &apperrors.UserError{Message: fmt.Sprintf("%q is not a media reference I understand.", s), Cause: err}
	}
	return domain.MediaRef{Type: typ, ID: id}, nil
}

func (q *Queue) add(ctx context.Context, env *services.Env, call services.Call) error {
	fields := strings.Fields(call.Args)
	if len(fields) == 0 || len(fields) > 2 {
		return apperrors.Userf("Usage: add <type:id> [next]")
	}
	ref, err := parseMediaRef(fields[0])
	if err != nil {
		return err
	}
	next := false
	if len(fields) == 2 {
		if !strings.EqualFold(fields[1], "next") {
			return apperrors.Userf("Usage: add <type:id> [next]")
		}
		next = true
	}

	if next {
		// Queueing next needs its own channel permission on top of playlistadd.
		required, err := env.Permissions.RequiredRank(domain.PermPlaylistNext)
		if err != nil {
			return err
		}
		if env.Room.Rank(call.User) < required {
			return env.Whisper(ctx, call.User, fmt.Sprintf("You need to be %s or higher to queue next.", required))
		}
	}

	if env.Store != nil {
		flags, err := env.Store.GetMediaFlags(ctx, ref)
		if err != nil {
			env.Logger.Warnw("Media flag lookup failed, continuing", "media", ref.String(), "error", err)
		} else if flags.Has(domain.FlagBlocked) {
			return env.Whisper(ctx, call.User, fmt.Sprintf("%s is blocked in this room.", ref))
		} else if flags.Has(domain.FlagNoRepeat) && playedRecently(ctx, env, ref) {
			return env.Whisper(ctx, call.User, fmt.Sprintf("%s was played recently and can't be queued again yet.", ref))
		}
	}

	gate, err := env.Gate(ctx, call, services.GateSpec{Permission: domain.PermPlaylistAdd, CooldownType: "add"})
	if err != nil || !gate.Allowed() {
		return err
	}

	temp := env.Room.Rank(call.User) < domain.RankModerator
	cfg := q.retry
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		env.Logger.Warnw("Queue submission failed, retrying",
			"media", ref.String(),
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)
	}
	err = retry.Retry(ctx, cfg, func() error {
		return env.Client.QueueMedia(ctx, ref, next, temp)
	})
	if err != nil {
		return &apperrors.UserError{
			Message: "I couldn't queue that right now, try again later.",
			Cause:   apperrors.Wrap(err, apperrors.ErrCodeTransport, "queue media"),
		}
	}

	if env.Store != nil {
		stat := domain.MediaStat{Media: ref, QueuedBy: call.User, At: env.Now()}
		if err := env.Store.RecordMediaStat(ctx, stat); err != nil {
			env.Logger.Warnw("Failed to record media stat", "media", ref.String(), "error", err)
		}
	}
	return nil
}

func playedRecently(ctx context.Context, env *services.Env, ref domain.MediaRef) bool {
	recent, err := env.Store.RecentMedia(ctx, noRepeatWindow)
	if err != nil {
		env.Logger.Warnw("Recent media lookup failed, continuing", "media", ref.String(), "error", err)
		return false
	}
	for _, stat := range recent {
		if stat.Media == ref {
			return true
		}
	}
	return false
}

func (q *Queue) block(ctx context.Context, env *services.Env, call services.Call) error {
	gate, err := env.Gate(ctx, call, services.GateSpec{Rank: domain.RankModerator})
	if err != nil || !gate.Allowed() {
		return err
	}
	ref, err := parseMediaRef(call.Args)
	if err != nil {
		return err
	}
	if env.Store == nil {
		return apperrors.Userf("Blocking needs a store, and none is configured.")
	}

	flags, err := env.Store.GetMediaFlags(ctx, ref)
	if err != nil {
		return fmt.Errorf("read media flags: %w", err)
	}
	if err := env.Store.SetMediaFlags(ctx, ref, flags|domain.FlagBlocked); err != nil {
		return fmt.Errorf("write media flags: %w", err)
	}

	removed := 0
	for _, item := range env.Room.Playlist() {
		if item.Media.MediaRef != ref {
			continue
		}
		if err := env.Client.DeleteMedia(ctx, item.UID); err != nil {
			env.Logger.Warnw("Failed to remove blocked media", "uid", item.UID, "error", err)
			continue
		}
		removed++
	}
	env.Logger.Infow("Media blocked", "media", ref.String(), "by", call.User, "removed", removed)
	return env.Whisper(ctx, call.User, fmt.Sprintf("Blocked %s and removed %d playlist item(s).", ref, removed))
}
