package scheduler

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"

	"roombot/internal/core/domain"
	"roombot/internal/core/services"
	"roombot/pkg/backup"
	"roombot/pkg/config"
)

// RoomGauge receives the room mirror's sizes.
type RoomGauge interface {
	SetRoomSize(users, playlist int)
}

// PruneRecorder receives the number of pruned cooldown entries.
type PruneRecorder interface {
	RecordPruned(n int)
}

// Announcement posts message to room chat. Muting applies.
func Announcement(cfg config.Job, env *services.Env) Job {
	return Job{
		Name: cfg.Name,
		Cron: cfg.Cron,
		Run: func(ctx context.Context) error {
			return env.Say(ctx, cfg.Message)
		},
	}
}

// CooldownPrune drops elapsed cooldown entries. rec may be nil.
func CooldownPrune(cron string, engine *services.CooldownEngine, rec PruneRecorder) Job {
	return Job{
		Name: "cooldown_prune",
		Cron: cron,
		Run: func(context.Context) error {
			n := engine.Prune()
			if rec != nil {
				rec.RecordPruned(n)
			}
			return nil
		},
	}
}

// RoomStats publishes user and playlist counts every minute.
func RoomStats(room *services.RoomState, gauge RoomGauge) Job {
	return Job{
		Name: "room_stats",
		Cron: "* * * * *",
		Run: func(context.Context) error {
			snap := room.Snapshot()
			gauge.SetRoomSize(len(snap.Users), len(snap.Playlist))
			return nil
		},
	}
}

// Purger drops expired cache entries.
type Purger interface {
	Purge() int
}

// CachePurge evicts expired store cache entries on the prune schedule.
func CachePurge(cron string, p Purger) Job {
	return Job{
		Name: "cache_purge",
		Cron: cron,
		Run: func(context.Context) error {
			p.Purge()
			return nil
		},
	}
}

type roomBackup struct {
	Room        services.RoomSnapshot `json:"room"`
	RecentMedia []domain.MediaStat    `json:"recent_media"`
}

// Backup snapshots the room mirror and media history, then prunes old
// snapshots down to keep.
func Backup(cron string, svc *backup.Service, keep int, env *services.Env) Job {
	return Job{
		Name: "backup",
		Cron: cron,
		Run: func(ctx context.Context) error {
			snap := roomBackup{Room: env.Room.Snapshot()}
			if env.Store != nil {
				recent, err := env.Store.RecentMedia(ctx, 0)
				if err != nil {
					return fmt.Errorf("read media history: %w", err)
				}
				snap.RecentMedia = recent
			}

			name, size, err := svc.Create(ctx, snap)
			if err != nil {
				return err
			}
			pruned, err := svc.Prune(ctx, keep)
			if err != nil {
				return err
			}
			env.Logger.Infow("Backup written",
				"name", name,
				"size", humanize.Bytes(uint64(size)),
				"pruned", len(pruned),
			)
			return nil
		},
	}
}
