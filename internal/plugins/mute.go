package plugins

import (
	"context"

	"roombot/internal/core/domain"
	"roombot/internal/core/services"
)

// Mute silences the bot's public chat. Moderators and holders of the
// "mute" capability may use it.
type Mute struct{}

func NewMute() *Mute { return &Mute{} }

func (m *Mute) Name() string { return "mute" }

func (m *Mute) Commands() map[string]services.Command {
	return map[string]services.Command{
		"mute": {
			Handler: m.mute,
			Help:    "Stop the bot talking in chat.",
			Usage:   "mute",
		},
		"unmute": {
			Handler: m.unmute,
			Help:    "Let the bot talk in chat again.",
			Usage:   "unmute",
		},
	}
}

var muteGate = services.GateSpec{Rank: domain.RankModerator, Hybrid: []string{domain.PermMute}}

func (m *Mute) mute(ctx context.Context, env *services.Env, call services.Call) error {
	gate, err := env.Gate(ctx, call, muteGate)
	if err != nil || !gate.Allowed() {
		return err
	}
	if env.Room.Muted() {
		return env.Whisper(ctx, call.User, "I'm already muted.")
	}
	env.Room.SetMuted(true)
	env.Logger.Infow("Bot muted", "by", call.User)
	return env.Whisper(ctx, call.User, "Muted. Use unmute to let me talk again.")
}

func (m *Mute) unmute(ctx context.Context, env *services.Env, call services.Call) error {
	gate, err := env.Gate(ctx, call, muteGate)
	if err != nil || !gate.Allowed() {
		return err
	}
	if !env.Room.Muted() {
		return env.Whisper(ctx, call.User, "I'm not muted.")
	}
	env.Room.SetMuted(false)
	env.Logger.Infow("Bot unmuted", "by", call.User)
	return env.Say(ctx, "I'm back.")
}
