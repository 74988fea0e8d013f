package plugins

import (
	"context"
	"fmt"
	"strings"
	"time"

	"roombot/internal/core/domain"
	"roombot/internal/core/services"
	apperrors "roombot/pkg/errors"
)

// Help answers with the registered commands by private message.
type Help struct{}

func NewHelp() *Help { return &Help{} }

func (h *Help) Name() string { return "help" }

func (h *Help) Cooldowns() []domain.CooldownDefinition {
	return []domain.CooldownDefinition{{
		TypeID:   "help",
		Personal: domain.Since(5 * time.Second),
		Shared:   domain.Since(time.Second),
	}}
}

func (h *Help) Commands() map[string]services.Command {
	return map[string]services.Command{
		"help": {
			Handler:      h.help,
			Help:         "List commands, or describe one.",
			Usage:        "help [command]",
			CooldownType: "help",
		},
	}
}

func (h *Help) help(ctx context.Context, env *services.Env, call services.Call) error {
	gate, err := env.Gate(ctx, call, services.GateSpec{Rank: domain.RankGuest, CooldownType: "help"})
	if err != nil || !gate.Allowed() {
		return err
	}

	name := strings.TrimSpace(call.Args)
	if name == "" {
		entries := env.Registry.Help()
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name)
		}
		return env.Whisper(ctx, call.User, "Commands: "+strings.Join(names, ", "))
	}

	reg, ok := env.Registry.Lookup(name)
	if !ok {
		return apperrors.Userf("There is no %s command.", name)
	}
	text := name
	if reg.Command.Help != "" {
		text = fmt.Sprintf("%s: %s", name, reg.Command.Help)
	}
	if reg.Command.Usage != "" {
		text += " Usage: " + reg.Command.Usage
	}
	return env.Whisper(ctx, call.User, text)
}
