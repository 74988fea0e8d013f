package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	apperrors "roombot/pkg/errors"
	"roombot/pkg/validation"
)

// CommandRegistration is one entry of the registry.
type CommandRegistration struct {
	Name         string
	Command      Command
	Plugin       string
	RegisteredAt time.Time
}

// CommandHelp is the documentation view of a registration.
type CommandHelp struct {
	Name         string `json:"name"`
	Help         string `json:"help,omitempty"`
	Usage        string `json:"usage,omitempty"`
	Plugin       string `json:"plugin,omitempty"`
	CooldownType string `json:"cooldown_type,omitempty"`
}

// CommandRegistry maps command names to handlers. Lookups are
// case-sensitive. Re-registering a name replaces it.
type CommandRegistry struct {
	mu       sync.RWMutex
	commands map[string]*CommandRegistration
	logger   *zap.SugaredLogger
}

func NewCommandRegistry(logger *zap.SugaredLogger) *CommandRegistry {
	return &CommandRegistry{
		commands: make(map[string]*CommandRegistration),
		logger:   logger,
	}
}

// Register adds or replaces a command. Only an invalid name or a missing
// handler is an error; replacement is logged as a warning.
func (r *CommandRegistry) Register(name string, cmd Command) error {
	return r.register("", name, cmd)
}

func (r *CommandRegistry) register(plugin, name string, cmd Command) error {
	if err := validation.ValidateCommandName(name); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeConfig, "register command")
	}
	if cmd.Handler == nil {
		return apperrors.NewConfigError("command %q has no handler", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, exists := r.commands[name]; exists {
		r.logger.Warnw("Command re-registered, replacing previous handler",
			"command", name,
			"previous_plugin", prev.Plugin,
			"plugin", plugin,
		)
	}
	r.commands[name] = &CommandRegistration{
		Name:         name,
		Command:      cmd,
		Plugin:       plugin,
		RegisteredAt: time.Now(),
	}
	return nil
}

// Unregister removes a command and reports whether it existed.
func (r *CommandRegistry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.commands[name]; !ok {
		return false
	}
	delete(r.commands, name)
	return true
}

func (r *CommandRegistry) Lookup(name string) (*CommandRegistration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.commands[name]
	if !ok {
		return nil, false
	}
	c := *reg
	return &c, true
}

func (r *CommandRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.commands)
}

// Help lists help metadata for all commands, sorted by name.
func (r *CommandRegistry) Help() []CommandHelp {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]CommandHelp, 0, len(r.commands))
	for _, reg := range r.commands {
		out = append(out, CommandHelp{
			Name:         reg.Name,
			Help:         reg.Command.Help,
			Usage:        reg.Command.Usage,
			Plugin:       reg.Plugin,
			CooldownType: reg.Command.CooldownType,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// LoadPlugin initializes p, registers its cooldowns and then its commands.
// Any error here is a configuration fault for the caller to abort on.
func (r *CommandRegistry) LoadPlugin(ctx context.Context, env *Env, p Plugin) error {
	name := p.Name()

	if ini, ok := p.(Initializer); ok {
		if err := ini.Init(ctx, env); err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeConfig, fmt.Sprintf("init plugin %s", name))
		}
	}

	if cp, ok := p.(CooldownProvider); ok {
		for _, def := range cp.Cooldowns() {
			if err := env.Cooldowns.Register(def); err != nil {
				return fmt.Errorf("plugin %s: %w", name, err)
			}
		}
	}

	cmds := p.Commands()
	names := make([]string, 0, len(cmds))
	for n := range cmds {
		names = append(names, n)
	}
	sort.Strings(names)

	for _, n := range names {
		cmd := cmds[n]
		if cmd.CooldownType != "" {
			if _, ok := env.Cooldowns.Definition(cmd.CooldownType); !ok {
				return apperrors.NewConfigError("plugin %s: command %q declares unknown cooldown %q", name, n, cmd.CooldownType)
			}
		}
		if err := r.register(name, n, cmd); err != nil {
			return fmt.Errorf("plugin %s: %w", name, err)
		}
	}

	r.logger.Infow("Plugin loaded",
		"plugin", name,
		"commands", names,
	)
	return nil
}
