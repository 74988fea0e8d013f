package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"roombot/internal/core/domain"
	"roombot/internal/core/ports"
	apperrors "roombot/pkg/errors"
	"roombot/pkg/logger"
	"roombot/pkg/textutil"
)

// Meta carries dispatch details a handler may want besides its arguments.
type Meta struct {
	Command string
	Message string
}

// Call is one invocation of a command handler.
type Call struct {
	User string
	Args string
	Meta Meta
}

// HandlerFunc runs a command. Returned errors are logged by the dispatcher
// and turned into a chat notice; wrap a *errors.UserError to pick the text.
type HandlerFunc func(ctx context.Context, env *Env, call Call) error

// Command is what a plugin contributes for one command name.
type Command struct {
	Handler      HandlerFunc
	Help         string
	Usage        string
	CooldownType string
}

// Plugin is a bundle of commands loaded into the registry.
type Plugin interface {
	Name() string
	Commands() map[string]Command
}

// Initializer is implemented by plugins that need setup before their
// commands are registered.
type Initializer interface {
	Init(ctx context.Context, env *Env) error
}

// CooldownProvider is implemented by plugins that declare cooldown types.
type CooldownProvider interface {
	Cooldowns() []domain.CooldownDefinition
}

// Env is the explicit state handed to every handler.
type Env struct {
	Room        *RoomState
	Client      ports.RoomClient
	Permissions *PermissionService
	Cooldowns   *CooldownEngine
	Registry    *CommandRegistry
	Store       ports.Store
	Logger      *zap.SugaredLogger
	Clock       func() time.Time

	// MaxMessageLength caps outbound chat lines.
	MaxMessageLength int
	// ModBypassRank is the rank from which users skip cooldowns.
	ModBypassRank domain.Rank
}

func (e *Env) Now() time.Time {
	if e.Clock != nil {
		return e.Clock()
	}
	return time.Now()
}

// Say posts to public chat unless the bot is muted.
func (e *Env) Say(ctx context.Context, text string) error {
	if e.Room.Muted() {
		e.Logger.Debugw("Suppressed chat while muted", "text", text)
		return nil
	}
	return e.Client.SendChat(ctx, e.truncate(text))
}

// Whisper sends a private message. Muting does not apply.
func (e *Env) Whisper(ctx context.Context, to, text string) error {
	return e.Client.SendPrivate(ctx, to, e.truncate(text))
}

func (e *Env) truncate(text string) string {
	if e.MaxMessageLength > 0 {
		return textutil.Truncate(text, e.MaxMessageLength)
	}
	return text
}

// GateSpec describes what a command requires of its caller.
type GateSpec struct {
	// Rank is the required rank unless Permission names a channel permission.
	Rank       domain.Rank
	Permission string
	// Hybrid capabilities that let lower-ranked users through.
	Hybrid       []string
	CooldownType string
	// ModBypassRank overrides Env.ModBypassRank when positive.
	ModBypassRank domain.Rank
	// NoBypass makes cooldowns apply to every rank.
	NoBypass bool
}

// GateResult is the outcome of both gate stages. Denied is empty when the
// call may proceed.
type GateResult struct {
	Permission domain.PermissionOutcome
	Admission  domain.Admission
	Denied     string
}

func (g GateResult) Allowed() bool { return g.Denied == "" }

// Gate authorizes a call and then checks and commits its cooldown. A
// rejected caller is told why in a private message. Returned errors are
// faults (config or store), not rejections.
func (e *Env) Gate(ctx context.Context, call Call, spec GateSpec) (GateResult, error) {
	var res GateResult
	log := logger.NewContextLogger(e.Logger)

	if e.Store != nil {
		blocked, err := e.Store.IsUserBlocked(ctx, call.User)
		if err != nil {
			log.LogWarn(ctx, "Blocked-user lookup failed, continuing", "error", err)
		} else if blocked {
			res.Denied = "blocked"
			e.logState(ctx, StateRejected, "reason", res.Denied)
			return res, nil
		}
	}

	required := spec.Rank
	if spec.Permission != "" {
		r, err := e.Permissions.RequiredRank(spec.Permission)
		if err != nil {
			return res, err
		}
		required = r
	}

	outcome, err := e.Permissions.CheckPermission(call.User, required, spec.Hybrid...)
	if err != nil {
		if !errors.Is(err, domain.ErrInsufficientRank) {
			return res, err
		}
		res.Denied = "rank"
		e.logState(ctx, StateRejected, "required", required.String())
		e.notify(ctx, call.User, fmt.Sprintf("You need to be %s or higher to use %s.", required, call.Meta.Command))
		return res, nil
	}
	res.Permission = outcome
	e.logState(ctx, StateAuthorized, "outcome", outcome.Kind)

	if spec.CooldownType == "" {
		return res, nil
	}

	bypassRank := e.ModBypassRank
	if spec.ModBypassRank > 0 {
		bypassRank = spec.ModBypassRank
	}
	bypass := !spec.NoBypass && bypassRank > 0 && e.Room.Rank(call.User) >= bypassRank

	adm, err := e.Cooldowns.Check(domain.CooldownRequest{Type: spec.CooldownType, User: call.User, ModBypass: bypass})
	if err != nil {
		return res, err
	}
	res.Admission = adm
	if !adm.Admitted {
		res.Denied = adm.Reason()
		e.logState(ctx, StateThrottled, "scope", adm.Scope, "retry_after", adm.RetryAfter)
		e.notify(ctx, call.User, e.throttleNotice(call.Meta.Command, adm))
		return res, nil
	}
	e.logState(ctx, StateCommitted, "bypassed", adm.Bypassed)
	return res, nil
}

func (e *Env) throttleNotice(command string, adm domain.Admission) string {
	wait := "a moment"
	if adm.RetryAfter >= time.Second {
		now := e.Now()
		wait = strings.TrimSpace(humanize.RelTime(now, now.Add(adm.RetryAfter), "", ""))
	}
	if adm.Scope == domain.ScopeShared {
		return fmt.Sprintf("%s is cooling down for everyone, try again in %s.", command, wait)
	}
	return fmt.Sprintf("Please wait %s before using %s again.", wait, command)
}

func (e *Env) notify(ctx context.Context, user, text string) {
	if err := e.Whisper(ctx, user, text); err != nil {
		logger.NewContextLogger(e.Logger).LogWarn(ctx, "Failed to send rejection notice", "error", err)
	}
}

func (e *Env) logState(ctx context.Context, state DispatchState, kv ...interface{}) {
	logger.NewContextLogger(e.Logger).LogDebug(ctx, "Dispatch state", append([]interface{}{"state", state.String()}, kv...)...)
}

// UserFacing returns the chat notice for a failed handler.
func UserFacing(err error) string {
	if msg, ok := apperrors.AsUserError(err); ok {
		return msg
	}
	return "Something went wrong running that command."
}
