package services

import (
	"context"
	"fmt"
	"regexp"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"roombot/internal/core/domain"
	apperrors "roombot/pkg/errors"
	"roombot/pkg/logger"
	"roombot/pkg/textutil"
	"roombot/pkg/tracing"
)

// DispatchState names the steps of a single dispatch.
type DispatchState int

const (
	StateIdle DispatchState = iota
	StateTriggered
	StateAuthorized
	StateRejected
	StateThrottled
	StateCommitted
	StateHandlerRunning
)

func (s DispatchState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateTriggered:
		return "triggered"
	case StateAuthorized:
		return "authorized"
	case StateRejected:
		return "rejected"
	case StateThrottled:
		return "throttled"
	case StateCommitted:
		return "committed"
	case StateHandlerRunning:
		return "handler_running"
	default:
		return "unknown"
	}
}

// DispatchResult is how a chat line ended up being treated.
type DispatchResult int

const (
	ResultNotCommand DispatchResult = iota
	ResultRejected
	ResultUnknown
	ResultHandled
	ResultFailed
)

func (r DispatchResult) String() string {
	switch r {
	case ResultNotCommand:
		return "not_command"
	case ResultRejected:
		return "rejected"
	case ResultUnknown:
		return "unknown"
	case ResultHandled:
		return "handled"
	case ResultFailed:
		return "failed"
	default:
		return "invalid"
	}
}

// DispatchObserver receives every dispatch outcome, for metrics.
type DispatchObserver interface {
	ObserveDispatch(command string, result DispatchResult, duration time.Duration)
}

type DispatcherConfig struct {
	Trigger   string
	Blacklist []string
}

// Dispatcher turns chat lines into handler invocations.
type Dispatcher struct {
	registry  *CommandRegistry
	env       *Env
	trigger   *regexp.Regexp
	blacklist map[string]struct{}

	observer DispatchObserver
	logger   *zap.SugaredLogger
	ctxLog   *logger.ContextLogger

	wg sync.WaitGroup
}

type DispatcherOption func(*Dispatcher)

func WithDispatchObserver(o DispatchObserver) DispatcherOption {
	return func(d *Dispatcher) { d.observer = o }
}

// NewDispatcher compiles the trigger pattern; a bad pattern is a config fault.
func NewDispatcher(cfg DispatcherConfig, registry *CommandRegistry, env *Env, log *zap.SugaredLogger, opts ...DispatcherOption) (*Dispatcher, error) {
	trigger, err := regexp.Compile(cfg.Trigger)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeConfig, "compile command trigger")
	}
	d := &Dispatcher{
		registry:  registry,
		env:       env,
		trigger:   trigger,
		blacklist: make(map[string]struct{}, len(cfg.Blacklist)),
		logger:    log,
		ctxLog:    logger.NewContextLogger(log),
	}
	for _, name := range cfg.Blacklist {
		d.blacklist[domain.UserKey(name)] = struct{}{}
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// OnChatMessage dispatches msg on its own goroutine so handlers that wait
// on the network never stall the room read loop. Handlers are not cancelled
// when ctx is.
func (d *Dispatcher) OnChatMessage(ctx context.Context, msg domain.ChatMessage) {
	ctx = context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.Dispatch(ctx, msg)
	}()
}

// Wait blocks until every dispatch started by OnChatMessage has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Dispatch processes one chat line synchronously.
func (d *Dispatcher) Dispatch(ctx context.Context, msg domain.ChatMessage) DispatchResult {
	start := time.Now()
	text := textutil.NormalizeChat(msg.Text)

	loc := d.trigger.FindStringIndex(text)
	if loc == nil || loc[0] != 0 {
		d.logger.Debugw("Chat", "user", msg.Username, "msg", text)
		return d.finish("", ResultNotCommand, start)
	}

	if d.ignoredSpeaker(msg.Username) {
		d.logger.Debugw("Ignoring command from excluded speaker", "user", msg.Username)
		return d.finish("", ResultRejected, start)
	}

	name, args := textutil.SplitCommand(text[loc[1]:])
	reg, ok := d.registry.Lookup(name)
	if name == "" || !ok {
		d.logger.Debugw("Unknown command", "user", msg.Username, "command", name)
		return d.finish("", ResultUnknown, start)
	}

	ctx = logger.WithDispatch(ctx, uuid.NewString(), msg.Username, name)
	ctx, span := tracing.TraceCommand(ctx, name, msg.Username, logger.DispatchID(ctx))
	defer span.End()

	d.ctxLog.LogDebug(ctx, "Dispatch state", "state", StateTriggered.String(), "args", args)

	call := Call{User: msg.Username, Args: args, Meta: Meta{Command: name, Message: text}}
	if err := d.invoke(ctx, reg, call); err != nil {
		tracing.RecordError(ctx, err)
		fields := []interface{}{"args", args}
		if appErr := apperrors.GetAppError(err); appErr != nil {
			fields = append(fields, "code", string(appErr.Code))
			for k, v := range appErr.Context {
				fields = append(fields, k, v)
			}
		}
		d.ctxLog.LogError(ctx, err, "Command handler failed", fields...)
		if sayErr := d.env.Say(ctx, UserFacing(err)); sayErr != nil {
			d.ctxLog.LogWarn(ctx, "Failed to send failure notice", "error", sayErr)
		}
		tracing.AddSpanAttributes(ctx, tracing.OutcomeKey.String(ResultFailed.String()))
		return d.finish(name, ResultFailed, start)
	}

	tracing.AddSpanAttributes(ctx, tracing.OutcomeKey.String(ResultHandled.String()))
	d.ctxLog.LogDebug(ctx, "Dispatch state", "state", StateIdle.String(), "duration", time.Since(start))
	return d.finish(name, ResultHandled, start)
}

func (d *Dispatcher) ignoredSpeaker(user string) bool {
	if strings.TrimSpace(user) == "" || strings.EqualFold(user, d.env.Room.BotName()) {
		return true
	}
	_, listed := d.blacklist[domain.UserKey(user)]
	return listed
}

// invoke runs the handler, turning panics into errors. Contract violations
// are re-raised: they are bugs, not command failures.
func (d *Dispatcher) invoke(ctx context.Context, reg *CommandRegistration, call Call) (err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if e, ok := r.(error); ok && apperrors.IsCode(e, apperrors.ErrCodeContract) {
			panic(r)
		}
		d.ctxLog.LogError(ctx, fmt.Errorf("%v", r), "Command handler panicked", "stack", string(debug.Stack()))
		err = apperrors.Newf(apperrors.ErrCodeHandler, "handler %s panicked: %v", reg.Name, r)
	}()

	d.ctxLog.LogDebug(ctx, "Dispatch state", "state", StateHandlerRunning.String())
	return reg.Command.Handler(ctx, d.env, call)
}

func (d *Dispatcher) finish(command string, result DispatchResult, start time.Time) DispatchResult {
	if d.observer != nil {
		d.observer.ObserveDispatch(command, result, time.Since(start))
	}
	return result
}
