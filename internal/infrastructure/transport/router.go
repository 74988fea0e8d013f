package transport

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"roombot/internal/core/domain"
	"roombot/internal/core/ports"
	"roombot/internal/core/services"
	"roombot/pkg/tracing"
)

// ChatSink receives public chat lines, normally the dispatcher.
type ChatSink interface {
	OnChatMessage(ctx context.Context, msg domain.ChatMessage)
}

// EventObserver is told about every routed frame.
type EventObserver interface {
	ObserveRoomEvent(eventType string, applied bool)
}

// Router applies inbound frames to the room mirror in arrival order and
// forwards chat to the dispatcher.
type Router struct {
	room     *services.RoomState
	chat     ChatSink
	store    ports.Store
	observer EventObserver
	logger   *zap.SugaredLogger

	storeTimeout time.Duration
	wg           sync.WaitGroup
}

type RouterOption func(*Router)

func WithEventObserver(o EventObserver) RouterOption {
	return func(r *Router) { r.observer = o }
}

// NewRouter builds a router. store may be nil, in which case users seen in
// the room are not recorded.
func NewRouter(room *services.RoomState, chat ChatSink, store ports.Store, logger *zap.SugaredLogger, opts ...RouterOption) *Router {
	r := &Router{
		room:         room,
		chat:         chat,
		store:        store,
		logger:       logger,
		storeTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Wait blocks until background store writes have finished.
func (r *Router) Wait() {
	r.wg.Wait()
}

func (r *Router) HandleFrame(ctx context.Context, f Frame) {
	ctx, span := tracing.TraceRoomEvent(ctx, f.Type)
	defer span.End()

	err := r.apply(ctx, f)
	if err != nil {
		tracing.RecordError(ctx, err)
		r.logger.Warnw("Room event not applied", "type", f.Type, "error", err)
	}
	if r.observer != nil {
		r.observer.ObserveRoomEvent(f.Type, err == nil)
	}
}

func (r *Router) apply(ctx context.Context, f Frame) error {
	switch domain.EventType(f.Type) {
	case domain.EventLogin:
		var res domain.LoginResult
		if err := decodePayload(f, &res); err != nil {
			return err
		}
		if res.Success && res.Name != "" {
			r.room.SetBotName(res.Name)
		}

	case domain.EventChatMsg:
		var c inboundChat
		if err := decodePayload(f, &c); err != nil {
			return err
		}
		r.chat.OnChatMessage(ctx, c.message(false))

	case domain.EventPrivateMsg:
		var c inboundChat
		if err := decodePayload(f, &c); err != nil {
			return err
		}
		r.logger.Debugw("Private message", "from", c.Username, "msg", c.Msg)

	case domain.EventUserlist:
		var users []domain.User
		if err := decodePayload(f, &users); err != nil {
			return err
		}
		r.room.SetUserlist(users)
		r.recordUsers(ctx, users...)

	case domain.EventAddUser:
		var u domain.User
		if err := decodePayload(f, &u); err != nil {
			return err
		}
		r.room.AddUser(u)
		r.recordUsers(ctx, u)

	case domain.EventUserLeave:
		var p domain.UserLeave
		if err := decodePayload(f, &p); err != nil {
			return err
		}
		return r.room.RemoveUser(p.Name)

	case domain.EventSetUserRank:
		var p domain.UserRankChange
		if err := decodePayload(f, &p); err != nil {
			return err
		}
		if err := r.room.SetUserRank(p.Name, p.Rank); err != nil {
			return err
		}
		r.recordUsers(ctx, domain.User{Name: p.Name, Rank: p.Rank})

	case domain.EventSetAFK:
		var p domain.UserAFKChange
		if err := decodePayload(f, &p); err != nil {
			return err
		}
		return r.room.SetUserAFK(p.Name, p.AFK)

	case domain.EventSetUserMeta:
		var p domain.UserMetaChange
		if err := decodePayload(f, &p); err != nil {
			return err
		}
		return r.room.SetUserMeta(p.Name, p.Meta)

	case domain.EventSetUserProfile:
		var p domain.UserProfileChange
		if err := decodePayload(f, &p); err != nil {
			return err
		}
		return r.room.SetUserProfile(p.Name, p.Profile)

	case domain.EventPlaylist:
		var items []domain.PlaylistItem
		if err := decodePayload(f, &items); err != nil {
			return err
		}
		return r.room.SetPlaylist(items)

	case domain.EventQueue:
		var p domain.QueueEvent
		if err := decodePayload(f, &p); err != nil {
			return err
		}
		return r.room.InsertItem(p.Item, p.After)

	case domain.EventDelete:
		var p domain.DeleteEvent
		if err := decodePayload(f, &p); err != nil {
			return err
		}
		return r.room.DeleteItem(p.UID)

	case domain.EventMoveVideo:
		var p domain.MoveEvent
		if err := decodePayload(f, &p); err != nil {
			return err
		}
		return r.room.MoveItem(p.From, p.After)

	case domain.EventChangeMedia:
		var p domain.ChangeMediaEvent
		if err := decodePayload(f, &p); err != nil {
			return err
		}
		r.room.SetCurrent(p.UID)

	case domain.EventSetTemp:
		var p domain.SetTempEvent
		if err := decodePayload(f, &p); err != nil {
			return err
		}
		return r.room.SetTemp(p.UID, p.Temp)

	case domain.EventSetPermissions:
		var p map[string]float64
		if err := decodePayload(f, &p); err != nil {
			return err
		}
		r.room.SetPermissions(ranksFromWire(p))

	case domain.EventChannelOpts:
		var p map[string]any
		if err := decodePayload(f, &p); err != nil {
			return err
		}
		r.room.SetOptions(p)

	case domain.EventBanlist:
		var p []domain.Ban
		if err := decodePayload(f, &p); err != nil {
			return err
		}
		r.room.SetBanlist(p)

	case domain.EventSetLeader:
		var p domain.LeaderEvent
		if err := decodePayload(f, &p); err != nil {
			return err
		}
		r.room.SetLeader(p.Leader)

	case domain.EventError:
		var p domain.RoomError
		if err := decodePayload(f, &p); err != nil {
			return err
		}
		r.logger.Errorw("Room reported an error", "msg", p.Message)

	default:
		r.logger.Debugw("Ignoring unhandled room event", "type", f.Type)
	}
	return nil
}

// recordUsers writes users to the store off the read loop so a slow store
// never delays event application.
func (r *Router) recordUsers(ctx context.Context, users ...domain.User) {
	if r.store == nil || len(users) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(ctx, r.storeTimeout)
		defer cancel()

		for _, u := range users {
			if err := r.store.RecordUser(ctx, u.Name, u.Rank); err != nil {
				r.logger.Warnw("Failed to record user", "user", u.Name, "error", err)
				return
			}
		}
	}()
}
