package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"roombot/internal/core/domain"
	"roombot/internal/core/ports"
	apperrors "roombot/pkg/errors"
)

var ErrLoginRejected = errors.New("login rejected")

// Handler consumes inbound frames in arrival order.
type Handler interface {
	HandleFrame(ctx context.Context, f Frame)
}

type Config struct {
	URL      string
	Channel  string
	Username string
	Password string

	HandshakeTimeout time.Duration
	PingInterval     time.Duration
	PongTimeout      time.Duration
	WriteTimeout     time.Duration
}

// Client is the bot's websocket connection to the room. It implements
// ports.RoomClient for outbound commands; Run drives the inbound side.
type Client struct {
	cfg    Config
	dialer *websocket.Dialer
	logger *zap.SugaredLogger

	mu   sync.RWMutex
	conn *websocket.Conn

	// writeMu serializes data frames; gorilla allows one concurrent writer.
	writeMu sync.Mutex

	loggedIn  chan struct{}
	loginOnce sync.Once
	expired   atomic.Bool

	// loginRead runs after a login frame has been accepted; nil outside tests.
	loginRead func()
}

const (
	handshakePending int32 = iota
	handshakeDone
	handshakeExpired
)

var _ ports.RoomClient = (*Client)(nil)

func NewClient(cfg Config, logger *zap.SugaredLogger) *Client {
	return &Client{
		cfg: cfg,
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.HandshakeTimeout,
			ReadBufferSize:   4096,
			WriteBufferSize:  4096,
		},
		logger:   logger,
		loggedIn: make(chan struct{}),
	}
}

// Connect dials the room and sends the login frame.
func (c *Client) Connect(ctx context.Context) error {
	conn, _, err := c.dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeTransport, "dial room")
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	c.logger.Infow("Connected to room", "url", c.cfg.URL, "channel", c.cfg.Channel)

	login := loginPayload{Name: c.cfg.Username, Password: c.cfg.Password, Channel: c.cfg.Channel}
	if err := c.send(ctx, OutLogin, login); err != nil {
		conn.Close()
		return err
	}
	return nil
}

// LoggedIn is closed once the room acknowledges the login.
func (c *Client) LoggedIn() <-chan struct{} {
	return c.loggedIn
}

// Run reads frames until the connection ends and hands each one to h. It
// always returns a non-nil error: ctx.Err() after cancellation, otherwise a
// transport fault wrapping domain.ErrHandshakeTimeout, ErrLoginRejected or
// domain.ErrDisconnected.
func (c *Client) Run(ctx context.Context, h Handler) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return apperrors.Wrap(domain.ErrNotConnected, apperrors.ErrCodeTransport, "run")
	}
	defer conn.Close()

	// The watchdog and the login frame race for handshake; the loser backs off.
	var handshake atomic.Int32
	if c.cfg.HandshakeTimeout > 0 {
		watchdog := time.AfterFunc(c.cfg.HandshakeTimeout, func() {
			if !handshake.CompareAndSwap(handshakePending, handshakeExpired) {
				return
			}
			c.expired.Store(true)
			c.logger.Errorw("Room handshake timed out", "timeout", c.cfg.HandshakeTimeout)
			conn.Close()
		})
		defer watchdog.Stop()
	}

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	c.extendRead(conn)
	conn.SetPongHandler(func(string) error {
		c.extendRead(conn)
		return nil
	})

	pingDone := make(chan struct{})
	defer close(pingDone)
	go c.pingLoop(conn, pingDone)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return c.readFailure(ctx, err)
		}
		c.extendRead(conn)

		var f Frame
		if err := json.Unmarshal(data, &f); err != nil || f.Type == "" {
			c.logger.Warnw("Dropping undecodable frame", "error", err, "size", len(data))
			continue
		}

		if f.Type == string(domain.EventLogin) {
			var res domain.LoginResult
			if err := decodePayload(f, &res); err != nil || !res.Success {
				reason := res.Error
				if err != nil {
					reason = err.Error()
				}
				return apperrors.Wrap(fmt.Errorf("%w: %s", ErrLoginRejected, reason), apperrors.ErrCodeTransport, "login")
			}
			if !handshake.CompareAndSwap(handshakePending, handshakeDone) && handshake.Load() == handshakeExpired {
				return apperrors.Wrap(domain.ErrHandshakeTimeout, apperrors.ErrCodeTransport, "login")
			}
			if c.loginRead != nil {
				c.loginRead()
			}
			c.loginOnce.Do(func() { close(c.loggedIn) })
			c.logger.Infow("Logged in to room", "name", res.Name)
		}

		h.HandleFrame(ctx, f)
	}
}

func (c *Client) extendRead(conn *websocket.Conn) {
	if c.cfg.PongTimeout > 0 {
		conn.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
	}
}

func (c *Client) writeDeadline() time.Time {
	if c.cfg.WriteTimeout > 0 {
		return time.Now().Add(c.cfg.WriteTimeout)
	}
	return time.Time{}
}

func (c *Client) readFailure(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if c.expired.Load() {
		return apperrors.Wrap(domain.ErrHandshakeTimeout, apperrors.ErrCodeTransport, "login")
	}
	if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		c.logger.Warnw("Room connection closed unexpectedly", "error", err)
	}
	return apperrors.Wrap(fmt.Errorf("%w: %v", domain.ErrDisconnected, err), apperrors.ErrCodeTransport, "read")
}

func (c *Client) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	if c.cfg.PingInterval <= 0 {
		return
	}
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, c.writeDeadline()); err != nil {
				c.logger.Warnw("Ping failed", "error", err)
				return
			}
		}
	}
}

// Close sends a close frame and tears the connection down.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn == nil {
		return nil
	}

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")
	_ = conn.WriteControl(websocket.CloseMessage, msg, c.writeDeadline())
	return conn.Close()
}

func (c *Client) send(ctx context.Context, typ string, payload interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := encodeFrame(typ, payload)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "encode frame")
	}

	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return apperrors.Wrap(domain.ErrNotConnected, apperrors.ErrCodeTransport, typ)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline := c.writeDeadline()
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	conn.SetWriteDeadline(deadline)
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeTransport, "write "+typ)
	}
	return nil
}

func (c *Client) SendChat(ctx context.Context, text string) error {
	return c.send(ctx, OutChatMsg, chatPayload{Msg: text})
}

func (c *Client) SendPrivate(ctx context.Context, to, text string) error {
	return c.send(ctx, OutPrivate, privatePayload{To: to, Msg: text})
}

func (c *Client) QueueMedia(ctx context.Context, media domain.MediaRef, next, temp bool) error {
	pos := "end"
	if next {
		pos = "next"
	}
	return c.send(ctx, OutQueue, queuePayload{ID: media.ID, Type: media.Type, Pos: pos, Temp: temp})
}

func (c *Client) DeleteMedia(ctx context.Context, uid int) error {
	return c.send(ctx, OutDelete, deletePayload{UID: uid})
}

func (c *Client) MoveMedia(ctx context.Context, from, after int) error {
	return c.send(ctx, OutMoveMedia, movePayload{From: from, After: after})
}

func (c *Client) Kick(ctx context.Context, name, reason string) error {
	return c.send(ctx, OutKick, kickPayload{Name: name, Reason: reason})
}

func (c *Client) OpenPoll(ctx context.Context, poll ports.Poll) error {
	return c.send(ctx, OutNewPoll, poll)
}

func (c *Client) ClosePoll(ctx context.Context) error {
	return c.send(ctx, OutClosePoll, nil)
}
