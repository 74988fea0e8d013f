package transport

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"roombot/internal/core/domain"
)

// Frame is the envelope of every message on the room socket.
type Frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Outbound frame types.
const (
	OutLogin     = "login"
	OutChatMsg   = "chatMsg"
	OutPrivate   = "pm"
	OutQueue     = "queue"
	OutDelete    = "delete"
	OutMoveMedia = "moveMedia"
	OutKick      = "kick"
	OutNewPoll   = "newPoll"
	OutClosePoll = "closePoll"
)

type loginPayload struct {
	Name     string `json:"name"`
	Password string `json:"pw,omitempty"`
	Channel  string `json:"channel"`
}

type chatPayload struct {
	Msg string `json:"msg"`
}

type privatePayload struct {
	To  string `json:"to"`
	Msg string `json:"msg"`
}

type queuePayload struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Pos  string `json:"pos"`
	Temp bool   `json:"temp"`
}

type deletePayload struct {
	UID int `json:"uid"`
}

type movePayload struct {
	From  int `json:"from"`
	After int `json:"after"`
}

type kickPayload struct {
	Name   string `json:"name"`
	Reason string `json:"reason,omitempty"`
}

// inboundChat is a chatMsg or pm payload. Time is unix milliseconds.
type inboundChat struct {
	Username string `json:"username"`
	Msg      string `json:"msg"`
	To       string `json:"to,omitempty"`
	Time     int64  `json:"time"`
}

func (c inboundChat) message(private bool) domain.ChatMessage {
	ts := time.Now()
	if c.Time > 0 {
		ts = time.UnixMilli(c.Time)
	}
	return domain.ChatMessage{Username: c.Username, Text: c.Msg, Private: private, Timestamp: ts}
}

func encodeFrame(typ string, payload interface{}) ([]byte, error) {
	f := Frame{Type: typ}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", typ, err)
		}
		f.Payload = raw
	}
	return json.Marshal(f)
}

func decodePayload(f Frame, v interface{}) error {
	if len(f.Payload) == 0 {
		return fmt.Errorf("%s frame has no payload", f.Type)
	}
	if err := json.Unmarshal(f.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", f.Type, err)
	}
	return nil
}

// ranksFromWire converts a permission table. Fractional ranks round up so
// a permission never becomes easier to satisfy than the room intends.
func ranksFromWire(in map[string]float64) map[string]domain.Rank {
	out := make(map[string]domain.Rank, len(in))
	for k, v := range in {
		out[k] = domain.Rank(math.Ceil(v))
	}
	return out
}
