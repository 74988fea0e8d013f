package domain

import (
	"fmt"
	"time"
)

// PlaylistHead is the insert/move position before the first playlist item.
const PlaylistHead = -1

type MediaRef struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

func (m MediaRef) String() string {
	return fmt.Sprintf("%s:%s", m.Type, m.ID)
}

func (m MediaRef) IsZero() bool {
	return m.Type == "" && m.ID == ""
}

type Media struct {
	MediaRef
	Title    string        `json:"title,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
}

type PlaylistItem struct {
	UID      int    `json:"uid"`
	Media    Media  `json:"media"`
	QueuedBy string `json:"queued_by"`
	Temp     bool   `json:"temp"`
}

// MediaFlags is a bitmask stored per media reference.
type MediaFlags uint32

const (
	FlagBlocked MediaFlags = 1 << iota
	// FlagNoRepeat media is refused while it is still in the recent queue history.
	FlagNoRepeat
)

func (f MediaFlags) Has(flag MediaFlags) bool {
	return f&flag != 0
}

type MediaStat struct {
	Media    MediaRef  `json:"media"`
	Title    string    `json:"title,omitempty"`
	QueuedBy string    `json:"queued_by"`
	At       time.Time `json:"at"`
}
