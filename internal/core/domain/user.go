package domain

import (
	"strings"
	"time"
)

// Rank is a room participant's privilege level. Higher values are more privileged.
type Rank int

const (
	RankGuest     Rank = 0
	RankUser      Rank = 1
	RankLeader    Rank = 2
	RankModerator Rank = 3
	RankAdmin     Rank = 4
	RankOwner     Rank = 5
	RankFounder   Rank = 6
)

func (r Rank) String() string {
	switch r {
	case RankGuest:
		return "guest"
	case RankUser:
		return "user"
	case RankLeader:
		return "leader"
	case RankModerator:
		return "moderator"
	case RankAdmin:
		return "admin"
	case RankOwner:
		return "owner"
	case RankFounder:
		return "founder"
	}
	if r > RankFounder {
		return "siteadmin"
	}
	return "unknown"
}

// ParseRank maps a rank name back to its level.
func ParseRank(name string) (Rank, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "guest":
		return RankGuest, true
	case "user":
		return RankUser, true
	case "leader":
		return RankLeader, true
	case "moderator", "mod":
		return RankModerator, true
	case "admin":
		return RankAdmin, true
	case "owner":
		return RankOwner, true
	case "founder":
		return RankFounder, true
	}
	return RankGuest, false
}

type Profile struct {
	Image string `json:"image,omitempty"`
	Text  string `json:"text,omitempty"`
}

type User struct {
	Name     string         `json:"name"`
	Rank     Rank           `json:"rank"`
	AFK      bool           `json:"afk"`
	Muted    bool           `json:"muted"`
	Profile  Profile        `json:"profile"`
	Meta     map[string]any `json:"meta,omitempty"`
	JoinedAt time.Time      `json:"joined_at"`
}

// UserKey is the lookup key for a user name. Room names are case-insensitive.
func UserKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Clone returns a copy safe to hand out of the room state.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	if u.Meta != nil {
		c.Meta = make(map[string]any, len(u.Meta))
		for k, v := range u.Meta {
			c.Meta[k] = v
		}
	}
	return &c
}

type Ban struct {
	Name     string `json:"name"`
	IP       string `json:"ip,omitempty"`
	BannedBy string `json:"banned_by,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// UserRecord is what the store remembers about a user across sessions.
type UserRecord struct {
	Name      string    `json:"name"`
	Rank      Rank      `json:"rank"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
	Blocked   bool      `json:"blocked"`
}
