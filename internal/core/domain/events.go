package domain

import "time"

// EventType names an inbound room frame.
type EventType string

const (
	EventLogin          EventType = "login"
	EventChatMsg        EventType = "chatMsg"
	EventPrivateMsg     EventType = "pm"
	EventUserlist       EventType = "userlist"
	EventAddUser        EventType = "addUser"
	EventUserLeave      EventType = "userLeave"
	EventSetUserRank    EventType = "setUserRank"
	EventSetAFK         EventType = "setAFK"
	EventSetUserMeta    EventType = "setUserMeta"
	EventSetUserProfile EventType = "setUserProfile"
	EventPlaylist       EventType = "playlist"
	EventQueue          EventType = "queue"
	EventDelete         EventType = "delete"
	EventMoveVideo      EventType = "moveVideo"
	EventChangeMedia    EventType = "changeMedia"
	EventSetTemp        EventType = "setTemp"
	EventSetPermissions EventType = "setPermissions"
	EventChannelOpts    EventType = "channelOpts"
	EventBanlist        EventType = "banlist"
	EventSetLeader      EventType = "setLeader"
	EventError          EventType = "error"
)

type ChatMessage struct {
	Username  string    `json:"username"`
	Text      string    `json:"msg"`
	Private   bool      `json:"private,omitempty"`
	Timestamp time.Time `json:"time"`
}

type LoginResult struct {
	Success bool   `json:"success"`
	Name    string `json:"name"`
	Error   string `json:"error,omitempty"`
}

type UserRankChange struct {
	Name string `json:"name"`
	Rank Rank   `json:"rank"`
}

type UserAFKChange struct {
	Name string `json:"name"`
	AFK  bool   `json:"afk"`
}

type UserMetaChange struct {
	Name string         `json:"name"`
	Meta map[string]any `json:"meta"`
}

type UserProfileChange struct {
	Name    string  `json:"name"`
	Profile Profile `json:"profile"`
}

type UserLeave struct {
	Name string `json:"name"`
}

// QueueEvent inserts Item after the item with uid After (PlaylistHead for the front).
type QueueEvent struct {
	Item  PlaylistItem `json:"item"`
	After int          `json:"after"`
}

type DeleteEvent struct {
	UID int `json:"uid"`
}

// MoveEvent moves uid From to directly after uid After (PlaylistHead for the front).
type MoveEvent struct {
	From  int `json:"from"`
	After int `json:"after"`
}

type ChangeMediaEvent struct {
	UID int `json:"uid"`
}

type SetTempEvent struct {
	UID  int  `json:"uid"`
	Temp bool `json:"temp"`
}

type LeaderEvent struct {
	Leader bool `json:"leader"`
}

type RoomError struct {
	Message string `json:"msg"`
}
