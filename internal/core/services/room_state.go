package services

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"roombot/internal/core/domain"
)

// noItem marks an unset current/previous playlist position.
const noItem = -1

// RoomSnapshot is a consistent copy of the mirror taken under one lock.
type RoomSnapshot struct {
	BotName     string                 `json:"bot_name"`
	Users       []domain.User          `json:"users"`
	Playlist    []domain.PlaylistItem  `json:"playlist"`
	Current     int                    `json:"current"`
	Previous    int                    `json:"previous"`
	Permissions map[string]domain.Rank `json:"permissions"`
	Options     map[string]any         `json:"options"`
	Leader      bool                   `json:"leader"`
	Muted       bool                   `json:"muted"`
	Bans        int                    `json:"bans"`
}

// RoomState mirrors the authoritative room. The transport's event router is
// its only writer; handlers and the dashboard read copies.
type RoomState struct {
	mu sync.RWMutex

	botName     string
	users       map[string]*domain.User
	playlist    []domain.PlaylistItem
	current     int
	previous    int
	permissions map[string]domain.Rank
	options     map[string]any
	banlist     []domain.Ban
	leader      bool
	muted       bool

	logger *zap.SugaredLogger
	now    func() time.Time
}

func NewRoomState(botName string, logger *zap.SugaredLogger) *RoomState {
	return &RoomState{
		botName:     botName,
		users:       make(map[string]*domain.User),
		current:     noItem,
		previous:    noItem,
		permissions: domain.DefaultChannelPermissions(),
		options:     make(map[string]any),
		logger:      logger,
		now:         time.Now,
	}
}

func (s *RoomState) BotName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.botName
}

// SetBotName records the name the room actually assigned at login.
func (s *RoomState) SetBotName(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.botName = name
}

// Users

func (s *RoomState) SetUserlist(users []domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.users = make(map[string]*domain.User, len(users))
	now := s.now()
	for i := range users {
		u := users[i]
		if u.JoinedAt.IsZero() {
			u.JoinedAt = now
		}
		s.users[domain.UserKey(u.Name)] = u.Clone()
	}
}

// AddUser inserts a user or replaces an existing entry with the same name.
func (s *RoomState) AddUser(user domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.JoinedAt.IsZero() {
		user.JoinedAt = s.now()
	}
	s.users[domain.UserKey(user.Name)] = user.Clone()
}

func (s *RoomState) RemoveUser(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := domain.UserKey(name)
	if _, ok := s.users[key]; !ok {
		return fmt.Errorf("remove %q: %w", name, domain.ErrUserNotFound)
	}
	delete(s.users, key)
	return nil
}

func (s *RoomState) SetUserRank(name string, rank domain.Rank) error {
	return s.updateUser(name, func(u *domain.User) { u.Rank = rank })
}

func (s *RoomState) SetUserAFK(name string, afk bool) error {
	return s.updateUser(name, func(u *domain.User) { u.AFK = afk })
}

// SetUserMeta replaces a user's metadata. The well-known "afk" and "muted"
// keys are mirrored onto the typed flags.
func (s *RoomState) SetUserMeta(name string, meta map[string]any) error {
	return s.updateUser(name, func(u *domain.User) {
		u.Meta = make(map[string]any, len(meta))
		for k, v := range meta {
			u.Meta[k] = v
		}
		if afk, ok := meta["afk"].(bool); ok {
			u.AFK = afk
		}
		if muted, ok := meta["muted"].(bool); ok {
			u.Muted = muted
		}
	})
}

func (s *RoomState) SetUserProfile(name string, profile domain.Profile) error {
	return s.updateUser(name, func(u *domain.User) { u.Profile = profile })
}

func (s *RoomState) updateUser(name string, apply func(*domain.User)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[domain.UserKey(name)]
	if !ok {
		return fmt.Errorf("update %q: %w", name, domain.ErrUserNotFound)
	}
	apply(u)
	return nil
}

func (s *RoomState) User(name string) (*domain.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[domain.UserKey(name)]
	if !ok {
		return nil, false
	}
	return u.Clone(), true
}

// Rank returns the user's rank, or RankGuest for users not in the room.
func (s *RoomState) Rank(name string) domain.Rank {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if u, ok := s.users[domain.UserKey(name)]; ok {
		return u.Rank
	}
	return domain.RankGuest
}

// Users returns the userlist ordered by rank (highest first), then name.
func (s *RoomState) Users() []domain.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.usersLocked()
}

func (s *RoomState) usersLocked() []domain.User {
	out := make([]domain.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, *u.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Rank != out[j].Rank {
			return out[i].Rank > out[j].Rank
		}
		return domain.UserKey(out[i].Name) < domain.UserKey(out[j].Name)
	})
	return out
}

// Playlist

// SetPlaylist replaces the playlist. A snapshot with duplicate uids is
// rejected and the previous playlist is kept.
func (s *RoomState) SetPlaylist(items []domain.PlaylistItem) error {
	seen := make(map[int]struct{}, len(items))
	for _, it := range items {
		if _, dup := seen[it.UID]; dup {
			return fmt.Errorf("playlist snapshot uid %d: %w", it.UID, domain.ErrDuplicateUID)
		}
		seen[it.UID] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.playlist = append(make([]domain.PlaylistItem, 0, len(items)), items...)
	return nil
}

// InsertItem places item directly after the item with uid after, or at the
// front for PlaylistHead. An unknown after uid appends to the end.
func (s *RoomState) InsertItem(item domain.PlaylistItem, after int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexLocked(item.UID) >= 0 {
		return fmt.Errorf("insert uid %d: %w", item.UID, domain.ErrDuplicateUID)
	}

	pos := 0
	if after != domain.PlaylistHead {
		idx := s.indexLocked(after)
		if idx < 0 {
			s.logger.Warnw("Queue position not in playlist, appending",
				"uid", item.UID,
				"after", after,
			)
			idx = len(s.playlist) - 1
		}
		pos = idx + 1
	}
	s.playlist = insertAt(s.playlist, pos, item)
	return nil
}

func (s *RoomState) DeleteItem(uid int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexLocked(uid)
	if idx < 0 {
		return fmt.Errorf("delete uid %d: %w", uid, domain.ErrItemNotFound)
	}
	s.playlist = append(s.playlist[:idx], s.playlist[idx+1:]...)
	return nil
}

// MoveItem moves uid from to directly after uid after (PlaylistHead for the
// front). Untouched items keep their relative order. Unknown uids leave the
// playlist unchanged.
func (s *RoomState) MoveItem(from, after int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	src := s.indexLocked(from)
	if src < 0 {
		return fmt.Errorf("move uid %d: %w", from, domain.ErrItemNotFound)
	}
	if after != domain.PlaylistHead && s.indexLocked(after) < 0 {
		return fmt.Errorf("move after uid %d: %w", after, domain.ErrItemNotFound)
	}
	if from == after {
		return nil
	}

	item := s.playlist[src]
	rest := append(s.playlist[:src:src], s.playlist[src+1:]...)

	pos := 0
	if after != domain.PlaylistHead {
		for i, it := range rest {
			if it.UID == after {
				pos = i + 1
				break
			}
		}
	}
	s.playlist = insertAt(rest, pos, item)
	return nil
}

// SetCurrent records the now-playing uid and remembers the one it replaced.
func (s *RoomState) SetCurrent(uid int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if uid == s.current {
		return
	}
	s.previous = s.current
	s.current = uid
}

// Current returns the playing and previously playing uids; -1 means none.
func (s *RoomState) Current() (current, previous int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, s.previous
}

func (s *RoomState) SetTemp(uid int, temp bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexLocked(uid)
	if idx < 0 {
		return fmt.Errorf("set temp uid %d: %w", uid, domain.ErrItemNotFound)
	}
	s.playlist[idx].Temp = temp
	return nil
}

func (s *RoomState) Playlist() []domain.PlaylistItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.PlaylistItem(nil), s.playlist...)
}

func (s *RoomState) Item(uid int) (domain.PlaylistItem, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := s.indexLocked(uid)
	if idx < 0 {
		return domain.PlaylistItem{}, false
	}
	return s.playlist[idx], true
}

func (s *RoomState) indexLocked(uid int) int {
	for i, it := range s.playlist {
		if it.UID == uid {
			return i
		}
	}
	return -1
}

func insertAt(items []domain.PlaylistItem, pos int, item domain.PlaylistItem) []domain.PlaylistItem {
	items = append(items, domain.PlaylistItem{})
	copy(items[pos+1:], items[pos:])
	items[pos] = item
	return items
}

// Channel

// SetPermissions replaces the channel permission table.
func (s *RoomState) SetPermissions(perms map[string]domain.Rank) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.permissions = make(map[string]domain.Rank, len(perms))
	for k, v := range perms {
		s.permissions[k] = v
	}
}

func (s *RoomState) Permission(name string) (domain.Rank, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.permissions[name]
	return r, ok
}

func (s *RoomState) SetOptions(opts map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.options = make(map[string]any, len(opts))
	for k, v := range opts {
		s.options[k] = v
	}
}

func (s *RoomState) Options() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyOptions(s.options)
}

func copyOptions(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (s *RoomState) SetBanlist(bans []domain.Ban) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.banlist = append([]domain.Ban(nil), bans...)
}

func (s *RoomState) Banlist() []domain.Ban {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Ban(nil), s.banlist...)
}

func (s *RoomState) SetLeader(leader bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leader = leader
}

func (s *RoomState) Leader() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.leader
}

// SetMuted toggles the bot's own public-chat mute.
func (s *RoomState) SetMuted(muted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.muted = muted
}

func (s *RoomState) Muted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.muted
}

func (s *RoomState) Snapshot() RoomSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	perms := make(map[string]domain.Rank, len(s.permissions))
	for k, v := range s.permissions {
		perms[k] = v
	}
	return RoomSnapshot{
		BotName:     s.botName,
		Users:       s.usersLocked(),
		Playlist:    append([]domain.PlaylistItem(nil), s.playlist...),
		Current:     s.current,
		Previous:    s.previous,
		Permissions: perms,
		Options:     copyOptions(s.options),
		Leader:      s.leader,
		Muted:       s.muted,
		Bans:        len(s.banlist),
	}
}
