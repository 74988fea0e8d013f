package domain

// OutcomeKind records how a permission check was satisfied.
type OutcomeKind string

const (
	OutcomeRanked OutcomeKind = "ranked"
	OutcomeHybrid OutcomeKind = "hybrid"
)

// PermissionOutcome is the first stage of a command gate. Matched is set for
// hybrid outcomes and holds one entry per requested capability.
type PermissionOutcome struct {
	Kind    OutcomeKind
	Rank    Rank
	Matched map[string]bool
}

// Channel permission names used by the bundled plugins.
const (
	PermPlaylistAdd    = "playlistadd"
	PermPlaylistNext   = "playlistnext"
	PermPlaylistDelete = "playlistdelete"
	PermPlaylistMove   = "playlistmove"
	PermPollCtl        = "pollctl"
	PermKick           = "kick"
	PermMute           = "mute"
)

// DefaultChannelPermissions is the rank table used until the room sends its own.
func DefaultChannelPermissions() map[string]Rank {
	return map[string]Rank{
		PermPlaylistAdd:    RankUser,
		PermPlaylistNext:   RankLeader,
		PermPlaylistDelete: RankModerator,
		PermPlaylistMove:   RankLeader,
		PermPollCtl:        RankModerator,
		PermKick:           RankModerator,
		PermMute:           RankModerator,
	}
}
