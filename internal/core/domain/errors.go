package domain

import "errors"

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrItemNotFound      = errors.New("playlist item not found")
	ErrDuplicateUID      = errors.New("duplicate playlist uid")
	ErrInsufficientRank  = errors.New("insufficient rank")
	ErrUnknownPermission = errors.New("unknown channel permission")
	ErrUnknownCooldown   = errors.New("unknown cooldown type")
	ErrDuplicateCooldown = errors.New("cooldown type already registered")
	ErrInvalidStrategy   = errors.New("invalid cooldown strategy")
	ErrCommandNotFound   = errors.New("command not found")
	ErrMissingIdentity   = errors.New("permission check without user identity")
	ErrNotConnected      = errors.New("room transport not connected")
	ErrHandshakeTimeout  = errors.New("room handshake timed out")
	ErrDisconnected      = errors.New("room transport disconnected")
	ErrMediaBlocked      = errors.New("media is blocked")
	ErrStoreUnavailable  = errors.New("store unavailable")
)
