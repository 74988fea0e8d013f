// Package plugins holds the commands bundled with the bot.
package plugins

import (
	"time"

	"roombot/internal/core/services"
)

// Options tunes the bundled plugins.
type Options struct {
	QueueRetryAttempts int
	QueueRetryDelay    time.Duration
}

// Builtin returns every bundled plugin in load order.
func Builtin(opts Options) []services.Plugin {
	return []services.Plugin{
		NewHelp(),
		NewDice(),
		NewMute(),
		NewQueue(opts.QueueRetryAttempts, opts.QueueRetryDelay),
	}
}
