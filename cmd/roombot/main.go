package main

import (
	"errors"
	"fmt"
	"os"

	"roombot/internal/core/domain"
	apperrors "roombot/pkg/errors"
)

// Process exit codes. A supervisor restarts the bot on 2 and 3.
const (
	exitConfig     = 1
	exitDisconnect = 2
	exitHandshake  = 3
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, domain.ErrHandshakeTimeout):
		return exitHandshake
	case apperrors.IsCode(err, apperrors.ErrCodeTransport):
		return exitDisconnect
	default:
		return exitConfig
	}
}
