package main

import (
	"errors"

	"github.com/JonMunkholm/salesload/internal/core"
)

// Exit codes follow sysexits.h.
const (
	exitOK       = 0
	exitFailure  = 1
	exitDataErr  = 65 // EX_DATAERR: corrupt input or structural failure
	exitIOErr    = 74 // EX_IOERR: persistence failure
	exitTempFail = 75 // EX_TEMPFAIL: input not available yet
)

// exitCode maps a command error to the process exit status.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, core.ErrInputUnavailable):
		return exitTempFail
	case errors.Is(err, core.ErrInputCorrupt), errors.Is(err, core.ErrStructural):
		return exitDataErr
	case errors.Is(err, core.ErrPersistence):
		return exitIOErr
	default:
		return exitFailure
	}
}

// userMessage renders err for the terminal. Pipeline errors get their
// support code; usage and setup errors are shown as they are.
func userMessage(err error) string {
	if exitCode(err) == exitFailure {
		return err.Error()
	}
	return core.FormatUserError(err) + " [" + err.Error() + "]"
}
