package core

// error_messages.go maps technical errors to user-facing messages with a
// code for support reference.
//
// # Input Errors (IN001-IN099)
//
//	IN001 - Input not available: the source file has not been delivered yet
//	        Action: Retry once the upstream delivery completes
//	IN002 - Input unreadable: the file exists but is not a readable table
//	        Action: Re-export the file as CSV (UTF-8) or XLSX
//
// # Structural Errors (ST001-ST099)
//
//	ST001 - Missing columns: required columns are absent from the header
//	        Action: Add the listed columns and rerun
//	ST002 - Empty table: the file has a header but no data rows
//	        Action: Check the export produced data
//
// # Database Errors (DB001-DB099)
//
//	DB001 - Persistence failed: rows could not be written
//	DB002 - Connection refused: unable to connect to database
//	DB003 - Timeout: operation timed out
//	DB004 - Deadlock: database was busy with conflicting operations
//
// # Run Errors (RUN001-RUN099)
//
//	RUN001 - System busy: too many runs in progress
//	RUN002 - Request cancelled
//	RUN003 - File too large
//
// # Default Error (ERR000)
//
// Typed errors are matched with errors.Is first. Anything else falls back
// to case-insensitive substring patterns; the first match wins.

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

var (
	msgUnavailable = UserMessage{
		Message: "The input file is not available yet",
		Action:  "Retry once the upstream delivery completes",
		Code:    "IN001",
	}
	msgCorrupt = UserMessage{
		Message: "The input file could not be read as a table",
		Action:  "Re-export the file as CSV (UTF-8) or XLSX",
		Code:    "IN002",
	}
	msgMissingColumns = UserMessage{
		Message: "Required columns are missing from the file",
		Action:  "Add the missing columns and rerun",
		Code:    "ST001",
	}
	msgEmptyTable = UserMessage{
		Message: "The file has no data rows",
		Action:  "Check that the export produced data",
		Code:    "ST002",
	}
	msgPersistence = UserMessage{
		Message: "Rows could not be written to the database",
		Action:  "Check database health and rerun; reruns are safe",
		Code:    "DB001",
	}
	msgBusy = UserMessage{
		Message: "Too many runs in progress",
		Action:  "Please wait a moment and try again",
		Code:    "RUN001",
	}
	msgCancelled = UserMessage{
		Message: "Request was cancelled",
		Action:  "Please try again",
		Code:    "RUN002",
	}
	msgTimeout = UserMessage{
		Message: "Operation timed out",
		Action:  "Try a smaller file or try again later",
		Code:    "DB003",
	}
)

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns apply to untyped errors. Specific patterns come first.
var errorPatterns = []errorPattern{
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Please try again in a few moments",
			Code:    "DB002",
		},
	},
	{pattern: "timeout", msg: msgTimeout},
	{
		pattern: "deadlock",
		msg: UserMessage{
			Message: "Database was busy with conflicting operations",
			Action:  "Please try again",
			Code:    "DB004",
		},
	},
	{pattern: "too many concurrent runs", msg: msgBusy},
	{
		pattern: "request body too large",
		msg: UserMessage{
			Message: "File exceeds the maximum upload size",
			Action:  "Split the file into smaller parts",
			Code:    "RUN003",
		},
	},
}

// defaultMessage is returned when no pattern matches.
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// Returns an empty UserMessage for a nil error.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	var se *StructuralError
	switch {
	case errors.Is(err, ErrInputUnavailable):
		return msgUnavailable
	case errors.Is(err, ErrInputCorrupt):
		return msgCorrupt
	case errors.As(err, &se):
		if len(se.Missing) > 0 {
			m := msgMissingColumns
			m.Message = fmt.Sprintf("%s: %s", m.Message, strings.Join(se.Missing, ", "))
			return m
		}
		return msgEmptyTable
	case errors.Is(err, ErrTooManyRuns):
		return msgBusy
	case errors.Is(err, context.Canceled):
		return msgCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return msgTimeout
	}

	errLower := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errLower, ep.pattern) {
			return ep.msg
		}
	}

	if errors.Is(err, ErrPersistence) {
		return msgPersistence
	}
	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}
