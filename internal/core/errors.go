package core

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinels for errors.Is. The typed errors below match them.
var (
	ErrInputUnavailable  = errors.New("input unavailable")
	ErrInputCorrupt      = errors.New("input corrupt")
	ErrStructural        = errors.New("structural validation failed")
	ErrPersistence       = errors.New("persistence failed")
	ErrContractViolation = errors.New("contract violation")
)

// InputKind distinguishes retryable from unrecoverable input errors.
type InputKind int

const (
	// InputUnavailable means the source is not there yet; retry later.
	InputUnavailable InputKind = iota + 1
	// InputCorrupt means the bytes exist but are not a readable table.
	InputCorrupt
)

func (k InputKind) String() string {
	switch k {
	case InputUnavailable:
		return "unavailable"
	case InputCorrupt:
		return "corrupt"
	default:
		return "unknown"
	}
}

// InputError is returned by readers.
type InputError struct {
	Kind InputKind
	Path string
	Err  error
}

func (e *InputError) Error() string {
	return fmt.Sprintf("input %s: %s: %v", e.Kind, e.Path, e.Err)
}

func (e *InputError) Unwrap() error { return e.Err }

// Is matches ErrInputUnavailable or ErrInputCorrupt by kind.
func (e *InputError) Is(target error) bool {
	switch target {
	case ErrInputUnavailable:
		return e.Kind == InputUnavailable
	case ErrInputCorrupt:
		return e.Kind == InputCorrupt
	}
	return false
}

// StructuralError reports every structural problem found in a table.
type StructuralError struct {
	Missing []string // Required columns absent from the input, in contract order
	NoRows  bool
}

func (e *StructuralError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing required columns: "+strings.Join(e.Missing, ", "))
	}
	if e.NoRows {
		parts = append(parts, "table has no rows")
	}
	return "structural validation failed: " + strings.Join(parts, "; ")
}

func (e *StructuralError) Is(target error) bool { return target == ErrStructural }

// PersistenceError wraps a store failure. The core never retries writes.
type PersistenceError struct {
	Op  string // "upsert clean" or "append rejected"
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failed during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }
