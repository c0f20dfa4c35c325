package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantCode    string
		wantMessage string
	}{
		{
			name:        "nil error returns empty",
			err:         nil,
			wantCode:    "",
			wantMessage: "",
		},
		{
			name:        "unavailable input",
			err:         &InputError{Kind: InputUnavailable, Path: "sales.csv", Err: errors.New("no such file")},
			wantCode:    "IN001",
			wantMessage: "The input file is not available yet",
		},
		{
			name:        "corrupt input",
			err:         fmt.Errorf("read: %w", &InputError{Kind: InputCorrupt, Path: "sales.csv", Err: errors.New("bad quote")}),
			wantCode:    "IN002",
			wantMessage: "The input file could not be read as a table",
		},
		{
			name:        "missing columns listed",
			err:         &StructuralError{Missing: []string{"quantity", "status"}},
			wantCode:    "ST001",
			wantMessage: "Required columns are missing from the file: quantity, status",
		},
		{
			name:        "empty table",
			err:         &StructuralError{NoRows: true},
			wantCode:    "ST002",
			wantMessage: "The file has no data rows",
		},
		{
			name:        "persistence failure",
			err:         &PersistenceError{Op: "upsert clean", Err: errors.New("relation does not exist")},
			wantCode:    "DB001",
			wantMessage: "Rows could not be written to the database",
		},
		{
			name:        "connection refused beats persistence",
			err:         &PersistenceError{Op: "upsert clean", Err: errors.New("dial tcp: connection refused")},
			wantCode:    "DB002",
			wantMessage: "Unable to connect to database",
		},
		{
			name:        "deadline exceeded",
			err:         fmt.Errorf("upsert: %w", context.DeadlineExceeded),
			wantCode:    "DB003",
			wantMessage: "Operation timed out",
		},
		{
			name:        "deadlock",
			err:         errors.New("ERROR: DEADLOCK detected"),
			wantCode:    "DB004",
			wantMessage: "Database was busy with conflicting operations",
		},
		{
			name:        "too many runs",
			err:         ErrTooManyRuns,
			wantCode:    "RUN001",
			wantMessage: "Too many runs in progress",
		},
		{
			name:        "cancelled",
			err:         context.Canceled,
			wantCode:    "RUN002",
			wantMessage: "Request was cancelled",
		},
		{
			name:        "body too large",
			err:         errors.New("http: request body too large"),
			wantCode:    "RUN003",
			wantMessage: "File exceeds the maximum upload size",
		},
		{
			name:        "unknown error returns default",
			err:         errors.New("some random internal error"),
			wantCode:    "ERR000",
			wantMessage: "An unexpected error occurred",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("MapError() Code = %q, want %q", got.Code, tt.wantCode)
			}
			if got.Message != tt.wantMessage {
				t.Errorf("MapError() Message = %q, want %q", got.Message, tt.wantMessage)
			}
		})
	}
}

func TestMapError_DoesNotModifyShared(t *testing.T) {
	MapError(&StructuralError{Missing: []string{"quantity"}})
	got := MapError(&StructuralError{Missing: []string{"status"}})
	if strings.Contains(got.Message, "quantity") {
		t.Errorf("message leaked between calls: %q", got.Message)
	}
}

func TestFormatUserError(t *testing.T) {
	if got := FormatUserError(nil); got != "" {
		t.Errorf("FormatUserError(nil) = %q, want empty", got)
	}

	got := FormatUserError(ErrTooManyRuns)
	want := "Too many runs in progress (Code: RUN001). Please wait a moment and try again"
	if got != want {
		t.Errorf("FormatUserError() = %q, want %q", got, want)
	}
}

func TestInputError_Is(t *testing.T) {
	unavailable := &InputError{Kind: InputUnavailable, Path: "a.csv", Err: errors.New("missing")}
	if !errors.Is(unavailable, ErrInputUnavailable) || errors.Is(unavailable, ErrInputCorrupt) {
		t.Error("unavailable error matched the wrong sentinel")
	}

	corrupt := &InputError{Kind: InputCorrupt, Path: "a.csv", Err: errors.New("garbled")}
	if !errors.Is(corrupt, ErrInputCorrupt) || errors.Is(corrupt, ErrInputUnavailable) {
		t.Error("corrupt error matched the wrong sentinel")
	}

	if !strings.Contains(corrupt.Error(), "input corrupt: a.csv") {
		t.Errorf("Error() = %q", corrupt.Error())
	}
}
