package storage

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "with key",
			err:  NotFoundError("download", "albums/a1/photos/p1/original/img.jpg"),
			want: `storage: download "albums/a1/photos/p1/original/img.jpg": object not found (not_found)`,
		},
		{
			name: "with wrapped cause",
			err:  TransientError("upload", "k", errors.New("connection reset")),
			want: `storage: upload "k": connection reset (transient)`,
		},
		{
			name: "without key",
			err:  &Error{Kind: KindTerminal, Op: "list", Message: "bad prefix"},
			want: `storage: list: bad prefix (terminal)`,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.err.Error(); got != tc.want {
				t.Errorf("Error() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := TransientError("copy", "k", cause)
	if !errors.Is(err, cause) {
		t.Error("errors.Is should see the wrapped cause")
	}

	var se *Error
	wrapped := fmt.Errorf("outer: %w", err)
	if !errors.As(wrapped, &se) {
		t.Fatal("errors.As should find *Error through wrapping")
	}
	if se.Kind != KindTransient {
		t.Errorf("Kind = %v, want %v", se.Kind, KindTransient)
	}
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		isNotFound  bool
		isTransient bool
		isTerminal  bool
	}{
		{
			name:       "not found",
			err:        NotFoundError("metadata", "k"),
			isNotFound: true,
		},
		{
			name:        "transient",
			err:         TransientError("upload", "k", errors.New("503")),
			isTransient: true,
		},
		{
			name:       "terminal",
			err:        TerminalError("upload", "k", errors.New("denied")),
			isTerminal: true,
		},
		{
			name:       "wrapped not found",
			err:        fmt.Errorf("scan: %w", NotFoundError("metadata", "k")),
			isNotFound: true,
		},
		{
			name:       "plain error defaults to terminal",
			err:        errors.New("unclassified"),
			isTerminal: true,
		},
		{
			name: "nil error",
			err:  nil,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsNotFound(tc.err); got != tc.isNotFound {
				t.Errorf("IsNotFound = %v, want %v", got, tc.isNotFound)
			}
			if got := IsTransient(tc.err); got != tc.isTransient {
				t.Errorf("IsTransient = %v, want %v", got, tc.isTransient)
			}
			if got := IsTerminal(tc.err); got != tc.isTerminal {
				t.Errorf("IsTerminal = %v, want %v", got, tc.isTerminal)
			}
		})
	}
}

func TestErrorRetryable(t *testing.T) {
	if !TransientError("op", "k", nil).Retryable() {
		t.Error("transient errors should be retryable")
	}
	if TerminalError("op", "k", nil).Retryable() {
		t.Error("terminal errors should not be retryable")
	}
	if NotFoundError("op", "k").Retryable() {
		t.Error("not-found errors should not be retryable")
	}
}

func TestErrorKindString(t *testing.T) {
	tests := []struct {
		kind ErrorKind
		want string
	}{
		{KindTransient, "transient"},
		{KindTerminal, "terminal"},
		{KindNotFound, "not_found"},
		{ErrorKind(99), "kind(99)"},
	}
	for _, tc := range tests {
		if got := tc.kind.String(); got != tc.want {
			t.Errorf("ErrorKind(%d).String() = %q, want %q", tc.kind, got, tc.want)
		}
	}
}
