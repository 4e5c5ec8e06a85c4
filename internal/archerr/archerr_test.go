package archerr

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassOf(t *testing.T) {
	tests := []struct {
		err  error
		want Class
	}{
		{fmt.Errorf("acl: %w", ErrUnknownPackage), ClassNotFound},
		{fmt.Errorf("acl/9.9: %w", ErrUnknownVersion), ClassNotFound},
		{fmt.Errorf("acl/1.0/x: %w", ErrNotFound), ClassNotFound},
		{fmt.Errorf("acl/1.0/vendor: %w", ErrSymlinkDenied), ClassForbidden},
		{fmt.Errorf("deadbeef: %w", ErrInvalidChecksum), ClassBadRequest},
		{fmt.Errorf("../etc: %w", ErrInvalidAddress), ClassBadRequest},
		{fmt.Errorf("query: %w", ErrRegistryUnavailable), ClassUnavailable},
		{errors.New("boom"), ClassInternal},
	}

	for _, tt := range tests {
		if got := ClassOf(tt.err); got != tt.want {
			t.Errorf("ClassOf(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestSymlinkNeverClassifiedAsNotFound(t *testing.T) {
	// An error chain carrying both kinds must surface as forbidden.
	err := fmt.Errorf("%w: %w", ErrNotFound, ErrSymlinkDenied)
	if got := ClassOf(err); got != ClassForbidden {
		t.Errorf("ClassOf = %v, want forbidden", got)
	}
	if got := Kind(err); got != "symlink_denied" {
		t.Errorf("Kind = %q, want symlink_denied", got)
	}
}

func TestRetryable(t *testing.T) {
	if !Retryable(fmt.Errorf("ping: %w", ErrRegistryUnavailable)) {
		t.Error("registry outage should be retryable")
	}
	for _, err := range []error{ErrUnknownPackage, ErrUnknownVersion, ErrNotFound, ErrSymlinkDenied, ErrInvalidChecksum} {
		if Retryable(err) {
			t.Errorf("%v should not be retryable", err)
		}
	}
}
