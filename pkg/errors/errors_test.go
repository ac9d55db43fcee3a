package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestAppErrorMessageFormatting(t *testing.T) {
	base := New("TEST", "something broke", http.StatusBadRequest)
	if base.Error() != "something broke" {
		t.Fatalf("unexpected message: %q", base.Error())
	}

	wrapped := base.WithInternal(errors.New("db down"))
	if wrapped.Error() != "something broke: db down" {
		t.Fatalf("unexpected wrapped message: %q", wrapped.Error())
	}

	// the original must stay untouched
	if base.Internal != nil {
		t.Fatal("WithInternal mutated the receiver")
	}
}

func TestFromErrorPassesThroughAppErrors(t *testing.T) {
	err := fmt.Errorf("outer: %w", ErrForbidden)

	appErr := FromError(err)
	if appErr != ErrForbidden {
		t.Fatalf("expected ErrForbidden, got %+v", appErr)
	}
}

func TestFromErrorDefaultsToInternal(t *testing.T) {
	appErr := FromError(errors.New("boom"))
	if appErr.Code != ErrInternalServer.Code {
		t.Fatalf("expected internal error code, got %q", appErr.Code)
	}
	if appErr.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", appErr.StatusCode)
	}
	if appErr.Internal == nil {
		t.Fatal("expected the cause to be retained")
	}
}

func TestWithDataDoesNotMutateSentinel(t *testing.T) {
	detailed := ErrForbidden.WithData([]string{"TEAMMEMBERS_UPDATE"})

	if detailed.Data == nil {
		t.Fatal("expected data on copy")
	}
	if ErrForbidden.Data != nil {
		t.Fatal("sentinel error was mutated")
	}
	if detailed.StatusCode != http.StatusForbidden {
		t.Fatalf("status changed: %d", detailed.StatusCode)
	}
}

func TestNewRateLimitedCarriesRetryHint(t *testing.T) {
	err := NewRateLimited("try later", 4)
	if err.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", err.StatusCode)
	}

	data, ok := err.Data.(map[string]int)
	if !ok || data["minutesLeft"] != 4 {
		t.Fatalf("expected minutesLeft=4, got %+v", err.Data)
	}
}
