package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestIsMatchesThroughWrapping(t *testing.T) {
	cause := fmt.Errorf("pq: duplicate key value")
	err := ErrConflict.With(cause)

	if !errors.Is(err, ErrConflict) {
		t.Error("wrapped error does not match its sentinel")
	}
	if errors.Is(err, ErrCardNotFound) {
		t.Error("wrapped error matches a different sentinel")
	}
	if !errors.Is(err, cause) {
		t.Error("cause lost by With")
	}
}

func TestAs(t *testing.T) {
	err := fmt.Errorf("loading card: %w", ErrAccessDenied)

	appErr, ok := As(err)
	if !ok {
		t.Fatal("As failed on a wrapped domain error")
	}
	if appErr.Status != http.StatusForbidden {
		t.Errorf("status = %d, want 403", appErr.Status)
	}

	if _, ok := As(fmt.Errorf("plain error")); ok {
		t.Error("As matched a non-domain error")
	}
}
