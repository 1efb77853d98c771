package validation

import (
	"errors"
	"fmt"
	"testing"
)

var errSentinel = errors.New("too few widgets")

func TestErrorf(t *testing.T) {
	err := Errorf("count", errSentinel, "got %d, want %d", 1, 3)

	if !errors.Is(err, errSentinel) {
		t.Errorf("errors.Is(%v, errSentinel) = false", err)
	}
	if !Is(err) {
		t.Error("Is() = false for validation error")
	}

	want := "count: invalid input: too few widgets: got 1, want 3"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	// Survives further wrapping
	wrapped := fmt.Errorf("outer: %w", err)
	if !Is(wrapped) || !errors.Is(wrapped, errSentinel) {
		t.Errorf("wrapped error lost its identity: %v", wrapped)
	}
}

func TestIs_OtherErrors(t *testing.T) {
	if Is(errSentinel) {
		t.Error("plain sentinel should not be a validation error")
	}
	if Is(nil) {
		t.Error("nil should not be a validation error")
	}
}
