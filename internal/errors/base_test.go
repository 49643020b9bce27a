package errors

import (
	"testing"

	"livetrade/pkg/exception"
)

func TestWrap(t *testing.T) {
	err := Wrap(errWrapped, "Hello, Wrapped!")
	if err.Error() != "Hello, Wrapped!, err: wrapped error" {
		t.Fatalf("error mismatch: %+v", err)
	}
}

func TestWrapNil(t *testing.T) {
	if err := Wrap(nil, "ignored"); err != nil {
		t.Fatalf("wrap nil should be nil, got %+v", err)
	}
	if err := Wrapf(nil, "ignored %d", 1); err != nil {
		t.Fatalf("wrapf nil should be nil, got %+v", err)
	}
}

func TestWrapKeepsClass(t *testing.T) {
	err := Wrapf(exception.ErrSessionNotFound, "process tick %s", "abc")
	if !Is(err, exception.ErrSessionNotFound) {
		t.Fatalf("should match session not found: %+v", err)
	}
	if !Is(err, exception.ErrNotFound) {
		t.Fatalf("should match not found class: %+v", err)
	}
	if Is(err, exception.ErrValidation) {
		t.Fatalf("should not match validation class: %+v", err)
	}
}
