package domain

import (
	"errors"
	"strings"
	"testing"
)

func TestNewCaller(t *testing.T) {
	c, err := NewCaller("alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.DisplayName != "alice" {
		t.Fatalf("got %q", c.DisplayName)
	}

	if _, err := NewCaller(""); !errors.Is(err, ErrNameEmpty) {
		t.Fatalf("expected ErrNameEmpty, got %v", err)
	}
	if _, err := NewCaller(strings.Repeat("x", MaxDisplayNameLen+1)); !errors.Is(err, ErrNameTooLong) {
		t.Fatalf("expected ErrNameTooLong, got %v", err)
	}
}
