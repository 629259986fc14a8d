// Package domain contains entities without logic, just meta-data.
package domain

import (
	"errors"
)

const MaxDisplayNameLen = 36

var (
	ErrNameTooLong = errors.New("display name too long")
	ErrNameEmpty   = errors.New("display name empty")
)

// Caller is the opaque identity a participant presents at connect time.
// Authentication happens upstream; the core only carries the string.
type Caller struct {
	DisplayName string `json:"display_name"`
}

// NewCaller is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewCaller(displayName string) (*Caller, error) {
	if len(displayName) == 0 {
		return nil, ErrNameEmpty
	}
	if len(displayName) > MaxDisplayNameLen {
		return nil, ErrNameTooLong
	}
	return &Caller{DisplayName: displayName}, nil
}
