package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewUID returns a fresh 32-character hex identifier.
func NewUID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// UTC normalizes t for storage so stored timestamps compare correctly.
func UTC(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := UTC(*t)
	return &u
}
