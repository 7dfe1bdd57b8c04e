package repository

import (
	"errors"
	"time"
)

const (
	sessionTTL   = 30 * 24 * time.Hour
	tombstoneTTL = 24 * time.Hour
)

// ErrVersionConflict is returned by Put when the stored session changed
// since it was read, or was reset in the meantime.
var ErrVersionConflict = errors.New("repository: session version conflict")
