// Package clockid provides the Clock and ID generation seams the rest of
// narrator depends on instead of calling time.Now/uuid.New directly, so
// ledger and slot-manager tests can fix time and IDs deterministically.
package clockid

import (
	"time"

	"github.com/google/uuid"
)

// Clock abstracts the wall clock.
type Clock interface {
	Now() time.Time
}

// RealClock returns the actual system time.
type RealClock struct{}

// Now returns time.Now() in UTC.
func (RealClock) Now() time.Time { return time.Now().UTC() }

// IDGenerator abstracts UUID generation.
type IDGenerator interface {
	NewID() uuid.UUID
}

// RealIDGenerator generates random v4 UUIDs.
type RealIDGenerator struct{}

// NewID returns a new random UUID.
func (RealIDGenerator) NewID() uuid.UUID { return uuid.New() }
