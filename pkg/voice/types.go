// Package voice implements the Voice Store of spec.md §4.3: persistence
// for a user's recorded voice sample and its remote-slot binding, with
// allocation_status transitions guarded by a row lock.
package voice

import (
	"time"

	"github.com/google/uuid"

	"github.com/duskvoice/narrator/internal/db"
)

// Voice is the API-facing view of a db.Voice.
type Voice struct {
	VoiceID           uuid.UUID  `json:"voice_id"`
	UserID            uuid.UUID  `json:"user_id"`
	SampleBytes       int64      `json:"sample_bytes"`
	Provider          string     `json:"provider"`
	RemoteVoiceID     *string    `json:"remote_voice_id,omitempty"`
	AllocationStatus  string     `json:"allocation_status"`
	LastUsedAt        *time.Time `json:"last_used_at,omitempty"`
	AllocatedAt       *time.Time `json:"allocated_at,omitempty"`
	ErrorMessage      *string    `json:"error_message,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

func fromRow(v db.Voice) Voice {
	return Voice{
		VoiceID:          v.VoiceID,
		UserID:           v.UserID,
		SampleBytes:      v.SampleBytes,
		Provider:         v.Provider,
		RemoteVoiceID:    v.RemoteVoiceID,
		AllocationStatus: v.AllocationStatus,
		LastUsedAt:       v.LastUsedAt,
		AllocatedAt:      v.AllocatedAt,
		ErrorMessage:     v.ErrorMessage,
		CreatedAt:        v.CreatedAt,
		UpdatedAt:        v.UpdatedAt,
	}
}

// ValidProviders lists the allowed Voice.Provider values, per spec.md §3.
var ValidProviders = map[string]bool{
	db.ProviderA: true,
	db.ProviderB: true,
}

// legalTransitions enumerates allowed allocation_status transitions. Any
// pair not listed here fails with ErrInvalidState.
var legalTransitions = map[string]map[string]bool{
	db.VoiceStatusRecorded: {
		db.VoiceStatusAllocating: true,
	},
	db.VoiceStatusAllocating: {
		db.VoiceStatusReady: true,
		db.VoiceStatusError: true,
		db.VoiceStatusRecorded: true, // drift repair before a ready transition ever lands
	},
	db.VoiceStatusReady: {
		db.VoiceStatusCooling: true,
		db.VoiceStatusEvicted: true,
		db.VoiceStatusRecorded: true, // drift repair
	},
	db.VoiceStatusCooling: {
		db.VoiceStatusReady:   true, // re-used before eviction
		db.VoiceStatusEvicted: true,
		db.VoiceStatusRecorded: true, // drift repair
	},
	db.VoiceStatusEvicted: {
		db.VoiceStatusAllocating: true,
		db.VoiceStatusRecorded:   true,
	},
	db.VoiceStatusError: {
		db.VoiceStatusRecorded: true, // manual/operator recovery
	},
}

// CanTransition reports whether from -> to is a legal allocation_status
// transition (or a same-state no-op).
func CanTransition(from, to string) bool {
	if from == to {
		return true
	}
	return legalTransitions[from][to]
}
