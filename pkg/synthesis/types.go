// Package synthesis implements the Synthesis Orchestrator of spec.md
// §4.7: the handshake that debits credits, ensures a voice is allocated,
// dispatches background synthesis, and reports queued/allocating/
// processing/ready state back to callers. start_synthesis is idempotent
// per (user_id, voice_id, story_id); at most one debit and one in-flight
// job result from any number of repeated calls.
package synthesis

import (
	"time"

	"github.com/google/uuid"

	"github.com/duskvoice/narrator/internal/db"
)

// StartResult kinds, returned by StartSynthesis.
const (
	StartAlreadyReady      = "already_ready"
	StartAlreadyProcessing = "already_processing"
	StartProcessing        = "processing"
	StartAllocatingVoice   = "allocating_voice"
	StartQueuedForSlot     = "queued_for_slot"
	StartPaymentRequired   = "payment_required"
	StartVoiceUnavailable  = "voice_unavailable"
)

// StartResult describes the outcome of StartSynthesis. Only the fields
// relevant to Kind are populated.
type StartResult struct {
	Kind          string
	JobID         *uuid.UUID
	ArtifactURL   *string
	QueuePosition *int
	QueueLength   *int
	Required      *int64
	Available     *int64
	Reason        string
}

// Job is the API-facing view of a db.SynthesisJob.
type Job struct {
	JobID          uuid.UUID `json:"job_id"`
	UserID         uuid.UUID `json:"user_id"`
	VoiceID        uuid.UUID `json:"voice_id"`
	StoryID        string    `json:"story_id"`
	Status         string    `json:"status"`
	CreditsCharged int64     `json:"credits_charged"`
	ErrorMessage   *string   `json:"error_message,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func fromRow(j db.SynthesisJob) Job {
	return Job{
		JobID:          j.JobID,
		UserID:         j.UserID,
		VoiceID:        j.VoiceID,
		StoryID:        j.StoryID,
		Status:         j.Status,
		CreditsCharged: j.CreditsCharged,
		ErrorMessage:   j.ErrorMessage,
		CreatedAt:      j.CreatedAt,
		UpdatedAt:      j.UpdatedAt,
	}
}
