package db

import (
	"encoding/json"
	"net/netip"
	"time"

	"github.com/google/uuid"
)

// User is the cached-balance identity row of §3.
type User struct {
	UserID               uuid.UUID
	CreditsBalanceCached int64
	UpdatedAt            time.Time
}

// Credit lot sources, per §3.
const (
	SourceEvent    = "event"
	SourceMonthly  = "monthly"
	SourceReferral = "referral"
	SourceAddOn    = "add_on"
	SourceFree     = "free"
)

// CreditLot is a pool of credits from one source with one expiration.
type CreditLot struct {
	LotID          uuid.UUID
	UserID         uuid.UUID
	Source         string
	AmountGranted  int64
	AmountRemaining int64
	ExpiresAt      *time.Time
	CreatedAt      time.Time
}

// Credit transaction kinds and statuses, per §3.
const (
	TxKindDebit  = "debit"
	TxKindCredit = "credit"
	TxKindRefund = "refund"
	TxKindExpire = "expire"

	TxStatusApplied  = "applied"
	TxStatusRefunded = "refunded"
)

// CreditTransaction is a ledger row.
type CreditTransaction struct {
	TxID      uuid.UUID
	UserID    uuid.UUID
	Amount    int64
	Kind      string
	Status    string
	Reason    string
	JobID     *uuid.UUID
	StoryID   *string
	Metadata  json.RawMessage
	CreatedAt time.Time
}

// CreditAllocation maps a transaction to the lots it touched.
type CreditAllocation struct {
	TxID   uuid.UUID
	LotID  uuid.UUID
	Amount int64
}

// Voice allocation statuses, per §3.
const (
	VoiceStatusRecorded  = "recorded"
	VoiceStatusAllocating = "allocating"
	VoiceStatusReady     = "ready"
	VoiceStatusCooling   = "cooling"
	VoiceStatusEvicted   = "evicted"
	VoiceStatusError     = "error"
)

// TTS providers, per §3.
const (
	ProviderA = "A"
	ProviderB = "B"
)

// Voice is a user's recorded voice sample and its remote-slot binding.
type Voice struct {
	VoiceID             uuid.UUID
	UserID               uuid.UUID
	SampleBlobKey        string
	SampleBytes          int64
	Provider             string
	RemoteVoiceID        *string
	AllocationStatus     string
	LastUsedAt           *time.Time
	AllocatedAt          *time.Time
	SlotLockExpiresAt    *time.Time
	ErrorMessage         *string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Slot event types, per §3.
const (
	EventQueued              = "queued"
	EventAllocationStarted   = "allocation_started"
	EventAllocationCompleted = "allocation_completed"
	EventAllocationFailed    = "allocation_failed"
	EventEvicted             = "evicted"
	EventLockReleased        = "lock_released"
	EventDriftRepaired       = "drift_repaired"
)

// SlotEvent is an audit log entry for voice-slot lifecycle transitions.
type SlotEvent struct {
	EventID   uuid.UUID
	VoiceID   uuid.UUID
	UserID    uuid.UUID
	EventType string
	Reason    string
	Metadata  json.RawMessage
	CreatedAt time.Time
}

// Synthesis job statuses, per §3.
const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusReady      = "ready"
	JobStatusError      = "error"
)

// SynthesisJob is a story-audio task.
type SynthesisJob struct {
	JobID           uuid.UUID
	UserID          uuid.UUID
	VoiceID         uuid.UUID
	StoryID         string
	Status          string
	CreditsCharged  int64
	ArtifactBlobKey *string
	ErrorMessage    *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// QueueEntry is a pending allocation request.
type QueueEntry struct {
	QueueKey   string
	VoiceID    uuid.UUID
	UserID     uuid.UUID
	EnqueuedAt time.Time
	Attempts   int32
}

// AuditLogEntry is an operator-facing audit trail row.
type AuditLogEntry struct {
	LogID      uuid.UUID
	ActorID    *uuid.UUID
	Action     string
	Resource   string
	ResourceID *uuid.UUID
	Detail     json.RawMessage
	IPAddress  *netip.Addr
	UserAgent  *string
	CreatedAt  time.Time
}
