package voice

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/duskvoice/narrator/internal/db"
)

// Store provides guarded database operations over voices, bound to
// whatever db.DBTX the caller supplies — a bare pool for single-statement
// reads, or a transaction for the locked, multi-step transitions the
// Slot Manager composes (spec.md §4.6). This mirrors the teacher's
// Store(dbtx)/NewStore(dbtx) shape.
type Store struct {
	q *db.Queries
}

// NewStore creates a voice Store backed by the given database connection.
func NewStore(dbtx db.DBTX) *Store {
	return &Store{q: db.New(dbtx)}
}

// CreateParams groups the arguments to Create.
type CreateParams struct {
	UserID        uuid.UUID
	SampleBlobKey string
	SampleBytes   int64
	Provider      string
}

// Create inserts a new voice in the "recorded" state.
func (s *Store) Create(ctx context.Context, arg CreateParams) (db.Voice, error) {
	return s.q.CreateVoice(ctx, db.CreateVoiceParams{
		UserID:        arg.UserID,
		SampleBlobKey: arg.SampleBlobKey,
		SampleBytes:   arg.SampleBytes,
		Provider:      arg.Provider,
	})
}

// Get fetches a voice without locking.
func (s *Store) Get(ctx context.Context, voiceID uuid.UUID) (db.Voice, error) {
	return s.q.GetVoice(ctx, voiceID)
}

// GetForUpdate locks a voice row for the duration of the enclosing
// transaction — the serialization point for the per-voice lock.
func (s *Store) GetForUpdate(ctx context.Context, voiceID uuid.UUID) (db.Voice, error) {
	return s.q.GetVoiceForUpdate(ctx, voiceID)
}

// Delete removes a voice record. Callers are responsible for first
// deleting remote and blob artifacts.
func (s *Store) Delete(ctx context.Context, voiceID uuid.UUID) error {
	return s.q.DeleteVoice(ctx, voiceID)
}

// CountActiveByProvider returns the live, uncached count of voices in
// {allocating, ready, cooling} for one provider.
func (s *Store) CountActiveByProvider(ctx context.Context, provider string) (int, error) {
	return s.q.CountActiveVoicesByProvider(ctx, provider)
}

// ListEvictionCandidates returns eviction-ordered candidates for a provider.
func (s *Store) ListEvictionCandidates(ctx context.Context, provider string, olderThan time.Time, limit int32) ([]db.Voice, error) {
	return s.q.ListEvictionCandidates(ctx, provider, olderThan, limit)
}

// TouchLastUsed refreshes last_used_at without otherwise changing state.
func (s *Store) TouchLastUsed(ctx context.Context, voiceID uuid.UUID) error {
	return s.q.TouchVoiceLastUsed(ctx, voiceID)
}

// Transition applies a guarded allocation_status change on an already
// row-locked voice (the caller must have obtained it via GetForUpdate in
// the same transaction). Returns ErrInvalidState if the transition is not
// in legalTransitions.
func (s *Store) Transition(ctx context.Context, current db.Voice, arg db.UpdateVoiceStatusParams) error {
	if !CanTransition(current.AllocationStatus, arg.AllocationStatus) {
		return ErrInvalidState{From: current.AllocationStatus, To: arg.AllocationStatus}
	}
	return s.q.UpdateVoiceStatus(ctx, arg)
}

// AcquireLock sets slot_lock_expires_at on an already row-locked voice,
// the application-level TTL lock that guards cross-process races the
// row lock alone cannot (it only holds for the transaction's lifetime).
func (s *Store) AcquireLock(ctx context.Context, current db.Voice, ttl time.Duration) error {
	expiresAt := time.Now().Add(ttl)
	return s.q.UpdateVoiceStatus(ctx, db.UpdateVoiceStatusParams{
		VoiceID:           current.VoiceID,
		AllocationStatus:  current.AllocationStatus,
		SlotLockExpiresAt: &expiresAt,
	})
}

// ReleaseLock clears slot_lock_expires_at on an already row-locked voice.
func (s *Store) ReleaseLock(ctx context.Context, current db.Voice) error {
	return s.q.UpdateVoiceStatus(ctx, db.UpdateVoiceStatusParams{
		VoiceID:          current.VoiceID,
		AllocationStatus: current.AllocationStatus,
		ClearLock:        true,
	})
}

// LockHeld reports whether current's slot lock is still live.
func LockHeld(current db.Voice) bool {
	return current.SlotLockExpiresAt != nil && current.SlotLockExpiresAt.After(time.Now())
}
