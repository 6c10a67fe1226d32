package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateVoiceParams groups the arguments to CreateVoice.
type CreateVoiceParams struct {
	UserID        uuid.UUID
	SampleBlobKey string
	SampleBytes   int64
	Provider      string
}

// CreateVoice inserts a new voice in the "recorded" state.
func (q *Queries) CreateVoice(ctx context.Context, arg CreateVoiceParams) (Voice, error) {
	const sql = `
		INSERT INTO voices (voice_id, user_id, sample_blob_key, sample_bytes, provider, allocation_status, created_at, updated_at)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, 'recorded', now(), now())
		RETURNING voice_id, user_id, sample_blob_key, sample_bytes, provider, remote_voice_id,
			allocation_status, last_used_at, allocated_at, slot_lock_expires_at, error_message, created_at, updated_at`

	var v Voice
	err := q.db.QueryRow(ctx, sql, arg.UserID, arg.SampleBlobKey, arg.SampleBytes, arg.Provider).Scan(
		&v.VoiceID, &v.UserID, &v.SampleBlobKey, &v.SampleBytes, &v.Provider, &v.RemoteVoiceID,
		&v.AllocationStatus, &v.LastUsedAt, &v.AllocatedAt, &v.SlotLockExpiresAt, &v.ErrorMessage, &v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		return Voice{}, fmt.Errorf("creating voice for user %s: %w", arg.UserID, err)
	}
	return v, nil
}

// GetVoice fetches a voice without locking, for read-only inspection.
func (q *Queries) GetVoice(ctx context.Context, voiceID uuid.UUID) (Voice, error) {
	const sql = `
		SELECT voice_id, user_id, sample_blob_key, sample_bytes, provider, remote_voice_id,
			allocation_status, last_used_at, allocated_at, slot_lock_expires_at, error_message, created_at, updated_at
		FROM voices WHERE voice_id = $1`

	var v Voice
	err := q.db.QueryRow(ctx, sql, voiceID).Scan(
		&v.VoiceID, &v.UserID, &v.SampleBlobKey, &v.SampleBytes, &v.Provider, &v.RemoteVoiceID,
		&v.AllocationStatus, &v.LastUsedAt, &v.AllocatedAt, &v.SlotLockExpiresAt, &v.ErrorMessage, &v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		return Voice{}, fmt.Errorf("getting voice %s: %w", voiceID, err)
	}
	return v, nil
}

// GetVoiceForUpdate locks a voice row. Every state transition must go
// through this first; the row lock is the serialization point for the
// per-voice lock described in spec.md §4.6 (the application-level TTL
// lock in slot_lock_expires_at guards cross-process races the row lock
// alone can't, since it only holds for the transaction's lifetime).
func (q *Queries) GetVoiceForUpdate(ctx context.Context, voiceID uuid.UUID) (Voice, error) {
	const sql = `
		SELECT voice_id, user_id, sample_blob_key, sample_bytes, provider, remote_voice_id,
			allocation_status, last_used_at, allocated_at, slot_lock_expires_at, error_message, created_at, updated_at
		FROM voices WHERE voice_id = $1
		FOR UPDATE`

	var v Voice
	err := q.db.QueryRow(ctx, sql, voiceID).Scan(
		&v.VoiceID, &v.UserID, &v.SampleBlobKey, &v.SampleBytes, &v.Provider, &v.RemoteVoiceID,
		&v.AllocationStatus, &v.LastUsedAt, &v.AllocatedAt, &v.SlotLockExpiresAt, &v.ErrorMessage, &v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		return Voice{}, fmt.Errorf("getting voice %s for update: %w", voiceID, err)
	}
	return v, nil
}

// UpdateVoiceStatus transitions allocation_status and optionally touches
// the timestamp/remote-id/error columns associated with that transition.
// Passing a nil pointer leaves the corresponding column unchanged.
type UpdateVoiceStatusParams struct {
	VoiceID           uuid.UUID
	AllocationStatus  string
	RemoteVoiceID     *string
	ClearRemoteID     bool
	LastUsedAt        *time.Time
	AllocatedAt       *time.Time
	SlotLockExpiresAt *time.Time
	ClearLock         bool
	ErrorMessage      *string
	ClearError        bool
}

// UpdateVoiceStatus applies a guarded state transition. Column-level
// clearing is explicit (ClearRemoteID, ClearLock, ClearError) so a nil
// pointer always means "leave as is", never "set to null".
func (q *Queries) UpdateVoiceStatus(ctx context.Context, arg UpdateVoiceStatusParams) error {
	const sql = `
		UPDATE voices SET
			allocation_status = $2,
			remote_voice_id = CASE WHEN $3 THEN NULL WHEN $4::text IS NOT NULL THEN $4 ELSE remote_voice_id END,
			last_used_at = COALESCE($5, last_used_at),
			allocated_at = COALESCE($6, allocated_at),
			slot_lock_expires_at = CASE WHEN $7 THEN NULL WHEN $8::timestamptz IS NOT NULL THEN $8 ELSE slot_lock_expires_at END,
			error_message = CASE WHEN $9 THEN NULL WHEN $10::text IS NOT NULL THEN $10 ELSE error_message END,
			updated_at = now()
		WHERE voice_id = $1`

	_, err := q.db.Exec(ctx, sql,
		arg.VoiceID, arg.AllocationStatus,
		arg.ClearRemoteID, arg.RemoteVoiceID,
		arg.LastUsedAt, arg.AllocatedAt,
		arg.ClearLock, arg.SlotLockExpiresAt,
		arg.ClearError, arg.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("updating voice %s status to %s: %w", arg.VoiceID, arg.AllocationStatus, err)
	}
	return nil
}

// TouchVoiceLastUsed refreshes last_used_at without otherwise changing
// state, used when ensure_active finds the voice already ready.
func (q *Queries) TouchVoiceLastUsed(ctx context.Context, voiceID uuid.UUID) error {
	const sql = `UPDATE voices SET last_used_at = now(), updated_at = now() WHERE voice_id = $1`
	if _, err := q.db.Exec(ctx, sql, voiceID); err != nil {
		return fmt.Errorf("touching last_used_at for voice %s: %w", voiceID, err)
	}
	return nil
}

// DeleteVoice removes a voice record entirely (caller is responsible for
// deleting remote and blob artifacts first).
func (q *Queries) DeleteVoice(ctx context.Context, voiceID uuid.UUID) error {
	const sql = `DELETE FROM voices WHERE voice_id = $1`
	if _, err := q.db.Exec(ctx, sql, voiceID); err != nil {
		return fmt.Errorf("deleting voice %s: %w", voiceID, err)
	}
	return nil
}

// CountActiveVoicesByProvider returns count(voice.allocation_status in
// {allocating, ready, cooling}) for one provider. This is the live
// capacity count described in spec.md §4.6 — always queried, never
// cached, to avoid drift.
func (q *Queries) CountActiveVoicesByProvider(ctx context.Context, provider string) (int, error) {
	const sql = `
		SELECT count(*) FROM voices
		WHERE provider = $1 AND allocation_status IN ('allocating', 'ready', 'cooling')`

	var n int
	if err := q.db.QueryRow(ctx, sql, provider).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting active voices for provider %s: %w", provider, err)
	}
	return n, nil
}

// ListEvictionCandidates returns ready|cooling voices older than the
// warm-hold cutoff for a provider, ordered per the eviction policy of
// spec.md §4.6: zero-balance users first, then oldest last_used_at, then
// smallest voice_id. Voices currently referenced by a processing
// synthesis job are excluded via NOT EXISTS.
func (q *Queries) ListEvictionCandidates(ctx context.Context, provider string, olderThan time.Time, limit int32) ([]Voice, error) {
	const sql = `
		SELECT v.voice_id, v.user_id, v.sample_blob_key, v.sample_bytes, v.provider, v.remote_voice_id,
			v.allocation_status, v.last_used_at, v.allocated_at, v.slot_lock_expires_at, v.error_message, v.created_at, v.updated_at
		FROM voices v
		JOIN users u ON u.user_id = v.user_id
		WHERE v.provider = $1
		  AND v.allocation_status IN ('ready', 'cooling')
		  AND v.last_used_at IS NOT NULL AND v.last_used_at < $2
		  AND (v.slot_lock_expires_at IS NULL OR v.slot_lock_expires_at < now())
		  AND NOT EXISTS (
		    SELECT 1 FROM synthesis_jobs j WHERE j.voice_id = v.voice_id AND j.status = 'processing'
		  )
		ORDER BY (u.credits_balance_cached = 0) DESC, v.last_used_at ASC, v.voice_id ASC
		LIMIT $3`

	rows, err := q.db.Query(ctx, sql, provider, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("listing eviction candidates for provider %s: %w", provider, err)
	}
	defer rows.Close()

	var voices []Voice
	for rows.Next() {
		var v Voice
		if err := rows.Scan(&v.VoiceID, &v.UserID, &v.SampleBlobKey, &v.SampleBytes, &v.Provider, &v.RemoteVoiceID,
			&v.AllocationStatus, &v.LastUsedAt, &v.AllocatedAt, &v.SlotLockExpiresAt, &v.ErrorMessage, &v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning voice: %w", err)
		}
		voices = append(voices, v)
	}
	return voices, rows.Err()
}
