package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// EnqueueIfAbsent inserts a queue entry for (queue_key, voice_id) if one
// does not already exist. Returns true if a new row was inserted, false
// if the voice was already queued (spec.md §4.4: enqueue is idempotent).
func (q *Queries) EnqueueIfAbsent(ctx context.Context, queueKey string, voiceID, userID uuid.UUID) (bool, error) {
	const sql = `
		INSERT INTO queue_entries (queue_key, voice_id, user_id, enqueued_at, attempts)
		VALUES ($1, $2, $3, now(), 0)
		ON CONFLICT (queue_key, voice_id) DO NOTHING`

	tag, err := q.db.Exec(ctx, sql, queueKey, voiceID, userID)
	if err != nil {
		return false, fmt.Errorf("enqueueing voice %s on %s: %w", voiceID, queueKey, err)
	}
	return tag.RowsAffected() > 0, nil
}

// PeekQueue inspects up to n entries for a queue key without removing
// them, ordered oldest-first (FIFO).
func (q *Queries) PeekQueue(ctx context.Context, queueKey string, n int32) ([]QueueEntry, error) {
	const sql = `
		SELECT queue_key, voice_id, user_id, enqueued_at, attempts
		FROM queue_entries
		WHERE queue_key = $1
		ORDER BY enqueued_at ASC, voice_id ASC
		LIMIT $2`

	rows, err := q.db.Query(ctx, sql, queueKey, n)
	if err != nil {
		return nil, fmt.Errorf("peeking queue %s: %w", queueKey, err)
	}
	defer rows.Close()

	var entries []QueueEntry
	for rows.Next() {
		var e QueueEntry
		if err := rows.Scan(&e.QueueKey, &e.VoiceID, &e.UserID, &e.EnqueuedAt, &e.Attempts); err != nil {
			return nil, fmt.Errorf("scanning queue entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// PopReady removes up to capacity oldest entries for a queue key and
// returns them. Deletion and selection happen in one statement so
// concurrent workers never pop the same entry twice.
func (q *Queries) PopReady(ctx context.Context, queueKey string, capacity int32) ([]QueueEntry, error) {
	const sql = `
		WITH popped AS (
			SELECT voice_id FROM queue_entries
			WHERE queue_key = $1
			ORDER BY enqueued_at ASC, voice_id ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		DELETE FROM queue_entries
		WHERE queue_key = $1 AND voice_id IN (SELECT voice_id FROM popped)
		RETURNING queue_key, voice_id, user_id, enqueued_at, attempts`

	rows, err := q.db.Query(ctx, sql, queueKey, capacity)
	if err != nil {
		return nil, fmt.Errorf("popping %d entries from queue %s: %w", capacity, queueKey, err)
	}
	defer rows.Close()

	var entries []QueueEntry
	for rows.Next() {
		var e QueueEntry
		if err := rows.Scan(&e.QueueKey, &e.VoiceID, &e.UserID, &e.EnqueuedAt, &e.Attempts); err != nil {
			return nil, fmt.Errorf("scanning popped queue entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// RemoveFromQueue idempotently removes a voice from every queue it might
// be waiting in (a voice only ever waits on one provider's queue, but the
// delete is keyed on voice_id alone so callers don't need to track which).
func (q *Queries) RemoveFromQueue(ctx context.Context, voiceID uuid.UUID) error {
	const sql = `DELETE FROM queue_entries WHERE voice_id = $1`
	if _, err := q.db.Exec(ctx, sql, voiceID); err != nil {
		return fmt.Errorf("removing voice %s from queue: %w", voiceID, err)
	}
	return nil
}

// QueueLength returns the number of entries waiting for a queue key.
func (q *Queries) QueueLength(ctx context.Context, queueKey string) (int, error) {
	const sql = `SELECT count(*) FROM queue_entries WHERE queue_key = $1`
	var n int
	if err := q.db.QueryRow(ctx, sql, queueKey).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting queue %s: %w", queueKey, err)
	}
	return n, nil
}

// QueuePosition returns the 1-based FIFO position of a voice within its
// queue, or (0, false) if the voice is not queued.
func (q *Queries) QueuePosition(ctx context.Context, queueKey string, voiceID uuid.UUID) (int, bool, error) {
	const sql = `
		SELECT rank FROM (
			SELECT voice_id, row_number() OVER (ORDER BY enqueued_at ASC, voice_id ASC) AS rank
			FROM queue_entries WHERE queue_key = $1
		) ranked
		WHERE voice_id = $2`

	var rank int
	err := q.db.QueryRow(ctx, sql, queueKey, voiceID).Scan(&rank)
	if err != nil {
		return 0, false, nil
	}
	return rank, true, nil
}

// IncrementQueueAttempts bumps the retry counter for a queue entry that
// was popped but could not be allocated this cycle (capacity evaporated).
func (q *Queries) IncrementQueueAttempts(ctx context.Context, queueKey string, voiceID uuid.UUID) error {
	const sql = `UPDATE queue_entries SET attempts = attempts + 1 WHERE queue_key = $1 AND voice_id = $2`
	if _, err := q.db.Exec(ctx, sql, queueKey, voiceID); err != nil {
		return fmt.Errorf("incrementing attempts for voice %s: %w", voiceID, err)
	}
	return nil
}

// ReenqueueParams groups the arguments to Reenqueue.
type ReenqueueParams struct {
	QueueKey string
	VoiceID  uuid.UUID
	UserID   uuid.UUID
}

// Reenqueue appends a voice to the back of the queue with a fresh
// enqueued_at, used when capacity evaporates between pop and allocate.
func (q *Queries) Reenqueue(ctx context.Context, arg ReenqueueParams) error {
	const sql = `
		INSERT INTO queue_entries (queue_key, voice_id, user_id, enqueued_at, attempts)
		VALUES ($1, $2, $3, now(), 0)
		ON CONFLICT (queue_key, voice_id) DO UPDATE SET enqueued_at = now()`

	if _, err := q.db.Exec(ctx, sql, arg.QueueKey, arg.VoiceID, arg.UserID); err != nil {
		return fmt.Errorf("re-enqueueing voice %s: %w", arg.VoiceID, err)
	}
	return nil
}
