package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// CreateSlotEventParams groups the arguments to CreateSlotEvent.
type CreateSlotEventParams struct {
	VoiceID   uuid.UUID
	UserID    uuid.UUID
	EventType string
	Reason    string
	Metadata  []byte
}

// CreateSlotEvent appends an audit-log row for a voice-slot lifecycle
// transition (queued, allocation_started, evicted, drift_repaired, ...).
func (q *Queries) CreateSlotEvent(ctx context.Context, arg CreateSlotEventParams) error {
	const sql = `
		INSERT INTO slot_events (event_id, voice_id, user_id, event_type, reason, metadata, created_at)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5::jsonb, now())`

	if _, err := q.db.Exec(ctx, sql, arg.VoiceID, arg.UserID, arg.EventType, arg.Reason, arg.Metadata); err != nil {
		return fmt.Errorf("recording slot event %s for voice %s: %w", arg.EventType, arg.VoiceID, err)
	}
	return nil
}

// ListSlotEvents returns the most recent events for a voice, newest first.
func (q *Queries) ListSlotEvents(ctx context.Context, voiceID uuid.UUID, limit int32) ([]SlotEvent, error) {
	const sql = `
		SELECT event_id, voice_id, user_id, event_type, reason, metadata, created_at
		FROM slot_events
		WHERE voice_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := q.db.Query(ctx, sql, voiceID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing slot events for voice %s: %w", voiceID, err)
	}
	defer rows.Close()

	var events []SlotEvent
	for rows.Next() {
		var e SlotEvent
		if err := rows.Scan(&e.EventID, &e.VoiceID, &e.UserID, &e.EventType, &e.Reason, &e.Metadata, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning slot event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
