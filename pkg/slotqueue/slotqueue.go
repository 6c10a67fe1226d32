// Package slotqueue implements the Slot Queue of spec.md §4.4: a durable,
// per-provider FIFO of voices waiting for a remote allocation slot,
// backed by Postgres with a Redis position cache and a pub/sub wake
// signal so process_queue reacts to slot releases without waiting a
// full beat interval.
package slotqueue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/duskvoice/narrator/internal/db"
)

// WakeChannel is the Redis pub/sub channel published to whenever a slot
// is released, so process_queue can react immediately instead of waiting
// for the next queue_poll_interval beat.
const WakeChannel = "narrator:slots:wake"

const positionCacheTTL = 30 * time.Second

func positionCacheKey(queueKey string, voiceID uuid.UUID) string {
	return "narrator:queue:" + queueKey + ":pos:" + voiceID.String()
}

// Entry is a pending allocation request.
type Entry struct {
	QueueKey   string    `json:"queue_key"`
	VoiceID    uuid.UUID `json:"voice_id"`
	UserID     uuid.UUID `json:"user_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
	Attempts   int32     `json:"attempts"`
}

func fromRow(e db.QueueEntry) Entry {
	return Entry{
		QueueKey:   e.QueueKey,
		VoiceID:    e.VoiceID,
		UserID:     e.UserID,
		EnqueuedAt: e.EnqueuedAt,
		Attempts:   e.Attempts,
	}
}

// Queue implements §4.4's operations over a Postgres-backed DBTX (a bare
// pool for read/enqueue calls, or a transaction when called from within
// the Slot Manager's locked allocation path), with Redis as a
// cache-then-confirm layer in front of position lookups — the same
// pattern the teacher's alert deduplicator uses for fingerprint checks.
type Queue struct {
	rdb    *redis.Client
	logger *slog.Logger
}

// New creates a Queue. rdb may be nil in tests that only exercise the
// Postgres-backed paths; cache reads/writes are then skipped.
func New(rdb *redis.Client, logger *slog.Logger) *Queue {
	return &Queue{rdb: rdb, logger: logger}
}

// Enqueue appends voiceID to queueKey's queue if not already present,
// returning its 1-indexed position. Idempotent: a voice already queued
// returns its existing position rather than duplicating the entry.
func (q *Queue) Enqueue(ctx context.Context, dbtx db.DBTX, queueKey string, voiceID, userID uuid.UUID) (int, error) {
	queries := db.New(dbtx)

	inserted, err := queries.EnqueueIfAbsent(ctx, queueKey, voiceID, userID)
	if err != nil {
		return 0, fmt.Errorf("enqueueing voice %s: %w", voiceID, err)
	}
	if inserted {
		q.invalidatePosition(ctx, queueKey, voiceID)
	}

	position, _, err := queries.QueuePosition(ctx, queueKey, voiceID)
	if err != nil {
		return 0, fmt.Errorf("getting position for voice %s: %w", voiceID, err)
	}
	return position, nil
}

// Peek inspects up to n entries for a queue key without removing them.
func (q *Queue) Peek(ctx context.Context, dbtx db.DBTX, queueKey string, n int) ([]Entry, error) {
	rows, err := db.New(dbtx).PeekQueue(ctx, queueKey, int32(n))
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, len(rows))
	for i, r := range rows {
		entries[i] = fromRow(r)
	}
	return entries, nil
}

// PopReady removes up to capacity oldest entries for a queue key, for
// dispatch by process_queue. It publishes no wake signal; PublishWake is
// called separately when a slot is released.
func (q *Queue) PopReady(ctx context.Context, dbtx db.DBTX, queueKey string, capacity int) ([]Entry, error) {
	rows, err := db.New(dbtx).PopReady(ctx, queueKey, int32(capacity))
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, len(rows))
	for i, r := range rows {
		entries[i] = fromRow(r)
		q.invalidatePosition(ctx, queueKey, r.VoiceID)
	}
	return entries, nil
}

// Remove idempotently removes a voice from whichever queue it waits in.
func (q *Queue) Remove(ctx context.Context, dbtx db.DBTX, voiceID uuid.UUID) error {
	if err := db.New(dbtx).RemoveFromQueue(ctx, voiceID); err != nil {
		return err
	}
	q.invalidateAllProviders(ctx, voiceID)
	return nil
}

// Length returns the current waiting-queue length for a provider.
func (q *Queue) Length(ctx context.Context, dbtx db.DBTX, queueKey string) (int, error) {
	return db.New(dbtx).QueueLength(ctx, queueKey)
}

// Position returns the voice's 1-indexed FIFO position, checking the
// Redis cache first and falling back to Postgres on a miss — the same
// cache-then-confirm shape as the teacher's alert fingerprint dedup.
func (q *Queue) Position(ctx context.Context, dbtx db.DBTX, queueKey string, voiceID uuid.UUID) (int, bool, error) {
	if q.rdb != nil {
		if cached, err := q.rdb.Get(ctx, positionCacheKey(queueKey, voiceID)).Int(); err == nil {
			return cached, true, nil
		} else if err != redis.Nil {
			q.logger.Warn("redis queue position lookup failed, falling back to database", "error", err)
		}
	}

	position, ok, err := db.New(dbtx).QueuePosition(ctx, queueKey, voiceID)
	if err != nil {
		return 0, false, err
	}
	if ok && q.rdb != nil {
		if err := q.rdb.Set(ctx, positionCacheKey(queueKey, voiceID), position, positionCacheTTL).Err(); err != nil {
			q.logger.Warn("failed to warm queue position cache", "error", err)
		}
	}
	return position, ok, nil
}

// Reenqueue appends a voice to the back of the queue with a fresh
// enqueued_at, used when capacity evaporates between pop and allocate.
func (q *Queue) Reenqueue(ctx context.Context, dbtx db.DBTX, queueKey string, voiceID, userID uuid.UUID) error {
	if err := db.New(dbtx).Reenqueue(ctx, db.ReenqueueParams{QueueKey: queueKey, VoiceID: voiceID, UserID: userID}); err != nil {
		return err
	}
	q.invalidatePosition(ctx, queueKey, voiceID)
	return nil
}

// IncrementAttempts bumps the retry counter for a popped-but-not-allocated entry.
func (q *Queue) IncrementAttempts(ctx context.Context, dbtx db.DBTX, queueKey string, voiceID uuid.UUID) error {
	return db.New(dbtx).IncrementQueueAttempts(ctx, queueKey, voiceID)
}

// PublishWake notifies any waiting process_queue loop that a slot may
// have freed up, so it need not wait for the next beat.
func (q *Queue) PublishWake(ctx context.Context, queueKey string) {
	if q.rdb == nil {
		return
	}
	if err := q.rdb.Publish(ctx, WakeChannel, queueKey).Err(); err != nil {
		q.logger.Warn("failed to publish slot wake signal", "error", err, "queue_key", queueKey)
	}
}

// Subscribe returns a channel of queue keys woken by PublishWake, for the
// Worker Runtime's process_queue beat to select on alongside its ticker.
func (q *Queue) Subscribe(ctx context.Context) <-chan string {
	out := make(chan string)
	if q.rdb == nil {
		close(out)
		return out
	}

	pubsub := q.rdb.Subscribe(ctx, WakeChannel)
	go func() {
		defer close(out)
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- msg.Payload:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

func (q *Queue) invalidatePosition(ctx context.Context, queueKey string, voiceID uuid.UUID) {
	if q.rdb == nil {
		return
	}
	if err := q.rdb.Del(ctx, positionCacheKey(queueKey, voiceID)).Err(); err != nil {
		q.logger.Warn("failed to invalidate queue position cache", "error", err)
	}
}

func (q *Queue) invalidateAllProviders(ctx context.Context, voiceID uuid.UUID) {
	for _, provider := range []string{db.ProviderA, db.ProviderB} {
		q.invalidatePosition(ctx, provider, voiceID)
	}
}
