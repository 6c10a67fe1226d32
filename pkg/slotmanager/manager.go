package slotmanager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/duskvoice/narrator/internal/db"
	"github.com/duskvoice/narrator/internal/telemetry"
	"github.com/duskvoice/narrator/pkg/clockid"
	"github.com/duskvoice/narrator/pkg/slotqueue"
	"github.com/duskvoice/narrator/pkg/ttsadapter"
	"github.com/duskvoice/narrator/pkg/voice"
)

// ErrConcurrencyConflict wraps a serialization or deadlock failure from a
// locked transaction, the same translation the ledger service applies.
type ErrConcurrencyConflict struct{ Cause error }

func (e ErrConcurrencyConflict) Error() string { return fmt.Sprintf("concurrency conflict: %v", e.Cause) }
func (e ErrConcurrencyConflict) Unwrap() error { return e.Cause }

// Dispatcher submits a voice for background allocation. The Worker
// Runtime implements this by enqueueing an allocate(voice_id) task;
// Manager depends only on this narrow interface to avoid an import cycle
// with the worker package, which in turn calls Manager's methods.
type Dispatcher interface {
	DispatchAllocate(ctx context.Context, voiceID uuid.UUID) error
}

// Manager implements spec.md §4.6 over a Postgres pool, a durable Slot
// Queue, and a registry of remote TTS adapters.
type Manager struct {
	pool       *pgxpool.Pool
	logger     *slog.Logger
	queue      *slotqueue.Queue
	adapters   ttsadapter.Registry
	dispatcher Dispatcher
	clock      clockid.Clock

	slotLimit           int
	lockTTL             time.Duration
	warmHold            time.Duration
	maxDispatchPerCycle int
}

// NewManager constructs a Manager. dispatcher may be nil until the worker
// runtime is wired up in internal/app; EnsureActive then returns
// Allocating without dispatch, and a later EnsureActive call for the same
// voice re-acquires its lock once the lock TTL has passed and dispatches.
func NewManager(pool *pgxpool.Pool, logger *slog.Logger, queue *slotqueue.Queue, adapters ttsadapter.Registry, dispatcher Dispatcher, slotLimit int, lockTTL, warmHold time.Duration, maxDispatchPerCycle int) *Manager {
	return &Manager{
		pool:                pool,
		logger:              logger,
		queue:               queue,
		adapters:            adapters,
		dispatcher:          dispatcher,
		clock:               clockid.RealClock{},
		slotLimit:           slotLimit,
		lockTTL:             lockTTL,
		warmHold:            warmHold,
		maxDispatchPerCycle: maxDispatchPerCycle,
	}
}

// SetDispatcher assigns the Dispatcher after construction, for callers
// that build the worker runtime (which itself depends on Manager) after
// NewManager.
func (m *Manager) SetDispatcher(d Dispatcher) { m.dispatcher = d }

// WithClock overrides the Manager's clock, for tests that need to fix
// warm-hold comparisons and written timestamps to a deterministic instant.
// The per-voice lock TTL in pkg/voice reads the wall clock, not this one.
func (m *Manager) WithClock(c clockid.Clock) *Manager {
	m.clock = c
	return m
}

// EnsureActive is the orchestrator's only entry point into the Slot
// Manager: it reports whether voiceID already occupies a remote slot,
// is being allocated, must wait in queue, or cannot be allocated at all.
func (m *Manager) EnsureActive(ctx context.Context, userID, voiceID uuid.UUID) (EnsureResult, error) {
	var result EnsureResult
	var dispatchNeeded bool

	err := m.withTx(ctx, func(tx pgx.Tx) error {
		store := voice.NewStore(tx)

		v, err := store.GetForUpdate(ctx, voiceID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return voice.ErrNotFound{VoiceID: voiceID.String()}
			}
			return err
		}

		switch v.AllocationStatus {
		case db.VoiceStatusReady:
			if err := store.TouchLastUsed(ctx, voiceID); err != nil {
				return err
			}
			result = EnsureResult{Kind: EnsureReady, RemoteVoiceID: v.RemoteVoiceID}
			return nil

		case db.VoiceStatusCooling:
			// Cooling voices still occupy the remote slot; reuse without
			// re-allocating, mirroring the ready path.
			if err := store.Transition(ctx, v, db.UpdateVoiceStatusParams{VoiceID: voiceID, AllocationStatus: db.VoiceStatusReady, LastUsedAt: timePtr(m.clock.Now())}); err != nil {
				return err
			}
			result = EnsureResult{Kind: EnsureReady, RemoteVoiceID: v.RemoteVoiceID}
			return nil

		case db.VoiceStatusAllocating:
			if voice.LockHeld(v) {
				result = EnsureResult{Kind: EnsureAllocating}
				return nil
			}
			// Lock expired without completing; the worker died or timed
			// out. Re-acquire and redispatch rather than leaving it stuck.
			if err := store.AcquireLock(ctx, v, m.lockTTL); err != nil {
				return err
			}
			dispatchNeeded = true
			result = EnsureResult{Kind: EnsureAllocating}
			return nil

		case db.VoiceStatusError:
			reason := "voice allocation failed"
			if v.ErrorMessage != nil {
				reason = *v.ErrorMessage
			}
			result = EnsureResult{Kind: EnsureFailed, Reason: reason}
			return nil
		}

		// recorded or evicted: attempt to claim capacity.
		active, err := store.CountActiveByProvider(ctx, v.Provider)
		if err != nil {
			return err
		}
		if active >= m.slotLimit {
			position, err := m.queue.Enqueue(ctx, tx, v.Provider, voiceID, userID)
			if err != nil {
				return err
			}
			length, err := m.queue.Length(ctx, tx, v.Provider)
			if err != nil {
				return err
			}
			if err := m.emitEvent(ctx, tx, v, db.EventQueued, "no capacity available"); err != nil {
				return err
			}
			result = EnsureResult{Kind: EnsureQueued, QueuePosition: &position, QueueLength: &length}
			return nil
		}

		if err := store.AcquireLock(ctx, v, m.lockTTL); err != nil {
			return err
		}
		if err := store.Transition(ctx, v, db.UpdateVoiceStatusParams{VoiceID: voiceID, AllocationStatus: db.VoiceStatusAllocating}); err != nil {
			return err
		}
		if err := m.emitEvent(ctx, tx, v, db.EventAllocationStarted, "capacity claimed"); err != nil {
			return err
		}
		dispatchNeeded = true
		result = EnsureResult{Kind: EnsureAllocating}
		return nil
	})
	if err != nil {
		return EnsureResult{}, err
	}

	if dispatchNeeded && m.dispatcher != nil {
		if err := m.dispatcher.DispatchAllocate(ctx, voiceID); err != nil {
			m.logger.Warn("failed to dispatch allocate task", "error", err, "voice_id", voiceID)
		}
	}
	return result, nil
}

// ReportOccupancy refreshes the pool-occupancy and queue-depth gauges for
// one provider. Called by the reclaim_idle beat, which already touches
// both counts.
func (m *Manager) ReportOccupancy(ctx context.Context, provider string) error {
	active, err := voice.NewStore(m.pool).CountActiveByProvider(ctx, provider)
	if err != nil {
		return err
	}
	length, err := m.queue.Length(ctx, m.pool, provider)
	if err != nil {
		return err
	}
	telemetry.SlotPoolOccupancy.WithLabelValues(provider).Set(float64(active))
	telemetry.SlotQueueDepth.WithLabelValues(provider).Set(float64(length))
	return nil
}

// Allocate is the allocate(voice_id) worker task body: it calls out to
// the remote provider and binds the resulting remote_voice_id.
func (m *Manager) Allocate(ctx context.Context, voiceID uuid.UUID, sampleLoader func(ctx context.Context, blobKey string) ([]byte, error)) error {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	store := voice.NewStore(tx)
	v, err := store.GetForUpdate(ctx, voiceID)
	if err != nil {
		return fmt.Errorf("loading voice %s: %w", voiceID, err)
	}

	if v.AllocationStatus != db.VoiceStatusAllocating && v.AllocationStatus != db.VoiceStatusRecorded {
		// Another worker already finished (or the voice moved on); nothing to do.
		return tx.Commit(ctx)
	}
	if v.AllocationStatus == db.VoiceStatusRecorded {
		// ensure_active dispatched this task before its own transition to
		// "allocating" was visible; bring the row in line before proceeding.
		if err := store.Transition(ctx, v, db.UpdateVoiceStatusParams{VoiceID: voiceID, AllocationStatus: db.VoiceStatusAllocating}); err != nil {
			return err
		}
		v.AllocationStatus = db.VoiceStatusAllocating
	}

	adapter, ok := m.adapters.For(v.Provider)
	if !ok {
		return fmt.Errorf("no adapter registered for provider %s", v.Provider)
	}

	sample, err := sampleLoader(ctx, v.SampleBlobKey)
	if err != nil {
		return m.failAllocation(ctx, tx, store, v, fmt.Sprintf("loading sample: %v", err))
	}

	remoteID, err := adapter.CreateVoice(ctx, sample, v.VoiceID.String())
	if err != nil {
		return m.failAllocation(ctx, tx, store, v, fmt.Sprintf("provider create_voice: %v", err))
	}

	now := m.clock.Now()
	if err := store.Transition(ctx, v, db.UpdateVoiceStatusParams{
		VoiceID:          voiceID,
		AllocationStatus: db.VoiceStatusReady,
		RemoteVoiceID:    &remoteID,
		AllocatedAt:      &now,
		LastUsedAt:       &now,
		ClearLock:        true,
	}); err != nil {
		return err
	}
	if err := m.emitEvent(ctx, tx, v, db.EventAllocationCompleted, "remote voice created"); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing allocation: %w", err)
	}
	return nil
}

func (m *Manager) failAllocation(ctx context.Context, tx pgx.Tx, store *voice.Store, v db.Voice, reason string) error {
	if err := store.Transition(ctx, v, db.UpdateVoiceStatusParams{
		VoiceID:          v.VoiceID,
		AllocationStatus: db.VoiceStatusError,
		ErrorMessage:     &reason,
		ClearLock:        true,
	}); err != nil {
		return err
	}
	if err := m.emitEvent(ctx, tx, v, db.EventAllocationFailed, reason); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing failed allocation: %w", err)
	}
	return nil
}

// ProcessQueue is the process_queue(provider) beat: while capacity
// remains and the queue is non-empty, pop an entry and ensure it active,
// capped at maxDispatchPerCycle to avoid starving other providers.
func (m *Manager) ProcessQueue(ctx context.Context, provider string) (int, error) {
	dispatched := 0
	for i := 0; i < m.maxDispatchPerCycle; i++ {
		var entries []slotqueue.Entry
		err := m.withTx(ctx, func(tx pgx.Tx) error {
			active, err := voice.NewStore(tx).CountActiveByProvider(ctx, provider)
			if err != nil {
				return err
			}
			if active >= m.slotLimit {
				return nil
			}
			popped, err := m.queue.PopReady(ctx, tx, provider, 1)
			if err != nil {
				return err
			}
			entries = popped
			return nil
		})
		if err != nil {
			return dispatched, err
		}
		if len(entries) == 0 {
			break
		}

		entry := entries[0]
		res, err := m.EnsureActive(ctx, entry.UserID, entry.VoiceID)
		if err != nil {
			m.logger.Warn("ensure_active failed while draining queue", "error", err, "voice_id", entry.VoiceID)
			continue
		}
		if res.Kind == EnsureQueued {
			// Capacity evaporated between pop and claim; EnsureActive
			// already re-enqueued it.
			continue
		}
		dispatched++
	}
	return dispatched, nil
}

// ReclaimIdle is the reclaim_idle(provider) beat: evicts warm-but-unused
// voices per the deterministic eviction policy, freeing capacity for the
// waiting queue.
func (m *Manager) ReclaimIdle(ctx context.Context, provider string) (int, error) {
	cutoff := m.clock.Now().Add(-m.warmHold)
	evicted := 0

	err := m.withTx(ctx, func(tx pgx.Tx) error {
		store := voice.NewStore(tx)
		candidates, err := store.ListEvictionCandidates(ctx, provider, cutoff, int32(m.maxDispatchPerCycle))
		if err != nil {
			return err
		}

		for _, v := range candidates {
			locked, err := store.GetForUpdate(ctx, v.VoiceID)
			if err != nil {
				return err
			}
			if voice.LockHeld(locked) || (locked.AllocationStatus != db.VoiceStatusReady && locked.AllocationStatus != db.VoiceStatusCooling) {
				continue
			}

			adapter, ok := m.adapters.For(provider)
			if ok && locked.RemoteVoiceID != nil {
				if err := adapter.DeleteVoice(ctx, *locked.RemoteVoiceID); err != nil && !errors.Is(err, ttsadapter.ErrNotFound) {
					m.logger.Warn("provider delete_voice failed during reclaim", "error", err, "voice_id", locked.VoiceID)
					continue
				}
			}

			if err := store.Transition(ctx, locked, db.UpdateVoiceStatusParams{
				VoiceID:          locked.VoiceID,
				AllocationStatus: db.VoiceStatusEvicted,
				ClearRemoteID:    true,
			}); err != nil {
				return err
			}
			if err := m.emitEvent(ctx, tx, locked, db.EventEvicted, "reclaimed after warm_hold"); err != nil {
				return err
			}
			evicted++
		}
		return nil
	})
	if err != nil {
		return evicted, err
	}

	if evicted > 0 {
		telemetry.SlotEvictionsTotal.WithLabelValues(provider).Add(float64(evicted))
		if length, lerr := m.queue.Length(ctx, m.pool, provider); lerr == nil && length > 0 {
			m.queue.PublishWake(ctx, provider)
		}
	}
	return evicted, nil
}

// RepairDrift handles RemoteVoiceMissing during synthesis: the remote
// provider no longer recognizes remote_voice_id, so the binding is
// cleared and the voice is re-queued for a fresh allocation.
func (m *Manager) RepairDrift(ctx context.Context, voiceID uuid.UUID) error {
	return m.withTx(ctx, func(tx pgx.Tx) error {
		store := voice.NewStore(tx)
		v, err := store.GetForUpdate(ctx, voiceID)
		if err != nil {
			return err
		}

		if err := store.Transition(ctx, v, db.UpdateVoiceStatusParams{
			VoiceID:          voiceID,
			AllocationStatus: db.VoiceStatusRecorded,
			ClearRemoteID:    true,
			ClearLock:        true,
		}); err != nil {
			return err
		}
		if _, err := m.queue.Enqueue(ctx, tx, v.Provider, voiceID, v.UserID); err != nil {
			return err
		}
		if err := m.emitEvent(ctx, tx, v, db.EventDriftRepaired, "remote voice missing"); err != nil {
			return err
		}
		telemetry.SlotDriftRepairsTotal.WithLabelValues(v.Provider).Inc()
		return nil
	})
}

func (m *Manager) emitEvent(ctx context.Context, tx pgx.Tx, v db.Voice, eventType, reason string) error {
	return db.New(tx).CreateSlotEvent(ctx, db.CreateSlotEventParams{
		VoiceID:   v.VoiceID,
		UserID:    v.UserID,
		EventType: eventType,
		Reason:    reason,
	})
}

func (m *Manager) withTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && (pgErr.Code == "40001" || pgErr.Code == "40P01") {
			return ErrConcurrencyConflict{Cause: err}
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func timePtr(t time.Time) *time.Time { return &t }
