package synthesis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/duskvoice/narrator/internal/db"
	"github.com/duskvoice/narrator/internal/telemetry"
	"github.com/duskvoice/narrator/pkg/blobstore"
	"github.com/duskvoice/narrator/pkg/creditcalc"
	"github.com/duskvoice/narrator/pkg/ledger"
	"github.com/duskvoice/narrator/pkg/slotmanager"
	"github.com/duskvoice/narrator/pkg/story"
	"github.com/duskvoice/narrator/pkg/ttsadapter"
	"github.com/duskvoice/narrator/pkg/voice"
)

// ErrInFlightLimitExceeded marks a start_synthesis call rejected because
// the caller already has too many jobs pending or processing.
type ErrInFlightLimitExceeded struct{ Limit int }

func (e ErrInFlightLimitExceeded) Error() string {
	return fmt.Sprintf("in-flight synthesis limit of %d exceeded", e.Limit)
}

// Dispatcher submits a job for background synthesis. The Worker Runtime
// implements this by enqueueing a synthesize(job_id) task; Orchestrator
// depends only on this narrow interface to avoid an import cycle with the
// worker package, which calls back into Orchestrator's methods.
type Dispatcher interface {
	DispatchSynthesize(ctx context.Context, jobID uuid.UUID) error
}

// Orchestrator implements spec.md §4.7: the handshake between the credit
// ledger, the slot manager, and the remote TTS providers.
type Orchestrator struct {
	pool        db.DBTX
	logger      *slog.Logger
	ledger      *ledger.Service
	slots       *slotmanager.Manager
	stories     story.Lookup
	blobs       blobstore.Store
	adapters    ttsadapter.Registry
	dispatcher  Dispatcher
	unitSize    int
	inFlightCap int
}

// NewOrchestrator constructs an Orchestrator. dispatcher may be nil until
// the worker runtime is wired up in internal/app.
func NewOrchestrator(pool db.DBTX, logger *slog.Logger, ledgerSvc *ledger.Service, slots *slotmanager.Manager, stories story.Lookup, blobs blobstore.Store, adapters ttsadapter.Registry, dispatcher Dispatcher, unitSize, inFlightCap int) *Orchestrator {
	return &Orchestrator{
		pool:        pool,
		logger:      logger,
		ledger:      ledgerSvc,
		slots:       slots,
		stories:     stories,
		blobs:       blobs,
		adapters:    adapters,
		dispatcher:  dispatcher,
		unitSize:    unitSize,
		inFlightCap: inFlightCap,
	}
}

// SetDispatcher assigns the Dispatcher after construction, for callers
// that build the worker runtime (which itself depends on Orchestrator)
// after NewOrchestrator.
func (o *Orchestrator) SetDispatcher(d Dispatcher) { o.dispatcher = d }

// StartSynthesis is the start_synthesis handshake: idempotent per
// (user_id, voice_id, story_id), it debits credits at most once, ensures
// the voice occupies a remote slot, and dispatches background synthesis.
func (o *Orchestrator) StartSynthesis(ctx context.Context, userID, voiceID uuid.UUID, storyID string) (StartResult, error) {
	store := NewStore(o.pool)

	tale, err := o.stories.Get(ctx, storyID)
	if err != nil {
		return StartResult{}, fmt.Errorf("looking up story %s: %w", storyID, err)
	}
	requiredInt, err := creditcalc.RequiredCredits(tale.Text, o.unitSize)
	if err != nil {
		return StartResult{}, fmt.Errorf("computing required credits: %w", err)
	}
	required := int64(requiredInt)

	job, err := store.GetOrCreate(ctx, userID, voiceID, storyID)
	if err != nil {
		return StartResult{}, err
	}

	switch job.Status {
	case db.JobStatusReady:
		url, err := o.blobs.SignedURL(ctx, *job.ArtifactBlobKey, 0)
		if err != nil {
			return StartResult{}, fmt.Errorf("signing artifact url: %w", err)
		}
		return StartResult{Kind: StartAlreadyReady, JobID: &job.JobID, ArtifactURL: &url}, nil
	case db.JobStatusProcessing:
		return StartResult{Kind: StartAlreadyProcessing, JobID: &job.JobID}, nil
	}

	// pending or error: charge (idempotent on job_id) and (re)drive toward
	// allocation. A job previously charged (credits_charged > 0) has
	// already passed the in-flight gate on an earlier call.
	if job.CreditsCharged == 0 {
		inFlight, err := store.CountInFlightForUser(ctx, userID)
		if err != nil {
			return StartResult{}, err
		}
		if inFlight >= o.inFlightCap {
			return StartResult{}, ErrInFlightLimitExceeded{Limit: o.inFlightCap}
		}
	}

	if _, err := o.ledger.Debit(ctx, userID, required, job.JobID, &storyID, "synthesis start"); err != nil {
		var insufficient ledger.ErrInsufficientCredits
		if errors.As(err, &insufficient) {
			return StartResult{
				Kind:      StartPaymentRequired,
				JobID:     &job.JobID,
				Required:  &insufficient.Required,
				Available: &insufficient.Available,
			}, nil
		}
		return StartResult{}, err
	}
	if err := store.SetCharged(ctx, job.JobID, required); err != nil {
		return StartResult{}, err
	}

	ensure, err := o.slots.EnsureActive(ctx, userID, voiceID)
	if err != nil {
		return StartResult{}, err
	}

	switch ensure.Kind {
	case slotmanager.EnsureFailed:
		if _, _, err := o.ledger.RefundByJob(ctx, job.JobID, "voice unavailable: "+ensure.Reason); err != nil {
			o.logger.Warn("refund after voice failure errored", "error", err, "job_id", job.JobID)
		}
		if err := store.SetError(ctx, job.JobID, ensure.Reason); err != nil {
			o.logger.Warn("marking job errored after voice failure", "error", err, "job_id", job.JobID)
		}
		telemetry.SynthesisJobsTotal.WithLabelValues("error").Inc()
		return StartResult{Kind: StartVoiceUnavailable, JobID: &job.JobID, Reason: ensure.Reason}, nil

	case slotmanager.EnsureReady:
		if err := store.SetProcessing(ctx, job.JobID); err != nil {
			return StartResult{}, err
		}
		o.dispatchSynthesize(ctx, job.JobID)
		return StartResult{Kind: StartProcessing, JobID: &job.JobID}, nil

	case slotmanager.EnsureQueued:
		o.dispatchSynthesize(ctx, job.JobID)
		return StartResult{Kind: StartQueuedForSlot, JobID: &job.JobID, QueuePosition: ensure.QueuePosition, QueueLength: ensure.QueueLength}, nil

	default: // EnsureAllocating
		o.dispatchSynthesize(ctx, job.JobID)
		return StartResult{Kind: StartAllocatingVoice, JobID: &job.JobID}, nil
	}
}

// SynthesizeWorker is the synthesize(job_id) worker task body. It never
// fails a job merely because the voice is still allocating or recovering
// from drift; it self-redispatches and returns nil for those cases, so
// only genuinely transient or terminal errors count against the worker
// runtime's retry budget.
func (o *Orchestrator) SynthesizeWorker(ctx context.Context, jobID uuid.UUID) error {
	store := NewStore(o.pool)

	job, err := store.Get(ctx, jobID)
	if err != nil {
		return fmt.Errorf("loading job %s: %w", jobID, err)
	}
	if job.Status != db.JobStatusPending && job.Status != db.JobStatusProcessing {
		// Already ready or errored; nothing left to do.
		return nil
	}

	ensure, err := o.slots.EnsureActive(ctx, job.UserID, job.VoiceID)
	if err != nil {
		return fmt.Errorf("ensuring voice active for job %s: %w", jobID, err)
	}
	if ensure.Kind == slotmanager.EnsureFailed {
		if _, _, err := o.ledger.RefundByJob(ctx, jobID, "voice unavailable: "+ensure.Reason); err != nil {
			o.logger.Warn("refund after voice failure errored", "error", err, "job_id", jobID)
		}
		if err := store.SetError(ctx, jobID, ensure.Reason); err != nil {
			return err
		}
		telemetry.SynthesisJobsTotal.WithLabelValues("error").Inc()
		return nil
	}
	if ensure.Kind != slotmanager.EnsureReady {
		// Still queued or allocating; come back later without burning a
		// retry attempt.
		o.dispatchSynthesize(ctx, jobID)
		return nil
	}

	if job.Status != db.JobStatusProcessing {
		if err := store.SetProcessing(ctx, jobID); err != nil {
			return err
		}
	}

	tale, err := o.stories.Get(ctx, job.StoryID)
	if err != nil {
		return fmt.Errorf("looking up story %s: %w", job.StoryID, err)
	}

	voiceRow, err := o.voiceRow(ctx, job.VoiceID)
	if err != nil {
		return err
	}
	adapter, ok := o.adapters.For(voiceRow.Provider)
	if !ok {
		return fmt.Errorf("no adapter registered for provider %s", voiceRow.Provider)
	}
	if voiceRow.RemoteVoiceID == nil {
		return fmt.Errorf("voice %s is ready with no remote_voice_id", job.VoiceID)
	}

	audio, err := adapter.Synthesize(ctx, *voiceRow.RemoteVoiceID, tale.Text)
	if err != nil {
		if errors.Is(err, ttsadapter.ErrRemoteVoiceMissing) {
			if err := o.slots.RepairDrift(ctx, job.VoiceID); err != nil {
				return fmt.Errorf("repairing drift for voice %s: %w", job.VoiceID, err)
			}
			o.dispatchSynthesize(ctx, jobID)
			return nil
		}
		return fmt.Errorf("synthesizing job %s: %w", jobID, err)
	}

	artifactKey := fmt.Sprintf("synthesis/%s/%s.audio", job.VoiceID, jobID)
	if err := o.blobs.Put(ctx, artifactKey, audio); err != nil {
		return fmt.Errorf("storing artifact for job %s: %w", jobID, err)
	}
	if err := store.SetReady(ctx, jobID, artifactKey); err != nil {
		return err
	}
	telemetry.SynthesisJobsTotal.WithLabelValues("ready").Inc()
	return nil
}

func (o *Orchestrator) voiceRow(ctx context.Context, voiceID uuid.UUID) (db.Voice, error) {
	v, err := voice.NewStore(o.pool).Get(ctx, voiceID)
	if err != nil {
		return db.Voice{}, fmt.Errorf("loading voice %s: %w", voiceID, err)
	}
	return v, nil
}

func (o *Orchestrator) dispatchSynthesize(ctx context.Context, jobID uuid.UUID) {
	if o.dispatcher == nil {
		return
	}
	if err := o.dispatcher.DispatchSynthesize(ctx, jobID); err != nil {
		o.logger.Warn("failed to dispatch synthesize task", "error", err, "job_id", jobID)
	}
}
