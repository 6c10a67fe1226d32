package synthesis

import (
	"context"

	"github.com/google/uuid"

	"github.com/duskvoice/narrator/internal/db"
)

// Store wraps the synthesis_jobs query layer, bound to whatever db.DBTX
// the caller supplies, mirroring the teacher's Store(dbtx)/NewStore(dbtx)
// shape used throughout this tree.
type Store struct {
	q *db.Queries
}

// NewStore creates a Store backed by the given database connection.
func NewStore(dbtx db.DBTX) *Store {
	return &Store{q: db.New(dbtx)}
}

// GetOrCreate returns the job for (user_id, voice_id, story_id), creating
// a pending one with credits_charged=0 if absent. This is the identity
// key that makes start_synthesis idempotent.
func (s *Store) GetOrCreate(ctx context.Context, userID, voiceID uuid.UUID, storyID string) (db.SynthesisJob, error) {
	return s.q.GetOrCreateJob(ctx, db.GetOrCreateJobParams{UserID: userID, VoiceID: voiceID, StoryID: storyID})
}

// Get fetches a job without locking, for read-only status polling.
func (s *Store) Get(ctx context.Context, jobID uuid.UUID) (db.SynthesisJob, error) {
	return s.q.GetJob(ctx, jobID)
}

// GetForUpdate locks a job row for a state transition.
func (s *Store) GetForUpdate(ctx context.Context, jobID uuid.UUID) (db.SynthesisJob, error) {
	return s.q.GetJobForUpdate(ctx, jobID)
}

// SetCharged sets credits_charged while keeping the job pending.
func (s *Store) SetCharged(ctx context.Context, jobID uuid.UUID, amount int64) error {
	return s.q.UpdateJobStatus(ctx, db.UpdateJobStatusParams{JobID: jobID, Status: db.JobStatusPending, CreditsCharged: &amount})
}

// SetProcessing transitions a job to processing.
func (s *Store) SetProcessing(ctx context.Context, jobID uuid.UUID) error {
	return s.q.UpdateJobStatus(ctx, db.UpdateJobStatusParams{JobID: jobID, Status: db.JobStatusProcessing})
}

// SetReady transitions a job to ready with its artifact key.
func (s *Store) SetReady(ctx context.Context, jobID uuid.UUID, artifactBlobKey string) error {
	return s.q.UpdateJobStatus(ctx, db.UpdateJobStatusParams{JobID: jobID, Status: db.JobStatusReady, ArtifactBlobKey: &artifactBlobKey})
}

// SetError transitions a job to error with a message.
func (s *Store) SetError(ctx context.Context, jobID uuid.UUID, reason string) error {
	return s.q.UpdateJobStatus(ctx, db.UpdateJobStatusParams{JobID: jobID, Status: db.JobStatusError, ErrorMessage: &reason})
}

// CountInFlightForUser enforces the per-user in-flight synthesis cap.
func (s *Store) CountInFlightForUser(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.q.CountInFlightJobsForUser(ctx, userID)
}
