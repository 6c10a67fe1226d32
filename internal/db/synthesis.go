package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// GetOrCreateJobParams groups the arguments to GetOrCreateJob.
type GetOrCreateJobParams struct {
	UserID  uuid.UUID
	VoiceID uuid.UUID
	StoryID string
}

// GetOrCreateJob fetches the SynthesisJob for (user_id, voice_id,
// story_id), creating one in "pending" with credits_charged=0 if it
// doesn't exist. This is the identity key the orchestrator uses to make
// start_synthesis idempotent (spec.md §4.7).
func (q *Queries) GetOrCreateJob(ctx context.Context, arg GetOrCreateJobParams) (SynthesisJob, error) {
	const sql = `
		INSERT INTO synthesis_jobs (job_id, user_id, voice_id, story_id, status, credits_charged, created_at, updated_at)
		VALUES (gen_random_uuid(), $1, $2, $3, 'pending', 0, now(), now())
		ON CONFLICT (user_id, voice_id, story_id) DO UPDATE SET user_id = synthesis_jobs.user_id
		RETURNING job_id, user_id, voice_id, story_id, status, credits_charged, artifact_blob_key, error_message, created_at, updated_at`

	var j SynthesisJob
	err := q.db.QueryRow(ctx, sql, arg.UserID, arg.VoiceID, arg.StoryID).Scan(
		&j.JobID, &j.UserID, &j.VoiceID, &j.StoryID, &j.Status, &j.CreditsCharged, &j.ArtifactBlobKey, &j.ErrorMessage, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return SynthesisJob{}, fmt.Errorf("getting or creating job for voice=%s story=%s: %w", arg.VoiceID, arg.StoryID, err)
	}
	return j, nil
}

// GetJobForUpdate locks a job row for a state transition.
func (q *Queries) GetJobForUpdate(ctx context.Context, jobID uuid.UUID) (SynthesisJob, error) {
	const sql = `
		SELECT job_id, user_id, voice_id, story_id, status, credits_charged, artifact_blob_key, error_message, created_at, updated_at
		FROM synthesis_jobs WHERE job_id = $1
		FOR UPDATE`

	var j SynthesisJob
	err := q.db.QueryRow(ctx, sql, jobID).Scan(
		&j.JobID, &j.UserID, &j.VoiceID, &j.StoryID, &j.Status, &j.CreditsCharged, &j.ArtifactBlobKey, &j.ErrorMessage, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return SynthesisJob{}, fmt.Errorf("getting job %s for update: %w", jobID, err)
	}
	return j, nil
}

// GetJob fetches a job without locking, for read-only status polling.
func (q *Queries) GetJob(ctx context.Context, jobID uuid.UUID) (SynthesisJob, error) {
	const sql = `
		SELECT job_id, user_id, voice_id, story_id, status, credits_charged, artifact_blob_key, error_message, created_at, updated_at
		FROM synthesis_jobs WHERE job_id = $1`

	var j SynthesisJob
	err := q.db.QueryRow(ctx, sql, jobID).Scan(
		&j.JobID, &j.UserID, &j.VoiceID, &j.StoryID, &j.Status, &j.CreditsCharged, &j.ArtifactBlobKey, &j.ErrorMessage, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return SynthesisJob{}, fmt.Errorf("getting job %s: %w", jobID, err)
	}
	return j, nil
}

// UpdateJobStatusParams groups the arguments to UpdateJobStatus.
type UpdateJobStatusParams struct {
	JobID           uuid.UUID
	Status          string
	CreditsCharged  *int64
	ArtifactBlobKey *string
	ErrorMessage    *string
	ClearError      bool
}

// UpdateJobStatus transitions a job's status and optionally sets the
// charge amount, artifact key, or error message.
func (q *Queries) UpdateJobStatus(ctx context.Context, arg UpdateJobStatusParams) error {
	const sql = `
		UPDATE synthesis_jobs SET
			status = $2,
			credits_charged = COALESCE($3, credits_charged),
			artifact_blob_key = COALESCE($4, artifact_blob_key),
			error_message = CASE WHEN $5 THEN NULL WHEN $6::text IS NOT NULL THEN $6 ELSE error_message END,
			updated_at = now()
		WHERE job_id = $1`

	if _, err := q.db.Exec(ctx, sql, arg.JobID, arg.Status, arg.CreditsCharged, arg.ArtifactBlobKey, arg.ClearError, arg.ErrorMessage); err != nil {
		return fmt.Errorf("updating job %s status to %s: %w", arg.JobID, arg.Status, err)
	}
	return nil
}

// CountInFlightJobsForUser counts jobs in pending|processing for a user,
// enforcing the per-user in-flight synthesis cap (SPEC_FULL supplement).
func (q *Queries) CountInFlightJobsForUser(ctx context.Context, userID uuid.UUID) (int, error) {
	const sql = `
		SELECT count(*) FROM synthesis_jobs
		WHERE user_id = $1 AND status IN ('pending', 'processing')`

	var n int
	if err := q.db.QueryRow(ctx, sql, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting in-flight jobs for user %s: %w", userID, err)
	}
	return n, nil
}
