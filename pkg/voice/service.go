package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Service implements the user-facing half of the Voice Store contract:
// upload (create), inspect, and delete. Locked state transitions during
// allocation/eviction are owned by pkg/slotmanager, which opens its own
// transaction over a Store.
type Service struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewService creates a voice Service.
func NewService(pool *pgxpool.Pool, logger *slog.Logger) *Service {
	return &Service{pool: pool, logger: logger}
}

// Create records a new voice sample in the "recorded" state. blobKey is
// the caller-provided storage key (pkg/blobstore's contract); this
// package never touches blob bytes directly.
func (s *Service) Create(ctx context.Context, userID uuid.UUID, blobKey string, sampleBytes int64, provider string) (Voice, error) {
	if blobKey == "" {
		return Voice{}, ErrInvalidArgument{Msg: "sample_blob_key is required"}
	}
	if sampleBytes <= 0 {
		return Voice{}, ErrInvalidArgument{Msg: "sample_bytes must be positive"}
	}
	if !ValidProviders[provider] {
		return Voice{}, ErrInvalidArgument{Msg: fmt.Sprintf("unknown provider %q", provider)}
	}

	store := NewStore(s.pool)
	v, err := store.Create(ctx, CreateParams{
		UserID:        userID,
		SampleBlobKey: blobKey,
		SampleBytes:   sampleBytes,
		Provider:      provider,
	})
	if err != nil {
		return Voice{}, fmt.Errorf("creating voice: %w", err)
	}
	return fromRow(v), nil
}

// Get fetches a voice, enforcing that it belongs to callerID.
func (s *Service) Get(ctx context.Context, voiceID, callerID uuid.UUID) (Voice, error) {
	store := NewStore(s.pool)
	v, err := store.Get(ctx, voiceID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Voice{}, ErrNotFound{VoiceID: voiceID.String()}
		}
		return Voice{}, fmt.Errorf("getting voice %s: %w", voiceID, err)
	}
	if v.UserID != callerID {
		return Voice{}, ErrForbidden{VoiceID: voiceID.String()}
	}
	return fromRow(v), nil
}

// Delete removes the database record of a voice owned by callerID. It
// does not delete the remote voice or any blob artifacts, and neither
// does the DELETE /voices/{id} handler that calls it.
func (s *Service) Delete(ctx context.Context, voiceID, callerID uuid.UUID) error {
	store := NewStore(s.pool)
	v, err := store.Get(ctx, voiceID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound{VoiceID: voiceID.String()}
		}
		return fmt.Errorf("getting voice %s: %w", voiceID, err)
	}
	if v.UserID != callerID {
		return ErrForbidden{VoiceID: voiceID.String()}
	}
	if err := store.Delete(ctx, voiceID); err != nil {
		return fmt.Errorf("deleting voice %s: %w", voiceID, err)
	}
	return nil
}

// RemoteVoiceID returns the db row's remote id for a voice, used by
// handlers that need to fetch it without the full API view (e.g. audio
// fetch). Exposed here rather than forcing callers to depend on internal/db.
func (s *Service) RemoteVoiceID(ctx context.Context, voiceID uuid.UUID) (*string, error) {
	store := NewStore(s.pool)
	v, err := store.Get(ctx, voiceID)
	if err != nil {
		return nil, err
	}
	return v.RemoteVoiceID, nil
}
