package synthesis

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/duskvoice/narrator/internal/db"
)

func TestFromRow(t *testing.T) {
	jobID := uuid.New()
	userID := uuid.New()
	voiceID := uuid.New()
	now := time.Now()
	reason := "provider timeout"

	row := db.SynthesisJob{
		JobID:          jobID,
		UserID:         userID,
		VoiceID:        voiceID,
		StoryID:        "story-1",
		Status:         db.JobStatusError,
		CreditsCharged: 40,
		ErrorMessage:   &reason,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	got := fromRow(row)
	assert.Equal(t, jobID, got.JobID)
	assert.Equal(t, int64(40), got.CreditsCharged)
	assert.Equal(t, "provider timeout", *got.ErrorMessage)
}
