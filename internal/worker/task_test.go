package worker

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestTask_String(t *testing.T) {
	voiceID := uuid.New()
	task := Task{Type: TaskAllocate, VoiceID: voiceID}
	assert.Contains(t, task.String(), voiceID.String())

	beat := Task{Type: TaskReclaimIdle, Provider: "A"}
	assert.Equal(t, "reclaim_idle(A)", beat.String())
}
