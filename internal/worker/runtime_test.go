package worker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRetriesFor_BeatsRunOnce(t *testing.T) {
	r := &Runtime{maxRetries: 5}

	assert.Equal(t, uint(1), r.retriesFor(Task{Type: TaskProcessQueue}))
	assert.Equal(t, uint(1), r.retriesFor(Task{Type: TaskReclaimIdle}))
	assert.Equal(t, uint(1), r.retriesFor(Task{Type: TaskExpireLots}))
	assert.Equal(t, uint(5), r.retriesFor(Task{Type: TaskAllocate}))
	assert.Equal(t, uint(5), r.retriesFor(Task{Type: TaskSynthesize}))
}

func TestRetriesFor_ZeroConfiguredMeansOneAttempt(t *testing.T) {
	r := &Runtime{maxRetries: 0}
	assert.Equal(t, uint(1), r.retriesFor(Task{Type: TaskAllocate}))
}
