package slotqueue

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestPositionCacheKey_Deterministic(t *testing.T) {
	voiceID := uuid.New()

	k1 := positionCacheKey("A", voiceID)
	k2 := positionCacheKey("A", voiceID)
	assert.Equal(t, k1, k2)
}

func TestPositionCacheKey_DiffersByQueueAndVoice(t *testing.T) {
	v1, v2 := uuid.New(), uuid.New()

	assert.NotEqual(t, positionCacheKey("A", v1), positionCacheKey("B", v1))
	assert.NotEqual(t, positionCacheKey("A", v1), positionCacheKey("A", v2))
}

func TestPositionCacheTTL(t *testing.T) {
	assert.Equal(t, float64(30), positionCacheTTL.Seconds())
}

func TestNew_NilRedisDoesNotPanic(t *testing.T) {
	q := New(nil, nil)
	assert.NotNil(t, q)

	ch := q.Subscribe(t.Context())
	_, ok := <-ch
	assert.False(t, ok, "subscribe on a nil client should yield a closed channel")
}
