package voice

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/duskvoice/narrator/internal/db"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to string
		want     bool
	}{
		{db.VoiceStatusRecorded, db.VoiceStatusAllocating, true},
		{db.VoiceStatusAllocating, db.VoiceStatusReady, true},
		{db.VoiceStatusAllocating, db.VoiceStatusError, true},
		{db.VoiceStatusReady, db.VoiceStatusCooling, true},
		{db.VoiceStatusReady, db.VoiceStatusAllocating, false},
		{db.VoiceStatusCooling, db.VoiceStatusReady, true},
		{db.VoiceStatusCooling, db.VoiceStatusEvicted, true},
		{db.VoiceStatusEvicted, db.VoiceStatusAllocating, true},
		{db.VoiceStatusEvicted, db.VoiceStatusReady, false},
		{db.VoiceStatusError, db.VoiceStatusRecorded, true},
		{db.VoiceStatusReady, db.VoiceStatusReady, true}, // same-state no-op
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}
