// Package ttsadapter implements the Remote Voice Adapter contract of
// spec.md §4.5: idempotent create/delete against an external TTS
// provider, and synthesize with drift detection when the remote system
// has deleted a voice without notice.
package ttsadapter

import (
	"context"
	"errors"
)

// ErrRemoteVoiceMissing is returned by Synthesize when the provider no
// longer recognizes remote_voice_id — the drift model of spec.md §4.5.
// The Slot Manager responds by clearing the binding and re-enqueuing.
var ErrRemoteVoiceMissing = errors.New("ttsadapter: remote voice missing")

// ErrNotFound is returned by DeleteVoice when remote_voice_id is already
// gone; callers treat this as a successful delete (idempotent).
var ErrNotFound = errors.New("ttsadapter: remote voice not found")

// Adapter abstracts over one external TTS provider. create_voice may be
// called multiple times for the same logical voice due to retries; per
// spec.md §4.5 option (b), the Slot Manager is responsible for checking
// voice.remote_voice_id before invoking CreateVoice, so implementations
// need not themselves deduplicate.
type Adapter interface {
	// CreateVoice registers a new remote voice from a sample and returns
	// its remote identifier.
	CreateVoice(ctx context.Context, sample []byte, name string) (remoteID string, err error)
	// DeleteVoice removes a remote voice. Returns ErrNotFound (not an
	// error the caller need surface) if it is already gone.
	DeleteVoice(ctx context.Context, remoteID string) error
	// Synthesize renders text through the given remote voice. Returns
	// ErrRemoteVoiceMissing if the provider no longer has remoteID.
	Synthesize(ctx context.Context, remoteID, text string) ([]byte, error)
}

// Registry resolves a provider name to its Adapter.
type Registry map[string]Adapter

// For returns the Adapter registered for a provider, or ok=false if none.
func (r Registry) For(provider string) (Adapter, bool) {
	a, ok := r[provider]
	return a, ok
}
