package voice

import "fmt"

// ErrInvalidState marks an illegal allocation_status transition.
type ErrInvalidState struct {
	From string
	To   string
}

func (e ErrInvalidState) Error() string {
	return fmt.Sprintf("voice: illegal transition from %q to %q", e.From, e.To)
}

// ErrNotFound marks a missing voice.
type ErrNotFound struct{ VoiceID string }

func (e ErrNotFound) Error() string { return "voice: not found: " + e.VoiceID }

// ErrForbidden marks a voice scoped to another user.
type ErrForbidden struct{ VoiceID string }

func (e ErrForbidden) Error() string { return "voice: forbidden: " + e.VoiceID }

// ErrInvalidArgument marks malformed upload/create arguments.
type ErrInvalidArgument struct{ Msg string }

func (e ErrInvalidArgument) Error() string { return "voice: invalid argument: " + e.Msg }
