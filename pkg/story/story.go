// Package story defines the minimal story-lookup contract that spec.md
// §1 places out of scope as an external collaborator ("story content
// storage"): the orchestrator only needs a story's text to compute
// required_credits and pass to the adapter, never how it is authored or
// stored.
package story

import (
	"context"
	"errors"
)

// ErrNotFound marks an unknown story_id.
var ErrNotFound = errors.New("story: not found")

// Story is the minimal view the orchestrator needs.
type Story struct {
	StoryID string
	Text    string
}

// Lookup resolves a story_id to its narratable text.
type Lookup interface {
	Get(ctx context.Context, storyID string) (Story, error)
}
