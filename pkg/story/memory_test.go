package story

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLookup_GetAndMiss(t *testing.T) {
	lookup := NewMemoryLookup(Story{StoryID: "s1", Text: "once upon a time"})

	got, err := lookup.Get(t.Context(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "once upon a time", got.Text)

	_, err = lookup.Get(t.Context(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryLookup_Put(t *testing.T) {
	lookup := NewMemoryLookup()
	lookup.Put(Story{StoryID: "s2", Text: "the end"})

	got, err := lookup.Get(t.Context(), "s2")
	require.NoError(t, err)
	assert.Equal(t, "the end", got.Text)
}
