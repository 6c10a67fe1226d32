package blobstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_PutGetDelete(t *testing.T) {
	store := NewFileStore(t.TempDir(), "")
	ctx := t.Context()

	require.NoError(t, store.Put(ctx, "voices/abc/sample.wav", []byte("hello")))

	data, err := store.Get(ctx, "voices/abc/sample.wav")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)

	require.NoError(t, store.Delete(ctx, "voices/abc/sample.wav"))

	_, err = store.Get(ctx, "voices/abc/sample.wav")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStore_DeleteMissingIsNotAnError(t *testing.T) {
	store := NewFileStore(t.TempDir(), "")
	assert.NoError(t, store.Delete(t.Context(), "never/existed"))
}

func TestFileStore_SignedURL_RequiresBaseURL(t *testing.T) {
	store := NewFileStore(t.TempDir(), "")
	_, err := store.SignedURL(t.Context(), "k", 0)
	assert.Error(t, err)

	store2 := NewFileStore(t.TempDir(), "https://cdn.example.test")
	url, err := store2.SignedURL(t.Context(), "artifacts/x.mp3", 0)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.test/artifacts/x.mp3", url)
}
