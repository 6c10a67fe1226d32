// Package blobstore defines the artifact/sample blob storage contract
// that spec.md §1 places out of scope as an external collaborator ("S3
// blob I/O"): only the contract that pkg/voice and pkg/synthesis depend
// on is specified here, plus a filesystem-backed implementation usable
// in development and tests in place of a real object store.
package blobstore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound marks a missing blob key.
var ErrNotFound = errors.New("blobstore: not found")

// Store persists and retrieves opaque byte blobs by key: voice samples
// under one prefix, synthesis artifacts under another. A production
// deployment backs this with S3 or an equivalent object store; that
// client is an external collaborator and is not implemented here.
type Store interface {
	// Put writes data under key, overwriting any existing blob.
	Put(ctx context.Context, key string, data []byte) error
	// Get reads the blob at key, returning ErrNotFound if absent.
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete removes the blob at key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// SignedURL returns a time-limited, directly fetchable URL for key,
	// used for the artifact_url that start_synthesis returns for a ready job.
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}
