// Package blobstore implements the content-addressed blob store: crash-safe
// insert/get/delete of large byte streams, keyed by an opaque UUID, plus an
// orphan sweeper that reconciles the store against an external reference
// oracle.
package blobstore

import (
	"context"
	"io"
	"time"

	"github.com/lgulliver/lodestone/pkg/types"
)

// ReferenceOracle answers whether a blob key is still referenced by
// whatever owns the blob store's lifecycle (the metadata store, in
// production). fsck treats a "no" as a license to delete.
type ReferenceOracle interface {
	IsReferenced(ctx context.Context, key types.BlobKey) (bool, error)
}

// BlobStore is the capability set a blob store implementation exposes:
// crash-safe insert/get/delete plus an orphan sweep. Both the filesystem
// variant and the in-memory test double satisfy it.
type BlobStore interface {
	// Insert streams data to a freshly-generated key, computing SHA-1 and
	// MD5 as it goes, and returns that key once the blob is durably
	// committed.
	Insert(ctx context.Context, data io.Reader) (types.BlobKey, error)

	// Get returns the blob for key, or (nil, nil) if no such key exists.
	Get(ctx context.Context, key types.BlobKey) (*types.Blob, error)

	// Delete removes the blob for key, returning whether it existed.
	Delete(ctx context.Context, key types.BlobKey) (bool, error)

	// Fsck walks the store, deleting (or, if logOnly, merely reporting)
	// temp directories and blob directories older than grace that refs
	// no longer references.
	Fsck(ctx context.Context, grace time.Duration, logOnly bool, refs ReferenceOracle) error
}
