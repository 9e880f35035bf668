// Package coordinator implements the repository coordinator: the
// decide-then-fetch-or-serve state machine that ties the downloader, blob
// store and metadata store together into a single GetArtifact operation.
package coordinator

import (
	"context"
	"errors"
	"fmt"

	"github.com/lgulliver/lodestone/internal/blobstore"
	"github.com/lgulliver/lodestone/internal/downloader"
	"github.com/lgulliver/lodestone/internal/maven"
	"github.com/lgulliver/lodestone/internal/metadatastore"
	"github.com/lgulliver/lodestone/pkg/types"
	"github.com/rs/zerolog/log"
)

// ErrDanglingLocalReference is returned when the metadata store names a
// blob key that the blob store no longer has. Repair is deferred to fsck
// plus a subsequent decision cycle, rather than attempted inline.
var ErrDanglingLocalReference = errors.New("dangling local reference")

// ErrStoredButNotFound is returned if a blob store Get immediately
// following a successful Insert of the same key comes back empty - a
// contract violation in the blob store, surfaced as fatal rather than
// silently retried.
var ErrStoredButNotFound = errors.New("stored but not found")

// ErrSkippedRecentFailure is returned when the metadata store's decision
// is Fail: a download for this ref failed recently enough that the retry
// window has not yet elapsed.
var ErrSkippedRecentFailure = errors.New("skipping due to recent failure")

// Coordinator ties a Downloader, BlobStore and MetadataStore together to
// answer GetArtifact requests for a single upstream repository.
type Coordinator struct {
	downloader *downloader.Downloader
	blobs      blobstore.BlobStore
	metadata   metadatastore.MetadataStore
}

// New returns a Coordinator serving requests against the given upstream,
// blob store and metadata store.
func New(d *downloader.Downloader, blobs blobstore.BlobStore, metadata metadatastore.MetadataStore) *Coordinator {
	return &Coordinator{downloader: d, blobs: blobs, metadata: metadata}
}

// GetArtifact serves ref from the local blob store if a binding is
// already known, or downloads, validates, persists and registers it
// otherwise. See the package-level decision algorithm in MetadataStore
// for the Local/Download/Fail three-way split this drives from.
func (c *Coordinator) GetArtifact(ctx context.Context, ref types.ArtifactRef) (*types.Blob, error) {
	decision, err := c.metadata.DecideGetArtifact(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("deciding how to serve %s: %w", maven.AsMavenPath(ref), err)
	}

	switch decision.Kind {
	case metadatastore.DecisionLocal:
		return c.serveLocal(ctx, ref, decision.Key)
	case metadatastore.DecisionFail:
		return nil, ErrSkippedRecentFailure
	default:
		return c.fetchAndRegister(ctx, ref)
	}
}

func (c *Coordinator) serveLocal(ctx context.Context, ref types.ArtifactRef, key types.BlobKey) (*types.Blob, error) {
	blob, err := c.blobs.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("reading local blob %s for %s: %w", key, maven.AsMavenPath(ref), err)
	}
	if blob == nil {
		return nil, ErrDanglingLocalReference
	}
	return blob, nil
}

func (c *Coordinator) fetchAndRegister(ctx context.Context, ref types.ArtifactRef) (*types.Blob, error) {
	blob, err := c.doFetchAndRegister(ctx, ref)
	if err != nil {
		if registerErr := c.metadata.RegisterFailedDownload(ctx, ref); registerErr != nil {
			log.Warn().Err(registerErr).Str("ref", maven.AsMavenPath(ref)).Msg("failed to record failed download")
		}
		return nil, fmt.Errorf("downloading %s: %w", maven.AsMavenPath(ref), err)
	}
	return blob, nil
}

func (c *Coordinator) doFetchAndRegister(ctx context.Context, ref types.ArtifactRef) (*types.Blob, error) {
	incoming, err := c.downloader.Get(ctx, maven.AsMavenPath(ref))
	if err != nil {
		return nil, err
	}
	defer incoming.Data.Close()

	key, err := c.blobs.Insert(ctx, incoming.Data)
	if err != nil {
		return nil, err
	}

	if err := c.metadata.RegisterArtifact(ctx, ref, key); err != nil {
		return nil, err
	}

	blob, err := c.blobs.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if blob == nil {
		return nil, ErrStoredButNotFound
	}
	return blob, nil
}

// GetArtifactSHA1 returns the SHA-1 digest of ref, driving an ingest if the
// artifact is not already local. Cheap beyond the ingest itself: the
// underlying data stream is never read just to answer this.
func (c *Coordinator) GetArtifactSHA1(ctx context.Context, ref types.ArtifactRef) ([20]byte, error) {
	blob, err := c.GetArtifact(ctx, ref)
	if err != nil {
		return [20]byte{}, err
	}
	defer blob.Data.Close()
	if !blob.Digests.HasSHA1 {
		return [20]byte{}, fmt.Errorf("committed blob for %s is missing its sha1 digest", maven.AsMavenPath(ref))
	}
	return blob.Digests.SHA1, nil
}

// GetArtifactMD5 returns the MD5 digest of ref, driving an ingest if the
// artifact is not already local.
func (c *Coordinator) GetArtifactMD5(ctx context.Context, ref types.ArtifactRef) ([16]byte, error) {
	blob, err := c.GetArtifact(ctx, ref)
	if err != nil {
		return [16]byte{}, err
	}
	defer blob.Data.Close()
	if !blob.Digests.HasMD5 {
		return [16]byte{}, fmt.Errorf("committed blob for %s is missing its md5 digest", maven.AsMavenPath(ref))
	}
	return blob.Digests.MD5, nil
}

// RegisterPlugin, UnregisterPlugin, GetPlugins and GetArtifactMetadata are
// thin pass-throughs to the metadata store - the coordinator's public
// surface covers the full repository contract, not just blob retrieval.

func (c *Coordinator) RegisterPlugin(ctx context.Context, groupID string, meta types.PluginMetadata) (types.PluginRegistrationResult, error) {
	return c.metadata.RegisterPlugin(ctx, groupID, meta)
}

func (c *Coordinator) UnregisterPlugin(ctx context.Context, groupID, artifactID string) (bool, error) {
	return c.metadata.UnregisterPlugin(ctx, groupID, artifactID)
}

func (c *Coordinator) GetPlugins(ctx context.Context, groupID string) ([]types.PluginMetadata, error) {
	return c.metadata.GetPlugins(ctx, groupID)
}

func (c *Coordinator) GetArtifactMetadata(ctx context.Context, groupID, artifactID string) (*types.ArtifactMetadataRecord, error) {
	return c.metadata.GetArtifactMetadata(ctx, groupID, artifactID)
}
