// Package metadatastore implements the repository coordinator's bookkeeping:
// which artifact refs resolve to which blob key, which refs recently failed
// to fetch from upstream (and should not be retried too eagerly), and the
// plugin/version metadata Maven clients expect back from a group id.
package metadatastore

import (
	"context"

	"github.com/lgulliver/lodestone/pkg/types"
)

// DecisionKind is the three-way outcome of deciding how to serve a
// GetArtifact request.
type DecisionKind int

const (
	// DecisionLocal means the ref is already bound to a blob key; serve it
	// from the blob store.
	DecisionLocal DecisionKind = iota
	// DecisionDownload means no binding exists, or a prior failure has
	// aged out of the retry window; fetch from upstream.
	DecisionDownload
	// DecisionFail means a recent failure is still within the retry
	// window; fail fast instead of hammering upstream.
	DecisionFail
)

func (k DecisionKind) String() string {
	switch k {
	case DecisionLocal:
		return "local"
	case DecisionDownload:
		return "download"
	case DecisionFail:
		return "fail"
	default:
		return "unknown"
	}
}

// Decision is the result of DecideGetArtifact. Key is only meaningful when
// Kind is DecisionLocal.
type Decision struct {
	Kind DecisionKind
	Key  types.BlobKey
}

// MetadataStore is the capability set the repository coordinator relies on:
// the local-artifacts/failures indices driving the serve-or-fetch decision,
// plugin registration, and the derived per-(group,artifact) version record.
// It also satisfies blobstore.ReferenceOracle, since the local-artifacts
// index is exactly the set of blob keys still in use.
type MetadataStore interface {
	DecideGetArtifact(ctx context.Context, ref types.ArtifactRef) (Decision, error)
	RegisterArtifact(ctx context.Context, ref types.ArtifactRef, key types.BlobKey) error
	RegisterFailedDownload(ctx context.Context, ref types.ArtifactRef) error

	RegisterPlugin(ctx context.Context, groupID string, meta types.PluginMetadata) (types.PluginRegistrationResult, error)
	UnregisterPlugin(ctx context.Context, groupID, artifactID string) (bool, error)
	GetPlugins(ctx context.Context, groupID string) ([]types.PluginMetadata, error)

	GetArtifactMetadata(ctx context.Context, groupID, artifactID string) (*types.ArtifactMetadataRecord, error)

	// IsReferenced reports whether key is still bound to some artifact ref
	// - the blobstore.ReferenceOracle contract fsck drives.
	IsReferenced(ctx context.Context, key types.BlobKey) (bool, error)
}
