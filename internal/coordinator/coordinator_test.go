package coordinator

import (
	"context"
	"crypto/sha1" //nolint:gosec
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lgulliver/lodestone/internal/blobstore"
	"github.com/lgulliver/lodestone/internal/downloader"
	"github.com/lgulliver/lodestone/internal/metadatastore"
	"github.com/lgulliver/lodestone/internal/metadatastore/memory"
	"github.com/lgulliver/lodestone/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustNewUUID(t *testing.T) types.BlobKey {
	t.Helper()
	return uuid.New()
}

func testRef() types.ArtifactRef {
	return types.ArtifactRef{
		GroupID:    "org.example",
		ArtifactID: "widget",
		Version:    types.ReleaseVersion("1.0.0"),
		Classifier: types.Unclassified(),
		Extension:  ".jar",
	}
}

func newCoordinator(t *testing.T, handler http.HandlerFunc) (*Coordinator, *memory.Store, *blobstore.Memory) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	d, err := downloader.New(srv.URL, nil)
	require.NoError(t, err)

	blobs := blobstore.NewMemory()
	meta := memory.New(300 * time.Second)

	return New(d, blobs, meta), meta, blobs
}

func TestGetArtifact_DownloadsInsertsRegistersAndServes(t *testing.T) {
	body := []byte("jar contents")
	sum := sha1.Sum(body)

	c, meta, _ := newCoordinator(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/org/example/widget/1.0.0/widget-1.0.0.jar", r.URL.Path)
		w.Header().Set("x-checksum-sha1", hex.EncodeToString(sum[:]))
		w.Write(body)
	})

	blob, err := c.GetArtifact(context.Background(), testRef())
	require.NoError(t, err)

	got, err := io.ReadAll(blob.Data)
	require.NoError(t, err)
	assert.Equal(t, body, got)
	assert.Equal(t, sum, blob.Digests.SHA1)

	d, err := meta.DecideGetArtifact(context.Background(), testRef())
	require.NoError(t, err)
	assert.Equal(t, metadatastore.DecisionLocal, d.Kind)
}

func TestGetArtifact_SecondCallServesLocally(t *testing.T) {
	body := []byte("served once from upstream")
	requests := 0

	c, _, _ := newCoordinator(t, func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Write(body)
	})

	_, err := c.GetArtifact(context.Background(), testRef())
	require.NoError(t, err)

	blob, err := c.GetArtifact(context.Background(), testRef())
	require.NoError(t, err)
	got, err := io.ReadAll(blob.Data)
	require.NoError(t, err)
	assert.Equal(t, body, got)

	assert.Equal(t, 1, requests, "second GetArtifact must not hit upstream again")
}

func TestGetArtifact_FailedValidationRegistersFailure(t *testing.T) {
	body := []byte("tampered")
	var wrong [20]byte

	c, meta, _ := newCoordinator(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("x-checksum-sha1", hex.EncodeToString(wrong[:]))
		w.Write(body)
	})

	_, err := c.GetArtifact(context.Background(), testRef())
	assert.Error(t, err)

	d, derr := meta.DecideGetArtifact(context.Background(), testRef())
	require.NoError(t, derr)
	assert.Equal(t, metadatastore.DecisionFail, d.Kind)
}

func TestGetArtifact_RecentFailureSkipsWithoutHittingUpstream(t *testing.T) {
	requests := 0
	c, meta, _ := newCoordinator(t, func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusInternalServerError)
	})

	require.NoError(t, meta.RegisterFailedDownload(context.Background(), testRef()))

	_, err := c.GetArtifact(context.Background(), testRef())
	assert.ErrorIs(t, err, ErrSkippedRecentFailure)
	assert.Equal(t, 0, requests)
}

func TestGetArtifact_DanglingLocalReferenceIsReported(t *testing.T) {
	c, meta, _ := newCoordinator(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("upstream must not be contacted for a Local decision")
	})

	// Register a binding to a key the blob store has never actually
	// stored, simulating drift fsck would otherwise repair.
	fakeKey := mustNewUUID(t)
	require.NoError(t, meta.RegisterArtifact(context.Background(), testRef(), fakeKey))

	_, err := c.GetArtifact(context.Background(), testRef())
	assert.ErrorIs(t, err, ErrDanglingLocalReference)
}

func TestGetArtifactSHA1(t *testing.T) {
	body := []byte("digest me")
	sum := sha1.Sum(body)

	c, _, _ := newCoordinator(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("x-checksum-sha1", hex.EncodeToString(sum[:]))
		w.Write(body)
	})

	got, err := c.GetArtifactSHA1(context.Background(), testRef())
	require.NoError(t, err)
	assert.Equal(t, sum, got)
}
