package fsck

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/lgulliver/lodestone/internal/blobstore"
	"github.com/lgulliver/lodestone/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type alwaysReferenced struct{}

func (alwaysReferenced) IsReferenced(ctx context.Context, key types.BlobKey) (bool, error) {
	return true, nil
}

func TestSweeper_Run_KeepsReferencedBlobs(t *testing.T) {
	store := blobstore.NewMemory()
	key, err := store.Insert(context.Background(), strings.NewReader("kept"))
	require.NoError(t, err)

	s := New(store, alwaysReferenced{}, time.Minute, false)
	require.NoError(t, s.Run(context.Background()))

	blob, err := store.Get(context.Background(), key)
	require.NoError(t, err)
	assert.NotNil(t, blob)
}

type neverReferenced struct{}

func (neverReferenced) IsReferenced(ctx context.Context, key types.BlobKey) (bool, error) {
	return false, nil
}

func TestSweeper_Run_ReclaimsUnreferencedBlobs(t *testing.T) {
	store := blobstore.NewMemory()
	key, err := store.Insert(context.Background(), strings.NewReader("orphan"))
	require.NoError(t, err)

	s := New(store, neverReferenced{}, time.Minute, false)
	require.NoError(t, s.Run(context.Background()))

	blob, err := store.Get(context.Background(), key)
	require.NoError(t, err)
	assert.Nil(t, blob)
}

func TestSweeper_RunPeriodically_StopsCleanly(t *testing.T) {
	store := blobstore.NewMemory()
	s := New(store, alwaysReferenced{}, time.Minute, false)

	stop := s.RunPeriodically(10 * time.Millisecond)
	time.Sleep(25 * time.Millisecond)
	stop()
}
