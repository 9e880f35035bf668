package blobstore

import (
	"context"
	"crypto/md5"  //nolint:gosec
	"crypto/sha1" //nolint:gosec
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lgulliver/lodestone/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRefs struct {
	referenced map[types.BlobKey]bool
}

func (f fakeRefs) IsReferenced(ctx context.Context, key types.BlobKey) (bool, error) {
	return f.referenced[key], nil
}

func TestLocal_InsertGetDelete(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocal(dir)
	require.NoError(t, err)

	content := []byte("hello, blob store")
	key, err := store.Insert(context.Background(), strings.NewReader(string(content)))
	require.NoError(t, err)

	blob, err := store.Get(context.Background(), key)
	require.NoError(t, err)
	require.NotNil(t, blob)

	assert.True(t, blob.Digests.HasSHA1)
	assert.True(t, blob.Digests.HasMD5)
	assert.Equal(t, sha1.Sum(content), blob.Digests.SHA1)
	assert.Equal(t, md5.Sum(content), blob.Digests.MD5)

	got, err := io.ReadAll(blob.Data)
	require.NoError(t, err)
	assert.Equal(t, content, got)
	require.NoError(t, blob.Data.Close())

	existed, err := store.Delete(context.Background(), key)
	require.NoError(t, err)
	assert.True(t, existed)

	blob, err = store.Get(context.Background(), key)
	require.NoError(t, err)
	assert.Nil(t, blob)

	existed, err = store.Delete(context.Background(), key)
	require.NoError(t, err)
	assert.False(t, existed)
}

func TestLocal_ShardedLayout(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocal(dir)
	require.NoError(t, err)

	key, err := store.Insert(context.Background(), strings.NewReader("x"))
	require.NoError(t, err)

	s := key.String()
	expected := filepath.Join(dir, s[0:1], s[1:4], s[4:6], s[6:8], s)

	_, err = os.Stat(filepath.Join(expected, "data"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(expected, "metadata.json"))
	assert.NoError(t, err)
}

func TestLocal_GetMissingReturnsNilNil(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocal(dir)
	require.NoError(t, err)

	blob, err := store.Get(context.Background(), types.BlobKey{})
	require.NoError(t, err)
	assert.Nil(t, blob)
}

func TestLocal_Fsck_RemovesOrphanedInsertingDir(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocal(dir)
	require.NoError(t, err)

	key, err := store.Insert(context.Background(), strings.NewReader("kept"))
	require.NoError(t, err)

	staleDir := filepath.Join(dir, "a", "bcd", "ef", "gh", "deadbeef-0000-0000-0000-000000000000.inserting")
	require.NoError(t, os.MkdirAll(staleDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(staleDir, "data"), []byte("partial"), 0o644))

	backdate(t, staleDir, 2*time.Hour)

	refs := fakeRefs{referenced: map[types.BlobKey]bool{key: true}}
	require.NoError(t, store.Fsck(context.Background(), time.Minute, false, refs))

	_, err = os.Stat(staleDir)
	assert.True(t, os.IsNotExist(err))

	blob, err := store.Get(context.Background(), key)
	require.NoError(t, err)
	assert.NotNil(t, blob)
}

func TestLocal_Fsck_RemovesUnreferencedBlob(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocal(dir)
	require.NoError(t, err)

	orphan, err := store.Insert(context.Background(), strings.NewReader("orphan"))
	require.NoError(t, err)
	kept, err := store.Insert(context.Background(), strings.NewReader("kept"))
	require.NoError(t, err)

	backdateBlob(t, dir, orphan, 2*time.Hour)
	backdateBlob(t, dir, kept, 2*time.Hour)

	refs := fakeRefs{referenced: map[types.BlobKey]bool{kept: true}}
	require.NoError(t, store.Fsck(context.Background(), time.Minute, false, refs))

	blob, err := store.Get(context.Background(), orphan)
	require.NoError(t, err)
	assert.Nil(t, blob)

	blob, err = store.Get(context.Background(), kept)
	require.NoError(t, err)
	assert.NotNil(t, blob)
}

func TestLocal_Fsck_RespectsGracePeriod(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocal(dir)
	require.NoError(t, err)

	fresh, err := store.Insert(context.Background(), strings.NewReader("fresh"))
	require.NoError(t, err)

	refs := fakeRefs{referenced: map[types.BlobKey]bool{}}
	require.NoError(t, store.Fsck(context.Background(), time.Hour, false, refs))

	blob, err := store.Get(context.Background(), fresh)
	require.NoError(t, err)
	assert.NotNil(t, blob, "blob younger than the grace period must survive even though it is unreferenced")
}

func TestLocal_Fsck_LogOnlyDoesNotDelete(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocal(dir)
	require.NoError(t, err)

	orphan, err := store.Insert(context.Background(), strings.NewReader("orphan"))
	require.NoError(t, err)
	backdateBlob(t, dir, orphan, 2*time.Hour)

	refs := fakeRefs{referenced: map[types.BlobKey]bool{}}
	require.NoError(t, store.Fsck(context.Background(), time.Minute, true, refs))

	blob, err := store.Get(context.Background(), orphan)
	require.NoError(t, err)
	assert.NotNil(t, blob, "log_only fsck must not delete anything")
}

// backdate sets dir's mtime age in the past, the mechanism by which Fsck
// tests simulate directories old enough to be eligible for reclamation.
func backdate(t *testing.T, dir string, age time.Duration) {
	t.Helper()
	then := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(dir, then, then))
}

func backdateBlob(t *testing.T, root string, key types.BlobKey, age time.Duration) {
	t.Helper()
	s := key.String()
	dir := filepath.Join(root, s[0:1], s[1:4], s[4:6], s[6:8], s)
	backdate(t, dir, age)
}
