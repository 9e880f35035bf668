package blobstore

import (
	"bytes"
	"context"
	"crypto/md5"  //nolint:gosec // upstream-advertised digest, not a security boundary
	"crypto/sha1" //nolint:gosec // upstream-advertised digest, not a security boundary
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lgulliver/lodestone/pkg/types"
)

// Memory is an in-memory BlobStore double: neither sharded nor crash-safe,
// used in tests where a real filesystem would only add noise. There is no
// on-disk temp-directory state to reconcile, so Fsck only reclaims entries
// the reference oracle no longer vouches for, so that coordinator tests can
// exercise the same contract against either store.
type Memory struct {
	mu   sync.RWMutex
	data map[types.BlobKey]memoryEntry
}

type memoryEntry struct {
	bytes   []byte
	digests types.StoredDigests
}

// NewMemory returns an empty in-memory BlobStore.
func NewMemory() *Memory {
	return &Memory{data: make(map[types.BlobKey]memoryEntry)}
}

func (m *Memory) Insert(ctx context.Context, data io.Reader) (types.BlobKey, error) {
	select {
	case <-ctx.Done():
		return uuid.Nil, ctx.Err()
	default:
	}

	sha1Hasher := sha1.New()
	md5Hasher := md5.New()
	var buf bytes.Buffer
	multi := io.MultiWriter(&buf, sha1Hasher, md5Hasher)

	if _, err := io.Copy(multi, data); err != nil {
		return uuid.Nil, err
	}

	var digests types.StoredDigests
	copy(digests.SHA1[:], sha1Hasher.Sum(nil))
	copy(digests.MD5[:], md5Hasher.Sum(nil))

	key := uuid.New()

	m.mu.Lock()
	m.data[key] = memoryEntry{bytes: buf.Bytes(), digests: digests}
	m.mu.Unlock()

	return key, nil
}

func (m *Memory) Get(ctx context.Context, key types.BlobKey) (*types.Blob, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	m.mu.RLock()
	entry, ok := m.data[key]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	return &types.Blob{
		Data: io.NopCloser(bytes.NewReader(entry.bytes)),
		Digests: types.BlobDigests{
			SHA1: entry.digests.SHA1, HasSHA1: true,
			MD5: entry.digests.MD5, HasMD5: true,
		},
	}, nil
}

func (m *Memory) Delete(ctx context.Context, key types.BlobKey) (bool, error) {
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	default:
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; !ok {
		return false, nil
	}
	delete(m.data, key)
	return true, nil
}

// Fsck reclaims every key the reference oracle no longer vouches for, or
// deletes nothing when logOnly is set. grace is ignored - there is no
// in-flight temp state to protect against in an in-memory store, so the
// grace window has nothing to do.
func (m *Memory) Fsck(ctx context.Context, grace time.Duration, logOnly bool, refs ReferenceOracle) error {
	m.mu.RLock()
	keys := make([]types.BlobKey, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	m.mu.RUnlock()

	for _, key := range keys {
		referenced, err := refs.IsReferenced(ctx, key)
		if err != nil {
			return err
		}
		if referenced {
			continue
		}
		if logOnly {
			continue
		}
		m.mu.Lock()
		delete(m.data, key)
		m.mu.Unlock()
	}
	return nil
}
