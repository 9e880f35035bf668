package blobstore

import (
	"context"
	"crypto/md5"  //nolint:gosec // upstream-advertised digest, not a security boundary
	"crypto/sha1" //nolint:gosec // upstream-advertised digest, not a security boundary
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lgulliver/lodestone/pkg/types"
	"github.com/rs/zerolog/log"
)

const (
	dataFileName     = "data"
	metadataFileName = "metadata.json"
	insertingSuffix  = ".inserting"
	deletingSuffix   = ".deleting"
	fsckMaxDepth     = 7
)

// Local is the filesystem-backed BlobStore: a sharded directory tree under
// root, with rename-based atomicity distinguishing committed blob
// directories from in-flight ".inserting"/".deleting" ones.
type Local struct {
	root string
}

// NewLocal creates the root directory if needed and returns a Local store
// rooted there.
func NewLocal(root string) (*Local, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating blob store root %s: %w", root, err)
	}
	return &Local{root: root}, nil
}

// shardedPath returns the four-level sharded directory path for key:
// <root>/k0/k1..k3/k4..k5/k6..k7/<full-uuid>.
func (l *Local) shardedPath(key types.BlobKey) string {
	s := key.String()
	return filepath.Join(l.root, s[0:1], s[1:4], s[4:6], s[6:8], s)
}

func (l *Local) Insert(ctx context.Context, data io.Reader) (types.BlobKey, error) {
	select {
	case <-ctx.Done():
		return uuid.Nil, ctx.Err()
	default:
	}

	key := uuid.New()
	finalDir := l.shardedPath(key)
	tempDir := finalDir + insertingSuffix

	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return uuid.Nil, fmt.Errorf("creating insert staging directory for %s: %w", key, err)
	}

	if _, err := l.doInsert(tempDir, data); err != nil {
		if _, cleanupErr := l.deleteDir(tempDir); cleanupErr != nil {
			log.Error().Err(cleanupErr).Str("key", key.String()).Msg("failed to clean up staging directory after failed insert")
		}
		return uuid.Nil, err
	}

	if err := os.Rename(tempDir, finalDir); err != nil {
		return uuid.Nil, fmt.Errorf("committing blob %s: %w", key, err)
	}

	log.Debug().Str("key", key.String()).Msg("blob committed")
	return key, nil
}

// doInsert streams data to tempDir/data, computing SHA-1/MD5 incrementally,
// then writes tempDir/metadata.json with the final digests.
func (l *Local) doInsert(tempDir string, data io.Reader) (types.StoredDigests, error) {
	var digests types.StoredDigests

	dataPath := filepath.Join(tempDir, dataFileName)
	f, err := os.OpenFile(dataPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return digests, fmt.Errorf("creating data file: %w", err)
	}

	sha1Hasher := sha1.New()
	md5Hasher := md5.New()
	multi := io.MultiWriter(f, sha1Hasher, md5Hasher)

	_, copyErr := io.Copy(multi, data)
	closeErr := f.Close()
	if copyErr != nil {
		return digests, fmt.Errorf("writing blob data: %w", copyErr)
	}
	if closeErr != nil {
		return digests, fmt.Errorf("closing blob data file: %w", closeErr)
	}

	copy(digests.SHA1[:], sha1Hasher.Sum(nil))
	copy(digests.MD5[:], md5Hasher.Sum(nil))

	metaBytes, err := json.Marshal(digests)
	if err != nil {
		return digests, fmt.Errorf("marshaling blob metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(tempDir, metadataFileName), metaBytes, 0o644); err != nil {
		return digests, fmt.Errorf("writing blob metadata: %w", err)
	}

	return digests, nil
}

func (l *Local) Get(ctx context.Context, key types.BlobKey) (*types.Blob, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	dir := l.shardedPath(key)
	dataPath := filepath.Join(dir, dataFileName)

	if _, err := os.Stat(dataPath); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("statting blob data for %s: %w", key, err)
	}

	metaBytes, err := os.ReadFile(filepath.Join(dir, metadataFileName))
	if err != nil {
		return nil, fmt.Errorf("reading blob metadata for %s: %w", key, err)
	}

	var stored types.StoredDigests
	if err := json.Unmarshal(metaBytes, &stored); err != nil {
		return nil, fmt.Errorf("unmarshaling blob metadata for %s: %w", key, err)
	}

	f, err := os.Open(dataPath)
	if err != nil {
		return nil, fmt.Errorf("opening blob data for %s: %w", key, err)
	}

	return &types.Blob{
		Data: f,
		Digests: types.BlobDigests{
			SHA1: stored.SHA1, HasSHA1: true,
			MD5: stored.MD5, HasMD5: true,
		},
	}, nil
}

func (l *Local) Delete(ctx context.Context, key types.BlobKey) (bool, error) {
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	default:
	}

	dir := l.shardedPath(key)
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("statting blob directory for %s: %w", key, err)
	}

	tempDir := dir + deletingSuffix
	if err := os.Rename(dir, tempDir); err != nil {
		return false, fmt.Errorf("staging blob %s for deletion: %w", key, err)
	}

	return l.deleteDir(tempDir)
}

// deleteDir removes every regular-file entry inside dir, then the now-empty
// directory. Unexpected sub-directories are treated as a failure rather
// than recursed into - fsck is the only caller that needs to handle nested
// temp directories, and it does so explicitly.
func (l *Local) deleteDir(dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("reading directory %s: %w", dir, err)
	}

	for _, entry := range entries {
		entryPath := filepath.Join(dir, entry.Name())
		if entry.IsDir() {
			return false, fmt.Errorf("unexpected subdirectory %s encountered while deleting %s", entryPath, dir)
		}
		if err := os.Remove(entryPath); err != nil {
			return false, fmt.Errorf("removing %s: %w", entryPath, err)
		}
	}

	if err := os.Remove(dir); err != nil {
		return false, fmt.Errorf("removing directory %s: %w", dir, err)
	}
	return true, nil
}

// Fsck walks the store up to fsckMaxDepth levels deep, reclaiming orphaned
// temp directories and blob directories no longer referenced by refs.
func (l *Local) Fsck(ctx context.Context, grace time.Duration, logOnly bool, refs ReferenceOracle) error {
	_, err := l.fsckWalk(ctx, l.root, 0, grace, logOnly, refs)
	return err
}

// fsckWalk returns whether dir still contains something after the sweep,
// so its caller can prune dir itself once empty.
func (l *Local) fsckWalk(ctx context.Context, dir string, depth int, grace time.Duration, logOnly bool, refs ReferenceOracle) (bool, error) {
	if depth > fsckMaxDepth {
		log.Warn().Str("dir", dir).Msg("fsck: exceeded max depth, treating as non-empty")
		return true, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return false, fmt.Errorf("fsck: reading %s: %w", dir, err)
	}

	nonEmpty := false

	for _, entry := range entries {
		select {
		case <-ctx.Done():
			return true, ctx.Err()
		default:
		}

		path := filepath.Join(dir, entry.Name())

		info, err := entry.Info()
		if err != nil {
			return false, fmt.Errorf("fsck: stat %s: %w", path, err)
		}

		if info.Mode()&os.ModeSymlink != 0 {
			nonEmpty = true
			continue
		}

		if !entry.IsDir() {
			nonEmpty = true
			continue
		}

		name := entry.Name()
		switch {
		case strings.HasSuffix(name, insertingSuffix) || strings.HasSuffix(name, deletingSuffix):
			if !isOlderThan(info, grace) {
				nonEmpty = true
				continue
			}
			l.fsckReclaim(path, logOnly, "orphaned temp directory")
			continue

		default:
			if key, err := uuid.Parse(name); err == nil {
				if !isOlderThan(info, grace) {
					nonEmpty = true
					continue
				}
				referenced, err := refs.IsReferenced(ctx, key)
				if err != nil {
					return false, fmt.Errorf("fsck: checking reference for %s: %w", key, err)
				}
				if !referenced {
					l.fsckReclaim(path, logOnly, "orphaned blob")
					continue
				}
				nonEmpty = true
				continue
			}
		}

		// Intermediate shard directory: recurse, then prune if it ended up
		// empty.
		childNonEmpty, err := l.fsckWalk(ctx, path, depth+1, grace, logOnly, refs)
		if err != nil {
			return false, err
		}
		if childNonEmpty {
			nonEmpty = true
			continue
		}
		if !logOnly {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				log.Warn().Err(err).Str("dir", path).Msg("fsck: failed to prune empty directory")
			}
		}
	}

	return nonEmpty, nil
}

func (l *Local) fsckReclaim(path string, logOnly bool, reason string) {
	if logOnly {
		log.Info().Str("dir", path).Str("reason", reason).Msg("fsck: would delete")
		return
	}
	log.Info().Str("dir", path).Str("reason", reason).Msg("fsck: deleting")
	if err := os.RemoveAll(path); err != nil {
		log.Error().Err(err).Str("dir", path).Msg("fsck: failed to delete")
	}
}

// isOlderThan reports whether info's mtime is older than grace.
func isOlderThan(info os.FileInfo, grace time.Duration) bool {
	return time.Since(info.ModTime()) > grace
}
