// Package memory is an in-process MetadataStore double: correct and simple,
// used for tests and for the "single instance, no shared cache" deployment
// shape. See redisstore for the shared-cache-backed implementation.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/lgulliver/lodestone/internal/metadatastore"
	"github.com/lgulliver/lodestone/pkg/types"
)

type groupArtifact struct {
	groupID    string
	artifactID string
}

type versionEntry struct {
	release   bool
	timestamp time.Time
}

// Store is a MetadataStore backed by plain Go maps under a single mutex.
type Store struct {
	mu sync.RWMutex

	retryWindow time.Duration

	localArtifacts map[types.ArtifactRef]types.BlobKey
	failures       map[types.ArtifactRef]time.Time

	versionOrder map[groupArtifact][]string
	versions     map[groupArtifact]map[string]versionEntry

	plugins map[string]map[string]types.PluginMetadata // groupID -> artifactID -> metadata
}

// New returns an empty Store whose failed-download records expire after
// retryWindow.
func New(retryWindow time.Duration) *Store {
	return &Store{
		retryWindow:    retryWindow,
		localArtifacts: make(map[types.ArtifactRef]types.BlobKey),
		failures:       make(map[types.ArtifactRef]time.Time),
		versionOrder:   make(map[groupArtifact][]string),
		versions:       make(map[groupArtifact]map[string]versionEntry),
		plugins:        make(map[string]map[string]types.PluginMetadata),
	}
}

var _ metadatastore.MetadataStore = (*Store)(nil)

func (s *Store) DecideGetArtifact(ctx context.Context, ref types.ArtifactRef) (metadatastore.Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if key, ok := s.localArtifacts[ref]; ok {
		return metadatastore.Decision{Kind: metadatastore.DecisionLocal, Key: key}, nil
	}

	if failedAt, ok := s.failures[ref]; ok {
		if time.Since(failedAt) > s.retryWindow {
			delete(s.failures, ref)
			return metadatastore.Decision{Kind: metadatastore.DecisionDownload}, nil
		}
		return metadatastore.Decision{Kind: metadatastore.DecisionFail}, nil
	}

	return metadatastore.Decision{Kind: metadatastore.DecisionDownload}, nil
}

func (s *Store) RegisterArtifact(ctx context.Context, ref types.ArtifactRef, key types.BlobKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.localArtifacts[ref] = key
	delete(s.failures, ref)

	ga := groupArtifact{groupID: ref.GroupID, artifactID: ref.ArtifactID}
	if s.versions[ga] == nil {
		s.versions[ga] = make(map[string]versionEntry)
	}
	versionStr := ref.Version.String()
	if _, exists := s.versions[ga][versionStr]; !exists {
		s.versionOrder[ga] = append(s.versionOrder[ga], versionStr)
	}
	s.versions[ga][versionStr] = versionEntry{
		release:   !ref.Version.Snapshot,
		timestamp: time.Now(),
	}

	return nil
}

func (s *Store) RegisterFailedDownload(ctx context.Context, ref types.ArtifactRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[ref] = time.Now()
	return nil
}

func (s *Store) RegisterPlugin(ctx context.Context, groupID string, meta types.PluginMetadata) (types.PluginRegistrationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.plugins[groupID] == nil {
		s.plugins[groupID] = make(map[string]types.PluginMetadata)
	}
	_, existed := s.plugins[groupID][meta.ArtifactID]
	s.plugins[groupID][meta.ArtifactID] = meta

	if existed {
		return types.PluginUpdated, nil
	}
	return types.PluginInserted, nil
}

func (s *Store) UnregisterPlugin(ctx context.Context, groupID, artifactID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	group, ok := s.plugins[groupID]
	if !ok {
		return false, nil
	}
	if _, ok := group[artifactID]; !ok {
		return false, nil
	}
	delete(group, artifactID)
	return true, nil
}

func (s *Store) GetPlugins(ctx context.Context, groupID string) ([]types.PluginMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	group := s.plugins[groupID]
	out := make([]types.PluginMetadata, 0, len(group))
	for _, meta := range group {
		out = append(out, meta)
	}
	return out, nil
}

func (s *Store) GetArtifactMetadata(ctx context.Context, groupID, artifactID string) (*types.ArtifactMetadataRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ga := groupArtifact{groupID: groupID, artifactID: artifactID}
	entries, ok := s.versions[ga]
	if !ok || len(entries) == 0 {
		return nil, nil
	}

	var latestVersion, releaseVersion string
	var latestTime, releaseTime time.Time

	for version, entry := range entries {
		if entry.timestamp.After(latestTime) {
			latestTime = entry.timestamp
			latestVersion = version
		}
		if entry.release && entry.timestamp.After(releaseTime) {
			releaseTime = entry.timestamp
			releaseVersion = version
		}
	}

	versions := make([]string, len(s.versionOrder[ga]))
	copy(versions, s.versionOrder[ga])

	return &types.ArtifactMetadataRecord{
		Latest:      latestVersion,
		Release:     releaseVersion,
		Versions:    versions,
		LastUpdated: latestTime,
	}, nil
}

func (s *Store) IsReferenced(ctx context.Context, key types.BlobKey) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, k := range s.localArtifacts {
		if k == key {
			return true, nil
		}
	}
	return false, nil
}
