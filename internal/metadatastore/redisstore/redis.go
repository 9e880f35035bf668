// Package redisstore is the shared-cache-backed MetadataStore: the
// local-artifacts binding, the failed-download backoff window, and plugin
// registrations live in Redis so that multiple proxy instances can share
// one view of the cache instead of each memoizing independently.
package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/lgulliver/lodestone/internal/metadatastore"
	"github.com/lgulliver/lodestone/pkg/types"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	localKeyPrefix     = "lodestone:local:"
	refForKeyPrefix    = "lodestone:refforkey:"
	failurePrefix      = "lodestone:failure:"
	pluginsKeyPrefix   = "lodestone:plugins:"
	versionsKeyPrefix  = "lodestone:versions:"
	versionOrderPrefix = "lodestone:versionorder:"
)

// Store is a MetadataStore backed by a Redis client.
type Store struct {
	client      *redis.Client
	retryWindow time.Duration
}

// New wraps an already-configured *redis.Client. The caller owns the
// client's lifecycle (including Close).
func New(client *redis.Client, retryWindow time.Duration) *Store {
	return &Store{client: client, retryWindow: retryWindow}
}

var _ metadatastore.MetadataStore = (*Store)(nil)

// refID derives a deterministic, collision-resistant Redis key fragment
// for an artifact ref. The unit separator keeps ambiguous coordinates
// (e.g. a group id that happens to contain a colon) from colliding. It
// must be exactly as discriminating as types.ArtifactRef itself - which
// is what the in-memory store keys its maps on - so every field of
// Version (not just Value) has to be folded in, or distinct snapshot
// builds of the same base version collapse onto one Redis key.
func refID(ref types.ArtifactRef) string {
	classifier := ""
	if ref.Classifier.Present {
		classifier = ref.Classifier.Value
	}
	build := ""
	if ref.Version.HasBuild {
		build = strconv.Itoa(ref.Version.Build)
	}
	return fmt.Sprintf("%s\x1f%s\x1f%s\x1f%t\x1f%s\x1f%s\x1f%s\x1f%s",
		ref.GroupID, ref.ArtifactID, ref.Version.Value, ref.Version.Snapshot,
		ref.Version.Timestamp, build, classifier, ref.Extension)
}

func gaID(groupID, artifactID string) string {
	return groupID + "\x1f" + artifactID
}

type storedBinding struct {
	Key types.BlobKey `json:"key"`
}

func (s *Store) DecideGetArtifact(ctx context.Context, ref types.ArtifactRef) (metadatastore.Decision, error) {
	localKey := localKeyPrefix + refID(ref)

	raw, err := s.client.Get(ctx, localKey).Result()
	switch {
	case err == nil:
		var binding storedBinding
		if err := json.Unmarshal([]byte(raw), &binding); err != nil {
			return metadatastore.Decision{}, fmt.Errorf("unmarshaling local binding: %w", err)
		}
		return metadatastore.Decision{Kind: metadatastore.DecisionLocal, Key: binding.Key}, nil
	case err != redis.Nil:
		return metadatastore.Decision{}, fmt.Errorf("reading local binding: %w", err)
	}

	// failure records carry their own TTL of retryWindow, so a key that
	// has simply expired out of Redis IS the eviction - no separate
	// timestamp comparison or delete call is needed here.
	failureKey := failurePrefix + refID(ref)
	exists, err := s.client.Exists(ctx, failureKey).Result()
	if err != nil {
		return metadatastore.Decision{}, fmt.Errorf("checking failure record: %w", err)
	}
	if exists > 0 {
		return metadatastore.Decision{Kind: metadatastore.DecisionFail}, nil
	}

	return metadatastore.Decision{Kind: metadatastore.DecisionDownload}, nil
}

func (s *Store) RegisterArtifact(ctx context.Context, ref types.ArtifactRef, key types.BlobKey) error {
	id := refID(ref)

	binding, err := json.Marshal(storedBinding{Key: key})
	if err != nil {
		return fmt.Errorf("marshaling local binding: %w", err)
	}

	// Read the prior binding, if any, so its reverse-reference can be
	// cleared once the new one is in place - otherwise the superseded
	// key stays IsReferenced forever and fsck can never reclaim it.
	var oldKey types.BlobKey
	hadOldKey := false
	if prevRaw, err := s.client.Get(ctx, localKeyPrefix+id).Result(); err == nil {
		var prev storedBinding
		if err := json.Unmarshal([]byte(prevRaw), &prev); err != nil {
			return fmt.Errorf("unmarshaling previous local binding: %w", err)
		}
		oldKey, hadOldKey = prev.Key, true
	} else if err != redis.Nil {
		return fmt.Errorf("reading previous local binding: %w", err)
	}

	if err := s.client.Set(ctx, localKeyPrefix+id, binding, 0).Err(); err != nil {
		return fmt.Errorf("writing local binding: %w", err)
	}
	if err := s.client.Set(ctx, refForKeyPrefix+key.String(), id, 0).Err(); err != nil {
		return fmt.Errorf("writing reverse reference: %w", err)
	}
	if hadOldKey && oldKey != key {
		if err := s.client.Del(ctx, refForKeyPrefix+oldKey.String()).Err(); err != nil {
			log.Warn().Err(err).Str("ref", id).Msg("failed to clear superseded reverse reference")
		}
	}
	if err := s.client.Del(ctx, failurePrefix+id).Err(); err != nil {
		log.Warn().Err(err).Str("ref", id).Msg("failed to clear stale failure record on register")
	}

	ga := gaID(ref.GroupID, ref.ArtifactID)
	versionStr := ref.Version.String()

	entry := versionEntry{Release: !ref.Version.Snapshot, Timestamp: time.Now()}
	entryBytes, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling version entry: %w", err)
	}

	versionsKey := versionsKeyPrefix + ga
	isNew, err := s.client.HSetNX(ctx, versionsKey, versionStr, "").Result()
	if err != nil {
		return fmt.Errorf("checking version novelty: %w", err)
	}
	if err := s.client.HSet(ctx, versionsKey, versionStr, entryBytes).Err(); err != nil {
		return fmt.Errorf("writing version entry: %w", err)
	}
	if isNew {
		if err := s.client.RPush(ctx, versionOrderPrefix+ga, versionStr).Err(); err != nil {
			return fmt.Errorf("recording version insertion order: %w", err)
		}
	}

	return nil
}

type versionEntry struct {
	Release   bool      `json:"release"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Store) RegisterFailedDownload(ctx context.Context, ref types.ArtifactRef) error {
	id := refID(ref)
	if err := s.client.Set(ctx, failurePrefix+id, strconv.FormatInt(time.Now().Unix(), 10), s.retryWindow).Err(); err != nil {
		return fmt.Errorf("writing failure record: %w", err)
	}
	return nil
}

func (s *Store) RegisterPlugin(ctx context.Context, groupID string, meta types.PluginMetadata) (types.PluginRegistrationResult, error) {
	key := pluginsKeyPrefix + groupID

	existed, err := s.client.HExists(ctx, key, meta.ArtifactID).Result()
	if err != nil {
		return 0, fmt.Errorf("checking existing plugin registration: %w", err)
	}

	data, err := json.Marshal(meta)
	if err != nil {
		return 0, fmt.Errorf("marshaling plugin metadata: %w", err)
	}
	if err := s.client.HSet(ctx, key, meta.ArtifactID, data).Err(); err != nil {
		return 0, fmt.Errorf("writing plugin metadata: %w", err)
	}

	if existed {
		return types.PluginUpdated, nil
	}
	return types.PluginInserted, nil
}

func (s *Store) UnregisterPlugin(ctx context.Context, groupID, artifactID string) (bool, error) {
	n, err := s.client.HDel(ctx, pluginsKeyPrefix+groupID, artifactID).Result()
	if err != nil {
		return false, fmt.Errorf("deleting plugin metadata: %w", err)
	}
	return n > 0, nil
}

func (s *Store) GetPlugins(ctx context.Context, groupID string) ([]types.PluginMetadata, error) {
	raw, err := s.client.HGetAll(ctx, pluginsKeyPrefix+groupID).Result()
	if err != nil {
		return nil, fmt.Errorf("reading plugin metadata: %w", err)
	}

	out := make([]types.PluginMetadata, 0, len(raw))
	for _, v := range raw {
		var meta types.PluginMetadata
		if err := json.Unmarshal([]byte(v), &meta); err != nil {
			return nil, fmt.Errorf("unmarshaling plugin metadata: %w", err)
		}
		out = append(out, meta)
	}
	return out, nil
}

func (s *Store) GetArtifactMetadata(ctx context.Context, groupID, artifactID string) (*types.ArtifactMetadataRecord, error) {
	ga := gaID(groupID, artifactID)

	raw, err := s.client.HGetAll(ctx, versionsKeyPrefix+ga).Result()
	if err != nil {
		return nil, fmt.Errorf("reading version entries: %w", err)
	}
	if len(raw) == 0 {
		return nil, nil
	}

	var latestVersion, releaseVersion string
	var latestTime, releaseTime time.Time

	for version, data := range raw {
		if data == "" {
			continue // HSetNX placeholder race window; HSet always follows immediately
		}
		var entry versionEntry
		if err := json.Unmarshal([]byte(data), &entry); err != nil {
			return nil, fmt.Errorf("unmarshaling version entry for %s: %w", version, err)
		}
		if entry.Timestamp.After(latestTime) {
			latestTime = entry.Timestamp
			latestVersion = version
		}
		if entry.Release && entry.Timestamp.After(releaseTime) {
			releaseTime = entry.Timestamp
			releaseVersion = version
		}
	}

	versions, err := s.client.LRange(ctx, versionOrderPrefix+ga, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("reading version insertion order: %w", err)
	}

	return &types.ArtifactMetadataRecord{
		Latest:      latestVersion,
		Release:     releaseVersion,
		Versions:    versions,
		LastUpdated: latestTime,
	}, nil
}

func (s *Store) IsReferenced(ctx context.Context, key types.BlobKey) (bool, error) {
	n, err := s.client.Exists(ctx, refForKeyPrefix+key.String()).Result()
	if err != nil {
		return false, fmt.Errorf("checking reverse reference: %w", err)
	}
	return n > 0, nil
}
