// Package types holds the domain model shared across the proxy: artifact
// coordinates, blobs and the metadata records the repository coordinator
// persists about them.
package types

import (
	"io"
	"time"

	"github.com/google/uuid"
)

// Version is a Maven artifact version. It is either a Release, identified
// by Value alone, or a Snapshot, identified by Value (the "-SNAPSHOT"
// qualified version string as it appears in the directory layout),
// Timestamp and an optional Build number.
//
// Version is a plain comparable struct so that ArtifactRef, which embeds
// it, can be used directly as a map key.
type Version struct {
	Snapshot  bool
	Value     string
	Timestamp string
	HasBuild  bool
	Build     int
}

// ReleaseVersion builds a non-snapshot Version.
func ReleaseVersion(value string) Version {
	return Version{Value: value}
}

// SnapshotVersion builds a Version for a "-SNAPSHOT" qualified version
// string, with a timestamp and optional build number.
func SnapshotVersion(value, timestamp string, build *int) Version {
	v := Version{Snapshot: true, Value: value, Timestamp: timestamp}
	if build != nil {
		v.HasBuild = true
		v.Build = *build
	}
	return v
}

// String returns the version string as it appears in the directory
// layout segment (e.g. "1.2.3" or "1.2.3-SNAPSHOT").
func (v Version) String() string {
	return v.Value
}

// Classifier is either Unclassified, or Classified with a non-empty
// token that may itself contain hyphens or dots.
type Classifier struct {
	Present bool
	Value   string
}

// Unclassified returns the absent classifier.
func Unclassified() Classifier {
	return Classifier{}
}

// Classified returns a present classifier with the given token.
func Classified(value string) Classifier {
	return Classifier{Present: true, Value: value}
}

// ArtifactRef is the (group, artifact, version, classifier, extension)
// coordinate tuple that identifies a single downloadable artifact.
// Equality and hashing are structural, which Go gives us for free as long
// as every field stays comparable - resist the urge to add a slice here.
type ArtifactRef struct {
	GroupID    string
	ArtifactID string
	Version    Version
	Classifier Classifier
	Extension  string
}

// BlobKey is the opaque 128-bit identifier of a stored blob.
type BlobKey = uuid.UUID

// BlobDigests carries the digests known for a blob. A freshly-downloaded
// blob may only have the digests the upstream happened to advertise; a
// committed blob with persisted metadata always has both.
type BlobDigests struct {
	SHA1    [20]byte
	HasSHA1 bool
	MD5     [16]byte
	HasMD5  bool
}

// Blob is a lazily-read byte stream together with whatever digests are
// known for it. The downloader and the blob stores always set Data on a
// Blob they return; a failed fetch returns an error and no Blob.
type Blob struct {
	Data    io.ReadCloser
	Digests BlobDigests
}

// StoredDigests is the on-disk JSON schema of a blob's metadata.json.
// Both digests are always present once a blob is committed - unlike
// BlobDigests, which also has to represent the partial knowledge available
// mid-download.
type StoredDigests struct {
	SHA1 [20]byte `json:"sha1"`
	MD5  [16]byte `json:"md5"`
}

// ArtifactMetadataRecord is the derived view over every version known for
// a single (group, artifact) pair.
type ArtifactMetadataRecord struct {
	Latest      string
	Release     string
	Versions    []string
	LastUpdated time.Time
}

// PluginMetadata describes a Maven plugin registered under a group id.
type PluginMetadata struct {
	Name       string
	Prefix     string
	ArtifactID string
}

// PluginRegistrationResult describes the outcome of registering a plugin.
type PluginRegistrationResult int

const (
	PluginInserted PluginRegistrationResult = iota
	PluginUpdated
)

func (r PluginRegistrationResult) String() string {
	if r == PluginUpdated {
		return "updated"
	}
	return "inserted"
}
