// Package downloader implements the streaming validating HTTP GET against
// an upstream artifact repository: it inspects the response headers for
// upstream-declared MD5/SHA-1 digests, attaches streaming validators, and
// hands back a lazily-read Blob whose body terminates in an error chunk on
// mismatch instead of buffering the whole artifact to check it upfront.
package downloader

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"

	"github.com/lgulliver/lodestone/internal/validate"
	"github.com/lgulliver/lodestone/pkg/types"
	"github.com/rs/zerolog/log"
)

// userAgent is fixed because upstream rejects requests with an empty or
// absent User-Agent header.
const userAgent = "curl/7.68.0"

// Downloader performs validating HTTPS GETs relative to a fixed base URI.
// It keeps a single *http.Client for connection reuse, so constructing one
// per Downloader instance (and keeping that instance alive) matters for
// performance.
type Downloader struct {
	client  *http.Client
	baseURI string // always ends in '/'
}

// New builds a Downloader against baseURI, normalizing a missing trailing
// slash. client may be nil, in which case a client with no timeout of its
// own is constructed; deadlines come from the request context.
func New(baseURI string, client *http.Client) (*Downloader, error) {
	if baseURI == "" {
		return nil, fmt.Errorf("empty upstream base URI")
	}
	if !strings.HasSuffix(baseURI, "/") {
		baseURI += "/"
	}

	if client == nil {
		client = &http.Client{
			Timeout: 0, // streaming downloads: callers layer deadlines via ctx
		}
	}

	return &Downloader{client: client, baseURI: baseURI}, nil
}

// Get issues GET <base><relPath>, consults the response headers for
// upstream-declared digests in priority order, and returns a Blob whose
// body is validated incrementally as it is read.
func (d *Downloader) Get(ctx context.Context, relPath string) (*types.Blob, error) {
	url := d.baseURI + relPath

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building upstream request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	log.Debug().Str("url", url).Msg("fetching artifact from upstream")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream request failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("upstream returned non-2xx status %d for %s", resp.StatusCode, url)
	}

	digests, validators, err := digestsAndValidators(resp.Header)
	if err != nil {
		resp.Body.Close()
		return nil, fmt.Errorf("malformed digest header from upstream: %w", err)
	}

	var validator validate.Validator = validate.Nop{}
	if len(validators) > 0 {
		validator = validate.Composite(validators)
	}

	return &types.Blob{
		Data:    newValidatingBody(resp.Body, validator),
		Digests: digests,
	}, nil
}

// digestsAndValidators inspects the response headers for SHA-1 and MD5
// digests, in the priority order the upstream contract specifies, and
// builds the validators to attach to the streamed body.
func digestsAndValidators(header http.Header) (types.BlobDigests, []validate.Validator, error) {
	var digests types.BlobDigests
	var validators []validate.Validator

	if sha1Hex, ok := headerSHA1(header); ok {
		expected, err := decodeHex20(sha1Hex)
		if err != nil {
			return digests, nil, fmt.Errorf("invalid sha1 digest header %q: %w", sha1Hex, err)
		}
		digests.SHA1 = expected
		digests.HasSHA1 = true
		validators = append(validators, validate.NewSHA1(expected))
	}

	if md5Hex, ok := headerMD5(header); ok {
		expected, err := decodeHex16(md5Hex)
		if err != nil {
			return digests, nil, fmt.Errorf("invalid md5 digest header %q: %w", md5Hex, err)
		}
		digests.MD5 = expected
		digests.HasMD5 = true
		validators = append(validators, validate.NewMD5(expected))
	}

	return digests, validators, nil
}

// headerSHA1 consults x-checksum-sha1, then x-goog-meta-checksum-sha1,
// then etag (stripped of surrounding quotes if it looks like a quoted
// 40-character hex digest).
func headerSHA1(header http.Header) (string, bool) {
	for _, name := range []string{"x-checksum-sha1", "x-goog-meta-checksum-sha1"} {
		if v := header.Get(name); v != "" {
			return v, true
		}
	}
	if v := header.Get("etag"); v != "" {
		if len(v) == 42 {
			v = v[1 : len(v)-1]
		}
		return v, true
	}
	return "", false
}

// headerMD5 consults x-checksum-md5, then x-goog-meta-checksum-md5.
func headerMD5(header http.Header) (string, bool) {
	for _, name := range []string{"x-checksum-md5", "x-goog-meta-checksum-md5"} {
		if v := header.Get(name); v != "" {
			return v, true
		}
	}
	return "", false
}

func decodeHex20(s string) ([20]byte, error) {
	var out [20]byte
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != len(out) {
		return out, fmt.Errorf("expected 40 hex characters, got %q", s)
	}
	copy(out[:], b)
	return out, nil
}

func decodeHex16(s string) ([16]byte, error) {
	var out [16]byte
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != len(out) {
		return out, fmt.Errorf("expected 32 hex characters, got %q", s)
	}
	copy(out[:], b)
	return out, nil
}
