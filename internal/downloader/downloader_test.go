package downloader

import (
	"context"
	"crypto/md5"  //nolint:gosec
	"crypto/sha1" //nolint:gosec
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownloader_SHA1HeaderPasses(t *testing.T) {
	body := []byte("artifact contents")
	sum := sha1.Sum(body)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, userAgent, r.Header.Get("User-Agent"))
		w.Header().Set("x-checksum-sha1", hex.EncodeToString(sum[:]))
		w.Write(body)
	}))
	defer srv.Close()

	d, err := New(srv.URL, nil)
	require.NoError(t, err)

	blob, err := d.Get(context.Background(), "org/foo/1.0/foo-1.0.jar")
	require.NoError(t, err)
	assert.True(t, blob.Digests.HasSHA1)
	assert.Equal(t, sum, blob.Digests.SHA1)

	got, err := io.ReadAll(blob.Data)
	require.NoError(t, err)
	assert.Equal(t, body, got)
	require.NoError(t, blob.Data.Close())
}

func TestDownloader_ETagFallback(t *testing.T) {
	body := []byte("other contents")
	sum := sha1.Sum(body)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("etag", `"`+hex.EncodeToString(sum[:])+`"`)
		w.Write(body)
	}))
	defer srv.Close()

	d, err := New(srv.URL, nil)
	require.NoError(t, err)

	blob, err := d.Get(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, sum, blob.Digests.SHA1)

	_, err = io.ReadAll(blob.Data)
	assert.NoError(t, err)
}

func TestDownloader_MismatchedDigestFailsAndStaysFailed(t *testing.T) {
	body := []byte("tampered maybe")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var wrong [20]byte
		w.Header().Set("x-checksum-sha1", hex.EncodeToString(wrong[:]))
		w.Write(body)
	}))
	defer srv.Close()

	d, err := New(srv.URL, nil)
	require.NoError(t, err)

	blob, err := d.Get(context.Background(), "p")
	require.NoError(t, err)

	_, err = io.ReadAll(blob.Data)
	assert.ErrorIs(t, err, ErrFailedValidation)

	buf := make([]byte, 4)
	_, err = blob.Data.Read(buf)
	assert.ErrorIs(t, err, ErrPollingFailedStream)
}

func TestDownloader_NoDigestHeaderIsNop(t *testing.T) {
	body := []byte("no digests here")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(body)
	}))
	defer srv.Close()

	d, err := New(srv.URL, nil)
	require.NoError(t, err)

	blob, err := d.Get(context.Background(), "p")
	require.NoError(t, err)
	assert.False(t, blob.Digests.HasSHA1)
	assert.False(t, blob.Digests.HasMD5)

	got, err := io.ReadAll(blob.Data)
	require.NoError(t, err)
	assert.Equal(t, body, got)
}

func TestDownloader_BothDigestsMustPass(t *testing.T) {
	body := []byte("double checked")
	sha1Sum := sha1.Sum(body)
	md5Sum := md5.Sum(body)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("x-checksum-sha1", hex.EncodeToString(sha1Sum[:]))
		w.Header().Set("x-checksum-md5", hex.EncodeToString(md5Sum[:]))
		w.Write(body)
	}))
	defer srv.Close()

	d, err := New(srv.URL, nil)
	require.NoError(t, err)

	blob, err := d.Get(context.Background(), "p")
	require.NoError(t, err)
	assert.True(t, blob.Digests.HasSHA1)
	assert.True(t, blob.Digests.HasMD5)

	_, err = io.ReadAll(blob.Data)
	assert.NoError(t, err)
}

func TestDownloader_NonTwoXXIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	d, err := New(srv.URL, nil)
	require.NoError(t, err)

	_, err = d.Get(context.Background(), "missing")
	assert.Error(t, err)
}

func TestDownloader_MalformedDigestHeaderIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("x-checksum-sha1", "not-hex")
		w.Write([]byte("x"))
	}))
	defer srv.Close()

	d, err := New(srv.URL, nil)
	require.NoError(t, err)

	_, err = d.Get(context.Background(), "p")
	assert.Error(t, err)
}

func TestNew_NormalizesTrailingSlash(t *testing.T) {
	d, err := New("https://repo.example.com/maven", nil)
	require.NoError(t, err)
	assert.Equal(t, "https://repo.example.com/maven/", d.baseURI)
}

func TestNew_RejectsEmptyBaseURI(t *testing.T) {
	_, err := New("", nil)
	assert.Error(t, err)
}
