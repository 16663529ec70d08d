package fetch

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/genopipe/internal/manifest"
)

func TestS3EndpointResolution(t *testing.T) {
	cases := []struct {
		env      string
		endpoint string
		secure   bool
	}{
		{"", "s3.amazonaws.com", true},
		{"http://127.0.0.1:9000", "127.0.0.1:9000", false},
		{"https://minio.internal:9000", "minio.internal:9000", true},
		{"s3.eu-central-1.amazonaws.com", "s3.eu-central-1.amazonaws.com", true},
	}
	for _, tc := range cases {
		f := New(WithEnviron([]string{"S3_ENDPOINT=" + tc.env}))
		endpoint, secure := f.s3Endpoint()
		assert.Equal(t, tc.endpoint, endpoint, "S3_ENDPOINT=%q", tc.env)
		assert.Equal(t, tc.secure, secure, "S3_ENDPOINT=%q", tc.env)
	}
}

func TestFetch_S3ObjectDownloadedAtomically(t *testing.T) {
	dir := t.TempDir()
	var hits atomic.Int64
	srv := countingServer(t, &hits, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/genomics-ref/panels/g1000_eur.bin", r.URL.Path)
		w.Header().Set("Last-Modified", time.Now().UTC().Format(http.TimeFormat))
		w.Header().Set("ETag", `"0f343b0931126a20f133d67c2b018a3b"`)
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write([]byte("reference panel bytes"))
	})

	archive := filepath.Join(dir, "g1000_eur.bin")
	env := append(os.Environ(), "S3_ENDPOINT="+srv.URL)
	outcome, err := fastFetcher(WithEnviron(env)).Fetch(context.Background(), manifest.Bundle{
		Name:    "g1000-reference-panel",
		URL:     "s3://genomics-ref/panels/g1000_eur.bin",
		Archive: archive,
		Markers: []string{archive},
	}, false)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFetched, outcome)

	content, err := os.ReadFile(archive)
	require.NoError(t, err)
	assert.Equal(t, "reference panel bytes", string(content))

	leftovers, err := filepath.Glob(filepath.Join(dir, "*.partial.*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers, "partial temp files must be cleaned up")
}

func TestFetch_S3MissingObjectNotRetried(t *testing.T) {
	dir := t.TempDir()
	var hits atomic.Int64
	srv := countingServer(t, &hits, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>` +
			`<Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message>` +
			`<Key>panels/absent.bin</Key><BucketName>genomics-ref</BucketName></Error>`))
	})

	archive := filepath.Join(dir, "absent.bin")
	env := append(os.Environ(), "S3_ENDPOINT="+srv.URL)
	_, err := fastFetcher(WithEnviron(env)).Fetch(context.Background(), manifest.Bundle{
		Name:    "absent-panel",
		URL:     "s3://genomics-ref/panels/absent.bin",
		Archive: archive,
		Markers: []string{archive},
	}, false)
	require.Error(t, err)
	assert.Equal(t, int64(1), hits.Load(), "a missing object cannot appear on retry")

	_, statErr := os.Stat(archive)
	assert.True(t, os.IsNotExist(statErr))
}

func TestFetch_S3URLWithoutKeyRejected(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "nothing.bin")
	_, err := fastFetcher().Fetch(context.Background(), manifest.Bundle{
		Name:    "malformed",
		URL:     "s3://bucket-only",
		Archive: archive,
		Markers: []string{archive},
	}, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3://bucket/key")
}
