package fetch

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/vk/genopipe/internal/retry"
)

// defaultS3Endpoint serves the public genomics buckets (1000 Genomes, NCBI
// mirrors) that reference bundles typically live in.
const defaultS3Endpoint = "s3.amazonaws.com"

// downloadS3 fetches s3://bucket/key through the same atomic temp-file
// discipline as HTTP downloads. The endpoint and credentials come from the
// Fetcher's environment (S3_ENDPOINT, AWS_ACCESS_KEY_ID,
// AWS_SECRET_ACCESS_KEY, loaded from the workspace .env when present);
// public buckets need none. An S3_ENDPOINT with an explicit http:// scheme
// disables TLS, for region-local mirrors and tests.
func (f *Fetcher) downloadS3(ctx context.Context, u *url.URL, dest string) error {
	bucket := u.Host
	key := strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return retry.Permanent(fmt.Errorf("s3 url %s must have the form s3://bucket/key", u))
	}

	endpoint, secure := f.s3Endpoint()
	creds := credentials.NewStaticV4(
		f.getenv("AWS_ACCESS_KEY_ID"),
		f.getenv("AWS_SECRET_ACCESS_KEY"),
		f.getenv("AWS_SESSION_TOKEN"),
	)

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  creds,
		Secure: secure,
	})
	if err != nil {
		return retry.Permanent(fmt.Errorf("init s3 client for %s: %w", endpoint, err))
	}

	obj, err := client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return fmt.Errorf("requesting s3://%s/%s: %w", bucket, key, err)
	}
	defer obj.Close()

	// GetObject is lazy; Stat forces the first round trip so missing objects
	// fail here instead of mid-copy.
	if _, err := obj.Stat(); err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return retry.Permanent(fmt.Errorf("s3://%s/%s: %w", bucket, key, err))
		}
		return fmt.Errorf("s3://%s/%s: %w", bucket, key, err)
	}

	return writeAtomic(ctx, dest, obj)
}

// s3Endpoint resolves the object-store endpoint from the Fetcher's
// environment. TLS is on unless the endpoint names http:// outright.
func (f *Fetcher) s3Endpoint() (endpoint string, secure bool) {
	endpoint = f.getenv("S3_ENDPOINT")
	if endpoint == "" {
		return defaultS3Endpoint, true
	}
	if rest, ok := strings.CutPrefix(endpoint, "http://"); ok {
		return rest, false
	}
	return strings.TrimPrefix(endpoint, "https://"), true
}

// getenv reads a variable from the Fetcher's environment rather than the
// process environment, so workspace .env values flow through WithEnviron.
// Last assignment wins, matching exec semantics.
func (f *Fetcher) getenv(key string) string {
	prefix := key + "="
	for i := len(f.env) - 1; i >= 0; i-- {
		if strings.HasPrefix(f.env[i], prefix) {
			return f.env[i][len(prefix):]
		}
	}
	return ""
}
