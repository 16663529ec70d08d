package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"github.com/vk/genopipe/internal/ctxlog"
	"github.com/vk/genopipe/internal/retry"
)

// download transfers rawURL to dest atomically. The body is written to a
// temporary sibling of dest and renamed into place only after the full
// transfer succeeds, so an interrupted transfer never leaves anything under
// the final name. Transient failures are retried per the fetcher's policy;
// client errors (HTTP 4xx) are not, because repeating them cannot change the
// outcome.
func (f *Fetcher) download(ctx context.Context, rawURL, dest string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid bundle url %q: %w", rawURL, err)
	}

	return retry.Do(ctx, f.policy, func() error {
		switch u.Scheme {
		case "http", "https":
			return f.downloadHTTP(ctx, rawURL, dest)
		case "s3":
			return f.downloadS3(ctx, u, dest)
		default:
			return retry.Permanent(fmt.Errorf("unsupported url scheme %q in %s", u.Scheme, rawURL))
		}
	})
}

func (f *Fetcher) downloadHTTP(ctx context.Context, rawURL, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return retry.Permanent(err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		// Network-level failures are the transient case this retry exists for.
		return fmt.Errorf("requesting %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// proceed
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("server error %s fetching %s", resp.Status, rawURL)
	default:
		return retry.Permanent(fmt.Errorf("%s fetching %s", resp.Status, rawURL))
	}

	return writeAtomic(ctx, dest, resp.Body)
}

// writeAtomic streams r into a temporary file next to dest and renames it
// into place. A completed zero-byte transfer is rejected: it means the
// origin served nothing useful and the file would poison later integrity
// checks.
func writeAtomic(ctx context.Context, dest string, r io.Reader) error {
	logger := ctxlog.FromContext(ctx)

	tmp, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".partial.*")
	if err != nil {
		return retry.Permanent(fmt.Errorf("creating temporary download file: %w", err))
	}
	tmpName := tmp.Name()
	defer func() {
		tmp.Close()
		os.Remove(tmpName) // no-op once renamed
	}()

	n, err := io.Copy(tmp, r)
	if err != nil {
		return fmt.Errorf("transfer interrupted after %d bytes: %w", n, err)
	}
	if n == 0 {
		return fmt.Errorf("transfer completed with zero bytes")
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("flushing download to disk: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing download file: %w", err)
	}

	if err := os.Rename(tmpName, dest); err != nil {
		return retry.Permanent(fmt.Errorf("moving download into place: %w", err))
	}
	logger.Debug("Download complete.", "dest", dest, "bytes", n)
	return nil
}
