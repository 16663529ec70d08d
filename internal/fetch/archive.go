package fetch

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// isArchive reports whether the file name denotes a container format the
// fetcher knows how to unpack. A bare .gz (not .tar.gz) is a compressed
// payload, not a container, and is left for the stages to stream directly.
func isArchive(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, ".zip") ||
		strings.HasSuffix(lower, ".tar.gz") ||
		strings.HasSuffix(lower, ".tgz") ||
		strings.HasSuffix(lower, ".tar")
}

// verifyArchive tests structural integrity before anything is unpacked:
// every zip entry is CRC-checked, every tar stream is walked end to end.
// Extracting first and failing halfway would leave the extraction target in
// a state the completion markers cannot describe.
func verifyArchive(path string) error {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".zip"):
		zr, err := zip.OpenReader(path)
		if err != nil {
			return err
		}
		defer zr.Close()
		for _, entry := range zr.File {
			rc, err := entry.Open()
			if err != nil {
				return fmt.Errorf("entry %s: %w", entry.Name, err)
			}
			_, err = io.Copy(io.Discard, rc)
			rc.Close()
			if err != nil {
				return fmt.Errorf("entry %s: %w", entry.Name, err)
			}
		}
		return nil
	default:
		return walkTar(path, func(*tar.Header, io.Reader) error { return nil })
	}
}

// extractArchive unpacks path into destDir.
func extractArchive(path, destDir string) error {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return err
	}
	if strings.HasSuffix(strings.ToLower(path), ".zip") {
		return extractZip(path, destDir)
	}
	return walkTar(path, func(hdr *tar.Header, r io.Reader) error {
		return writeTarEntry(destDir, hdr, r)
	})
}

func extractZip(path, destDir string) error {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return err
	}
	defer zr.Close()

	for _, entry := range zr.File {
		target, err := securePath(destDir, entry.Name)
		if err != nil {
			return err
		}
		if entry.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		rc, err := entry.Open()
		if err != nil {
			return fmt.Errorf("entry %s: %w", entry.Name, err)
		}
		err = writeFile(target, rc, entry.Mode())
		rc.Close()
		if err != nil {
			return fmt.Errorf("entry %s: %w", entry.Name, err)
		}
	}
	return nil
}

// walkTar opens path (gzipped or plain tar) and calls fn for every entry.
// The whole stream is consumed, so a truncated archive always errors.
func walkTar(path string, fn func(*tar.Header, io.Reader) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var r io.Reader = f
	lower := strings.ToLower(path)
	if strings.HasSuffix(lower, ".tar.gz") || strings.HasSuffix(lower, ".tgz") {
		zr, err := gzip.NewReader(f)
		if err != nil {
			return err
		}
		defer zr.Close()
		r = zr
	}

	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(hdr, tr); err != nil {
			return err
		}
		// Drain any remainder so the next header read is well positioned and
		// corruption later in the stream is still detected.
		if _, err := io.Copy(io.Discard, tr); err != nil {
			return err
		}
	}
}

func writeTarEntry(destDir string, hdr *tar.Header, r io.Reader) error {
	target, err := securePath(destDir, hdr.Name)
	if err != nil {
		return err
	}
	switch hdr.Typeflag {
	case tar.TypeDir:
		return os.MkdirAll(target, 0o755)
	case tar.TypeReg:
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		return writeFile(target, r, os.FileMode(hdr.Mode)&0o777)
	default:
		// Links and special files do not occur in the reference bundles.
		return nil
	}
}

func writeFile(target string, r io.Reader, mode os.FileMode) error {
	if mode == 0 {
		mode = 0o644
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// securePath rejects entry names that would escape destDir (zip-slip).
func securePath(destDir, name string) (string, error) {
	target := filepath.Join(destDir, filepath.FromSlash(name))
	cleanDest := filepath.Clean(destDir)
	if target != cleanDest && !strings.HasPrefix(target, cleanDest+string(os.PathSeparator)) {
		return "", fmt.Errorf("archive entry %q escapes extraction directory", name)
	}
	return target, nil
}
