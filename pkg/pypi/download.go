package pypi

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"

	"github.com/pkg/errors"
)

// Download fetches a release file into the client's cache directory,
// verifying its sha256 digest, and returns the cached path.
func (c *Client) Download(ctx context.Context, file *ReleaseFile) (string, error) {
	if file.Digests.SHA256 == "" {
		return "", fmt.Errorf("no sha256 digest for %s", file.Filename)
	}
	return c.Fetch(ctx, file.URL, file.Digests.SHA256)
}

// Fetch downloads the file at the given URL into the cache directory and
// verifies it against the expected sha256 digest. Files are cached under
// their digest, so a file that is already present is not fetched again.
func (c *Client) Fetch(ctx context.Context, fileURL, expectedDigest string) (string, error) {
	filename, err := FilenameFromURL(fileURL)
	if err != nil {
		return "", err
	}

	if cached, ok := c.Cached(filename, expectedDigest); ok {
		return cached, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return "", errors.Wrapf(err, "failed creating GET request %s", fileURL)
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return "", errors.Wrapf(err, "failed getting URI %s", fileURL)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("non ok http response for URI %s code: %v", fileURL, resp.StatusCode)
	}

	return c.CacheFrom(resp.Body, filename, expectedDigest)
}

// Cached returns the cache path for the named file and whether it is
// already present. A present file's digest was verified when it was written.
func (c *Client) Cached(filename, expectedDigest string) (string, bool) {
	cachedPath := filepath.Join(c.CacheDir, expectedDigest, filename)
	if _, err := os.Stat(cachedPath); err == nil {
		return cachedPath, true
	}
	return cachedPath, false
}

// CacheFrom writes r into the cache, verifying it against the expected
// sha256 digest on the way. Nothing lands in the cache when verification
// fails.
func (c *Client) CacheFrom(r io.Reader, filename, expectedDigest string) (string, error) {
	cachedPath, _ := c.Cached(filename, expectedDigest)

	if err := os.MkdirAll(filepath.Dir(cachedPath), 0o755); err != nil {
		return "", errors.Wrap(err, "creating source cache directory")
	}

	tmp, err := os.CreateTemp(filepath.Dir(cachedPath), filename+".*")
	if err != nil {
		return "", errors.Wrap(err, "creating temporary download file")
	}
	defer os.Remove(tmp.Name())

	h := sha256.New()
	if _, err := io.Copy(io.MultiWriter(tmp, h), r); err != nil {
		tmp.Close()
		return "", errors.Wrapf(err, "downloading %s", filename)
	}
	if err := tmp.Close(); err != nil {
		return "", errors.Wrap(err, "closing temporary download file")
	}

	digest := fmt.Sprintf("%x", h.Sum(nil))
	if digest != expectedDigest {
		return "", fmt.Errorf("sha256 mismatch for %s: got %s, expected %s", filename, digest, expectedDigest)
	}

	if err := os.Rename(tmp.Name(), cachedPath); err != nil {
		return "", errors.Wrapf(err, "moving %s into the source cache", filename)
	}
	return cachedPath, nil
}

// FilenameFromURL derives the download's base filename from its URL.
func FilenameFromURL(fileURL string) (string, error) {
	u, err := url.Parse(fileURL)
	if err != nil {
		return "", errors.Wrapf(err, "parsing source URL %s", fileURL)
	}
	filename := path.Base(u.Path)
	if filename == "" || filename == "/" || filename == "." {
		return "", fmt.Errorf("cannot derive a filename from source URL %s", fileURL)
	}
	return filename, nil
}
