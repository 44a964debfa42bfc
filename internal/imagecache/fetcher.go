// Package imagecache implements the Image Fetcher: it downloads rootfs
// artifacts addressed by URL and caches them on disk, keyed by workload
// name, so that repeated instantiations of the same workload reuse the
// same file.
package imagecache

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/rik-org/riklet/internal/metrics"
	"github.com/rik-org/riklet/internal/model"
	"github.com/rik-org/riklet/internal/rikerr"
)

// RootfsFilename is the name every cached rootfs artifact is stored under,
// inside its workload's download directory.
const RootfsFilename = "rootfs.ext4"

// Fetcher downloads and caches rootfs images. The cache is process-wide,
// filesystem-backed state: files only ever appear, never mutate in place.
type Fetcher struct {
	cacheRoot string
	client    *http.Client
	timeout   time.Duration
	logger    *slog.Logger

	// group serializes concurrent EnsureRootfs calls for the same URL so a
	// shared rootfs is downloaded at most once at a time.
	group singleflight.Group
}

// New creates a Fetcher rooted at cacheRoot with the given per-fetch timeout.
func New(cacheRoot string, timeout time.Duration, logger *slog.Logger) *Fetcher {
	return &Fetcher{
		cacheRoot: cacheRoot,
		client:    &http.Client{},
		timeout:   timeout,
		logger:    logger,
	}
}

// EnsureRootfs returns the path to the cached rootfs for the given workload,
// downloading it first if it is not already present. A cache hit is
// determined by file existence alone; there is no checksum or ETag
// validation.
func (f *Fetcher) EnsureRootfs(ctx context.Context, w *model.WorkloadDefinition) (string, error) {
	url := w.RootfsURL()
	if url == "" {
		return "", rikerr.New(rikerr.Parsing, "rootfs_url_missing")
	}

	downloadDir := filepath.Join(f.cacheRoot, w.Name)
	dest := filepath.Join(downloadDir, RootfsFilename)

	if _, err := os.Stat(dest); err == nil {
		return dest, nil
	}

	v, err, _ := f.group.Do(url, func() (any, error) {
		if _, err := os.Stat(dest); err == nil {
			return dest, nil
		}
		if err := os.MkdirAll(downloadDir, 0o755); err != nil {
			return nil, rikerr.Wrap(rikerr.Io, "mkdir", err)
		}

		fetchCtx, cancel := context.WithTimeout(ctx, f.timeout)
		defer cancel()

		start := time.Now()
		err := f.fetch(fetchCtx, url, dest)
		metrics.ImageFetchSeconds.Observe(time.Since(start).Seconds())
		if err != nil {
			if rmErr := os.RemoveAll(downloadDir); rmErr != nil {
				f.logger.Warn("cleanup download dir after fetch failure",
					"dir", downloadDir, "error", rmErr)
			}
			return nil, err
		}
		return dest, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// fetch performs an HTTP GET following redirects, buffers the entire
// response body in memory, and only writes it to disk once the transfer
// has succeeded in full — no reader ever observes a partial file.
func (f *Fetcher) fetch(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return rikerr.Wrap(rikerr.Fetching, "new_request", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return rikerr.Wrap(rikerr.Fetching, "do_request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return rikerr.HTTPError("fetch", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return rikerr.Wrap(rikerr.Fetching, "read_body", err)
	}

	if err := os.WriteFile(dest, body, 0o644); err != nil {
		return rikerr.Wrap(rikerr.Io, "write_file", err)
	}

	f.logger.Debug("rootfs cached", "url", url, "dest", dest, "bytes", len(body))
	return nil
}

// CacheRoot reports the directory new workload caches are created under.
func (f *Fetcher) CacheRoot() string { return f.cacheRoot }
