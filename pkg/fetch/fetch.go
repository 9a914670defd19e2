// Package fetch downloads remote assets to local files. Writes are atomic:
// content lands in a temporary file and is renamed into place only after
// the full body has been flushed.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"strmsync/pkg/pool"
	"strmsync/pkg/util"
)

const (
	// copyBufferSize is the per-transfer copy buffer. Buffers are pooled
	// because downloads run concurrently under the engine's budget.
	copyBufferSize = 256 * 1024

	defaultTimeout = 10 * time.Minute
)

// Downloader transfers single files over HTTP. It is safe for concurrent
// use; the caller bounds concurrency.
type Downloader struct {
	httpClient *http.Client
	buffers    *pool.FixedBufferPool
	userAgent  string
}

// Options configures a Downloader.
type Options struct {
	// Timeout bounds a whole single transfer. Zero means a 10 minute
	// default; large assets on slow links may need more.
	Timeout time.Duration
	// UserAgent overrides the request user agent when non-empty.
	UserAgent string
}

// New builds a Downloader.
func New(opts Options) *Downloader {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Downloader{
		httpClient: &http.Client{Timeout: timeout},
		buffers:    pool.NewFixedBuffer(copyBufferSize),
		userAgent:  opts.UserAgent,
	}
}

// Download fetches url into dest. The destination's parent directory must
// already exist. Any existing file at dest is replaced atomically; a failed
// transfer leaves dest untouched.
func (d *Downloader) Download(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build request for %s: %w", url, err)
	}
	if d.userAgent != "" {
		req.Header.Set("User-Agent", d.userAgent)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("download of %s returned HTTP %d", url, resp.StatusCode)
	}

	return d.writeAtomic(dest, resp.Body)
}

// writeAtomic streams body into a temporary sibling of dest and renames it
// into place.
func (d *Downloader) writeAtomic(dest string, body io.Reader) error {
	dir := filepath.Dir(dest)

	tmp, err := os.CreateTemp(dir, ".strmsync-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary file in %s: %w", dir, err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if tmpPath != "" {
			os.Remove(tmpPath)
		}
	}()

	buf := d.buffers.Get()
	_, err = io.CopyBuffer(tmp, body, *buf)
	d.buffers.Put(buf)
	if err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", tmpPath, err)
	}

	if err := tmp.Chmod(util.UserWritableFilePerms); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set permissions on %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmpPath, err)
	}

	if err := os.Rename(tmpPath, dest); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", tmpPath, err)
	}
	tmpPath = ""
	return nil
}
