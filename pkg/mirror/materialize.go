package mirror

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"strmsync/pkg/plog"
	"strmsync/pkg/util"
)

// materialize fans the accepted work list out across the entry worker
// budget and blocks until every item has reported completion. Individual
// failures are logged and contained; they never abort sibling items or the
// run.
func (r *mirrorRun) materialize(work []workItem) {
	var wg sync.WaitGroup

	for _, item := range work {
		if err := r.entrySem.Acquire(r.ctx, 1); err != nil {
			// Run cancelled; in-flight items finish below.
			plog.Warn("Materialization interrupted", "queued", len(work), "error", err)
			break
		}

		wg.Add(1)
		go func(item workItem) {
			defer wg.Done()
			defer r.entrySem.Release(1)
			r.processItem(item)
		}(item)
	}

	// Join barrier: reconciliation depends on a complete processed set and
	// must not race with writers.
	wg.Wait()
}

// processItem performs the local side effect for one accepted entry: a
// pointer-file write, or an asset download under the download budget.
func (r *mirrorRun) processItem(item workItem) {
	if err := r.ensureDirExists(filepath.Dir(item.local)); err != nil {
		plog.Error("Failed to create parent directory", "path", item.local, "error", err)
		// Nothing exists at this path, so it needs no orphan protection.
		r.processed.Delete(item.local)
		r.metrics.AddFilesFailed(1)
		return
	}

	if strings.HasSuffix(item.local, PointerExt) {
		if err := r.writePointerFile(item); err != nil {
			plog.Error("Failed to write pointer file", "path", item.local, "error", err)
			r.metrics.AddFilesFailed(1)
			return
		}
		plog.Info("WRITE", "path", item.local, "remote", item.entry.Path)
		r.metrics.AddPointersWritten(1)
		return
	}

	// Auxiliary asset: the transfer itself runs under the stricter
	// download budget, acquired inside this entry worker's scope.
	if err := r.dlSem.Acquire(r.ctx, 1); err != nil {
		plog.Warn("Download budget wait interrupted", "path", item.local, "error", err)
		r.metrics.AddFilesFailed(1)
		return
	}
	defer r.dlSem.Release(1)

	if err := r.downloader.Download(r.ctx, item.entry.RawURL, item.local); err != nil {
		plog.Error("Failed to download asset", "url", item.entry.RawURL, "path", item.local, "error", err)
		r.metrics.AddFilesFailed(1)
		return
	}
	plog.Info("FETCH", "path", item.local, "remote", item.entry.Path)
	r.metrics.AddAssetsDownloaded(1)
}

// ensureDirExists creates the destination directory tree once per run.
// The singleflight group prevents a thundering herd of MkdirAll calls when
// many workers target the same parent; the cache makes repeats free.
func (r *mirrorRun) ensureDirExists(absDir string) error {
	if r.dirCache.Has(absDir) {
		return nil
	}

	_, err, _ := r.dirSF.Do(absDir, func() (interface{}, error) {
		if err := os.MkdirAll(absDir, util.WithWritePermission(util.UserWritableDirPerms)); err != nil {
			return nil, err
		}
		r.dirCache.Store(absDir)
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("failed to ensure directory %s exists: %w", absDir, err)
	}
	return nil
}

// pointerContent derives the pointer file's payload from the addressing
// mode.
func (r *mirrorRun) pointerContent(e Entry) string {
	switch r.opts.Mode {
	case ModeRawURL:
		return e.RawURL
	case ModeRemotePath:
		return e.Path
	default:
		return e.URL
	}
}

// writePointerFile writes the pointer payload atomically: the content lands
// in a temporary file first and is renamed into place, so a consumer never
// observes a partially written pointer. Overwrites any existing file.
func (r *mirrorRun) writePointerFile(item workItem) error {
	dir := filepath.Dir(item.local)

	tmp, err := os.CreateTemp(dir, ".strmsync-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary file in %s: %w", dir, err)
	}
	tmpPath := tmp.Name()
	// If the rename succeeds tmpPath is cleared, making this a no-op.
	defer func() {
		if tmpPath != "" {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.WriteString(r.pointerContent(item.entry)); err != nil {
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

	if err := os.Rename(tmpPath, item.local); err != nil {
		return err
	}
	tmpPath = ""
	return nil
}
