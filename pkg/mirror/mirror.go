// Package mirror implements the core pointer-file mirroring engine: it
// classifies the entries of a remote directory listing, maps each accepted
// entry to a deterministic local path, materializes pointer files and
// auxiliary assets under bounded concurrency, and optionally reconciles the
// local target against the remote state by deleting orphans.
package mirror

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"strmsync/pkg/plog"
	"strmsync/pkg/sharded"
)

const (
	processedSetShards = 32
	dirCacheShards     = 16
)

// Mirror runs one remote source against one local target directory. A
// Mirror is safe to reuse for repeated runs; each Run builds fresh per-run
// state.
type Mirror struct {
	res        *resolved
	lister     Lister
	downloader Downloader
}

// mirrorRun is the per-run working state. It exists so that repeated Run
// calls on the same Mirror never share the processed set or the semaphores.
type mirrorRun struct {
	*resolved

	ctx        context.Context
	lister     Lister
	downloader Downloader
	metrics    Metrics

	processed *sharded.Set
	dirCache  *sharded.Set
	dirSF     singleflight.Group
	entrySem  *semaphore.Weighted
	dlSem     *semaphore.Weighted
}

// New validates the options and builds a Mirror against the given listing
// source and asset downloader. Option errors surface here, not at Run time.
func New(opts Options, lister Lister, downloader Downloader) (*Mirror, error) {
	if lister == nil {
		return nil, fmt.Errorf("mirror: lister must not be nil")
	}
	if downloader == nil {
		return nil, fmt.Errorf("mirror: downloader must not be nil")
	}

	res, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}

	return &Mirror{
		res:        res,
		lister:     lister,
		downloader: downloader,
	}, nil
}

// Run executes one full mirror pass: enumerate, classify, materialize and,
// when enabled, reconcile. Enumeration failure aborts the run since an
// incomplete listing would poison reconciliation; materialization and
// reconciliation failures are contained per item.
func (m *Mirror) Run(ctx context.Context) error {
	var metrics Metrics = &NoopMetrics{}
	if m.res.opts.Metrics {
		metrics = &RunMetrics{}
	}

	r := &mirrorRun{
		resolved:   m.res,
		ctx:        ctx,
		lister:     m.lister,
		downloader: m.downloader,
		metrics:    metrics,
		processed:  sharded.NewSet(processedSetShards),
		dirCache:   sharded.NewSet(dirCacheShards),
		entrySem:   semaphore.NewWeighted(int64(m.res.opts.MaxWorkers)),
		dlSem:      semaphore.NewWeighted(int64(m.res.opts.MaxDownloaders)),
	}

	plog.Notice("Starting mirror run", "source", r.sourceDir, "target", r.targetDir)

	entries, err := r.enumerate()
	if err != nil {
		return fmt.Errorf("failed to enumerate source %s: %w", r.sourceDir, err)
	}
	plog.Debug("Enumeration complete", "entries", len(entries))

	idx := resolveDiscGroups(entries)
	work := r.selectWork(entries, idx)
	plog.Debug("Classification complete", "accepted", len(work), "discGroups", len(idx.groups))

	r.materialize(work)

	if err := ctx.Err(); err != nil {
		// Never reconcile a cancelled run; its local state is incomplete.
		return err
	}

	if r.opts.SyncServer {
		r.reconcile()
	}

	r.metrics.Log()
	plog.Notice("Mirror run finished", "source", r.sourceDir, "target", r.targetDir)
	return nil
}

// enumerate drains the lister into a slice. Classification needs the full
// listing up front because disc-image grouping is a whole-tree property.
func (r *mirrorRun) enumerate() ([]Entry, error) {
	var entries []Entry
	err := r.lister.Walk(r.ctx, func(e Entry) error {
		entries = append(entries, e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}
