package mirror

import (
	"os"

	"strmsync/pkg/plog"
)

// workItem pairs an accepted remote entry with its computed local path.
type workItem struct {
	entry Entry
	local string
}

// selectWork applies the per-entry eligibility decision to the full entry
// list and returns the set of entries to materialize. Disc-image groups are
// resolved first: a group's primary member is the only thing processed out
// of its whole subtree.
func (r *mirrorRun) selectWork(entries []Entry, idx *discIndex) []workItem {
	var work []workItem

	for _, e := range entries {
		switch {
		case idx.isPrimary(e.Path):
			if local, ok := r.shouldProcess(e); ok {
				plog.Debug("Queueing disc-image primary", "path", e.Path)
				work = append(work, workItem{entry: e, local: local})
			}

		case idx.isSuppressed(e.Path):
			plog.Debug("Skipping non-primary disc stream file", "path", e.Path)
			r.metrics.AddFilesSkipped(1)

		case idx.insideGroup(e.Path):
			// Everything else under a resolved disc root is scaffolding;
			// the group is represented by its primary alone.
			plog.Debug("Skipping entry inside resolved disc image", "path", e.Path)

		default:
			if local, ok := r.shouldProcess(e); ok {
				work = append(work, workItem{entry: e, local: local})
			}
		}
	}

	return work
}

// shouldProcess decides whether a single entry needs materialization this
// run and returns its computed local path if so.
//
// Every entry that passes the extension filter records its local path in the
// processed set, whether or not it is ultimately re-materialized: a local
// file that is correctly up to date must not look like an orphan to the
// reconciler.
func (r *mirrorRun) shouldProcess(e Entry) (string, bool) {
	if e.IsDir {
		return "", false
	}

	suffix := e.Suffix()
	if !r.processExts.has(suffix) {
		plog.Debug("Extension not in processing set", "path", e.Path)
		return "", false
	}

	local, err := r.localPath(e)
	if err != nil {
		// The entry simply isn't mirrored this run. It stays out of the
		// processed set: there is no local path to protect.
		plog.Warn("Could not compute local path, skipping entry", "path", e.Path, "error", err)
		r.metrics.AddFilesSkipped(1)
		return "", false
	}

	r.processed.Store(local)

	if !r.opts.Overwrite {
		if info, err := os.Stat(local); err == nil {
			if r.downloadExts.has(suffix) {
				if info.ModTime().Before(e.Modified) {
					plog.Debug("Local file older than remote, reprocessing", "path", local)
					return local, true
				}
				if info.Size() < e.Size {
					plog.Debug("Local file smaller than remote, reprocessing", "path", local)
					return local, true
				}
			}
			// Pointer files are treated as always current once present.
			// Known limitation: if the remote content's address changes
			// (path renumbering, re-signing) the stale pointer is only
			// refreshed with overwrite enabled.
			plog.Debug("Local file up to date, skipping", "path", local)
			r.metrics.AddFilesUpToDate(1)
			return "", false
		}
	}

	return local, true
}
