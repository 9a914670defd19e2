package mirror

import (
	"io/fs"
	"os"
	"path/filepath"

	"strmsync/pkg/plog"
)

// reconcile deletes local files that no longer correspond to a remote
// entry, then prunes directories the deletions emptied. It runs strictly
// after the materialization join barrier so the processed set is complete.
// Every failure is logged and contained; reconciliation never aborts a run.
func (r *mirrorRun) reconcile() {
	if _, err := os.Stat(r.targetDir); err != nil {
		if !os.IsNotExist(err) {
			plog.Warn("Skipping reconciliation, target directory not accessible", "path", r.targetDir, "error", err)
		}
		return
	}

	plog.Debug("Starting reconciliation", "target", r.targetDir)

	if r.opts.Flatten {
		r.reconcileFlat()
		return
	}
	r.reconcileTree()
}

// reconcileFlat handles flatten mode, where every materialized file lives
// directly under the target root and no directory pruning is needed.
func (r *mirrorRun) reconcileFlat() {
	dirEntries, err := os.ReadDir(r.targetDir)
	if err != nil {
		plog.Error("Failed to read target directory", "path", r.targetDir, "error", err)
		return
	}

	for _, de := range dirEntries {
		if de.IsDir() {
			continue
		}
		r.deleteIfOrphan(filepath.Join(r.targetDir, de.Name()), de.Name())
	}
}

// reconcileTree walks the full target tree, deletes orphans and collects
// their parents as pruning candidates.
func (r *mirrorRun) reconcileTree() {
	pruneCandidates := make(map[string]struct{})

	err := filepath.WalkDir(r.targetDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			plog.Warn("Skipping unreadable path during reconciliation", "path", path, "error", err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if r.deleteIfOrphan(path, d.Name()) {
			pruneCandidates[filepath.Dir(path)] = struct{}{}
		}
		return nil
	})
	if err != nil {
		plog.Error("Reconciliation walk failed", "path", r.targetDir, "error", err)
	}

	for dir := range pruneCandidates {
		r.pruneEmptyDirs(dir)
	}
}

// deleteIfOrphan removes the file at path when no remote entry claimed it
// this run. Files whose name matches the ignore pattern are always kept.
// Reports whether the file was deleted.
func (r *mirrorRun) deleteIfOrphan(path, name string) bool {
	if r.processed.Has(path) {
		return false
	}
	if _, ok := r.protected[name]; ok {
		return false
	}
	if r.ignore != nil && r.ignore.MatchString(name) {
		plog.Debug("Keeping ignored file", "path", path)
		return false
	}

	if err := os.Remove(path); err != nil {
		plog.Error("Failed to delete orphaned file", "path", path, "error", err)
		return false
	}
	plog.Info("DELETE", "path", path)
	r.metrics.AddFilesDeleted(1)
	return true
}

// pruneEmptyDirs removes dir if it is empty, then walks up toward the
// target root repeating the check. The climb stops at the target root
// itself, at the first non-empty directory, or on any failure.
func (r *mirrorRun) pruneEmptyDirs(dir string) {
	for dir != r.targetDir && isPathUnder(dir, r.targetDir) {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if !os.IsNotExist(err) {
				plog.Warn("Failed to read directory while pruning", "path", dir, "error", err)
			}
			return
		}
		if len(entries) > 0 {
			return
		}
		if err := os.Remove(dir); err != nil {
			plog.Warn("Failed to prune empty directory", "path", dir, "error", err)
			return
		}
		plog.Debug("Pruned empty directory", "path", dir)
		r.metrics.AddDirsPruned(1)
		dir = filepath.Dir(dir)
	}
}

// isPathUnder reports whether path is strictly inside root.
func isPathUnder(path, root string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !filepath.IsAbs(rel) &&
		!(len(rel) >= 3 && rel[:3] == ".."+string(filepath.Separator))
}
