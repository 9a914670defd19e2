package mirror

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Practical limits of the local filesystems we materialize onto. Remote
// listings can carry names the local side cannot represent; those entries
// are skipped for the run rather than failing it.
const (
	maxLocalPathLen = 4096
	maxLocalNameLen = 255
)

// localPath deterministically maps a remote entry to its local path under
// the configured addressing mode. It performs no I/O; directory creation
// happens at materialization time.
//
// Video extensions are rewritten to the pointer extension regardless of
// mode. A disc-image stream file in hierarchical mode collapses to
// <target>/<item>/<item>.strm, named after the media item's top-level
// directory rather than the stream file.
func (r *resolved) localPath(e Entry) (string, error) {
	var local string

	switch {
	case r.opts.Flatten:
		// Flatten mode drops all directory context.
		local = filepath.Join(r.targetDir, e.Name)

	case r.isDiscStreamPath(e):
		rel := r.relRemotePath(e.Path)
		segments := strings.Split(rel, "/")
		// A complete layout is <item>/BDMV/STREAM/<file>; anything shorter
		// (e.g. the marker at the remote root) keeps the ordinary mapping.
		if len(segments) >= 4 {
			item := segments[0]
			local = filepath.Join(r.targetDir, item, item+PointerExt)
			return r.checkLocalPath(local)
		}
		local = filepath.Join(r.targetDir, filepath.FromSlash(rel))

	default:
		rel := r.relRemotePath(e.Path)
		local = filepath.Join(r.targetDir, filepath.FromSlash(rel))
	}

	if videoExts.has(e.Suffix()) {
		ext := filepath.Ext(local)
		local = local[:len(local)-len(ext)] + PointerExt
	}

	return r.checkLocalPath(local)
}

// isDiscStreamPath reports whether the entry sits in a disc-image stream
// directory and carries the disc-video extension. It applies the same
// segment matching as the group resolver: the marker case-insensitively,
// the stream directory exactly. The check is purely path-shaped so
// localPath stays a function of (entry, configuration) alone; group
// membership is the classifier's business.
func (r *resolved) isDiscStreamPath(e Entry) bool {
	if e.Suffix() != DiscVideoExt {
		return false
	}
	segments := strings.Split(e.Path, "/")
	for i := 0; i+2 < len(segments); i++ {
		if strings.EqualFold(segments[i], discMarkerName) && segments[i+1] == discStreamName {
			return true
		}
	}
	return false
}

// relRemotePath strips the configured remote root prefix and the leading
// separator from an absolute remote path.
func (r *resolved) relRemotePath(remotePath string) string {
	rel := strings.Replace(remotePath, r.sourceDir, "", 1)
	return strings.TrimPrefix(rel, "/")
}

// checkLocalPath rejects paths the local filesystem cannot represent.
func (r *resolved) checkLocalPath(local string) (string, error) {
	if len(local) > maxLocalPathLen {
		return "", fmt.Errorf("local path exceeds %d bytes: %q", maxLocalPathLen, local)
	}
	if name := filepath.Base(local); len(name) > maxLocalNameLen {
		return "", fmt.Errorf("local file name exceeds %d bytes: %q", maxLocalNameLen, name)
	}
	return local, nil
}
