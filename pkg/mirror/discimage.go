package mirror

import (
	"strings"

	"strmsync/pkg/plog"
)

// Optical-disc image layouts are detected by a marker directory containing a
// stream sub-directory of transport-stream files. Only the largest stream
// file is the feature content; everything else under the marker root is
// menu/extras scaffolding that a media player cannot use as a single item.
const (
	discMarkerName = "BDMV"
	discStreamName = "STREAM"
)

// discGroup collapses one disc-image root to a single representative entry.
type discGroup struct {
	// root is the path of the marker directory.
	root string
	// primary is the largest same-suffix stream member; the whole subtree
	// is represented by this one entry.
	primary Entry
}

// discIndex answers the classifier's membership questions for all detected
// groups in one run.
type discIndex struct {
	groups []discGroup
	// primaries maps a primary member's path to its group root.
	primaries map[string]string
	// suppressed holds the paths of same-suffix stream siblings that lost
	// the size comparison.
	suppressed map[string]struct{}
}

// resolveDiscGroups scans the full entry list for disc-image roots and picks
// each root's primary stream member. Roots with no matching stream files
// yield no group and leave their subtree to ordinary processing.
//
// The primary is the member with the greatest size; ties are broken by
// lexicographic path order so the outcome does not depend on enumeration
// order.
func resolveDiscGroups(entries []Entry) *discIndex {
	idx := &discIndex{
		primaries:  make(map[string]string),
		suppressed: make(map[string]struct{}),
	}

	for _, e := range entries {
		if !e.IsDir || !strings.EqualFold(e.Name, discMarkerName) {
			continue
		}

		root := e.Path
		streamPrefix := root + "/" + discStreamName + "/"

		var members []Entry
		for _, m := range entries {
			if m.IsDir {
				continue
			}
			if strings.HasPrefix(m.Path, streamPrefix) && m.Suffix() == DiscVideoExt {
				members = append(members, m)
			}
		}

		if len(members) == 0 {
			plog.Debug("Disc marker without stream files, treating subtree as ordinary entries", "root", root)
			continue
		}

		primary := members[0]
		for _, m := range members[1:] {
			if m.Size > primary.Size || (m.Size == primary.Size && m.Path < primary.Path) {
				primary = m
			}
		}

		idx.groups = append(idx.groups, discGroup{root: root, primary: primary})
		idx.primaries[primary.Path] = root
		for _, m := range members {
			if m.Path != primary.Path {
				idx.suppressed[m.Path] = struct{}{}
			}
		}

		plog.Info("Resolved disc image", "root", root, "primary", primary.Path, "size", primary.Size, "members", len(members))
	}

	return idx
}

// isPrimary reports whether path is the primary member of some group.
func (idx *discIndex) isPrimary(path string) bool {
	_, ok := idx.primaries[path]
	return ok
}

// isSuppressed reports whether path is a non-primary same-suffix stream
// sibling of some group.
func (idx *discIndex) isSuppressed(path string) bool {
	_, ok := idx.suppressed[path]
	return ok
}

// insideGroup reports whether path is nested under any detected group root.
func (idx *discIndex) insideGroup(path string) bool {
	for _, g := range idx.groups {
		if strings.HasPrefix(path, g.root+"/") {
			return true
		}
	}
	return false
}
