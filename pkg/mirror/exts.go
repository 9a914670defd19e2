package mirror

import "strmsync/pkg/util"

// PointerExt is the extension local pointer files are written with.
const PointerExt = ".strm"

// DiscVideoExt is the transport-stream extension found inside disc-image
// stream directories. It is always part of the video set, independent of
// user configuration.
const DiscVideoExt = ".m2ts"

type extSet map[string]struct{}

func newExtSet(exts ...string) extSet {
	s := make(extSet, len(exts))
	for _, e := range exts {
		if n := util.NormalizeExt(e); n != "" {
			s[n] = struct{}{}
		}
	}
	return s
}

func (s extSet) has(ext string) bool {
	_, ok := s[ext]
	return ok
}

// union returns a new set containing the members of s and all others.
func (s extSet) union(others ...extSet) extSet {
	merged := make(extSet, len(s))
	for e := range s {
		merged[e] = struct{}{}
	}
	for _, o := range others {
		for e := range o {
			merged[e] = struct{}{}
		}
	}
	return merged
}

// videoExts are the extensions materialized as pointer files.
var videoExts = newExtSet(
	".mp4", ".mkv", ".avi", ".mov", ".wmv", ".flv", ".webm",
	".ts", ".m2ts", ".mpg", ".mpeg", ".m4v", ".rmvb", ".3gp",
)

// Auxiliary extension categories, downloaded alongside pointer files when
// the corresponding category is enabled.
var (
	subtitleExts = newExtSet(".srt", ".ass", ".ssa", ".sub", ".vtt", ".sup")
	imageExts    = newExtSet(".jpg", ".jpeg", ".png", ".webp", ".bmp", ".gif")
	nfoExts      = newExtSet(".nfo")
)
