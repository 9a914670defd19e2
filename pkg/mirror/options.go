package mirror

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"strmsync/pkg/util"
)

// AddressMode selects which string a pointer file's content is derived from.
type AddressMode int

const (
	// ModeServerURL writes the content URL proxied through the listing server.
	ModeServerURL AddressMode = iota
	// ModeRawURL writes the direct upstream URL.
	ModeRawURL
	// ModeRemotePath writes the original remote path string.
	ModeRemotePath
)

var addressModeNames = map[AddressMode]string{
	ModeServerURL:  "url",
	ModeRawURL:     "raw",
	ModeRemotePath: "path",
}

var addressModesByName = util.InvertMap(addressModeNames)

// String returns the configuration name of the mode.
func (m AddressMode) String() string {
	if s, ok := addressModeNames[m]; ok {
		return s
	}
	return fmt.Sprintf("AddressMode(%d)", int(m))
}

// AddressModeFromString parses a configuration string into an AddressMode.
func AddressModeFromString(s string) (AddressMode, error) {
	if m, ok := addressModesByName[strings.ToLower(strings.TrimSpace(s))]; ok {
		return m, nil
	}
	return ModeServerURL, fmt.Errorf("unknown addressing mode %q (valid: url, raw, path)", s)
}

// Options is the immutable configuration record for one mirror source.
// It is constructed once per configured source and reused across runs.
type Options struct {
	// SourceDir is the remote root being mirrored, slash-delimited.
	SourceDir string
	// TargetDir is the local root the tree is materialized under.
	TargetDir string

	// Mode selects the pointer-file content (see AddressMode).
	Mode AddressMode

	// Flatten discards the remote directory structure and places every
	// materialized file directly under TargetDir. Auxiliary downloads are
	// forced off in flatten mode: without the directory context, subtitle
	// and artwork files cannot be associated with their video.
	Flatten bool

	// Auxiliary download toggles.
	Subtitle bool
	Image    bool
	Nfo      bool
	// OtherExts is a list of additional extensions to download.
	OtherExts []string

	// Overwrite regenerates files that already exist locally.
	Overwrite bool

	// SyncServer enables the reconciliation pass that deletes local files
	// no longer present in the remote listing.
	SyncServer bool
	// SyncIgnore is a regular expression; local file names matching it are
	// never deleted by reconciliation. Empty disables the ignore list.
	SyncIgnore string
	// ProtectedNames are exact file names reconciliation must never delete,
	// regardless of the ignore pattern. Used for the lock and metadata
	// files living inside the target.
	ProtectedNames []string

	// MaxWorkers bounds how many entries are materialized at once.
	MaxWorkers int
	// MaxDownloaders bounds simultaneous asset downloads. It must not
	// exceed MaxWorkers: download permits are acquired inside an entry
	// worker's scope, so extra download capacity could never be used.
	MaxDownloaders int

	// Metrics enables the end-of-run counter summary.
	Metrics bool
}

// resolved holds the per-source state derived from Options once, at
// construction time.
type resolved struct {
	opts Options

	targetDir    string // absolute
	sourceDir    string // cleaned, slash-delimited
	downloadExts extSet // auxiliary extensions to download
	processExts  extSet // video plus download: everything eligible at all
	ignore       *regexp.Regexp
	protected    map[string]struct{}
}

func resolveOptions(opts Options) (*resolved, error) {
	if opts.TargetDir == "" {
		return nil, fmt.Errorf("target directory cannot be empty")
	}
	if opts.SourceDir == "" {
		opts.SourceDir = "/"
	}
	if !strings.HasPrefix(opts.SourceDir, "/") {
		return nil, fmt.Errorf("source directory %q must be absolute", opts.SourceDir)
	}
	if opts.MaxWorkers < 1 {
		return nil, fmt.Errorf("maxWorkers must be at least 1")
	}
	if opts.MaxDownloaders < 1 {
		return nil, fmt.Errorf("maxDownloaders must be at least 1")
	}
	if opts.MaxDownloaders > opts.MaxWorkers {
		return nil, fmt.Errorf("maxDownloaders (%d) cannot exceed maxWorkers (%d)", opts.MaxDownloaders, opts.MaxWorkers)
	}

	targetDir, err := util.ExpandPath(opts.TargetDir)
	if err != nil {
		return nil, fmt.Errorf("could not expand target directory: %w", err)
	}
	targetDir, err = filepath.Abs(targetDir)
	if err != nil {
		return nil, fmt.Errorf("could not resolve target directory: %w", err)
	}

	if opts.Flatten {
		// Flattening loses the directory context auxiliary files rely on.
		opts.Subtitle, opts.Image, opts.Nfo = false, false, false
		opts.OtherExts = nil
	}

	downloadExts := newExtSet()
	if opts.Subtitle {
		downloadExts = downloadExts.union(subtitleExts)
	}
	if opts.Image {
		downloadExts = downloadExts.union(imageExts)
	}
	if opts.Nfo {
		downloadExts = downloadExts.union(nfoExts)
	}
	for _, ext := range opts.OtherExts {
		if n := util.NormalizeExt(ext); n != "" {
			downloadExts[n] = struct{}{}
		}
	}

	var ignore *regexp.Regexp
	if opts.SyncIgnore != "" {
		ignore, err = regexp.Compile(opts.SyncIgnore)
		if err != nil {
			return nil, fmt.Errorf("invalid syncIgnore pattern: %w", err)
		}
	}

	protected := make(map[string]struct{}, len(opts.ProtectedNames))
	for _, name := range opts.ProtectedNames {
		protected[name] = struct{}{}
	}

	return &resolved{
		opts:         opts,
		targetDir:    targetDir,
		sourceDir:    strings.TrimSuffix(opts.SourceDir, "/"),
		downloadExts: downloadExts,
		processExts:  videoExts.union(downloadExts),
		ignore:       ignore,
		protected:    protected,
	}, nil
}
