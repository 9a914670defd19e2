package mirror

import (
	"context"
	"path"
	"strings"
	"time"
)

// Entry is one remote file-system entry as reported by the directory-listing
// server. Entries are immutable for the duration of a run; Path is unique
// within a run.
type Entry struct {
	// Path is the absolute, slash-delimited remote path of the entry.
	Path string
	// Name is the base name of the entry.
	Name string
	// IsDir discriminates directory entries from file entries. Directory
	// entries are never materialized and carry no usable content URLs.
	IsDir bool
	// Size is the entry's size in bytes. Zero for directories.
	Size int64
	// Modified is the remote modification timestamp.
	Modified time.Time
	// URL addresses the entry's content proxied through the listing server.
	URL string
	// RawURL addresses the entry's content directly at its upstream origin.
	RawURL string
}

// Suffix returns the entry's lower-cased extension including the leading dot,
// or "" when the name has none.
func (e Entry) Suffix() string {
	return strings.ToLower(path.Ext(e.Name))
}

// Lister produces the full remote entry sequence for one run. The sequence
// must be restartable: every call to Walk enumerates the tree from scratch.
// Walk stops and returns the callback's error as soon as one is returned.
//
// Callers that need deterministic disc-group tie-breaking must supply a
// stable enumeration order; the engine additionally orders same-size disc
// candidates by path so results stay deterministic either way.
type Lister interface {
	Walk(ctx context.Context, fn func(Entry) error) error
}

// Downloader performs a single blocking transfer of a direct URL to a
// destination path, returning an error on any HTTP or I/O failure.
type Downloader interface {
	Download(ctx context.Context, url, dest string) error
}
