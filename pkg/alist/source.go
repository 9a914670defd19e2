package alist

import (
	"context"
	"fmt"
	"time"

	"strmsync/pkg/mirror"
	"strmsync/pkg/plog"
)

// SourceOptions configures the enumeration behavior of one Source.
type SourceOptions struct {
	// Root is the remote directory the walk starts from, slash-delimited
	// and absolute.
	Root string
	// DirPassword unlocks password-protected directories.
	DirPassword string
	// Wait is the pause between consecutive API requests, protecting slow
	// upstream drivers from being hammered. Zero disables the pause.
	Wait time.Duration
	// Detail resolves every file's direct upstream link through a per-file
	// API call. Without it RawURL falls back to the server-proxied URL,
	// which is sufficient unless pointer files use raw addressing.
	Detail bool
	// Refresh asks the server to bypass its listing cache.
	Refresh bool
}

// Source enumerates an Alist directory tree as mirror entries. It
// implements mirror.Lister; every Walk call re-enumerates from the root.
type Source struct {
	client *Client
	opts   SourceOptions
}

// NewSource builds a Source over an authenticated client.
func NewSource(client *Client, opts SourceOptions) (*Source, error) {
	if client == nil {
		return nil, fmt.Errorf("client must not be nil")
	}
	if opts.Root == "" {
		opts.Root = "/"
	}
	return &Source{client: client, opts: opts}, nil
}

// Walk enumerates the tree breadth first, calling fn for every directory
// and file entry below the root. Directories are reported before their
// contents. Any API failure aborts the walk: a partial listing must never
// be mistaken for the remote state.
func (s *Source) Walk(ctx context.Context, fn func(mirror.Entry) error) error {
	queue := []string{normalizeDir(s.opts.Root)}

	for len(queue) > 0 {
		dir := queue[0]
		queue = queue[1:]

		entries, err := s.listDir(ctx, dir)
		if err != nil {
			return err
		}

		for _, fe := range entries {
			entry, err := s.toEntry(ctx, dir, fe)
			if err != nil {
				return err
			}
			if err := fn(entry); err != nil {
				return err
			}
			if entry.IsDir {
				queue = append(queue, entry.Path)
			}
		}
	}
	return nil
}

// listDir drains the pagination of one directory.
func (s *Source) listDir(ctx context.Context, dir string) ([]fsEntry, error) {
	var entries []fsEntry

	for page := 1; ; page++ {
		if err := s.pause(ctx); err != nil {
			return nil, err
		}

		data, err := s.client.list(ctx, dir, s.opts.DirPassword, page, s.opts.Refresh)
		if err != nil {
			return nil, err
		}
		entries = append(entries, data.Content...)

		plog.Debug("Listed directory page", "dir", dir, "page", page, "entries", len(data.Content), "total", data.Total)

		if len(data.Content) == 0 || len(entries) >= data.Total {
			return entries, nil
		}
	}
}

// toEntry converts one wire entry to a mirror entry, resolving the direct
// link when detail mode is on.
func (s *Source) toEntry(ctx context.Context, dir string, fe fsEntry) (mirror.Entry, error) {
	remotePath := joinRemote(dir, fe.Name)

	entry := mirror.Entry{
		Path:  remotePath,
		Name:  fe.Name,
		IsDir: fe.IsDir,
		Size:  fe.Size,
	}

	if fe.Modified != "" {
		mod, err := time.Parse(time.RFC3339Nano, fe.Modified)
		if err != nil {
			plog.Warn("Unparseable modification time, treating entry as unmodified", "path", remotePath, "modified", fe.Modified)
		} else {
			entry.Modified = mod
		}
	}

	if fe.IsDir {
		return entry, nil
	}

	entry.URL = s.client.contentURL(remotePath, fe.Sign)
	entry.RawURL = entry.URL

	if s.opts.Detail {
		if err := s.pause(ctx); err != nil {
			return mirror.Entry{}, err
		}
		data, err := s.client.get(ctx, remotePath, s.opts.DirPassword)
		if err != nil {
			return mirror.Entry{}, err
		}
		if data.RawURL != "" {
			entry.RawURL = data.RawURL
		}
		if fe.Sign == "" && data.Sign != "" {
			entry.URL = s.client.contentURL(remotePath, data.Sign)
		}
	}

	return entry, nil
}

// pause sleeps for the configured inter-request delay, honoring ctx.
func (s *Source) pause(ctx context.Context) error {
	if s.opts.Wait <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(s.opts.Wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func normalizeDir(p string) string {
	if p == "" {
		return "/"
	}
	if p != "/" && p[len(p)-1] == '/' {
		return p[:len(p)-1]
	}
	return p
}

func joinRemote(dir, name string) string {
	if dir == "/" {
		return "/" + name
	}
	return dir + "/" + name
}
