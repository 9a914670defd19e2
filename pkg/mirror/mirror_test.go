package mirror

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"strmsync/pkg/plog"
)

func TestMain(m *testing.M) {
	plog.SetOutput(io.Discard)
	os.Exit(m.Run())
}

// sliceLister replays a fixed entry list, satisfying the restartable
// enumeration contract trivially.
type sliceLister struct {
	entries []Entry
}

func (l *sliceLister) Walk(ctx context.Context, fn func(Entry) error) error {
	for _, e := range l.entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

// failingLister simulates an enumeration failure mid-walk.
type failingLister struct{}

func (l *failingLister) Walk(ctx context.Context, fn func(Entry) error) error {
	return fmt.Errorf("listing server unreachable")
}

// fakeDownloader writes a fixed payload and records every URL it saw.
type fakeDownloader struct {
	payload string
	calls   []string
}

func (d *fakeDownloader) Download(ctx context.Context, url, dest string) error {
	d.calls = append(d.calls, url)
	return os.WriteFile(dest, []byte(d.payload), 0o644)
}

func fileEntry(remotePath string, mod time.Time, size int64) Entry {
	return Entry{
		Path:     remotePath,
		Name:     filepath.Base(remotePath),
		Size:     size,
		Modified: mod,
		URL:      "http://server/d" + remotePath,
		RawURL:   "http://origin" + remotePath,
	}
}

func newTestMirror(t *testing.T, opts Options, lister Lister, dl Downloader) *Mirror {
	t.Helper()
	if opts.MaxWorkers == 0 {
		opts.MaxWorkers = 4
	}
	if opts.MaxDownloaders == 0 {
		opts.MaxDownloaders = 2
	}
	m, err := New(opts, lister, dl)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

func TestRunWritesPointerFiles(t *testing.T) {
	target := t.TempDir()
	mod := time.Now().Add(-time.Hour)
	lister := &sliceLister{entries: []Entry{
		{Path: "/media/Shows", Name: "Shows", IsDir: true},
		fileEntry("/media/Shows/E01.mkv", mod, 100),
		fileEntry("/media/Shows/notes.txt", mod, 10),
	}}
	dl := &fakeDownloader{payload: "data"}

	m := newTestMirror(t, Options{SourceDir: "/media", TargetDir: target}, lister, dl)
	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	pointer := filepath.Join(target, "Shows", "E01.strm")
	if got := readFile(t, pointer); got != "http://server/d/media/Shows/E01.mkv" {
		t.Errorf("pointer content = %q", got)
	}
	if _, err := os.Stat(filepath.Join(target, "Shows", "notes.txt")); !os.IsNotExist(err) {
		t.Error("unfiltered extension must not be materialized")
	}
	if len(dl.calls) != 0 {
		t.Errorf("no downloads expected, got %v", dl.calls)
	}
}

func TestRunAddressModes(t *testing.T) {
	mod := time.Now().Add(-time.Hour)
	entry := fileEntry("/media/Film.mp4", mod, 1)

	tests := []struct {
		mode AddressMode
		want string
	}{
		{ModeServerURL, "http://server/d/media/Film.mp4"},
		{ModeRawURL, "http://origin/media/Film.mp4"},
		{ModeRemotePath, "/media/Film.mp4"},
	}

	for _, tt := range tests {
		t.Run(tt.mode.String(), func(t *testing.T) {
			target := t.TempDir()
			lister := &sliceLister{entries: []Entry{entry}}
			m := newTestMirror(t, Options{SourceDir: "/media", TargetDir: target, Mode: tt.mode}, lister, &fakeDownloader{})
			if err := m.Run(context.Background()); err != nil {
				t.Fatalf("Run: %v", err)
			}
			if got := readFile(t, filepath.Join(target, "Film.strm")); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRunDownloadsAuxiliaries(t *testing.T) {
	target := t.TempDir()
	mod := time.Now().Add(-time.Hour)
	lister := &sliceLister{entries: []Entry{
		fileEntry("/media/Film.mkv", mod, 100),
		fileEntry("/media/Film.srt", mod, 5),
		fileEntry("/media/poster.jpg", mod, 5),
	}}
	dl := &fakeDownloader{payload: "asset"}

	m := newTestMirror(t, Options{SourceDir: "/media", TargetDir: target, Subtitle: true, Image: true}, lister, dl)
	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := readFile(t, filepath.Join(target, "Film.srt")); got != "asset" {
		t.Errorf("subtitle content = %q", got)
	}
	if got := readFile(t, filepath.Join(target, "poster.jpg")); got != "asset" {
		t.Errorf("image content = %q", got)
	}
	if len(dl.calls) != 2 {
		t.Errorf("expected 2 downloads, got %v", dl.calls)
	}
}

func TestRunDiscImageYieldsSinglePointer(t *testing.T) {
	target := t.TempDir()
	mod := time.Now().Add(-time.Hour)
	root := "/media/Movie (2021)/BDMV"
	lister := &sliceLister{entries: []Entry{
		{Path: "/media/Movie (2021)", Name: "Movie (2021)", IsDir: true},
		{Path: root, Name: "BDMV", IsDir: true},
		{Path: root + "/STREAM", Name: "STREAM", IsDir: true},
		fileEntry(root+"/STREAM/00001.m2ts", mod, 10),
		fileEntry(root+"/STREAM/00002.m2ts", mod, 999),
		fileEntry(root+"/STREAM/00003.m2ts", mod, 500),
	}}

	m := newTestMirror(t, Options{SourceDir: "/media", TargetDir: target}, lister, &fakeDownloader{})
	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	pointer := filepath.Join(target, "Movie (2021)", "Movie (2021).strm")
	if got := readFile(t, pointer); got != "http://server/d"+root+"/STREAM/00002.m2ts" {
		t.Errorf("pointer content = %q", got)
	}

	var files []string
	filepath.WalkDir(target, func(path string, d os.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			files = append(files, path)
		}
		return nil
	})
	if len(files) != 1 {
		t.Errorf("disc image must collapse to exactly one file, got %v", files)
	}
}

func TestRunLowerCaseStreamDirIsNotCollapsed(t *testing.T) {
	target := t.TempDir()
	mod := time.Now().Add(-time.Hour)
	root := "/media/M/BDMV"
	lister := &sliceLister{entries: []Entry{
		{Path: "/media/M", Name: "M", IsDir: true},
		{Path: root, Name: "BDMV", IsDir: true},
		{Path: root + "/stream", Name: "stream", IsDir: true},
		fileEntry(root+"/stream/00001.m2ts", mod, 10),
		fileEntry(root+"/stream/00002.m2ts", mod, 999),
	}}

	m := newTestMirror(t, Options{SourceDir: "/media", TargetDir: target}, lister, &fakeDownloader{})
	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// An ungrouped subtree keeps its files at separate ordinary paths; a
	// collapsed item pointer must not appear.
	for _, name := range []string{"00001.strm", "00002.strm"} {
		pointer := filepath.Join(target, "M", "BDMV", "stream", name)
		want := "http://server/d" + root + "/stream/" + strings.TrimSuffix(name, ".strm") + ".m2ts"
		if got := readFile(t, pointer); got != want {
			t.Errorf("%s content = %q, want %q", name, got, want)
		}
	}
	if _, err := os.Stat(filepath.Join(target, "M", "M.strm")); !os.IsNotExist(err) {
		t.Error("lower-case stream directory must not collapse to an item pointer")
	}
}

func TestRunFlattenCollisionLastWriteWins(t *testing.T) {
	target := t.TempDir()
	mod := time.Now().Add(-time.Hour)
	lister := &sliceLister{entries: []Entry{
		fileEntry("/a/b/movie.mp4", mod, 100),
		fileEntry("/a/c/movie.mp4", mod, 200),
	}}

	var logBuf bytes.Buffer
	plog.SetOutput(&logBuf)
	defer plog.SetOutput(io.Discard)

	m := newTestMirror(t, Options{SourceDir: "/a", TargetDir: target, Flatten: true}, lister, &fakeDownloader{})
	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	dirEntries, err := os.ReadDir(target)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(dirEntries) != 1 || dirEntries[0].Name() != "movie.strm" {
		t.Fatalf("expected exactly one movie.strm, got %v", dirEntries)
	}

	got := readFile(t, filepath.Join(target, "movie.strm"))
	if got != "http://server/d/a/b/movie.mp4" && got != "http://server/d/a/c/movie.mp4" {
		t.Errorf("surviving pointer content = %q, want one of the two colliding URLs", got)
	}

	// Both colliding entries are written; the collision is visible in the
	// log, not silently dropped.
	if n := strings.Count(logBuf.String(), "msg=WRITE"); n != 2 {
		t.Errorf("expected 2 WRITE events, got %d:\n%s", n, logBuf.String())
	}
}

func TestRunIsIdempotent(t *testing.T) {
	target := t.TempDir()
	mod := time.Now().Add(-time.Hour)
	lister := &sliceLister{entries: []Entry{
		fileEntry("/media/A/one.mkv", mod, 1),
		fileEntry("/media/A/one.srt", mod, 1),
	}}
	dl := &fakeDownloader{payload: "s"}

	m := newTestMirror(t, Options{SourceDir: "/media", TargetDir: target, Subtitle: true, SyncServer: true}, lister, dl)
	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("first Run: %v", err)
	}

	pointer := filepath.Join(target, "A", "one.strm")
	before, err := os.Stat(pointer)
	if err != nil {
		t.Fatalf("stat pointer: %v", err)
	}

	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("second Run: %v", err)
	}

	after, err := os.Stat(pointer)
	if err != nil {
		t.Fatal("second run deleted an up-to-date pointer")
	}
	if !after.ModTime().Equal(before.ModTime()) {
		t.Error("second run rewrote an up-to-date pointer")
	}
	if len(dl.calls) != 1 {
		t.Errorf("up-to-date subtitle must not be re-downloaded, got %d calls", len(dl.calls))
	}
	if _, err := os.Stat(filepath.Join(target, "A", "one.srt")); err != nil {
		t.Error("second run removed an up-to-date subtitle")
	}
}

func TestRunOverwriteRegenerates(t *testing.T) {
	target := t.TempDir()
	mod := time.Now().Add(-time.Hour)
	lister := &sliceLister{entries: []Entry{fileEntry("/media/Film.mkv", mod, 1)}}

	pointer := filepath.Join(target, "Film.strm")
	if err := os.WriteFile(pointer, []byte("stale"), 0o644); err != nil {
		t.Fatal(err)
	}

	m := newTestMirror(t, Options{SourceDir: "/media", TargetDir: target, Overwrite: true}, lister, &fakeDownloader{})
	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := readFile(t, pointer); got != "http://server/d/media/Film.mkv" {
		t.Errorf("overwrite must regenerate pointer, got %q", got)
	}
}

func TestRunStaleAuxiliaryIsRefreshed(t *testing.T) {
	target := t.TempDir()
	lister := &sliceLister{entries: []Entry{
		fileEntry("/media/Film.srt", time.Now().Add(time.Hour), 5),
	}}
	dl := &fakeDownloader{payload: "fresh"}

	local := filepath.Join(target, "Film.srt")
	if err := os.WriteFile(local, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	m := newTestMirror(t, Options{SourceDir: "/media", TargetDir: target, Subtitle: true}, lister, dl)
	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := readFile(t, local); got != "fresh" {
		t.Errorf("outdated auxiliary must be refreshed, got %q", got)
	}
}

func TestRunReconcileDeletesOrphansAndPrunes(t *testing.T) {
	target := t.TempDir()
	mod := time.Now().Add(-time.Hour)
	lister := &sliceLister{entries: []Entry{fileEntry("/media/Keep/film.mkv", mod, 1)}}

	orphanDir := filepath.Join(target, "Gone", "Deep")
	if err := os.MkdirAll(orphanDir, 0o755); err != nil {
		t.Fatal(err)
	}
	orphan := filepath.Join(orphanDir, "old.strm")
	if err := os.WriteFile(orphan, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	kept := filepath.Join(target, "Gone", "keep.txt")
	if err := os.WriteFile(kept, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	m := newTestMirror(t, Options{
		SourceDir:  "/media",
		TargetDir:  target,
		SyncServer: true,
		SyncIgnore: `^keep\.`,
	}, lister, &fakeDownloader{})
	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if _, err := os.Stat(orphan); !os.IsNotExist(err) {
		t.Error("orphan file must be deleted")
	}
	if _, err := os.Stat(orphanDir); !os.IsNotExist(err) {
		t.Error("emptied directory must be pruned")
	}
	if _, err := os.Stat(kept); err != nil {
		t.Error("ignore pattern must protect matching files")
	}
	if _, err := os.Stat(filepath.Join(target, "Keep", "film.strm")); err != nil {
		t.Error("current pointer must survive reconciliation")
	}
	if _, err := os.Stat(target); err != nil {
		t.Error("target root itself must never be pruned")
	}
}

func TestRunReconcileKeepsProtectedNames(t *testing.T) {
	target := t.TempDir()
	lister := &sliceLister{entries: []Entry{}}

	protected := filepath.Join(target, ".app.lock")
	if err := os.WriteFile(protected, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	m := newTestMirror(t, Options{
		SourceDir:      "/media",
		TargetDir:      target,
		SyncServer:     true,
		ProtectedNames: []string{".app.lock"},
	}, lister, &fakeDownloader{})
	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if _, err := os.Stat(protected); err != nil {
		t.Error("protected file must survive reconciliation")
	}
}

func TestRunWithoutSyncKeepsOrphans(t *testing.T) {
	target := t.TempDir()
	orphan := filepath.Join(target, "old.strm")
	if err := os.WriteFile(orphan, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	lister := &sliceLister{entries: []Entry{}}
	m := newTestMirror(t, Options{SourceDir: "/media", TargetDir: target}, lister, &fakeDownloader{})
	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if _, err := os.Stat(orphan); err != nil {
		t.Error("reconciliation disabled, orphan must survive")
	}
}

func TestRunFlattenReconciliation(t *testing.T) {
	target := t.TempDir()
	mod := time.Now().Add(-time.Hour)
	lister := &sliceLister{entries: []Entry{fileEntry("/media/Shows/E01.mkv", mod, 1)}}

	orphan := filepath.Join(target, "gone.strm")
	if err := os.WriteFile(orphan, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	m := newTestMirror(t, Options{SourceDir: "/media", TargetDir: target, Flatten: true, SyncServer: true}, lister, &fakeDownloader{})
	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if _, err := os.Stat(filepath.Join(target, "E01.strm")); err != nil {
		t.Error("flattened pointer missing")
	}
	if _, err := os.Stat(orphan); !os.IsNotExist(err) {
		t.Error("flat orphan must be deleted")
	}
}

func TestRunEnumerationFailureAbortsRun(t *testing.T) {
	target := t.TempDir()
	m := newTestMirror(t, Options{SourceDir: "/media", TargetDir: target, SyncServer: true}, &failingLister{}, &fakeDownloader{})

	if err := m.Run(context.Background()); err == nil {
		t.Fatal("enumeration failure must fail the run")
	}

	// Nothing was enumerated, so nothing may be deleted either.
	probe := filepath.Join(target, "probe.strm")
	if err := os.WriteFile(probe, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	m.Run(context.Background())
	if _, err := os.Stat(probe); err != nil {
		t.Error("failed enumeration must not trigger reconciliation")
	}
}
