package mirror

import (
	"sync/atomic"

	"strmsync/pkg/plog"
)

// Metrics defines the interface for collecting per-run mirroring statistics.
type Metrics interface {
	AddPointersWritten(n int64)
	AddAssetsDownloaded(n int64)
	AddFilesUpToDate(n int64)
	AddFilesSkipped(n int64)
	AddFilesFailed(n int64)
	AddFilesDeleted(n int64)
	AddDirsPruned(n int64)
	Log()
}

// RunMetrics holds the atomic counters for one mirror run. It is the
// concrete implementation of the Metrics interface.
type RunMetrics struct {
	PointersWritten  atomic.Int64
	AssetsDownloaded atomic.Int64
	FilesUpToDate    atomic.Int64
	FilesSkipped     atomic.Int64
	FilesFailed      atomic.Int64
	FilesDeleted     atomic.Int64
	DirsPruned       atomic.Int64
}

func (m *RunMetrics) AddPointersWritten(n int64)  { m.PointersWritten.Add(n) }
func (m *RunMetrics) AddAssetsDownloaded(n int64) { m.AssetsDownloaded.Add(n) }
func (m *RunMetrics) AddFilesUpToDate(n int64)    { m.FilesUpToDate.Add(n) }
func (m *RunMetrics) AddFilesSkipped(n int64)     { m.FilesSkipped.Add(n) }
func (m *RunMetrics) AddFilesFailed(n int64)      { m.FilesFailed.Add(n) }
func (m *RunMetrics) AddFilesDeleted(n int64)     { m.FilesDeleted.Add(n) }
func (m *RunMetrics) AddDirsPruned(n int64)       { m.DirsPruned.Add(n) }

// Log prints a summary of the run.
func (m *RunMetrics) Log() {
	plog.Info("SUM",
		"pointersWritten", m.PointersWritten.Load(),
		"assetsDownloaded", m.AssetsDownloaded.Load(),
		"filesUpToDate", m.FilesUpToDate.Load(),
		"filesSkipped", m.FilesSkipped.Load(),
		"filesFailed", m.FilesFailed.Load(),
		"filesDeleted", m.FilesDeleted.Load(),
		"dirsPruned", m.DirsPruned.Load(),
	)
}

// NoopMetrics is an implementation of the Metrics interface that performs no
// operations. It is used when the counter summary is disabled.
type NoopMetrics struct{}

func (m *NoopMetrics) AddPointersWritten(n int64)  {}
func (m *NoopMetrics) AddAssetsDownloaded(n int64) {}
func (m *NoopMetrics) AddFilesUpToDate(n int64)    {}
func (m *NoopMetrics) AddFilesSkipped(n int64)     {}
func (m *NoopMetrics) AddFilesFailed(n int64)      {}
func (m *NoopMetrics) AddFilesDeleted(n int64)     {}
func (m *NoopMetrics) AddDirsPruned(n int64)       {}
func (m *NoopMetrics) Log()                        {}

// Statically assert that our types implement the interface.
var _ Metrics = (*RunMetrics)(nil)
var _ Metrics = (*NoopMetrics)(nil)
