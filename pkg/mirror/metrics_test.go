package mirror

import "testing"

func TestRunMetricsAccumulates(t *testing.T) {
	m := &RunMetrics{}

	m.AddPointersWritten(2)
	m.AddPointersWritten(1)
	m.AddAssetsDownloaded(4)
	m.AddFilesUpToDate(5)
	m.AddFilesFailed(1)
	m.AddFilesDeleted(3)
	m.AddDirsPruned(2)

	if got := m.PointersWritten.Load(); got != 3 {
		t.Errorf("PointersWritten = %d", got)
	}
	if got := m.AssetsDownloaded.Load(); got != 4 {
		t.Errorf("AssetsDownloaded = %d", got)
	}
	if got := m.FilesUpToDate.Load(); got != 5 {
		t.Errorf("FilesUpToDate = %d", got)
	}
	if got := m.FilesFailed.Load(); got != 1 {
		t.Errorf("FilesFailed = %d", got)
	}
	if got := m.FilesDeleted.Load(); got != 3 {
		t.Errorf("FilesDeleted = %d", got)
	}
	if got := m.DirsPruned.Load(); got != 2 {
		t.Errorf("DirsPruned = %d", got)
	}
}

// Noop must satisfy the interface without side effects; this mostly guards
// the interface assertion against signature drift.
func TestNoopMetricsIsInert(t *testing.T) {
	var m Metrics = &NoopMetrics{}
	m.AddPointersWritten(1)
	m.Log()
}
