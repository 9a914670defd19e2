package lockfile

import (
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"strmsync/pkg/plog"
)

func TestMain(m *testing.M) {
	plog.SetOutput(io.Discard)
	os.Exit(m.Run())
}

func TestAcquireAndRelease(t *testing.T) {
	dir := t.TempDir()

	lock, err := Acquire(dir, "test")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	lockPath := filepath.Join(dir, LockFileName)
	data, err := os.ReadFile(lockPath)
	if err != nil {
		t.Fatalf("lock file missing: %v", err)
	}
	var content LockContent
	if err := json.Unmarshal(data, &content); err != nil {
		t.Fatalf("lock content not JSON: %v", err)
	}
	if content.PID != int64(os.Getpid()) || content.AppID != "test" {
		t.Errorf("lock content = %+v", content)
	}

	if err := lock.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := os.Stat(lockPath); !os.IsNotExist(err) {
		t.Error("lock file must be removed on release")
	}

	// Double release must be a no-op.
	if err := lock.Release(); err != nil {
		t.Errorf("second Release: %v", err)
	}
}

func TestAcquireFailsWhileHeld(t *testing.T) {
	dir := t.TempDir()

	lock, err := Acquire(dir, "first")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer lock.Release()

	_, err = Acquire(dir, "second")
	var active *ErrLockActive
	if !errors.As(err, &active) {
		t.Fatalf("expected *ErrLockActive, got %v", err)
	}
	if active.AppID != "first" {
		t.Errorf("holder AppID = %q", active.AppID)
	}
}

func TestAcquireTakesOverStaleLock(t *testing.T) {
	dir := t.TempDir()
	lockPath := filepath.Join(dir, LockFileName)

	stale, _ := json.Marshal(LockContent{
		PID:        99999,
		Hostname:   "elsewhere",
		AppID:      "dead-run",
		LastUpdate: time.Now().Add(-time.Hour),
	})
	if err := os.WriteFile(lockPath, stale, 0o644); err != nil {
		t.Fatal(err)
	}

	lock, err := Acquire(dir, "takeover")
	if err != nil {
		t.Fatalf("stale lock must be taken over: %v", err)
	}
	defer lock.Release()

	data, _ := os.ReadFile(lockPath)
	var content LockContent
	json.Unmarshal(data, &content)
	if content.AppID != "takeover" {
		t.Errorf("lock not rewritten by takeover: %+v", content)
	}
}

func TestAcquireRecoversCorruptLock(t *testing.T) {
	dir := t.TempDir()
	lockPath := filepath.Join(dir, LockFileName)
	if err := os.WriteFile(lockPath, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	lock, err := Acquire(dir, "recover")
	if err != nil {
		t.Fatalf("corrupt lock must be replaced: %v", err)
	}
	lock.Release()
}

func TestHeartbeatRefreshesTimestamp(t *testing.T) {
	origInterval, origStale := heartbeatInterval, staleTimeout
	heartbeatInterval = 20 * time.Millisecond
	staleTimeout = 3 * heartbeatInterval
	defer func() {
		heartbeatInterval, staleTimeout = origInterval, origStale
	}()

	dir := t.TempDir()
	lock, err := Acquire(dir, "hb")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer lock.Release()

	read := func() time.Time {
		data, err := os.ReadFile(filepath.Join(dir, LockFileName))
		if err != nil {
			t.Fatalf("read lock: %v", err)
		}
		var content LockContent
		// A read can race a heartbeat rewrite; treat it as not yet updated.
		if err := json.Unmarshal(data, &content); err != nil {
			return time.Time{}
		}
		return content.LastUpdate
	}

	first := read()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if read().After(first) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("heartbeat never refreshed the lock timestamp")
}
