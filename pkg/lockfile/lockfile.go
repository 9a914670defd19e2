// Package lockfile guards a target directory against concurrent sync runs.
// A lock is a JSON file created exclusively in the target; a background
// heartbeat keeps it fresh so crashed runs can be detected and taken over.
package lockfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"strmsync/pkg/plog"
	"strmsync/pkg/util"
)

// LockFileName is the name of the lock file created in the target directory.
// The '~' prefix marks it as temporary.
const LockFileName = ".~strmsync.lock"

// LockContent is the data written to the lock file.
type LockContent struct {
	PID        int64     `json:"pid"`
	Hostname   string    `json:"hostname"`
	AppID      string    `json:"appID"`
	LastUpdate time.Time `json:"lastUpdate"`
}

// ErrLockActive is returned when a live lock is already held.
type ErrLockActive struct {
	PID       int64
	Hostname  string
	AppID     string
	TimeSince time.Duration
}

func (e *ErrLockActive) Error() string {
	return fmt.Sprintf("lock is active, held by PID %d on host '%s' (App: %s), last updated %s ago",
		e.PID, e.Hostname, e.AppID, e.TimeSince.Truncate(time.Second))
}

// ErrCorruptLockFile indicates the lock file on disk is empty or not valid JSON.
var ErrCorruptLockFile = errors.New("lock file is corrupt or empty")

// These are vars to allow modification during testing.
var (
	heartbeatInterval = 1 * time.Minute
	// staleTimeout is defined in relation to the heartbeat to keep a safe margin.
	staleTimeout = 3 * heartbeatInterval
)

// Lock is an acquired target-directory lock.
type Lock struct {
	path   string
	cancel context.CancelFunc

	mu   sync.Mutex
	held bool
}

// Acquire takes the lock for dirPath or fails with *ErrLockActive when a
// live lock exists. A stale lock (heartbeat older than the stale timeout)
// or a corrupt one is removed and acquisition is retried once.
func Acquire(dirPath, appID string) (*Lock, error) {
	lockPath := filepath.Join(dirPath, LockFileName)

	for attempt := 0; attempt < 2; attempt++ {
		lock, err := tryCreate(lockPath, appID)
		if err == nil {
			return lock, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("failed to create lock file %s: %w", lockPath, err)
		}

		content, readErr := readContent(lockPath)
		if readErr != nil {
			if errors.Is(readErr, ErrCorruptLockFile) {
				plog.Warn("Removing corrupt lock file", "path", lockPath)
				os.Remove(lockPath)
				continue
			}
			if os.IsNotExist(readErr) {
				// Holder released between our create attempt and read.
				continue
			}
			return nil, fmt.Errorf("failed to read existing lock file %s: %w", lockPath, readErr)
		}

		age := time.Since(content.LastUpdate)
		if age < staleTimeout {
			return nil, &ErrLockActive{
				PID:       content.PID,
				Hostname:  content.Hostname,
				AppID:     content.AppID,
				TimeSince: age,
			}
		}

		plog.Warn("Taking over stale lock", "path", lockPath, "heldBy", content.Hostname, "age", age.Truncate(time.Second))
		os.Remove(lockPath)
	}

	return nil, fmt.Errorf("failed to acquire lock %s after stale takeover", lockPath)
}

// tryCreate creates the lock file exclusively and starts the heartbeat.
func tryCreate(lockPath, appID string) (*Lock, error) {
	f, err := os.OpenFile(lockPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, util.UserWritableFilePerms)
	if err != nil {
		return nil, err
	}

	if err := writeContent(f, appID); err != nil {
		f.Close()
		os.Remove(lockPath)
		return nil, err
	}
	if err := f.Close(); err != nil {
		os.Remove(lockPath)
		return nil, err
	}

	hbCtx, cancel := context.WithCancel(context.Background())
	lock := &Lock{path: lockPath, cancel: cancel, held: true}
	go lock.heartbeat(hbCtx, appID)

	plog.Debug("Acquired target lock", "path", lockPath)
	return lock, nil
}

// heartbeat refreshes the lock timestamp until the lock is released.
func (l *Lock) heartbeat(ctx context.Context, appID string) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_TRUNC, util.UserWritableFilePerms)
			if err != nil {
				plog.Warn("Failed to refresh lock heartbeat", "path", l.path, "error", err)
				continue
			}
			if err := writeContent(f, appID); err != nil {
				plog.Warn("Failed to write lock heartbeat", "path", l.path, "error", err)
			}
			f.Close()
		}
	}
}

// Release stops the heartbeat and removes the lock file. Safe to call more
// than once.
func (l *Lock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.held {
		return nil
	}
	l.held = false
	l.cancel()

	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock file %s: %w", l.path, err)
	}
	plog.Debug("Released target lock", "path", l.path)
	return nil
}

func writeContent(f *os.File, appID string) error {
	hostname, _ := os.Hostname()
	return json.NewEncoder(f).Encode(LockContent{
		PID:        int64(os.Getpid()),
		Hostname:   hostname,
		AppID:      appID,
		LastUpdate: time.Now().UTC(),
	})
}

func readContent(lockPath string) (LockContent, error) {
	data, err := os.ReadFile(lockPath)
	if err != nil {
		return LockContent{}, err
	}
	if len(data) == 0 {
		return LockContent{}, ErrCorruptLockFile
	}
	var content LockContent
	if err := json.Unmarshal(data, &content); err != nil {
		return LockContent{}, fmt.Errorf("%w: %v", ErrCorruptLockFile, err)
	}
	return content, nil
}
