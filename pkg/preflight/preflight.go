// Package preflight validates that a sync target is usable before a run
// starts. The checks give friendlier errors than letting the engine fail
// halfway through materialization.
package preflight

import (
	"fmt"
	"os"
	"path/filepath"

	"strmsync/pkg/plog"
)

// lowSpaceThreshold is the free-space floor below which a warning is
// logged. Pointer files are tiny but auxiliary downloads are not.
const lowSpaceThreshold = 512 * 1024 * 1024

// CheckTargetAccessible verifies that the target path either is a directory
// or can plausibly be created: its deepest existing ancestor must be
// reachable and the immediate parent must exist.
func CheckTargetAccessible(targetPath string) error {
	info, err := os.Stat(targetPath)
	if os.IsNotExist(err) {
		parentDir := filepath.Dir(targetPath)
		if _, err := os.Stat(parentDir); os.IsNotExist(err) {
			return fmt.Errorf("target path and its parent directory do not exist: %s", parentDir)
		} else if err != nil {
			return fmt.Errorf("cannot access parent directory %s: %w", parentDir, err)
		}
		return nil
	} else if err != nil {
		return fmt.Errorf("cannot access target path: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("target path exists but is not a directory: %s", targetPath)
	}
	return nil
}

// CheckTargetWritable ensures the target directory exists and is writable
// by creating and deleting a probe file. This check modifies the
// filesystem.
func CheckTargetWritable(targetPath string) error {
	if err := os.MkdirAll(targetPath, 0755); err != nil {
		return fmt.Errorf("failed to create target directory %s: %w", targetPath, err)
	}

	tempFile := filepath.Join(targetPath, ".strmsync-writetest.tmp")
	f, err := os.Create(tempFile)
	if err != nil {
		return fmt.Errorf("target directory %s is not writable: %w", targetPath, err)
	}
	f.Close()
	_ = os.Remove(tempFile)
	return nil
}

// CheckFreeSpace logs a warning when the target's filesystem is low on
// space. Low space is not an error: a pointer-only sync needs almost none.
func CheckFreeSpace(targetPath string) {
	free, err := freeBytes(targetPath)
	if err != nil {
		plog.Debug("Could not determine free space", "path", targetPath, "error", err)
		return
	}
	if free < lowSpaceThreshold {
		plog.Warn("Target filesystem is low on space", "path", targetPath, "freeBytes", free)
	}
}

// Run performs all target checks in order and returns the first hard
// failure.
func Run(targetPath string) error {
	if err := CheckTargetAccessible(targetPath); err != nil {
		return err
	}
	if err := CheckTargetWritable(targetPath); err != nil {
		return err
	}
	CheckFreeSpace(targetPath)
	return nil
}
