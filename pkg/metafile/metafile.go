// Package metafile records per-target sync metadata: when the last
// successful run happened and what it looked like. The file lives inside
// the target directory and is protected from reconciliation.
package metafile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"strmsync/pkg/util"
)

// MetaFileName is the name of the sync metadata file.
const MetaFileName = ".strmsync.meta.json"

// MetafileContent holds the contents of the metadata file.
type MetafileContent struct {
	Version      string    `json:"version"`
	SourceName   string    `json:"sourceName"`
	SourceDir    string    `json:"sourceDir"`
	TimestampUTC time.Time `json:"timestampUTC"`
}

// Write creates or replaces the metadata file in the target directory.
func Write(dirPath string, content *MetafileContent) error {
	metaFilePath := filepath.Join(dirPath, MetaFileName)
	jsonData, err := json.MarshalIndent(content, "", "  ")
	if err != nil {
		return fmt.Errorf("could not marshal meta data: %w", err)
	}

	if err := os.WriteFile(metaFilePath, jsonData, util.UserWritableFilePerms); err != nil {
		return fmt.Errorf("could not write meta file %s: %w", metaFilePath, err)
	}
	return nil
}

// Read opens and parses the metadata file in the target directory.
func Read(dirPath string) (MetafileContent, error) {
	metaFilePath := filepath.Join(dirPath, MetaFileName)
	metaFile, err := os.Open(metaFilePath)
	if err != nil {
		// Return the original error so os.IsNotExist works for callers.
		return MetafileContent{}, err
	}
	defer metaFile.Close()

	var content MetafileContent
	if err := json.NewDecoder(metaFile).Decode(&content); err != nil {
		return MetafileContent{}, fmt.Errorf("could not parse metafile %s: %w. It may be corrupt", metaFilePath, err)
	}
	return content, nil
}
