package cmd

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"strmsync/pkg/config"
	"strmsync/pkg/plog"
)

func TestMain(m *testing.M) {
	plog.SetOutput(io.Discard)
	os.Exit(m.Run())
}

func TestRunInitCreatesConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), config.ConfigFileName)

	if err := RunInit(map[string]any{"config": path}); err != nil {
		t.Fatalf("RunInit: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("generated config does not load: %v", err)
	}
	if len(cfg.Sources) != 1 {
		t.Errorf("generated config has %d sources", len(cfg.Sources))
	}
}

func TestRunInitRefusesToOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), config.ConfigFileName)
	if err := os.WriteFile(path, []byte("log_level = \"warn\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := RunInit(map[string]any{"config": path}); err == nil {
		t.Fatal("existing config must not be overwritten without -force")
	}

	if err := RunInit(map[string]any{"config": path, "force": true}); err != nil {
		t.Fatalf("force overwrite: %v", err)
	}
}
