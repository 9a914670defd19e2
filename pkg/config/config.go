// Package config loads, validates and generates the TOML configuration
// file. Unknown keys are rejected at load time so typos surface as errors
// instead of silently falling back to defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"

	"strmsync/pkg/buildinfo"
	"strmsync/pkg/mirror"
	"strmsync/pkg/plog"
	"strmsync/pkg/util"
)

// ConfigFileName is the default name of the configuration file.
const ConfigFileName = "strmsync.config.toml"

type HooksConfig struct {
	// PreSync is a list of shell commands to execute before a source's sync begins.
	// SECURITY: These commands are executed as provided. Ensure they are from a trusted source.
	PreSync []string `toml:"pre_sync"`
	// PostSync is a list of shell commands to execute after a source's sync finishes.
	// SECURITY: These commands are executed as provided. Ensure they are from a trusted source.
	PostSync []string `toml:"post_sync"`
}

// SourceConfig describes one remote source and its local target.
type SourceConfig struct {
	// Name identifies the source in logs and on the command line.
	Name string `toml:"name"`

	// URL is the listing server base, e.g. "https://alist.example.com".
	URL      string `toml:"url"`
	Username string `toml:"username"`
	Password string `toml:"password"`
	// Token is a pre-issued API token; it takes precedence over
	// username/password when set.
	Token string `toml:"token"`
	// DirPassword unlocks password-protected remote directories.
	DirPassword string `toml:"dir_password"`

	SourceDir string `toml:"source_dir"`
	TargetDir string `toml:"target_dir"`

	// Mode selects the pointer-file content: "url", "raw" or "path".
	Mode string `toml:"mode"`
	// Detail resolves every file's direct upstream link. Required for
	// "raw" mode to be meaningful.
	Detail bool `toml:"detail"`
	// Refresh bypasses the server's listing cache.
	Refresh bool `toml:"refresh"`

	Flatten   bool     `toml:"flatten"`
	Subtitle  bool     `toml:"subtitle"`
	Image     bool     `toml:"image"`
	Nfo       bool     `toml:"nfo"`
	OtherExts []string `toml:"other_exts"`
	Overwrite bool     `toml:"overwrite"`

	SyncServer bool   `toml:"sync_server"`
	SyncIgnore string `toml:"sync_ignore"`

	MaxWorkers     int `toml:"max_workers"`
	MaxDownloaders int `toml:"max_downloaders"`
	// WaitSeconds is the pause between listing API requests.
	WaitSeconds int `toml:"wait_seconds"`
	// TimeoutSeconds bounds each listing API request.
	TimeoutSeconds int `toml:"timeout_seconds"`

	Hooks HooksConfig `toml:"hooks"`
}

type Config struct {
	Version  string `toml:"version"`
	LogLevel string `toml:"log_level"`
	Metrics  bool   `toml:"metrics"`

	Sources []SourceConfig `toml:"sources"`
}

// NewDefault returns a Config with sensible defaults and one example
// source for init to serialize.
func NewDefault() Config {
	return Config{
		Version:  buildinfo.Version,
		LogLevel: "info",
		Metrics:  true,
		Sources: []SourceConfig{{
			Name:           "example",
			URL:            "", // Intentionally empty to force user configuration.
			SourceDir:      "/",
			TargetDir:      "", // Intentionally empty to force user configuration.
			Mode:           "url",
			Subtitle:       false,
			Image:          false,
			Nfo:            false,
			OtherExts:      []string{},
			MaxWorkers:     50,
			MaxDownloaders: 5,
			WaitSeconds:    0,
			TimeoutSeconds: 30,
			Hooks: HooksConfig{
				PreSync:  []string{},
				PostSync: []string{},
			},
		}},
	}
}

// applyDefaults fills zero values a user may legitimately omit.
func (s *SourceConfig) applyDefaults() {
	if s.SourceDir == "" {
		s.SourceDir = "/"
	}
	if s.Mode == "" {
		s.Mode = "url"
	}
	if s.MaxWorkers == 0 {
		s.MaxWorkers = 50
	}
	if s.MaxDownloaders == 0 {
		s.MaxDownloaders = 5
	}
	if s.TimeoutSeconds == 0 {
		s.TimeoutSeconds = 30
	}
	s.OtherExts = util.MergeAndDeduplicate(s.OtherExts)
}

// Load reads and strictly decodes the configuration at path.
func Load(path string) (Config, error) {
	expanded, err := util.ExpandPath(path)
	if err != nil {
		return Config{}, fmt.Errorf("could not expand config path: %w", err)
	}

	plog.Info("Loading configuration", "path", expanded)

	config := Config{LogLevel: "info", Metrics: true}
	md, err := toml.DecodeFile(expanded, &config)
	if err != nil {
		return Config{}, fmt.Errorf("error parsing config file %s: %w", expanded, err)
	}

	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, fmt.Errorf("unknown options in config file %s: %s", expanded, strings.Join(keys, ", "))
	}

	for i := range config.Sources {
		config.Sources[i].applyDefaults()
	}
	if config.Version != buildinfo.Version {
		config.Version = buildinfo.Version
	}
	return config, nil
}

// Generate writes configToGenerate to path as formatted TOML, overwriting
// any existing file.
func Generate(configToGenerate Config, path string) error {
	expanded, err := util.ExpandPath(path)
	if err != nil {
		return fmt.Errorf("could not expand config path: %w", err)
	}

	file, err := os.Create(expanded)
	if err != nil {
		return fmt.Errorf("failed to create config file %s: %w", expanded, err)
	}
	defer file.Close()

	if err := toml.NewEncoder(file).Encode(configToGenerate); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	plog.Info("Successfully saved config file", "path", expanded)
	return nil
}

// Validate checks the configuration for logical errors and inconsistencies.
func (c *Config) Validate() error {
	if len(c.Sources) == 0 {
		return fmt.Errorf("at least one source must be configured")
	}

	seen := make(map[string]struct{}, len(c.Sources))
	for i := range c.Sources {
		s := &c.Sources[i]
		label := s.Name
		if label == "" {
			label = fmt.Sprintf("#%d", i+1)
		}

		if s.Name == "" {
			return fmt.Errorf("source %s: name cannot be empty", label)
		}
		if _, dup := seen[s.Name]; dup {
			return fmt.Errorf("duplicate source name %q", s.Name)
		}
		seen[s.Name] = struct{}{}

		if s.URL == "" {
			return fmt.Errorf("source %s: url cannot be empty", label)
		}
		if s.TargetDir == "" {
			return fmt.Errorf("source %s: target_dir cannot be empty", label)
		}
		if !strings.HasPrefix(s.SourceDir, "/") {
			return fmt.Errorf("source %s: source_dir must be absolute", label)
		}
		if _, err := mirror.AddressModeFromString(s.Mode); err != nil {
			return fmt.Errorf("source %s: %w", label, err)
		}
		if s.MaxWorkers < 1 {
			return fmt.Errorf("source %s: max_workers must be at least 1", label)
		}
		if s.MaxDownloaders < 1 {
			return fmt.Errorf("source %s: max_downloaders must be at least 1", label)
		}
		if s.MaxDownloaders > s.MaxWorkers {
			return fmt.Errorf("source %s: max_downloaders (%d) cannot exceed max_workers (%d)", label, s.MaxDownloaders, s.MaxWorkers)
		}
		if s.WaitSeconds < 0 {
			return fmt.Errorf("source %s: wait_seconds cannot be negative", label)
		}
		if s.TimeoutSeconds < 1 {
			return fmt.Errorf("source %s: timeout_seconds must be at least 1", label)
		}
		if s.SyncIgnore != "" {
			if _, err := regexp.Compile(s.SyncIgnore); err != nil {
				return fmt.Errorf("source %s: invalid sync_ignore pattern: %w", label, err)
			}
		}

		expanded, err := util.ExpandPath(s.TargetDir)
		if err != nil {
			return fmt.Errorf("source %s: could not expand target_dir: %w", label, err)
		}
		s.TargetDir = filepath.Clean(expanded)
	}

	return nil
}

// Source returns the source with the given name.
func (c *Config) Source(name string) (*SourceConfig, error) {
	for i := range c.Sources {
		if c.Sources[i].Name == name {
			return &c.Sources[i], nil
		}
	}
	return nil, fmt.Errorf("no source named %q is configured", name)
}
