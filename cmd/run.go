package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"strmsync/pkg/alist"
	"strmsync/pkg/buildinfo"
	"strmsync/pkg/config"
	"strmsync/pkg/fetch"
	"strmsync/pkg/hints"
	"strmsync/pkg/hook"
	"strmsync/pkg/lockfile"
	"strmsync/pkg/metafile"
	"strmsync/pkg/mirror"
	"strmsync/pkg/plog"
	"strmsync/pkg/preflight"
)

// RunSync executes the sync run for all configured sources, or for the one
// named by the -source flag. Per-source failures are logged and collected;
// the remaining sources still run.
func RunSync(ctx context.Context, flagMap map[string]any) error {
	configPath, ok := flagMap["config"].(string)
	if !ok || configPath == "" {
		configPath = config.ConfigFileName
	}

	runConfig, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Flag values override the configuration file.
	if level, ok := flagMap["log-level"].(string); ok {
		runConfig.LogLevel = level
	}
	if metrics, ok := flagMap["metrics"].(bool); ok {
		runConfig.Metrics = metrics
	}

	if err := runConfig.Validate(); err != nil {
		return err
	}

	plog.SetLevel(plog.LevelFromString(runConfig.LogLevel))

	sources := runConfig.Sources
	if name, ok := flagMap["source"].(string); ok && name != "" {
		src, err := runConfig.Source(name)
		if err != nil {
			return err
		}
		sources = []config.SourceConfig{*src}
	}

	overwrite, _ := flagMap["overwrite"].(bool)

	var errs []error
	startTime := time.Now()
	for i := range sources {
		src := &sources[i]
		if err := runSource(ctx, src, runConfig.Metrics, overwrite); err != nil {
			if ctx.Err() != nil {
				errs = append(errs, err)
				break
			}
			plog.Error("Source sync failed", "source", src.Name, "error", err)
			errs = append(errs, fmt.Errorf("source %s: %w", src.Name, err))
			continue
		}
	}
	duration := time.Since(startTime).Round(time.Millisecond)

	if err := errors.Join(errs...); err != nil {
		return err
	}
	plog.Info(buildinfo.Name+" finished successfully.", "sources", len(sources), "duration", duration)
	return nil
}

// runSource syncs one configured source end to end: preflight, lock, pre
// hooks, the mirror run, post hooks.
func runSource(ctx context.Context, src *config.SourceConfig, metrics, overwrite bool) error {
	plog.Notice("Syncing source", "source", src.Name, "url", src.URL)

	if err := preflight.Run(src.TargetDir); err != nil {
		return fmt.Errorf("preflight failed: %w", err)
	}

	lock, err := lockfile.Acquire(src.TargetDir, buildinfo.Name)
	if err != nil {
		return err
	}
	defer lock.Release()

	executor := hook.NewExecutor(exec.CommandContext)
	if err := executor.Run(ctx, "pre-sync", src.Hooks.PreSync); err != nil && !hints.IsHint(err) {
		return fmt.Errorf("pre-sync hook failed: %w", err)
	}

	m, err := buildMirror(src, metrics, overwrite)
	if err != nil {
		return err
	}
	if err := m.Run(ctx); err != nil {
		return err
	}

	if err := metafile.Write(src.TargetDir, &metafile.MetafileContent{
		Version:      buildinfo.Version,
		SourceName:   src.Name,
		SourceDir:    src.SourceDir,
		TimestampUTC: time.Now().UTC(),
	}); err != nil {
		plog.Warn("Failed to record sync metadata", "target", src.TargetDir, "error", err)
	}

	if err := executor.Run(ctx, "post-sync", src.Hooks.PostSync); err != nil && !hints.IsHint(err) {
		return fmt.Errorf("post-sync hook failed: %w", err)
	}
	return nil
}

// buildMirror wires the listing source, the downloader and the engine for
// one configured source.
func buildMirror(src *config.SourceConfig, metrics, overwrite bool) (*mirror.Mirror, error) {
	client, err := alist.NewClient(alist.ClientOptions{
		URL:      src.URL,
		Username: src.Username,
		Password: src.Password,
		Token:    src.Token,
		Timeout:  time.Duration(src.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		return nil, err
	}

	lister, err := alist.NewSource(client, alist.SourceOptions{
		Root:        src.SourceDir,
		DirPassword: src.DirPassword,
		Wait:        time.Duration(src.WaitSeconds) * time.Second,
		Detail:      src.Detail,
		Refresh:     src.Refresh,
	})
	if err != nil {
		return nil, err
	}

	mode, err := mirror.AddressModeFromString(src.Mode)
	if err != nil {
		return nil, err
	}

	downloader := fetch.New(fetch.Options{
		UserAgent: buildinfo.Name + "/" + buildinfo.Version,
	})

	return mirror.New(mirror.Options{
		SourceDir:      src.SourceDir,
		TargetDir:      src.TargetDir,
		Mode:           mode,
		Flatten:        src.Flatten,
		Subtitle:       src.Subtitle,
		Image:          src.Image,
		Nfo:            src.Nfo,
		OtherExts:      src.OtherExts,
		Overwrite:      src.Overwrite || overwrite,
		SyncServer:     src.SyncServer,
		SyncIgnore:     src.SyncIgnore,
		ProtectedNames: []string{lockfile.LockFileName, metafile.MetaFileName},
		MaxWorkers:     src.MaxWorkers,
		MaxDownloaders: src.MaxDownloaders,
		Metrics:        metrics,
	}, lister, downloader)
}
