package cmd

import (
	"fmt"
	"os"

	"strmsync/pkg/config"
	"strmsync/pkg/plog"
	"strmsync/pkg/util"
)

// RunInit generates a default configuration file. An existing file is only
// replaced with -force.
func RunInit(flagMap map[string]any) error {
	configPath, ok := flagMap["config"].(string)
	if !ok || configPath == "" {
		configPath = config.ConfigFileName
	}
	force, _ := flagMap["force"].(bool)

	expanded, err := util.ExpandPath(configPath)
	if err != nil {
		return fmt.Errorf("could not expand config path: %w", err)
	}

	if _, err := os.Stat(expanded); err == nil && !force {
		return fmt.Errorf("config file %s already exists, use -force to overwrite", expanded)
	}

	if err := config.Generate(config.NewDefault(), expanded); err != nil {
		return err
	}
	plog.Info("Edit the generated file and fill in url and target_dir for each source", "path", expanded)
	return nil
}
