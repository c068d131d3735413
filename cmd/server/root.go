package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/pegut0/ClassificadorSomIA/internal/config"
)

func newRootCommand() *cobra.Command {
	var configFlag string

	rootCmd := &cobra.Command{
		Use:           serviceName,
		Short:         "Environmental sound classification service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configFlag)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path (default "+defaultConfigPath+" when present)")

	rootCmd.AddCommand(newServeCommand(&configFlag))
	rootCmd.AddCommand(newClassifyCommand(&configFlag))
	rootCmd.AddCommand(newCheckModelCommand(&configFlag))
	rootCmd.AddCommand(newPredictCommand())

	return rootCmd
}

// loadConfig loads path, or the default config file when path is empty.
// Without any file the built-in defaults are used.
func loadConfig(path string) (*config.Config, string, error) {
	if path == "" {
		if _, err := os.Stat(defaultConfigPath); errors.Is(err, fs.ErrNotExist) {
			return config.Default(), "", nil
		}
		path = defaultConfigPath
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, path, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, path, nil
}
