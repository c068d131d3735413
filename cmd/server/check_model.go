package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newCheckModelCommand(configFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:   "check-model",
		Short: "Verify the model is reachable and matches the configured classes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(*configFlag)
			if err != nil {
				return err
			}

			cfg.Logging.Output = "stderr"
			logger := initLogger(cfg.Logging)

			engine, model, err := buildEngine(cfg, logger, nil)
			if err != nil {
				return err
			}
			defer model.Close()

			if err := engine.Verify(cmd.Context()); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "model %q at %s is available with %d classes: %s\n",
				cfg.Model.Name, cfg.Model.Endpoint, engine.Classes().Len(),
				strings.Join(engine.Classes().Labels(), ", "))
			return nil
		},
	}
}
