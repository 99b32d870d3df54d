package main

import (
	"github.com/spf13/cobra"

	"github.com/jroosing/labnet/internal/config"
	"github.com/jroosing/labnet/internal/logging"
	"github.com/jroosing/labnet/internal/server"
)

func newServeCmd() *cobra.Command {
	var (
		debug, jsonLogs bool
		restore         string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the orchestrator and its management API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(config.ResolveConfigPath(configPath))
			if err != nil {
				return err
			}
			if debug {
				cfg.Logging.Level = "DEBUG"
			}
			if jsonLogs {
				cfg.Logging.Structured = true
				cfg.Logging.StructuredFormat = "json"
			}
			if restore != "" {
				cfg.RestoreOnStart = restore
			}

			logger := logging.Configure(logging.Config{
				Level:            cfg.Logging.Level,
				Structured:       cfg.Logging.Structured,
				StructuredFormat: cfg.Logging.StructuredFormat,
				IncludePID:       cfg.Logging.IncludePID,
				ExtraFields:      cfg.Logging.ExtraFields,
			})
			return server.NewRunner(logger, Version).Run(cfg)
		},
	}
	cmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging")
	cmd.Flags().BoolVar(&jsonLogs, "json-logs", false, "Emit JSON logs")
	cmd.Flags().StringVar(&restore, "restore", "", "Restore this save once modules are loaded (overrides restore_on_start)")
	return cmd
}
