package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/victorteokw/docmap/bootstrap"
	"github.com/victorteokw/docmap/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			cfg    *config.Config
			holder *config.Holder
			err    error
		)

		if _, statErr := os.Stat(cfgFile); statErr == nil {
			// File-backed config gets hot reload.
			probe, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			logger := bootstrap.NewLogger(probe.Logging)
			holder, err = config.NewHolder(cfgFile, logger)
			if err != nil {
				return err
			}
			cfg = holder.Get()
		} else {
			cfg, err = config.LoadFromEnv()
			if err != nil {
				return err
			}
		}

		logger := bootstrap.NewLogger(cfg.Logging)
		app, err := bootstrap.New(cfg, holder, logger)
		if err != nil {
			return err
		}
		defer app.Close()

		if username := os.Getenv("DOCMAP_ADMIN_USERNAME"); username != "" {
			password := os.Getenv("DOCMAP_ADMIN_PASSWORD")
			if password == "" {
				return fmt.Errorf("DOCMAP_ADMIN_PASSWORD is required with DOCMAP_ADMIN_USERNAME")
			}
			if err := app.SeedAdmin(cmd.Context(), username, password); err != nil {
				return err
			}
		}

		return app.Serve(context.Background())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
