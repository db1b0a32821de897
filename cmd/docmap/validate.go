package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/victorteokw/docmap/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		fmt.Printf("%s is valid\n", cfgFile)
		fmt.Printf("  server:  %s:%d\n", cfg.Server.Host, cfg.Server.Port)
		fmt.Printf("  store:   %s (%s)\n", cfg.Store.Driver, cfg.Store.DSN)
		fmt.Printf("  uploads: %s -> %s\n", cfg.Upload.Dir, cfg.Upload.BaseURL)
		fmt.Printf("  metrics: %v\n", cfg.Metrics.Enabled)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
