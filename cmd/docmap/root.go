package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "docmap",
	Short: "Schema-driven document mapper with validation, relationships, and authorization",
	Long: `Docmap maps declared entity schemas onto a document store.

Field directive chains validate and transform every write, relationships
stay consistent because one side owns the link and the other is derived,
and predicate policies decide who may do what. The HTTP surface is
generated from the schema.

Quick start:
  docmap serve      # Start the API server

Management:
  docmap schema     # Print the registered schema
  docmap validate   # Validate configuration`,
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "docmap.yaml", "config file path")
}
