package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/victorteokw/docmap/core/demo"
	"github.com/victorteokw/docmap/core/registry"
	"github.com/victorteokw/docmap/core/schema"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the registered entity schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg := registry.New()
		if err := demo.Register(reg); err != nil {
			return err
		}
		for _, ent := range reg.All() {
			fmt.Printf("%s (collection %q)\n", ent.Name, ent.Collection)
			for _, f := range ent.Fields {
				fmt.Printf("  %-14s %-10s %s\n", f.Name, f.Type, chainSummary(f))
			}
			for _, group := range ent.Unique {
				fmt.Printf("  unique together: %s\n", strings.Join(group, ", "))
			}
			fmt.Println()
		}
		return nil
	},
}

func chainSummary(f *schema.Field) string {
	if f.Type == schema.TypeInverse {
		return fmt.Sprintf("<- %s.%s", f.Target, f.ForeignField)
	}
	kinds := make([]string, len(f.Chain))
	for i, d := range f.Chain {
		kinds[i] = string(d.Kind)
	}
	return strings.Join(kinds, ".")
}

func init() {
	rootCmd.AddCommand(schemaCmd)
}
