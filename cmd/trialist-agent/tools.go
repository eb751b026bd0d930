package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"trialist-agent/pkg/registry"

	"github.com/spf13/cobra"
)

func toolsCmd() *cobra.Command {
	var catalogPath string

	load := func() (*registry.Catalog, error) {
		if catalogPath == "" {
			return registry.DefaultCatalog(), nil
		}
		return registry.LoadCatalog(catalogPath)
	}

	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Inspect and maintain the tool catalog",
	}
	cmd.PersistentFlags().StringVar(&catalogPath, "path", "", "Catalog file; defaults to the built-in catalog")

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the tools offered to the dialogue model",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := load()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tCATEGORY\tVERSION\tTIMEOUT")
			for _, t := range c.Tools {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", t.Name, t.Category, t.Version, t.Timeout)
			}
			return w.Flush()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "functions",
		Short: "Print the function-calling definitions as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := load()
			if err != nil {
				return err
			}
			fns := make([]registry.FunctionSpec, 0, len(c.Tools))
			for _, t := range c.Tools {
				fns = append(fns, t.Function())
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(fns)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate the catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := load()
			if err != nil {
				return err
			}
			if err := c.Validate(); err != nil {
				return fmt.Errorf("catalog validation failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Catalog validation passed. Found %d tools.\n", len(c.Tools))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:     "update <tool> <field> <value>",
		Short:   "Update one field of a tool and write the catalog back",
		Example: "  trialist-agent tools update --path configs/tools.json search_knowledge timeout 20s",
		Args:    cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			if catalogPath == "" {
				return fmt.Errorf("--path is required for update")
			}
			c, err := load()
			if err != nil {
				return err
			}
			if err := c.Update(args[0], args[1], args[2]); err != nil {
				return err
			}
			if err := c.Validate(); err != nil {
				return err
			}
			if err := registry.SaveCatalog(c, catalogPath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated %s, field %s to %s\n", args[0], args[1], args[2])
			return nil
		},
	})
	return cmd
}
