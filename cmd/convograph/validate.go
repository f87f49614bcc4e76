package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/aretw0/convograph/internal/cli"
)

var validateCmd = &cobra.Command{
	Use:   "validate [graph]",
	Short: "Check the graph for consistency",
	Long: `Reports structural problems, dropped edges, empty stages, a missing
terminal node and nodes that no visiting order can make available.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if opts.Config.GraphPath == "" {
			return errors.New("a graph document is required")
		}
		jsonOut, _ := cmd.Flags().GetBool("json")
		return cli.Validate(opts.Config.GraphPath, jsonOut, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().Bool("json", false, "Print the report as JSON")
}
