package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/aretw0/convograph/internal/cli"
)

var graphCmd = &cobra.Command{
	Use:   "graph [graph]",
	Short: "Print the graph as a Mermaid flowchart",
	RunE: func(cmd *cobra.Command, args []string) error {
		if opts.Config.GraphPath == "" {
			return errors.New("a graph document is required")
		}
		format, _ := cmd.Flags().GetString("format")
		return cli.PrintGraph(opts.Config.GraphPath, format, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().String("format", "mermaid", "Output format: mermaid or json")
}
