package main

import (
	"github.com/spf13/cobra"

	"github.com/aretw0/convograph/internal/cli"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Serve the configured similarity model over stdio",
	Long: `Answers init and similarity requests, one JSON object per line, so that
another convograph process can use this one with --oracle process.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cli.RunWorker(cmd.Context(), opts)
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
