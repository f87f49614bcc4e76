package main

import (
	"github.com/spf13/cobra"

	"github.com/aretw0/convograph/internal/cli"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run [graph]",
	Short: "Run the utterance loop in the terminal",
	Long: `Reads utterances from stdin, one per line, and reports each match.

Commands: :reset clears the session, :status prints progress, :quit exits.
With --json, input lines may be plain text, a JSON string or {"text": "..."},
and every result is printed as one JSON object per line.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cli.Execute(cmd.Context(), opts)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolVar(&opts.Headless, "headless", false, "Run in headless mode (no banner, no initial status)")
	runCmd.Flags().BoolVar(&opts.JSON, "json", false, "Run in JSON mode (NDJSON input/output)")
	runCmd.Flags().BoolVarP(&opts.Watch, "watch", "w", false, "Reload the graph and start over when the document changes")
	runCmd.Flags().BoolVar(&opts.ExitOnComplete, "exit-on-complete", false, "Stop once the terminal node is visited")
	runCmd.Flags().StringVar(&opts.SessionID, "session", "", "Session id reported in events")
}
