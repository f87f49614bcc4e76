package main

import (
	"github.com/spf13/cobra"

	"github.com/aretw0/convograph/internal/cli"
)

var serveCmd = &cobra.Command{
	Use:   "serve [graph]",
	Short: "Start the HTTP server",
	Long: `Serves sessions over REST, with state diffs streamed over SSE and
prometheus metrics on /metrics. Sessions are kept in memory unless a redis
address is configured.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cli.Serve(cmd.Context(), opts)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntP("port", "p", 8080, "Port to listen on")
	serveCmd.Flags().String("redis", "", "Redis address for shared sessions (host:port)")
}
