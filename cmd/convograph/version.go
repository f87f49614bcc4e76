package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aretw0/convograph"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of convograph",
	// No configuration needed.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "convograph version %s\n", strings.TrimSpace(convograph.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
