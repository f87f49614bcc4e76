package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/convograph/internal/cli"
	"github.com/aretw0/convograph/internal/config"
)

var opts cli.Options

var rootCmd = &cobra.Command{
	Use:   "convograph",
	Short: "Convograph tracks a speaker's progress through a staged dialogue graph",
	Long: `Convograph matches utterances against the nodes of a staged dialogue graph
using a similarity model, and reports visited nodes, score and completion.

Configuration is read from CONVOGRAPH_* environment variables; flags override it.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if err := applyFlags(cmd, cfg, args); err != nil {
			return err
		}
		opts.Config = cfg
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	flags := rootCmd.PersistentFlags()
	flags.StringP("graph", "g", "", "Graph document (JSON or YAML); also CONVOGRAPH_GRAPH")
	flags.String("log-level", "", "Log level: debug, info, warn, error")
	flags.BoolVar(&opts.Debug, "debug", false, "Verbose logging to stderr")
	flags.String("oracle", "", "Oracle provider: lexical, ollama, genai, process")
	flags.String("worker", "", "Worker command line or definition file (process oracle)")
	flags.Duration("oracle-timeout", 0, "Per-utterance oracle timeout")
	flags.String("policy", "", "Scoring policy: difficulty or percentage")
	flags.Float64("threshold", 0, "Confidence threshold a match must exceed")
}

// applyFlags overrides the environment with explicitly set flags and validates
// the result. A positional argument is taken as the graph path.
func applyFlags(cmd *cobra.Command, cfg *config.Config, args []string) error {
	flags := cmd.Flags()
	if flags.Changed("graph") {
		cfg.GraphPath, _ = flags.GetString("graph")
	} else if len(args) > 0 {
		cfg.GraphPath = args[0]
	}
	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}
	if flags.Changed("oracle") {
		cfg.Oracle.Provider, _ = flags.GetString("oracle")
	}
	if flags.Changed("worker") {
		cfg.Oracle.WorkerCommand, _ = flags.GetString("worker")
	}
	if flags.Changed("oracle-timeout") {
		cfg.Oracle.Timeout, _ = flags.GetDuration("oracle-timeout")
	}
	if flags.Changed("policy") {
		cfg.Scoring.Policy, _ = flags.GetString("policy")
	}
	if flags.Changed("threshold") {
		cfg.Scoring.Threshold, _ = flags.GetFloat64("threshold")
	}
	if flags.Lookup("port") != nil && flags.Changed("port") {
		cfg.HTTP.Port, _ = flags.GetInt("port")
	}
	if flags.Lookup("redis") != nil && flags.Changed("redis") {
		cfg.Redis.Addr, _ = flags.GetString("redis")
	}
	return cfg.Validate()
}
