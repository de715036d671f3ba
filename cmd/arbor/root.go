package main

import (
	"fmt"
	"os"

	"github.com/aretw0/arbor/internal/presentation/tui"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "arbor",
	Short: "Arbor runs statecharts for LLM-driven agent workflows",
	Long: `Arbor loads hierarchical and parallel state machines from YAML or JSON documents,
validates them, draws them as Mermaid diagrams and runs them against a stream of events.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if quiet, _ := cmd.Flags().GetBool("quiet"); quiet {
			return
		}
		if term := tui.Detect(os.Stderr); term.Interactive && cmd.Name() == "run" {
			tui.PrintBanner(os.Stderr, term.Profile)
		}
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
	rootCmd.PersistentFlags().StringP("config", "c", "", "Configuration file (.yaml, .yml or .toml)")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "Only print errors and the trace")
}

// machineArg returns the document argument, defaulting to the current directory.
func machineArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return "."
}
