package main

import (
	"context"
	"time"

	"github.com/aretw0/arbor/internal/cli"
	"github.com/aretw0/arbor/pkg/runner"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run [machine]",
	Short: "Run a machine against events read from stdin",
	Long: `Starts the machine and sends it one event per input line, "TYPE [payload]",
or one JSON object per line with --json. The trace of entered and exited states,
context changes and signals is printed as the machine evolves.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := cli.RunOptions{MachinePath: machineArg(args)}
		opts.ConfigPath, _ = cmd.Flags().GetString("config")
		opts.Quiet, _ = cmd.Flags().GetBool("quiet")
		opts.Input, _ = cmd.Flags().GetString("input")
		opts.JSON, _ = cmd.Flags().GetBool("json")
		opts.Script, _ = cmd.Flags().GetString("script")
		opts.Tools, _ = cmd.Flags().GetString("tools")
		opts.LogLevel, _ = cmd.Flags().GetString("log-level")
		opts.MetricsAddr, _ = cmd.Flags().GetString("metrics-addr")
		opts.Wait, _ = cmd.Flags().GetDuration("wait")
		opts.GraphOut, _ = cmd.Flags().GetString("graph-out")

		signals := runner.NewSignalManager(context.Background())
		defer signals.Stop()
		return cli.Execute(signals.Context(), opts, cli.StdStreams())
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("input", "", "Machine input as JSON, or @file")
	runCmd.Flags().Bool("json", false, "Read and write JSON lines")
	runCmd.Flags().String("script", "", "Scripted completion provider bound as the 'complete' service")
	runCmd.Flags().String("tools", "", "Tools file whose commands are bound as the 'run_tool' service")
	runCmd.Flags().String("log-level", "", "Log level (debug, info, warn, error)")
	runCmd.Flags().String("metrics-addr", "", "Serve /metrics and /healthz on this address while running")
	runCmd.Flags().Duration("wait", 10*time.Second, "How long to wait for the machine to finish once input ends")
	runCmd.Flags().String("graph-out", "", "Write a Mermaid diagram of the run to this file")
}
