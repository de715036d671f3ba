package main

import (
	"github.com/aretw0/arbor/internal/cli"
	"github.com/spf13/cobra"
)

// graphCmd represents the graph command
var graphCmd = &cobra.Command{
	Use:   "graph [machine]",
	Short: "Export the statechart visualization",
	Long:  `Compiles the document and outputs a Mermaid diagram (stateDiagram-v2) of its states and transitions.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := cli.InspectOptions{MachinePath: machineArg(args)}
		opts.ConfigPath, _ = cmd.Flags().GetString("config")
		opts.Active, _ = cmd.Flags().GetStringSlice("active")
		opts.Visited, _ = cmd.Flags().GetStringSlice("visited")
		return cli.Graph(cmd.Context(), opts, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)

	graphCmd.Flags().StringSlice("active", nil, "State paths to highlight as current")
	graphCmd.Flags().StringSlice("visited", nil, "State paths to highlight as visited")
}
