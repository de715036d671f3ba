package main

import (
	"github.com/aretw0/arbor/internal/cli"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate [machine]",
	Short: "Check a machine document for consistency",
	Long: `Compiles the document against the CLI registry and reports unknown targets,
guards, actions and services, conflicting targets and other structural issues.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		return cli.Validate(cmd.Context(), cli.InspectOptions{
			MachinePath: machineArg(args),
			ConfigPath:  configPath,
		}, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
