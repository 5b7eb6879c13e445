package cli

import "github.com/spf13/cobra"

// NewRootCmd builds the tallyctl root command tree.
func NewRootCmd(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "tallyctl",
		Short:        "CLI for recording and inspecting tally button clicks",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return prepareRuntime(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.PersistentFlags().String("config", "", "Path to the tallyctl config file (default ~/.tally/config.yaml, env TALLYCTL_CONFIG)")
	cmd.PersistentFlags().String("context", "", "Context to use instead of current-context")

	cmd.AddCommand(newClickCmd())
	cmd.AddCommand(newPressesCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newButtonsCmd())
	cmd.AddCommand(newImportCmd())
	cmd.AddCommand(newAuditCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newContextCmd())
	cmd.AddCommand(newVersionCmd(version))

	markUsageErrors(cmd)
	return cmd
}

// markUsageErrors makes bad flags and wrong argument counts exit with
// ExitUsage anywhere in the tree, matching the commands' own input checks.
func markUsageErrors(cmd *cobra.Command) {
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError(err)
	})
	if validate := cmd.Args; validate != nil {
		cmd.Args = func(c *cobra.Command, args []string) error {
			return usageError(validate(c, args))
		}
	}
	for _, sub := range cmd.Commands() {
		markUsageErrors(sub)
	}
}
