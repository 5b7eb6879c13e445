package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newVersionCmd(version string) *cobra.Command {
	if version == "" {
		version = "dev"
	}
	var remote bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print tallyctl version",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !remote {
				fmt.Fprintln(cmd.OutOrStdout(), version)
				return nil
			}
			if err := prepareRuntimeForRemote(cmd); err != nil {
				return err
			}
			rt, api, err := runtimeAndClientFromCommand(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			server, err := api.Version(cmd.Context())
			if err != nil {
				return err
			}
			serverVersion := server.Version
			if server.GoVersion != "" {
				serverVersion += " (" + server.GoVersion + ")"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "tallyctl %s\ntallyd %s\n", version, serverVersion)
			return nil
		},
	}
	cmd.Flags().BoolVar(&remote, "remote", false, "Also print the tallyd version of the active context")
	return cmd
}
