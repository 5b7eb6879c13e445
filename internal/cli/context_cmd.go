package cli

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/benedict2310/tally/internal/config"
)

const tokenBytes = 32

func newContextCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "context",
		Short: "Manage tallyd contexts",
	}

	cmd.AddCommand(newContextSetCmd())
	cmd.AddCommand(newContextDeleteCmd())
	cmd.AddCommand(newContextTokenCmd())
	return cmd
}

func contextIndex(cfg config.Config, name string) int {
	return slices.IndexFunc(cfg.Contexts, func(c config.Context) bool {
		return strings.TrimSpace(c.Name) == name
	})
}

func contextNameArg(arg string) (string, error) {
	name := strings.TrimSpace(arg)
	if name == "" {
		return "", usageError(fmt.Errorf("context name is required"))
	}
	return name, nil
}

func newContextSetCmd() *cobra.Command {
	var (
		server string
		token  string
		port   int
		use    bool
	)

	cmd := &cobra.Command{
		Use:   "set <name>",
		Short: "Create or update a context",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := runtimeFromCommand(cmd)
			if err != nil {
				return err
			}
			name, err := contextNameArg(args[0])
			if err != nil {
				return err
			}

			index := contextIndex(rt.Config, name)
			if index < 0 {
				// A new context needs at least a server to be usable.
				if !cmd.Flags().Changed("server") {
					if _, err := config.ResolveContext(rt.Config, name); err != nil {
						return err
					}
				}
				rt.Config.Contexts = append(rt.Config.Contexts, config.Context{Name: name})
				index = len(rt.Config.Contexts) - 1
			}

			entry := &rt.Config.Contexts[index]
			flags := cmd.Flags()
			if flags.Changed("server") {
				entry.Server = strings.TrimSpace(server)
			}
			if flags.Changed("port") {
				entry.Port = port
			}
			if flags.Changed("token") {
				entry.Token = strings.TrimSpace(token)
			}
			if use {
				rt.Config.CurrentContext = name
			}
			if !flags.Changed("server") && !flags.Changed("port") && !flags.Changed("token") && !use {
				return usageError(fmt.Errorf("at least one of --server, --port, --token or --use must be set"))
			}

			if err := rt.Config.Validate(); err != nil {
				return usageError(err)
			}
			if err := config.Save(rt.ConfigPath, rt.Config); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated context %q\n", name)
			if use {
				fmt.Fprintf(cmd.OutOrStdout(), "Switched to context %q\n", name)
			}
			return nil
		},
	}
	markRequiresConfig(cmd)
	cmd.Flags().StringVar(&server, "server", "", "tallyd URL (http://host:port, https://host or ssh://user@host)")
	cmd.Flags().IntVar(&port, "port", 0, "tallyd port on the remote loopback for ssh servers (0 uses default)")
	cmd.Flags().StringVar(&token, "token", "", "API bearer token")
	cmd.Flags().BoolVar(&use, "use", false, "Also make this the current context")
	return cmd
}

func newContextDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <name>",
		Short: "Remove a context",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := runtimeFromCommand(cmd)
			if err != nil {
				return err
			}
			name, err := contextNameArg(args[0])
			if err != nil {
				return err
			}
			index := contextIndex(rt.Config, name)
			if index < 0 {
				_, err := config.ResolveContext(rt.Config, name)
				return err
			}
			rt.Config.Contexts = slices.Delete(rt.Config.Contexts, index, index+1)
			wasCurrent := strings.TrimSpace(rt.Config.CurrentContext) == name
			if wasCurrent {
				rt.Config.CurrentContext = ""
			}
			if err := config.Save(rt.ConfigPath, rt.Config); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted context %q\n", name)
			if wasCurrent {
				fmt.Fprintln(cmd.ErrOrStderr(), "current-context is now unset; pick one with: tallyctl config use-context <name>")
			}
			return nil
		},
	}
	markRequiresConfig(cmd)
	return cmd
}

func newContextTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Context token utilities",
	}
	cmd.AddCommand(newContextTokenGenerateCmd())
	return cmd
}

// newContextTokenGenerateCmd prints a fresh token. With --set it is stored in
// that context, and the tallyd setting that must carry the same value is
// printed on stderr.
func newContextTokenGenerateCmd() *cobra.Command {
	var (
		setContext string
		readOnly   bool
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a random API token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			serverSetting := "api.token (or TALLYD_API_TOKEN)"
			if readOnly {
				serverSetting = "api.readToken (or TALLYD_API_READ_TOKEN)"
			}

			name := strings.TrimSpace(setContext)
			var rt *commandRuntime
			index := -1
			if name != "" {
				if err := prepareRuntimeForConfig(cmd); err != nil {
					return err
				}
				var err error
				if rt, err = runtimeFromCommand(cmd); err != nil {
					return err
				}
				if index = contextIndex(rt.Config, name); index < 0 {
					_, err := config.ResolveContext(rt.Config, name)
					return err
				}
			}

			token, err := generateTokenHex(tokenBytes)
			if err != nil {
				return err
			}
			if rt == nil {
				fmt.Fprintln(cmd.OutOrStdout(), token)
				fmt.Fprintf(cmd.ErrOrStderr(), "set it on tallyd as %s and store it with: tallyctl context set <name> --token <value>\n", serverSetting)
				return nil
			}

			rt.Config.Contexts[index].Token = token
			if err := config.Save(rt.ConfigPath, rt.Config); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "stored in context %q; set the same value on tallyd as %s\n", name, serverSetting)
			return nil
		},
	}
	cmd.Flags().StringVar(&setContext, "set", "", "Store the token in this context")
	cmd.Flags().BoolVar(&readOnly, "read", false, "Token is meant for tallyd's read-only api.readToken")
	return cmd
}

func generateTokenHex(size int) (string, error) {
	if size <= 0 {
		return "", fmt.Errorf("token size must be greater than zero")
	}
	raw := make([]byte, size)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(raw), nil
}
