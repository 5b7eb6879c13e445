package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/benedict2310/tally/internal/names"
	"github.com/benedict2310/tally/internal/output"
)

func newButtonsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "buttons",
		Aliases: []string{"button"},
		Short:   "Inspect and configure buttons",
	}
	markRequiresTransport(cmd)

	cmd.AddCommand(newButtonsListCmd())
	cmd.AddCommand(newButtonsSetLabelCmd())
	cmd.AddCommand(newButtonsSetIconCmd())
	cmd.AddCommand(newButtonsGetIconCmd())
	cmd.AddCommand(newButtonsClearIconCmd())
	return cmd
}

func newButtonsListCmd() *cobra.Command {
	var outputMode string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List configured buttons",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := output.ParseFormat(outputMode)
			if err != nil {
				return err
			}
			rt, api, err := runtimeAndClientFromCommand(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			buttons, err := api.ListButtons(cmd.Context())
			if err != nil {
				return err
			}
			if format.Structured() {
				return output.WriteStructured(cmd.OutOrStdout(), format, buttons)
			}
			rows := make([][]string, 0, len(buttons.Buttons))
			for _, b := range buttons.Buttons {
				enabled := "no"
				if b.Enabled {
					enabled = "yes"
				}
				rows = append(rows, []string{itoa(b.ButtonID), b.Label, enabled, output.OrNone(b.IconRef), b.UpdatedAt})
			}
			return output.WriteTable(cmd.OutOrStdout(), []string{"BUTTON", "LABEL", "ENABLED", "ICON", "UPDATED"}, rows)
		},
	}
	cmd.Flags().StringVarP(&outputMode, "output", "o", "table", output.FlagUsage)
	return cmd
}

func newButtonsSetLabelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-label <button> <label>",
		Short: "Change the display label of a button",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			buttonID, err := parseButtonArg(args[0])
			if err != nil {
				return err
			}
			label := strings.TrimSpace(args[1])
			if err := names.ValidateLabel(label); err != nil {
				return usageError(err)
			}
			rt, api, err := runtimeAndClientFromCommand(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			b, err := api.SetButtonLabel(cmd.Context(), buttonID, label)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "button %d label set to %q\n", b.ButtonID, b.Label)
			return nil
		},
	}
}

func newButtonsSetIconCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-icon <button> <image-file>",
		Short: "Upload an icon image for a button",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			buttonID, err := parseButtonArg(args[0])
			if err != nil {
				return err
			}
			content, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("read icon file %s: %w", args[1], err)
			}
			rt, api, err := runtimeAndClientFromCommand(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			b, err := api.UploadIcon(cmd.Context(), buttonID, content)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "button %d icon set to %s\n", b.ButtonID, output.OrNone(b.IconRef))
			return nil
		},
	}
}

func newButtonsGetIconCmd() *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "get-icon <button>",
		Short: "Download the icon image of a button",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			buttonID, err := parseButtonArg(args[0])
			if err != nil {
				return err
			}
			if strings.TrimSpace(outPath) == "" {
				return usageError(fmt.Errorf("required flag(s) \"file\" not set"))
			}
			rt, api, err := runtimeAndClientFromCommand(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			content, contentType, err := api.DownloadIcon(cmd.Context(), buttonID)
			if err != nil {
				return err
			}
			if err := os.WriteFile(outPath, content, 0o644); err != nil {
				return fmt.Errorf("write icon file %s: %w", outPath, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d bytes (%s) to %s\n", len(content), contentType, outPath)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outPath, "file", "f", "", "Destination path for the icon image")
	return cmd
}

func newButtonsClearIconCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear-icon <button>",
		Short: "Remove the icon of a button",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			buttonID, err := parseButtonArg(args[0])
			if err != nil {
				return err
			}
			rt, api, err := runtimeAndClientFromCommand(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := api.DeleteIcon(cmd.Context(), buttonID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "button %d icon cleared\n", buttonID)
			return nil
		},
	}
}
