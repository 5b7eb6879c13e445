package cli

import (
	"github.com/spf13/cobra"

	"github.com/benedict2310/tally/internal/client"
	"github.com/benedict2310/tally/internal/output"
)

func newAuditCmd() *cobra.Command {
	var (
		outputMode string
		button     int
		operation  string
		limit      int
		offset     int
	)

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show label, icon and import changes, newest first",
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

			res, err := api.Audit(cmd.Context(), client.AuditQuery{ButtonID: button, Operation: operation, Limit: limit, Offset: offset})
			if err != nil {
				return err
			}
			if format.Structured() {
				return output.WriteStructured(cmd.OutOrStdout(), format, res)
			}
			rows := make([][]string, 0, len(res.Entries))
			for _, e := range res.Entries {
				buttonCol := "-"
				if e.ButtonID != nil {
					buttonCol = itoa(*e.ButtonID)
				}
				rows = append(rows, []string{e.Timestamp, e.Actor, e.Operation, buttonCol, e.Summary})
			}
			return output.WriteTable(cmd.OutOrStdout(), []string{"TIMESTAMP", "ACTOR", "OPERATION", "BUTTON", "SUMMARY"}, rows)
		},
	}

	markRequiresTransport(cmd)
	cmd.Flags().StringVarP(&outputMode, "output", "o", "table", output.FlagUsage)
	cmd.Flags().IntVar(&button, "button", 0, "Only entries for this button")
	cmd.Flags().StringVar(&operation, "operation", "", "Only entries of this operation or family (button, button.icon, button.label, clicks.import)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum entries to return (0 uses the server default)")
	cmd.Flags().IntVar(&offset, "offset", 0, "Entries to skip")
	return cmd
}
