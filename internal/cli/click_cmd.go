package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/benedict2310/tally/internal/output"
)

func newClickCmd() *cobra.Command {
	var outputMode string

	cmd := &cobra.Command{
		Use:   "click <button>",
		Short: "Record one press of a button",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			buttonID, err := parseButtonArg(args[0])
			if err != nil {
				return err
			}
			format, err := output.ParseFormat(outputMode)
			if err != nil {
				return err
			}
			rt, api, err := runtimeAndClientFromCommand(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			res, err := api.RecordClick(cmd.Context(), buttonID)
			if err != nil {
				return err
			}
			if format.Structured() {
				return output.WriteStructured(cmd.OutOrStdout(), format, res)
			}
			rows := [][]string{
				{"button", itoa(res.ButtonID)},
				{"label", res.ButtonLabel},
				{"seq", itoa(res.Seq)},
				{"date", res.Date},
				{"time", res.Time},
			}
			return output.WriteTable(cmd.OutOrStdout(), []string{"FIELD", "VALUE"}, rows)
		},
	}

	markRequiresTransport(cmd)
	cmd.Flags().StringVarP(&outputMode, "output", "o", "table", output.FlagUsage)
	return cmd
}

func newPressesCmd() *cobra.Command {
	var (
		outputMode string
		day        string
		last       bool
	)

	cmd := &cobra.Command{
		Use:   "presses",
		Short: "List the presses of a day, or show the latest press",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if last && day != "" {
				return usageError(fmt.Errorf("--last and --day cannot be combined"))
			}
			format, err := output.ParseFormat(outputMode)
			if err != nil {
				return err
			}
			rt, api, err := runtimeAndClientFromCommand(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			if last {
				p, err := api.LastPress(cmd.Context())
				if err != nil {
					return err
				}
				if format.Structured() {
					return output.WriteStructured(cmd.OutOrStdout(), format, p)
				}
				rows := [][]string{
					{"button", itoa(p.ButtonID)},
					{"label", p.ButtonLabel},
					{"seq", itoa(p.Seq)},
					{"date", p.Date},
					{"time", p.Time},
				}
				return output.WriteTable(cmd.OutOrStdout(), []string{"FIELD", "VALUE"}, rows)
			}

			res, err := api.Presses(cmd.Context(), day)
			if err != nil {
				return err
			}
			if format.Structured() {
				return output.WriteStructured(cmd.OutOrStdout(), format, res)
			}
			if len(res.Presses) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No presses on %s.\n", res.Date)
				return nil
			}
			rows := make([][]string, 0, len(res.Presses))
			for _, p := range res.Presses {
				rows = append(rows, []string{p.Time, itoa(p.ButtonID), itoa(p.Seq), p.ButtonLabel})
			}
			return output.WriteTable(cmd.OutOrStdout(), []string{"TIME", "BUTTON", "SEQ", "LABEL"}, rows)
		},
	}

	markRequiresTransport(cmd)
	cmd.Flags().StringVar(&day, "day", "", "Day to list (YYYY-MM-DD, default server today)")
	cmd.Flags().BoolVar(&last, "last", false, "Show only the most recent press")
	cmd.Flags().StringVarP(&outputMode, "output", "o", "table", output.FlagUsage)
	return cmd
}
