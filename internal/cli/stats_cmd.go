package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/benedict2310/tally/internal/client"
	"github.com/benedict2310/tally/internal/output"
)

const barWidth = 30

func newStatsCmd() *cobra.Command {
	var outputMode string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show click totals, per-button, per-day and per-hour counts",
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

			stats, err := api.Stats(cmd.Context())
			if err != nil {
				return err
			}
			if format.Structured() {
				return output.WriteStructured(cmd.OutOrStdout(), format, stats)
			}

			w := cmd.OutOrStdout()
			if err := output.WriteTable(w, []string{"FIELD", "VALUE"}, [][]string{
				{"today", stats.Today},
				{"clicks_today", itoa(stats.Totals.Today)},
				{"clicks_all_time", itoa(stats.Totals.AllTime)},
			}); err != nil {
				return err
			}
			if _, err := w.Write([]byte("\n")); err != nil {
				return err
			}
			if err := writeButtonCounts(cmd, stats.Buttons); err != nil {
				return err
			}
			if _, err := w.Write([]byte("\n")); err != nil {
				return err
			}
			return writeDayCounts(cmd, stats.Days)
		},
	}

	markRequiresTransport(cmd)
	cmd.PersistentFlags().StringVarP(&outputMode, "output", "o", "table", output.FlagUsage)

	cmd.AddCommand(newStatsTotalsCmd(&outputMode))
	cmd.AddCommand(newStatsButtonsCmd(&outputMode))
	cmd.AddCommand(newStatsDaysCmd(&outputMode))
	cmd.AddCommand(newStatsHoursCmd(&outputMode))
	return cmd
}

func newStatsTotalsCmd(outputMode *string) *cobra.Command {
	return &cobra.Command{
		Use:   "totals",
		Short: "Show all-time and today click totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := output.ParseFormat(*outputMode)
			if err != nil {
				return err
			}
			rt, api, err := runtimeAndClientFromCommand(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			totals, err := api.Totals(cmd.Context())
			if err != nil {
				return err
			}
			if format.Structured() {
				return output.WriteStructured(cmd.OutOrStdout(), format, totals)
			}
			return output.WriteTable(cmd.OutOrStdout(), []string{"SCOPE", "COUNT"}, [][]string{
				{"today", itoa(totals.Today)},
				{"all-time", itoa(totals.AllTime)},
			})
		},
	}
}

func newStatsButtonsCmd(outputMode *string) *cobra.Command {
	return &cobra.Command{
		Use:   "buttons",
		Short: "Show all-time clicks per button",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := output.ParseFormat(*outputMode)
			if err != nil {
				return err
			}
			rt, api, err := runtimeAndClientFromCommand(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			counts, err := api.ButtonCounts(cmd.Context())
			if err != nil {
				return err
			}
			if format.Structured() {
				return output.WriteStructured(cmd.OutOrStdout(), format, counts)
			}
			return writeButtonCounts(cmd, counts.Buttons)
		},
	}
}

func newStatsDaysCmd(outputMode *string) *cobra.Command {
	var (
		lookback int
		pngPath  string
	)

	cmd := &cobra.Command{
		Use:   "days",
		Short: "Show clicks per day over the lookback window ending today",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := output.ParseFormat(*outputMode)
			if err != nil {
				return err
			}
			rt, api, err := runtimeAndClientFromCommand(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			if pngPath != "" {
				content, err := api.DaysChart(cmd.Context(), lookback)
				if err != nil {
					return err
				}
				return writeChartFile(cmd, pngPath, content)
			}
			days, err := api.Days(cmd.Context(), lookback)
			if err != nil {
				return err
			}
			if format.Structured() {
				return output.WriteStructured(cmd.OutOrStdout(), format, days)
			}
			return writeDayCounts(cmd, days.Days)
		},
	}
	cmd.Flags().IntVar(&lookback, "lookback", 0, "Number of days to include, ending today (0 uses the server default)")
	cmd.Flags().StringVar(&pngPath, "png", "", "Write a PNG bar chart to this path instead of printing counts")
	return cmd
}

func newStatsHoursCmd(outputMode *string) *cobra.Command {
	var (
		day     string
		pngPath string
	)

	cmd := &cobra.Command{
		Use:   "hours",
		Short: "Show clicks per hour of one day",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := output.ParseFormat(*outputMode)
			if err != nil {
				return err
			}
			rt, api, err := runtimeAndClientFromCommand(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			if pngPath != "" {
				content, err := api.HoursChart(cmd.Context(), day)
				if err != nil {
					return err
				}
				return writeChartFile(cmd, pngPath, content)
			}
			hours, err := api.Hours(cmd.Context(), day)
			if err != nil {
				return err
			}
			if format.Structured() {
				return output.WriteStructured(cmd.OutOrStdout(), format, hours)
			}
			return writeHourCounts(cmd, hours.Hours)
		},
	}
	cmd.Flags().StringVar(&day, "day", "", "Day as YYYY-MM-DD (default today on the server)")
	cmd.Flags().StringVar(&pngPath, "png", "", "Write a PNG bar chart to this path instead of printing counts")
	return cmd
}

func writeChartFile(cmd *cobra.Command, path string, content []byte) error {
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return fmt.Errorf("write chart %s: %w", path, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %d byte chart to %s\n", len(content), path)
	return nil
}

func writeButtonCounts(cmd *cobra.Command, counts []client.ButtonCount) error {
	peak := 0
	for _, c := range counts {
		if c.Count > peak {
			peak = c.Count
		}
	}
	rows := make([][]string, 0, len(counts))
	for _, c := range counts {
		rows = append(rows, []string{itoa(c.ButtonID), itoa(c.Count), output.Bar(c.Count, peak, barWidth)})
	}
	return output.WriteTable(cmd.OutOrStdout(), []string{"BUTTON", "COUNT", ""}, rows)
}

func writeDayCounts(cmd *cobra.Command, counts []client.DayCount) error {
	peak := 0
	for _, c := range counts {
		if c.Count > peak {
			peak = c.Count
		}
	}
	rows := make([][]string, 0, len(counts))
	for _, c := range counts {
		rows = append(rows, []string{c.Date, itoa(c.Count), output.Bar(c.Count, peak, barWidth)})
	}
	return output.WriteTable(cmd.OutOrStdout(), []string{"DATE", "COUNT", ""}, rows)
}

func writeHourCounts(cmd *cobra.Command, counts []client.HourCount) error {
	peak := 0
	for _, c := range counts {
		if c.Count > peak {
			peak = c.Count
		}
	}
	rows := make([][]string, 0, len(counts))
	for _, c := range counts {
		rows = append(rows, []string{hourLabel(c.Hour), itoa(c.Count), output.Bar(c.Count, peak, barWidth)})
	}
	return output.WriteTable(cmd.OutOrStdout(), []string{"HOUR", "COUNT", ""}, rows)
}

func hourLabel(h int) string {
	if h < 10 {
		return "0" + itoa(h) + ":00"
	}
	return itoa(h) + ":00"
}
