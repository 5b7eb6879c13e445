package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/benedict2310/tally/internal/client"
)

func newImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file.json>",
		Short: "Import exported click records",
		Long: "Import exported click records. The file holds either a JSON array of records or an\n" +
			"object with a \"records\" array. Each record names its button by \"buttonId\" or by a\n" +
			"\"button\" label ending in the button number, and carries any of dateIso, date, time\n" +
			"and timestamp.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read import file %s: %w", args[0], err)
			}
			records, err := parseImportRecords(data)
			if err != nil {
				return usageError(fmt.Errorf("parse import file %s: %w", args[0], err))
			}
			if len(records) == 0 {
				return usageError(fmt.Errorf("import file %s contains no records", args[0]))
			}
			rt, api, err := runtimeAndClientFromCommand(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			res, err := api.Import(cmd.Context(), records)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d records\n", res.Imported)
			return nil
		},
	}
	markRequiresTransport(cmd)
	return cmd
}

func parseImportRecords(data []byte) ([]client.ImportRecord, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("file is empty")
	}
	if data[0] == '[' {
		var records []client.ImportRecord
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, err
		}
		return records, nil
	}
	var wrapped struct {
		Records []client.ImportRecord `json:"records"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, err
	}
	return wrapped.Records, nil
}
