package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format selects how tallyctl prints a command result. Table output is
// command specific; the other formats encode the API payload as is.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

var formats = []Format{FormatTable, FormatJSON, FormatYAML}

// FlagUsage is the help text of every -o/--output flag.
var FlagUsage = "Output format (" + formatList("|") + ")"

func formatList(sep string) string {
	names := make([]string, len(formats))
	for i, f := range formats {
		names[i] = string(f)
	}
	return strings.Join(names, sep)
}

func ParseFormat(v string) (Format, error) {
	want := Format(strings.ToLower(strings.TrimSpace(v)))
	if want == "" {
		return FormatTable, nil
	}
	for _, f := range formats {
		if f == want {
			return f, nil
		}
	}
	return "", fmt.Errorf("invalid output format %q (expected %s)", v, formatList(", "))
}

// Structured reports whether f is printed by WriteStructured.
func (f Format) Structured() bool {
	return f == FormatJSON || f == FormatYAML
}

func WriteStructured(w io.Writer, format Format, payload any) error {
	var (
		data []byte
		err  error
	)
	switch format {
	case FormatJSON:
		data, err = json.MarshalIndent(payload, "", "  ")
	case FormatYAML:
		data, err = yaml.Marshal(payload)
	default:
		return fmt.Errorf("format %q is not a structured output format", format)
	}
	if err != nil {
		return fmt.Errorf("encode %s output: %w", format, err)
	}
	if len(data) == 0 || data[len(data)-1] != '\n' {
		data = append(data, '\n')
	}
	_, err = w.Write(data)
	return err
}
