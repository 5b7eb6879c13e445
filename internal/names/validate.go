package names

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

const MaxLabelLength = 64

// ValidateLabel checks a button display label. Labels are free text but must
// be non-blank, single-line and at most MaxLabelLength characters.
func ValidateLabel(label string) error {
	if strings.TrimSpace(label) == "" {
		return fmt.Errorf("label is required")
	}
	if utf8.RuneCountInString(label) > MaxLabelLength {
		return fmt.Errorf("label must be at most %d characters", MaxLabelLength)
	}
	if !utf8.ValidString(label) {
		return fmt.Errorf("label must be valid UTF-8")
	}
	for _, r := range label {
		if unicode.IsControl(r) {
			return fmt.Errorf("label must not contain control characters")
		}
	}
	return nil
}

func ParseButtonID(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("button id is required")
	}
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("button id %q must be a positive integer", raw)
	}
	return id, nil
}
