package audit

import (
	"context"
	"strings"
	"time"
)

const (
	OperationButtonLabel     = "button.label"
	OperationButtonIconSet   = "button.icon.set"
	OperationButtonIconClear = "button.icon.clear"
	OperationClicksImport    = "clicks.import"
)

var operations = []string{
	OperationButtonLabel,
	OperationButtonIconSet,
	OperationButtonIconClear,
	OperationClicksImport,
}

// Operations lists every operation tallyd records.
func Operations() []string {
	return append([]string(nil), operations...)
}

// MatchesOperation reports whether op is selected by filter, which is either
// an exact operation or a dotted family such as "button" or "button.icon".
func MatchesOperation(filter, op string) bool {
	filter = strings.TrimSpace(filter)
	return filter == "" || op == filter || strings.HasPrefix(op, filter+".")
}

// ValidOperationFilter reports whether filter selects at least one known
// operation.
func ValidOperationFilter(filter string) bool {
	for _, op := range operations {
		if MatchesOperation(filter, op) {
			return true
		}
	}
	return false
}

// Entry records one configuration change. Click recording itself is not
// audited; the click table is its own history.
type Entry struct {
	ID        int64          `json:"id"`
	Actor     string         `json:"actor"`
	Timestamp time.Time      `json:"timestamp"`
	ButtonID  *int           `json:"buttonId,omitempty"`
	Operation string         `json:"operation"`
	Summary   string         `json:"summary"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

type Filter struct {
	ButtonID *int
	// Operation is an exact operation or a dotted family prefix.
	Operation string
	Since     *time.Time
	Until     *time.Time
	Limit     int
	Offset    int
}

type QueryResult struct {
	Entries []Entry
	Total   int
	Limit   int
	Offset  int
}

type Logger interface {
	Log(ctx context.Context, entry Entry) error
	Query(ctx context.Context, filter Filter) (QueryResult, error)
}
