package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	defaultLimit         = 50
	maxLimit             = 1000
	auditTimestampLayout = "2006-01-02T15:04:05.000000000Z"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS audit_log (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  actor TEXT NOT NULL,
  timestamp TEXT NOT NULL,
  button_id INTEGER,
  operation TEXT NOT NULL,
  summary TEXT NOT NULL DEFAULT '',
  metadata_json TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_audit_log_timestamp ON audit_log(timestamp);
CREATE INDEX IF NOT EXISTS idx_audit_log_button ON audit_log(button_id);
`

// SQLiteLogger keeps the audit trail in its own SQLite database so it is
// available whichever click store driver is configured.
type SQLiteLogger struct {
	db *sql.DB
}

func NewSQLiteLogger(ctx context.Context, db *sql.DB) (*SQLiteLogger, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return nil, fmt.Errorf("create audit schema: %w", err)
	}
	return &SQLiteLogger{db: db}, nil
}

type auditRow struct {
	actor     string
	timestamp string
	buttonID  *int
	operation string
	summary   string
	metadata  string
}

func rowFromEntry(entry Entry) (auditRow, error) {
	operation := strings.TrimSpace(entry.Operation)
	if operation == "" {
		return auditRow{}, fmt.Errorf("operation is required")
	}
	actor := strings.TrimSpace(entry.Actor)
	if actor == "" {
		actor = "local"
	}
	ts := entry.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	metadataJSON := "{}"
	if entry.Metadata != nil {
		b, err := json.Marshal(entry.Metadata)
		if err != nil {
			return auditRow{}, fmt.Errorf("marshal audit metadata for %s: %w", operation, err)
		}
		metadataJSON = string(b)
	}
	return auditRow{
		actor:     actor,
		timestamp: ts.UTC().Format(auditTimestampLayout),
		buttonID:  entry.ButtonID,
		operation: operation,
		summary:   entry.Summary,
		metadata:  metadataJSON,
	}, nil
}

func (l *SQLiteLogger) Log(ctx context.Context, entry Entry) error {
	return l.LogBatch(ctx, []Entry{entry})
}

// BatchError reports how many entries of a batch were not stored.
type BatchError struct {
	Failed int
	Err    error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("%d audit entries not stored: %v", e.Failed, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// LogBatch writes entries in one transaction. Invalid entries are skipped and
// reported in the returned *BatchError; the valid ones are still stored.
func (l *SQLiteLogger) LogBatch(ctx context.Context, entries []Entry) error {
	rows := make([]auditRow, 0, len(entries))
	var errs []error
	for _, entry := range entries {
		row, err := rowFromEntry(entry)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		rows = append(rows, row)
	}
	failed := len(errs)
	if len(rows) > 0 {
		if err := l.insertRows(ctx, rows); err != nil {
			errs = append(errs, err)
			failed += len(rows)
		}
	}
	if failed == 0 {
		return nil
	}
	return &BatchError{Failed: failed, Err: errors.Join(errs...)}
}

func (l *SQLiteLogger) insertRows(ctx context.Context, rows []auditRow) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin audit batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO audit_log(actor, timestamp, button_id, operation, summary, metadata_json)
VALUES(?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare audit insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, r.actor, r.timestamp, r.buttonID, r.operation, r.summary, r.metadata); err != nil {
			return fmt.Errorf("insert audit log entry %s: %w", r.operation, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit audit batch of %d: %w", len(rows), err)
	}
	return nil
}

func (l *SQLiteLogger) Query(ctx context.Context, filter Filter) (QueryResult, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	clauses := []string{"1 = 1"}
	args := []any{}
	if filter.ButtonID != nil {
		clauses = append(clauses, "button_id = ?")
		args = append(args, *filter.ButtonID)
	}
	if op := strings.TrimSpace(filter.Operation); op != "" {
		clauses = append(clauses, "(operation = ? OR substr(operation, 1, ?) = ?)")
		args = append(args, op, len(op)+1, op+".")
	}
	if filter.Since != nil {
		clauses = append(clauses, "timestamp >= ?")
		args = append(args, filter.Since.UTC().Format(auditTimestampLayout))
	}
	if filter.Until != nil {
		clauses = append(clauses, "timestamp <= ?")
		args = append(args, filter.Until.UTC().Format(auditTimestampLayout))
	}
	where := strings.Join(clauses, " AND ")

	var total int
	if err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_log WHERE `+where, args...).Scan(&total); err != nil {
		return QueryResult{}, fmt.Errorf("count audit log rows: %w", err)
	}

	query := `
SELECT id, actor, timestamp, button_id, operation, summary, metadata_json
FROM audit_log
WHERE ` + where + `
ORDER BY timestamp DESC, id DESC
LIMIT ? OFFSET ?`
	queryArgs := append(append([]any{}, args...), limit, offset)
	rows, err := l.db.QueryContext(ctx, query, queryArgs...)
	if err != nil {
		return QueryResult{}, fmt.Errorf("query audit log rows: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var row Entry
		var ts string
		var buttonID sql.NullInt64
		var metadataRaw string
		if err := rows.Scan(&row.ID, &row.Actor, &ts, &buttonID, &row.Operation, &row.Summary, &metadataRaw); err != nil {
			return QueryResult{}, fmt.Errorf("scan audit log row: %w", err)
		}
		parsedTS, err := parseAuditTimestamp(ts)
		if err != nil {
			return QueryResult{}, fmt.Errorf("parse audit timestamp %q: %w", ts, err)
		}
		row.Timestamp = parsedTS
		if buttonID.Valid {
			id := int(buttonID.Int64)
			row.ButtonID = &id
		}
		if strings.TrimSpace(metadataRaw) != "" && metadataRaw != "{}" {
			meta := map[string]any{}
			if err := json.Unmarshal([]byte(metadataRaw), &meta); err != nil {
				return QueryResult{}, fmt.Errorf("parse audit metadata json: %w", err)
			}
			row.Metadata = meta
		}
		entries = append(entries, row)
	}
	if err := rows.Err(); err != nil {
		return QueryResult{}, fmt.Errorf("iterate audit log rows: %w", err)
	}
	return QueryResult{Entries: entries, Total: total, Limit: limit, Offset: offset}, nil
}

func parseAuditTimestamp(raw string) (time.Time, error) {
	if ts, err := time.Parse(auditTimestampLayout, raw); err == nil {
		return ts, nil
	}
	return time.Parse(time.RFC3339Nano, raw)
}
