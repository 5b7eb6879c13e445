package migrations

const calendarDayMigrationSQL = `
ALTER TABLE clicks ADD COLUMN date_iso TEXT NULL;
ALTER TABLE clicks ADD COLUMN button_label TEXT NOT NULL DEFAULT '';

CREATE INDEX IF NOT EXISTS idx_clicks_button_date_iso ON clicks(button_id, date_iso);
CREATE INDEX IF NOT EXISTS idx_clicks_ts ON clicks(ts);
`
