package migrations

const buttonsSchemaSQL = `
CREATE TABLE IF NOT EXISTS buttons (
    button_id INTEGER PRIMARY KEY,
    label TEXT NOT NULL,
    icon_ref TEXT NULL,
    created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
    updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
);
`
