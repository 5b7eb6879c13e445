package migrations

type Migration struct {
	Version int
	Name    string
	UpSQL   string
}

// The first relational generation stored the day and the minute of each press
// in native DATE/TIME columns and nothing else.
const clicksSchemaSQL = `
CREATE TABLE IF NOT EXISTS clicks (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    button_id INTEGER NOT NULL,
    seq INTEGER NOT NULL,
    date DATE NULL,
    time TIME NULL
);

CREATE INDEX IF NOT EXISTS idx_clicks_date ON clicks(date);
`

func All() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "clicks",
			UpSQL:   clicksSchemaSQL,
		},
		{
			Version: 2,
			Name:    "clicks_imported_text_fields",
			UpSQL:   importedTextFieldsMigrationSQL,
		},
		{
			Version: 3,
			Name:    "clicks_calendar_day",
			UpSQL:   calendarDayMigrationSQL,
		},
		{
			Version: 4,
			Name:    "buttons",
			UpSQL:   buttonsSchemaSQL,
		},
	}
}
