package migrations

// Records imported from the key-value generation keep their display date
// (dd/mm/YYYY) and their combined ISO timestamp as plain text.
const importedTextFieldsMigrationSQL = `
ALTER TABLE clicks ADD COLUMN date_display TEXT NULL;
ALTER TABLE clicks ADD COLUMN ts TEXT NULL;
`
