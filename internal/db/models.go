package db

// ClickRow mirrors one clicks row. The date/time columns are nullable because
// each schema generation filled a different subset of them.
type ClickRow struct {
	ID          int64
	ButtonID    int
	ButtonLabel string
	Seq         int
	DateISO     *string
	Date        *string
	DateDisplay *string
	Time        *string
	Timestamp   *string
}

type ButtonRow struct {
	ButtonID  int
	Label     string
	IconRef   *string
	CreatedAt string
	UpdatedAt string
}

// ClickFilter narrows candidate rows by button and by the 10-character day
// prefix of any of the date columns. From and To are inclusive ISO days.
type ClickFilter struct {
	ButtonID *int
	From     string
	To       string
}
