package core

// CategoryTotal represents an amount aggregated by category name.
type CategoryTotal struct {
	Name   string
	Amount Money
}

// MonthSummary is the backend's compact summary for a specific year+month.
type MonthSummary struct {
	Year     int
	Month    int // 1-12
	Income   Money
	Expenses Money
	Balance  Money
}

// MonthTotal is one point of a monthly series, optionally scoped to a category.
type MonthTotal struct {
	Year     int
	Month    int
	Category string
	Amount   Money
}

// DetectedRecurrence is a repeating payment the backend recognised in the
// transaction history.
type DetectedRecurrence struct {
	Description   string
	Category      string
	AverageAmount Money
	Frequency     Frequency
	Occurrences   int
	LastDate      Date
	NextDate      Date
}
