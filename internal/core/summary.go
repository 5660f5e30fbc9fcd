package core

// Summary holds the single-pass totals over a filtered transaction set.
// All sums are exact cents; Net = Income - Expense.
type Summary struct {
	Income  Money
	Expense Money
	Net     Money
	Count   int
}

// CategoryBreakdown pairs a category name with its expense and income
// sums. Uncategorized transactions are reported under the name
// "uncategorized".
type CategoryBreakdown struct {
	Name    string
	Expense Money
	Income  Money
}

// MonthBreakdown carries the same two sums bucketed by calendar month.
// Month is the YYYY-MM key; breakdowns are ordered chronologically.
type MonthBreakdown struct {
	Month   string
	Expense Money
	Income  Money
}
