package google

import (
	"fmt"
	"strconv"
	"strings"

	"moneta/internal/core"
)

// transactionRow shapes the spreadsheet row for a transaction:
// Date, Description, Amount, Kind, Category, Tags, Id. The id column
// lets later upserts and deletes find the row after its content changed.
func transactionRow(t core.Transaction) []any {
	return []any{
		t.Date.String(),
		t.Description,
		t.Amount.Decimal(),
		string(t.Kind),
		t.Category,
		strings.Join(t.Tags, ","),
		strconv.FormatInt(t.ID, 10),
	}
}

// findRowByID returns the zero-based index of the row carrying the
// transaction id in its last column, or -1.
func findRowByID(values [][]any, id int64) int {
	want := strconv.FormatInt(id, 10)
	for i, row := range values {
		cols := toStrings(row)
		if len(cols) < 7 {
			continue
		}
		if cols[6] == want {
			return i
		}
	}
	return -1
}

// findRow returns the zero-based index of the first row matching the
// snapshot's date, description and amount, or -1. This is the fallback
// for rows written before the id column existed.
func findRow(values [][]any, t core.Transaction) int {
	for i, row := range values {
		cols := toStrings(row)
		if len(cols) < 3 {
			continue
		}
		cents, ok := parseDecimalCell(cols[2])
		if !ok {
			continue
		}
		if cols[0] == t.Date.String() && cols[1] == t.Description && cents == t.Amount.Cents {
			return i
		}
	}
	return -1
}

func toStrings(in []any) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

// parseDecimalCell reads a spreadsheet amount cell, tolerating both dot
// and comma separators and plain numbers.
func parseDecimalCell(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	s = strings.ReplaceAll(s, ",", ".")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	neg := f < 0
	if neg {
		f = -f
	}
	cents := int64(f*100.0 + 0.5)
	if neg {
		cents = -cents
	}
	return cents, true
}
