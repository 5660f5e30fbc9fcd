package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"moneta/internal/core"
)

func newTestImporter(t *testing.T) (*Importer, *LedgerService) {
	t.Helper()
	ledger := NewLedgerService(newTestStore(t), nil)
	return NewImporter(ledger), ledger
}

func TestImportCSVSignedAmounts(t *testing.T) {
	imp, ledger := newTestImporter(t)
	ctx := context.Background()

	csv := `date,description,amount,category,tags
2025-03-01,groceries,-42.50,food,"weekly,market"
2025-03-02,salary,2500.00,work,
2025-03-03,coffee,"-1,20",,
`
	res, err := imp.ImportCSV(ctx, strings.NewReader(csv))
	if err != nil {
		t.Fatalf("ImportCSV: %v", err)
	}
	if res.Imported != 3 || len(res.Errors) != 0 {
		t.Fatalf("result = %+v", res)
	}

	rows, _, err := ledger.ListTransactions(ctx, core.Filter{}, 1)
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(rows))
	}
	byDesc := map[string]core.Transaction{}
	for _, r := range rows {
		byDesc[r.Description] = r
	}
	if g := byDesc["groceries"]; g.Kind != core.Expense || g.Amount.Cents != 4250 {
		t.Fatalf("groceries = %+v", g)
	}
	if s := byDesc["salary"]; s.Kind != core.Income || s.Amount.Cents != 250000 {
		t.Fatalf("salary = %+v", s)
	}
	// Decimal comma inside a quoted cell.
	if c := byDesc["coffee"]; c.Kind != core.Expense || c.Amount.Cents != 120 {
		t.Fatalf("coffee = %+v", c)
	}
	if g := byDesc["groceries"]; len(g.Tags) != 2 || g.Tags[0] != "market" || g.Tags[1] != "weekly" {
		t.Fatalf("groceries tags = %v", g.Tags)
	}
}

func TestImportCSVExplicitType(t *testing.T) {
	imp, ledger := newTestImporter(t)
	ctx := context.Background()

	csv := `date,name,amount,type
2025-03-01,refund,15.00,Income
2025-03-02,lunch,9.50,expense
2025-03-03,bad pair,-9.50,expense
`
	res, err := imp.ImportCSV(ctx, strings.NewReader(csv))
	if err != nil {
		t.Fatalf("ImportCSV: %v", err)
	}
	if res.Imported != 2 {
		t.Fatalf("imported = %d, want 2", res.Imported)
	}
	// A signed amount never pairs with an explicit type.
	if len(res.Errors) != 1 || !strings.HasPrefix(res.Errors[0], "row 3:") {
		t.Fatalf("errors = %v", res.Errors)
	}

	rows, _, _ := ledger.ListTransactions(ctx, core.Filter{}, 1)
	for _, r := range rows {
		if r.Description == "refund" && r.Kind != core.Income {
			t.Fatalf("refund kind = %s", r.Kind)
		}
	}
}

func TestImportCSVPartialBatch(t *testing.T) {
	imp, _ := newTestImporter(t)
	ctx := context.Background()

	// A batch of N rows with M bad rows imports exactly N-M.
	csv := `date,description,amount
2025-03-01,ok one,-10.00
not-a-date,bad date,-10.00
2025-03-03,zero amount,0
2025-03-04,ok two,12.00
2025-03-05,,5.00
`
	res, err := imp.ImportCSV(ctx, strings.NewReader(csv))
	if err != nil {
		t.Fatalf("ImportCSV: %v", err)
	}
	if res.Imported != 2 {
		t.Fatalf("imported = %d, want 2", res.Imported)
	}
	if len(res.Errors) != 3 {
		t.Fatalf("errors = %v, want 3", res.Errors)
	}
	for i, prefix := range []string{"row 2:", "row 3:", "row 5:"} {
		if !strings.HasPrefix(res.Errors[i], prefix) {
			t.Fatalf("error %d = %q, want prefix %q", i, res.Errors[i], prefix)
		}
	}
}

func TestImportCSVHeaderValidation(t *testing.T) {
	imp, _ := newTestImporter(t)
	ctx := context.Background()

	_, err := imp.ImportCSV(ctx, strings.NewReader("date,amount\n2025-03-01,-10.00\n"))
	if !errors.Is(err, core.ErrValidation) {
		t.Fatalf("missing column = %v, want ErrValidation", err)
	}
	if !strings.Contains(err.Error(), "description") {
		t.Fatalf("error should name the missing column: %v", err)
	}

	if _, err := imp.ImportCSV(ctx, strings.NewReader("")); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("empty stream = %v, want ErrValidation", err)
	}
}

func TestImportCSVEmptyBody(t *testing.T) {
	imp, _ := newTestImporter(t)
	res, err := imp.ImportCSV(context.Background(), strings.NewReader("date,description,amount\n"))
	if err != nil {
		t.Fatalf("ImportCSV: %v", err)
	}
	if res.Imported != 0 || len(res.Errors) != 0 {
		t.Fatalf("result = %+v, want empty success", res)
	}
}
