package services

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"moneta/internal/core"
)

// ImportResult reports a CSV batch outcome: rows that made it in and a
// per-row error list. A batch of N rows with M bad rows always yields
// Imported == N-M; bad rows never abort the batch.
type ImportResult struct {
	Imported int      `json:"imported"`
	Errors   []string `json:"errors"`
}

// Importer parses CSV rows into transaction-creation calls against the
// ledger.
//
// Expected columns: date, description (alias name), amount, and optional
// type, category and tags (comma separated inside the cell). When the
// type column is absent or empty, the amount's sign picks the kind:
// negative is an expense, positive an income, zero is rejected.
type Importer struct {
	ledger *LedgerService
}

func NewImporter(ledger *LedgerService) *Importer {
	return &Importer{ledger: ledger}
}

type csvHeader struct {
	date        int
	description int
	amount      int
	kind        int // -1 when the column is absent
	category    int
	tags        int
}

func parseHeader(record []string) (csvHeader, error) {
	h := csvHeader{date: -1, description: -1, amount: -1, kind: -1, category: -1, tags: -1}
	for i, col := range record {
		switch strings.ToLower(strings.TrimSpace(col)) {
		case "date":
			h.date = i
		case "description", "name":
			h.description = i
		case "amount":
			h.amount = i
		case "type":
			h.kind = i
		case "category":
			h.category = i
		case "tags":
			h.tags = i
		}
	}
	var missing []string
	if h.date == -1 {
		missing = append(missing, "date")
	}
	if h.description == -1 {
		missing = append(missing, "description")
	}
	if h.amount == -1 {
		missing = append(missing, "amount")
	}
	if len(missing) > 0 {
		return h, fmt.Errorf("%w: missing required columns: %s", core.ErrValidation, strings.Join(missing, ", "))
	}
	return h, nil
}

func field(record []string, idx int) string {
	if idx < 0 || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

// parseRow turns one data record into a transaction, without persisting it.
func parseRow(h csvHeader, record []string) (core.Transaction, error) {
	date, err := core.ParseDate(field(record, h.date))
	if err != nil {
		return core.Transaction{}, err
	}

	description := field(record, h.description)
	rawAmount := field(record, h.amount)

	var (
		cents int64
		kind  core.Kind
	)
	if rawKind := field(record, h.kind); rawKind != "" {
		kind = core.Kind(strings.ToLower(rawKind))
		if err := kind.Validate(); err != nil {
			return core.Transaction{}, err
		}
		// An explicit type never pairs with a signed amount.
		cents, err = core.ParseDecimalToCents(rawAmount)
		if err != nil {
			return core.Transaction{}, fmt.Errorf("%w: amount %q must be a positive decimal when type is given", core.ErrValidation, rawAmount)
		}
	} else {
		cents, kind, err = core.ParseSignedDecimalToCents(rawAmount)
		if err != nil {
			return core.Transaction{}, fmt.Errorf("%w: amount %q", core.ErrValidation, rawAmount)
		}
	}

	var tags []string
	if raw := field(record, h.tags); raw != "" {
		tags = strings.Split(raw, ",")
	}

	return core.Transaction{
		Date:        date,
		Description: description,
		Amount:      core.Money{Cents: cents},
		Kind:        kind,
		Category:    field(record, h.category),
		Tags:        tags,
	}, nil
}

// ImportCSV reads the whole stream and creates one transaction per valid
// row. Only an unreadable header fails the batch; everything after that
// is reported per row as "row N: message" (N counts data rows from 1).
func (i *Importer) ImportCSV(ctx context.Context, r io.Reader) (ImportResult, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	headerRecord, err := reader.Read()
	if err != nil {
		return ImportResult{}, fmt.Errorf("%w: unreadable CSV header", core.ErrValidation)
	}
	header, err := parseHeader(headerRecord)
	if err != nil {
		return ImportResult{}, err
	}

	result := ImportResult{Errors: []string{}}
	row := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		row++
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: %v", row, err))
			continue
		}

		t, err := parseRow(header, record)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: %v", row, err))
			continue
		}
		if _, err := i.ledger.CreateTransaction(ctx, t); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: %v", row, err))
			continue
		}
		result.Imported++
	}

	slog.InfoContext(ctx, "CSV import finished",
		"imported", result.Imported,
		"failed", len(result.Errors))
	return result, nil
}
