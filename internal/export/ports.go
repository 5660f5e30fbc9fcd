// Package export defines the outbound ports for the transaction backup
// channel. The Google Sheets adapter is the production sink; the memory
// adapter backs tests and local development.
package export

import (
	"context"

	"moneta/internal/core"
)

type (
	// RowUpserter writes one transaction to the export sink. A row
	// already carrying the transaction's id is updated in place, so
	// re-exporting after an edit never duplicates it.
	RowUpserter interface {
		Upsert(ctx context.Context, t core.Transaction) (rowRef string, err error)
	}

	// RowDeleter removes a previously exported transaction. Sinks
	// locate the row by transaction id, falling back to the snapshot's
	// date, description and amount for rows written before ids were
	// recorded.
	RowDeleter interface {
		Delete(ctx context.Context, t core.Transaction) error
	}
)
