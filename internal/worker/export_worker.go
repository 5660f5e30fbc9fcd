// Package worker drives the export of committed transactions to the
// backup sink. Deliveries arrive over AMQP; a periodic catch-up pass
// drains anything still marked pending after publish failures.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"moneta/internal/amqp"
	"moneta/internal/core"
	"moneta/internal/export"
	"moneta/internal/storage"
)

type ExportWorker struct {
	store     *storage.SQLiteRepository
	upserter  export.RowUpserter
	deleter   export.RowDeleter
	batchSize int
}

func NewExportWorker(store *storage.SQLiteRepository, upserter export.RowUpserter, deleter export.RowDeleter, batchSize int) *ExportWorker {
	if batchSize <= 0 {
		batchSize = 10
	}
	return &ExportWorker{
		store:     store,
		upserter:  upserter,
		deleter:   deleter,
		batchSize: batchSize,
	}
}

// HandleMessage processes one export delivery. Returning an error
// requeues the message.
func (w *ExportWorker) HandleMessage(ctx context.Context, msg *amqp.ExportMessage) error {
	switch msg.Op {
	case amqp.OpUpsert:
		return w.exportByID(ctx, msg.ID)
	case amqp.OpDelete:
		return w.handleDelete(ctx, msg)
	default:
		return fmt.Errorf("unknown operation %q", msg.Op)
	}
}

// exportByID reads the transaction from the local store and upserts it
// into the sink.
func (w *ExportWorker) exportByID(ctx context.Context, id int64) error {
	t, err := w.store.GetTransaction(ctx, id)
	if errors.Is(err, core.ErrNotFound) {
		// Deleted before the message was consumed; the delete message
		// follows behind in the same queue.
		slog.InfoContext(ctx, "Transaction gone before export, skipping", "id", id)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get transaction %d: %w", id, err)
	}

	ref, err := w.upserter.Upsert(ctx, t)
	if err != nil {
		if markErr := w.store.MarkExportError(ctx, id); markErr != nil {
			slog.WarnContext(ctx, "Failed to record export error", "id", id, "error", markErr)
		}
		return fmt.Errorf("upsert transaction %d: %w", id, err)
	}

	if err := w.store.MarkExported(ctx, id); err != nil {
		// The write succeeded; only the bookkeeping failed.
		slog.WarnContext(ctx, "Failed to mark transaction as exported", "id", id, "error", err)
	}

	slog.InfoContext(ctx, "Transaction exported", "id", id, "row_ref", ref)
	return nil
}

func (w *ExportWorker) handleDelete(ctx context.Context, msg *amqp.ExportMessage) error {
	if w.deleter == nil {
		slog.WarnContext(ctx, "No deleter configured, skipping export deletion", "id", msg.ID)
		return nil
	}

	date, err := core.ParseDate(msg.Date)
	if err != nil {
		// A snapshot we cannot parse will never succeed; drop it.
		slog.ErrorContext(ctx, "Delete snapshot has invalid date, dropping", "id", msg.ID, "date", msg.Date)
		return nil
	}
	snapshot := core.Transaction{
		ID:          msg.ID,
		Date:        date,
		Description: msg.Description,
		Amount:      core.Money{Cents: msg.AmountCents},
		Kind:        core.Kind(msg.Kind),
		Category:    msg.Category,
	}

	if err := w.deleter.Delete(ctx, snapshot); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			// Row never made it to the sink; nothing to delete.
			slog.InfoContext(ctx, "Exported row not found, nothing to delete", "id", msg.ID)
			return nil
		}
		return fmt.Errorf("delete exported transaction %d: %w", msg.ID, err)
	}

	slog.InfoContext(ctx, "Exported transaction deleted", "id", msg.ID)
	return nil
}

// ProcessPending drains transactions still marked pending, in parallel
// batches. It backs the periodic catch-up tick and the startup check.
func (w *ExportWorker) ProcessPending(ctx context.Context) error {
	pending, err := w.store.GetPendingExports(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("get pending exports: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "Processing pending exports", "count", len(pending))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, p := range pending {
		id := p.ID
		g.Go(func() error {
			if err := w.exportByID(gctx, id); err != nil {
				// Keep draining the rest of the batch; the row stays
				// pending and is retried on the next tick.
				slog.ErrorContext(gctx, "Pending export failed", "id", id, "error", err)
			}
			return nil
		})
	}
	return g.Wait()
}
