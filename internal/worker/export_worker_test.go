package worker

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"moneta/internal/amqp"
	"moneta/internal/core"
	"moneta/internal/export/memory"
	"moneta/internal/storage"
)

func newTestStore(t *testing.T) *storage.SQLiteRepository {
	t.Helper()
	store, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func seedTransaction(t *testing.T, store *storage.SQLiteRepository, desc string) int64 {
	t.Helper()
	id, err := store.CreateTransaction(context.Background(), core.Transaction{
		Date:        core.NewDate(2025, 3, 1),
		Description: desc,
		Amount:      core.Money{Cents: 1500},
		Kind:        core.Expense,
		Category:    "food",
	})
	if err != nil {
		t.Fatalf("seed transaction: %v", err)
	}
	return id
}

type failingSink struct{}

func (failingSink) Upsert(context.Context, core.Transaction) (string, error) {
	return "", errors.New("sink unavailable")
}

func TestHandleUpsert(t *testing.T) {
	store := newTestStore(t)
	sink := memory.New()
	w := NewExportWorker(store, sink, sink, 10)
	ctx := context.Background()

	id := seedTransaction(t, store, "groceries")

	if err := w.HandleMessage(ctx, amqp.NewUpsertMessage(id, 1)); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	rows := sink.Rows()
	if len(rows) != 1 || rows[0].Description != "groceries" {
		t.Fatalf("sink rows = %+v", rows)
	}
	pending, _ := store.GetPendingExports(ctx, 10)
	if len(pending) != 0 {
		t.Fatalf("pending = %+v, want cleared after export", pending)
	}
}

func TestHandleUpsertReexportReplacesRow(t *testing.T) {
	store := newTestStore(t)
	sink := memory.New()
	w := NewExportWorker(store, sink, sink, 10)
	ctx := context.Background()

	id := seedTransaction(t, store, "groceries")
	if err := w.HandleMessage(ctx, amqp.NewUpsertMessage(id, 1)); err != nil {
		t.Fatalf("first export: %v", err)
	}

	// Editing the transaction re-queues it; the second export must
	// replace the sheet row, not add a second one.
	tr, err := store.GetTransaction(ctx, id)
	if err != nil {
		t.Fatalf("GetTransaction: %v", err)
	}
	tr.Description = "farmers market"
	if err := store.UpdateTransaction(ctx, tr); err != nil {
		t.Fatalf("UpdateTransaction: %v", err)
	}
	if err := w.HandleMessage(ctx, amqp.NewUpsertMessage(id, 2)); err != nil {
		t.Fatalf("second export: %v", err)
	}

	rows := sink.Rows()
	if len(rows) != 1 {
		t.Fatalf("sink rows = %d, want the edited row updated in place", len(rows))
	}
	if rows[0].Description != "farmers market" {
		t.Fatalf("row = %+v, want updated description", rows[0])
	}
}

func TestHandleUpsertRowAlreadyGone(t *testing.T) {
	store := newTestStore(t)
	sink := memory.New()
	w := NewExportWorker(store, sink, sink, 10)

	// The delete message follows behind in the same queue; skipping is
	// the correct outcome, not an error.
	if err := w.HandleMessage(context.Background(), amqp.NewUpsertMessage(999, 1)); err != nil {
		t.Fatalf("HandleMessage = %v, want nil for vanished row", err)
	}
	if len(sink.Rows()) != 0 {
		t.Fatalf("sink rows = %+v, want none", sink.Rows())
	}
}

func TestHandleUpsertSinkFailureMarksError(t *testing.T) {
	store := newTestStore(t)
	w := NewExportWorker(store, failingSink{}, nil, 10)
	ctx := context.Background()

	id := seedTransaction(t, store, "groceries")

	if err := w.HandleMessage(ctx, amqp.NewUpsertMessage(id, 1)); err == nil {
		t.Fatal("HandleMessage should fail so the delivery is requeued")
	}
	// The row leaves the pending queue with the error status recorded.
	pending, _ := store.GetPendingExports(ctx, 10)
	if len(pending) != 0 {
		t.Fatalf("pending = %+v, want error status recorded", pending)
	}
}

func TestHandleDelete(t *testing.T) {
	store := newTestStore(t)
	sink := memory.New()
	w := NewExportWorker(store, sink, sink, 10)
	ctx := context.Background()

	id := seedTransaction(t, store, "groceries")
	if err := w.HandleMessage(ctx, amqp.NewUpsertMessage(id, 1)); err != nil {
		t.Fatalf("export: %v", err)
	}

	msg := amqp.NewDeleteMessage(id, "2025-03-01", "groceries", 1500, "expense", "food")
	if err := w.HandleMessage(ctx, msg); err != nil {
		t.Fatalf("HandleMessage delete: %v", err)
	}
	if len(sink.Rows()) != 0 {
		t.Fatalf("sink rows = %+v, want row removed", sink.Rows())
	}

	// A row that never reached the sink is nothing to delete.
	if err := w.HandleMessage(ctx, msg); err != nil {
		t.Fatalf("delete of missing row = %v, want nil", err)
	}
}

func TestHandleDeleteBadSnapshot(t *testing.T) {
	store := newTestStore(t)
	sink := memory.New()
	w := NewExportWorker(store, sink, sink, 10)

	msg := amqp.NewDeleteMessage(1, "not-a-date", "x", 100, "expense", "")
	if err := w.HandleMessage(context.Background(), msg); err != nil {
		t.Fatalf("unparseable snapshot = %v, want dropped without error", err)
	}
}

func TestHandleUnknownOperation(t *testing.T) {
	w := NewExportWorker(newTestStore(t), memory.New(), nil, 10)
	if err := w.HandleMessage(context.Background(), &amqp.ExportMessage{Op: "replay", ID: 1}); err == nil {
		t.Fatal("unknown operation should error")
	}
}

func TestProcessPending(t *testing.T) {
	store := newTestStore(t)
	sink := memory.New()
	w := NewExportWorker(store, sink, sink, 10)
	ctx := context.Background()

	seedTransaction(t, store, "one")
	seedTransaction(t, store, "two")
	seedTransaction(t, store, "three")

	if err := w.ProcessPending(ctx); err != nil {
		t.Fatalf("ProcessPending: %v", err)
	}
	if len(sink.Rows()) != 3 {
		t.Fatalf("exported %d rows, want 3", len(sink.Rows()))
	}
	pending, _ := store.GetPendingExports(ctx, 10)
	if len(pending) != 0 {
		t.Fatalf("pending = %+v, want drained", pending)
	}

	// Nothing pending is a quiet no-op.
	if err := w.ProcessPending(ctx); err != nil {
		t.Fatalf("ProcessPending on empty queue: %v", err)
	}
}

func TestProcessPendingKeepsDrainingOnFailure(t *testing.T) {
	store := newTestStore(t)
	w := NewExportWorker(store, failingSink{}, nil, 10)
	ctx := context.Background()

	seedTransaction(t, store, "one")
	seedTransaction(t, store, "two")

	// Individual failures are logged and retried on the next tick; the
	// batch itself must not error.
	if err := w.ProcessPending(ctx); err != nil {
		t.Fatalf("ProcessPending: %v", err)
	}
}
