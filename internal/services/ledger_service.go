package services

import (
	"context"
	"fmt"
	"log/slog"

	"moneta/internal/amqp"
	"moneta/internal/core"
	"moneta/internal/storage"
)

// ExportPublisher is the slice of the AMQP client the ledger needs. A nil
// publisher disables exporting without touching the write path.
type ExportPublisher interface {
	Publish(ctx context.Context, msg *amqp.ExportMessage) error
}

// LedgerService orchestrates transaction writes across SQLite and the
// export queue. The local write is the source of truth; publish failures
// are logged and never fail the request.
type LedgerService struct {
	store     *storage.SQLiteRepository
	publisher ExportPublisher
}

func NewLedgerService(store *storage.SQLiteRepository, publisher ExportPublisher) *LedgerService {
	return &LedgerService{store: store, publisher: publisher}
}

// normalize cleans the label fields of an incoming transaction before
// validation.
func normalize(t core.Transaction) (core.Transaction, error) {
	t.Category = core.NormalizeLabel(t.Category)
	tags, err := core.NormalizeTags(t.Tags)
	if err != nil {
		return core.Transaction{}, err
	}
	t.Tags = tags
	return t, nil
}

// CreateTransaction validates, saves and queues the transaction for
// export. Returns the stored transaction with its new id.
func (s *LedgerService) CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	t, err := normalize(t)
	if err != nil {
		return core.Transaction{}, err
	}
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}

	id, err := s.store.CreateTransaction(ctx, t)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("save transaction: %w", err)
	}
	t.ID = id

	s.publish(ctx, amqp.NewUpsertMessage(id, 1))
	return t, nil
}

// UpdateTransaction replaces an existing transaction wholesale.
func (s *LedgerService) UpdateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	t, err := normalize(t)
	if err != nil {
		return core.Transaction{}, err
	}
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}

	if err := s.store.UpdateTransaction(ctx, t); err != nil {
		return core.Transaction{}, err
	}

	s.publish(ctx, amqp.NewUpsertMessage(t.ID, 0))
	return s.store.GetTransaction(ctx, t.ID)
}

// DeleteTransaction removes the transaction locally and queues a delete
// snapshot for the export worker, which has no row left to read.
func (s *LedgerService) DeleteTransaction(ctx context.Context, id int64) error {
	snapshot, err := s.store.GetTransaction(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteTransaction(ctx, id); err != nil {
		return err
	}

	s.publish(ctx, amqp.NewDeleteMessage(
		id, snapshot.Date.String(), snapshot.Description,
		snapshot.Amount.Cents, string(snapshot.Kind), snapshot.Category))
	return nil
}

// GetTransaction returns a single transaction by id.
func (s *LedgerService) GetTransaction(ctx context.Context, id int64) (core.Transaction, error) {
	return s.store.GetTransaction(ctx, id)
}

// ListTransactions returns one calendar month of matching transactions
// per page, newest month first.
func (s *LedgerService) ListTransactions(ctx context.Context, f core.Filter, page int) ([]core.Transaction, storage.Page, error) {
	return s.store.ListTransactions(ctx, f, page)
}

func (s *LedgerService) publish(ctx context.Context, msg *amqp.ExportMessage) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, msg); err != nil {
		// The transaction is committed locally; export catches up via
		// the pending queue.
		slog.ErrorContext(ctx, "Failed to publish export message",
			"op", string(msg.Op), "id", msg.ID, "error", err)
	}
}

// Close releases the store.
func (s *LedgerService) Close() error {
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			return fmt.Errorf("close store: %w", err)
		}
	}
	return nil
}
