// Package memory is an in-memory export sink used by tests and local
// development runs that have no spreadsheet configured.
package memory

import (
	"context"
	"fmt"
	"sync"

	"moneta/internal/core"
)

type Sink struct {
	mu   sync.Mutex
	rows []core.Transaction
}

func New() *Sink {
	return &Sink{}
}

// Upsert stores the transaction, replacing an existing row with the same
// id, and returns a synthetic row reference.
func (s *Sink) Upsert(_ context.Context, t core.Transaction) (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, row := range s.rows {
		if row.ID == t.ID {
			s.rows[i] = t
			return fmt.Sprintf("mem:%d", i+1), nil
		}
	}
	s.rows = append(s.rows, t)
	return fmt.Sprintf("mem:%d", len(s.rows)), nil
}

// Delete removes the row carrying the snapshot's id, falling back to
// matching date, description and amount, mirroring how the spreadsheet
// sink locates rows.
func (s *Sink) Delete(_ context.Context, t core.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, row := range s.rows {
		if row.ID == t.ID {
			s.rows = append(s.rows[:i], s.rows[i+1:]...)
			return nil
		}
	}
	for i, row := range s.rows {
		if row.Date.String() == t.Date.String() &&
			row.Description == t.Description &&
			row.Amount.Cents == t.Amount.Cents {
			s.rows = append(s.rows[:i], s.rows[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("export row for %q on %s: %w", t.Description, t.Date, core.ErrNotFound)
}

// Rows returns a copy of everything exported so far.
func (s *Sink) Rows() []core.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Transaction(nil), s.rows...)
}
