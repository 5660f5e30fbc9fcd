package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// Operation tells the export worker what to do with a message.
type Operation string

const (
	OpUpsert Operation = "upsert"
	OpDelete Operation = "delete"
)

// ExportMessage is the envelope published for every committed transaction
// mutation. Upserts are lightweight (id + version, the worker re-reads the
// row); deletes carry a snapshot because the row is already gone.
type ExportMessage struct {
	Op      Operation `json:"op"`
	ID      int64     `json:"id"`
	Version int64     `json:"version,omitempty"`

	// Delete snapshot, empty on upserts.
	Date        string `json:"date,omitempty"` // YYYY-MM-DD
	Description string `json:"description,omitempty"`
	AmountCents int64  `json:"amount_cents,omitempty"`
	Kind        string `json:"kind,omitempty"`
	Category    string `json:"category,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// NewUpsertMessage creates an export message for a created or updated
// transaction.
func NewUpsertMessage(id, version int64) *ExportMessage {
	return &ExportMessage{
		Op:        OpUpsert,
		ID:        id,
		Version:   version,
		Timestamp: time.Now(),
	}
}

// NewDeleteMessage creates an export message carrying the snapshot of a
// deleted transaction.
func NewDeleteMessage(id int64, date, description string, amountCents int64, kind, category string) *ExportMessage {
	return &ExportMessage{
		Op:          OpDelete,
		ID:          id,
		Date:        date,
		Description: description,
		AmountCents: amountCents,
		Kind:        kind,
		Category:    category,
		Timestamp:   time.Now(),
	}
}

// ToJSON converts the message to JSON bytes.
func (m *ExportMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ExportMessageFromJSON parses a message from JSON bytes, rejecting
// unknown operations so bad payloads fail before reaching a handler.
func ExportMessageFromJSON(data []byte) (*ExportMessage, error) {
	var msg ExportMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	switch msg.Op {
	case OpUpsert, OpDelete:
	default:
		return nil, fmt.Errorf("unknown operation %q", msg.Op)
	}
	return &msg, nil
}
