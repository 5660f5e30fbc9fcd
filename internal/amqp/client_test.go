package amqp

import (
	"testing"
	"time"
)

func TestExportMessageRoundTrip(t *testing.T) {
	msg := NewUpsertMessage(42, 3)
	data, err := msg.ToJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got, err := ExportMessageFromJSON(data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Op != OpUpsert || got.ID != 42 || got.Version != 3 {
		t.Fatalf("unexpected message: %+v", got)
	}
	if got.Timestamp.IsZero() || time.Since(got.Timestamp) > time.Minute {
		t.Fatalf("timestamp not carried: %v", got.Timestamp)
	}
}

func TestDeleteMessageCarriesSnapshot(t *testing.T) {
	msg := NewDeleteMessage(7, "2025-03-01", "groceries", 12000, "expense", "food")
	data, err := msg.ToJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got, err := ExportMessageFromJSON(data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Op != OpDelete || got.Date != "2025-03-01" || got.Description != "groceries" ||
		got.AmountCents != 12000 || got.Kind != "expense" || got.Category != "food" {
		t.Fatalf("snapshot lost: %+v", got)
	}
}

func TestExportMessageRejectsUnknownOp(t *testing.T) {
	for _, bad := range []string{
		`{"op":"resync","id":1}`,
		`{"id":1}`,
		`not json`,
	} {
		if _, err := ExportMessageFromJSON([]byte(bad)); err == nil {
			t.Fatalf("%s: expected error", bad)
		}
	}
}
