package log

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newBufLogger(buf *bytes.Buffer) *Logger {
	return New(Config{Component: ComponentHTTP, Handler: slog.NewTextHandler(buf, nil)})
}

func TestMiddlewareInjectsLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newBufLogger(&buf)

	h := Middleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		FromContext(r.Context()).InfoContext(r.Context(), "handled")
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))

	out := buf.String()
	if !strings.Contains(out, "handled") || !strings.Contains(out, "component=http") {
		t.Fatalf("context logger not used:\n%s", out)
	}
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	logger := FromContext(context.Background())
	if logger == nil {
		t.Fatal("FromContext returned nil")
	}
}

func TestRequestIDMiddlewareEnrichesLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newBufLogger(&buf)

	chain := Middleware(logger)(
		RequestIDMiddleware(func(*http.Request) string { return "req_abc123" })(
			http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				FromContext(r.Context()).InfoContext(r.Context(), "handled")
			})))
	chain.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))

	if !strings.Contains(buf.String(), "request_id=req_abc123") {
		t.Fatalf("request id not attached:\n%s", buf.String())
	}
}

func TestStructuredLoggerTransactionCreated(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(newBufLogger(&buf))

	sl.LogTransactionCreated(context.Background(), 42, "groceries", 12000, "expense", "food")

	out := buf.String()
	for _, want := range []string{"transaction_id=42", "description=groceries", "amount_cents=12000", "operation=create"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestLogFieldsBuilder(t *testing.T) {
	fields := NewFields().
		WithComponent(ComponentLedger).
		WithOperation(OpCreate).
		WithError(nil).
		ToSlice()

	if len(fields) != 4 {
		t.Fatalf("len = %d, want component and operation only (nil error skipped)", len(fields))
	}
}
