package http

import (
	"html/template"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"moneta/internal/core"
	applog "moneta/internal/log"
)

// handleCreateTransactionForm is the HTMX form flow of the dashboard:
// form-encoded input, HTML snippet out, HX-Trigger headers driving the
// partial refreshes. The JSON flow lives under /api/transactions.
func (s *Server) handleCreateTransactionForm(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Parse form error", "error", err, "method", r.Method, "path", r.URL.Path)
		BadRequestError("Formato richiesta non valido").Write(w)
		return
	}

	date := core.Date{Time: time.Now().UTC()}
	if v := strings.TrimSpace(r.Form.Get("date")); v != "" {
		d, err := core.ParseDate(v)
		if err != nil {
			UnprocessableEntityError("Data non valida").Write(w)
			return
		}
		date = d
	}

	cents, err := core.ParseDecimalToCents(strings.TrimSpace(r.Form.Get("amount")))
	if err != nil {
		UnprocessableEntityError("Importo non valido").Write(w)
		return
	}

	kind := core.Kind(strings.TrimSpace(r.Form.Get("kind")))
	if kind == "" {
		kind = core.Expense
	}

	var tags []string
	if v := strings.TrimSpace(r.Form.Get("tags")); v != "" {
		tags = strings.Split(v, ",")
	}

	t := core.Transaction{
		Date:        date,
		Description: sanitizeInput(r.Form.Get("description")),
		Amount:      core.Money{Cents: cents},
		Kind:        kind,
		Category:    sanitizeInput(r.Form.Get("category")),
		Tags:        tags,
	}

	created, err := s.ledger.CreateTransaction(r.Context(), t)
	if err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Transaction create error", "error", err,
			"description", t.Description, "amount_cents", t.Amount.Cents)
		UnprocessableEntityError("Dati non validi: " + err.Error()).
			TriggerErrorNotification("Movimento non registrato").
			Write(w)
		return
	}

	s.logs.LogTransactionCreated(r.Context(), created.ID, created.Description,
		created.Amount.Cents, string(created.Kind), created.Category)
	atomic.AddInt64(&s.appMetrics.totalTransactions, 1)
	s.invalidateAggregates()

	NewHTMXResponse().
		TriggerTransactionCreated(created.Date.MonthKey()).
		TriggerFormReset().
		TriggerSuccessNotification("Movimento registrato").
		BodyHTML(`<div class="success">Registrato: ` + template.HTMLEscapeString(created.Description) +
			` (` + formatEuros(created.Amount.Cents) + `)</div>`).
		Write(w)
}
