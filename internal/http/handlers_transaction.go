package http

import (
	"net/http"
	"sync/atomic"

	"moneta/internal/core"
	"moneta/internal/storage"
)

// transactionResponse is the JSON shape of a transaction on the wire.
// Amount is a two-decimal string so clients never see float drift.
type transactionResponse struct {
	ID          int64    `json:"id"`
	Date        string   `json:"date"`
	Description string   `json:"description"`
	Amount      string   `json:"amount"`
	Kind        string   `json:"kind"`
	Category    string   `json:"category,omitempty"`
	Tags        []string `json:"tags"`
}

type pageResponse struct {
	Number int    `json:"number"`
	Count  int    `json:"count"`
	Month  string `json:"month,omitempty"`
}

type listTransactionsResponse struct {
	Transactions []transactionResponse `json:"transactions"`
	Page         pageResponse          `json:"page"`
}

func toTransactionResponse(t core.Transaction) transactionResponse {
	tags := t.Tags
	if tags == nil {
		tags = []string{}
	}
	return transactionResponse{
		ID:          t.ID,
		Date:        t.Date.String(),
		Description: t.Description,
		Amount:      t.Amount.Decimal(),
		Kind:        string(t.Kind),
		Category:    t.Category,
		Tags:        tags,
	}
}

func toListResponse(trs []core.Transaction, page storage.Page) listTransactionsResponse {
	resp := listTransactionsResponse{
		Transactions: make([]transactionResponse, 0, len(trs)),
		Page: pageResponse{
			Number: page.Number,
			Count:  page.Count,
			Month:  page.Month,
		},
	}
	for _, t := range trs {
		resp.Transactions = append(resp.Transactions, toTransactionResponse(t))
	}
	return resp
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	f := parseFilter(r.URL.Query())
	page := parsePage(r.URL.Query())

	trs, p, err := s.ledger.ListTransactions(r.Context(), f, page)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toListResponse(trs, p))
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	t, err := s.ledger.GetTransaction(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionResponse(t))
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	t, err := decodeTransaction(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	created, err := s.ledger.CreateTransaction(r.Context(), t)
	if err != nil {
		writeError(w, r, err)
		return
	}

	s.logs.LogTransactionCreated(r.Context(), created.ID, created.Description,
		created.Amount.Cents, string(created.Kind), created.Category)
	atomic.AddInt64(&s.appMetrics.totalTransactions, 1)
	s.invalidateAggregates()
	writeJSON(w, http.StatusCreated, toTransactionResponse(created))
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	t, err := decodeTransaction(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	t.ID = id

	updated, err := s.ledger.UpdateTransaction(r.Context(), t)
	if err != nil {
		writeError(w, r, err)
		return
	}

	s.invalidateAggregates()
	writeJSON(w, http.StatusOK, toTransactionResponse(updated))
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.ledger.DeleteTransaction(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}

	s.invalidateAggregates()
	w.WriteHeader(http.StatusNoContent)
}
