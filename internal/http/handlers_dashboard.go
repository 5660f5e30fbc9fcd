package http

import (
	"html/template"
	"net/http"
	"sync/atomic"

	"moneta/internal/core"
	applog "moneta/internal/log"
	"moneta/internal/services"
)

// summaryResponse is the JSON shape of /api/summary. Amounts are
// two-decimal strings.
type summaryResponse struct {
	Income  string `json:"income"`
	Expense string `json:"expense"`
	Net     string `json:"net"`
	Count   int    `json:"count"`
}

// chartSeries feeds a single dashboard chart: parallel label and value
// slices in the order the chart renders them.
type chartSeries struct {
	Labels   []string  `json:"labels"`
	Expenses []float64 `json:"expenses"`
	Income   []float64 `json:"income"`
}

type chartDataResponse struct {
	Categories chartSeries `json:"categories"`
	Monthly    chartSeries `json:"monthly"`
}

func toSummaryResponse(sum core.Summary) summaryResponse {
	return summaryResponse{
		Income:  sum.Income.Decimal(),
		Expense: sum.Expense.Decimal(),
		Net:     sum.Net.Decimal(),
		Count:   sum.Count,
	}
}

func toChartDataResponse(data services.ChartData) chartDataResponse {
	resp := chartDataResponse{
		Categories: chartSeries{Labels: []string{}, Expenses: []float64{}, Income: []float64{}},
		Monthly:    chartSeries{Labels: []string{}, Expenses: []float64{}, Income: []float64{}},
	}
	for _, c := range data.Categories {
		resp.Categories.Labels = append(resp.Categories.Labels, c.Name)
		resp.Categories.Expenses = append(resp.Categories.Expenses, c.Expense.Float())
		resp.Categories.Income = append(resp.Categories.Income, c.Income.Float())
	}
	for _, m := range data.Monthly {
		resp.Monthly.Labels = append(resp.Monthly.Labels, m.Month)
		resp.Monthly.Expenses = append(resp.Monthly.Expenses, m.Expense.Float())
		resp.Monthly.Income = append(resp.Monthly.Income, m.Income.Float())
	}
	return resp
}

// getSummary returns the summary for the filter, serving from the LRU
// cache when possible.
func (s *Server) getSummary(r *http.Request, f core.Filter) (core.Summary, error) {
	key := filterKey(f)
	if sum, found := s.summaryCache.Get(key); found {
		atomic.AddInt64(&s.appMetrics.cacheHits, 1)
		return sum, nil
	}
	atomic.AddInt64(&s.appMetrics.cacheMisses, 1)

	sum, err := s.stats.Summary(r.Context(), f)
	if err != nil {
		return core.Summary{}, err
	}
	s.summaryCache.Set(key, sum)
	return sum, nil
}

// getChartData mirrors getSummary for the breakdown pair.
func (s *Server) getChartData(r *http.Request, f core.Filter) (services.ChartData, error) {
	key := filterKey(f)
	if data, found := s.chartCache.Get(key); found {
		atomic.AddInt64(&s.appMetrics.cacheHits, 1)
		return data, nil
	}
	atomic.AddInt64(&s.appMetrics.cacheMisses, 1)

	data, err := s.stats.ChartData(r.Context(), f)
	if err != nil {
		return services.ChartData{}, err
	}
	s.chartCache.Set(key, data)
	return data, nil
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	f := parseFilter(r.URL.Query())
	sum, err := s.getSummary(r, f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSummaryResponse(sum))
}

func (s *Server) handleChartData(w http.ResponseWriter, r *http.Request) {
	f := parseFilter(r.URL.Query())
	data, err := s.getChartData(r, f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toChartDataResponse(data))
}

// --- Pages and partials ---------------------------------------------------

// indexData feeds the dashboard page template: the taxonomy for the
// filter form plus the initial all-time summary.
type indexData struct {
	Categories []string
	Tags       []string
	Summary    summaryView
}

type summaryView struct {
	Income  string
	Expense string
	Net     string
	Count   int
}

func toSummaryView(sum core.Summary) summaryView {
	return summaryView{
		Income:  formatEuros(sum.Income.Cents),
		Expense: formatEuros(sum.Expense.Cents),
		Net:     formatEuros(sum.Net.Cents),
		Count:   sum.Count,
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if s.templates == nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Templates not loaded", "path", r.URL.Path)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}

	cats, err := s.taxonomy.ListCategories(r.Context())
	if err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Category list error", "error", err)
	}
	tags, err := s.taxonomy.ListTags(r.Context())
	if err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Tag list error", "error", err)
	}
	sum, err := s.getSummary(r, core.Filter{})
	if err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Summary error", "error", err)
	}

	data := indexData{
		Categories: cats,
		Tags:       tags,
		Summary:    toSummaryView(sum),
	}

	if err := s.templates.ExecuteTemplate(w, "index.html", data); err != nil {
		s.logs.LogError(r.Context(), "Index template execution failed", err,
			applog.ComponentHTTP, applog.OpRender, applog.LogFields{"template": "index.html"})
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// transactionRow is a display-ready row for the transactions table.
type transactionRow struct {
	ID          int64
	Date        string
	Description string
	Amount      string
	Kind        string
	Category    string
	Tags        []string
}

type transactionsData struct {
	Rows       []transactionRow
	Page       int
	PageCount  int
	Month      string
	HasPrev    bool
	HasNext    bool
	PrevPage   int
	NextPage   int
	Categories []string
	Tags       []string
}

func (s *Server) buildTransactionsData(r *http.Request) (transactionsData, error) {
	f := parseFilter(r.URL.Query())
	page := parsePage(r.URL.Query())

	trs, p, err := s.ledger.ListTransactions(r.Context(), f, page)
	if err != nil {
		return transactionsData{}, err
	}

	data := transactionsData{
		Page:      p.Number,
		PageCount: p.Count,
		Month:     p.Month,
		HasPrev:   p.Number > 1,
		HasNext:   p.Number < p.Count,
		PrevPage:  p.Number - 1,
		NextPage:  p.Number + 1,
	}
	for _, t := range trs {
		data.Rows = append(data.Rows, transactionRow{
			ID:          t.ID,
			Date:        t.Date.String(),
			Description: template.HTMLEscapeString(t.Description),
			Amount:      formatEuros(t.Amount.Cents),
			Kind:        string(t.Kind),
			Category:    t.Category,
			Tags:        t.Tags,
		})
	}
	return data, nil
}

func (s *Server) handleTransactionsPage(w http.ResponseWriter, r *http.Request) {
	if s.templates == nil {
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}

	data, err := s.buildTransactionsData(r)
	if err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Transaction list error", "error", err)
		http.Error(w, "could not load transactions", http.StatusInternalServerError)
		return
	}
	data.Categories, _ = s.taxonomy.ListCategories(r.Context())
	data.Tags, _ = s.taxonomy.ListTags(r.Context())

	if err := s.templates.ExecuteTemplate(w, "transactions.html", data); err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Template execution error", "error", err, "template", "transactions.html")
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// handleSummaryPartial renders the summary cards partial for HTMX
// filter refreshes.
func (s *Server) handleSummaryPartial(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	f := parseFilter(r.URL.Query())
	sum, err := s.getSummary(r, f)
	if err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Summary partial error", "error", err)
		_, _ = w.Write([]byte(`<section id="summary" class="summary"><div class="placeholder">Errore caricando il riepilogo</div></section>`))
		return
	}
	if s.templates == nil {
		_, _ = w.Write([]byte(`<section id="summary" class="summary"><div class="placeholder">Netto: ` + formatEuros(sum.Net.Cents) + `</div></section>`))
		return
	}

	if err := s.templates.ExecuteTemplate(w, "summary.html", toSummaryView(sum)); err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Template execution error", "error", err, "template", "summary.html")
		_, _ = w.Write([]byte(`<section id="summary" class="summary"><div class="placeholder">Errore rendering riepilogo</div></section>`))
	}
}

// handleTransactionsPartial renders the transaction table partial.
func (s *Server) handleTransactionsPartial(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	data, err := s.buildTransactionsData(r)
	if err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Transactions partial error", "error", err)
		_, _ = w.Write([]byte(`<div id="transactions" class="placeholder">Errore caricando i movimenti</div>`))
		return
	}
	if s.templates == nil {
		_, _ = w.Write([]byte(`<div id="transactions" class="placeholder">Nessun template</div>`))
		return
	}

	if err := s.templates.ExecuteTemplate(w, "transactions_table.html", data); err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Template execution error", "error", err, "template", "transactions_table.html")
		_, _ = w.Write([]byte(`<div id="transactions" class="placeholder">Errore rendering movimenti</div>`))
	}
}

// chartsData feeds the charts partial; the category rows double as a
// textual bar list so the page degrades without JS.
type chartsData struct {
	Rows    []chartRow
	MaxName string
	Max     string
}

type chartRow struct {
	Name    string
	Expense string
	Width   int
}

func (s *Server) handleChartsPartial(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	f := parseFilter(r.URL.Query())
	data, err := s.getChartData(r, f)
	if err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Charts partial error", "error", err)
		_, _ = w.Write([]byte(`<section id="charts" class="charts"><div class="placeholder">Errore caricando i grafici</div></section>`))
		return
	}

	var maxCents int64
	var maxName string
	for _, c := range data.Categories {
		if c.Expense.Cents > maxCents {
			maxCents = c.Expense.Cents
			maxName = c.Name
		}
	}

	view := chartsData{MaxName: maxName, Max: formatEuros(maxCents)}
	for _, c := range data.Categories {
		width := 0
		if maxCents > 0 && c.Expense.Cents > 0 {
			width = int((c.Expense.Cents*100 + maxCents/2) / maxCents) // rounded percent
			if width > 0 && width < 2 {                                // ensure visibility for very small values
				width = 2
			}
			if width > 100 {
				width = 100
			}
		}
		view.Rows = append(view.Rows, chartRow{Name: c.Name, Expense: formatEuros(c.Expense.Cents), Width: width})
	}

	if s.templates == nil {
		_, _ = w.Write([]byte(`<section id="charts" class="charts"><div class="placeholder">Nessun template</div></section>`))
		return
	}
	if err := s.templates.ExecuteTemplate(w, "charts.html", view); err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Template execution error", "error", err, "template", "charts.html")
		_, _ = w.Write([]byte(`<section id="charts" class="charts"><div class="placeholder">Errore rendering grafici</div></section>`))
	}
}
