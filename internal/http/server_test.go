package http

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"moneta/internal/config"
	"moneta/internal/services"
	"moneta/internal/storage"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	// A limit high enough that tests hammering mutation endpoints never
	// trip it.
	return newTestServerWithConfig(t, &config.Config{MutationRateLimit: 1000})
}

func newTestServerWithConfig(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	store, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	ledger := services.NewLedgerService(store, nil)
	taxonomy := services.NewTaxonomyService(store)
	stats := services.NewStatsService(store)
	importer := services.NewImporter(ledger)

	srv := NewServer(":0", cfg, ledger, taxonomy, stats, importer)
	t.Cleanup(func() {
		srv.Shutdown(context.Background())
		store.Close()
	})
	return srv
}

func doJSON(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func createTransaction(t *testing.T, srv *Server, body string) transactionResponse {
	t.Helper()
	rr := doJSON(t, srv, http.MethodPost, "/api/transactions", body)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rr.Code, rr.Body.String())
	}
	var resp transactionResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	return resp
}

func TestIndexAndOpsEndpoints(t *testing.T) {
	srv := newTestServer(t)

	rr := doJSON(t, srv, http.MethodGet, "/", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("index status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "moneta") {
		t.Fatal("index body missing heading")
	}

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		rr := doJSON(t, srv, http.MethodGet, path, "")
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status = %d", path, rr.Code)
		}
	}

	rr = doJSON(t, srv, http.MethodGet, "/metrics", "")
	if !strings.Contains(rr.Body.String(), "http_requests_total") {
		t.Fatalf("metrics body missing counters: %s", rr.Body.String())
	}
}

func TestTransactionAPILifecycle(t *testing.T) {
	srv := newTestServer(t)

	created := createTransaction(t, srv,
		`{"date":"2025-03-15","description":"groceries","amount":"42.50","kind":"expense","category":"food","tags":["weekly"]}`)
	if created.Amount != "42.50" {
		t.Fatalf("amount = %q, want decimal string 42.50", created.Amount)
	}
	if created.Category != "food" || len(created.Tags) != 1 {
		t.Fatalf("created = %+v", created)
	}

	rr := doJSON(t, srv, http.MethodGet, "/api/transactions/1", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("get status = %d", rr.Code)
	}

	rr = doJSON(t, srv, http.MethodPut, "/api/transactions/1",
		`{"date":"2025-03-15","description":"supermarket","amount":"50.00","kind":"expense","category":"food","tags":[]}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("update status = %d: %s", rr.Code, rr.Body.String())
	}
	var updated transactionResponse
	json.Unmarshal(rr.Body.Bytes(), &updated)
	if updated.Description != "supermarket" || updated.Amount != "50.00" {
		t.Fatalf("updated = %+v", updated)
	}
	if updated.Tags == nil || len(updated.Tags) != 0 {
		t.Fatalf("tags = %#v, want empty non-null array", updated.Tags)
	}

	rr = doJSON(t, srv, http.MethodDelete, "/api/transactions/1", "")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rr.Code)
	}
	rr = doJSON(t, srv, http.MethodGet, "/api/transactions/1", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("get after delete = %d, want 404", rr.Code)
	}
}

func TestTransactionAPIErrors(t *testing.T) {
	srv := newTestServer(t)

	cases := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"malformed body", http.MethodPost, "/api/transactions", `{"date":`, 400},
		{"bad amount", http.MethodPost, "/api/transactions", `{"date":"2025-03-15","description":"x","amount":"-1.00","kind":"expense"}`, 400},
		{"bad kind", http.MethodPost, "/api/transactions", `{"date":"2025-03-15","description":"x","amount":"1.00","kind":"transfer"}`, 400},
		{"unknown id", http.MethodGet, "/api/transactions/999", "", 404},
		{"non-numeric id", http.MethodGet, "/api/transactions/abc", "", 400},
		{"delete unknown", http.MethodDelete, "/api/transactions/999", "", 404},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := doJSON(t, srv, tc.method, tc.path, tc.body)
			if rr.Code != tc.want {
				t.Fatalf("status = %d, want %d: %s", rr.Code, tc.want, rr.Body.String())
			}
		})
	}
}

func TestListTransactionsWithFilter(t *testing.T) {
	srv := newTestServer(t)

	createTransaction(t, srv, `{"date":"2025-03-01","description":"rent","amount":"900.00","kind":"expense","category":"housing"}`)
	createTransaction(t, srv, `{"date":"2025-03-02","description":"pizza","amount":"15.00","kind":"expense","category":"food","tags":["eating-out"]}`)
	createTransaction(t, srv, `{"date":"2025-02-20","description":"old rent","amount":"900.00","kind":"expense","category":"housing"}`)

	rr := doJSON(t, srv, http.MethodGet, "/api/transactions?categories=food", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("list status = %d", rr.Code)
	}
	var list listTransactionsResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Transactions) != 1 || list.Transactions[0].Description != "pizza" {
		t.Fatalf("filtered list = %+v", list.Transactions)
	}

	// Month pagination: page 1 is the newest matching month.
	rr = doJSON(t, srv, http.MethodGet, "/api/transactions?categories=housing&page=2", "")
	json.Unmarshal(rr.Body.Bytes(), &list)
	if list.Page.Number != 2 || list.Page.Count != 2 || list.Page.Month != "2025-02" {
		t.Fatalf("page = %+v", list.Page)
	}
	if len(list.Transactions) != 1 || list.Transactions[0].Description != "old rent" {
		t.Fatalf("page 2 rows = %+v", list.Transactions)
	}
}

func TestCategoryEndpoints(t *testing.T) {
	srv := newTestServer(t)

	rr := doJSON(t, srv, http.MethodPost, "/api/categories", `{"name":"Subscriptions"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("add status = %d: %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), `"subscriptions"`) {
		t.Fatalf("add body = %s, want normalized name", rr.Body.String())
	}
	rr = doJSON(t, srv, http.MethodPost, "/api/categories", `{"name":"subscriptions"}`)
	if rr.Code != http.StatusConflict {
		t.Fatalf("duplicate add = %d, want 409", rr.Code)
	}

	rr = doJSON(t, srv, http.MethodGet, "/api/categories", "")
	var listing map[string][]string
	json.Unmarshal(rr.Body.Bytes(), &listing)
	found := false
	for _, c := range listing["categories"] {
		if c == "subscriptions" {
			found = true
		}
	}
	if !found {
		t.Fatalf("categories = %v", listing["categories"])
	}

	// Rename to a free name succeeds.
	rr = doJSON(t, srv, http.MethodPut, "/api/categories/subscriptions", `{"name":"abbonamenti"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("rename status = %d: %s", rr.Code, rr.Body.String())
	}

	// Rename onto an existing name is the merge decision point.
	rr = doJSON(t, srv, http.MethodPut, "/api/categories/abbonamenti", `{"name":"food"}`)
	if rr.Code != http.StatusConflict {
		t.Fatalf("conflicting rename = %d, want 409", rr.Code)
	}
	var renameResp renameResponse
	json.Unmarshal(rr.Body.Bytes(), &renameResp)
	if !renameResp.Conflict {
		t.Fatalf("rename body = %s, want conflict flag", rr.Body.String())
	}

	// The explicit merge resolves it.
	rr = doJSON(t, srv, http.MethodPost, "/api/categories/abbonamenti/merge", `{"target":"food"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("merge status = %d: %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), `"merged_into":"food"`) {
		t.Fatalf("merge body = %s", rr.Body.String())
	}

	rr = doJSON(t, srv, http.MethodDelete, "/api/categories/food", "")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rr.Code)
	}
	rr = doJSON(t, srv, http.MethodDelete, "/api/categories/food", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("second delete = %d, want 404", rr.Code)
	}
}

func TestTagEndpoints(t *testing.T) {
	srv := newTestServer(t)

	// Tags exist only through use.
	createTransaction(t, srv, `{"date":"2025-03-01","description":"pizza","amount":"15.00","kind":"expense","tags":["resto","friday"]}`)
	createTransaction(t, srv, `{"date":"2025-03-02","description":"sushi","amount":"30.00","kind":"expense","tags":["eating-out"]}`)

	rr := doJSON(t, srv, http.MethodGet, "/api/tags", "")
	var listing map[string][]string
	json.Unmarshal(rr.Body.Bytes(), &listing)
	if len(listing["tags"]) != 3 {
		t.Fatalf("tags = %v", listing["tags"])
	}

	rr = doJSON(t, srv, http.MethodPut, "/api/tags/resto", `{"name":"eating-out"}`)
	if rr.Code != http.StatusConflict {
		t.Fatalf("conflicting rename = %d, want 409", rr.Code)
	}

	rr = doJSON(t, srv, http.MethodPost, "/api/tags/resto/merge", `{"target":"eating-out"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("merge status = %d: %s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, srv, http.MethodDelete, "/api/tags/friday", "")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rr.Code)
	}

	rr = doJSON(t, srv, http.MethodGet, "/api/tags", "")
	json.Unmarshal(rr.Body.Bytes(), &listing)
	if len(listing["tags"]) != 1 || listing["tags"][0] != "eating-out" {
		t.Fatalf("tags after cleanup = %v", listing["tags"])
	}
}

func TestSummaryAndChartDataEndpoints(t *testing.T) {
	srv := newTestServer(t)

	createTransaction(t, srv, `{"date":"2025-03-01","description":"salary","amount":"2500.00","kind":"income","category":"salary"}`)
	createTransaction(t, srv, `{"date":"2025-03-02","description":"rent","amount":"900.00","kind":"expense","category":"housing"}`)

	rr := doJSON(t, srv, http.MethodGet, "/api/summary", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("summary status = %d", rr.Code)
	}
	var sum summaryResponse
	json.Unmarshal(rr.Body.Bytes(), &sum)
	if sum.Income != "2500.00" || sum.Expense != "900.00" || sum.Net != "1600.00" || sum.Count != 2 {
		t.Fatalf("summary = %+v", sum)
	}

	rr = doJSON(t, srv, http.MethodGet, "/api/chart-data", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("chart-data status = %d", rr.Code)
	}
	var chart chartDataResponse
	json.Unmarshal(rr.Body.Bytes(), &chart)
	if len(chart.Categories.Labels) != 2 || len(chart.Monthly.Labels) != 1 {
		t.Fatalf("chart = %+v", chart)
	}
	if chart.Monthly.Labels[0] != "2025-03" {
		t.Fatalf("monthly labels = %v", chart.Monthly.Labels)
	}
}

func TestSummaryCacheInvalidation(t *testing.T) {
	srv := newTestServer(t)

	createTransaction(t, srv, `{"date":"2025-03-01","description":"rent","amount":"900.00","kind":"expense","category":"housing"}`)

	var sum summaryResponse
	rr := doJSON(t, srv, http.MethodGet, "/api/summary", "")
	json.Unmarshal(rr.Body.Bytes(), &sum)
	if sum.Count != 1 {
		t.Fatalf("summary count = %d", sum.Count)
	}

	// A second read hits the cache, a mutation must drop it.
	doJSON(t, srv, http.MethodGet, "/api/summary", "")
	createTransaction(t, srv, `{"date":"2025-03-02","description":"pizza","amount":"15.00","kind":"expense","category":"food"}`)

	rr = doJSON(t, srv, http.MethodGet, "/api/summary", "")
	json.Unmarshal(rr.Body.Bytes(), &sum)
	if sum.Count != 2 {
		t.Fatalf("summary count after mutation = %d, want 2", sum.Count)
	}
}

func TestImportEndpoint(t *testing.T) {
	srv := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "batch.csv")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	fw.Write([]byte("date,description,amount\n2025-03-01,groceries,-42.50\nbad-date,x,-1.00\n2025-03-03,salary,2500.00\n"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/import", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("import status = %d: %s", rr.Code, rr.Body.String())
	}
	var res services.ImportResult
	if err := json.Unmarshal(rr.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode import result: %v", err)
	}
	if res.Imported != 2 || len(res.Errors) != 1 {
		t.Fatalf("result = %+v, want 2 imported and 1 error", res)
	}
	if !strings.HasPrefix(res.Errors[0], "row 2:") {
		t.Fatalf("error = %q", res.Errors[0])
	}

	rr = doJSON(t, srv, http.MethodGet, "/api/summary", "")
	var sum summaryResponse
	json.Unmarshal(rr.Body.Bytes(), &sum)
	if sum.Count != 2 {
		t.Fatalf("summary count = %d, want imported rows visible", sum.Count)
	}
}

func TestImportEndpointRejectsMissingFile(t *testing.T) {
	srv := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("note", "no file here")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/import", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestCreateTransactionForm(t *testing.T) {
	srv := newTestServer(t)

	form := "description=pizza&amount=15,00&kind=expense&category=food&tags=resto,friday&date=2025-03-01"
	req := httptest.NewRequest(http.MethodPost, "/transactions", strings.NewReader(form))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "Registrato") {
		t.Fatalf("body = %s", rr.Body.String())
	}
	trigger := rr.Header().Get("HX-Trigger")
	if !strings.Contains(trigger, "transaction:created") || !strings.Contains(trigger, "2025-03") {
		t.Fatalf("HX-Trigger = %q", trigger)
	}

	// Invalid amount renders an inline error, not a JSON error.
	req = httptest.NewRequest(http.MethodPost, "/transactions", strings.NewReader("description=x&amount=abc"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("invalid amount status = %d, want 422", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `class="error"`) {
		t.Fatalf("body = %s", rr.Body.String())
	}
}

func TestPartialsRender(t *testing.T) {
	srv := newTestServer(t)
	createTransaction(t, srv, `{"date":"2025-03-01","description":"rent","amount":"900.00","kind":"expense","category":"housing"}`)

	for _, path := range []string{"/ui/summary", "/ui/transactions", "/ui/chart-data", "/transactions"} {
		rr := doJSON(t, srv, http.MethodGet, path, "")
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status = %d: %s", path, rr.Code, rr.Body.String())
		}
		if rr.Body.Len() == 0 {
			t.Fatalf("%s rendered empty body", path)
		}
	}
}

func TestSuspiciousRequestBlocked(t *testing.T) {
	srv := newTestServer(t)

	rr := doJSON(t, srv, http.MethodGet, "/.env", "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want suspicious request blocked with 400", rr.Code)
	}
}

func TestSecurityHeadersPresent(t *testing.T) {
	srv := newTestServer(t)

	rr := doJSON(t, srv, http.MethodGet, "/healthz", "")
	if rr.Header().Get("X-Content-Type-Options") == "" {
		t.Fatal("security headers missing")
	}
}

func TestMutationRateLimitFromConfig(t *testing.T) {
	srv := newTestServerWithConfig(t, &config.Config{MutationRateLimit: 2})

	body := `{"date":"2025-03-01","description":"coffee","amount":"2.50","kind":"expense"}`
	for i := 0; i < 2; i++ {
		rr := doJSON(t, srv, http.MethodPost, "/api/transactions", body)
		if rr.Code != http.StatusCreated {
			t.Fatalf("request %d: status = %d, want 201", i+1, rr.Code)
		}
	}

	rr := doJSON(t, srv, http.MethodPost, "/api/transactions", body)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429 once the limit is reached", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Fatal("Retry-After header missing on 429")
	}

	// Reads stay unthrottled.
	rr = doJSON(t, srv, http.MethodGet, "/api/transactions", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("GET status = %d, want reads unaffected by the limiter", rr.Code)
	}
}
