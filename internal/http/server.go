package http

import (
	"context"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"moneta/internal/cache"
	"moneta/internal/config"
	"moneta/internal/core"
	applog "moneta/internal/log"
	"moneta/internal/middleware/ratelimit"
	"moneta/internal/middleware/security"
	"moneta/internal/middleware/trace"
	"moneta/internal/services"
	appweb "moneta/web"
)

// appMetrics tracks application-level counters exposed on /metrics.
type appMetrics struct {
	uptime            time.Time
	totalTransactions int64
	totalImportedRows int64
	cacheHits         int64
	cacheMisses       int64
}

type Server struct {
	http.Server

	ledger   *services.LedgerService
	taxonomy *services.TaxonomyService
	stats    *services.StatsService
	importer *services.Importer

	templates *template.Template

	// Aggregates are cached per filter key and dropped wholesale on any
	// mutation, so a stale summary can never outlive the write that
	// invalidated it.
	summaryCache *cache.LRUCache[core.Summary]
	chartCache   *cache.LRUCache[services.ChartData]
	cacheManager *cache.Manager

	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	headers          *security.HeadersMiddleware
	traceMiddleware  *trace.Middleware
	logs             *applog.StructuredLogger

	appMetrics   *appMetrics
	shutdownOnce sync.Once
}

// NewServer configures routes, middleware and templates, returning a
// ready-to-run http.Server. The config supplies the HTTP hardening
// knobs; a nil config falls back to the environment.
func NewServer(addr string, cfg *config.Config, ledger *services.LedgerService, taxonomy *services.TaxonomyService, stats *services.StatsService, importer *services.Importer) *Server {
	if cfg == nil {
		cfg = config.Load()
	}
	mux := http.NewServeMux()

	httpLogger := applog.New(applog.Config{
		Level:     slog.LevelInfo,
		Component: applog.ComponentHTTP,
	})

	s := &Server{
		ledger:       ledger,
		taxonomy:     taxonomy,
		stats:        stats,
		importer:     importer,
		summaryCache: cache.NewLRUCache[core.Summary](100, 5*time.Minute),
		chartCache:   cache.NewLRUCache[services.ChartData](100, 5*time.Minute),
		cacheManager: cache.NewManager(),
		rateLimiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: cfg.MutationRateLimit,
		}),
		securityDetector: security.NewDetector(),
		headers:          security.NewHeadersMiddleware(security.DefaultHeadersConfig()),
		logs:             applog.NewStructuredLogger(httpLogger),
		appMetrics:       &appMetrics{uptime: time.Now()},
	}
	s.traceMiddleware = trace.NewMiddleware(s.securityDetector.ExtractClientIP, httpLogger)

	s.cacheManager.Register(s.summaryCache)
	s.cacheManager.Register(s.chartCache)
	s.cacheManager.StartCleanup(10 * time.Minute)

	// Parse embedded templates at startup.
	t, err := template.ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		slog.Warn("Failed parsing templates", "error", err)
	}
	s.templates = t

	// Static assets (served from embedded FS)
	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", security.StaticAssetMiddleware(3600)(static))
	} else {
		slog.Warn("Failed to mount embedded static FS", "error", err)
	}

	// Pages
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /transactions", s.handleTransactionsPage)
	mux.HandleFunc("POST /transactions", s.handleCreateTransactionForm)

	// HTMX partials
	mux.HandleFunc("GET /ui/summary", s.handleSummaryPartial)
	mux.HandleFunc("GET /ui/transactions", s.handleTransactionsPartial)
	mux.HandleFunc("GET /ui/chart-data", s.handleChartsPartial)

	// JSON API
	mux.HandleFunc("GET /api/transactions", s.handleListTransactions)
	mux.HandleFunc("POST /api/transactions", s.handleCreateTransaction)
	mux.HandleFunc("GET /api/transactions/{id}", s.handleGetTransaction)
	mux.HandleFunc("PUT /api/transactions/{id}", s.handleUpdateTransaction)
	mux.HandleFunc("DELETE /api/transactions/{id}", s.handleDeleteTransaction)

	mux.HandleFunc("GET /api/categories", s.handleListCategories)
	mux.HandleFunc("POST /api/categories", s.handleAddCategory)
	mux.HandleFunc("PUT /api/categories/{name}", s.handleRenameCategory)
	mux.HandleFunc("POST /api/categories/{name}/merge", s.handleMergeCategories)
	mux.HandleFunc("DELETE /api/categories/{name}", s.handleDeleteCategory)

	// Tags have no create endpoint: they come into existence when a
	// transaction first uses them and disappear when orphaned.
	mux.HandleFunc("GET /api/tags", s.handleListTags)
	mux.HandleFunc("PUT /api/tags/{name}", s.handleRenameTag)
	mux.HandleFunc("POST /api/tags/{name}/merge", s.handleMergeTags)
	mux.HandleFunc("DELETE /api/tags/{name}", s.handleDeleteTag)

	mux.HandleFunc("GET /api/summary", s.handleSummary)
	mux.HandleFunc("GET /api/chart-data", s.handleChartData)
	mux.HandleFunc("POST /api/import", s.handleImport)

	// Operational endpoints stay outside the middleware chain so probes
	// are never rate limited.
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	// Trace first so every request carries an id, then the context
	// logger, then headers and the rejection filters.
	handler := s.traceMiddleware.Middleware(
		applog.Middleware(httpLogger)(
			applog.RequestIDMiddleware(requestIDOf)(
				s.headers.Middleware(
					s.withSecurity(
						s.withMutationRateLimit(mux))))))

	s.Server = http.Server{
		Addr:    addr,
		Handler: handler,
	}
	return s
}

// requestIDOf adapts the trace context lookup for the logger chain.
func requestIDOf(r *http.Request) string {
	return trace.GetRequestID(r.Context())
}

// withSecurity rejects requests that match the suspicious-request
// heuristics before they reach any handler.
func (s *Server) withSecurity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.securityDetector.DetectSuspiciousRequest(r) {
			applog.FromContext(r.Context()).WarnContext(r.Context(), "Suspicious request blocked",
				applog.FieldMethod, r.Method,
				applog.FieldPath, r.URL.Path,
				applog.FieldClientIP, s.securityDetector.ExtractClientIP(r))
			http.Error(w, "Bad request", http.StatusBadRequest)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withMutationRateLimit applies per-IP rate limiting to mutating methods
// only; reads and partial refreshes stay unthrottled.
func (s *Server) withMutationRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost, http.MethodPut, http.MethodDelete:
			clientIP := s.securityDetector.ExtractClientIP(r)
			if !s.rateLimiter.Allow(clientIP) {
				applog.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
					applog.FieldClientIP, clientIP,
					applog.FieldMethod, r.Method,
					applog.FieldPath, r.URL.Path)
				w.Header().Set("Retry-After", "60")
				http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// invalidateAggregates drops both aggregate caches. Called after every
// committed mutation.
func (s *Server) invalidateAggregates() {
	s.summaryCache.Clear()
	s.chartCache.Clear()
}

// Shutdown gracefully shuts down the server and cleanup routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}
