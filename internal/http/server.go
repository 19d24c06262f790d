// Package http serves the report engines as a JSON API.
package http

import (
	"context"
	"net/http"
	"time"

	"saldo/internal/cache"
	"saldo/internal/ledger"
	"saldo/internal/log"
	"saldo/internal/middleware/ratelimit"
	"saldo/internal/middleware/security"
	"saldo/internal/middleware/trace"
	"saldo/internal/report"
	"saldo/internal/rollup"
)

// Reports is the subset of report.Service the handlers use.
type Reports interface {
	AccountLedger(ctx context.Context, q report.LedgerQuery) (ledger.Report, error)
	CategoryBreakdown(ctx context.Context, q report.CategoryQuery) (rollup.Result, error)
	AccountSummary(ctx context.Context, q report.SummaryQuery) ([]rollup.Group, error)
	CategorySummary(ctx context.Context, q report.SummaryQuery) ([]rollup.Group, error)
	Accounts(ctx context.Context) ([]string, error)
	Invalidate()
	Stats() map[string]cache.Stats
}

// Pinger reports whether the data backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options tunes the server middleware.
type Options struct {
	RequestsPerMinute int
	// Pinger backs /readyz. Nil means always ready.
	Pinger Pinger
	Logger *log.Logger
	// Now is the clock used for default periods.
	Now func() time.Time
}

type Server struct {
	http.Server
	reports  Reports
	pinger   Pinger
	logger   *log.Logger
	now      func() time.Time
	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware
}

func NewServer(addr string, reports Reports, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentHTTP)
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &Server{
		reports:  reports,
		pinger:   opts.Pinger,
		logger:   logger,
		now:      opts.Now,
		limiter:  ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RequestsPerMinute}),
		detector: security.NewDetector(),
	}
	s.tracer = trace.NewMiddleware(s.detector.ExtractClientIP, log.NewStructuredLogger(logger))

	api := http.NewServeMux()
	api.HandleFunc("GET /api/ledger", s.handleLedger)
	api.HandleFunc("GET /api/categories", s.handleCategories)
	api.HandleFunc("GET /api/summary/accounts", s.handleAccountSummary)
	api.HandleFunc("GET /api/summary/categories", s.handleCategorySummary)
	api.HandleFunc("GET /api/accounts", s.handleAccounts)
	api.HandleFunc("GET /api/cache/stats", s.handleCacheStats)
	api.HandleFunc("POST /api/cache/invalidate", s.handleInvalidate)

	onLimit := func(w http.ResponseWriter, r *http.Request) {
		s.logger.WarnContext(r.Context(), "Rate limit exceeded",
			log.FieldClientIP, s.detector.ExtractClientIP(r),
			log.FieldPath, r.URL.Path)
		TooManyRequestsError().Write(w)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("/api/", s.limiter.Middleware(s.detector.ExtractClientIP, onLimit)(api))

	var handler http.Handler = mux
	handler = s.detector.Middleware(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = log.RequestIDMiddleware(trace.RequestID)(handler)
	handler = log.Middleware(logger)(handler)
	handler = s.tracer.Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Shutdown stops accepting requests, waits for in-flight ones and releases
// the rate limiter.
func (s *Server) Shutdown(ctx context.Context) error {
	defer s.limiter.Stop()
	s.logger.InfoContext(ctx, "Shutting down HTTP server", log.FieldOperation, log.OpShutdown)
	return s.Server.Shutdown(ctx)
}
