package http

import (
	"context"
	"net/http"
	"time"

	"saldo/internal/log"
)

func handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(map[string]string{"status": "ok"}).Write(w)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.pinger.Ping(ctx); err != nil {
			s.logger.WarnContext(r.Context(), "Readiness check failed", log.FieldError, err)
			ServiceUnavailableError("backend not ready").Write(w)
			return
		}
	}
	NewJSONResponse().Body(map[string]string{"status": "ready"}).Write(w)
}

func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	q, err := ParseLedgerQuery(r.URL.Query(), s.now())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	rep, err := s.reports.AccountLedger(r.Context(), q)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	NewJSONResponse().Body(rep).Write(w)
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	q, err := ParseCategoryQuery(r.URL.Query())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.reports.CategoryBreakdown(r.Context(), q)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	NewJSONResponse().Body(res).Write(w)
}

func (s *Server) handleAccountSummary(w http.ResponseWriter, r *http.Request) {
	q, err := ParseSummaryQuery(r.URL.Query())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	groups, err := s.reports.AccountSummary(r.Context(), q)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	NewJSONResponse().Body(map[string]any{"groups": groups}).Write(w)
}

func (s *Server) handleCategorySummary(w http.ResponseWriter, r *http.Request) {
	q, err := ParseSummaryQuery(r.URL.Query())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	groups, err := s.reports.CategorySummary(r.Context(), q)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	NewJSONResponse().Body(map[string]any{"groups": groups}).Write(w)
}

func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.reports.Accounts(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	NewJSONResponse().Body(map[string]any{"accounts": accounts}).Write(w)
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(map[string]any{
		"caches":     s.reports.Stats(),
		"requests":   s.tracer.GetMetrics(),
		"rate_limit": s.limiter.GetMetrics(),
		"security":   s.detector.GetMetrics(),
	}).Write(w)
}

func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	s.reports.Invalidate()
	s.logger.InfoContext(r.Context(), "Report caches invalidated", log.FieldOperation, "invalidate")
	NewJSONResponse().Body(map[string]bool{"invalidated": true}).Write(w)
}

// fail logs server-side failures and writes the mapped error response.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	if status := StatusForError(err); status >= http.StatusInternalServerError {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
			log.FieldPath, r.URL.Path,
			log.FieldStatusCode, status,
			log.FieldError, err)
	}
	ErrorFor(err).Write(w)
}
