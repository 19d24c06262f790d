package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"saldo/internal/amqp"
	"saldo/internal/log"
)

// Recomputer is the part of the report service the worker drives.
type Recomputer interface {
	Invalidate()
	Warm(ctx context.Context, accounts []string, years []int) error
}

// RecomputeWorker keeps memoized reports fresh after imports.
type RecomputeWorker struct {
	reports Recomputer
	now     func() time.Time
}

func NewRecomputeWorker(reports Recomputer) *RecomputeWorker {
	return &RecomputeWorker{reports: reports, now: time.Now}
}

// HandleDataChanged drops every memoized report and precomputes the ones
// named by msg. A message without years warms the current year.
func (w *RecomputeWorker) HandleDataChanged(ctx context.Context, msg *amqp.DataChangedMessage) error {
	slog.InfoContext(ctx, "Processing data changed message",
		log.FieldComponent, log.ComponentWorker,
		"accounts", msg.Accounts,
		"years", msg.Years,
		"published_at", msg.Timestamp)

	years := msg.Years
	if len(years) == 0 {
		years = []int{w.now().Year()}
	}

	start := w.now()
	w.reports.Invalidate()
	if err := w.reports.Warm(ctx, msg.Accounts, years); err != nil {
		return fmt.Errorf("warm reports: %w", err)
	}

	slog.InfoContext(ctx, "Reports recomputed",
		log.FieldComponent, log.ComponentWorker,
		log.FieldDuration, w.now().Sub(start).Milliseconds())
	return nil
}

// StartupWarm precomputes the current year for every account. Failures are
// logged and do not stop startup.
func (w *RecomputeWorker) StartupWarm(ctx context.Context) {
	if err := w.reports.Warm(ctx, nil, []int{w.now().Year()}); err != nil {
		slog.WarnContext(ctx, "Startup warm failed",
			log.FieldComponent, log.ComponentWorker,
			log.FieldError, err)
	}
}

// RunPeriodicRefresh invalidates and rewarms on every tick until ctx is
// done. It covers sources edited outside saldo, which publish no messages.
func (w *RecomputeWorker) RunPeriodicRefresh(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			msg := &amqp.DataChangedMessage{Timestamp: w.now()}
			if err := w.HandleDataChanged(ctx, msg); err != nil {
				slog.ErrorContext(ctx, "Periodic refresh failed",
					log.FieldComponent, log.ComponentWorker,
					log.FieldError, err)
			}
		}
	}
}
