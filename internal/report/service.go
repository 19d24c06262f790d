// Package report runs the ledger and rollup engines over a snapshot of the
// configured source and memoizes their results.
//
// Results are cached under a key hashed from the snapshot fingerprint and
// the query parameters, so a changed snapshot never serves a stale result.
// The snapshot itself is cached until its TTL expires or Invalidate is
// called. Concurrent identical computations are collapsed into one.
package report

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"saldo/internal/cache"
	"saldo/internal/core"
	"saldo/internal/ledger"
	"saldo/internal/log"
	"saldo/internal/rollup"
	"saldo/internal/source"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

var (
	ErrInvalidQuery      = errors.New("invalid query")
	ErrSourceUnavailable = errors.New("source unavailable")
)

const snapshotKey = "snapshot"

// Options tunes caching and defaults.
type Options struct {
	CacheSize int
	CacheTTL  time.Duration
	// Threshold is used when a category query does not set one. Zero
	// selects rollup.DefaultThreshold.
	Threshold float64
	Logger    *log.Logger
}

type snapshot struct {
	source.Snapshot
	fingerprint uint64
	entries     []ledger.Entry
}

// Service is safe for concurrent use. Returned reports are shared with the
// cache and must not be modified.
type Service struct {
	src       source.Source
	threshold float64
	logger    *log.StructuredLogger

	snapshots *cache.LRUCache[*snapshot]
	ledgers   *cache.LRUCache[ledger.Report]
	rollups   *cache.LRUCache[rollup.Result]
	groups    *cache.LRUCache[[]rollup.Group]
	flight    singleflight.Group
	// generation advances on Invalidate. A fetch started under an older
	// generation is returned to its callers but never cached.
	generation atomic.Uint64
}

func NewService(src source.Source, opts Options) *Service {
	if opts.CacheSize <= 0 {
		opts.CacheSize = 256
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Minute
	}
	if opts.Threshold <= 0 {
		opts.Threshold = rollup.DefaultThreshold
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &Service{
		src:       src,
		threshold: opts.Threshold,
		logger:    log.NewStructuredLogger(logger.WithComponent(log.ComponentReport)),
		snapshots: cache.NewLRUCache[*snapshot](1, opts.CacheTTL),
		ledgers:   cache.NewLRUCache[ledger.Report](opts.CacheSize, opts.CacheTTL),
		rollups:   cache.NewLRUCache[rollup.Result](opts.CacheSize, opts.CacheTTL),
		groups:    cache.NewLRUCache[[]rollup.Group](opts.CacheSize, opts.CacheTTL),
	}
}

// Caches returns the service caches for registration with a cache.Manager.
func (s *Service) Caches() []cache.Cleaner {
	return []cache.Cleaner{s.snapshots, s.ledgers, s.rollups, s.groups}
}

// Threshold returns the default category threshold.
func (s *Service) Threshold() float64 { return s.threshold }

// Invalidate drops the cached snapshot and every memoized result. A fetch
// already in flight is detached so later callers fetch again.
func (s *Service) Invalidate() {
	s.generation.Add(1)
	s.flight.Forget(snapshotKey)
	s.snapshots.Purge()
	s.ledgers.Purge()
	s.rollups.Purge()
	s.groups.Purge()
}

// Stats reports result cache usage.
func (s *Service) Stats() map[string]cache.Stats {
	return map[string]cache.Stats{
		"snapshot": s.snapshots.Stats(),
		"ledger":   s.ledgers.Stats(),
		"category": s.rollups.Stats(),
		"summary":  s.groups.Stats(),
	}
}

// LedgerQuery selects one account over one period. Fill expands the daily
// series to one point per day.
type LedgerQuery struct {
	Account string
	Period  ledger.Period
	Fill    bool
}

// AccountLedger reconstructs the account's balance history for the period.
// An unknown or empty account yields an empty report with a nil summary.
func (s *Service) AccountLedger(ctx context.Context, q LedgerQuery) (ledger.Report, error) {
	if err := q.Period.Validate(); err != nil {
		return ledger.Report{}, fmt.Errorf("%w: %w", ErrInvalidQuery, err)
	}
	q.Account = strings.TrimSpace(q.Account)

	snap, err := s.snapshot(ctx)
	if err != nil {
		return ledger.Report{}, err
	}
	key := resultKey("ledger", snap.fingerprint, q.Account, q.Period.Start.String(), q.Period.End.String(), q.Fill)

	fields := log.NewFields().WithPeriod(q.Account, q.Period.Start.String(), q.Period.End.String())

	return memoize(ctx, s, s.ledgers, "ledger", key, fields, func() ledger.Report {
		rep := ledger.Reconstruct(snap.entries, q.Account, snap.Anchors, q.Period)
		if q.Fill && rep.Summary != nil {
			rep.Daily = ledger.FillDaily(rep.Daily, q.Period, rep.Summary.OpeningBalance)
		}
		return rep
	})
}

// CategoryQuery filters transactions by type and, when Year is non-zero,
// by calendar year. A negative Threshold selects the service default.
type CategoryQuery struct {
	Year      int
	Type      core.TransactionType
	Threshold float64
}

func (q *CategoryQuery) normalize(def float64) error {
	if q.Type == "" {
		q.Type = core.Expense
	}
	if err := q.Type.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidQuery, err)
	}
	if q.Year < 0 {
		return fmt.Errorf("%w: year %d", ErrInvalidQuery, q.Year)
	}
	if q.Threshold < 0 {
		q.Threshold = def
	}
	if math.IsNaN(q.Threshold) || q.Threshold > 100 {
		return fmt.Errorf("%w: threshold %g not in [0, 100]", ErrInvalidQuery, q.Threshold)
	}
	return nil
}

// CategoryBreakdown builds the category rollup of the selected transactions
// against their own grand total.
func (s *Service) CategoryBreakdown(ctx context.Context, q CategoryQuery) (rollup.Result, error) {
	if err := q.normalize(s.threshold); err != nil {
		return rollup.Result{}, err
	}
	snap, err := s.snapshot(ctx)
	if err != nil {
		return rollup.Result{}, err
	}
	key := resultKey("category", snap.fingerprint, q.Year, string(q.Type), q.Threshold)

	fields := log.NewFields().WithYear(q.Year)
	fields[log.FieldThreshold] = q.Threshold

	return memoize(ctx, s, s.rollups, "category", key, fields, func() rollup.Result {
		txs := filterTransactions(snap.Transactions, q.Year, q.Type)
		return rollup.Build(txs, rollup.GrandTotal(txs), q.Threshold)
	})
}

// SummaryQuery selects transactions like CategoryQuery and caps the result
// at Limit groups plus Other. A Limit of zero keeps every group.
type SummaryQuery struct {
	Year  int
	Type  core.TransactionType
	Limit int
}

func (q *SummaryQuery) normalize() error {
	cq := CategoryQuery{Year: q.Year, Type: q.Type}
	if err := cq.normalize(0); err != nil {
		return err
	}
	q.Type = cq.Type
	if q.Limit < 0 {
		return fmt.Errorf("%w: limit %d", ErrInvalidQuery, q.Limit)
	}
	return nil
}

// AccountSummary groups the selected transactions by account.
func (s *Service) AccountSummary(ctx context.Context, q SummaryQuery) ([]rollup.Group, error) {
	return s.summary(ctx, "accounts", q, func(tx core.Transaction) string { return tx.Account })
}

// CategorySummary groups the selected transactions by primary category.
func (s *Service) CategorySummary(ctx context.Context, q SummaryQuery) ([]rollup.Group, error) {
	return s.summary(ctx, "categories", q, func(tx core.Transaction) string { return tx.Category.Primary })
}

func (s *Service) summary(ctx context.Context, kind string, q SummaryQuery, key func(core.Transaction) string) ([]rollup.Group, error) {
	if err := q.normalize(); err != nil {
		return nil, err
	}
	snap, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	ck := resultKey("summary", snap.fingerprint, kind, q.Year, string(q.Type), q.Limit)

	return memoize(ctx, s, s.groups, "summary:"+kind, ck, log.NewFields().WithYear(q.Year), func() []rollup.Group {
		txs := filterTransactions(snap.Transactions, q.Year, q.Type)
		return rollup.GroupTopN(txs, key, amountOf, rollup.GrandTotal(txs), q.Limit)
	})
}

// Accounts lists every account named by a transaction, transfer leg or
// anchor, sorted.
func (s *Service) Accounts(ctx context.Context) ([]string, error) {
	snap, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	for _, tx := range snap.Transactions {
		seen[tx.Account] = struct{}{}
	}
	for _, tr := range snap.Transfers {
		seen[tr.Route.Source] = struct{}{}
		seen[tr.Route.Destination] = struct{}{}
	}
	for _, a := range snap.Anchors {
		seen[a.Account] = struct{}{}
	}
	delete(seen, "")

	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	slices.Sort(out)
	return out, nil
}

// snapshot returns the cached snapshot or fetches a new one. Concurrent
// misses share one fetch.
func (s *Service) snapshot(ctx context.Context) (*snapshot, error) {
	if snap, ok := s.snapshots.Get(snapshotKey); ok {
		return snap, nil
	}
	gen := s.generation.Load()
	v, err, _ := s.flight.Do(snapshotKey, func() (any, error) {
		raw, err := source.Fetch(ctx, s.src)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
		}
		snap := &snapshot{
			Snapshot:    raw,
			fingerprint: fingerprint(raw),
			entries:     ledger.Normalize(raw.Transactions, raw.Transfers),
		}
		if s.generation.Load() == gen {
			s.snapshots.Set(snapshotKey, snap)
		}
		return snap, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*snapshot), nil
}

func memoize[T any](ctx context.Context, s *Service, c *cache.LRUCache[T], kind, key string, fields log.LogFields, compute func() T) (T, error) {
	start := time.Now()
	if v, ok := c.Get(key); ok {
		s.logger.LogReportComputed(ctx, kind, key, true, time.Since(start).Milliseconds(), fields)
		return v, nil
	}
	v, err, _ := s.flight.Do(key, func() (any, error) {
		out := compute()
		c.Set(key, out)
		return out, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	s.logger.LogReportComputed(ctx, kind, key, false, time.Since(start).Milliseconds(), fields)
	return v.(T), nil
}

func filterTransactions(txs []core.Transaction, year int, typ core.TransactionType) []core.Transaction {
	out := make([]core.Transaction, 0, len(txs))
	for _, tx := range txs {
		if tx.Type != typ {
			continue
		}
		if year != 0 && tx.Date.Year() != year {
			continue
		}
		out = append(out, tx)
	}
	return out
}

func amountOf(tx core.Transaction) decimal.Decimal { return tx.Amount }

// Warm precomputes yearly ledgers for the given accounts and the category
// breakdown of each year. Empty accounts means every known account.
func (s *Service) Warm(ctx context.Context, accounts []string, years []int) error {
	if len(accounts) == 0 {
		var err error
		if accounts, err = s.Accounts(ctx); err != nil {
			return err
		}
	}
	for _, year := range years {
		for _, account := range accounts {
			if err := ctx.Err(); err != nil {
				return err
			}
			q := LedgerQuery{Account: account, Period: ledger.YearPeriod(year)}
			if _, err := s.AccountLedger(ctx, q); err != nil {
				return fmt.Errorf("warm ledger %s %d: %w", account, year, err)
			}
		}
		if _, err := s.CategoryBreakdown(ctx, CategoryQuery{Year: year, Threshold: -1}); err != nil {
			return fmt.Errorf("warm categories %d: %w", year, err)
		}
	}
	return nil
}
