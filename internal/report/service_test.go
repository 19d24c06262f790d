package report

import (
	"context"
	"errors"
	"io"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"saldo/internal/core"
	"saldo/internal/ledger"
	"saldo/internal/log"
	"saldo/internal/rollup"
	"saldo/internal/source"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingSource serves fixed records and counts full reads.
type countingSource struct {
	mu        sync.Mutex
	txs       []core.Transaction
	transfers []core.Transfer
	anchors   []core.BalanceAnchor
	err       error
	gate      chan struct{}
	reads     atomic.Int32
}

// ListTransactions reads the records before waiting on gate, so a gated
// read returns what the source held when it started.
func (s *countingSource) ListTransactions(ctx context.Context) ([]core.Transaction, error) {
	s.mu.Lock()
	txs, err := s.txs, s.err
	s.mu.Unlock()
	s.reads.Add(1)
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return txs, nil
}

func (s *countingSource) ListTransfers(context.Context) ([]core.Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transfers, nil
}

func (s *countingSource) ListAnchors(context.Context) ([]core.BalanceAnchor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.anchors, nil
}

func tx(id, date, primary, secondary, amount, account string, typ core.TransactionType) core.Transaction {
	return core.Transaction{
		ID:       id,
		Date:     core.MustDate(date),
		Category: core.CategoryPath{Primary: primary, Secondary: secondary},
		Amount:   decimal.RequireFromString(amount),
		Account:  account,
		Type:     typ,
	}
}

func newFixture() *countingSource {
	return &countingSource{
		txs: []core.Transaction{
			tx("t1", "2024-01-05", "Home", "Utilities", "100", "Checking", core.Expense),
			tx("t2", "2024-01-10", "Salary", "", "1000", "Checking", core.Income),
			tx("t3", "2024-02-01", "Food", "Groceries", "50", "Card", core.Expense),
			tx("t4", "2023-12-20", "Home", "Rent", "500", "Checking", core.Expense),
		},
		transfers: []core.Transfer{{
			ID:      "x1",
			Date:    core.MustDate("2024-01-15"),
			Route:   core.AccountPair{Source: "Checking", Destination: "Savings"},
			Inflow:  decimal.NewFromInt(200),
			Outflow: decimal.NewFromInt(200),
		}},
		anchors: []core.BalanceAnchor{
			{Account: "Checking", Date: core.MustDate("2023-12-31"), Balance: decimal.NewFromInt(1000)},
		},
	}
}

func snapshotOf(s *countingSource) source.Snapshot {
	return source.Snapshot{Transactions: s.txs, Transfers: s.transfers, Anchors: s.anchors}
}

func newTestService(src *countingSource, opts Options) *Service {
	opts.Logger = log.New(log.Config{Output: io.Discard})
	return NewService(src, opts)
}

func TestAccountLedger(t *testing.T) {
	svc := newTestService(newFixture(), Options{})

	rep, err := svc.AccountLedger(context.Background(), LedgerQuery{
		Account: " Checking ",
		Period:  ledger.MonthPeriod(2024, 1),
	})
	require.NoError(t, err)
	require.NotNil(t, rep.Summary)

	assert.Equal(t, "Checking", rep.Account)
	assert.True(t, rep.Summary.HasAnchor)
	assert.Equal(t, "1000", rep.Summary.InitialBalance.String())
	assert.Equal(t, "1000", rep.Summary.TotalIncome.String())
	assert.Equal(t, "100", rep.Summary.TotalExpense.String())
	assert.Equal(t, "1700", rep.Summary.FinalBalance.String())
	require.Len(t, rep.Daily, 3)
	assert.Equal(t, "2024-01-15", rep.Daily[2].Date.String())
	assert.Len(t, rep.Entries, 3)
}

func TestAccountLedgerFill(t *testing.T) {
	svc := newTestService(newFixture(), Options{})

	rep, err := svc.AccountLedger(context.Background(), LedgerQuery{
		Account: "Checking",
		Period:  ledger.MonthPeriod(2024, 1),
		Fill:    true,
	})
	require.NoError(t, err)
	require.Len(t, rep.Daily, 31)
	assert.Equal(t, "1000", rep.Daily[0].Balance.String())
	assert.Equal(t, "900", rep.Daily[4].Balance.String())
	assert.Equal(t, "1700", rep.Daily[30].Balance.String())
}

func TestAccountLedgerUnknownAccount(t *testing.T) {
	svc := newTestService(newFixture(), Options{})

	rep, err := svc.AccountLedger(context.Background(), LedgerQuery{
		Account: "Nowhere",
		Period:  ledger.YearPeriod(2024),
		Fill:    true,
	})
	require.NoError(t, err)
	assert.Nil(t, rep.Summary)
	assert.Empty(t, rep.Daily)
	assert.Empty(t, rep.Entries)
}

func TestServiceCachesSnapshotAndResults(t *testing.T) {
	src := newFixture()
	svc := newTestService(src, Options{})
	ctx := context.Background()
	q := LedgerQuery{Account: "Checking", Period: ledger.YearPeriod(2024)}

	first, err := svc.AccountLedger(ctx, q)
	require.NoError(t, err)
	second, err := svc.AccountLedger(ctx, q)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, src.reads.Load())
	assert.EqualValues(t, 1, svc.Stats()["ledger"].Hits)

	_, err = svc.CategoryBreakdown(ctx, CategoryQuery{Year: 2024, Threshold: -1})
	require.NoError(t, err)
	assert.EqualValues(t, 1, src.reads.Load(), "snapshot shared across report kinds")
}

func TestInvalidateRefetches(t *testing.T) {
	src := newFixture()
	svc := newTestService(src, Options{})
	ctx := context.Background()
	q := LedgerQuery{Account: "Checking", Period: ledger.YearPeriod(2024)}

	before, err := svc.AccountLedger(ctx, q)
	require.NoError(t, err)

	src.mu.Lock()
	src.txs = append(src.txs, tx("t5", "2024-03-01", "Home", "Utilities", "300", "Checking", core.Expense))
	src.mu.Unlock()

	cached, err := svc.AccountLedger(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, before.Summary.FinalBalance.String(), cached.Summary.FinalBalance.String())

	svc.Invalidate()
	after, err := svc.AccountLedger(ctx, q)
	require.NoError(t, err)
	assert.EqualValues(t, 2, src.reads.Load())
	assert.Equal(t, "1400", after.Summary.FinalBalance.String())
}

func TestInvalidateDuringFetch(t *testing.T) {
	src := newFixture()
	src.gate = make(chan struct{})
	svc := newTestService(src, Options{})
	ctx := context.Background()

	stale := make(chan []string, 1)
	go func() {
		accounts, _ := svc.Accounts(ctx)
		stale <- accounts
	}()
	require.Eventually(t, func() bool { return src.reads.Load() == 1 }, time.Second, time.Millisecond)

	src.mu.Lock()
	src.txs = append(src.txs, tx("t5", "2024-03-01", "Fees", "", "5", "Broker", core.Expense))
	src.mu.Unlock()
	svc.Invalidate()

	fresh := make(chan []string, 1)
	go func() {
		accounts, _ := svc.Accounts(ctx)
		fresh <- accounts
	}()
	require.Eventually(t, func() bool { return src.reads.Load() == 2 }, time.Second, time.Millisecond,
		"a caller after Invalidate starts its own fetch")
	close(src.gate)

	assert.NotContains(t, <-stale, "Broker")
	assert.Contains(t, <-fresh, "Broker")

	later, err := svc.Accounts(ctx)
	require.NoError(t, err)
	assert.Contains(t, later, "Broker", "the pre-invalidate fetch is not cached")
	assert.EqualValues(t, 2, src.reads.Load())
}

func TestSnapshotExpires(t *testing.T) {
	src := newFixture()
	svc := newTestService(src, Options{CacheTTL: 10 * time.Millisecond})
	ctx := context.Background()

	_, err := svc.Accounts(ctx)
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	_, err = svc.Accounts(ctx)
	require.NoError(t, err)

	assert.EqualValues(t, 2, src.reads.Load())
}

func TestSourceFailure(t *testing.T) {
	src := newFixture()
	src.err = errors.New("sheet offline")
	svc := newTestService(src, Options{})
	ctx := context.Background()

	_, err := svc.Accounts(ctx)
	require.ErrorIs(t, err, ErrSourceUnavailable)
	assert.Contains(t, err.Error(), "sheet offline")

	src.mu.Lock()
	src.err = nil
	src.mu.Unlock()

	accounts, err := svc.Accounts(ctx)
	require.NoError(t, err, "failures are not cached")
	assert.NotEmpty(t, accounts)
}

func TestInvalidQueries(t *testing.T) {
	svc := newTestService(newFixture(), Options{})
	ctx := context.Background()

	_, err := svc.AccountLedger(ctx, LedgerQuery{
		Account: "Checking",
		Period:  ledger.Period{Start: core.MustDate("2024-02-01"), End: core.MustDate("2024-01-01")},
	})
	assert.ErrorIs(t, err, ErrInvalidQuery)

	_, err = svc.AccountLedger(ctx, LedgerQuery{Account: "Checking"})
	assert.ErrorIs(t, err, ErrInvalidQuery, "zero period")

	_, err = svc.CategoryBreakdown(ctx, CategoryQuery{Type: "refund"})
	assert.ErrorIs(t, err, ErrInvalidQuery)
	assert.ErrorIs(t, err, core.ErrInvalidType)

	_, err = svc.CategoryBreakdown(ctx, CategoryQuery{Threshold: 150})
	assert.ErrorIs(t, err, ErrInvalidQuery)

	_, err = svc.CategoryBreakdown(ctx, CategoryQuery{Threshold: math.NaN()})
	assert.ErrorIs(t, err, ErrInvalidQuery)

	_, err = svc.CategoryBreakdown(ctx, CategoryQuery{Threshold: math.Inf(1)})
	assert.ErrorIs(t, err, ErrInvalidQuery)

	_, err = svc.CategoryBreakdown(ctx, CategoryQuery{Year: -1})
	assert.ErrorIs(t, err, ErrInvalidQuery)

	_, err = svc.AccountSummary(ctx, SummaryQuery{Limit: -1})
	assert.ErrorIs(t, err, ErrInvalidQuery)

	_, err = svc.CategorySummary(ctx, SummaryQuery{Type: "gift"})
	assert.ErrorIs(t, err, ErrInvalidQuery)
}

func TestCategoryBreakdown(t *testing.T) {
	svc := newTestService(newFixture(), Options{})
	ctx := context.Background()

	res, err := svc.CategoryBreakdown(ctx, CategoryQuery{Year: 2024, Threshold: -1})
	require.NoError(t, err)
	require.Len(t, res.Detail, 2)
	assert.Equal(t, "Home", res.Detail[0].Name)
	assert.Equal(t, "100", res.Detail[0].Total.String())
	assert.Equal(t, "Food", res.Detail[1].Name)
	assert.InDelta(t, 100.0/150*100, res.Detail[0].Percentage, 1e-9)

	all, err := svc.CategoryBreakdown(ctx, CategoryQuery{Threshold: -1})
	require.NoError(t, err)
	require.Len(t, all.Detail, 2)
	assert.Equal(t, "600", all.Detail[0].Total.String(), "every year when Year is zero")

	income, err := svc.CategoryBreakdown(ctx, CategoryQuery{Year: 2024, Type: core.Income, Threshold: -1})
	require.NoError(t, err)
	require.Len(t, income.Detail, 1)
	assert.Equal(t, "Salary", income.Detail[0].Name)
	assert.InDelta(t, 100.0, income.Detail[0].Percentage, 1e-9)
}

func TestCategoryBreakdownThreshold(t *testing.T) {
	svc := newTestService(newFixture(), Options{Threshold: 40})
	assert.Equal(t, 40.0, svc.Threshold())

	res, err := svc.CategoryBreakdown(context.Background(), CategoryQuery{Year: 2024, Threshold: -1})
	require.NoError(t, err)
	require.Len(t, res.Chart, 2)
	assert.Equal(t, "Home", res.Chart[0].Name)
	assert.Equal(t, rollup.OtherName, res.Chart[1].Name)
	assert.Equal(t, "50", res.Chart[1].Total.String())

	res, err = svc.CategoryBreakdown(context.Background(), CategoryQuery{Year: 2024, Threshold: 0})
	require.NoError(t, err)
	assert.Len(t, res.Chart, 2)
	assert.Equal(t, "Food", res.Chart[1].Name, "explicit zero keeps every primary")
}

func TestDefaultThreshold(t *testing.T) {
	svc := newTestService(newFixture(), Options{})
	assert.Equal(t, rollup.DefaultThreshold, svc.Threshold())
}

func TestSummaries(t *testing.T) {
	svc := newTestService(newFixture(), Options{})
	ctx := context.Background()

	groups, err := svc.AccountSummary(ctx, SummaryQuery{Year: 2024, Limit: 1})
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, "Checking", groups[0].Name)
	assert.Equal(t, "100", groups[0].Value.String())
	assert.Equal(t, rollup.OtherName, groups[1].Name)
	assert.Equal(t, "50", groups[1].Value.String())

	groups, err = svc.CategorySummary(ctx, SummaryQuery{})
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, "Home", groups[0].Name)
	assert.Equal(t, "600", groups[0].Value.String())
	assert.Equal(t, "Food", groups[1].Name)
}

func TestAccounts(t *testing.T) {
	svc := newTestService(newFixture(), Options{})

	accounts, err := svc.Accounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Card", "Checking", "Savings"}, accounts)
}

func TestWarm(t *testing.T) {
	src := newFixture()
	svc := newTestService(src, Options{})
	ctx := context.Background()

	require.NoError(t, svc.Warm(ctx, nil, []int{2024}))
	stats := svc.Stats()
	assert.Equal(t, 3, stats["ledger"].Size)
	assert.Equal(t, 1, stats["category"].Size)

	_, err := svc.AccountLedger(ctx, LedgerQuery{Account: "Savings", Period: ledger.YearPeriod(2024)})
	require.NoError(t, err)
	assert.EqualValues(t, 1, svc.Stats()["ledger"].Hits)
	assert.EqualValues(t, 1, src.reads.Load())

	require.NoError(t, svc.Warm(ctx, []string{"Card"}, nil))
}

func TestWarmCancelled(t *testing.T) {
	svc := newTestService(newFixture(), Options{})
	ctx, cancel := context.WithCancel(context.Background())
	_, err := svc.Accounts(ctx)
	require.NoError(t, err)
	cancel()

	err = svc.Warm(ctx, []string{"Checking"}, []int{2024})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConcurrentMissesShareOneFetch(t *testing.T) {
	src := newFixture()
	src.gate = make(chan struct{})
	svc := newTestService(src, Options{})
	ctx := context.Background()

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CategoryBreakdown(ctx, CategoryQuery{Year: 2024, Threshold: -1})
			errs <- err
		}()
	}

	require.Eventually(t, func() bool { return src.reads.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(src.gate)
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.EqualValues(t, 1, src.reads.Load())
}

func TestResultKeyChangesWithSnapshot(t *testing.T) {
	a := newFixture()
	b := newFixture()
	b.txs[0].Amount = decimal.RequireFromString("100.01")

	fa := fingerprint(snapshotOf(a))
	fb := fingerprint(snapshotOf(b))
	assert.NotEqual(t, fa, fb)
	assert.Equal(t, fa, fingerprint(snapshotOf(newFixture())))

	assert.NotEqual(t, resultKey("ledger", fa, "Checking"), resultKey("ledger", fb, "Checking"))
	assert.NotEqual(t, resultKey("ledger", fa, "Checking"), resultKey("ledger", fa, "Card"))
	assert.NotEqual(t, resultKey("ledger", fa, "ab", "c"), resultKey("ledger", fa, "a", "bc"))
}
