// Command saldo-report prints one report from the configured backend as
// JSON.
//
//	saldo-report ledger -account Checking -year 2024 [-month 3] [-fill]
//	saldo-report ledger -account Checking -from 2024-01-01 -to 2024-06-30
//	saldo-report categories [-year 2024] [-type income] [-threshold 2.5]
//	saldo-report accounts
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"time"

	"saldo/internal/cli"
	apphttp "saldo/internal/http"
	"saldo/internal/report"
)

const usage = "usage: saldo-report ledger|categories|accounts [flags]"

func main() {
	cli.LoadEnvFile()

	cfg, err := cli.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := cli.SetupLogger(cfg, os.Stderr)

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := cli.SignalContext()
	defer stop()

	be, err := cli.OpenBackend(ctx, cfg, logger)
	if err != nil {
		cli.Fatal(logger, "Failed to open backend", err)
	}
	defer be.Close()

	reports := cli.NewReportService(be.Source, cfg, logger)
	if err := run(ctx, reports, os.Args[1], os.Args[2:], os.Stdout, time.Now()); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		cli.Fatal(logger, "Report failed", err)
	}
}

// run executes one subcommand and writes its result to out.
func run(ctx context.Context, reports *report.Service, cmd string, args []string, out io.Writer, now time.Time) error {
	var (
		result any
		err    error
	)
	switch cmd {
	case "ledger":
		result, err = ledger(ctx, reports, args, now)
	case "categories":
		result, err = categories(ctx, reports, args)
	case "accounts":
		var accounts []string
		accounts, err = reports.Accounts(ctx)
		result = map[string]any{"accounts": accounts}
	default:
		return fmt.Errorf("unknown command %q: %s", cmd, usage)
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// ledger and categories build the same query parameters the HTTP API takes
// so both surfaces validate alike.
func ledger(ctx context.Context, reports *report.Service, args []string, now time.Time) (any, error) {
	fs := flag.NewFlagSet("ledger", flag.ContinueOnError)
	account := fs.String("account", "", "account name")
	year := fs.Int("year", 0, "calendar year, defaults to the current one")
	month := fs.Int("month", 0, "month 1-12 within -year")
	from := fs.String("from", "", "first day, YYYY-MM-DD")
	to := fs.String("to", "", "last day, YYYY-MM-DD")
	fill := fs.Bool("fill", false, "emit one daily point per day")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	v := url.Values{"account": {*account}, "from": {*from}, "to": {*to}}
	if *year != 0 {
		v.Set("year", strconv.Itoa(*year))
	}
	if *month != 0 {
		v.Set("month", strconv.Itoa(*month))
	}
	v.Set("fill", strconv.FormatBool(*fill))

	q, err := apphttp.ParseLedgerQuery(v, now)
	if err != nil {
		return nil, err
	}
	return reports.AccountLedger(ctx, q)
}

func categories(ctx context.Context, reports *report.Service, args []string) (any, error) {
	fs := flag.NewFlagSet("categories", flag.ContinueOnError)
	year := fs.Int("year", 0, "calendar year, 0 for all")
	typ := fs.String("type", "expense", "expense or income")
	threshold := fs.String("threshold", "", "fold percentage, defaults to CATEGORY_THRESHOLD")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	v := url.Values{"type": {*typ}, "threshold": {*threshold}}
	if *year != 0 {
		v.Set("year", strconv.Itoa(*year))
	}
	q, err := apphttp.ParseCategoryQuery(v)
	if err != nil {
		return nil, err
	}
	return reports.CategoryBreakdown(ctx, q)
}
