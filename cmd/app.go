// Package cmd implements the shl subcommands operating on a portfolio ledger.
package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/charmbracelet/glamour"
	"github.com/google/subcommands"
	accounting "github.com/priitl/stocks-helper-sub000"
	"github.com/priitl/stocks-helper-sub000/config"
	"github.com/priitl/stocks-helper-sub000/date"
	"github.com/priitl/stocks-helper-sub000/eodhd"
	"github.com/priitl/stocks-helper-sub000/logger"
	"github.com/priitl/stocks-helper-sub000/rates"
	"github.com/priitl/stocks-helper-sub000/store"
)

// Register the subcommands.
// A main package will call Register() to allow subcommands, and Execute() on the user-selected one.
func Register(c *subcommands.Commander) {
	c.Register(&importCmd{}, "ledger")
	c.Register(&rebuildCmd{}, "ledger")
	c.Register(newAllocateFXCmd(), "ledger")
	c.Register(newApplySplitsCmd(), "ledger")
	c.Register(newReprocessSellsCmd(), "ledger")
	c.Register(newMTMCmd(), "ledger")
	c.Register(newSweepCmd(), "ledger")
	c.Register(&closeCmd{}, "ledger")
	c.Register(&backupsCmd{}, "ledger")
	c.Register(&restoreCmd{}, "ledger")

	c.Register(&trialBalanceCmd{}, "reports")
	c.Register(&balanceSheetCmd{}, "reports")
	c.Register(&incomeCmd{}, "reports")
	c.Register(&ledgerCmd{}, "reports")
	c.Register(&lotsCmd{}, "reports")

	c.Register(&priceCmd{}, "market data")
	c.Register(&syncSplitsCmd{}, "market data")

	c.Register(&topicCmd{}, "help")
}

// as a CLI application, it has a very short lived lifecycle, so it is ok to use global variables.

var configFile = flag.String("config", "shl.yaml", "Path to the YAML configuration file")
var envFile = flag.String("env", ".env", "Path to a dotenv file loaded before reading the environment")
var portfolioName = flag.String("portfolio", "", "Portfolio to operate on, overrides the configuration")

// app is everything a subcommand needs to work on the configured portfolio.
type app struct {
	cfg   *config.Config
	log   *slog.Logger
	store *store.Store
	sys   *accounting.System
	live  *eodhd.Client // nil without an API key
}

// openApp loads the configuration, opens the database and restores the
// portfolio's ledger.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(*configFile, *envFile)
	if err != nil {
		return nil, err
	}
	if *portfolioName != "" {
		cfg.Portfolio = *portfolioName
	}
	log := logger.Init(cfg.Log.Level, cfg.Log.Format).With("portfolio", cfg.Portfolio)

	st, err := store.Open(ctx, cfg.Database, log)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: log, store: st}
	if err := a.load(ctx); err != nil {
		st.Close()
		return nil, err
	}
	return a, nil
}

// load (re)builds the ledger system from the database.
func (a *app) load(ctx context.Context) error {
	book, err := a.store.Load(ctx, a.cfg.Portfolio, a.cfg.BaseCurrency)
	if err != nil {
		return fmt.Errorf("load portfolio %q: %w", a.cfg.Portfolio, err)
	}
	manual, err := a.store.LoadManualPrices(ctx)
	if err != nil {
		return fmt.Errorf("load manual prices: %w", err)
	}
	prices := accounting.Prices{Manual: manual}
	if a.cfg.EODHD.APIKey != "" {
		a.live = eodhd.New(a.cfg.EODHD.APIKey,
			eodhd.WithBaseURL(a.cfg.EODHD.BaseURL),
			eodhd.WithRateLimit(a.cfg.EODHD.RequestsPerSecond),
			eodhd.WithLogger(a.log),
		)
		prices.Live = a.live
	} else {
		a.log.Debug("no EODHD API key, live prices are disabled")
	}
	fx := rates.New(
		rates.WithBaseURL(a.cfg.Rates.BaseURL),
		rates.WithMaxBackoff(a.cfg.Rates.MaxBackoffDays),
		rates.WithRateLimit(a.cfg.Rates.RequestsPerSecond),
		rates.WithCacheTTL(a.cfg.Rates.CacheTTL),
		rates.WithLogger(a.log),
	)
	a.sys, err = accounting.NewSystem(book,
		accounting.WithRates(fx),
		accounting.WithPrices(prices),
		accounting.WithLogger(a.log),
		accounting.WithRealizedGains(a.cfg.Posting.RecognizeRealizedGains),
	)
	return err
}

// save persists the ledger.
func (a *app) save(ctx context.Context) error {
	if err := a.store.Save(ctx, a.sys.Snapshot()); err != nil {
		return fmt.Errorf("save portfolio %q: %w", a.cfg.Portfolio, err)
	}
	return nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.log.Warn("closing database", "error", err)
	}
}

// run opens the app, calls f and closes the app. When save is true the
// ledger is saved after f succeeds.
func run(ctx context.Context, save bool, f func(context.Context, *app) error) subcommands.ExitStatus {
	a, err := openApp(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.close()
	ctx = logger.ToContext(ctx, a.log)

	if err := f(ctx, a); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, errUsage) {
			return subcommands.ExitUsageError
		}
		return subcommands.ExitFailure
	}
	if save {
		if err := a.save(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return subcommands.ExitFailure
		}
	}
	return subcommands.ExitSuccess
}

var errUsage = errors.New("usage error")

func usageErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errUsage, fmt.Sprintf(format, args...))
}

// parseDay parses a date flag, today when empty.
func parseDay(s string) (date.Date, error) {
	if s == "" {
		return date.Today(), nil
	}
	d, err := date.Parse(s)
	if err != nil {
		return d, usageErrorf("%v", err)
	}
	return d, nil
}

// parseRange returns the reporting range ending on end. An explicit start
// wins over period, and neither means since inception.
func parseRange(start, end, period string) (date.Range, error) {
	to, err := parseDay(end)
	if err != nil {
		return date.Range{}, err
	}
	switch {
	case start != "" && period != "":
		return date.Range{}, usageErrorf("-s and -period cannot be used together")
	case start != "":
		from, err := date.Parse(start)
		if err != nil {
			return date.Range{}, usageErrorf("%v", err)
		}
		if from.After(to) {
			return date.Range{}, usageErrorf("start %s is after end %s", from, to)
		}
		return date.Range{From: from, To: to}, nil
	case period != "":
		p, err := date.ParsePeriod(period)
		if err != nil {
			return date.Range{}, usageErrorf("%v", err)
		}
		return date.NewRange(to, p), nil
	}
	return date.Range{To: to}, nil
}

// printMarkdown renders md for the terminal, falling back to the raw text.
func printMarkdown(md string) {
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(120))
	if err == nil {
		var out string
		if out, err = r.Render(md); err == nil {
			fmt.Print(out)
			return
		}
	}
	fmt.Print(md)
}
