package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/google/subcommands"
	accounting "github.com/priitl/stocks-helper-sub000"
	"github.com/priitl/stocks-helper-sub000/date"
	"github.com/priitl/stocks-helper-sub000/logger"
	"github.com/priitl/stocks-helper-sub000/renderer"
)

// --- Import Command ---

type importCmd struct {
	post bool
}

func (*importCmd) Name() string     { return "import" }
func (*importCmd) Synopsis() string { return "register transactions from JSONL files" }
func (*importCmd) Usage() string {
	return `shl import [-post] <file.jsonl>...

  Reads normalized transactions, one JSON object per line, and registers them
  in the portfolio. A transaction with an already known id replaces it.
  Use "-" to read from the standard input.

  With -post, the new transactions are posted to the journal right away in
  date order. Otherwise run "shl rebuild" to post them.
`
}

func (c *importCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.post, "post", false, "Post the imported transactions immediately")
}

func (c *importCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() == 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	var txs []accounting.Transaction
	for _, name := range f.Args() {
		decoded, err := decodeFile(name)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading %s: %v\n", name, err)
			return subcommands.ExitFailure
		}
		txs = append(txs, decoded...)
	}
	var invalid error
	for _, tx := range txs {
		if err := tx.Validate(); err != nil {
			invalid = errors.Join(invalid, fmt.Errorf("transaction %s: %w", tx.ID, err))
		}
	}
	if invalid != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid transactions, nothing imported:\n%v\n", invalid)
		return subcommands.ExitFailure
	}

	return run(ctx, true, func(ctx context.Context, a *app) error {
		a.sys.AddTransactions(txs...)
		fmt.Printf("Registered %d transactions in %q\n", len(txs), a.cfg.Portfolio)
		if !c.post {
			return nil
		}
		accounting.SortTransactions(txs)
		posted := 0
		for _, tx := range txs {
			if _, err := a.sys.Post(ctx, tx); err != nil {
				if errors.Is(err, accounting.ErrFatal) {
					return err
				}
				logger.FromContext(ctx).Warn("transaction not posted", "transaction", tx.ID, "error", err)
				continue
			}
			posted++
		}
		fmt.Printf("Posted %d of %d transactions\n", posted, len(txs))
		return nil
	})
}

func decodeFile(name string) ([]accounting.Transaction, error) {
	var r io.Reader = os.Stdin
	if name != "-" {
		f, err := os.Open(name)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	return accounting.DecodeTransactions(r)
}

// --- Rebuild Command ---

type rebuildCmd struct {
	dryRun bool
	asOf   string
}

func (*rebuildCmd) Name() string     { return "rebuild" }
func (*rebuildCmd) Synopsis() string { return "replay every transaction into a fresh journal" }
func (*rebuildCmd) Usage() string {
	return `shl rebuild [-dry-run] [-d <date>]

  Deletes all journal entries, lots and allocations, then posts every
  registered transaction again, allocates currency lots, applies stock splits,
  reprocesses sales, marks to market as of -d and sweeps the currency clearing
  account.

  The ledger is backed up before a real run. Transactions that cannot be
  posted are listed and skipped.
`
}

func (c *rebuildCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.dryRun, "dry-run", false, "Compute the rebuild without saving it")
	f.StringVar(&c.asOf, "d", "", "Mark-to-market date, defaults to today")
}

func (c *rebuildCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	on, err := parseDay(c.asOf)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	return run(ctx, !c.dryRun, func(ctx context.Context, a *app) error {
		if !c.dryRun {
			if _, err := a.store.Backup(ctx, a.sys.Snapshot(), "rebuild"); err != nil {
				return fmt.Errorf("backup before rebuild: %w", err)
			}
		}
		report, err := a.sys.Rebuild(ctx, accounting.RebuildOptions{DryRun: c.dryRun, AsOf: on})
		if err != nil {
			return err
		}
		printMarkdown(renderer.RebuildMarkdown(report))
		return nil
	})
}

// --- Batch step commands ---

// stepCmd runs a single rebuild step on the ledger and saves it.
type stepCmd struct {
	name, synopsis, usage string
	withDate              bool
	step                  func(ctx context.Context, a *app, on date.Date) (string, error)

	asOf string
}

func (c *stepCmd) Name() string     { return c.name }
func (c *stepCmd) Synopsis() string { return c.synopsis }
func (c *stepCmd) Usage() string    { return c.usage }

func (c *stepCmd) SetFlags(f *flag.FlagSet) {
	if c.withDate {
		f.StringVar(&c.asOf, "d", "", "Date of the step, defaults to today")
	}
}

func (c *stepCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	on, err := parseDay(c.asOf)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	return run(ctx, true, func(ctx context.Context, a *app) error {
		msg, err := c.step(ctx, a, on)
		if err != nil {
			return err
		}
		printMarkdown(msg)
		return nil
	})
}

func newAllocateFXCmd() *stepCmd {
	return &stepCmd{
		name:     "allocate-fx",
		synopsis: "fund foreign purchases from currency lots and post realized FX",
		usage: `shl allocate-fx

  Allocates currency lots FIFO to every foreign currency purchase not funded
  yet and posts the realized exchange gain or loss against spot.
`,
		step: func(ctx context.Context, a *app, _ date.Date) (string, error) {
			n, err := a.sys.AllocateCurrencyLotsAndPostRealizedFX(ctx)
			return fmt.Sprintf("Posted %d realized FX entries", n), err
		},
	}
}

func newApplySplitsCmd() *stepCmd {
	return &stepCmd{
		name:     "apply-splits",
		synopsis: "apply registered stock splits to open lots",
		usage: `shl apply-splits

  Applies every registered stock split, in date order, to the lots purchased
  before it. A split is applied to a lot at most once.
`,
		step: func(_ context.Context, a *app, _ date.Date) (string, error) {
			n, err := a.sys.ApplyAllStockSplits()
			return fmt.Sprintf("Adjusted %d lots", n), err
		},
	}
}

func newReprocessSellsCmd() *stepCmd {
	return &stepCmd{
		name:     "reprocess-sells",
		synopsis: "repost every sale against the current lots",
		usage: `shl reprocess-sells

  Unwinds and posts again every SELL transaction in date order, so that lot
  consumption and realized gains reflect the current lots and splits.
`,
		step: func(ctx context.Context, a *app, _ date.Date) (string, error) {
			n, err := a.sys.ReprocessSells(ctx)
			return fmt.Sprintf("Reprocessed %d sales", n), err
		},
	}
}

func newMTMCmd() *stepCmd {
	return &stepCmd{
		name:     "mtm",
		synopsis: "mark securities and foreign cash to market",
		usage: `shl mtm [-d <date>]

  Revalues open security lots at their latest price and foreign currency cash
  at the exchange rate of the day, replacing the previous adjustment entries.
`,
		withDate: true,
		step: func(ctx context.Context, a *app, on date.Date) (string, error) {
			n, err := a.sys.RunMarkToMarket(ctx, on)
			return fmt.Sprintf("Posted %d mark-to-market entries as of %s", n, on), err
		},
	}
}

func newSweepCmd() *stepCmd {
	return &stepCmd{
		name:     "sweep",
		synopsis: "close the currency clearing account into currency gains",
		usage: `shl sweep [-d <date>]

  Moves the residual balance of the currency clearing account to currency
  gains or losses.
`,
		withDate: true,
		step: func(_ context.Context, a *app, on date.Date) (string, error) {
			e, err := a.sys.SweepClearing(on)
			if err != nil || e == nil {
				return "Nothing to sweep", err
			}
			return renderer.EntryMarkdown(*e, a.sys.Chart()), nil
		},
	}
}

// --- Close Command ---

type closeCmd struct {
	asOf string
}

func (*closeCmd) Name() string     { return "close" }
func (*closeCmd) Synopsis() string { return "close revenue and expenses into retained earnings" }
func (*closeCmd) Usage() string {
	return `shl close -d <date>

  Posts a closing entry moving the balance of every revenue and expense
  account as of the date into retained earnings.
`
}

func (c *closeCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.asOf, "d", "", "Last day of the closed period")
}

func (c *closeCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.asOf == "" {
		f.Usage()
		return subcommands.ExitUsageError
	}
	on, err := parseDay(c.asOf)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	return run(ctx, true, func(ctx context.Context, a *app) error {
		e, err := a.sys.ClosePeriod(on)
		if err != nil {
			return err
		}
		if e == nil {
			fmt.Println("Nothing to close")
			return nil
		}
		printMarkdown(renderer.EntryMarkdown(*e, a.sys.Chart()))
		return nil
	})
}
