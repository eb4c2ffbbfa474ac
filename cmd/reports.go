package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
	accounting "github.com/priitl/stocks-helper-sub000"
	"github.com/priitl/stocks-helper-sub000/renderer"
)

// --- Trial Balance Command ---

type trialBalanceCmd struct {
	date string
}

func (*trialBalanceCmd) Name() string     { return "trial-balance" }
func (*trialBalanceCmd) Synopsis() string { return "list the balance of every account" }
func (*trialBalanceCmd) Usage() string {
	return `shl trial-balance [-d <date>]

  Lists the debit or credit balance of every active account as of the date
  and checks that total debits equal total credits.
`
}

func (c *trialBalanceCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.date, "d", "", "Report date, defaults to today")
}

func (c *trialBalanceCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	on, err := parseDay(c.date)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	return run(ctx, false, func(_ context.Context, a *app) error {
		printMarkdown(renderer.TrialBalanceMarkdown(a.sys.TrialBalance(on)))
		return nil
	})
}

// --- Balance Sheet Command ---

type balanceSheetCmd struct {
	date string
}

func (*balanceSheetCmd) Name() string     { return "balance-sheet" }
func (*balanceSheetCmd) Synopsis() string { return "display assets, liabilities and equity" }
func (*balanceSheetCmd) Usage() string {
	return `shl balance-sheet [-d <date>]

  Displays the financial position of the portfolio as of the date. Income not
  closed yet is shown within equity.
`
}

func (c *balanceSheetCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.date, "d", "", "Report date, defaults to today")
}

func (c *balanceSheetCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	on, err := parseDay(c.date)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	return run(ctx, false, func(_ context.Context, a *app) error {
		printMarkdown(renderer.BalanceSheetMarkdown(a.sys.BalanceSheet(on)))
		return nil
	})
}

// --- Income Statement Command ---

type incomeCmd struct {
	period string
	start  string
	end    string
}

func (*incomeCmd) Name() string     { return "income" }
func (*incomeCmd) Synopsis() string { return "display revenue and expenses over a period" }
func (*incomeCmd) Usage() string {
	return `shl income [-period <period>] [-s <date>] [-d <date>]

  Displays the income statement of the period ending on -d. The period is
  either a predefined one (day, week, month, quarter, year) or starts on -s.
  Without both, it covers everything since inception.
`
}

func (c *incomeCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.period, "period", "", "Predefined period (day, week, month, quarter, year)")
	f.StringVar(&c.start, "s", "", "Start date of the reporting period")
	f.StringVar(&c.end, "d", "", "End date of the reporting period, defaults to today")
}

func (c *incomeCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	r, err := parseRange(c.start, c.end, c.period)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	return run(ctx, false, func(_ context.Context, a *app) error {
		printMarkdown(renderer.IncomeStatementMarkdown(a.sys.IncomeStatement(r)))
		return nil
	})
}

// --- General Ledger Command ---

type ledgerCmd struct {
	account string
	period  string
	start   string
	end     string
}

func (*ledgerCmd) Name() string     { return "ledger" }
func (*ledgerCmd) Synopsis() string { return "display the activity of one account" }
func (*ledgerCmd) Usage() string {
	return `shl ledger -a <account> [-period <period>] [-s <date>] [-d <date>]

  Displays every posted line of an account with its running balance. The
  account is given by its role, for instance cash, investments or
  currency_clearing.
`
}

func (c *ledgerCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.account, "a", accounting.RoleCash.String(), "Account role")
	f.StringVar(&c.period, "period", "", "Predefined period (day, week, month, quarter, year)")
	f.StringVar(&c.start, "s", "", "Start date of the reporting period")
	f.StringVar(&c.end, "d", "", "End date of the reporting period, defaults to today")
}

func (c *ledgerCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	role, err := accounting.ParseRole(c.account)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	r, err := parseRange(c.start, c.end, c.period)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	return run(ctx, false, func(_ context.Context, a *app) error {
		gl, err := a.sys.GeneralLedger(role, r)
		if err != nil {
			return err
		}
		printMarkdown(renderer.GeneralLedgerMarkdown(gl))
		return nil
	})
}

// --- Lots Command ---

type lotsCmd struct{}

func (*lotsCmd) Name() string     { return "lots" }
func (*lotsCmd) Synopsis() string { return "display the security lots of holdings" }
func (*lotsCmd) Usage() string {
	return `shl lots <holding>...

  Displays the lots of each holding in FIFO order, with their remaining
  quantity and cost.
`
}

func (*lotsCmd) SetFlags(*flag.FlagSet) {}

func (c *lotsCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() == 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	return run(ctx, false, func(_ context.Context, a *app) error {
		for _, h := range f.Args() {
			printMarkdown(renderer.LotsMarkdown(h, a.sys.Lots(h)))
		}
		return nil
	})
}
