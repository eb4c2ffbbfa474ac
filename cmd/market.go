package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/google/subcommands"
	"github.com/priitl/stocks-helper-sub000/date"
	"github.com/shopspring/decimal"
)

var errNoMarketData = errors.New("market data requires an EODHD API key (EODHD_API_KEY)")

// --- Price Command ---

type priceCmd struct {
	ticker string
	date   string
	price  string
	fetch  string
}

func (*priceCmd) Name() string     { return "price" }
func (*priceCmd) Synopsis() string { return "record manual security prices" }
func (*priceCmd) Usage() string {
	return `shl price -t <ticker> [-d <date>] -p <price>
shl price -t <ticker> -fetch <from> [-d <date>]

  Records the price of a security on a day. Manual prices are used by
  mark-to-market when no live price is available.

  With -fetch, the daily closes from <from> to -d are downloaded from EODHD
  and recorded instead.
`
}

func (c *priceCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.ticker, "t", "", "Security ticker")
	f.StringVar(&c.date, "d", "", "Price date, defaults to today")
	f.StringVar(&c.price, "p", "", "Price in the trading currency")
	f.StringVar(&c.fetch, "fetch", "", "Download daily closes starting on this date")
}

func (c *priceCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.ticker == "" || (c.price == "") == (c.fetch == "") {
		f.Usage()
		return subcommands.ExitUsageError
	}
	on, err := parseDay(c.date)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}

	if c.fetch == "" {
		price, err := decimal.NewFromString(c.price)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error parsing price: %v\n", err)
			return subcommands.ExitUsageError
		}
		return run(ctx, false, func(ctx context.Context, a *app) error {
			if err := a.store.SetManualPrice(ctx, c.ticker, on, price); err != nil {
				return err
			}
			fmt.Printf("Recorded %s at %s on %s\n", c.ticker, price, on)
			return nil
		})
	}

	from, err := date.Parse(c.fetch)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	return run(ctx, false, func(ctx context.Context, a *app) error {
		if a.live == nil {
			return errNoMarketData
		}
		closes, err := a.live.DailyCloses(ctx, c.ticker, from, on)
		if err != nil {
			return err
		}
		for day, price := range closes.Values() {
			if err := a.store.SetManualPrice(ctx, c.ticker, day, price); err != nil {
				return err
			}
		}
		fmt.Printf("Recorded %d closes of %s\n", closes.Len(), c.ticker)
		return nil
	})
}

// --- Sync Splits Command ---

type syncSplitsCmd struct {
	since string
}

func (*syncSplitsCmd) Name() string     { return "sync-splits" }
func (*syncSplitsCmd) Synopsis() string { return "register stock splits from EODHD" }
func (*syncSplitsCmd) Usage() string {
	return `shl sync-splits [-since <date>] <ticker>...

  Downloads the stock splits of the tickers and registers them in the
  portfolio. Registered splits are applied by "shl apply-splits" or
  "shl rebuild". Splits already known are kept as they are.
`
}

func (c *syncSplitsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.since, "since", "2000-01-01", "Earliest split date")
}

func (c *syncSplitsCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() == 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	since, err := date.Parse(c.since)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	return run(ctx, true, func(ctx context.Context, a *app) error {
		if a.live == nil {
			return errNoMarketData
		}
		var found []string
		for _, ticker := range f.Args() {
			splits, err := a.live.Splits(ctx, ticker, since, date.Today())
			if err != nil {
				if len(splits) == 0 {
					return err
				}
				// Invalid ratios are reported, valid splits are still registered.
				a.log.Warn("some splits were ignored", "ticker", ticker, "error", err)
			}
			a.sys.AddSplits(splits...)
			for _, sp := range splits {
				found = append(found, fmt.Sprintf("%s %s %d:%d", sp.Ticker, sp.Date, sp.From, sp.To))
			}
		}
		fmt.Printf("Registered %d splits\n", len(found))
		if len(found) > 0 {
			fmt.Println(strings.Join(found, "\n"))
		}
		return nil
	})
}
