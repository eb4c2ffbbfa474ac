package renderer

import (
	"bytes"
	"fmt"
	"time"

	md "github.com/nao1215/markdown"
	accounting "github.com/priitl/stocks-helper-sub000"
)

// RebuildMarkdown renders the outcome of a rebuild run and the transactions
// it skipped.
func RebuildMarkdown(r accounting.RebuildReport) string {
	var buf bytes.Buffer
	doc := md.NewMarkdown(&buf)

	title := "Ledger Rebuild"
	if r.DryRun {
		title += " (dry run)"
	}
	doc.H1(title)
	doc.PlainText(md.Italic(fmt.Sprintf("Run %s as of %s in %s", r.RunID, r.AsOf, r.Duration.Round(time.Millisecond))))

	cleared := "no"
	if r.Cleared {
		cleared = "yes"
	}
	doc.Table(md.TableSet{
		Alignment: []md.TableAlignment{md.AlignLeft, md.AlignRight},
		Header:    []string{"Step", "Count"},
		Rows: [][]string{
			{"Transactions", fmt.Sprint(r.Transactions)},
			{"Posted", fmt.Sprint(r.Posted)},
			{"Realized FX entries", fmt.Sprint(r.RealizedFX)},
			{"Splits applied", fmt.Sprint(r.SplitsApplied)},
			{"Sells reprocessed", fmt.Sprint(r.SellsReprocessed)},
			{"Mark-to-market entries", fmt.Sprint(r.MarkToMarket)},
			{"Clearing swept", cleared},
		},
	})

	if len(r.Errors) > 0 {
		doc.H2(fmt.Sprintf("Skipped Transactions (%d)", len(r.Errors)))
		table := md.TableSet{
			Alignment: []md.TableAlignment{md.AlignLeft, md.AlignLeft, md.AlignLeft, md.AlignLeft},
			Header:    []string{"Date", "Transaction", "Type", "Error"},
			Rows:      [][]string{},
		}
		for _, e := range r.Errors {
			table.Rows = append(table.Rows, []string{e.Date.String(), e.TransactionID, string(e.Type), e.Err.Error()})
		}
		doc.Table(table)
	}

	return doc.String()
}

// EntryMarkdown renders a journal entry with account names taken from chart.
func EntryMarkdown(e accounting.JournalEntry, chart *accounting.Chart) string {
	var buf bytes.Buffer
	doc := md.NewMarkdown(&buf)

	doc.H2(fmt.Sprintf("Entry %d: %s", e.Number, e.Description))
	doc.PlainText(md.Italic(fmt.Sprintf("%s %s on %s", e.Status, e.Type, e.EntryDate)))
	table := md.TableSet{
		Alignment: []md.TableAlignment{md.AlignLeft, md.AlignRight, md.AlignRight, md.AlignLeft},
		Header:    []string{"Account", "Debit", "Credit", "Foreign"},
		Rows:      [][]string{},
	}
	for _, l := range e.Lines {
		name := l.AccountID
		if a, ok := chart.ByID(l.AccountID); ok {
			name = account(a)
		}
		var foreign string
		if l.IsForeign() {
			foreign = fmt.Sprintf("%s %s @ %s", l.ForeignAmount, l.ForeignCurrency, l.ExchangeRate)
		}
		table.Rows = append(table.Rows, []string{
			name,
			amount(accounting.M(l.Debit, l.Currency)),
			amount(accounting.M(l.Credit, l.Currency)),
			foreign,
		})
	}
	doc.Table(table)

	return doc.String()
}

// LotsMarkdown renders the security lots of a holding in FIFO order.
func LotsMarkdown(holding string, lots []accounting.SecurityLot) string {
	var buf bytes.Buffer
	doc := md.NewMarkdown(&buf)

	doc.H1(fmt.Sprintf("Lots of %s", holding))
	table := md.TableSet{
		Alignment: []md.TableAlignment{md.AlignLeft, md.AlignLeft, md.AlignRight, md.AlignRight, md.AlignRight, md.AlignRight},
		Header:    []string{"Purchased", "Transaction", "Quantity", "Remaining", "Cost per Share", "Total Cost"},
		Rows:      [][]string{},
	}
	for _, l := range lots {
		remaining := l.Remaining.String()
		if l.Closed {
			remaining = md.Italic("closed")
		}
		table.Rows = append(table.Rows, []string{
			l.PurchaseDate.String(),
			l.TransactionID,
			l.Quantity.String(),
			remaining,
			accounting.M(l.CostPerShare, l.Currency).String(),
			accounting.M(l.TotalCost, l.Currency).String(),
		})
	}
	doc.Table(table)

	return doc.String()
}
