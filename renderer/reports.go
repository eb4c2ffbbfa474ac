// Package renderer turns ledger reports into markdown documents.
package renderer

import (
	"bytes"
	"fmt"

	md "github.com/nao1215/markdown"
	accounting "github.com/priitl/stocks-helper-sub000"
	"github.com/priitl/stocks-helper-sub000/date"
)

// amount renders m, or an empty cell for zero.
func amount(m accounting.Money) string {
	if m.IsZero() {
		return ""
	}
	return m.String()
}

func account(a accounting.ChartAccount) string {
	return fmt.Sprintf("%s %s", a.Code, a.Name)
}

// period names a reporting range: "for 2025-Q3" for a standard period.
func period(r date.Range) string {
	if r.From.IsZero() {
		return fmt.Sprintf("up to %s", r.To)
	}
	if _, ok := r.Period(); ok {
		return "for " + r.Identifier()
	}
	return fmt.Sprintf("from %s to %s", r.From, r.To)
}

func status(balanced bool) string {
	if balanced {
		return "Balanced"
	}
	return md.Bold("Out of balance")
}

// TrialBalanceMarkdown renders a trial balance with one row per account.
func TrialBalanceMarkdown(tb accounting.TrialBalance) string {
	var buf bytes.Buffer
	doc := md.NewMarkdown(&buf)

	doc.H1(fmt.Sprintf("Trial Balance on %s", tb.AsOf))
	table := md.TableSet{
		Alignment: []md.TableAlignment{md.AlignLeft, md.AlignLeft, md.AlignRight, md.AlignRight},
		Header:    []string{"Account", "Type", "Debit", "Credit"},
		Rows:      [][]string{},
	}
	for _, r := range tb.Rows {
		table.Rows = append(table.Rows, []string{
			account(r.Account),
			string(r.Account.Type),
			amount(r.Debit),
			amount(r.Credit),
		})
	}
	table.Rows = append(table.Rows, []string{md.Bold("Total"), "", md.Bold(tb.TotalDebits.String()), md.Bold(tb.TotalCredits.String())})
	doc.Table(table)
	doc.PlainText(status(tb.Balanced))

	return doc.String()
}

func section(doc *md.Markdown, title string, lines []accounting.ReportLine, total accounting.Money, extra ...[]string) {
	doc.H2(title)
	table := md.TableSet{
		Alignment: []md.TableAlignment{md.AlignLeft, md.AlignRight},
		Header:    []string{"Account", "Amount"},
		Rows:      [][]string{},
	}
	for _, l := range lines {
		if l.Amount.IsZero() {
			continue
		}
		table.Rows = append(table.Rows, []string{account(l.Account), l.Amount.String()})
	}
	table.Rows = append(table.Rows, extra...)
	table.Rows = append(table.Rows, []string{md.Bold("Total " + title), md.Bold(total.String())})
	doc.Table(table)
}

// BalanceSheetMarkdown renders assets, liabilities and equity. Accounts with
// a zero balance are left out.
func BalanceSheetMarkdown(bs accounting.BalanceSheet) string {
	var buf bytes.Buffer
	doc := md.NewMarkdown(&buf)

	doc.H1(fmt.Sprintf("Balance Sheet on %s", bs.AsOf))
	section(doc, "Assets", bs.Assets, bs.TotalAssets)
	section(doc, "Liabilities", bs.Liabilities, bs.TotalLiabilities)
	var extra [][]string
	if !bs.NetIncome.IsZero() {
		extra = append(extra, []string{md.Italic("Net income not closed"), bs.NetIncome.String()})
	}
	section(doc, "Equity", bs.Equity, bs.TotalEquity, extra...)
	doc.PlainText(status(bs.Balanced))

	return doc.String()
}

// IncomeStatementMarkdown renders revenue and expenses of a period.
func IncomeStatementMarkdown(is accounting.IncomeStatement) string {
	var buf bytes.Buffer
	doc := md.NewMarkdown(&buf)

	doc.H1(fmt.Sprintf("Income Statement %s", period(is.Range)))
	section(doc, "Revenue", is.Revenue, is.TotalRevenue)
	section(doc, "Expenses", is.Expenses, is.TotalExpenses)
	doc.PlainText(md.Bold(fmt.Sprintf("Net Income: %s", is.NetIncome)))

	return doc.String()
}

// GeneralLedgerMarkdown renders the activity of one account with its running
// balance.
func GeneralLedgerMarkdown(gl accounting.GeneralLedger) string {
	var buf bytes.Buffer
	doc := md.NewMarkdown(&buf)

	doc.H1(fmt.Sprintf("General Ledger: %s", account(gl.Account)))
	doc.PlainText(md.Italic("Activity " + period(gl.Range)))
	table := md.TableSet{
		Alignment: []md.TableAlignment{md.AlignLeft, md.AlignRight, md.AlignLeft, md.AlignRight, md.AlignRight, md.AlignRight},
		Header:    []string{"Date", "Entry", "Description", "Debit", "Credit", "Balance"},
		Rows: [][]string{
			{"", "", md.Italic("Opening balance"), "", "", gl.Opening.String()},
		},
	}
	for _, l := range gl.Lines {
		table.Rows = append(table.Rows, []string{
			l.Date.String(),
			fmt.Sprint(l.EntryNumber),
			l.Description,
			amount(l.Debit),
			amount(l.Credit),
			l.Balance.String(),
		})
	}
	table.Rows = append(table.Rows, []string{"", "", md.Bold("Closing balance"), "", "", md.Bold(gl.Closing.String())})
	doc.Table(table)

	return doc.String()
}
