// Package accounting is a double-entry ledger for an investment portfolio.
//
// It turns normalized brokerage transactions (buys, sells, dividends,
// interest, deposits, withdrawals, fees, taxes and currency conversions) into
// balanced journal entries against a role-keyed chart of accounts.
//
// The core pieces are:
//   - Chart of accounts: a fixed catalogue of accounts per portfolio, looked
//     up by Role rather than by name.
//   - Journal engine: Post produces exactly one balanced entry per
//     transaction, converting foreign amounts into the base currency.
//   - Security lots: one lot per purchase, FIFO matching on disposal and in
//     place rescaling on stock splits.
//   - Currency lots: the same FIFO discipline for foreign cash created by
//     conversions, used to separate FX gains from price gains.
//   - Mark-to-market: incremental revaluation entries that never double
//     count a previous adjustment.
//
// All records live in a Book, an arena addressed by stable ids. A System
// owns one Book and serializes every mutation; storage packages load and
// save Books as a whole, which makes a full rebuild an all-or-nothing unit.
package accounting
