package accounting

import (
	"fmt"
	"sort"
)

// AccountType is the classification of a ledger account.
type AccountType string

const (
	Asset     AccountType = "ASSET"
	Liability AccountType = "LIABILITY"
	Equity    AccountType = "EQUITY"
	Revenue   AccountType = "REVENUE"
	Expense   AccountType = "EXPENSE"
)

// Side is the debit or credit side of an account.
type Side string

const (
	DebitSide  Side = "DEBIT"
	CreditSide Side = "CREDIT"
)

// NormalSide returns the side on which the account type increases.
func (t AccountType) NormalSide() Side {
	if t == Asset || t == Expense {
		return DebitSide
	}
	return CreditSide
}

// Role identifies an account of the chart independently of its name or code.
type Role int

const (
	RoleCash Role = iota + 1
	RoleBank
	RoleCurrencyClearing
	RoleInvestments
	RoleFairValueAdjustment
	RoleCapital
	RoleRetainedEarnings
	RoleDividendIncome
	RoleInterestIncome
	RoleCapitalGains
	RoleUnrealizedGains
	RoleCurrencyGains
	RoleUnrealizedCurrencyGains
	RoleFees
	RoleTaxes
	RoleCapitalLosses
	RoleUnrealizedLosses
	RoleCurrencyLosses
	RoleUnrealizedCurrencyLosses
)

// accountTemplate describes one account of the standard chart.
type accountTemplate struct {
	role Role
	key  string
	code string
	name string
	typ  AccountType
}

// standardChart lists every account created for a new portfolio, by code.
var standardChart = []accountTemplate{
	{RoleCash, "cash", "1000", "Cash", Asset},
	{RoleBank, "bank", "1100", "Bank Accounts", Asset},
	{RoleCurrencyClearing, "currency_clearing", "1150", "Currency Exchange Clearing", Asset},
	{RoleInvestments, "investments", "1200", "Investments - Securities", Asset},
	{RoleFairValueAdjustment, "fair_value_adjustment", "1210", "Fair Value Adjustment - Investments", Asset},
	{RoleCapital, "capital", "3000", "Owner's Capital", Equity},
	{RoleRetainedEarnings, "retained_earnings", "3100", "Retained Earnings", Equity},
	{RoleDividendIncome, "dividend_income", "4000", "Dividend Income", Revenue},
	{RoleInterestIncome, "interest_income", "4100", "Interest Income", Revenue},
	{RoleCapitalGains, "capital_gains", "4200", "Realized Capital Gains", Revenue},
	{RoleUnrealizedGains, "unrealized_gains", "4210", "Unrealized Gains on Investments", Revenue},
	{RoleCurrencyGains, "currency_gains", "4300", "Realized Currency Gains", Revenue},
	{RoleUnrealizedCurrencyGains, "unrealized_currency_gains", "4310", "Unrealized Currency Gains", Revenue},
	{RoleFees, "fees", "5000", "Fees and Commissions", Expense},
	{RoleTaxes, "taxes", "5100", "Tax Expense", Expense},
	{RoleCapitalLosses, "capital_losses", "5200", "Realized Capital Losses", Expense},
	{RoleUnrealizedLosses, "unrealized_losses", "5210", "Unrealized Losses on Investments", Expense},
	{RoleCurrencyLosses, "currency_losses", "5300", "Realized Currency Losses", Expense},
	{RoleUnrealizedCurrencyLosses, "unrealized_currency_losses", "5310", "Unrealized Currency Losses", Expense},
}

// String returns the stable key of the role, as persisted.
func (r Role) String() string {
	for _, t := range standardChart {
		if t.role == r {
			return t.key
		}
	}
	return fmt.Sprintf("role(%d)", int(r))
}

// ParseRole parses a role key such as "cash" or "unrealized_currency_gains".
func ParseRole(s string) (Role, error) {
	for _, t := range standardChart {
		if t.key == s {
			return t.role, nil
		}
	}
	return 0, fmt.Errorf("unknown account role: %q", s)
}

// ChartAccount is one account of a portfolio's chart of accounts.
// Only Active may change after creation.
type ChartAccount struct {
	ID          string
	PortfolioID string
	Role        Role
	Code        string
	Name        string
	Type        AccountType
	NormalSide  Side
	Currency    string
	Active      bool
}

// newStandardAccounts creates the standard chart for a portfolio.
func newStandardAccounts(portfolioID, currency string) []ChartAccount {
	accounts := make([]ChartAccount, 0, len(standardChart))
	for _, t := range standardChart {
		accounts = append(accounts, ChartAccount{
			ID:          NewID(),
			PortfolioID: portfolioID,
			Role:        t.role,
			Code:        t.code,
			Name:        t.name,
			Type:        t.typ,
			NormalSide:  t.typ.NormalSide(),
			Currency:    currency,
			Active:      true,
		})
	}
	return accounts
}

// Chart resolves roles and ids to accounts. It is built once from the
// accounts of a Book.
type Chart struct {
	byRole map[Role]ChartAccount
	byID   map[string]ChartAccount
}

func newChart(accounts []ChartAccount) *Chart {
	c := &Chart{
		byRole: make(map[Role]ChartAccount, len(accounts)),
		byID:   make(map[string]ChartAccount, len(accounts)),
	}
	for _, a := range accounts {
		c.byRole[a.Role] = a
		c.byID[a.ID] = a
	}
	return c
}

// Account returns the account playing role r.
func (c *Chart) Account(r Role) (ChartAccount, error) {
	a, ok := c.byRole[r]
	if !ok {
		return ChartAccount{}, &MissingAccountError{Role: r}
	}
	return a, nil
}

// ByID returns the account with the given id.
func (c *Chart) ByID(id string) (ChartAccount, bool) {
	a, ok := c.byID[id]
	return a, ok
}

// Accounts returns all accounts ordered by code.
func (c *Chart) Accounts() []ChartAccount {
	accounts := make([]ChartAccount, 0, len(c.byID))
	for _, a := range c.byID {
		accounts = append(accounts, a)
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].Code < accounts[j].Code })
	return accounts
}

// validate checks that every role of the standard chart is present.
func (c *Chart) validate() error {
	for _, t := range standardChart {
		if _, err := c.Account(t.role); err != nil {
			return err
		}
	}
	return nil
}
