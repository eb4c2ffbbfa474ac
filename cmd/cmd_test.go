package cmd

import (
	"context"
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/subcommands"
	accounting "github.com/priitl/stocks-helper-sub000"
	"github.com/priitl/stocks-helper-sub000/date"
	"github.com/priitl/stocks-helper-sub000/store"
	"github.com/shopspring/decimal"
)

// setupWorkspace points the global flags to a fresh configuration and
// database in a temporary directory and returns the database path.
func setupWorkspace(t *testing.T) string {
	t.Helper()
	tmp := t.TempDir()
	db := filepath.Join(tmp, "ledger.db")
	cfg := filepath.Join(tmp, "shl.yaml")
	content := "portfolio: test\nbase_currency: EUR\ndatabase: " + db + "\nlog:\n  level: error\n"
	if err := os.WriteFile(cfg, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	t.Setenv("EODHD_API_KEY", "")

	oldConfig, oldEnv, oldPortfolio := *configFile, *envFile, *portfolioName
	*configFile, *envFile, *portfolioName = cfg, filepath.Join(tmp, "missing.env"), ""
	t.Cleanup(func() { *configFile, *envFile, *portfolioName = oldConfig, oldEnv, oldPortfolio })
	return db
}

// execute runs a subcommand with args.
func execute(t *testing.T, c subcommands.Command, args ...string) subcommands.ExitStatus {
	t.Helper()
	f := flag.NewFlagSet(c.Name(), flag.ContinueOnError)
	c.SetFlags(f)
	if err := f.Parse(args); err != nil {
		t.Fatalf("Failed to parse %v: %v", args, err)
	}
	return c.Execute(context.Background(), f)
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	name := filepath.Join(t.TempDir(), "transactions.jsonl")
	if err := os.WriteFile(name, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write transactions: %v", err)
	}
	return name
}

func loadSnapshot(t *testing.T, db string) accounting.Snapshot {
	t.Helper()
	s, err := store.Open(context.Background(), db, nil)
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	defer s.Close()
	snap, err := s.LoadSnapshot(context.Background(), "test")
	if err != nil {
		t.Fatalf("Failed to load snapshot: %v", err)
	}
	return snap
}

const transactions = `{"id":"dep","type":"DEPOSIT","date":"2025-01-02","amount":1000,"currency":"EUR"}
{"id":"buy","type":"BUY","date":"2025-01-03","holding":"ACME","ticker":"ACME","quantity":10,"price":50,"currency":"EUR"}
`

func TestImportRebuild(t *testing.T) {
	db := setupWorkspace(t)

	if status := execute(t, &importCmd{}, writeFile(t, transactions)); status != subcommands.ExitSuccess {
		t.Fatalf("import: expected ExitSuccess, got %v", status)
	}
	snap := loadSnapshot(t, db)
	if len(snap.Transactions) != 2 || len(snap.Entries) != 0 {
		t.Fatalf("after import got %d transactions and %d entries, want 2 and 0", len(snap.Transactions), len(snap.Entries))
	}

	if status := execute(t, &priceCmd{}, "-t", "ACME", "-d", "2025-03-31", "-p", "60"); status != subcommands.ExitSuccess {
		t.Fatalf("price: expected ExitSuccess, got %v", status)
	}
	if status := execute(t, &rebuildCmd{}, "-dry-run", "-d", "2025-03-31"); status != subcommands.ExitSuccess {
		t.Fatalf("rebuild -dry-run: expected ExitSuccess, got %v", status)
	}
	if got := len(loadSnapshot(t, db).Entries); got != 0 {
		t.Errorf("dry run saved %d entries", got)
	}
	if status := execute(t, &rebuildCmd{}, "-d", "2025-03-31"); status != subcommands.ExitSuccess {
		t.Fatalf("rebuild: expected ExitSuccess, got %v", status)
	}

	snap = loadSnapshot(t, db)
	// deposit, buy and mark-to-market
	if len(snap.Entries) != 3 {
		t.Errorf("got %d entries, want 3", len(snap.Entries))
	}
	sys, err := accounting.NewSystem(accounting.Restore(snap))
	if err != nil {
		t.Fatal(err)
	}
	asOf := date.MustParse("2025-03-31")
	if !sys.TrialBalance(asOf).Balanced {
		t.Error("trial balance is not balanced")
	}
	fva, err := sys.Balance(accounting.RoleFairValueAdjustment, asOf)
	if err != nil {
		t.Fatal(err)
	}
	if want := decimal.NewFromInt(100); !fva.Equal(want) {
		t.Errorf("fair value adjustment = %s, want %s", fva, want)
	}

	s, err := store.Open(context.Background(), db, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	backups, err := s.Backups(context.Background(), "test")
	if err != nil {
		t.Fatal(err)
	}
	if len(backups) != 1 || backups[0].Reason != "rebuild" {
		t.Errorf("got backups %+v, want one rebuild backup", backups)
	}
}

func TestImport_Invalid(t *testing.T) {
	db := setupWorkspace(t)
	bad := `{"id":"dep","type":"DEPOSIT","date":"2025-01-02","amount":-5,"currency":"EUR"}` + "\n"
	if status := execute(t, &importCmd{}, writeFile(t, bad)); status != subcommands.ExitFailure {
		t.Errorf("expected ExitFailure, got %v", status)
	}
	if _, err := os.Stat(db); err == nil {
		t.Error("an invalid import opened the database")
	}
}

func TestReports(t *testing.T) {
	setupWorkspace(t)
	if status := execute(t, &importCmd{}, "-post", writeFile(t, transactions)); status != subcommands.ExitSuccess {
		t.Fatalf("import -post: expected ExitSuccess, got %v", status)
	}

	testCases := []struct {
		name string
		cmd  subcommands.Command
		args []string
		want subcommands.ExitStatus
	}{
		{name: "trial balance", cmd: &trialBalanceCmd{}, args: []string{"-d", "2025-12-31"}, want: subcommands.ExitSuccess},
		{name: "balance sheet", cmd: &balanceSheetCmd{}, want: subcommands.ExitSuccess},
		{name: "income", cmd: &incomeCmd{}, args: []string{"-period", "year", "-d", "2025-06-30"}, want: subcommands.ExitSuccess},
		{name: "income bad range", cmd: &incomeCmd{}, args: []string{"-period", "year", "-s", "2025-01-01"}, want: subcommands.ExitUsageError},
		{name: "ledger", cmd: &ledgerCmd{}, args: []string{"-a", "investments"}, want: subcommands.ExitSuccess},
		{name: "ledger unknown role", cmd: &ledgerCmd{}, args: []string{"-a", "suspense"}, want: subcommands.ExitUsageError},
		{name: "lots", cmd: &lotsCmd{}, args: []string{"ACME"}, want: subcommands.ExitSuccess},
		{name: "close", cmd: &closeCmd{}, args: []string{"-d", "2025-12-31"}, want: subcommands.ExitSuccess},
		{name: "backups", cmd: &backupsCmd{}, want: subcommands.ExitSuccess},
		{name: "topic", cmd: &topicCmd{}, args: []string{"rebuild"}, want: subcommands.ExitSuccess},
		{name: "unknown topic", cmd: &topicCmd{}, args: []string{"nope"}, want: subcommands.ExitFailure},
		{name: "sync splits without key", cmd: &syncSplitsCmd{}, args: []string{"ACME"}, want: subcommands.ExitFailure},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := execute(t, tc.cmd, tc.args...); got != tc.want {
				t.Errorf("Execute() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestParseRange(t *testing.T) {
	testCases := []struct {
		start, end, period string
		want               date.Range
		wantErr            bool
	}{
		{end: "2025-05-15", want: date.Range{To: date.MustParse("2025-05-15")}},
		{start: "2025-01-01", end: "2025-05-15", want: date.Range{From: date.MustParse("2025-01-01"), To: date.MustParse("2025-05-15")}},
		{end: "2025-05-15", period: "month", want: date.Range{From: date.MustParse("2025-05-01"), To: date.MustParse("2025-05-31")}},
		{start: "2025-06-01", end: "2025-05-15", wantErr: true},
		{start: "2025-01-01", end: "2025-05-15", period: "month", wantErr: true},
		{end: "2025-05-15", period: "decade", wantErr: true},
		{end: "15/05/2025", wantErr: true},
	}
	for _, tc := range testCases {
		got, err := parseRange(tc.start, tc.end, tc.period)
		if (err != nil) != tc.wantErr {
			t.Errorf("parseRange(%q, %q, %q) error = %v, wantErr %v", tc.start, tc.end, tc.period, err, tc.wantErr)
			continue
		}
		if got != tc.want {
			t.Errorf("parseRange(%q, %q, %q) = %v, want %v", tc.start, tc.end, tc.period, got, tc.want)
		}
	}
}
