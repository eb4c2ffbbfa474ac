package cmd

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/subcommands"
	md "github.com/nao1215/markdown"
)

// --- Backups Command ---

type backupsCmd struct{}

func (*backupsCmd) Name() string     { return "backups" }
func (*backupsCmd) Synopsis() string { return "list ledger backups" }
func (*backupsCmd) Usage() string {
	return `shl backups

  Lists the backups of the portfolio ledger, newest first. A backup is taken
  before every rebuild and every restore.
`
}

func (*backupsCmd) SetFlags(*flag.FlagSet) {}

func (c *backupsCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(ctx, false, func(ctx context.Context, a *app) error {
		backups, err := a.store.Backups(ctx, a.cfg.Portfolio)
		if err != nil {
			return err
		}
		var buf bytes.Buffer
		doc := md.NewMarkdown(&buf)
		doc.H1(fmt.Sprintf("Backups of %s", a.cfg.Portfolio))
		table := md.TableSet{
			Header: []string{"Id", "Created", "Reason"},
			Rows:   [][]string{},
		}
		for _, b := range backups {
			table.Rows = append(table.Rows, []string{b.ID, b.CreatedAt.Local().Format(time.DateTime), b.Reason})
		}
		doc.Table(table)
		printMarkdown(doc.String())
		return nil
	})
}

// --- Restore Command ---

type restoreCmd struct{}

func (*restoreCmd) Name() string     { return "restore" }
func (*restoreCmd) Synopsis() string { return "replace the ledger with a backup" }
func (*restoreCmd) Usage() string {
	return `shl restore <backup-id>

  Replaces the journal, lots, allocations, splits and transactions of the
  portfolio with the content of a backup. The current ledger is backed up
  first.
`
}

func (*restoreCmd) SetFlags(*flag.FlagSet) {}

func (c *restoreCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	id := f.Arg(0)
	return run(ctx, false, func(ctx context.Context, a *app) error {
		snap, err := a.store.LoadBackup(ctx, id)
		if err != nil {
			return err
		}
		if snap.PortfolioID != a.cfg.Portfolio {
			return usageErrorf("backup %s belongs to portfolio %q", id, snap.PortfolioID)
		}
		if _, err := a.store.Backup(ctx, a.sys.Snapshot(), "restore "+id); err != nil {
			return err
		}
		if err := a.store.Save(ctx, snap); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Restored %d entries from backup %s\n", len(snap.Entries), id)
		return nil
	})
}
