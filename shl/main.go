// Command shl maintains the double-entry ledger of an investment portfolio.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path"

	"github.com/google/subcommands"
	"github.com/posener/complete/v2"
	"github.com/posener/complete/v2/predict"
	accounting "github.com/priitl/stocks-helper-sub000"
	"github.com/priitl/stocks-helper-sub000/cmd"
)

func main() {
	name := path.Base(os.Args[0])
	commander := subcommands.NewCommander(flag.CommandLine, name)
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(commander.CommandsCommand(), "")
	cmd.Register(commander)

	// Exits when invoked by the shell to complete the command line.
	completion(commander).Complete(name)

	flag.Parse()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	os.Exit(int(commander.Execute(ctx)))
}

// completion describes the command line of every registered subcommand.
func completion(commander *subcommands.Commander) *complete.Command {
	var roles predict.Set
	for r := accounting.RoleCash; r <= accounting.RoleUnrealizedCurrencyLosses; r++ {
		roles = append(roles, r.String())
	}
	periods := predict.Set{"day", "week", "month", "quarter", "year"}
	root := &complete.Command{
		Sub:   map[string]*complete.Command{},
		Flags: flagPredictors(flag.CommandLine, nil),
	}
	root.Flags["config"] = predict.Files("*.yaml")
	root.Flags["env"] = predict.Files("*")

	commander.VisitCommands(func(_ *subcommands.CommandGroup, c subcommands.Command) {
		fs := flag.NewFlagSet(c.Name(), flag.ContinueOnError)
		c.SetFlags(fs)
		sub := &complete.Command{Flags: flagPredictors(fs, map[string]complete.Predictor{
			"a":      roles,
			"period": periods,
		})}
		if c.Name() == "import" {
			sub.Args = predict.Files("*.jsonl")
		}
		root.Sub[c.Name()] = sub
	})
	return root
}

// flagPredictors predicts nothing for boolean flags, the known values of
// flags listed in known, and anything for the others.
func flagPredictors(fs *flag.FlagSet, known map[string]complete.Predictor) map[string]complete.Predictor {
	out := make(map[string]complete.Predictor)
	fs.VisitAll(func(f *flag.Flag) {
		if p, ok := known[f.Name]; ok {
			out[f.Name] = p
			return
		}
		if b, ok := f.Value.(interface{ IsBoolFlag() bool }); ok && b.IsBoolFlag() {
			out[f.Name] = predict.Nothing
			return
		}
		out[f.Name] = predict.Something
	})
	return out
}
