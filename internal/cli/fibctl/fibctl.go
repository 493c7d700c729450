package fibctl

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/Hiro-Washi/da-icn/internal/config"
	"github.com/Hiro-Washi/da-icn/internal/fib"
	"github.com/Hiro-Washi/da-icn/internal/logging"
)

// Actions lists the verbs Run accepts.
var Actions = []string{"apply", "remove", "show"}

// Run is the icnfib command: args[0] is the action, the rest are flags.
func Run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("missing action (want one of %v)", Actions)
	}
	cfg, err := config.ParseFibConfig(args[1:])
	if err != nil {
		return err
	}
	logger := logging.New("icnfib", cfg.LogLevel)
	return run(ctx, args[0], cfg, fib.ExecRunner{}, logger, out)
}

func run(ctx context.Context, action string, cfg config.FibConfig, runner fib.Runner, logger *slog.Logger, out io.Writer) error {
	router := fib.Router{Runner: runner, Command: cfg.Command, Sudo: cfg.Sudo}
	if action == "show" {
		listing, err := router.Show(ctx)
		if err != nil {
			return err
		}
		fmt.Fprint(out, listing)
		return nil
	}
	if action != "apply" && action != "remove" {
		return fmt.Errorf("unknown action %q (want one of %v)", action, Actions)
	}

	set := fib.DefaultEntrySet()
	if cfg.File != "" {
		var err error
		if set, err = fib.LoadEntrySet(cfg.File); err != nil {
			return err
		}
	}

	path := fib.DefaultFIBPath
	if set.FIBPath != "" {
		path = set.FIBPath
	}
	if cfg.FIBPath != "" {
		path = cfg.FIBPath
	}
	agent := fib.Agent{Static: fib.StaticFile{Path: path}, Router: router, Logger: logger}

	var res fib.Result
	if action == "apply" {
		res = agent.Apply(ctx, set)
	} else {
		res = agent.Remove(ctx, set)
	}
	fmt.Fprintf(out, "%s: %d changed, %d unchanged, %d failed\n", action, res.Changed, res.Unchanged, res.Failed)
	if res.Failed > 0 {
		return fmt.Errorf("%d FIB entries failed", res.Failed)
	}
	return nil
}
