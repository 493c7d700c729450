package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Hiro-Washi/da-icn/internal/cli/fibctl"
	"github.com/Hiro-Washi/da-icn/internal/termio"
)

const version = "v0.1.0"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	defer termio.Flush()
	if len(args) == 0 {
		printUsage()
		return 2
	}
	switch args[0] {
	case "--help", "-h", "help":
		printUsage()
		return 0
	case "--version", "-v":
		fmt.Fprintf(termio.Stdout(), "icnfib %s\n", version)
		return 0
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := fibctl.Run(ctx, args, termio.Stdout()); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(termio.Stderr(), "icnfib: %v\n", err)
		return 1
	}
	return 0
}

func printUsage() {
	fmt.Fprintln(termio.Stderr(), "usage: icnfib <apply|remove|show> [flags]")
	fmt.Fprintln(termio.Stderr(), "  apply   add static entries to the FIB file and dynamic entries via cefroute")
	fmt.Fprintln(termio.Stderr(), "  remove  undo apply")
	fmt.Fprintln(termio.Stderr(), "  show    print the running FIB")
	fmt.Fprintln(termio.Stderr(), "flags:")
	fmt.Fprintln(termio.Stderr(), "  --file PATH      TOML entry set (default: built-in testbed entries)")
	fmt.Fprintln(termio.Stderr(), "  --fib-path PATH  static FIB file (default /etc/cefnetd/cefnetd.fib)")
	fmt.Fprintln(termio.Stderr(), "  --cefroute BIN   cefroute binary (default cefroute)")
	fmt.Fprintln(termio.Stderr(), "  --sudo=false     run cefroute without sudo")
}
