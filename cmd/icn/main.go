package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/Hiro-Washi/da-icn/internal/cli/collect"
	"github.com/Hiro-Washi/da-icn/internal/cli/fetch"
	"github.com/Hiro-Washi/da-icn/internal/cli/produce"
	"github.com/Hiro-Washi/da-icn/internal/termio"
)

const version = "v0.1.0"

var commands = map[string]func(ctx context.Context, args []string, out io.Writer) error{
	"fetch":   fetch.Run,
	"produce": produce.Run,
	"collect": collect.Run,
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	defer termio.Flush()
	if len(args) == 0 {
		printUsage()
		return 2
	}
	if args[0] == "--version" || args[0] == "-v" {
		fmt.Fprintf(termio.Stdout(), "icn %s\n", version)
		return 0
	}
	if args[0] == "--help" || args[0] == "-h" || args[0] == "help" {
		printUsage()
		return 0
	}

	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(termio.Stderr(), "unknown command: %s\n", args[0])
		printUsage()
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	err := cmd(ctx, args[1:], termio.Stdout())
	switch {
	case err == nil:
		return 0
	case errors.Is(err, flag.ErrHelp):
		return 0
	case errors.Is(err, context.Canceled):
		fmt.Fprintln(termio.Stderr(), "interrupted")
		return 130
	default:
		fmt.Fprintf(termio.Stderr(), "icn %s: %v\n", args[0], err)
		return 1
	}
}

func printUsage() {
	fmt.Fprintln(termio.Stderr(), "usage: icn <command> [flags]")
	fmt.Fprintln(termio.Stderr(), "commands:")
	fmt.Fprintln(termio.Stderr(), "  fetch    retrieve content chunk by chunk and report throughput")
	fmt.Fprintln(termio.Stderr(), "  produce  serve a content file to consumers")
	fmt.Fprintln(termio.Stderr(), "  collect  receive consumer telemetry over WebSocket")
	fmt.Fprintln(termio.Stderr(), "quick examples:")
	fmt.Fprintln(termio.Stderr(), "  icn produce --file video.mp4 --name ccnx:/test/video")
	fmt.Fprintln(termio.Stderr(), "  icn fetch --addr 10.0.0.2:9000 --runs 5")
	fmt.Fprintln(termio.Stderr(), "  icn collect --addr :8090")
	fmt.Fprintln(termio.Stderr(), "to learn detailed usage:")
	fmt.Fprintln(termio.Stderr(), "  icn <command> --help")
}
