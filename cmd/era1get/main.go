// Command era1get downloads, verifies and inspects era1 history archives.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/log"
	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v2"
)

var (
	configFlag = &cli.PathFlag{
		Name:    "config",
		Usage:   "TOML configuration file",
		EnvVars: []string{"ERA1GET_CONFIG"},
	}
	verbosityFlag = &cli.IntFlag{
		Name:  "verbosity",
		Usage: "log level: 0=silent, 1=error, 2=warn, 3=info, 4=debug, 5=trace",
		Value: 3,
	}
	networkFlag = &cli.StringFlag{
		Name:    "network",
		Aliases: []string{"n"},
		Usage:   "network whose history is downloaded",
		Value:   defaultNetwork,
	}
	dirFlag = &cli.PathFlag{
		Name:    "dir",
		Aliases: []string{"d"},
		Usage:   "download directory",
		Value:   defaultDir,
	}
	mirrorFlag = &cli.StringSliceFlag{
		Name:  "mirror",
		Usage: "mirror base URL, in order of preference (repeatable)",
	}
	concurrencyFlag = &cli.IntFlag{
		Name:  "concurrency",
		Usage: "files fetched in parallel",
	}
	retriesFlag = &cli.IntFlag{
		Name:  "retries",
		Usage: "same-mirror retries after a network failure",
	}
	timeoutFlag = &cli.DurationFlag{
		Name:  "timeout",
		Usage: "idle timeout of each network operation",
	}
	limitFlag = &cli.IntFlag{
		Name:  "limit",
		Usage: "download at most this many files (0 = all)",
	}
)

func newApp() *cli.App {
	return &cli.App{
		Name:  "era1get",
		Usage: "fetch and verify era1 history archives",
		Flags: []cli.Flag{configFlag, verbosityFlag},
		Before: func(ctx *cli.Context) error {
			setupLogger(ctx.Int(verbosityFlag.Name))
			return nil
		},
		Commands: []*cli.Command{
			downloadCommand,
			verifyCommand,
			inspectCommand,
		},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func setupLogger(verbosity int) {
	color := isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
	h := log.NewTerminalHandlerWithLevel(os.Stderr, log.FromLegacyLevel(verbosity), color)
	slog.SetDefault(slog.New(h))
}
