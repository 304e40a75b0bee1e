package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/urfave/cli/v2"

	"github.com/meigma/era"
	"github.com/meigma/era/era1"
)

var downloadCommand = &cli.Command{
	Name:  "download",
	Usage: "download and verify the archive files of a network",
	Flags: []cli.Flag{
		networkFlag,
		dirFlag,
		mirrorFlag,
		concurrencyFlag,
		retriesFlag,
		timeoutFlag,
		limitFlag,
	},
	Action: download,
}

var verifyCommand = &cli.Command{
	Name:      "verify",
	Usage:     "check the accumulator of local archive files",
	ArgsUsage: "<file.era1> [file.era1...]",
	Action:    verify,
}

var inspectCommand = &cli.Command{
	Name:      "inspect",
	Usage:     "print the blocks of an archive file",
	ArgsUsage: "<file.era1>",
	Action:    inspect,
}

func clientOptions(cfg config) []era.Option {
	opts := []era.Option{
		era.WithDir(cfg.Dir),
		era.WithLimit(cfg.Limit),
		era.WithLogger(slog.Default()),
		era.WithObserver(func(t era.Transition) {
			slog.Debug("transition", "file", t.File, "state", t.State, "mirror", t.Mirror, "cached", t.Cached)
		}),
	}
	if len(cfg.Mirrors) > 0 {
		opts = append(opts, era.WithMirrors(cfg.Network, cfg.Mirrors...))
	}
	if cfg.Concurrency != 0 {
		opts = append(opts, era.WithConcurrency(cfg.Concurrency))
	}
	if cfg.Retries != nil {
		opts = append(opts, era.WithRetries(*cfg.Retries))
	}
	if cfg.Timeout.Duration != 0 {
		opts = append(opts, era.WithTimeout(cfg.Timeout.Duration))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, era.WithUserAgent(cfg.UserAgent))
	}
	return opts
}

func download(ctx *cli.Context) error {
	cfg, err := resolveConfig(ctx)
	if err != nil {
		return err
	}
	c, err := era.NewClient(clientOptions(cfg)...)
	if err != nil {
		return err
	}

	var (
		start = time.Now()
		files int
		bytes int64
	)
	for f, err := range c.Download(ctx.Context, cfg.Network) {
		if err != nil {
			return err
		}
		files++
		bytes += f.Size
		fmt.Fprintln(ctx.App.Writer, f.Path)
	}
	slog.Info("download complete", "network", cfg.Network, "files", files, "bytes", bytes,
		"elapsed", common.PrettyDuration(time.Since(start)))
	return nil
}

func verify(ctx *cli.Context) error {
	paths := ctx.Args().Slice()
	if len(paths) == 0 {
		return errors.New("verify: no files given")
	}
	c, err := era.NewClient(era.WithLogger(slog.Default()))
	if err != nil {
		return err
	}
	infos, err := c.VerifyAll(ctx.Context, paths)
	if err != nil {
		return err
	}
	for i, info := range infos {
		fmt.Fprintf(ctx.App.Writer, "%s\tblocks %d-%d\troot %s\n",
			paths[i], info.StartNumber, info.StartNumber+uint64(info.Count)-1, info.Root) //nolint:gosec // count is at most 8192
	}
	return nil
}

func inspect(ctx *cli.Context) error {
	if ctx.Args().Len() != 1 {
		return errors.New("inspect: exactly one file expected")
	}
	path := ctx.Args().First()
	f, err := os.Open(path) //nolint:gosec // path is chosen by the user
	if err != nil {
		return err
	}
	defer f.Close()

	w := ctx.App.Writer
	r := era1.NewReader(f)
	for {
		t, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		block, err := t.Block()
		if err != nil {
			return fmt.Errorf("%s: block %d: %w", path, r.Count()-1, err)
		}
		receipts, err := t.Receipts.Receipts()
		if err != nil {
			return fmt.Errorf("%s: block %d: receipts: %w", path, block.NumberU64(), err)
		}
		fmt.Fprintf(w, "%d\t%s\ttxs %d\treceipts %d\ttd %s\n",
			block.NumberU64(), block.Hash(), len(block.Transactions()), len(receipts), t.TotalDifficulty.Big())
	}
	acc, _ := r.Accumulator()
	fmt.Fprintf(w, "start %d\tcount %d\taccumulator %s\n", r.StartNumber(), r.Count(), acc.Root)
	return nil
}
