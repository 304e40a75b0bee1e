package era

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/meigma/era/download"
	"github.com/meigma/era/era1"
	"github.com/meigma/era/fetch"
	erahttp "github.com/meigma/era/http"
	"github.com/meigma/era/mirror"
)

type (
	// File is a verified local archive file.
	File = fetch.File

	// Info summarizes a verified archive.
	Info = era1.Info

	// Transition reports a state change of one file during Download.
	Transition = download.Transition
)

// Client downloads and verifies era1 archives.
type Client struct {
	dir         string
	mirrors     map[string][]string
	getter      erahttp.Getter
	httpOpts    []erahttp.Option
	concurrency int
	retries     int
	limit       int
	kind        mirror.Kind
	logger      *slog.Logger
	observer    func(Transition)
}

// NewClient creates a client with the given options.
//
// Without options it downloads era1 files into the working directory from
// [DefaultMirrors] over HTTPS.
func NewClient(opts ...Option) (*Client, error) {
	c := &Client{
		dir:         ".",
		concurrency: download.DefaultConcurrency,
		retries:     download.DefaultRetries,
		kind:        mirror.KindEra1,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if c.getter == nil {
		c.getter = erahttp.New(c.httpOpts...)
	}
	return c, nil
}

// log returns the logger, falling back to a discard logger if nil.
func (c *Client) log() *slog.Logger {
	if c.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.logger
}

// Dir returns the download directory.
func (c *Client) Dir() string {
	return c.dir
}

// MirrorsFor returns the mirrors the client uses for network.
func (c *Client) MirrorsFor(network string) ([]string, error) {
	if m, ok := c.mirrors[network]; ok {
		return m, nil
	}
	return Mirrors(network)
}

// Download returns the verified archive files of network in sequence order.
// See [download.Downloader.Files] for the iteration contract. Setup errors
// are yielded as the only element.
func (c *Client) Download(ctx context.Context, network string) iter.Seq2[File, error] {
	return func(yield func(File, error) bool) {
		mirrors, err := c.MirrorsFor(network)
		if err != nil {
			yield(File{}, err)
			return
		}
		if err := os.MkdirAll(c.dir, 0o750); err != nil {
			yield(File{}, fmt.Errorf("era: create %s: %w", c.dir, err))
			return
		}
		opts := []download.Option{
			download.WithGetter(c.getter),
			download.WithConcurrency(c.concurrency),
			download.WithRetries(c.retries),
			download.WithLimit(c.limit),
			download.WithKind(c.kind),
		}
		if c.logger != nil {
			opts = append(opts, download.WithLogger(c.logger))
		}
		if c.observer != nil {
			opts = append(opts, download.WithObserver(c.observer))
		}
		d, err := download.New(c.dir, mirrors, opts...)
		if err != nil {
			yield(File{}, err)
			return
		}
		c.log().Debug("starting download", "network", network, "dir", c.dir, "mirrors", len(mirrors))
		d.Files(ctx, network)(yield)
	}
}

// Verify decodes the archive at path and checks its accumulator.
func (c *Client) Verify(ctx context.Context, path string) (Info, error) {
	if err := ctx.Err(); err != nil {
		return Info{}, err
	}
	f, err := os.Open(path) //nolint:gosec // path is chosen by the caller
	if err != nil {
		return Info{}, err
	}
	defer f.Close()

	info, err := era1.Verify(f)
	if err != nil {
		return Info{}, fmt.Errorf("%s: %w", path, err)
	}
	c.log().Debug("verified archive", "file", path, "blocks", info.Count, "root", info.Root)
	return info, nil
}

// VerifyAll verifies several archives in parallel and returns their
// summaries in input order. It stops at the first failure.
func (c *Client) VerifyAll(ctx context.Context, paths []string) ([]Info, error) {
	infos := make([]Info, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, p := range paths {
		g.Go(func() error {
			info, err := c.Verify(ctx, p)
			if err != nil {
				return err
			}
			infos[i] = info
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return infos, nil
}
