// Package fetch streams a remote file to disk while verifying its digest.
//
// Content is written to a uniquely named temporary file in the destination
// directory and renamed into place only after the running digest matches.
// The destination path therefore either does not exist or holds verified
// content; it is never partially written.
package fetch

import (
	"context"
	_ "crypto/sha256" // registers the digest algorithm
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/opencontainers/go-digest"

	erahttp "github.com/meigma/era/http"
)

// DefaultBufferSize is the chunk size used for streaming.
const DefaultBufferSize = 256 << 10

// File is a verified local file.
type File struct {
	Path   string
	Size   int64
	Digest digest.Digest
}

// Fetcher downloads files through a Getter.
type Fetcher struct {
	getter  erahttp.Getter
	bufSize int
	logger  *slog.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithBufferSize sets the chunk size.
func WithBufferSize(n int) Option {
	return func(f *Fetcher) {
		f.bufSize = n
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Fetcher) {
		f.logger = logger
	}
}

// New returns a Fetcher using getter for transfers.
func New(getter erahttp.Getter, opts ...Option) *Fetcher {
	f := &Fetcher{getter: getter, bufSize: DefaultBufferSize}
	for _, opt := range opts {
		opt(f)
	}
	if f.bufSize <= 0 {
		f.bufSize = DefaultBufferSize
	}
	return f
}

// log returns the logger, falling back to a discard logger if nil.
func (f *Fetcher) log() *slog.Logger {
	if f.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return f.logger
}

// Fetch downloads url to dest and verifies it against expected.
//
// Transport failures wrap http.ErrNetwork, a digest mismatch returns a
// *DigestMismatchError and filesystem failures wrap ErrIO. Cancellation of
// ctx is returned as ctx.Err(). On every failure the temporary file is
// removed and dest is left untouched. A retried fetch starts from byte zero.
func (f *Fetcher) Fetch(ctx context.Context, url string, expected digest.Digest, dest string) (File, error) {
	if err := expected.Validate(); err != nil {
		return File{}, fmt.Errorf("fetch: expected digest %q: %w", expected, err)
	}

	part, err := createPart(dest)
	if err != nil {
		return File{}, fmt.Errorf("%w: create temporary file for %s: %w", ErrIO, dest, err)
	}
	defer part.Discard() //nolint:errcheck // best-effort cleanup, no-op after Commit

	f.log().Debug("fetching file", "url", url, "file", dest)
	rc, err := f.getter.Get(ctx, url)
	if err != nil {
		return File{}, err
	}
	defer rc.Close()

	var (
		digester = expected.Algorithm().Digester()
		buf      = make([]byte, f.bufSize)
		size     int64
	)
	for {
		if err := ctx.Err(); err != nil {
			return File{}, err
		}
		n, rerr := rc.Read(buf)
		if n > 0 {
			// Hash and write in receipt order.
			_, _ = digester.Hash().Write(buf[:n]) //nolint:errcheck // hash writes never fail
			if _, err := part.Write(buf[:n]); err != nil {
				return File{}, fmt.Errorf("%w: write %s: %w", ErrIO, part.tmpPath, err)
			}
			size += int64(n)
		}
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			return File{}, readError(ctx, url, rerr)
		}
	}

	actual := digester.Digest()
	if actual != expected {
		f.log().Warn("digest mismatch", "url", url, "expected", expected, "actual", actual, "bytes", size)
		return File{}, &DigestMismatchError{Expected: expected, Actual: actual}
	}
	if err := part.Commit(); err != nil {
		return File{}, fmt.Errorf("%w: commit %s: %w", ErrIO, dest, err)
	}
	f.log().Debug("fetched file", "url", url, "file", dest, "bytes", size)
	return File{Path: dest, Size: size, Digest: actual}, nil
}

func readError(ctx context.Context, url string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, erahttp.ErrNetwork) {
		return err
	}
	return fmt.Errorf("%w: read %s: %w", erahttp.ErrNetwork, url, err)
}

// Verify hashes the local file at path and compares it with expected.
// A missing file yields an error wrapping fs.ErrNotExist.
func Verify(path string, expected digest.Digest) (File, error) {
	if err := expected.Validate(); err != nil {
		return File{}, fmt.Errorf("fetch: expected digest %q: %w", expected, err)
	}
	fh, err := os.Open(path) //nolint:gosec // path is chosen by the caller
	if err != nil {
		return File{}, fmt.Errorf("%w: %w", ErrIO, err)
	}
	defer fh.Close()

	digester := expected.Algorithm().Digester()
	size, err := io.CopyBuffer(digester.Hash(), fh, make([]byte, DefaultBufferSize))
	if err != nil {
		return File{}, fmt.Errorf("%w: read %s: %w", ErrIO, path, err)
	}
	if actual := digester.Digest(); actual != expected {
		return File{}, &DigestMismatchError{Expected: expected, Actual: actual}
	}
	return File{Path: path, Size: size, Digest: expected}, nil
}
