// Package mirror discovers archive files and their checksums at an HTTP
// mirror.
//
// A mirror is identified by a base URL. Its directory listing is the
// document at the base URL and its checksum manifest is checksums.txt
// resolved against it, so both
//
//	https://mainnet.era1.nimbus.team/
//	https://era.ithaca.xyz/era1/index.html
//
// are valid bases. A Mirror keeps no state between calls; every call to List
// or Checksums fetches a fresh document.
package mirror

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"

	erahttp "github.com/meigma/era/http"
)

// Default document size limits.
const (
	DefaultListingLimit  = 16 << 20
	DefaultManifestLimit = 4 << 20
)

// ChecksumsFile is the manifest name resolved against the mirror base.
const ChecksumsFile = "checksums.txt"

// Mirror reads listings and manifests from one base URL.
type Mirror struct {
	base          *url.URL
	getter        erahttp.Getter
	logger        *slog.Logger
	listingLimit  int64
	manifestLimit int64
}

// Option configures a Mirror.
type Option func(*Mirror)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Mirror) {
		m.logger = logger
	}
}

// WithListingLimit caps the size of the directory listing in bytes.
func WithListingLimit(n int64) Option {
	return func(m *Mirror) {
		m.listingLimit = n
	}
}

// WithManifestLimit caps the size of the checksum manifest in bytes.
func WithManifestLimit(n int64) Option {
	return func(m *Mirror) {
		m.manifestLimit = n
	}
}

// New returns a Mirror rooted at base.
func New(base string, getter erahttp.Getter, opts ...Option) (*Mirror, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("mirror: parse base %q: %w", base, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("mirror: base %q must be an absolute URL", base)
	}
	m := &Mirror{
		base:          u,
		getter:        getter,
		listingLimit:  DefaultListingLimit,
		manifestLimit: DefaultManifestLimit,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// log returns the logger, falling back to a discard logger if nil.
func (m *Mirror) log() *slog.Logger {
	if m.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return m.logger
}

// URL returns the base URL.
func (m *Mirror) URL() string {
	return m.base.String()
}

// ChecksumsURL returns the URL of the checksum manifest.
func (m *Mirror) ChecksumsURL() string {
	return m.base.ResolveReference(&url.URL{Path: ChecksumsFile}).String()
}

// Checksums fetches and parses the checksum manifest.
func (m *Mirror) Checksums(ctx context.Context) (*Checksums, error) {
	u := m.ChecksumsURL()
	m.log().Debug("fetching checksums", "mirror", m.URL(), "url", u)

	rc, err := m.getter.Get(ctx, u)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	c, err := ParseChecksums(limit(rc, m.manifestLimit))
	if err != nil {
		return nil, err
	}
	m.log().Debug("parsed checksums", "mirror", m.URL(), "files", c.Len())
	return c, nil
}

// List fetches the directory listing and returns the catalog of files for
// network and kind.
func (m *Mirror) List(ctx context.Context, network string, kind Kind) (*Catalog, error) {
	u := m.URL()
	m.log().Debug("fetching listing", "mirror", u, "network", network, "kind", kind)

	rc, err := m.getter.Get(ctx, u)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	entries, err := ParseListing(limit(rc, m.listingLimit), m.base)
	if err != nil {
		return nil, err
	}
	c, err := NewCatalog(entries, network, kind)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", u, err)
	}
	m.log().Debug("parsed listing", "mirror", u, "files", c.Len())
	return c, nil
}

// limit returns a reader that fails with ErrTooLarge once more than n bytes
// have been read. A non-positive n disables the limit.
func limit(r io.Reader, n int64) io.Reader {
	if n <= 0 {
		return r
	}
	return &limitedReader{r: r, n: n}
}

type limitedReader struct {
	r io.Reader
	n int64
}

func (l *limitedReader) Read(p []byte) (int, error) {
	if l.n < 0 {
		return 0, ErrTooLarge
	}
	if int64(len(p)) > l.n+1 {
		p = p[:l.n+1]
	}
	n, err := l.r.Read(p)
	l.n -= int64(n)
	if l.n < 0 {
		return 0, ErrTooLarge
	}
	return n, err
}
