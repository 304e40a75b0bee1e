// Package download obtains verified archive files from a list of mirrors.
//
// Discovery reads the listing and checksum manifest of the first mirror that
// serves both. Every file of the resulting catalog then runs through an
// explicit per-file state machine (see State) that reuses a verified local
// copy when one exists and otherwise tries the mirrors strictly in order.
// Results are exposed as a lazy sequence in catalog order.
package download

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/meigma/era/fetch"
	erahttp "github.com/meigma/era/http"
	"github.com/meigma/era/mirror"
)

// Defaults.
const (
	DefaultConcurrency = 4
	DefaultRetries     = 2
)

// Downloader fetches the files of one network from a set of mirrors into a
// local directory.
type Downloader struct {
	mirrors     []*mirror.Mirror
	dir         string
	getter      erahttp.Getter
	concurrency int
	retries     int
	newBackOff  func() backoff.BackOff
	limit       int
	kind        mirror.Kind
	logger      *slog.Logger
	observer    func(Transition)
	mirrorOpts  []mirror.Option
	fetchOpts   []fetch.Option
	fetcher     *fetch.Fetcher
}

// Option configures a Downloader.
type Option func(*Downloader)

// WithGetter sets the HTTP capability. The default is an http.Client with
// default settings.
func WithGetter(g erahttp.Getter) Option {
	return func(d *Downloader) {
		d.getter = g
	}
}

// WithConcurrency bounds the number of files fetched at the same time. It
// also bounds how far ahead of the consumer fetching may run.
func WithConcurrency(n int) Option {
	return func(d *Downloader) {
		d.concurrency = n
	}
}

// WithRetries sets the number of same-mirror retries after a transport
// failure before falling back to the next mirror.
func WithRetries(n int) Option {
	return func(d *Downloader) {
		d.retries = n
	}
}

// WithBackOff sets the factory for the delay policy between same-mirror
// retries.
func WithBackOff(fn func() backoff.BackOff) Option {
	return func(d *Downloader) {
		d.newBackOff = fn
	}
}

// WithLimit caps the number of catalog files considered. Zero means all.
func WithLimit(n int) Option {
	return func(d *Downloader) {
		d.limit = n
	}
}

// WithKind selects era or era1 files. The default is era1.
func WithKind(k mirror.Kind) Option {
	return func(d *Downloader) {
		d.kind = k
	}
}

// WithLogger sets the logger. It is also handed to the mirrors and fetcher.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Downloader) {
		d.logger = logger
	}
}

// WithObserver registers a callback invoked on every state transition. It
// may be called from several goroutines at once.
func WithObserver(fn func(Transition)) Option {
	return func(d *Downloader) {
		d.observer = fn
	}
}

// WithMirrorOptions passes options to every mirror.
func WithMirrorOptions(opts ...mirror.Option) Option {
	return func(d *Downloader) {
		d.mirrorOpts = append(d.mirrorOpts, opts...)
	}
}

// WithFetchOptions passes options to the fetcher.
func WithFetchOptions(opts ...fetch.Option) Option {
	return func(d *Downloader) {
		d.fetchOpts = append(d.fetchOpts, opts...)
	}
}

// New returns a Downloader writing into dir and using mirrors in order of
// preference.
func New(dir string, mirrors []string, opts ...Option) (*Downloader, error) {
	if len(mirrors) == 0 {
		return nil, ErrNoMirrors
	}
	d := &Downloader{
		dir:         dir,
		concurrency: DefaultConcurrency,
		retries:     DefaultRetries,
		kind:        mirror.KindEra1,
		newBackOff:  defaultBackOff,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.getter == nil {
		d.getter = erahttp.New()
	}
	if d.concurrency < 1 {
		d.concurrency = 1
	}
	if d.retries < 0 {
		d.retries = 0
	}
	if d.newBackOff == nil {
		d.newBackOff = defaultBackOff
	}

	mopts := d.mirrorOpts
	fopts := d.fetchOpts
	if d.logger != nil {
		mopts = append([]mirror.Option{mirror.WithLogger(d.logger)}, mopts...)
		fopts = append([]fetch.Option{fetch.WithLogger(d.logger)}, fopts...)
	}
	for _, base := range mirrors {
		m, err := mirror.New(base, d.getter, mopts...)
		if err != nil {
			return nil, err
		}
		d.mirrors = append(d.mirrors, m)
	}
	d.fetcher = fetch.New(d.getter, fopts...)
	return d, nil
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	return b
}

// log returns the logger, falling back to a discard logger if nil.
func (d *Downloader) log() *slog.Logger {
	if d.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return d.logger
}

// Dir returns the destination directory.
func (d *Downloader) Dir() string {
	return d.dir
}

// Files returns the verified files of network in sequence order.
//
// The sequence is lazy: discovery happens when iteration starts and at most
// the configured concurrency of files is fetched ahead of the consumer. A
// file that every mirror fails to deliver yields a *FailedError and iteration
// continues with the next file. Discovery failure or cancellation of ctx
// yields a single error and ends the sequence. Stopping early cancels
// in-flight fetches and removes their temporary files before the iteration
// returns. The sequence can be iterated once; a second iteration yields
// ErrRestarted.
func (d *Downloader) Files(ctx context.Context, network string) iter.Seq2[fetch.File, error] {
	var used atomic.Bool
	return func(yield func(fetch.File, error) bool) {
		if used.Swap(true) {
			yield(fetch.File{}, ErrRestarted)
			return
		}
		d.iterate(ctx, network, yield)
	}
}

type result struct {
	file fetch.File
	err  error
}

func (d *Downloader) iterate(ctx context.Context, network string, yield func(fetch.File, error) bool) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	r := &run{d: d, network: network, meta: make(map[int]*metadata)}
	primary, err := r.discover(ctx)
	if err != nil {
		yield(fetch.File{}, err)
		return
	}

	entries := primary.catalog.Entries()
	if d.limit > 0 && len(entries) > d.limit {
		entries = entries[:d.limit]
	}
	d.log().Info("discovered files", "network", network, "mirror", d.mirrors[r.primary].URL(), "files", len(entries))

	var (
		wg      sync.WaitGroup
		sem     = semaphore.NewWeighted(int64(d.concurrency))
		results = make([]chan result, len(entries))
	)
	for i := range results {
		results[i] = make(chan result, 1)
	}
	// Workers are torn down before returning so no temporary file outlives
	// the iteration.
	defer func() {
		cancel()
		wg.Wait()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i, e := range entries {
			if err := sem.Acquire(ctx, 1); err != nil {
				return
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				f, err := r.obtain(ctx, e)
				results[i] <- result{file: f, err: err}
			}()
		}
	}()

	for i := range entries {
		var res result
		select {
		case res = <-results[i]:
		case <-ctx.Done():
			yield(fetch.File{}, ctx.Err())
			return
		}
		sem.Release(1)
		if res.err != nil && ctx.Err() != nil {
			yield(fetch.File{}, ctx.Err())
			return
		}
		if !yield(res.file, res.err) {
			return
		}
	}
}

// metadata is one mirror's catalog and manifest for the current run.
type metadata struct {
	catalog *mirror.Catalog
	sums    *mirror.Checksums
	err     error
}

// run holds the per-iteration state shared by all files.
type run struct {
	d       *Downloader
	network string
	primary int

	group singleflight.Group
	mu    sync.Mutex
	meta  map[int]*metadata
}

// discover returns the metadata of the first mirror serving both a listing
// and a manifest.
func (r *run) discover(ctx context.Context) (*metadata, error) {
	var errs []error
	for i, m := range r.d.mirrors {
		md, err := r.metadata(ctx, i)
		if err == nil {
			r.primary = i
			return md, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		r.d.log().Warn("mirror discovery failed", "mirror", m.URL(), "err", err)
		errs = append(errs, fmt.Errorf("%s: %w", m.URL(), err))
	}
	return nil, fmt.Errorf("%w: %w", ErrDiscovery, errors.Join(errs...))
}

// metadata fetches the listing and manifest of mirror i at most once per run.
// Failures other than cancellation are remembered so a broken mirror is not
// asked again for every file.
func (r *run) metadata(ctx context.Context, i int) (*metadata, error) {
	r.mu.Lock()
	if md, ok := r.meta[i]; ok {
		r.mu.Unlock()
		return md, md.err
	}
	r.mu.Unlock()

	v, _, _ := r.group.Do(strconv.Itoa(i), func() (any, error) {
		m := r.d.mirrors[i]
		md := &metadata{}
		md.catalog, md.err = m.List(ctx, r.network, r.d.kind)
		if md.err == nil {
			md.sums, md.err = m.Checksums(ctx)
		}
		if md.err != nil && ctx.Err() != nil {
			return md, nil
		}
		r.mu.Lock()
		r.meta[i] = md
		r.mu.Unlock()
		return md, nil
	})
	md := v.(*metadata) //nolint:forcetypeassert // the group only stores *metadata
	return md, md.err
}

func (r *run) observe(name string, s State, idx int, cached bool) {
	if r.d.observer != nil {
		r.d.observer(Transition{File: name, State: s, Mirror: idx, Cached: cached})
	}
}

// obtain drives one file through the state machine.
func (r *run) obtain(ctx context.Context, e mirror.Entry) (fetch.File, error) {
	var (
		dest     = filepath.Join(r.d.dir, e.Name)
		state    = StatePending
		idx      int
		attempts []Attempt
	)
	r.observe(e.Name, state, -1, false)
	for {
		switch state {
		case StatePending:
			if f, ok := r.local(ctx, e.Name, dest); ok {
				r.observe(e.Name, StateDone, -1, true)
				return f, nil
			}
			state, idx = StateVerifying, 0

		case StateVerifying:
			r.observe(e.Name, state, idx, false)
			m := r.d.mirrors[idx]
			f, err := r.fromMirror(ctx, idx, e.Name, dest)
			if err == nil {
				r.d.log().Info("downloaded file", "file", e.Name, "mirror", m.URL(), "bytes", f.Size)
				r.observe(e.Name, StateDone, idx, false)
				return f, nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return fetch.File{}, ctxErr
			}
			attempts = append(attempts, Attempt{Mirror: m.URL(), Err: err})
			if idx+1 < len(r.d.mirrors) {
				r.d.log().Warn("mirror failed, falling back", "file", e.Name, "mirror", m.URL(), "err", err)
				idx++
				continue
			}
			state = StateFailed

		case StateFailed:
			r.observe(e.Name, state, -1, false)
			r.d.log().Warn("file failed on all mirrors", "file", e.Name, "attempt", len(attempts))
			return fetch.File{}, &FailedError{File: e.Name, Attempts: attempts}

		default:
			return fetch.File{}, fmt.Errorf("download: %s: invalid state %s", e.Name, state)
		}
	}
}

// local reports an existing destination file that matches the manifest of
// the primary mirror.
func (r *run) local(ctx context.Context, name, dest string) (fetch.File, bool) {
	if _, err := os.Stat(dest); err != nil {
		return fetch.File{}, false
	}
	md, err := r.metadata(ctx, r.primary)
	if err != nil {
		return fetch.File{}, false
	}
	expected, err := md.sums.Lookup(name)
	if err != nil {
		return fetch.File{}, false
	}
	f, err := fetch.Verify(dest, expected)
	if err != nil {
		r.d.log().Debug("local file not usable", "file", name, "err", err)
		return fetch.File{}, false
	}
	r.d.log().Debug("using verified local file", "file", name)
	return f, true
}

// fromMirror fetches name from mirror i, retrying transport failures.
func (r *run) fromMirror(ctx context.Context, i int, name, dest string) (fetch.File, error) {
	md, err := r.metadata(ctx, i)
	if err != nil {
		return fetch.File{}, err
	}
	entry, ok := md.catalog.ByName(name)
	if !ok {
		return fetch.File{}, fmt.Errorf("%w: %s", ErrNotListed, name)
	}
	expected, err := md.sums.Lookup(name)
	if err != nil {
		return fetch.File{}, err
	}

	var (
		f       fetch.File
		attempt int
	)
	op := func() error {
		attempt++
		var err error
		f, err = r.d.fetcher.Fetch(ctx, entry.URL, expected, dest)
		if err != nil && !retryable(ctx, err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		r.d.log().Debug("retrying fetch", "file", name, "url", entry.URL, "attempt", attempt, "wait", wait, "err", err)
	}
	b := backoff.WithContext(backoff.WithMaxRetries(r.d.newBackOff(), uint64(r.d.retries)), ctx) //nolint:gosec // retries is non-negative
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		return fetch.File{}, err
	}
	return f, nil
}

// retryable reports whether a same-mirror retry may help.
func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil || !errors.Is(err, erahttp.ErrNetwork) {
		return false
	}
	var se *erahttp.StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	return true
}
