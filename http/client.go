// Package http streams mirror resources over HTTP.
package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	nethttp "net/http"
	"sync"
	"time"
)

// DefaultTimeout is the idle timeout applied to requests when none is set.
const DefaultTimeout = 30 * time.Second

// Getter opens a streaming GET request. The returned body must be closed.
type Getter interface {
	Get(ctx context.Context, url string) (io.ReadCloser, error)
}

// Client implements Getter with net/http.
//
// The timeout is an idle timeout: it bounds the time to receive response
// headers and the time between two successful reads of the body, so a slow
// but steady transfer of a large file never times out.
type Client struct {
	client    *nethttp.Client
	headers   nethttp.Header
	timeout   time.Duration
	userAgent string
}

// Option configures a Client.
type Option func(*Client)

// WithClient sets the HTTP client used for requests.
func WithClient(client *nethttp.Client) Option {
	return func(c *Client) {
		c.client = client
	}
}

// WithHeaders sets additional headers on each request.
func WithHeaders(headers nethttp.Header) Option {
	return func(c *Client) {
		if headers == nil {
			return
		}
		c.headers = headers.Clone()
	}
}

// WithHeader sets a single header on each request.
func WithHeader(key, value string) Option {
	return func(c *Client) {
		if c.headers == nil {
			c.headers = make(nethttp.Header)
		}
		c.headers.Set(key, value)
	}
}

// WithTimeout sets the idle timeout. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// New creates a Client.
func New(opts ...Option) *Client {
	c := &Client{
		client:  nethttp.DefaultClient,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.client == nil {
		c.client = nethttp.DefaultClient
	}
	return c
}

// Get issues a GET request for url and returns the response body once a 200
// status has been received. Transport failures and timeouts wrap ErrNetwork;
// any other status is reported as a *StatusError.
func (c *Client) Get(ctx context.Context, url string) (io.ReadCloser, error) {
	reqCtx, cancel := context.WithCancelCause(ctx)
	w := &watchdog{timeout: c.timeout, cancel: cancel}
	w.start()

	req, err := nethttp.NewRequestWithContext(reqCtx, nethttp.MethodGet, url, nil)
	if err != nil {
		w.stop()
		return nil, fmt.Errorf("http: new request: %w", err)
	}
	for key, values := range c.headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	// Content digests are computed over the stored bytes.
	if req.Header.Get("Accept-Encoding") == "" {
		req.Header.Set("Accept-Encoding", "identity")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		err = classify(ctx, reqCtx, url, err)
		w.stop()
		return nil, err
	}
	if resp.StatusCode != nethttp.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		_ = resp.Body.Close()
		w.stop()
		return nil, &StatusError{URL: url, Code: resp.StatusCode, Status: resp.Status}
	}
	w.touch()
	return &body{
		rc:     resp.Body,
		url:    url,
		parent: ctx,
		ctx:    reqCtx,
		w:      w,
	}, nil
}

// classify maps a transport error to the package taxonomy. Cancellation by
// the caller is returned as is so it never looks like a mirror failure.
func classify(parent, reqCtx context.Context, url string, err error) error {
	if errors.Is(context.Cause(reqCtx), ErrTimeout) {
		return fmt.Errorf("get %s: %w", url, ErrTimeout)
	}
	if parent.Err() != nil {
		return parent.Err()
	}
	return fmt.Errorf("%w: get %s: %w", ErrNetwork, url, err)
}

type watchdog struct {
	timeout time.Duration
	cancel  context.CancelCauseFunc

	mu    sync.Mutex
	timer *time.Timer
}

func (w *watchdog) start() {
	if w.timeout <= 0 {
		return
	}
	w.mu.Lock()
	w.timer = time.AfterFunc(w.timeout, func() { w.cancel(ErrTimeout) })
	w.mu.Unlock()
}

func (w *watchdog) touch() {
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Reset(w.timeout)
	}
	w.mu.Unlock()
}

func (w *watchdog) stop() {
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	w.cancel(nil)
}

type body struct {
	rc     io.ReadCloser
	url    string
	parent context.Context
	ctx    context.Context
	w      *watchdog
	once   sync.Once
}

func (b *body) Read(p []byte) (int, error) {
	n, err := b.rc.Read(p)
	if n > 0 {
		b.w.touch()
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return n, classify(b.parent, b.ctx, b.url, err)
	}
	return n, err
}

func (b *body) Close() error {
	var err error
	b.once.Do(func() {
		err = b.rc.Close()
		b.w.stop()
	})
	return err
}
