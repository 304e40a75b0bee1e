// Package testutil provides test doubles and fixtures shared across packages.
package testutil

import (
	"bytes"
	"context"
	"fmt"
	"io"
	nethttp "net/http"
	"sync"

	erahttp "github.com/meigma/era/http"
)

// Response is a canned answer for one URL.
type Response struct {
	// Body is served when Err is nil.
	Body []byte
	// Err is returned by Get instead of a body.
	Err error
	// Status, when non-zero and not 200, makes Get fail with a StatusError.
	Status int
	// FailAfter, when positive, interrupts the body with a network error
	// after that many bytes.
	FailAfter int
	// Block makes the body stall until the request context is done.
	Block bool
}

// StubGetter serves canned responses from a URL map and counts requests.
// URLs without a response answer 404. It is safe for concurrent use.
type StubGetter struct {
	mu        sync.Mutex
	responses map[string]Response
	counts    map[string]int
	reads     int64
	order     []string
}

// NewStubGetter returns a StubGetter serving responses.
func NewStubGetter(responses map[string]Response) *StubGetter {
	s := &StubGetter{
		responses: make(map[string]Response, len(responses)),
		counts:    make(map[string]int),
	}
	for url, r := range responses {
		s.responses[url] = r
	}
	return s
}

// Set replaces the response for url.
func (s *StubGetter) Set(url string, r Response) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[url] = r
}

// Get implements http.Getter.
func (s *StubGetter) Get(ctx context.Context, url string) (io.ReadCloser, error) {
	s.mu.Lock()
	s.counts[url]++
	s.order = append(s.order, url)
	r, ok := s.responses[url]
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !ok {
		return nil, &erahttp.StatusError{URL: url, Code: nethttp.StatusNotFound, Status: "404 Not Found"}
	}
	if r.Err != nil {
		return nil, r.Err
	}
	if r.Status != 0 && r.Status != nethttp.StatusOK {
		return nil, &erahttp.StatusError{URL: url, Code: r.Status, Status: fmt.Sprintf("%d %s", r.Status, nethttp.StatusText(r.Status))}
	}
	return &stubBody{
		ctx:   ctx,
		s:     s,
		r:     bytes.NewReader(r.Body),
		url:   url,
		limit: r.FailAfter,
		block: r.Block,
	}, nil
}

// Count returns the number of requests made for url.
func (s *StubGetter) Count(url string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[url]
}

// Total returns the number of requests made for any URL.
func (s *StubGetter) Total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// Requests returns every requested URL in request order.
func (s *StubGetter) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

// BytesRead returns the number of body bytes handed out across all requests.
func (s *StubGetter) BytesRead() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

type stubBody struct {
	ctx   context.Context
	s     *StubGetter
	r     *bytes.Reader
	url   string
	read  int
	limit int
	block bool
}

func (b *stubBody) Read(p []byte) (int, error) {
	if b.block {
		<-b.ctx.Done()
		return 0, b.ctx.Err()
	}
	if err := b.ctx.Err(); err != nil {
		return 0, err
	}
	if b.limit > 0 {
		if b.read >= b.limit {
			return 0, fmt.Errorf("%w: %s: connection reset", erahttp.ErrNetwork, b.url)
		}
		if rem := b.limit - b.read; len(p) > rem {
			p = p[:rem]
		}
	}
	n, err := b.r.Read(p)
	b.read += n
	b.s.mu.Lock()
	b.s.reads += int64(n)
	b.s.mu.Unlock()
	return n, err
}

func (b *stubBody) Close() error { return nil }
