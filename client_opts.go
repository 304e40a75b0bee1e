package era

import (
	"errors"
	"log/slog"
	nethttp "net/http"
	"time"

	erahttp "github.com/meigma/era/http"
	"github.com/meigma/era/mirror"
)

// Option configures a Client.
type Option func(*Client) error

// --- Storage Options ---

// WithDir sets the download directory. It is created on first download.
func WithDir(dir string) Option {
	return func(c *Client) error {
		if dir == "" {
			return errors.New("era: empty download directory")
		}
		c.dir = dir
		return nil
	}
}

// --- Mirror Options ---

// WithMirrors replaces the mirrors used for network, in order of preference.
func WithMirrors(network string, urls ...string) Option {
	return func(c *Client) error {
		if len(urls) == 0 {
			return errors.New("era: no mirrors given")
		}
		if c.mirrors == nil {
			c.mirrors = make(map[string][]string)
		}
		c.mirrors[network] = append([]string(nil), urls...)
		return nil
	}
}

// WithKind selects era or era1 files. The default is era1.
func WithKind(k mirror.Kind) Option {
	return func(c *Client) error {
		if k != mirror.KindEra && k != mirror.KindEra1 {
			return errors.New("era: unknown archive kind")
		}
		c.kind = k
		return nil
	}
}

// --- Transport Options ---

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(client *nethttp.Client) Option {
	return func(c *Client) error {
		c.httpOpts = append(c.httpOpts, erahttp.WithClient(client))
		return nil
	}
}

// WithUserAgent sets the User-Agent header for mirror requests.
func WithUserAgent(ua string) Option {
	return func(c *Client) error {
		c.httpOpts = append(c.httpOpts, erahttp.WithUserAgent(ua))
		return nil
	}
}

// WithHeader sets a header on every mirror request.
func WithHeader(key, value string) Option {
	return func(c *Client) error {
		c.httpOpts = append(c.httpOpts, erahttp.WithHeader(key, value))
		return nil
	}
}

// WithTimeout sets the idle timeout of each network operation. A timeout is
// handled like any other network failure.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) error {
		if d < 0 {
			return errors.New("era: negative timeout")
		}
		c.httpOpts = append(c.httpOpts, erahttp.WithTimeout(d))
		return nil
	}
}

// WithGetter replaces the HTTP capability entirely. Transport options are
// ignored when it is set.
func WithGetter(g erahttp.Getter) Option {
	return func(c *Client) error {
		c.getter = g
		return nil
	}
}

// --- Download Options ---

// WithConcurrency bounds the number of files fetched at once.
func WithConcurrency(n int) Option {
	return func(c *Client) error {
		if n < 1 {
			return errors.New("era: concurrency must be at least 1")
		}
		c.concurrency = n
		return nil
	}
}

// WithRetries sets the number of same-mirror retries after a network failure.
func WithRetries(n int) Option {
	return func(c *Client) error {
		if n < 0 {
			return errors.New("era: negative retries")
		}
		c.retries = n
		return nil
	}
}

// WithLimit caps the number of archive files downloaded. Zero means all.
func WithLimit(n int) Option {
	return func(c *Client) error {
		if n < 0 {
			return errors.New("era: negative limit")
		}
		c.limit = n
		return nil
	}
}

// WithObserver registers a callback for per-file state transitions.
// Implementations must be safe for concurrent calls.
func WithObserver(fn func(Transition)) Option {
	return func(c *Client) error {
		c.observer = fn
		return nil
	}
}

// --- Logging Options ---

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) error {
		c.logger = logger
		return nil
	}
}
