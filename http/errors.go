package http

import (
	"errors"
	"fmt"
	nethttp "net/http"
)

var (
	// ErrNetwork is returned for transport failures: connection errors,
	// interrupted bodies, non-200 responses and timeouts.
	ErrNetwork = errors.New("http: network failure")

	// ErrTimeout is returned when a request makes no progress within the
	// configured idle timeout. It wraps ErrNetwork.
	ErrTimeout = fmt.Errorf("%w: timeout", ErrNetwork)
)

// StatusError reports a response with a status other than 200 OK.
type StatusError struct {
	URL    string
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http: get %s: %s", e.URL, e.Status)
}

// Is reports whether target is ErrNetwork.
func (e *StatusError) Is(target error) bool {
	return target == ErrNetwork
}

// Temporary reports whether a retry against the same server may succeed.
func (e *StatusError) Temporary() bool {
	return e.Code >= nethttp.StatusInternalServerError ||
		e.Code == nethttp.StatusTooManyRequests ||
		e.Code == nethttp.StatusRequestTimeout
}
