package download

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoMirrors is returned when a Downloader is built without mirrors.
	ErrNoMirrors = errors.New("download: no mirrors configured")

	// ErrDiscovery is returned when no mirror serves a usable listing and
	// checksum manifest.
	ErrDiscovery = errors.New("download: no mirror could be discovered")

	// ErrFailed is returned for a file that could not be obtained from any
	// mirror.
	ErrFailed = errors.New("download: all mirrors failed")

	// ErrNotListed is recorded when a mirror's catalog lacks a file.
	ErrNotListed = errors.New("download: file not listed by mirror")

	// ErrRestarted is yielded when a sequence returned by Files is iterated
	// a second time.
	ErrRestarted = errors.New("download: sequence already consumed")
)

// Attempt is the outcome of trying one mirror for one file.
type Attempt struct {
	Mirror string
	Err    error
}

// FailedError reports a file that every mirror failed to deliver, with the
// last error from each mirror in the order they were tried.
type FailedError struct {
	File     string
	Attempts []Attempt
}

func (e *FailedError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "download: %s: all %d mirrors failed", e.File, len(e.Attempts))
	for _, a := range e.Attempts {
		fmt.Fprintf(&b, "; %s: %v", a.Mirror, a.Err)
	}
	return b.String()
}

// Is reports whether target is ErrFailed.
func (e *FailedError) Is(target error) bool {
	return target == ErrFailed
}

// Unwrap returns the error of every attempt.
func (e *FailedError) Unwrap() []error {
	errs := make([]error, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		errs = append(errs, a.Err)
	}
	return errs
}
