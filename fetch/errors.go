package fetch

import (
	"errors"
	"fmt"

	"github.com/opencontainers/go-digest"
)

var (
	// ErrDigestMismatch is returned when received content does not match the
	// expected digest.
	ErrDigestMismatch = errors.New("fetch: digest mismatch")

	// ErrIO is returned when the local filesystem fails.
	ErrIO = errors.New("fetch: local i/o failure")
)

// DigestMismatchError reports the expected and actual digest of a transfer
// or a local file.
type DigestMismatchError struct {
	Expected digest.Digest
	Actual   digest.Digest
}

func (e *DigestMismatchError) Error() string {
	return fmt.Sprintf("fetch: digest mismatch: expected %s, got %s", e.Expected, e.Actual)
}

// Is reports whether target is ErrDigestMismatch.
func (e *DigestMismatchError) Is(target error) bool {
	return target == ErrDigestMismatch
}
