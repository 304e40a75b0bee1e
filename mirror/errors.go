package mirror

import (
	"errors"
	"fmt"
)

// Sentinel errors for mirror operations.
var (
	// ErrParse is returned when a manifest or listing cannot be parsed.
	ErrParse = errors.New("mirror: parse failure")

	// ErrSequenceGap is returned when a catalog does not number its files
	// contiguously from zero. It wraps ErrParse.
	ErrSequenceGap = fmt.Errorf("%w: sequence gap", ErrParse)

	// ErrTooLarge is returned when a manifest or listing exceeds its size
	// limit. It wraps ErrParse.
	ErrTooLarge = fmt.Errorf("%w: document too large", ErrParse)

	// ErrUnknownFile is returned when a file is absent from the manifest.
	ErrUnknownFile = errors.New("mirror: file not in checksum manifest")
)
