package era1

import (
	"errors"
	"fmt"
)

// Sentinel errors for era1 encoding and decoding.
var (
	// ErrCompression is returned when a value cannot be serialized or framed.
	ErrCompression = errors.New("era1: compression failed")

	// ErrDecompression is returned when a snappy frame is corrupt or truncated.
	ErrDecompression = errors.New("era1: decompression failed")

	// ErrDeserialize is returned when decompressed bytes do not decode into
	// the requested type.
	ErrDeserialize = errors.New("era1: deserialization failed")

	// ErrWrongEntryType is returned when an entry carries an unexpected type tag.
	ErrWrongEntryType = errors.New("era1: wrong entry type")

	// ErrBadLength is returned when a fixed-size entry has the wrong length.
	ErrBadLength = errors.New("era1: bad entry length")

	// ErrTooManyBlocks is returned when an archive would exceed MaxBlocks tuples.
	ErrTooManyBlocks = errors.New("era1: too many blocks")

	// ErrEmpty is returned when finalizing an archive without blocks.
	ErrEmpty = errors.New("era1: empty archive")

	// ErrMalformed is returned when the record sequence of a file is invalid.
	ErrMalformed = errors.New("era1: malformed archive")

	// ErrAccumulatorMismatch is returned when a recomputed accumulator root
	// differs from the one stored in the file.
	ErrAccumulatorMismatch = errors.New("era1: accumulator mismatch")
)

// EntryTypeError reports an entry whose type tag does not match the record
// kind expected at its position.
type EntryTypeError struct {
	Record string
	Want   uint16
	Have   uint16
}

func (e *EntryTypeError) Error() string {
	return fmt.Sprintf("era1: invalid entry type for %s: want %#04x, have %#04x", e.Record, e.Want, e.Have)
}

// Is reports whether target is ErrWrongEntryType.
func (e *EntryTypeError) Is(target error) bool {
	return target == ErrWrongEntryType
}

// LengthError reports a fixed-size entry with an unexpected payload length.
type LengthError struct {
	Record string
	Want   int
	Have   int
}

func (e *LengthError) Error() string {
	return fmt.Sprintf("era1: invalid data length for %s: want %d, have %d", e.Record, e.Want, e.Have)
}

// Is reports whether target is ErrBadLength.
func (e *LengthError) Is(target error) bool {
	return target == ErrBadLength
}
