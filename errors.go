package era

import (
	"errors"

	"github.com/meigma/era/download"
	"github.com/meigma/era/e2store"
	"github.com/meigma/era/era1"
	"github.com/meigma/era/fetch"
	erahttp "github.com/meigma/era/http"
	"github.com/meigma/era/mirror"
)

// ErrUnknownNetwork is returned when no mirrors are known for a network.
var ErrUnknownNetwork = errors.New("era: unknown network")

// Errors re-exported from the codec packages.
var (
	// ErrTruncated is returned when an entry is cut short.
	ErrTruncated = e2store.ErrTruncated

	// ErrWrongEntryType is returned when a record has an unexpected type tag.
	ErrWrongEntryType = era1.ErrWrongEntryType

	// ErrBadLength is returned when a fixed-size record has the wrong length.
	ErrBadLength = era1.ErrBadLength

	// ErrDecompression is returned when a snappy frame is corrupt.
	ErrDecompression = era1.ErrDecompression

	// ErrDeserialize is returned when a record does not decode.
	ErrDeserialize = era1.ErrDeserialize

	// ErrTooManyBlocks is returned when an archive exceeds 8192 blocks.
	ErrTooManyBlocks = era1.ErrTooManyBlocks

	// ErrMalformed is returned when an archive's record sequence is invalid.
	ErrMalformed = era1.ErrMalformed

	// ErrAccumulatorMismatch is returned when a recomputed accumulator root
	// differs from the stored one.
	ErrAccumulatorMismatch = era1.ErrAccumulatorMismatch
)

// Errors re-exported from the transfer packages.
var (
	// ErrNetwork is returned for transport failures, including timeouts.
	ErrNetwork = erahttp.ErrNetwork

	// ErrTimeout is returned when a request stalls. It wraps ErrNetwork.
	ErrTimeout = erahttp.ErrTimeout

	// ErrParse is returned when a listing or manifest is malformed.
	ErrParse = mirror.ErrParse

	// ErrSequenceGap is returned when a catalog is not numbered contiguously.
	ErrSequenceGap = mirror.ErrSequenceGap

	// ErrUnknownFile is returned when a file is absent from a manifest.
	ErrUnknownFile = mirror.ErrUnknownFile

	// ErrDigestMismatch is returned when content does not match its digest.
	ErrDigestMismatch = fetch.ErrDigestMismatch

	// ErrDiscovery is returned when no mirror can be discovered.
	ErrDiscovery = download.ErrDiscovery

	// ErrFailed is returned for a file every mirror failed to deliver.
	ErrFailed = download.ErrFailed
)
