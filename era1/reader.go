package era1

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/meigma/era/e2store"
)

// Reader reads block tuples sequentially from an era1 archive.
//
// Next returns tuples in file order and io.EOF once the accumulator and block
// index have been consumed. Unknown record kinds are skipped when they appear
// between tuples. A Reader is not safe for concurrent use.
type Reader struct {
	r           *e2store.Reader
	started     bool
	done        bool
	count       int
	start       uint64
	accumulator *Accumulator
}

// NewReader returns a Reader consuming the archive in r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: e2store.NewReader(r)}
}

// Next returns the next block tuple.
func (r *Reader) Next() (BlockTuple, error) {
	if r.done {
		return BlockTuple{}, io.EOF
	}
	if !r.started {
		e, err := r.read()
		if err != nil {
			return BlockTuple{}, err
		}
		if e.Type != TypeVersion {
			return BlockTuple{}, fmt.Errorf("%w: %w", ErrMalformed,
				&EntryTypeError{Record: "Version", Want: TypeVersion, Have: e.Type})
		}
		r.started = true
	}

	for {
		e, err := r.read()
		if err != nil {
			return BlockTuple{}, err
		}
		switch e.Type {
		case TypeCompressedHeader:
			if r.accumulator != nil {
				return BlockTuple{}, fmt.Errorf("%w: block tuple after accumulator at offset %d", ErrMalformed, r.r.Offset())
			}
			return r.tuple(e)
		case TypeCompressedBody, TypeCompressedReceipts, TypeTotalDifficulty:
			return BlockTuple{}, fmt.Errorf("%w: %w", ErrMalformed,
				&EntryTypeError{Record: "CompressedHeader", Want: TypeCompressedHeader, Have: e.Type})
		case TypeAccumulator:
			if r.accumulator != nil {
				return BlockTuple{}, fmt.Errorf("%w: duplicate accumulator", ErrMalformed)
			}
			acc, err := AccumulatorFromEntry(e)
			if err != nil {
				return BlockTuple{}, err
			}
			r.accumulator = &acc
		case TypeBlockIndex:
			if err := r.index(e); err != nil {
				return BlockTuple{}, err
			}
			if _, err := r.r.Read(); !errors.Is(err, io.EOF) {
				if err == nil {
					err = errors.New("trailing data after block index")
				}
				return BlockTuple{}, fmt.Errorf("%w: %w", ErrMalformed, err)
			}
			r.done = true
			return BlockTuple{}, io.EOF
		case TypeVersion:
			return BlockTuple{}, fmt.Errorf("%w: unexpected version record at offset %d", ErrMalformed, r.r.Offset())
		}
	}
}

// Count returns the number of tuples read so far.
func (r *Reader) Count() int {
	return r.count
}

// StartNumber returns the number of the first block as recorded in the block
// index. It is only meaningful after Next has returned io.EOF.
func (r *Reader) StartNumber() uint64 {
	return r.start
}

// Accumulator returns the stored accumulator once it has been read.
func (r *Reader) Accumulator() (Accumulator, bool) {
	if r.accumulator == nil {
		return Accumulator{}, false
	}
	return *r.accumulator, true
}

func (r *Reader) read() (e2store.Entry, error) {
	e, err := r.r.Read()
	if errors.Is(err, io.EOF) {
		if !r.started {
			return e2store.Entry{}, fmt.Errorf("%w: missing version record", ErrMalformed)
		}
		return e2store.Entry{}, fmt.Errorf("%w: missing block index", ErrMalformed)
	}
	return e, err
}

func (r *Reader) tuple(header e2store.Entry) (BlockTuple, error) {
	if r.count >= MaxBlocks {
		return BlockTuple{}, fmt.Errorf("%w: more than %d tuples", ErrTooManyBlocks, MaxBlocks)
	}
	var rest [3]e2store.Entry
	for i := range rest {
		e, err := r.r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = fmt.Errorf("%w: incomplete block tuple", e2store.ErrTruncated)
			}
			return BlockTuple{}, err
		}
		rest[i] = e
	}
	t, err := BlockTupleFromEntries(header, rest[0], rest[1], rest[2])
	if err != nil {
		return BlockTuple{}, err
	}
	r.count++
	return t, nil
}

func (r *Reader) index(e e2store.Entry) error {
	if r.accumulator == nil {
		return fmt.Errorf("%w: block index before accumulator", ErrMalformed)
	}
	if len(e.Value) < 16 || (len(e.Value)-16)%8 != 0 {
		return fmt.Errorf("%w: block index of %d bytes", ErrMalformed, len(e.Value))
	}
	count := binary.LittleEndian.Uint64(e.Value[len(e.Value)-8:])
	if slots := uint64(len(e.Value)-16) / 8; slots != count {
		return fmt.Errorf("%w: block index holds %d offsets but declares %d", ErrMalformed, slots, count)
	}
	if count != uint64(r.count) { //nolint:gosec // count is bounded by MaxBlocks
		return fmt.Errorf("%w: block index declares %d blocks, read %d", ErrMalformed, count, r.count)
	}
	r.start = binary.LittleEndian.Uint64(e.Value[:8])
	return nil
}

// Info summarizes a verified archive.
type Info struct {
	StartNumber uint64
	Count       int
	Root        common.Hash
}

// Verify reads the whole archive in r, decodes every header, checks that
// block numbers are contiguous from the index start, and recomputes the
// accumulator. A recomputed root that differs from the stored one yields
// ErrAccumulatorMismatch.
func Verify(r io.Reader) (Info, error) {
	var (
		rd     = NewReader(r)
		hashes []common.Hash
		tds    []uint256.Int
		first  uint64
	)
	for {
		t, err := rd.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Info{}, err
		}
		h, err := t.Header.Header()
		if err != nil {
			return Info{}, fmt.Errorf("block %d: header: %w", len(hashes), err)
		}
		n := h.Number.Uint64()
		if len(hashes) == 0 {
			first = n
		} else if want := first + uint64(len(hashes)); n != want {
			return Info{}, fmt.Errorf("%w: block %d where %d was expected", ErrMalformed, n, want)
		}
		hashes = append(hashes, h.Hash())
		tds = append(tds, t.TotalDifficulty.Value)
	}
	if len(hashes) == 0 {
		return Info{}, ErrEmpty
	}
	if rd.StartNumber() != first {
		return Info{}, fmt.Errorf("%w: index starts at %d, first block is %d", ErrMalformed, rd.StartNumber(), first)
	}

	stored, _ := rd.Accumulator()
	root, err := ComputeAccumulator(hashes, tds)
	if err != nil {
		return Info{}, err
	}
	if root != stored.Root {
		return Info{}, fmt.Errorf("%w: stored %s, computed %s", ErrAccumulatorMismatch, stored.Root, root)
	}
	return Info{StartNumber: first, Count: len(hashes), Root: root}, nil
}
