package era1

import (
	"encoding/binary"
	"fmt"
	"io"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"

	"github.com/meigma/era/e2store"
)

// Builder writes an era1 archive:
//
//	era1        := Version | block-tuple* | Accumulator | BlockIndex
//	block-tuple := CompressedHeader | CompressedBody | CompressedReceipts | TotalDifficulty
//
// BlockIndex stores the starting block number, one offset per block relative
// to the beginning of the BlockIndex entry, and the block count:
//
//	block-index := starting-number | index | index | index ... | count
//
// A Builder is not safe for concurrent use.
type Builder struct {
	w        *e2store.Writer
	started  bool
	startNum uint64
	indexes  []int64
	hashes   []common.Hash
	tds      []uint256.Int
	written  int64
}

// NewBuilder returns a Builder writing to w.
func NewBuilder(w io.Writer) *Builder {
	return &Builder{w: e2store.NewWriter(w)}
}

// Count returns the number of tuples added so far.
func (b *Builder) Count() int {
	return len(b.indexes)
}

// Add encodes block, receipts and td into a tuple and appends it.
func (b *Builder) Add(block *types.Block, receipts types.Receipts, td *big.Int) error {
	if len(b.indexes) >= MaxBlocks {
		return fmt.Errorf("%w: block %d exceeds limit of %d", ErrTooManyBlocks, block.NumberU64(), MaxBlocks)
	}
	t, err := NewBlockTuple(block, receipts, td)
	if err != nil {
		return err
	}
	return b.AddTuple(t, block.NumberU64(), block.Hash())
}

// AddTuple appends an already encoded tuple for the block with the given
// number and hash. Tuples must be added in ascending block order.
func (b *Builder) AddTuple(t BlockTuple, number uint64, hash common.Hash) error {
	if len(b.indexes) >= MaxBlocks {
		return fmt.Errorf("%w: block %d exceeds limit of %d", ErrTooManyBlocks, number, MaxBlocks)
	}
	if !b.started {
		if err := b.write(e2store.Entry{Type: TypeVersion}); err != nil {
			return err
		}
		b.started = true
		b.startNum = number
	} else if want := b.startNum + uint64(len(b.indexes)); number != want {
		return fmt.Errorf("era1: non-sequential block %d, want %d", number, want)
	}

	b.indexes = append(b.indexes, b.written)
	b.hashes = append(b.hashes, hash)
	b.tds = append(b.tds, t.TotalDifficulty.Value)

	for _, e := range t.Entries() {
		if err := b.write(e); err != nil {
			return err
		}
	}
	return nil
}

// Finalize computes the accumulator, writes it and the block index, and
// returns the accumulator root.
func (b *Builder) Finalize() (common.Hash, error) {
	if !b.started {
		return common.Hash{}, ErrEmpty
	}
	root, err := ComputeAccumulator(b.hashes, b.tds)
	if err != nil {
		return common.Hash{}, fmt.Errorf("compute accumulator: %w", err)
	}
	if err := b.write(Accumulator{Root: root}.Entry()); err != nil {
		return common.Hash{}, fmt.Errorf("write accumulator: %w", err)
	}

	base := b.written
	count := len(b.indexes)
	index := make([]byte, 16+count*8)
	binary.LittleEndian.PutUint64(index, b.startNum)
	// Offsets are relative to the start of the index entry, so they are
	// negative for every block.
	for i, off := range b.indexes {
		binary.LittleEndian.PutUint64(index[8+i*8:], uint64(off-base)) //nolint:gosec // two's complement on purpose
	}
	binary.LittleEndian.PutUint64(index[8+count*8:], uint64(count))
	if err := b.write(e2store.Entry{Type: TypeBlockIndex, Value: index}); err != nil {
		return common.Hash{}, fmt.Errorf("write block index: %w", err)
	}
	return root, nil
}

func (b *Builder) write(e e2store.Entry) error {
	n, err := b.w.Write(e.Type, e.Value)
	b.written += int64(n)
	if err != nil {
		return fmt.Errorf("write entry %#04x: %w", e.Type, err)
	}
	return nil
}
