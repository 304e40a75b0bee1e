package era1

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/core/types"

	"github.com/meigma/era/e2store"
)

// BlockTuple is the archived form of one block.
type BlockTuple struct {
	Header          CompressedHeader
	Body            CompressedBody
	Receipts        CompressedReceipts
	TotalDifficulty TotalDifficulty
}

// NewBlockTuple builds a tuple from a block, its receipts and the total
// difficulty at that block. No cross-field consistency is checked.
func NewBlockTuple(block *types.Block, receipts any, td *big.Int) (BlockTuple, error) {
	header, err := NewCompressedHeader(block.Header())
	if err != nil {
		return BlockTuple{}, fmt.Errorf("header: %w", err)
	}
	body, err := NewCompressedBody(block.Body())
	if err != nil {
		return BlockTuple{}, fmt.Errorf("body: %w", err)
	}
	rs, err := NewCompressedReceipts(receipts)
	if err != nil {
		return BlockTuple{}, fmt.Errorf("receipts: %w", err)
	}
	return BlockTuple{
		Header:          header,
		Body:            body,
		Receipts:        rs,
		TotalDifficulty: NewTotalDifficulty(td),
	}, nil
}

// BlockTupleFromEntries assembles a tuple from four entries in archive order.
func BlockTupleFromEntries(header, body, receipts, td e2store.Entry) (BlockTuple, error) {
	var (
		t   BlockTuple
		err error
	)
	if t.Header, err = CompressedHeaderFromEntry(header); err != nil {
		return BlockTuple{}, err
	}
	if t.Body, err = CompressedBodyFromEntry(body); err != nil {
		return BlockTuple{}, err
	}
	if t.Receipts, err = CompressedReceiptsFromEntry(receipts); err != nil {
		return BlockTuple{}, err
	}
	if t.TotalDifficulty, err = TotalDifficultyFromEntry(td); err != nil {
		return BlockTuple{}, err
	}
	return t, nil
}

// Entries returns the tuple's records in archive order.
func (t BlockTuple) Entries() [4]e2store.Entry {
	return [4]e2store.Entry{
		t.Header.Entry(),
		t.Body.Entry(),
		t.Receipts.Entry(),
		t.TotalDifficulty.Entry(),
	}
}

// Block decodes the header and body into a block. A header failure is
// reported before the body is looked at.
func (t BlockTuple) Block() (*types.Block, error) {
	header, err := t.Header.Header()
	if err != nil {
		return nil, fmt.Errorf("header: %w", err)
	}
	body, err := t.Body.Body()
	if err != nil {
		return nil, fmt.Errorf("body: %w", err)
	}
	return types.NewBlockWithHeader(header).WithBody(*body), nil
}
