package testutil

import (
	"bytes"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"github.com/meigma/era/era1"
)

// Chain is a run of synthetic blocks with receipts and total difficulties.
type Chain struct {
	Blocks   []*types.Block
	Receipts []types.Receipts
	TDs      []*big.Int
}

// NewChain builds n linked blocks starting at number start. Every block
// carries one legacy transaction and one receipt with a log.
func NewChain(start uint64, n int) *Chain {
	c := &Chain{}
	parent := common.Hash{}
	td := new(big.Int)
	for i := range n {
		num := start + uint64(i) //nolint:gosec // test sizes are small
		header := &types.Header{
			ParentHash: parent,
			Number:     new(big.Int).SetUint64(num),
			Difficulty: big.NewInt(int64(1000 + i)),
			GasLimit:   30_000_000,
			GasUsed:    21_000,
			Time:       1_438_269_973 + num*13,
			Extra:      []byte("era test"),
		}
		tx := types.NewTx(&types.LegacyTx{
			Nonce:    num,
			To:       &common.Address{byte(i), 0x01},
			Value:    big.NewInt(int64(i)),
			Gas:      21_000,
			GasPrice: big.NewInt(1),
			Data:     []byte{byte(i)},
		})
		block := types.NewBlockWithHeader(header).WithBody(types.Body{Transactions: []*types.Transaction{tx}})
		receipts := types.Receipts{{
			Status:            types.ReceiptStatusSuccessful,
			CumulativeGasUsed: 21_000,
			Logs: []*types.Log{{
				Address: common.Address{0xee},
				Topics:  []common.Hash{{byte(i)}},
				Data:    []byte{0xca, 0xfe},
			}},
		}}
		receipts[0].Bloom = types.CreateBloom(receipts)

		td = new(big.Int).Add(td, header.Difficulty)
		c.Blocks = append(c.Blocks, block)
		c.Receipts = append(c.Receipts, receipts)
		c.TDs = append(c.TDs, td)
		parent = block.Hash()
	}
	return c
}

// Archive encodes the chain as an era1 file and returns its bytes and
// accumulator root.
func (c *Chain) Archive(tb testing.TB) ([]byte, common.Hash) {
	tb.Helper()

	var buf bytes.Buffer
	b := era1.NewBuilder(&buf)
	for i, block := range c.Blocks {
		require.NoError(tb, b.Add(block, c.Receipts[i], c.TDs[i]))
	}
	root, err := b.Finalize()
	require.NoError(tb, err)
	return buf.Bytes(), root
}
