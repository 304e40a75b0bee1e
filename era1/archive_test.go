package era1_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/era/e2store"
	"github.com/meigma/era/era1"
	"github.com/meigma/era/internal/testutil"
)

func readAll(t *testing.T, data []byte) []era1.BlockTuple {
	t.Helper()
	r := era1.NewReader(bytes.NewReader(data))
	var out []era1.BlockTuple
	for {
		tuple, err := r.Next()
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		out = append(out, tuple)
	}
}

func entries(t *testing.T, data []byte) []e2store.Entry {
	t.Helper()
	r := e2store.NewReader(bytes.NewReader(data))
	var out []e2store.Entry
	for {
		e, err := r.Read()
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		out = append(out, e)
	}
}

func encode(t *testing.T, es []e2store.Entry) []byte {
	t.Helper()
	var buf bytes.Buffer
	for _, e := range es {
		require.NoError(t, e2store.WriteEntry(&buf, e))
	}
	return buf.Bytes()
}

func TestArchiveRoundTrip(t *testing.T) {
	t.Parallel()

	chain := testutil.NewChain(8192, 16)
	data, root := chain.Archive(t)

	es := entries(t, data)
	require.Len(t, es, 1+16*4+2)
	assert.Equal(t, era1.TypeVersion, es[0].Type)
	assert.Empty(t, es[0].Value)
	assert.Equal(t, era1.TypeAccumulator, es[len(es)-2].Type)
	assert.Equal(t, era1.TypeBlockIndex, es[len(es)-1].Type)

	// Index offsets point back at each header entry.
	index := es[len(es)-1].Value
	require.Len(t, index, 16+16*8)
	assert.Equal(t, uint64(8192), binary.LittleEndian.Uint64(index))
	assert.Equal(t, uint64(16), binary.LittleEndian.Uint64(index[len(index)-8:]))
	indexStart := int64(len(data)) - es[len(es)-1].Size()
	for i := range 16 {
		off := int64(binary.LittleEndian.Uint64(index[8+i*8:])) //nolint:gosec // offsets are negative on purpose
		header, err := e2store.ReadEntry(bytes.NewReader(data[indexStart+off:]))
		require.NoError(t, err)
		assert.Equal(t, era1.TypeCompressedHeader, header.Type, "block %d", i)
	}

	tuples := readAll(t, data)
	require.Len(t, tuples, 16)
	for i, tuple := range tuples {
		block, err := tuple.Block()
		require.NoError(t, err)
		assert.Equal(t, chain.Blocks[i].Hash(), block.Hash())
		receipts, err := tuple.Receipts.Receipts()
		require.NoError(t, err)
		assert.Equal(t, mustRLP(t, chain.Receipts[i]), mustRLP(t, receipts))
		assert.Zero(t, chain.TDs[i].Cmp(tuple.TotalDifficulty.Big()))
	}

	info, err := era1.Verify(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, era1.Info{StartNumber: 8192, Count: 16, Root: root}, info)
	assert.Equal(t, "mainnet-00001-"+common.Bytes2Hex(root[:4])+".era1", era1.Filename("mainnet", 1, root))
}

func TestBuilderRejectsTooManyBlocks(t *testing.T) {
	t.Parallel()

	chain := testutil.NewChain(0, 1)
	tuple, err := era1.NewBlockTuple(chain.Blocks[0], chain.Receipts[0], chain.TDs[0])
	require.NoError(t, err)

	b := era1.NewBuilder(io.Discard)
	for i := range era1.MaxBlocks {
		require.NoError(t, b.AddTuple(tuple, uint64(i), common.Hash{byte(i)})) //nolint:gosec // bounded by MaxBlocks
	}
	require.Equal(t, era1.MaxBlocks, b.Count())

	err = b.AddTuple(tuple, era1.MaxBlocks, common.Hash{})
	require.ErrorIs(t, err, era1.ErrTooManyBlocks)
	err = b.Add(chain.Blocks[0], chain.Receipts[0], chain.TDs[0])
	require.ErrorIs(t, err, era1.ErrTooManyBlocks)
	assert.Equal(t, era1.MaxBlocks, b.Count())

	hashes := make([]common.Hash, era1.MaxBlocks+1)
	tds := make([]uint256.Int, era1.MaxBlocks+1)
	_, err = era1.ComputeAccumulator(hashes, tds)
	require.ErrorIs(t, err, era1.ErrTooManyBlocks)
}

func TestBuilderErrors(t *testing.T) {
	t.Parallel()

	_, err := era1.NewBuilder(io.Discard).Finalize()
	require.ErrorIs(t, err, era1.ErrEmpty)

	chain := testutil.NewChain(10, 2)
	b := era1.NewBuilder(io.Discard)
	require.NoError(t, b.Add(chain.Blocks[0], chain.Receipts[0], chain.TDs[0]))
	tuple, err := era1.NewBlockTuple(chain.Blocks[1], chain.Receipts[1], chain.TDs[1])
	require.NoError(t, err)
	require.Error(t, b.AddTuple(tuple, 12, chain.Blocks[1].Hash()))
}

func TestComputeAccumulator(t *testing.T) {
	t.Parallel()

	hashes := []common.Hash{{1}, {2}}
	tds := []uint256.Int{*uint256.NewInt(1), *uint256.NewInt(2)}

	a, err := era1.ComputeAccumulator(hashes, tds)
	require.NoError(t, err)
	again, err := era1.ComputeAccumulator(hashes, tds)
	require.NoError(t, err)
	assert.Equal(t, a, again)

	tds[1] = *uint256.NewInt(3)
	changed, err := era1.ComputeAccumulator(hashes, tds)
	require.NoError(t, err)
	assert.NotEqual(t, a, changed)

	_, err = era1.ComputeAccumulator(hashes, tds[:1])
	require.Error(t, err)
}

func TestVerifyDetectsTampering(t *testing.T) {
	t.Parallel()

	data, _ := testutil.NewChain(0, 4).Archive(t)
	es := entries(t, data)

	// Swap in the total difficulty of another block.
	tampered := append([]e2store.Entry(nil), es...)
	tampered[4] = era1.NewTotalDifficulty(nil).Entry()
	_, err := era1.Verify(bytes.NewReader(encode(t, tampered)))
	require.ErrorIs(t, err, era1.ErrAccumulatorMismatch)

	// Replace the stored root.
	tampered = append([]e2store.Entry(nil), es...)
	tampered[len(tampered)-2] = era1.Accumulator{Root: common.Hash{0xff}}.Entry()
	_, err = era1.Verify(bytes.NewReader(encode(t, tampered)))
	require.ErrorIs(t, err, era1.ErrAccumulatorMismatch)
}

func TestReaderMalformed(t *testing.T) {
	t.Parallel()

	data, _ := testutil.NewChain(0, 2).Archive(t)
	es := entries(t, data)
	n := len(es)
	splice := func(parts ...[]e2store.Entry) []byte {
		var all []e2store.Entry
		for _, p := range parts {
			all = append(all, p...)
		}
		return encode(t, all)
	}
	unknown := e2store.Entry{Type: 0x7777, Value: []byte("skip me")}

	for _, tt := range []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, era1.ErrMalformed},
		{"no version", splice(es[1:]), era1.ErrWrongEntryType},
		{"no index", splice(es[:n-1]), era1.ErrMalformed},
		{"index before accumulator", splice(es[:n-2], es[n-1:]), era1.ErrMalformed},
		{"body before header", splice(es[:1], es[2:]), era1.ErrWrongEntryType},
		{"tuple after accumulator", splice(es[:5], es[n-2:n-1], es[5:n-2], es[n-1:]), era1.ErrMalformed},
		{"trailing entry", splice(es, []e2store.Entry{unknown}), era1.ErrMalformed},
		{"count mismatch", splice(es[:5], es[n-2:]), era1.ErrMalformed},
		{"truncated tuple", splice(es[:7]), e2store.ErrTruncated},
		{"truncated bytes", data[:len(data)-3], e2store.ErrTruncated},
	} {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := era1.NewReader(bytes.NewReader(tt.data))
			var err error
			for err == nil {
				_, err = r.Next()
			}
			require.ErrorIs(t, err, tt.want)
		})
	}

	t.Run("unknown between tuples", func(t *testing.T) {
		t.Parallel()

		tuples := readAll(t, splice(es[:5], []e2store.Entry{unknown}, es[5:]))
		assert.Len(t, tuples, 2)
	})
}
