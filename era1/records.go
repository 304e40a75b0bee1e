package era1

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"

	"github.com/meigma/era/e2store"
)

// Record type tags.
const (
	TypeVersion            uint16 = 0x3265
	TypeCompressedHeader   uint16 = 0x03
	TypeCompressedBody     uint16 = 0x04
	TypeCompressedReceipts uint16 = 0x05
	TypeTotalDifficulty    uint16 = 0x06
	TypeAccumulator        uint16 = 0x07
	TypeBlockIndex         uint16 = 0x3266
)

// MaxBlocks is the maximum number of block tuples in one era1 file. It is
// bounded by the list limit of the accumulator.
const MaxBlocks = 8192

// Compressed is implemented by every snappy-framed RLP record.
type Compressed interface {
	Bytes() []byte
}

// As decodes a compressed record into a value of type T. The same record can
// be decoded into different shapes; receipts, for example, decode either as
// types.Receipts or as a single types.Receipt depending on what was stored.
func As[T any](c Compressed) (T, error) {
	return Decode[T](c.Bytes())
}

func checkType(record string, want uint16, e e2store.Entry) error {
	if e.Type != want {
		return &EntryTypeError{Record: record, Want: want, Have: e.Type}
	}
	return nil
}

// CompressedHeader holds snappyFramed(rlp(header)).
type CompressedHeader struct {
	Data []byte
}

// NewCompressedHeader encodes and compresses h.
func NewCompressedHeader(h *types.Header) (CompressedHeader, error) {
	data, err := Encode(h)
	if err != nil {
		return CompressedHeader{}, err
	}
	return CompressedHeader{Data: data}, nil
}

// CompressedHeaderFromEntry validates the entry type and wraps its value.
func CompressedHeaderFromEntry(e e2store.Entry) (CompressedHeader, error) {
	if err := checkType("CompressedHeader", TypeCompressedHeader, e); err != nil {
		return CompressedHeader{}, err
	}
	return CompressedHeader{Data: e.Value}, nil
}

// Bytes returns the compressed payload.
func (c CompressedHeader) Bytes() []byte { return c.Data }

// Entry converts the record into an e2store entry.
func (c CompressedHeader) Entry() e2store.Entry {
	return e2store.Entry{Type: TypeCompressedHeader, Value: c.Data}
}

// Header decodes the record into a block header.
func (c CompressedHeader) Header() (*types.Header, error) {
	h, err := As[types.Header](c)
	if err != nil {
		return nil, err
	}
	return &h, nil
}

// CompressedBody holds snappyFramed(rlp(body)).
type CompressedBody struct {
	Data []byte
}

// NewCompressedBody encodes and compresses b.
func NewCompressedBody(b *types.Body) (CompressedBody, error) {
	data, err := Encode(b)
	if err != nil {
		return CompressedBody{}, err
	}
	return CompressedBody{Data: data}, nil
}

// CompressedBodyFromEntry validates the entry type and wraps its value.
func CompressedBodyFromEntry(e e2store.Entry) (CompressedBody, error) {
	if err := checkType("CompressedBody", TypeCompressedBody, e); err != nil {
		return CompressedBody{}, err
	}
	return CompressedBody{Data: e.Value}, nil
}

// Bytes returns the compressed payload.
func (c CompressedBody) Bytes() []byte { return c.Data }

// Entry converts the record into an e2store entry.
func (c CompressedBody) Entry() e2store.Entry {
	return e2store.Entry{Type: TypeCompressedBody, Value: c.Data}
}

// Body decodes the record into a block body.
func (c CompressedBody) Body() (*types.Body, error) {
	b, err := As[types.Body](c)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// CompressedReceipts holds snappyFramed(rlp(receipts)).
type CompressedReceipts struct {
	Data []byte
}

// NewCompressedReceipts encodes and compresses v, which is usually
// types.Receipts but may be any RLP-encodable receipt shape.
func NewCompressedReceipts(v any) (CompressedReceipts, error) {
	data, err := Encode(v)
	if err != nil {
		return CompressedReceipts{}, err
	}
	return CompressedReceipts{Data: data}, nil
}

// CompressedReceiptsFromEntry validates the entry type and wraps its value.
func CompressedReceiptsFromEntry(e e2store.Entry) (CompressedReceipts, error) {
	if err := checkType("CompressedReceipts", TypeCompressedReceipts, e); err != nil {
		return CompressedReceipts{}, err
	}
	return CompressedReceipts{Data: e.Value}, nil
}

// Bytes returns the compressed payload.
func (c CompressedReceipts) Bytes() []byte { return c.Data }

// Entry converts the record into an e2store entry.
func (c CompressedReceipts) Entry() e2store.Entry {
	return e2store.Entry{Type: TypeCompressedReceipts, Value: c.Data}
}

// Receipts decodes the record as a receipt list.
func (c CompressedReceipts) Receipts() (types.Receipts, error) {
	return As[types.Receipts](c)
}

// TotalDifficulty is the cumulative chain difficulty up to and including a
// block. It is stored as 32 big-endian bytes.
type TotalDifficulty struct {
	Value uint256.Int
}

// NewTotalDifficulty converts td to a TotalDifficulty. Values wider than 256
// bits keep only their low 256 bits; nil is zero.
func NewTotalDifficulty(td *big.Int) TotalDifficulty {
	var out TotalDifficulty
	if td != nil {
		out.Value.SetFromBig(td)
	}
	return out
}

// TotalDifficultyFromEntry validates the entry type and length.
func TotalDifficultyFromEntry(e e2store.Entry) (TotalDifficulty, error) {
	if err := checkType("TotalDifficulty", TypeTotalDifficulty, e); err != nil {
		return TotalDifficulty{}, err
	}
	if len(e.Value) != 32 {
		return TotalDifficulty{}, &LengthError{Record: "TotalDifficulty", Want: 32, Have: len(e.Value)}
	}
	var out TotalDifficulty
	out.Value.SetBytes(e.Value)
	return out, nil
}

// Entry converts the record into an e2store entry of exactly 32 bytes.
func (td TotalDifficulty) Entry() e2store.Entry {
	b := td.Value.Bytes32()
	return e2store.Entry{Type: TypeTotalDifficulty, Value: b[:]}
}

// Big returns the value as a big.Int.
func (td TotalDifficulty) Big() *big.Int {
	return td.Value.ToBig()
}

// Accumulator is the hash tree root over the header records of every block in
// one file.
type Accumulator struct {
	Root common.Hash
}

// AccumulatorFromEntry validates the entry type and length.
func AccumulatorFromEntry(e e2store.Entry) (Accumulator, error) {
	if err := checkType("Accumulator", TypeAccumulator, e); err != nil {
		return Accumulator{}, err
	}
	if len(e.Value) != common.HashLength {
		return Accumulator{}, &LengthError{Record: "Accumulator", Want: common.HashLength, Have: len(e.Value)}
	}
	return Accumulator{Root: common.BytesToHash(e.Value)}, nil
}

// Entry converts the record into an e2store entry.
func (a Accumulator) Entry() e2store.Entry {
	return e2store.Entry{Type: TypeAccumulator, Value: a.Root.Bytes()}
}
