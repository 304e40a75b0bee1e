package era1

import (
	"bytes"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/klauspost/compress/snappy"
)

// Encode serializes v with RLP and compresses the result with a snappy frame.
func Encode(v any) ([]byte, error) {
	raw, err := rlp.EncodeToBytes(v)
	if err != nil {
		return nil, fmt.Errorf("%w: rlp: %w", ErrCompression, err)
	}
	return Compress(raw)
}

// Compress wraps raw in the snappy framing format.
func Compress(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := snappy.NewBufferedWriter(&buf)
	if _, err := w.Write(raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCompression, err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("%w: flush: %w", ErrCompression, err)
	}
	return buf.Bytes(), nil
}

// Decompress fully unwraps a snappy frame.
func Decompress(data []byte) ([]byte, error) {
	raw, err := io.ReadAll(snappy.NewReader(bytes.NewReader(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecompression, err)
	}
	return raw, nil
}

// Decode decompresses data and decodes the RLP payload into a value of type T.
// Trailing bytes after the first RLP value are rejected.
func Decode[T any](data []byte) (T, error) {
	var v T
	raw, err := Decompress(data)
	if err != nil {
		return v, err
	}
	if err := rlp.DecodeBytes(raw, &v); err != nil {
		return v, fmt.Errorf("%w: %w", ErrDeserialize, err)
	}
	return v, nil
}
