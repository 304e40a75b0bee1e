// Package e2store implements the e2store record container used by era and
// era1 archives.
//
// An e2store file is a flat sequence of entries. Each entry is an 8-byte
// header followed by its value:
//
//	type (2 bytes LE) | length (4 bytes LE) | reserved (2 bytes, zero) | value
//
// The package performs no interpretation of entry values.
package e2store

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// HeaderSize is the size of the fixed entry header in bytes.
	HeaderSize = 8

	// MaxValueSize bounds the value of a single entry (50 MiB).
	MaxValueSize = 50 << 20
)

// Sentinel errors for entry decoding.
var (
	// ErrTruncated is returned when fewer bytes remain than an entry declares.
	ErrTruncated = errors.New("e2store: truncated entry")

	// ErrBadHeader is returned when an entry header is malformed.
	ErrBadHeader = errors.New("e2store: malformed entry header")
)

// Entry is a single type-tagged record.
type Entry struct {
	Type  uint16
	Value []byte
}

// Size returns the encoded size of the entry including its header.
func (e Entry) Size() int64 {
	return HeaderSize + int64(len(e.Value))
}

// Writer writes entries to an underlying io.Writer.
type Writer struct {
	w   io.Writer
	buf [HeaderSize]byte
}

// NewWriter returns a Writer that appends entries to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Write writes a single entry and returns the number of bytes written,
// header included.
func (w *Writer) Write(typ uint16, value []byte) (int, error) {
	if len(value) > MaxValueSize {
		return 0, fmt.Errorf("e2store: value of %d bytes exceeds limit %d", len(value), MaxValueSize)
	}
	binary.LittleEndian.PutUint16(w.buf[0:2], typ)
	binary.LittleEndian.PutUint32(w.buf[2:6], uint32(len(value))) //nolint:gosec // bounded by MaxValueSize
	w.buf[6], w.buf[7] = 0, 0
	n, err := w.w.Write(w.buf[:])
	if err != nil {
		return n, err
	}
	m, err := w.w.Write(value)
	return n + m, err
}

// WriteEntry writes e to w.
func WriteEntry(w io.Writer, e Entry) error {
	_, err := NewWriter(w).Write(e.Type, e.Value)
	return err
}

// Reader reads entries sequentially from an underlying io.Reader.
type Reader struct {
	r      io.Reader
	offset int64
	buf    [HeaderSize]byte
}

// NewReader returns a Reader that consumes entries from r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// Offset returns the number of bytes consumed so far.
func (r *Reader) Offset() int64 {
	return r.offset
}

// Read returns the next entry. It returns io.EOF when the input ends cleanly
// on an entry boundary.
func (r *Reader) Read() (Entry, error) {
	n, err := io.ReadFull(r.r, r.buf[:])
	if err != nil {
		switch {
		case errors.Is(err, io.EOF) && n == 0:
			return Entry{}, io.EOF
		case errors.Is(err, io.ErrUnexpectedEOF):
			return Entry{}, fmt.Errorf("%w: header at offset %d: %w", ErrTruncated, r.offset, err)
		default:
			return Entry{}, err
		}
	}
	typ := binary.LittleEndian.Uint16(r.buf[0:2])
	length := binary.LittleEndian.Uint32(r.buf[2:6])
	if r.buf[6] != 0 || r.buf[7] != 0 {
		return Entry{}, fmt.Errorf("%w: reserved bytes are non-zero at offset %d", ErrBadHeader, r.offset)
	}
	if length > MaxValueSize {
		return Entry{}, fmt.Errorf("%w: value of %d bytes exceeds limit %d", ErrBadHeader, length, MaxValueSize)
	}

	e := Entry{Type: typ}
	if length > 0 {
		e.Value = make([]byte, length)
		if m, err := io.ReadFull(r.r, e.Value); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				return Entry{}, err
			}
			return Entry{}, fmt.Errorf("%w: want %d value bytes at offset %d, have %d: %w",
				ErrTruncated, length, r.offset+HeaderSize, m, io.ErrUnexpectedEOF)
		}
	}
	r.offset += HeaderSize + int64(length)
	return e, nil
}

// ReadEntry reads a single entry from r.
func ReadEntry(r io.Reader) (Entry, error) {
	return NewReader(r).Read()
}
