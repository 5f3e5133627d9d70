package protocol

import (
	"encoding/binary"
	"errors"
	"io"
	"math"

	"github.com/kingctan/sharedpainter/pkg/paint"
)

// Decoding limits. A hostile length prefix fails before anything is
// allocated.
const (
	// DefaultMaxAllocation bounds one string or byte field. Background
	// images are the largest fields on the wire.
	DefaultMaxAllocation = 16 * 1024 * 1024

	// MaxCollectionCount bounds users, splitter sizes and clear keys.
	MaxCollectionCount = 100_000
)

// Decoding errors.
var (
	ErrVarintOverflow     = errors.New("protocol: varint overflow")
	ErrAllocationTooLarge = errors.New("protocol: allocation size exceeds limit")
	ErrCollectionTooLarge = errors.New("protocol: collection count exceeds limit")
)

// Decoder reads message fields written by Encoder. Every read fails with
// io.ErrUnexpectedEOF rather than reading past the end.
type Decoder struct {
	buf []byte
	pos int
}

// NewDecoder returns a decoder over buf.
func NewDecoder(buf []byte) *Decoder {
	return &Decoder{buf: buf}
}

// Remaining returns the number of unread bytes.
func (d *Decoder) Remaining() int { return len(d.buf) - d.pos }

// EOF reports whether every byte was read.
func (d *Decoder) EOF() bool { return d.pos >= len(d.buf) }

// ReadBytes returns the next n bytes. The slice aliases the input.
func (d *Decoder) ReadBytes(n int) ([]byte, error) {
	if n < 0 || n > d.Remaining() {
		return nil, io.ErrUnexpectedEOF
	}
	b := d.buf[d.pos : d.pos+n]
	d.pos += n
	return b, nil
}

func (d *Decoder) ReadByte() (byte, error) {
	b, err := d.ReadBytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *Decoder) ReadBool() (bool, error) {
	b, err := d.ReadByte()
	return b != 0, err
}

func (d *Decoder) ReadUint16() (uint16, error) {
	b, err := d.ReadBytes(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (d *Decoder) ReadUint32() (uint32, error) {
	b, err := d.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (d *Decoder) ReadInt16() (int16, error) {
	v, err := d.ReadUint16()
	return int16(v), err
}

func (d *Decoder) ReadFloat64() (float64, error) {
	b, err := d.ReadBytes(8)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.BigEndian.Uint64(b)), nil
}

func (d *Decoder) ReadUvarint() (uint64, error) {
	v, n := binary.Uvarint(d.buf[d.pos:])
	switch {
	case n == 0:
		return 0, io.ErrUnexpectedEOF
	case n < 0:
		return 0, ErrVarintOverflow
	}
	d.pos += n
	return v, nil
}

func (d *Decoder) ReadSvarint() (int64, error) {
	v, n := binary.Varint(d.buf[d.pos:])
	switch {
	case n == 0:
		return 0, io.ErrUnexpectedEOF
	case n < 0:
		return 0, ErrVarintOverflow
	}
	d.pos += n
	return v, nil
}

// ReadInt reads a zigzag varint that must fit in 32 bits, the range of
// every size and coordinate field.
func (d *Decoder) ReadInt() (int, error) {
	v, err := d.ReadSvarint()
	if err != nil {
		return 0, err
	}
	if v < math.MinInt32 || v > math.MaxInt32 {
		return 0, ErrVarintOverflow
	}
	return int(v), nil
}

func (d *Decoder) readLen() (int, error) {
	n, err := d.ReadUvarint()
	if err != nil {
		return 0, err
	}
	if n > DefaultMaxAllocation {
		return 0, ErrAllocationTooLarge
	}
	if n > uint64(d.Remaining()) {
		return 0, io.ErrUnexpectedEOF
	}
	return int(n), nil
}

// ReadString reads a length-prefixed string.
func (d *Decoder) ReadString() (string, error) {
	n, err := d.readLen()
	if err != nil {
		return "", err
	}
	b, _ := d.ReadBytes(n)
	return string(b), nil
}

// ReadLenBytes reads length-prefixed bytes into a fresh slice.
func (d *Decoder) ReadLenBytes() ([]byte, error) {
	n, err := d.readLen()
	if err != nil {
		return nil, err
	}
	b, _ := d.ReadBytes(n)
	return append([]byte(nil), b...), nil
}

// ReadCollectionCount reads a count written by WriteCount. Every element
// takes at least one byte, so a count above Remaining is truncated input.
func (d *Decoder) ReadCollectionCount() (int, error) {
	n, err := d.ReadUvarint()
	if err != nil {
		return 0, err
	}
	if n > MaxCollectionCount {
		return 0, ErrCollectionTooLarge
	}
	if n > uint64(d.Remaining()) {
		return 0, io.ErrUnexpectedEOF
	}
	return int(n), nil
}

// ReadInts reads a list written by WriteInts.
func (d *Decoder) ReadInts() ([]int, error) {
	n, err := d.ReadCollectionCount()
	if err != nil {
		return nil, err
	}
	vs := make([]int, n)
	for i := range vs {
		if vs[i], err = d.ReadInt(); err != nil {
			return nil, err
		}
	}
	return vs, nil
}

// ReadPoint reads a pair written by WritePoint.
func (d *Decoder) ReadPoint() (x, y float64, err error) {
	if x, err = d.ReadFloat64(); err != nil {
		return 0, 0, err
	}
	if y, err = d.ReadFloat64(); err != nil {
		return 0, 0, err
	}
	return x, y, nil
}

// ReadColor reads a color written by WriteColor.
func (d *Decoder) ReadColor() (paint.Color, error) {
	b, err := d.ReadBytes(4)
	if err != nil {
		return paint.Color{}, err
	}
	return paint.Color{R: b[0], G: b[1], B: b[2], A: b[3]}, nil
}

// ReadPort reads a port written by WritePort.
func (d *Decoder) ReadPort() (int, error) {
	v, err := d.ReadUint16()
	return int(v), err
}
