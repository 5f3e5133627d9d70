package protocol

import (
	"encoding/binary"
	"math"

	"github.com/kingctan/sharedpainter/pkg/paint"
)

// Encoder appends message fields to a growing buffer. Integers of fixed
// width are big-endian; counts and lengths are uvarints.
type Encoder struct {
	buf []byte
}

// NewEncoder returns an encoder sized for a typical control message.
func NewEncoder() *Encoder {
	return NewEncoderWithCap(64)
}

// NewEncoderWithCap returns an encoder with n bytes preallocated.
func NewEncoderWithCap(n int) *Encoder {
	return &Encoder{buf: make([]byte, 0, n)}
}

// Reset empties the encoder and keeps its buffer.
func (e *Encoder) Reset() { e.buf = e.buf[:0] }

// Bytes returns the encoded bytes; they alias the buffer until the next
// write or Reset.
func (e *Encoder) Bytes() []byte { return e.buf }

// Len returns the encoded length.
func (e *Encoder) Len() int { return len(e.buf) }

func (e *Encoder) WriteByte(b byte)      { e.buf = append(e.buf, b) }
func (e *Encoder) WriteBytes(b []byte)   { e.buf = append(e.buf, b...) }
func (e *Encoder) WriteUvarint(v uint64) { e.buf = binary.AppendUvarint(e.buf, v) }
func (e *Encoder) WriteSvarint(v int64)  { e.buf = binary.AppendVarint(e.buf, v) }
func (e *Encoder) WriteUint16(v uint16)  { e.buf = binary.BigEndian.AppendUint16(e.buf, v) }
func (e *Encoder) WriteUint32(v uint32)  { e.buf = binary.BigEndian.AppendUint32(e.buf, v) }
func (e *Encoder) WriteInt16(v int16)    { e.WriteUint16(uint16(v)) }

func (e *Encoder) WriteFloat64(v float64) {
	e.buf = binary.BigEndian.AppendUint64(e.buf, math.Float64bits(v))
}

func (e *Encoder) WriteBool(b bool) {
	if b {
		e.WriteByte(1)
		return
	}
	e.WriteByte(0)
}

// WriteString writes a uvarint length followed by the UTF-8 bytes.
func (e *Encoder) WriteString(s string) {
	e.WriteUvarint(uint64(len(s)))
	e.buf = append(e.buf, s...)
}

// WriteLenBytes writes a uvarint length followed by b.
func (e *Encoder) WriteLenBytes(b []byte) {
	e.WriteUvarint(uint64(len(b)))
	e.buf = append(e.buf, b...)
}

// WriteCount writes a collection size.
func (e *Encoder) WriteCount(n int) { e.WriteUvarint(uint64(n)) }

// WriteInts writes a count followed by zigzag varints.
func (e *Encoder) WriteInts(vs []int) {
	e.WriteCount(len(vs))
	for _, v := range vs {
		e.WriteSvarint(int64(v))
	}
}

// WritePoint writes a canvas coordinate pair.
func (e *Encoder) WritePoint(x, y float64) {
	e.WriteFloat64(x)
	e.WriteFloat64(y)
}

// WriteColor writes c as four bytes R G B A.
func (e *Encoder) WriteColor(c paint.Color) {
	e.buf = append(e.buf, c.R, c.G, c.B, c.A)
}

// WritePort writes a TCP or UDP port as two bytes.
func (e *Encoder) WritePort(port int) { e.WriteUint16(uint16(port)) }
