package protocol

import (
	"bufio"
	"errors"
	"io"
)

// Packet constants.
const (
	// PacketHeaderSize is the size of the packet header in bytes.
	PacketHeaderSize = 7

	// MaxPayloadSize bounds a single packet payload (32MB).
	MaxPayloadSize = 32 * 1024 * 1024
)

// PacketFlags are optional flags for packet processing.
type PacketFlags uint8

const (
	FlagFrom PacketFlags = 0x01 // Payload starts with the originating user id
)

// Has returns true if the flags contain the specified flag.
func (pf PacketFlags) Has(flag PacketFlags) bool {
	return pf&flag != 0
}

// Packet errors.
var (
	ErrPacketTooLarge = errors.New("protocol: packet payload too large")
	ErrMalformed      = errors.New("protocol: malformed packet body")
	ErrTrailingBytes  = errors.New("protocol: trailing bytes after packet")
)

// Packet is one decoded message.
//
// Wire format (7 bytes header + variable payload):
//
//	┌───────────────┬───────────┬───────────────────────────────┐
//	│ Code          │ Flags     │ Payload Length                │
//	│ (2 bytes, BE) │ (1 byte)  │ (4 bytes, big-endian)         │
//	└───────────────┴───────────┴───────────────────────────────┘
//	│ [FromID: len-prefixed string, when FlagFrom]  Body         │
//	└────────────────────────────────────────────────────────────┘
type Packet struct {
	Code   Code
	FromID string
	Body   []byte
}

// NewPacket creates a packet with no originating user.
func NewPacket(code Code, body []byte) *Packet {
	return &Packet{Code: code, Body: body}
}

// NewPacketFrom creates a packet stamped with the originating user id.
func NewPacketFrom(code Code, fromID string, body []byte) *Packet {
	return &Packet{Code: code, FromID: fromID, Body: body}
}

// Encode encodes the packet to bytes including the header.
// Identical packets always encode to identical bytes.
func (p *Packet) Encode() []byte {
	e := NewEncoderWithCap(PacketHeaderSize + len(p.FromID) + len(p.Body) + 2)
	p.EncodeTo(e)
	return e.Bytes()
}

// EncodeTo appends the encoded packet to the encoder.
func (p *Packet) EncodeTo(e *Encoder) {
	var flags PacketFlags
	payload := len(p.Body)
	if p.FromID != "" {
		flags |= FlagFrom
		payload += uvarintLen(uint64(len(p.FromID))) + len(p.FromID)
	}
	e.WriteUint16(uint16(p.Code))
	e.WriteByte(byte(flags))
	e.WriteUint32(uint32(payload))
	if flags.Has(FlagFrom) {
		e.WriteString(p.FromID)
	}
	e.WriteBytes(p.Body)
}

func uvarintLen(v uint64) int {
	n := 1
	for v >= 0x80 {
		n++
		v >>= 7
	}
	return n
}

// decodePayload splits a payload into FromID and Body.
func decodePayload(code Code, flags PacketFlags, payload []byte) (*Packet, error) {
	p := &Packet{Code: code}
	d := NewDecoder(payload)
	if flags.Has(FlagFrom) {
		from, err := d.ReadString()
		if err != nil {
			return nil, err
		}
		p.FromID = from
	}
	body, _ := d.ReadBytes(d.Remaining())
	p.Body = append([]byte(nil), body...)
	return p, nil
}

// DecodePacket decodes exactly one packet from data.
func DecodePacket(data []byte) (*Packet, error) {
	packets, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if len(packets) != 1 {
		return nil, ErrTrailingBytes
	}
	return packets[0], nil
}

// Parse decodes a buffer holding zero or more concatenated packets.
// Any truncated or malformed packet fails the whole buffer and no packets
// are returned.
func Parse(buf []byte) ([]*Packet, error) {
	var packets []*Packet
	d := NewDecoder(buf)
	for !d.EOF() {
		code, err := d.ReadUint16()
		if err != nil {
			return nil, err
		}
		flags, err := d.ReadByte()
		if err != nil {
			return nil, err
		}
		length, err := d.ReadUint32()
		if err != nil {
			return nil, err
		}
		if length > MaxPayloadSize {
			return nil, ErrPacketTooLarge
		}
		payload, err := d.ReadBytes(int(length))
		if err != nil {
			return nil, err
		}
		p, err := decodePayload(Code(code), PacketFlags(flags), payload)
		if err != nil {
			return nil, malformed(err)
		}
		packets = append(packets, p)
	}
	return packets, nil
}

// ReadPacket reads a complete packet from an io.Reader.
func ReadPacket(r io.Reader) (*Packet, error) {
	header := make([]byte, PacketHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}

	code := Code(uint16(header[0])<<8 | uint16(header[1]))
	flags := PacketFlags(header[2])
	length := uint32(header[3])<<24 | uint32(header[4])<<16 | uint32(header[5])<<8 | uint32(header[6])

	if length > MaxPayloadSize {
		return nil, ErrPacketTooLarge
	}

	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return nil, err
		}
	}
	p, err := decodePayload(code, flags, payload)
	if err != nil {
		// The payload was consumed, so the stream is still aligned.
		return nil, malformed(err)
	}
	return p, nil
}

// WritePacket writes a complete packet to an io.Writer.
func WritePacket(w io.Writer, p *Packet) error {
	if len(p.Body) > MaxPayloadSize {
		return ErrPacketTooLarge
	}
	_, err := w.Write(p.Encode())
	return err
}

// Reader reads packets from a byte stream.
type Reader struct {
	r *bufio.Reader
}

// NewReader wraps r with a buffered packet reader.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReaderSize(r, 64*1024)}
}

// Next returns the next packet in the stream.
func (pr *Reader) Next() (*Packet, error) {
	return ReadPacket(pr.r)
}

// Concat encodes packets back to back.
func Concat(packets ...*Packet) []byte {
	e := NewEncoder()
	for _, p := range packets {
		p.EncodeTo(e)
	}
	return e.Bytes()
}

// malformed wraps a builder-level decode failure.
func malformed(err error) error {
	if err == nil {
		return nil
	}
	return errors.Join(ErrMalformed, err)
}
