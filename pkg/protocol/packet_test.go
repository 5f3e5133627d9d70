package protocol

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestPacketEncodeHeader(t *testing.T) {
	p := Make(&SyncComplete{TargetID: "u"})
	got := p.Encode()
	want := []byte{0x01, 0x0B, 0x00, 0x00, 0x00, 0x00, 0x02, 0x01, 'u'}
	if !bytes.Equal(got, want) {
		t.Fatalf("Encode() = %x, want %x", got, want)
	}
}

func TestPacketFromID(t *testing.T) {
	p := MakeFrom("alice", &ChatMessage{UserID: "alice", NickName: "A", Message: "hi"})
	buf := p.Encode()
	if PacketFlags(buf[2]) != FlagFrom {
		t.Fatalf("flags = %#x, want FlagFrom", buf[2])
	}

	got, err := DecodePacket(buf)
	if err != nil {
		t.Fatalf("DecodePacket() error = %v", err)
	}
	if got.Code != CodeChatMessage || got.FromID != "alice" {
		t.Errorf("got code=%v from=%q", got.Code, got.FromID)
	}
	if !bytes.Equal(got.Body, p.Body) {
		t.Errorf("Body = %x, want %x", got.Body, p.Body)
	}
}

func TestPacketEncodeDeterministic(t *testing.T) {
	mk := func() []byte {
		return MakeFrom("bob", &ResizeWindowSplitter{Sizes: []int{120, 480, 0}}).Encode()
	}
	if !bytes.Equal(mk(), mk()) {
		t.Error("identical packets encoded differently")
	}
}

func TestParse(t *testing.T) {
	a := Make(&TCPSyn{})
	b := MakeFrom("x", &SetBackgroundGrid{Size: 16})
	c := Make(&ClearScreen{})
	buf := Concat(a, b, c)

	tests := []struct {
		name    string
		buf     []byte
		wantN   int
		wantErr bool
	}{
		{name: "empty", buf: nil, wantN: 0},
		{name: "three_packets", buf: buf, wantN: 3},
		{name: "truncated_header", buf: buf[:len(buf)-PacketHeaderSize+2], wantErr: true},
		{name: "truncated_body", buf: buf[:len(a.Encode())+PacketHeaderSize+1], wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			packets, err := Parse(tc.buf)
			if tc.wantErr {
				if err == nil {
					t.Fatal("Parse() expected error")
				}
				if packets != nil {
					t.Errorf("Parse() returned %d packets on error", len(packets))
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if len(packets) != tc.wantN {
				t.Fatalf("Parse() = %d packets, want %d", len(packets), tc.wantN)
			}
		})
	}
}

func TestParseOrder(t *testing.T) {
	buf := Concat(Make(&TCPSyn{}), MakeFrom("x", &SetBackgroundGrid{Size: 16}))
	packets, err := Parse(buf)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if packets[0].Code != CodeTCPSyn || packets[1].Code != CodeSetBackgroundGrid {
		t.Fatalf("codes = %v, %v", packets[0].Code, packets[1].Code)
	}
	if packets[1].FromID != "x" {
		t.Errorf("FromID = %q, want x", packets[1].FromID)
	}
	m, err := DecodeSetBackgroundGrid(packets[1].Body)
	if err != nil {
		t.Fatalf("DecodeSetBackgroundGrid() error = %v", err)
	}
	if m.Size != 16 {
		t.Errorf("Size = %d, want 16", m.Size)
	}
}

func TestDecodePacketTrailing(t *testing.T) {
	buf := Concat(Make(&TCPSyn{}), Make(&TCPAck{}))
	if _, err := DecodePacket(buf); !errors.Is(err, ErrTrailingBytes) {
		t.Errorf("DecodePacket() error = %v, want ErrTrailingBytes", err)
	}
}

func TestPacketTooLarge(t *testing.T) {
	header := []byte{0x01, 0x01, 0x00, 0xFF, 0xFF, 0xFF, 0xFF}
	if _, err := Parse(header); !errors.Is(err, ErrPacketTooLarge) {
		t.Errorf("Parse() error = %v, want ErrPacketTooLarge", err)
	}
	if _, err := ReadPacket(bytes.NewReader(header)); !errors.Is(err, ErrPacketTooLarge) {
		t.Errorf("ReadPacket() error = %v, want ErrPacketTooLarge", err)
	}
}

func TestReadPacketStream(t *testing.T) {
	var buf bytes.Buffer
	packets := []*Packet{
		Make(NewVersionInfo("1.0")),
		MakeFrom("u1", &Left{Channel: "c", UserID: "u1"}),
	}
	for _, p := range packets {
		if err := WritePacket(&buf, p); err != nil {
			t.Fatalf("WritePacket() error = %v", err)
		}
	}

	r := NewReader(&buf)
	for i, want := range packets {
		got, err := r.Next()
		if err != nil {
			t.Fatalf("Next() #%d error = %v", i, err)
		}
		if got.Code != want.Code || got.FromID != want.FromID || !bytes.Equal(got.Body, want.Body) {
			t.Errorf("Next() #%d = %+v, want %+v", i, got, want)
		}
	}
	if _, err := r.Next(); err != io.EOF {
		t.Errorf("Next() at end error = %v, want io.EOF", err)
	}
}

func TestReadPacketTruncated(t *testing.T) {
	full := Make(&ChatMessage{UserID: "u", NickName: "n", Message: "hello"}).Encode()

	tests := []struct {
		name string
		buf  []byte
	}{
		{"partial_header", full[:3]},
		{"partial_body", full[:len(full)-2]},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ReadPacket(bytes.NewReader(tc.buf))
			if err != io.ErrUnexpectedEOF {
				t.Errorf("ReadPacket() error = %v, want io.ErrUnexpectedEOF", err)
			}
		})
	}
}
