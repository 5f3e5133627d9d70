package protocol

// Message is a typed packet body that knows its own code.
type Message interface {
	Code() Code
	EncodeTo(e *Encoder)
}

// Make encodes m into a packet with no originating user.
func Make(m Message) *Packet {
	return MakeFrom("", m)
}

// MakeFrom encodes m into a packet stamped with fromID.
func MakeFrom(fromID string, m Message) *Packet {
	e := NewEncoder()
	m.EncodeTo(e)
	return &Packet{Code: m.Code(), FromID: fromID, Body: e.Bytes()}
}

// Encode is shorthand for Make(m).Encode().
func Encode(m Message) []byte {
	return Make(m).Encode()
}

// done returns m unless the body has unread trailing bytes.
func done[T any](m T, d *Decoder) (T, error) {
	if !d.EOF() {
		var zero T
		return zero, malformed(ErrTrailingBytes)
	}
	return m, nil
}
