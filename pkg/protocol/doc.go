// Package protocol implements the binary packet protocol spoken between
// SharedPainter peers, super-peers and relay servers.
//
// Every message travels as a Packet: a 7-byte header followed by a payload.
//
//	┌───────────────┬───────────┬───────────────────────────────┐
//	│ Code          │ Flags     │ Payload Length                │
//	│ (2 bytes, BE) │ (1 byte)  │ (4 bytes, big-endian)         │
//	└───────────────┴───────────┴───────────────────────────────┘
//
// The high byte of Code selects the message family (system, window, paint,
// task, screen-share, UDP, broadcast). When FlagFrom is set the payload
// begins with the id of the originating user.
//
// # Messages
//
// Each message type implements Message and has a matching DecodeX function
// that parses a packet body. Decoders reject truncated bodies and trailing
// bytes with ErrMalformed.
//
//	p := protocol.MakeFrom(userID, &protocol.ChatMessage{...})
//	buf := p.Encode()
//
// # Streams and blobs
//
// Parse splits a concatenated buffer into packets and fails as a whole if
// any packet is incomplete. ParseBlob additionally requires the first
// packet to be a VersionInfo whose protocol version equals Version; it is
// used for sync packages and saved documents.
package protocol
