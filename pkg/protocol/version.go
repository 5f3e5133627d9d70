package protocol

import (
	"errors"
	"fmt"
)

// Version is the wire protocol version. Peers only talk to peers reporting
// exactly the same string.
const Version = "2.0"

// Version errors.
var (
	ErrNoVersionInfo   = errors.New("protocol: first packet is not version info")
	ErrVersionMismatch = errors.New("protocol: protocol version mismatch")
)

// VersionInfo opens every connection and every exported state blob.
type VersionInfo struct {
	AppVersion      string
	ProtocolVersion string
}

// NewVersionInfo returns the version info for the local protocol.
func NewVersionInfo(appVersion string) *VersionInfo {
	return &VersionInfo{AppVersion: appVersion, ProtocolVersion: Version}
}

func (*VersionInfo) Code() Code { return CodeVersionInfo }

func (v *VersionInfo) EncodeTo(e *Encoder) {
	e.WriteString(v.AppVersion)
	e.WriteString(v.ProtocolVersion)
}

// DecodeVersionInfo decodes a VersionInfo body.
func DecodeVersionInfo(body []byte) (*VersionInfo, error) {
	d := NewDecoder(body)
	v := &VersionInfo{}
	var err error
	if v.AppVersion, err = d.ReadString(); err != nil {
		return nil, malformed(err)
	}
	if v.ProtocolVersion, err = d.ReadString(); err != nil {
		return nil, malformed(err)
	}
	return done(v, d)
}

// Compatible reports whether the peer speaks the local protocol version.
func (v *VersionInfo) Compatible() bool {
	return v.ProtocolVersion == Version
}

// CheckVersion verifies that p is a version info packet compatible with the
// local protocol.
func CheckVersion(p *Packet) (*VersionInfo, error) {
	if p == nil || p.Code != CodeVersionInfo {
		return nil, ErrNoVersionInfo
	}
	v, err := DecodeVersionInfo(p.Body)
	if err != nil {
		return nil, err
	}
	if !v.Compatible() {
		return v, fmt.Errorf("%w: %s <> %s", ErrVersionMismatch, v.ProtocolVersion, Version)
	}
	return v, nil
}

// ParseBlob parses an externally supplied blob (an exported file or a sync
// payload). The first packet must be a compatible VersionInfo; it is
// returned separately from the remaining packets.
func ParseBlob(blob []byte) (*VersionInfo, []*Packet, error) {
	packets, err := Parse(blob)
	if err != nil {
		return nil, nil, err
	}
	if len(packets) == 0 {
		return nil, nil, ErrNoVersionInfo
	}
	v, err := CheckVersion(packets[0])
	if err != nil {
		return v, nil, err
	}
	return v, packets[1:], nil
}
