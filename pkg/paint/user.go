package paint

// User is a participant of a paint channel.
type User struct {
	ID       string
	NickName string
	Channel  string

	LocalIP string // Address reported by the user itself
	ViewIP  string // Address observed by the relay

	ListenTCPPort    int
	ListenUDPPort    int
	StreamListenPort int

	Self bool // Not sent over the wire

	ScreenRecording bool
	ScreenStreaming bool
	StreamReceiving bool

	// SessionID is a lookup key into the session registry. Empty when the
	// user is reached through the relay or the super-peer.
	SessionID string
}

// Clone returns a copy of the user.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}
