package protocol

import "github.com/kingctan/sharedpainter/pkg/paint"

// user flag bits
const (
	userFlagRecording byte = 0x01
	userFlagStreaming byte = 0x02
	userFlagReceiving byte = 0x04
)

// EncodeUserTo encodes the wire fields of a user.
func EncodeUserTo(e *Encoder, u *paint.User) {
	e.WriteString(u.ID)
	e.WriteString(u.NickName)
	e.WriteString(u.Channel)
	e.WriteString(u.LocalIP)
	e.WriteString(u.ViewIP)
	e.WriteUvarint(uint64(u.ListenTCPPort))
	e.WriteUvarint(uint64(u.ListenUDPPort))
	e.WriteUvarint(uint64(u.StreamListenPort))
	var flags byte
	if u.ScreenRecording {
		flags |= userFlagRecording
	}
	if u.ScreenStreaming {
		flags |= userFlagStreaming
	}
	if u.StreamReceiving {
		flags |= userFlagReceiving
	}
	e.WriteByte(flags)
}

// DecodeUserFrom decodes a user written by EncodeUserTo.
func DecodeUserFrom(d *Decoder) (*paint.User, error) {
	u := &paint.User{}
	var err error
	if u.ID, err = d.ReadString(); err != nil {
		return nil, err
	}
	if u.NickName, err = d.ReadString(); err != nil {
		return nil, err
	}
	if u.Channel, err = d.ReadString(); err != nil {
		return nil, err
	}
	if u.LocalIP, err = d.ReadString(); err != nil {
		return nil, err
	}
	if u.ViewIP, err = d.ReadString(); err != nil {
		return nil, err
	}
	ports := []*int{&u.ListenTCPPort, &u.ListenUDPPort, &u.StreamListenPort}
	for _, p := range ports {
		v, err := d.ReadUvarint()
		if err != nil {
			return nil, err
		}
		if v > 65535 {
			return nil, ErrMalformed
		}
		*p = int(v)
	}
	flags, err := d.ReadByte()
	if err != nil {
		return nil, err
	}
	u.ScreenRecording = flags&userFlagRecording != 0
	u.ScreenStreaming = flags&userFlagStreaming != 0
	u.StreamReceiving = flags&userFlagReceiving != 0
	if u.ID == "" {
		return nil, ErrMalformed
	}
	return u, nil
}

func encodeUsersTo(e *Encoder, users []*paint.User) {
	e.WriteCount(len(users))
	for _, u := range users {
		EncodeUserTo(e, u)
	}
}

func decodeUsersFrom(d *Decoder) ([]*paint.User, error) {
	n, err := d.ReadCollectionCount()
	if err != nil {
		return nil, err
	}
	users := make([]*paint.User, 0, n)
	for i := 0; i < n; i++ {
		u, err := DecodeUserFrom(d)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, nil
}

// ChangeNickName announces a new nickname.
type ChangeNickName struct {
	UserID   string
	NickName string
}

func (*ChangeNickName) Code() Code { return CodeChangeNickName }

func (m *ChangeNickName) EncodeTo(e *Encoder) {
	e.WriteString(m.UserID)
	e.WriteString(m.NickName)
}

// DecodeChangeNickName decodes a ChangeNickName body.
func DecodeChangeNickName(body []byte) (*ChangeNickName, error) {
	d := NewDecoder(body)
	m := &ChangeNickName{}
	var err error
	if m.UserID, err = d.ReadString(); err != nil {
		return nil, malformed(err)
	}
	if m.NickName, err = d.ReadString(); err != nil {
		return nil, malformed(err)
	}
	return done(m, d)
}

// JoinToServer is sent by a client to the relay to enter a channel.
type JoinToServer struct {
	User *paint.User
}

func (*JoinToServer) Code() Code { return CodeJoinToServer }

func (m *JoinToServer) EncodeTo(e *Encoder) { EncodeUserTo(e, m.User) }

// DecodeJoinToServer decodes a JoinToServer body.
func DecodeJoinToServer(body []byte) (*JoinToServer, error) {
	d := NewDecoder(body)
	u, err := DecodeUserFrom(d)
	if err != nil {
		return nil, malformed(err)
	}
	return done(&JoinToServer{User: u}, d)
}

// JoinToSuperPeer is sent by a member right after connecting to the
// super-peer so it can bind the session to the user.
type JoinToSuperPeer struct {
	User *paint.User
}

func (*JoinToSuperPeer) Code() Code { return CodeJoinToSuperPeer }

func (m *JoinToSuperPeer) EncodeTo(e *Encoder) { EncodeUserTo(e, m.User) }

// DecodeJoinToSuperPeer decodes a JoinToSuperPeer body.
func DecodeJoinToSuperPeer(body []byte) (*JoinToSuperPeer, error) {
	d := NewDecoder(body)
	u, err := DecodeUserFrom(d)
	if err != nil {
		return nil, malformed(err)
	}
	return done(&JoinToSuperPeer{User: u}, d)
}

// ResJoin answers a join with the channel roster.
type ResJoin struct {
	Channel     string
	FirstUser   bool
	Users       []*paint.User
	SuperPeerID string
}

func (*ResJoin) Code() Code { return CodeResJoin }

func (m *ResJoin) EncodeTo(e *Encoder) {
	e.WriteString(m.Channel)
	e.WriteBool(m.FirstUser)
	encodeUsersTo(e, m.Users)
	e.WriteString(m.SuperPeerID)
}

// DecodeResJoin decodes a ResJoin body.
func DecodeResJoin(body []byte) (*ResJoin, error) {
	d := NewDecoder(body)
	m := &ResJoin{}
	var err error
	if m.Channel, err = d.ReadString(); err != nil {
		return nil, malformed(err)
	}
	if m.FirstUser, err = d.ReadBool(); err != nil {
		return nil, malformed(err)
	}
	if m.Users, err = decodeUsersFrom(d); err != nil {
		return nil, malformed(err)
	}
	if m.SuperPeerID, err = d.ReadString(); err != nil {
		return nil, malformed(err)
	}
	return done(m, d)
}

// ChangeSuperPeer designates a new super-peer.
type ChangeSuperPeer struct {
	UserID string
}

func (*ChangeSuperPeer) Code() Code { return CodeChangeSuperPeer }

func (m *ChangeSuperPeer) EncodeTo(e *Encoder) { e.WriteString(m.UserID) }

// DecodeChangeSuperPeer decodes a ChangeSuperPeer body.
func DecodeChangeSuperPeer(body []byte) (*ChangeSuperPeer, error) {
	d := NewDecoder(body)
	id, err := d.ReadString()
	if err != nil {
		return nil, malformed(err)
	}
	return done(&ChangeSuperPeer{UserID: id}, d)
}

// TCPSyn is the relay's keep-alive probe.
type TCPSyn struct{}

func (*TCPSyn) Code() Code        { return CodeTCPSyn }
func (*TCPSyn) EncodeTo(*Encoder) {}

// TCPAck answers TCPSyn.
type TCPAck struct{}

func (*TCPAck) Code() Code        { return CodeTCPAck }
func (*TCPAck) EncodeTo(*Encoder) {}

// DecodeEmpty checks that a body-less message has no body.
func DecodeEmpty(body []byte) error {
	if len(body) != 0 {
		return malformed(ErrTrailingBytes)
	}
	return nil
}

// SyncRequest asks for the full state on behalf of TargetID.
type SyncRequest struct {
	Channel  string
	TargetID string
}

func (*SyncRequest) Code() Code { return CodeSyncRequest }

func (m *SyncRequest) EncodeTo(e *Encoder) {
	e.WriteString(m.Channel)
	e.WriteString(m.TargetID)
}

// DecodeSyncRequest decodes a SyncRequest body.
func DecodeSyncRequest(body []byte) (*SyncRequest, error) {
	d := NewDecoder(body)
	m := &SyncRequest{}
	var err error
	if m.Channel, err = d.ReadString(); err != nil {
		return nil, malformed(err)
	}
	if m.TargetID, err = d.ReadString(); err != nil {
		return nil, malformed(err)
	}
	return done(m, d)
}

// SyncStart precedes a full-state transfer.
type SyncStart struct {
	Channel  string
	FromID   string
	TargetID string
}

func (*SyncStart) Code() Code { return CodeSyncStart }

func (m *SyncStart) EncodeTo(e *Encoder) {
	e.WriteString(m.Channel)
	e.WriteString(m.FromID)
	e.WriteString(m.TargetID)
}

// DecodeSyncStart decodes a SyncStart body.
func DecodeSyncStart(body []byte) (*SyncStart, error) {
	d := NewDecoder(body)
	m := &SyncStart{}
	var err error
	if m.Channel, err = d.ReadString(); err != nil {
		return nil, malformed(err)
	}
	if m.FromID, err = d.ReadString(); err != nil {
		return nil, malformed(err)
	}
	if m.TargetID, err = d.ReadString(); err != nil {
		return nil, malformed(err)
	}
	return done(m, d)
}

// SyncComplete terminates a full-state transfer.
type SyncComplete struct {
	TargetID string
}

func (*SyncComplete) Code() Code { return CodeSyncComplete }

func (m *SyncComplete) EncodeTo(e *Encoder) { e.WriteString(m.TargetID) }

// DecodeSyncComplete decodes a SyncComplete body.
func DecodeSyncComplete(body []byte) (*SyncComplete, error) {
	d := NewDecoder(body)
	id, err := d.ReadString()
	if err != nil {
		return nil, malformed(err)
	}
	return done(&SyncComplete{TargetID: id}, d)
}

// Left reports that a user left the channel.
type Left struct {
	Channel string
	UserID  string
}

func (*Left) Code() Code { return CodeLeft }

func (m *Left) EncodeTo(e *Encoder) {
	e.WriteString(m.Channel)
	e.WriteString(m.UserID)
}

// DecodeLeft decodes a Left body.
func DecodeLeft(body []byte) (*Left, error) {
	d := NewDecoder(body)
	m := &Left{}
	var err error
	if m.Channel, err = d.ReadString(); err != nil {
		return nil, malformed(err)
	}
	if m.UserID, err = d.ReadString(); err != nil {
		return nil, malformed(err)
	}
	return done(m, d)
}

// ChatMessage is a chat line sent to the channel.
type ChatMessage struct {
	UserID   string
	NickName string
	Message  string
}

func (*ChatMessage) Code() Code { return CodeChatMessage }

func (m *ChatMessage) EncodeTo(e *Encoder) {
	e.WriteString(m.UserID)
	e.WriteString(m.NickName)
	e.WriteString(m.Message)
}

// DecodeChatMessage decodes a ChatMessage body.
func DecodeChatMessage(body []byte) (*ChatMessage, error) {
	d := NewDecoder(body)
	m := &ChatMessage{}
	var err error
	if m.UserID, err = d.ReadString(); err != nil {
		return nil, malformed(err)
	}
	if m.NickName, err = d.ReadString(); err != nil {
		return nil, malformed(err)
	}
	if m.Message, err = d.ReadString(); err != nil {
		return nil, malformed(err)
	}
	return done(m, d)
}

// HistoryUserList carries every user that ever drew on the canvas.
type HistoryUserList struct {
	Users []*paint.User
}

func (*HistoryUserList) Code() Code { return CodeHistoryUserList }

func (m *HistoryUserList) EncodeTo(e *Encoder) { encodeUsersTo(e, m.Users) }

// DecodeHistoryUserList decodes a HistoryUserList body.
func DecodeHistoryUserList(body []byte) (*HistoryUserList, error) {
	d := NewDecoder(body)
	users, err := decodeUsersFrom(d)
	if err != nil {
		return nil, malformed(err)
	}
	return done(&HistoryUserList{Users: users}, d)
}
