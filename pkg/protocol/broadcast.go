package protocol

// ProbeServer is broadcast by a peer looking for a server on its channel.
// Addr and Port tell the responder where to send ServerInfo.
type ProbeServer struct {
	Channel string
	Addr    string
	Port    int
}

func (*ProbeServer) Code() Code { return CodeProbeServer }

func (m *ProbeServer) EncodeTo(e *Encoder) { encodeEndpoint(e, m.Channel, m.Addr, m.Port) }

// DecodeProbeServer decodes a ProbeServer body.
func DecodeProbeServer(body []byte) (*ProbeServer, error) {
	ch, addr, port, err := decodeEndpoint(body)
	if err != nil {
		return nil, err
	}
	return &ProbeServer{Channel: ch, Addr: addr, Port: port}, nil
}

// ServerInfo answers a probe with the TCP endpoint of a running server.
type ServerInfo struct {
	Channel string
	Addr    string
	Port    int
}

func (*ServerInfo) Code() Code { return CodeServerInfo }

func (m *ServerInfo) EncodeTo(e *Encoder) { encodeEndpoint(e, m.Channel, m.Addr, m.Port) }

// DecodeServerInfo decodes a ServerInfo body.
func DecodeServerInfo(body []byte) (*ServerInfo, error) {
	ch, addr, port, err := decodeEndpoint(body)
	if err != nil {
		return nil, err
	}
	return &ServerInfo{Channel: ch, Addr: addr, Port: port}, nil
}

func encodeEndpoint(e *Encoder, channel, addr string, port int) {
	e.WriteString(channel)
	e.WriteString(addr)
	e.WritePort(port)
}

func decodeEndpoint(body []byte) (string, string, int, error) {
	d := NewDecoder(body)
	ch, err := d.ReadString()
	if err != nil {
		return "", "", 0, malformed(err)
	}
	addr, err := d.ReadString()
	if err != nil {
		return "", "", 0, malformed(err)
	}
	port, err := d.ReadPort()
	if err != nil {
		return "", "", 0, malformed(err)
	}
	if !d.EOF() {
		return "", "", 0, malformed(ErrTrailingBytes)
	}
	return ch, addr, port, nil
}

// TextMessage is a LAN-wide text broadcast.
type TextMessage struct {
	Channel  string
	FromID   string
	NickName string
	Message  string
}

func (*TextMessage) Code() Code { return CodeTextMessage }

func (m *TextMessage) EncodeTo(e *Encoder) {
	e.WriteString(m.Channel)
	e.WriteString(m.FromID)
	e.WriteString(m.NickName)
	e.WriteString(m.Message)
}

// DecodeTextMessage decodes a TextMessage body.
func DecodeTextMessage(body []byte) (*TextMessage, error) {
	d := NewDecoder(body)
	m := &TextMessage{}
	for _, f := range []*string{&m.Channel, &m.FromID, &m.NickName, &m.Message} {
		s, err := d.ReadString()
		if err != nil {
			return nil, malformed(err)
		}
		*f = s
	}
	return done(m, d)
}
