package protocol

// ChangeRecordStatus reports that the sender started or stopped recording.
type ChangeRecordStatus struct {
	Recording bool
}

func (*ChangeRecordStatus) Code() Code { return CodeChangeRecordStatus }

func (m *ChangeRecordStatus) EncodeTo(e *Encoder) { e.WriteBool(m.Recording) }

// DecodeChangeRecordStatus decodes a ChangeRecordStatus body.
func DecodeChangeRecordStatus(body []byte) (*ChangeRecordStatus, error) {
	d := NewDecoder(body)
	b, err := d.ReadBool()
	if err != nil {
		return nil, malformed(err)
	}
	return done(&ChangeRecordStatus{Recording: b}, d)
}

// ChangeShowStream reports a screen stream starting or stopping. Sender is
// true when the originator is the one streaming, false when it is a viewer.
type ChangeShowStream struct {
	Sender bool
	Status bool
}

func (*ChangeShowStream) Code() Code { return CodeChangeShowStream }

func (m *ChangeShowStream) EncodeTo(e *Encoder) {
	e.WriteBool(m.Sender)
	e.WriteBool(m.Status)
}

// DecodeChangeShowStream decodes a ChangeShowStream body.
func DecodeChangeShowStream(body []byte) (*ChangeShowStream, error) {
	d := NewDecoder(body)
	m := &ChangeShowStream{}
	var err error
	if m.Sender, err = d.ReadBool(); err != nil {
		return nil, malformed(err)
	}
	if m.Status, err = d.ReadBool(); err != nil {
		return nil, malformed(err)
	}
	return done(m, d)
}

// ResShowStream answers a stream offer with the UDP port to stream to.
type ResShowStream struct {
	Accept bool
	Port   int
}

func (*ResShowStream) Code() Code { return CodeResShowStream }

func (m *ResShowStream) EncodeTo(e *Encoder) {
	e.WriteBool(m.Accept)
	e.WriteUvarint(uint64(m.Port))
}

// DecodeResShowStream decodes a ResShowStream body.
func DecodeResShowStream(body []byte) (*ResShowStream, error) {
	d := NewDecoder(body)
	m := &ResShowStream{}
	var err error
	if m.Accept, err = d.ReadBool(); err != nil {
		return nil, malformed(err)
	}
	port, err := d.ReadUvarint()
	if err != nil || port > 65535 {
		return nil, ErrMalformed
	}
	m.Port = int(port)
	return done(m, d)
}
