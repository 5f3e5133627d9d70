package paintmgr

import (
	stderrors "errors"
	"net"
	"strconv"

	"github.com/kingctan/sharedpainter/internal/errors"
	"github.com/kingctan/sharedpainter/pkg/paint"
	"github.com/kingctan/sharedpainter/pkg/protocol"
	"github.com/kingctan/sharedpainter/pkg/session"
	"github.com/kingctan/sharedpainter/pkg/transport"
)

// errInvalid marks a well-formed body carrying values the canvas rejects.
var errInvalid = stderrors.New("paintmgr: invalid value")

// dispatch handles one inbound packet on the reactor. s is nil for packets
// imported from a blob.
func (m *Manager) dispatch(s transport.Session, p *protocol.Packet) {
	m.metrics.packetsDispatched.WithLabelValues(p.Code.String()).Inc()

	var err error
	switch p.Code {
	case protocol.CodeVersionInfo:
		err = m.handleVersionInfo(s, p)
	case protocol.CodeChangeNickName:
		err = m.handleChangeNickName(p)
	case protocol.CodeJoinToServer:
		err = m.handleJoinToServer(s, p)
	case protocol.CodeJoinToSuperPeer:
		err = m.handleJoinToSuperPeer(s, p)
	case protocol.CodeResJoin:
		err = m.handleResJoin(s, p)
	case protocol.CodeChangeSuperPeer:
		err = m.handleChangeSuperPeer(p)
	case protocol.CodeTCPSyn:
		err = m.handleTCPSyn(p)
	case protocol.CodeTCPAck:
		err = protocol.DecodeEmpty(p.Body)
	case protocol.CodeSyncRequest:
		err = m.handleSyncRequest(p)
	case protocol.CodeSyncStart:
		err = m.handleSyncStart(p)
	case protocol.CodeSyncComplete:
		err = m.handleSyncComplete(p)
	case protocol.CodeLeft:
		err = m.handleLeft(p)
	case protocol.CodeChatMessage:
		err = m.handleChatMessage(p)
	case protocol.CodeHistoryUserList:
		err = m.handleHistoryUserList(p)

	case protocol.CodeResizeMainWindow,
		protocol.CodeResizeCanvas,
		protocol.CodeResizeWindowSplitter,
		protocol.CodeChangeCanvasScroll:
		err = m.handleWindow(p)

	case protocol.CodeClearScreen,
		protocol.CodeClearBackground,
		protocol.CodeSetBackgroundImg,
		protocol.CodeSetBackgroundGrid,
		protocol.CodeSetBackgroundClr,
		protocol.CodeCreateItem:
		err = m.handlePaint(p)

	case protocol.CodeTaskExecute:
		err = m.handleTaskExecute(p)

	case protocol.CodeChangeRecordStatus:
		err = m.handleChangeRecordStatus(p)
	case protocol.CodeChangeShowStream:
		err = m.handleChangeShowStream(p)
	case protocol.CodeResShowStream:
		err = m.handleResShowStream(p)

	default:
		m.drop(p, "unknown", nil)
		return
	}

	if err != nil {
		reason := "error"
		switch {
		case stderrors.Is(err, protocol.ErrMalformed):
			reason = "malformed"
			err = errors.New("E202").WithDetail(p.Code.String()).Wrap(err)
		case stderrors.Is(err, errInvalid):
			reason = "invalid"
		}
		m.drop(p, reason, err)
		return
	}

	m.forward(s, p)
}

func (m *Manager) drop(p *protocol.Packet, reason string, err error) {
	m.metrics.packetsDropped.WithLabelValues(p.Code.String(), reason).Inc()
	m.logger.Debug("packet dropped",
		"code", p.Code.String(),
		"from", p.FromID,
		"reason", reason,
		"error", err)
}

// forward relays a broadcastable packet a super-peer received from one
// peer to every other peer. Relay traffic is never forwarded.
func (m *Manager) forward(s transport.Session, p *protocol.Packet) {
	if s == nil || !p.Code.Broadcastable() || !m.users.IsSuperPeer() {
		return
	}
	if e, ok := m.sessions.Get(s.ID()); !ok || e.Role != session.RolePeer {
		return
	}
	for _, peer := range m.sessions.Peers() {
		if peer.ID() == s.ID() {
			continue
		}
		if err := peer.Send(p); err != nil {
			m.logger.Debug("forward failed", "session_id", peer.ID(), "error", err)
			continue
		}
		m.metrics.packetsForwarded.Inc()
	}
}

// packet stamps msg with the local user id.
func (m *Manager) packet(msg protocol.Message) *protocol.Packet {
	return protocol.MakeFrom(m.SelfID(), msg)
}

// broadcast routes packets to the rest of the channel: every peer session
// when the local painter is the super-peer, otherwise the super-peer
// session when connected, otherwise the relay. It returns the number of
// sessions written to.
func (m *Manager) broadcast(except transport.Session, packets ...*protocol.Packet) int {
	if m.users.IsSuperPeer() {
		n := 0
		for _, peer := range m.sessions.Peers() {
			if except != nil && peer.ID() == except.ID() {
				continue
			}
			if err := peer.Send(packets...); err != nil {
				m.logger.Debug("send failed", "session_id", peer.ID(), "error", err)
				continue
			}
			n++
		}
		return n
	}
	if s, ok := m.sessions.SuperPeer(); ok {
		if err := s.Send(packets...); err == nil {
			return 1
		}
	}
	if s, ok := m.sessions.Relay(); ok {
		if err := s.Send(packets...); err == nil {
			return 1
		}
	}
	return 0
}

func (m *Manager) handleVersionInfo(s transport.Session, p *protocol.Packet) error {
	v, err := protocol.CheckVersion(p)
	if err == nil {
		m.logger.Debug("peer version", "app", v.AppVersion, "protocol", v.ProtocolVersion)
		return nil
	}
	e := errors.New("E200").Wrap(err)
	if v != nil {
		e = e.WithDetailf("remote %s speaks protocol %s, local is %s", v.AppVersion, v.ProtocolVersion, protocol.Version)
	}
	if s == nil {
		return e
	}
	// Only the sessions go; roster and log stay as they were.
	m.teardown(e, false)
	return nil
}

func (m *Manager) handleChangeNickName(p *protocol.Packet) error {
	msg, err := protocol.DecodeChangeNickName(p.Body)
	if err != nil {
		return err
	}
	prev, ok := m.users.ChangeNickName(msg.UserID, msg.NickName)
	if !ok {
		return nil
	}
	m.post(func() { m.observer.OnNickNameChanged(msg.UserID, prev, msg.NickName) })
	return nil
}

func (m *Manager) handleJoinToServer(s transport.Session, p *protocol.Packet) error {
	msg, err := protocol.DecodeJoinToServer(p.Body)
	if err != nil {
		return err
	}
	fromRelay := false
	if s != nil {
		if e, ok := m.sessions.Get(s.ID()); ok && e.Role == session.RoleRelay {
			fromRelay = true
		}
	}
	m.assert(fromRelay, "JOIN_TO_SERVER from %s outside the relay session", msg.User.ID)
	if !fromRelay || msg.User.ID == m.SelfID() {
		return nil
	}
	m.users.Add(msg.User)
	return nil
}

func (m *Manager) handleJoinToSuperPeer(s transport.Session, p *protocol.Packet) error {
	msg, err := protocol.DecodeJoinToSuperPeer(p.Body)
	if err != nil {
		return err
	}
	u := msg.User
	if u.ID == m.SelfID() {
		return nil
	}
	_, relayUp := m.sessions.Relay()
	if m.cfg.AlwaysP2P || !relayUp {
		m.users.Add(u)
	}
	if s == nil {
		return nil
	}
	old, err := m.sessions.Attach(s.ID(), u.ID)
	if err != nil {
		m.logger.Warn("attach failed", "session_id", s.ID(), "user_id", u.ID, "error", err)
		return nil
	}
	if old != nil {
		_ = old.Close()
	}
	m.users.Update(u.ID, func(x *paint.User) { x.SessionID = s.ID() })
	m.logger.Info("peer joined", "user_id", u.ID, "nick", u.NickName)

	if !m.users.IsSuperPeer() || relayUp {
		return nil
	}
	res := &protocol.ResJoin{
		Channel:     m.channel(),
		Users:       m.wireUsers(),
		SuperPeerID: m.SelfID(),
	}
	if err := s.Send(protocol.Make(protocol.NewVersionInfo(m.cfg.AppVersion)), m.packet(res)); err != nil {
		m.logger.Warn("send RES_JOIN failed", "user_id", u.ID, "error", err)
	}
	m.broadcast(s, m.packet(res))
	return nil
}

func (m *Manager) handleResJoin(s transport.Session, p *protocol.Packet) error {
	msg, err := protocol.DecodeResJoin(p.Body)
	if err != nil {
		return err
	}
	if msg.Channel != "" && msg.Channel != m.channel() {
		m.logger.Warn("RES_JOIN for another channel", "channel", msg.Channel)
		return nil
	}
	for _, u := range msg.Users {
		if u.ID != m.SelfID() {
			m.users.Add(u)
		}
	}
	if s != nil && msg.SuperPeerID != "" && msg.SuperPeerID != m.SelfID() {
		if e, ok := m.sessions.Get(s.ID()); ok && e.Role == session.RolePeer && e.UserID == "" {
			if _, err := m.sessions.Attach(s.ID(), msg.SuperPeerID); err == nil {
				m.users.Update(msg.SuperPeerID, func(x *paint.User) { x.SessionID = s.ID() })
			}
		}
	}
	m.changeSuperPeer(msg.SuperPeerID)

	if m.State() != StateJoinRequested {
		return nil
	}
	m.setState(StateJoined)
	m.logger.Info("joined",
		"channel", m.channel(),
		"users", m.users.Len(),
		"first", msg.FirstUser,
		"super_peer", msg.SuperPeerID)
	if !msg.FirstUser && msg.SuperPeerID != m.SelfID() {
		m.requestSync()
	}
	return nil
}

func (m *Manager) handleChangeSuperPeer(p *protocol.Packet) error {
	msg, err := protocol.DecodeChangeSuperPeer(p.Body)
	if err != nil {
		return err
	}
	m.changeSuperPeer(msg.UserID)
	return nil
}

// changeSuperPeer records id as super-peer and connects to it when it is
// another painter with a listening server.
func (m *Manager) changeSuperPeer(id string) {
	if id == "" || id == m.users.SuperPeerID() && m.hasSuperPeerRoute(id) {
		return
	}
	m.setSuperPeer(id)
	if id == m.SelfID() {
		m.assert(m.ServerPort() > 0, "elected super-peer without a listening server")
		return
	}
	if m.hasSuperPeerRoute(id) || m.connecting == id {
		return
	}
	u, ok := m.users.Find(id)
	if !ok || u.ListenTCPPort <= 0 {
		return
	}
	addr := joinHostPort(userHost(u), u.ListenTCPPort)
	m.connecting = id
	ctx := m.ctx
	go func() {
		s, err := m.cfg.DialPeer(ctx, addr, m.peerHandler)
		if !m.enqueue(func() { m.superPeerDialed(id, addr, s, err) }) && s != nil {
			_ = s.Close()
		}
	}()
}

func (m *Manager) hasSuperPeerRoute(id string) bool {
	_, ok := m.sessions.Peer(id)
	return ok
}

// superPeerDialed completes an asynchronous connect to the super-peer.
func (m *Manager) superPeerDialed(id, addr string, s transport.Session, err error) {
	if m.connecting == id {
		m.connecting = ""
	}
	if err != nil {
		m.reportError(errors.New("E203").WithDetailf("super-peer %s at %s", id, addr).Wrap(err))
		m.flushPendingSync()
		return
	}
	if m.users.SuperPeerID() != id {
		_ = s.Close()
		m.flushPendingSync()
		return
	}
	old, err := m.sessions.Attach(s.ID(), id)
	if err != nil {
		// closed in the meantime
		m.flushPendingSync()
		return
	}
	if old != nil {
		_ = old.Close()
	}
	m.users.Update(id, func(x *paint.User) { x.SessionID = s.ID() })
	if err := m.sendJoinToSuperPeer(s); err != nil {
		m.logger.Warn("send JOIN_TO_SUPERPEER failed", "error", err)
	}
	m.flushPendingSync()
}

func (m *Manager) handleTCPSyn(p *protocol.Packet) error {
	if err := protocol.DecodeEmpty(p.Body); err != nil {
		return err
	}
	if r, ok := m.sessions.Relay(); ok {
		_ = r.Send(protocol.Make(&protocol.TCPAck{}))
	}
	return nil
}

func (m *Manager) handleLeft(p *protocol.Packet) error {
	msg, err := protocol.DecodeLeft(p.Body)
	if err != nil {
		return err
	}
	if msg.UserID == m.SelfID() {
		return nil
	}
	if _, ok := m.users.Remove(msg.UserID); ok {
		m.logger.Info("user left", "user_id", msg.UserID)
	}
	if m.users.SuperPeerID() == msg.UserID {
		m.setSuperPeer("")
	}
	m.sessions.RemoveStream(msg.UserID)
	return nil
}

func (m *Manager) handleChatMessage(p *protocol.Packet) error {
	msg, err := protocol.DecodeChatMessage(p.Body)
	if err != nil {
		return err
	}
	m.post(func() { m.observer.OnChatMessage(msg.UserID, msg.NickName, msg.Message) })
	return nil
}

func (m *Manager) handleHistoryUserList(p *protocol.Packet) error {
	msg, err := protocol.DecodeHistoryUserList(p.Body)
	if err != nil {
		return err
	}
	m.users.MergeHistory(msg.Users)
	return nil
}

func (m *Manager) handleWindow(p *protocol.Packet) error {
	switch p.Code {
	case protocol.CodeResizeMainWindow:
		msg, err := protocol.DecodeResizeMainWindow(p.Body)
		if err != nil {
			return err
		}
		if msg.Width <= 0 || msg.Height <= 0 {
			return errInvalid
		}
		m.withCanvas(func(c *canvasState) { c.windowW, c.windowH = msg.Width, msg.Height })
		m.post(func() { m.observer.OnMainWindowResized(msg.Width, msg.Height) })

	case protocol.CodeResizeCanvas:
		msg, err := protocol.DecodeResizeCanvas(p.Body)
		if err != nil {
			return err
		}
		if msg.Width <= 0 || msg.Height <= 0 {
			return errInvalid
		}
		m.withCanvas(func(c *canvasState) { c.canvasW, c.canvasH = msg.Width, msg.Height })
		m.post(func() { m.observer.OnCanvasResized(msg.Width, msg.Height) })

	case protocol.CodeResizeWindowSplitter:
		msg, err := protocol.DecodeResizeWindowSplitter(p.Body)
		if err != nil {
			return err
		}
		if len(msg.Sizes) == 0 {
			return errInvalid
		}
		m.withCanvas(func(c *canvasState) { c.splitter = append([]int(nil), msg.Sizes...) })
		m.post(func() { m.observer.OnSplitterResized(msg.Sizes) })

	case protocol.CodeChangeCanvasScroll:
		msg, err := protocol.DecodeChangeCanvasScroll(p.Body)
		if err != nil {
			return err
		}
		if msg.Horizontal < 0 || msg.Vertical < 0 {
			return errInvalid
		}
		m.withCanvas(func(c *canvasState) { c.scrollH, c.scrollV = msg.Horizontal, msg.Vertical })
		m.post(func() { m.observer.OnCanvasScrolled(msg.Horizontal, msg.Vertical) })
	}
	return nil
}

func (m *Manager) handlePaint(p *protocol.Packet) error {
	switch p.Code {
	case protocol.CodeClearScreen:
		if err := protocol.DecodeEmpty(p.Body); err != nil {
			return err
		}
		m.log.Clear()
		m.withCanvas((*canvasState).resetBackground)
		m.post(m.observer.OnScreenCleared)

	case protocol.CodeClearBackground:
		if err := protocol.DecodeEmpty(p.Body); err != nil {
			return err
		}
		m.withCanvas((*canvasState).resetBackground)
		m.post(m.observer.OnBackgroundCleared)

	case protocol.CodeSetBackgroundImg:
		msg, err := protocol.DecodeSetBackgroundImage(p.Body)
		if err != nil {
			return err
		}
		img := msg.Image
		m.withCanvas(func(c *canvasState) { c.bgImage = &img })
		m.post(func() { m.observer.OnBackgroundImage(&img) })

	case protocol.CodeSetBackgroundGrid:
		msg, err := protocol.DecodeSetBackgroundGrid(p.Body)
		if err != nil {
			return err
		}
		if msg.Size < 0 {
			return errInvalid
		}
		m.withCanvas(func(c *canvasState) { c.gridSize = msg.Size })
		m.post(func() { m.observer.OnBackgroundGrid(msg.Size) })

	case protocol.CodeSetBackgroundClr:
		msg, err := protocol.DecodeSetBackgroundColor(p.Body)
		if err != nil {
			return err
		}
		m.withCanvas(func(c *canvasState) { c.bgColor = msg.Color })
		m.post(func() { m.observer.OnBackgroundColor(msg.Color) })

	case protocol.CodeCreateItem:
		msg, err := protocol.DecodeCreateItem(p.Body)
		if err != nil {
			return err
		}
		m.log.Scene().AddItem(msg.Item)
	}
	return nil
}

func (m *Manager) handleTaskExecute(p *protocol.Packet) error {
	msg, err := protocol.DecodeTaskExecute(p.Body)
	if err != nil {
		return err
	}
	if err := m.log.Submit(msg.Task, false); err != nil {
		m.metrics.tasks.WithLabelValues("remote", "refused").Inc()
		m.logger.Warn("remote task refused",
			"from", p.FromID,
			"kind", msg.Task.Kind.String(),
			"error", err)
		return nil
	}
	m.metrics.tasks.WithLabelValues("remote", "accepted").Inc()
	return nil
}

func (m *Manager) handleChangeRecordStatus(p *protocol.Packet) error {
	msg, err := protocol.DecodeChangeRecordStatus(p.Body)
	if err != nil {
		return err
	}
	id := p.FromID
	m.users.Update(id, func(u *paint.User) { u.ScreenRecording = msg.Recording })
	m.post(func() { m.observer.OnRecordStatusChanged(id, msg.Recording) })
	return nil
}

func (m *Manager) handleChangeShowStream(p *protocol.Packet) error {
	msg, err := protocol.DecodeChangeShowStream(p.Body)
	if err != nil {
		return err
	}
	id := p.FromID
	if msg.Sender {
		m.users.Update(id, func(u *paint.User) { u.ScreenStreaming = msg.Status })
	} else {
		m.users.Update(id, func(u *paint.User) { u.StreamReceiving = msg.Status })
		if !msg.Status {
			m.sessions.RemoveStream(id)
		}
	}
	m.post(func() { m.observer.OnShowStreamChanged(id, msg.Sender, msg.Status) })
	return nil
}

func (m *Manager) handleResShowStream(p *protocol.Packet) error {
	msg, err := protocol.DecodeResShowStream(p.Body)
	if err != nil {
		return err
	}
	id := p.FromID
	if !msg.Accept {
		m.users.Update(id, func(u *paint.User) { u.StreamListenPort = 0 })
		m.sessions.RemoveStream(id)
		return nil
	}
	u, ok := m.users.Find(id)
	if !ok || msg.Port <= 0 {
		return errInvalid
	}
	m.users.Update(id, func(u *paint.User) { u.StreamListenPort = msg.Port })
	stream, err := m.streamConn()
	if err != nil {
		m.reportError(errors.New("E203").WithDetail("stream socket").Wrap(err))
		return nil
	}
	ip := net.ParseIP(userHost(u))
	if ip == nil {
		return errInvalid
	}
	if old := m.sessions.SetStream(id, stream.Session(&net.UDPAddr{IP: ip, Port: msg.Port})); old != nil {
		_ = old.Close()
	}
	m.logger.Info("stream target", "user_id", id, "port", msg.Port)
	return nil
}

// wireUsers returns the roster as sent to others.
func (m *Manager) wireUsers() []*paint.User {
	users := m.users.Users()
	for _, u := range users {
		u.SessionID = ""
		u.Self = false
	}
	return users
}

// userHost picks the address a user is reachable on.
func userHost(u *paint.User) string {
	if u.ViewIP != "" {
		return u.ViewIP
	}
	if u.LocalIP != "" {
		return u.LocalIP
	}
	return "127.0.0.1"
}

func joinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
