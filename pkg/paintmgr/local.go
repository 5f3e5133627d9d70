package paintmgr

import (
	"net"

	"github.com/kingctan/sharedpainter/internal/errors"
	"github.com/kingctan/sharedpainter/pkg/paint"
	"github.com/kingctan/sharedpainter/pkg/protocol"
	"github.com/kingctan/sharedpainter/pkg/transport"
)

// SubmitLocalTask appends a task drawn locally. Once it executes it is
// announced to the channel; a task queued during playback is announced
// when replay reaches it. It runs on the reactor, in order with remote
// tasks.
func (m *Manager) SubmitLocalTask(t *paint.Task) error {
	return m.call(func() error {
		m.mu.Lock()
		m.local[t] = struct{}{}
		m.mu.Unlock()

		if err := m.log.Submit(t, true); err != nil {
			m.mu.Lock()
			delete(m.local, t)
			m.mu.Unlock()
			m.metrics.tasks.WithLabelValues("local", "refused").Inc()
			return errors.New("E205").WithDetail(t.Kind.String()).Wrap(err)
		}
		m.metrics.tasks.WithLabelValues("local", "accepted").Inc()
		return nil
	})
}

// SeekTo moves the playback cursor.
func (m *Manager) SeekTo(position int) error {
	return m.call(func() error { return m.log.SeekTo(position) })
}

// Undo steps the playback cursor back by one.
func (m *Manager) Undo() error {
	return m.call(m.log.Undo)
}

// Redo steps the playback cursor forward by one.
func (m *Manager) Redo() error {
	return m.call(m.log.Redo)
}

func (m *Manager) taskExecuted(index int, t *paint.Task, send bool) {
	if send {
		m.mu.Lock()
		_, local := m.local[t]
		delete(m.local, t)
		m.mu.Unlock()
		if local {
			m.broadcast(nil, m.packet(&protocol.TaskExecute{Task: t}))
		}
	}
	m.post(func() { m.observer.OnTaskExecuted(index, t) })
}

func (m *Manager) taskRolledBack(index int, t *paint.Task) {
	m.post(func() { m.observer.OnTaskRolledBack(index, t) })
}

// SendChatMessage sends a chat line to the channel.
func (m *Manager) SendChatMessage(message string) error {
	self := m.users.Self()
	return m.send(&protocol.ChatMessage{
		UserID:   self.ID,
		NickName: self.NickName,
		Message:  message,
	})
}

// ChangeNickName renames the local user and tells the channel.
func (m *Manager) ChangeNickName(nick string) error {
	prev, _ := m.users.ChangeNickName(m.SelfID(), nick)
	if prev == nick {
		return nil
	}
	m.post(func() { m.observer.OnNickNameChanged(m.SelfID(), prev, nick) })
	return m.send(&protocol.ChangeNickName{UserID: m.SelfID(), NickName: nick})
}

// ResizeMainWindow records and shares the main window size.
func (m *Manager) ResizeMainWindow(width, height int) error {
	if width <= 0 || height <= 0 {
		return errInvalid
	}
	m.withCanvas(func(c *canvasState) { c.windowW, c.windowH = width, height })
	return m.send(&protocol.ResizeMainWindow{Width: width, Height: height})
}

// ResizeCanvas records and shares the canvas size.
func (m *Manager) ResizeCanvas(width, height int) error {
	if width <= 0 || height <= 0 {
		return errInvalid
	}
	m.withCanvas(func(c *canvasState) { c.canvasW, c.canvasH = width, height })
	return m.send(&protocol.ResizeCanvas{Width: width, Height: height})
}

// ResizeSplitter records and shares the splitter sizes.
func (m *Manager) ResizeSplitter(sizes []int) error {
	if len(sizes) == 0 {
		return errInvalid
	}
	sizes = append([]int(nil), sizes...)
	m.withCanvas(func(c *canvasState) { c.splitter = sizes })
	return m.send(&protocol.ResizeWindowSplitter{Sizes: sizes})
}

// ScrollCanvas records and shares the canvas scroll position.
func (m *Manager) ScrollCanvas(horizontal, vertical int) error {
	if horizontal < 0 || vertical < 0 {
		return errInvalid
	}
	m.withCanvas(func(c *canvasState) { c.scrollH, c.scrollV = horizontal, vertical })
	return m.send(&protocol.ChangeCanvasScroll{Horizontal: horizontal, Vertical: vertical})
}

// SetGridLine sets the background grid size. Zero hides the grid.
func (m *Manager) SetGridLine(size int) error {
	if size < 0 {
		return errInvalid
	}
	m.withCanvas(func(c *canvasState) { c.gridSize = size })
	return m.send(&protocol.SetBackgroundGrid{Size: size})
}

// SetBackgroundColor sets the background color.
func (m *Manager) SetBackgroundColor(c paint.Color) error {
	m.withCanvas(func(cs *canvasState) { cs.bgColor = c })
	return m.send(&protocol.SetBackgroundColor{Color: c})
}

// SetBackgroundImage sets the background image.
func (m *Manager) SetBackgroundImage(img paint.Image) error {
	m.withCanvas(func(c *canvasState) { c.bgImage = &img })
	return m.send(&protocol.SetBackgroundImage{Image: img})
}

// ClearBackground resets grid, color and image.
func (m *Manager) ClearBackground() error {
	m.withCanvas((*canvasState).resetBackground)
	return m.send(&protocol.ClearBackground{})
}

// ClearScreen drops the whole drawing, history included, on every painter.
func (m *Manager) ClearScreen() error {
	return m.call(func() error {
		m.log.Clear()
		m.withCanvas((*canvasState).resetBackground)
		return m.send(&protocol.ClearScreen{})
	})
}

// SendBroadcastText sends a text line to every painter on the LAN
// listening on the channel, joined or not.
func (m *Manager) SendBroadcastText(message string) error {
	if m.disc == nil {
		return errors.Newf(errors.CategoryNetwork, "discovery not configured")
	}
	self := m.users.Self()
	return m.disc.SendText(self.Channel, self.NickName, message)
}

// SetRecording tells the channel whether the local screen is recorded.
func (m *Manager) SetRecording(recording bool) error {
	m.users.Update(m.SelfID(), func(u *paint.User) { u.ScreenRecording = recording })
	return m.send(&protocol.ChangeRecordStatus{Recording: recording})
}

// SetShowStream starts or stops streaming the local screen. Stopping drops
// every stream target.
func (m *Manager) SetShowStream(status bool) error {
	m.users.Update(m.SelfID(), func(u *paint.User) { u.ScreenStreaming = status })
	if !status {
		for _, id := range m.sessions.StreamUsers() {
			m.sessions.RemoveStream(id)
		}
	}
	return m.send(&protocol.ChangeShowStream{Sender: true, Status: status})
}

// RespondShowStream answers another painter's stream offer. Accepting
// binds the local stream socket and announces its port.
func (m *Manager) RespondShowStream(accept bool) error {
	port := 0
	if accept {
		stream, err := m.streamConn()
		if err != nil {
			return errors.New("E203").WithDetail("stream socket").Wrap(err)
		}
		port = stream.Port()
	}
	m.users.Update(m.SelfID(), func(u *paint.User) {
		u.StreamReceiving = accept
		u.StreamListenPort = port
	})
	return m.send(&protocol.ResShowStream{Accept: accept, Port: port})
}

// StreamTo sends packets to every stream target.
func (m *Manager) StreamTo(packets ...*protocol.Packet) int {
	n := 0
	for _, id := range m.sessions.StreamUsers() {
		if s, ok := m.sessions.Stream(id); ok && s.Send(packets...) == nil {
			n++
		}
	}
	return n
}

// streamConn binds the UDP stream socket on first use.
func (m *Manager) streamConn() (*transport.UDPConn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stream != nil {
		return m.stream, nil
	}
	if m.closing.Load() {
		return nil, ErrClosed
	}
	u, err := transport.ListenUDP(m.ctx, m.cfg.StreamHost, m.cfg.StreamPort, DefaultServerPortTries, m.cfg.TransportOptions...)
	if err != nil {
		return nil, err
	}
	u.Serve(func(from *net.UDPAddr, p *protocol.Packet) {
		m.logger.Debug("stream packet", "from", from.String(), "code", p.Code.String())
	})
	m.stream = u
	return u, nil
}

// send fans a locally produced message out to the channel. Offline
// painters have nobody to tell, which is not an error.
func (m *Manager) send(msg protocol.Message) error {
	if m.closing.Load() {
		return ErrClosed
	}
	m.broadcast(nil, m.packet(msg))
	return nil
}
