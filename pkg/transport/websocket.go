package transport

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kingctan/sharedpainter/pkg/protocol"
)

// WSSession carries packets over a WebSocket. Each binary message holds one
// or more whole packets, so a sync package always arrives in one piece.
type WSSession struct {
	*conn
	ws *websocket.Conn
}

func newWSSession(ws *websocket.Conn, h Handler, opts options) *WSSession {
	s := &WSSession{
		conn: newConn(KindWebSocket, ws.RemoteAddr().String(), h, opts),
		ws:   ws,
	}
	s.closer = func() error {
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		return ws.Close()
	}
	return s
}

func (s *WSSession) start() {
	s.handler.HandleConnect(s)
	go s.writeLoop()
	go s.readLoop()
}

// Send queues packets to be written as one message.
func (s *WSSession) Send(packets ...*protocol.Packet) error {
	return s.enqueue(packets)
}

// Close closes the connection.
func (s *WSSession) Close() error {
	s.shutdown(s, nil)
	return nil
}

func (s *WSSession) readLoop() {
	if s.opts.readTimeout > 0 {
		_ = s.ws.SetReadDeadline(s.deadline(s.opts.readTimeout))
		s.ws.SetPongHandler(func(string) error {
			return s.ws.SetReadDeadline(s.deadline(s.opts.readTimeout))
		})
	}
	for {
		_, msg, err := s.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				s.opts.logger.Error("read error", "session_id", s.id, "error", err)
			} else {
				err = nil
			}
			s.shutdown(s, err)
			return
		}
		if s.opts.readTimeout > 0 {
			_ = s.ws.SetReadDeadline(s.deadline(s.opts.readTimeout))
		}

		packets, err := protocol.Parse(msg)
		if err != nil {
			// A broken message is dropped; the connection stays up.
			s.opts.logger.Warn("dropping unparsable message",
				"session_id", s.id,
				"bytes", len(msg),
				"error", err)
			continue
		}
		for _, p := range packets {
			s.handler.HandlePacket(s, p)
		}
	}
}

func (s *WSSession) writeLoop() {
	ticker := time.NewTicker(s.opts.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case buf := <-s.sendCh:
			_ = s.ws.SetWriteDeadline(s.deadline(s.opts.writeTimeout))
			if err := s.ws.WriteMessage(websocket.BinaryMessage, buf); err != nil {
				s.shutdown(s, err)
				return
			}
		case <-ticker.C:
			if err := s.ws.WriteControl(websocket.PingMessage, nil, s.deadline(s.opts.writeTimeout)); err != nil {
				s.shutdown(s, err)
				return
			}
		case <-s.done:
			return
		}
	}
}

// DialWebSocket connects to a relay at url (ws:// or wss://).
func DialWebSocket(ctx context.Context, url string, h Handler, opts ...Option) (*WSSession, error) {
	o := buildOptions(opts)
	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, url, o.header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	s := newWSSession(ws, h, o)
	s.start()
	return s, nil
}

// Upgrader accepts WebSocket sessions on an HTTP server.
type Upgrader struct {
	upgrader websocket.Upgrader
	handler  Handler
	opts     options
}

// NewUpgrader creates an Upgrader. checkOrigin may be nil to accept any
// origin; relays are reached by native peers, not browsers.
func NewUpgrader(h Handler, checkOrigin func(r *http.Request) bool, opts ...Option) *Upgrader {
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &Upgrader{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     checkOrigin,
		},
		handler: h,
		opts:    buildOptions(opts),
	}
}

// Upgrade upgrades the request and starts the session.
func (u *Upgrader) Upgrade(w http.ResponseWriter, r *http.Request) (*WSSession, error) {
	ws, err := u.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	s := newWSSession(ws, u.handler, u.opts)
	s.start()
	return s, nil
}

// ServeHTTP implements http.Handler.
func (u *Upgrader) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if _, err := u.Upgrade(w, r); err != nil {
		// Upgrade already wrote the HTTP error.
		if !errors.Is(err, context.Canceled) {
			u.opts.logger.Warn("websocket upgrade failed", "error", err)
		}
	}
}
