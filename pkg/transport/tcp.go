package transport

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync"

	"github.com/kingctan/sharedpainter/pkg/protocol"
)

// TCPSession is a packet stream over a TCP connection.
type TCPSession struct {
	*conn
	nc net.Conn
}

func newTCPSession(nc net.Conn, h Handler, opts options) *TCPSession {
	s := &TCPSession{
		conn: newConn(KindTCP, nc.RemoteAddr().String(), h, opts),
		nc:   nc,
	}
	s.closer = nc.Close
	return s
}

func (s *TCPSession) start() {
	s.handler.HandleConnect(s)
	go s.writeLoop()
	go s.readLoop()
}

// Send queues packets for writing.
func (s *TCPSession) Send(packets ...*protocol.Packet) error {
	return s.enqueue(packets)
}

// Close closes the connection.
func (s *TCPSession) Close() error {
	s.shutdown(s, nil)
	return nil
}

func (s *TCPSession) readLoop() {
	r := protocol.NewReader(s.nc)
	for {
		if s.opts.readTimeout > 0 {
			_ = s.nc.SetReadDeadline(s.deadline(s.opts.readTimeout))
		}
		p, err := r.Next()
		if err != nil {
			if errors.Is(err, protocol.ErrMalformed) {
				s.opts.logger.Warn("dropping malformed packet", "session_id", s.id, "error", err)
				continue
			}
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				err = nil
			}
			s.shutdown(s, err)
			return
		}
		s.handler.HandlePacket(s, p)
	}
}

func (s *TCPSession) writeLoop() {
	for {
		select {
		case buf := <-s.sendCh:
			_ = s.nc.SetWriteDeadline(s.deadline(s.opts.writeTimeout))
			if _, err := s.nc.Write(buf); err != nil {
				s.shutdown(s, err)
				return
			}
		case <-s.done:
			return
		}
	}
}

// DialTCP connects to addr and starts the session.
func DialTCP(ctx context.Context, addr string, h Handler, opts ...Option) (*TCPSession, error) {
	o := buildOptions(opts)
	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	s := newTCPSession(nc, h, o)
	s.start()
	return s, nil
}

// TCPListener accepts packet sessions.
type TCPListener struct {
	ln      net.Listener
	port    int
	handler Handler
	opts    options
	logger  *slog.Logger

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// ListenTCP binds the first free port in [basePort, basePort+tries) on host
// and starts accepting. A basePort of 0 binds an ephemeral port.
func ListenTCP(ctx context.Context, host string, basePort, tries int, h Handler, opts ...Option) (*TCPListener, error) {
	o := buildOptions(opts)
	ln, port, err := probe(tries, basePort, func(port int) (net.Listener, error) {
		var lc net.ListenConfig
		return lc.Listen(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	})
	if err != nil {
		return nil, err
	}
	if port == 0 {
		port = ln.Addr().(*net.TCPAddr).Port
	}

	l := &TCPListener{
		ln:      ln,
		port:    port,
		handler: h,
		opts:    o,
		logger:  o.logger.With("component", "tcp-listener", "port", port),
	}
	l.wg.Add(1)
	go l.acceptLoop()
	return l, nil
}

// Port returns the bound port.
func (l *TCPListener) Port() int { return l.port }

// Addr returns the bound address.
func (l *TCPListener) Addr() net.Addr { return l.ln.Addr() }

func (l *TCPListener) acceptLoop() {
	defer l.wg.Done()
	for {
		nc, err := l.ln.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				l.logger.Error("accept error", "error", err)
			}
			return
		}
		newTCPSession(nc, l.handler, l.opts).start()
	}
}

// Close stops accepting. Established sessions stay open.
func (l *TCPListener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		err = l.ln.Close()
		l.wg.Wait()
	})
	return err
}

// probe tries bind on successive ports starting at base.
func probe[T any](tries, base int, bind func(port int) (T, error)) (T, int, error) {
	var zero T
	if base == 0 {
		v, err := bind(0)
		return v, 0, err
	}
	if tries <= 0 {
		tries = 1
	}
	var lastErr error
	for i := 0; i < tries; i++ {
		v, err := bind(base + i)
		if err == nil {
			return v, base + i, nil
		}
		lastErr = err
	}
	return zero, 0, errors.Join(ErrNoPort, lastErr)
}
