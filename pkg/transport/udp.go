package transport

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/kingctan/sharedpainter/pkg/protocol"
)

// MaxDatagramSize is the largest datagram read.
const MaxDatagramSize = 64 * 1024

// DatagramHandler receives the packets of one datagram.
type DatagramHandler func(from *net.UDPAddr, p *protocol.Packet)

// UDPConn is a bound UDP socket used for discovery, control and media.
// Each datagram holds one or more whole packets.
type UDPConn struct {
	pc     *net.UDPConn
	port   int
	logger *slog.Logger

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// ListenUDP binds the first free port in [basePort, basePort+tries) on host.
// A basePort of 0 binds an ephemeral port.
func ListenUDP(ctx context.Context, host string, basePort, tries int, opts ...Option) (*UDPConn, error) {
	o := buildOptions(opts)
	pc, port, err := probe(tries, basePort, func(port int) (net.PacketConn, error) {
		var lc net.ListenConfig
		return lc.ListenPacket(ctx, "udp4", net.JoinHostPort(host, strconv.Itoa(port)))
	})
	if err != nil {
		return nil, err
	}
	udp := pc.(*net.UDPConn)
	if port == 0 {
		port = udp.LocalAddr().(*net.UDPAddr).Port
	}
	return &UDPConn{
		pc:     udp,
		port:   port,
		logger: o.logger.With("component", "udp", "port", port),
	}, nil
}

// Port returns the bound port.
func (u *UDPConn) Port() int { return u.port }

// Serve reads datagrams until the socket is closed, handing every packet to
// h. Unparsable datagrams are dropped.
func (u *UDPConn) Serve(h DatagramHandler) {
	u.wg.Add(1)
	go func() {
		defer u.wg.Done()
		buf := make([]byte, MaxDatagramSize)
		for {
			n, from, err := u.pc.ReadFromUDP(buf)
			if err != nil {
				if !errors.Is(err, net.ErrClosed) {
					u.logger.Error("read error", "error", err)
				}
				return
			}
			packets, err := protocol.Parse(buf[:n])
			if err != nil {
				u.logger.Debug("dropping datagram", "from", from.String(), "error", err)
				continue
			}
			for _, p := range packets {
				h(from, p)
			}
		}
	}()
}

// SendTo writes packets to addr as one datagram.
func (u *UDPConn) SendTo(addr *net.UDPAddr, packets ...*protocol.Packet) error {
	_, err := u.pc.WriteToUDP(protocol.Concat(packets...), addr)
	return err
}

// Broadcast writes packets to the IPv4 broadcast address on port.
func (u *UDPConn) Broadcast(port int, packets ...*protocol.Packet) error {
	return u.SendTo(&net.UDPAddr{IP: net.IPv4bcast, Port: port}, packets...)
}

// Session returns a session that sends to target over this socket.
// Closing it does not close the socket.
func (u *UDPConn) Session(target *net.UDPAddr) Session {
	return &udpSession{id: uuid.NewString(), conn: u, target: target}
}

// Close closes the socket and waits for Serve to return.
func (u *UDPConn) Close() error {
	var err error
	u.closeOnce.Do(func() {
		err = u.pc.Close()
		u.wg.Wait()
	})
	return err
}

type udpSession struct {
	id     string
	conn   *UDPConn
	target *net.UDPAddr

	mu     sync.Mutex
	closed bool
}

func (s *udpSession) ID() string         { return s.id }
func (s *udpSession) Kind() Kind         { return KindUDP }
func (s *udpSession) RemoteAddr() string { return s.target.String() }

func (s *udpSession) Send(packets ...*protocol.Packet) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}
	return s.conn.SendTo(s.target, packets...)
}

func (s *udpSession) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
