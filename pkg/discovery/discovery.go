// Package discovery finds painters on the local network.
//
// A Service owns three UDP sockets: the control socket every probe,
// reply and text broadcast is sent from, the probe listener on the
// well-known probe port, and the text listener on the text-broadcast
// port. The listeners are optional: when several painters run on one
// host only the first can bind them, and the rest still work as clients.
//
// Channel filtering happens here. Probes, server infos and text messages
// for other channels never reach the Events callbacks.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/kingctan/sharedpainter/pkg/protocol"
	"github.com/kingctan/sharedpainter/pkg/transport"
)

// Default ports and probe schedule.
const (
	DefaultProbePort       = 3336
	DefaultTextPort        = 3338
	DefaultControlBasePort = 5001
	DefaultControlTries    = 100
	DefaultProbeAttempts   = 3
	DefaultProbeInterval   = time.Second
)

// ErrNotStarted is returned when the service sockets are not bound.
var ErrNotStarted = errors.New("discovery: service not started")

// Config holds the service settings. Zero values take the defaults.
type Config struct {
	Host            string
	BroadcastAddr   string
	ProbePort       int
	TextPort        int
	ControlBasePort int
	ControlTries    int
	ProbeAttempts   int
	ProbeInterval   time.Duration
}

func (c *Config) applyDefaults() {
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.BroadcastAddr == "" {
		c.BroadcastAddr = net.IPv4bcast.String()
	}
	if c.ProbePort == 0 {
		c.ProbePort = DefaultProbePort
	}
	if c.TextPort == 0 {
		c.TextPort = DefaultTextPort
	}
	if c.ControlBasePort == 0 {
		c.ControlBasePort = DefaultControlBasePort
	}
	if c.ControlTries <= 0 {
		c.ControlTries = DefaultControlTries
	}
	if c.ProbeAttempts <= 0 {
		c.ProbeAttempts = DefaultProbeAttempts
	}
	if c.ProbeInterval <= 0 {
		c.ProbeInterval = DefaultProbeInterval
	}
}

// Events receives filtered discovery traffic. Nil fields are ignored.
// Callbacks run on a socket goroutine and must not block.
type Events struct {
	// Probe is called after a probe for the own channel was answered.
	Probe func(m *protocol.ProbeServer)

	// ServerFound is called for every server info on the own channel.
	ServerFound func(m *protocol.ServerInfo)

	// Text is called for text broadcasts on the own channel from others.
	Text func(m *protocol.TextMessage)
}

// Identity is what the service knows about the local painter.
type Identity struct {
	UserID  string
	Channel string
	LocalIP string

	// ServerPort is the listening TCP port announced in replies. Probes
	// are not answered while it is zero.
	ServerPort int
}

// Service sends and answers discovery broadcasts.
type Service struct {
	config Config
	events Events
	logger *slog.Logger

	mu      sync.RWMutex
	id      Identity
	control *transport.UDPConn
	probes  *transport.UDPConn
	texts   *transport.UDPConn
	found   chan struct{}
}

// New creates a service. Start binds its sockets.
func New(config Config, events Events, logger *slog.Logger) *Service {
	config.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		config: config,
		events: events,
		logger: logger.With("component", "discovery"),
	}
}

// Start binds the control socket and tries to bind the listeners.
// Only a control socket failure is returned.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.control != nil {
		return nil
	}
	opt := transport.WithLogger(s.logger)
	control, err := transport.ListenUDP(ctx, s.config.Host, s.config.ControlBasePort, s.config.ControlTries, opt)
	if err != nil {
		return fmt.Errorf("discovery: bind control socket: %w", err)
	}
	control.Serve(s.handleControl)
	s.control = control

	if probes, err := transport.ListenUDP(ctx, s.config.Host, s.config.ProbePort, 1, opt); err != nil {
		s.logger.Warn("probe listener unavailable", "port", s.config.ProbePort, "error", err)
	} else {
		probes.Serve(s.handleBroadcast)
		s.probes = probes
	}
	if texts, err := transport.ListenUDP(ctx, s.config.Host, s.config.TextPort, 1, opt); err != nil {
		s.logger.Warn("text listener unavailable", "port", s.config.TextPort, "error", err)
	} else {
		texts.Serve(s.handleBroadcast)
		s.texts = texts
	}

	s.logger.Info("discovery started",
		"control_port", control.Port(),
		"probe_listener", s.probes != nil,
		"text_listener", s.texts != nil)
	return nil
}

// ControlPort returns the bound control port, or 0 before Start.
func (s *Service) ControlPort() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.control == nil {
		return 0
	}
	return s.control.Port()
}

// SetIdentity replaces the local identity.
func (s *Service) SetIdentity(id Identity) {
	s.mu.Lock()
	s.id = id
	s.mu.Unlock()
}

// SetServerPort updates the announced TCP port.
func (s *Service) SetServerPort(port int) {
	s.mu.Lock()
	s.id.ServerPort = port
	s.mu.Unlock()
}

// Identity returns the local identity.
func (s *Service) Identity() Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id
}

// FindServer broadcasts a probe for the own channel up to ProbeAttempts
// times. It returns true as soon as a server on the channel answers, and
// false when every attempt went unanswered. Answers keep arriving through
// Events.ServerFound after it returns.
func (s *Service) FindServer(ctx context.Context) (bool, error) {
	s.mu.Lock()
	if s.control == nil {
		s.mu.Unlock()
		return false, ErrNotStarted
	}
	found := make(chan struct{})
	s.found = found
	probe := &protocol.ProbeServer{
		Channel: s.id.Channel,
		Addr:    s.id.LocalIP,
		Port:    s.control.Port(),
	}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if s.found == found {
			s.found = nil
		}
		s.mu.Unlock()
	}()

	target, err := s.broadcastAddr(s.config.ProbePort)
	if err != nil {
		return false, err
	}
	packet := protocol.Make(probe)

	for i := 0; i < s.config.ProbeAttempts; i++ {
		if err := s.send(target, packet); err != nil {
			return false, fmt.Errorf("discovery: send probe: %w", err)
		}
		s.logger.Debug("probe sent", "attempt", i+1, "channel", probe.Channel)

		timer := time.NewTimer(s.config.ProbeInterval)
		select {
		case <-found:
			timer.Stop()
			return true, nil
		case <-ctx.Done():
			timer.Stop()
			return false, ctx.Err()
		case <-timer.C:
		}
	}
	return false, nil
}

// SendText broadcasts a text message to the channel.
func (s *Service) SendText(channel, nickName, message string) error {
	target, err := s.broadcastAddr(s.config.TextPort)
	if err != nil {
		return err
	}
	id := s.Identity()
	return s.send(target, protocol.Make(&protocol.TextMessage{
		Channel:  channel,
		FromID:   id.UserID,
		NickName: nickName,
		Message:  message,
	}))
}

// Close closes every socket.
func (s *Service) Close() error {
	s.mu.Lock()
	conns := []*transport.UDPConn{s.control, s.probes, s.texts}
	s.control, s.probes, s.texts = nil, nil, nil
	s.mu.Unlock()

	var errs []error
	for _, c := range conns {
		if c != nil {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}

func (s *Service) send(to *net.UDPAddr, packets ...*protocol.Packet) error {
	s.mu.RLock()
	control := s.control
	s.mu.RUnlock()
	if control == nil {
		return ErrNotStarted
	}
	return control.SendTo(to, packets...)
}

func (s *Service) broadcastAddr(port int) (*net.UDPAddr, error) {
	return net.ResolveUDPAddr("udp4", net.JoinHostPort(s.config.BroadcastAddr, strconv.Itoa(port)))
}

// handleBroadcast serves the probe and text listeners.
func (s *Service) handleBroadcast(from *net.UDPAddr, p *protocol.Packet) {
	id := s.Identity()

	switch p.Code {
	case protocol.CodeProbeServer:
		m, err := protocol.DecodeProbeServer(p.Body)
		if err != nil {
			s.logger.Debug("bad probe", "from", from.String(), "error", err)
			return
		}
		if m.Channel != id.Channel || id.ServerPort == 0 {
			return
		}
		reply, err := s.replyAddr(from, m)
		if err != nil {
			s.logger.Debug("bad probe address", "addr", m.Addr, "error", err)
			return
		}
		info := &protocol.ServerInfo{Channel: id.Channel, Addr: id.LocalIP, Port: id.ServerPort}
		if err := s.send(reply, protocol.Make(info)); err != nil {
			s.logger.Warn("server info reply failed", "to", reply.String(), "error", err)
			return
		}
		if s.events.Probe != nil {
			s.events.Probe(m)
		}

	case protocol.CodeTextMessage:
		m, err := protocol.DecodeTextMessage(p.Body)
		if err != nil {
			s.logger.Debug("bad text message", "from", from.String(), "error", err)
			return
		}
		if m.Channel != id.Channel || m.FromID == id.UserID {
			return
		}
		if s.events.Text != nil {
			s.events.Text(m)
		}
	}
}

// replyAddr picks where to send ServerInfo: the advertised address when
// present, otherwise the datagram source.
func (s *Service) replyAddr(from *net.UDPAddr, m *protocol.ProbeServer) (*net.UDPAddr, error) {
	if m.Addr == "" {
		return &net.UDPAddr{IP: from.IP, Port: m.Port}, nil
	}
	return net.ResolveUDPAddr("udp4", net.JoinHostPort(m.Addr, strconv.Itoa(m.Port)))
}

// handleControl serves replies to our own probes.
func (s *Service) handleControl(from *net.UDPAddr, p *protocol.Packet) {
	if p.Code != protocol.CodeServerInfo {
		return
	}
	m, err := protocol.DecodeServerInfo(p.Body)
	if err != nil {
		s.logger.Debug("bad server info", "from", from.String(), "error", err)
		return
	}
	if m.Channel != s.Identity().Channel {
		return
	}
	if m.Addr == "" {
		m.Addr = from.IP.String()
	}
	s.serverFound(m)
}

func (s *Service) serverFound(m *protocol.ServerInfo) {
	s.mu.Lock()
	if s.found != nil {
		close(s.found)
		s.found = nil
	}
	s.mu.Unlock()

	s.logger.Info("server found", "channel", m.Channel, "addr", m.Addr, "port", m.Port)
	if s.events.ServerFound != nil {
		s.events.ServerFound(m)
	}
}
