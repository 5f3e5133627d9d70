// Package transport carries protocol packets over TCP, WebSocket and UDP.
//
// Every connection is a Session with its own read goroutine and a queued
// writer, so Send never blocks on the network. Inbound packets and
// lifecycle events are delivered to a Handler from the read goroutine.
package transport

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/kingctan/sharedpainter/pkg/protocol"
)

// Kind identifies the transport behind a session.
type Kind uint8

const (
	KindTCP Kind = iota + 1
	KindWebSocket
	KindUDP
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindTCP:
		return "tcp"
	case KindWebSocket:
		return "websocket"
	case KindUDP:
		return "udp"
	default:
		return "unknown"
	}
}

// Transport errors.
var (
	ErrClosed        = errors.New("transport: session closed")
	ErrSendQueueFull = errors.New("transport: send queue full")
	ErrNoPort        = errors.New("transport: no free port in range")
)

// Session is one connection to a remote endpoint.
type Session interface {
	// ID is unique for the life of the process.
	ID() string
	Kind() Kind
	RemoteAddr() string

	// Send queues packets to be written back to back in one write.
	Send(packets ...*protocol.Packet) error

	// Close closes the connection. It is safe to call more than once.
	Close() error
}

// Handler receives session events. HandlePacket is called from the
// session's read goroutine; HandleClose may come from any goroutine that
// observed the failure. Methods must not block.
type Handler interface {
	HandleConnect(s Session)
	HandlePacket(s Session, p *protocol.Packet)
	HandleClose(s Session, err error)
}

// HandlerFuncs adapts plain functions to Handler. Nil fields are ignored.
type HandlerFuncs struct {
	Connect func(s Session)
	Packet  func(s Session, p *protocol.Packet)
	Closed  func(s Session, err error)
}

func (h HandlerFuncs) HandleConnect(s Session) {
	if h.Connect != nil {
		h.Connect(s)
	}
}

func (h HandlerFuncs) HandlePacket(s Session, p *protocol.Packet) {
	if h.Packet != nil {
		h.Packet(s, p)
	}
}

func (h HandlerFuncs) HandleClose(s Session, err error) {
	if h.Closed != nil {
		h.Closed(s, err)
	}
}

// Default session settings.
const (
	DefaultSendQueue    = 256
	DefaultWriteTimeout = 10 * time.Second
	DefaultPingInterval = 30 * time.Second
)

type options struct {
	sendQueue    int
	writeTimeout time.Duration
	readTimeout  time.Duration
	pingInterval time.Duration
	header       http.Header
	logger       *slog.Logger
}

func defaultOptions() options {
	return options{
		sendQueue:    DefaultSendQueue,
		writeTimeout: DefaultWriteTimeout,
		pingInterval: DefaultPingInterval,
		logger:       slog.Default(),
	}
}

func buildOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Option configures sessions and listeners.
type Option func(*options)

// WithSendQueue sets the number of queued writes per session.
func WithSendQueue(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.sendQueue = n
		}
	}
}

// WithWriteTimeout sets the per-write deadline.
func WithWriteTimeout(d time.Duration) Option {
	return func(o *options) { o.writeTimeout = d }
}

// WithReadTimeout closes sessions that stay silent for d. Zero disables it.
func WithReadTimeout(d time.Duration) Option {
	return func(o *options) { o.readTimeout = d }
}

// WithPingInterval sets the WebSocket keep-alive interval.
func WithPingInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.pingInterval = d
		}
	}
}

// WithHeader sets extra headers for WebSocket dials.
func WithHeader(h http.Header) Option {
	return func(o *options) { o.header = h }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}
