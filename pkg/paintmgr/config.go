package paintmgr

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/kingctan/sharedpainter/pkg/discovery"
	"github.com/kingctan/sharedpainter/pkg/transport"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
)

// Defaults.
const (
	DefaultSyncTimeout     = 5 * time.Second
	DefaultServerPort      = 4001
	DefaultServerPortTries = 100
	DefaultStreamPort      = 6000
	DefaultInboxSize       = 1024
)

// DialFunc opens a session to addr reporting events to h. It must call
// h.HandleConnect before any packet is delivered, as the transports do.
type DialFunc func(ctx context.Context, addr string, h transport.Handler) (transport.Session, error)

// Config configures a Manager. There are no package-level settings.
type Config struct {
	// AppVersion is reported in VERSION_INFO.
	AppVersion string

	// Identity of the local painter. UserID is generated when empty.
	UserID   string
	NickName string
	Channel  string
	LocalIP  string

	// ServerHost, ServerPort and ServerPortTries control StartServer.
	ServerHost      string
	ServerPort      int
	ServerPortTries int

	// StreamHost and StreamPort control the UDP stream socket bound when
	// accepting a screen stream.
	StreamHost string
	StreamPort int

	// SyncTimeout bounds the wait for SYNC_START after SYNC_REQUEST.
	SyncTimeout time.Duration

	// AlwaysP2P adds users announced by JOIN_TO_SUPERPEER to the roster
	// even when a relay is connected.
	AlwaysP2P bool

	// AutoConnect connects to the first server found on the channel.
	AutoConnect bool

	// Reconnect re-dials a dropped relay with exponential backoff.
	// MaxReconnect bounds the total time spent; zero means no bound.
	Reconnect    bool
	MaxReconnect time.Duration

	// Debug makes invariant violations panic instead of logging.
	Debug bool

	// DialRelay opens the relay session. The default dials ws:// and
	// wss:// URLs over WebSocket and anything else over TCP.
	DialRelay DialFunc

	// DialPeer opens peer sessions. The default dials TCP.
	DialPeer DialFunc

	// Discovery, when set, creates a LAN discovery service wired to the
	// manager: server infos and text broadcasts on the channel reach the
	// observer, and StartServer announces the server port.
	Discovery *discovery.Config

	// Poster receives observer notifications. When nil the manager runs
	// its own presentation loop.
	Poster Poster

	// Registerer receives the manager metrics. When nil a private
	// registry is used.
	Registerer prometheus.Registerer

	// Tracer traces sync serving and state import.
	Tracer trace.Tracer

	// TransportOptions are passed to the default dialers and the server.
	TransportOptions []transport.Option

	Logger *slog.Logger
}

func (c *Config) applyDefaults() {
	if c.SyncTimeout <= 0 {
		c.SyncTimeout = DefaultSyncTimeout
	}
	if c.ServerHost == "" {
		c.ServerHost = "0.0.0.0"
	}
	if c.ServerPortTries <= 0 {
		c.ServerPortTries = DefaultServerPortTries
	}
	if c.StreamHost == "" {
		c.StreamHost = "0.0.0.0"
	}
	if c.StreamPort == 0 {
		c.StreamPort = DefaultStreamPort
	}
	if c.AppVersion == "" {
		c.AppVersion = "dev"
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.DialRelay == nil {
		opts := c.TransportOptions
		c.DialRelay = func(ctx context.Context, addr string, h transport.Handler) (transport.Session, error) {
			if strings.HasPrefix(addr, "ws://") || strings.HasPrefix(addr, "wss://") {
				return transport.DialWebSocket(ctx, addr, h, opts...)
			}
			return transport.DialTCP(ctx, addr, h, opts...)
		}
	}
	if c.DialPeer == nil {
		opts := c.TransportOptions
		c.DialPeer = func(ctx context.Context, addr string, h transport.Handler) (transport.Session, error) {
			return transport.DialTCP(ctx, addr, h, opts...)
		}
	}
}
