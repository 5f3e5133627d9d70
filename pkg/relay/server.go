package relay

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kingctan/sharedpainter/pkg/middleware"
	"github.com/kingctan/sharedpainter/pkg/protocol"
	"github.com/kingctan/sharedpainter/pkg/transport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Default relay settings.
const (
	DefaultAddr            = ":8080"
	DefaultKeepAlive       = 30 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
)

// Config configures a relay Server.
type Config struct {
	// Addr is the HTTP listen address serving /ws, /metrics, /healthz
	// and /channels.
	Addr string

	// TCPHost and TCPPort configure the plain TCP listener. A zero port
	// disables it.
	TCPHost string
	TCPPort int

	// AllowedOrigins lists accepted WebSocket origins. Empty allows all.
	AllowedOrigins []string

	// MaxMembers bounds the members of one channel. Zero means no limit.
	MaxMembers int

	// KeepAlive is the TCPSYN interval. Negative disables it.
	KeepAlive time.Duration

	ShutdownTimeout time.Duration

	// AppVersion is reported in VERSION_INFO.
	AppVersion string

	// Registry receives the relay and HTTP metrics and backs /metrics.
	// When nil a private registry is used.
	Registry *prometheus.Registry

	TransportOptions []transport.Option

	Logger *slog.Logger
}

func (c *Config) applyDefaults() {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.TCPHost == "" {
		c.TCPHost = "0.0.0.0"
	}
	if c.KeepAlive == 0 {
		c.KeepAlive = DefaultKeepAlive
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.AppVersion == "" {
		c.AppVersion = "dev"
	}
	if c.Registry == nil {
		c.Registry = prometheus.NewRegistry()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Server is the relay. It implements transport.Handler for the sessions
// it accepts.
type Server struct {
	config   Config
	logger   *slog.Logger
	metrics  *metrics
	upgrader *transport.Upgrader
	router   chi.Router

	mu       sync.Mutex
	members  map[string]*member // by session id
	channels map[string]*channel
	closed   bool

	httpServer *http.Server
	tcp        *transport.TCPListener
	wg         sync.WaitGroup
}

// New creates a relay server.
func New(config Config) *Server {
	config.applyDefaults()
	s := &Server{
		config:   config,
		logger:   config.Logger.With("component", "relay"),
		members:  make(map[string]*member),
		channels: make(map[string]*channel),
	}
	s.metrics = newMetrics(config.Registry, s.memberCount, s.channelCount)
	s.upgrader = transport.NewUpgrader(s, s.checkOrigin(), config.TransportOptions...)
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(
		middleware.Logger(s.logger),
		middleware.Prometheus(middleware.WithRegistry(s.config.Registry)),
		middleware.OpenTelemetry(middleware.WithRequestFilter(func(r *http.Request) bool {
			return r.URL.Path != "/metrics" && r.URL.Path != "/healthz"
		})),
	)
	r.Get("/ws", s.upgrader.ServeHTTP)
	r.Get("/healthz", s.handleHealthz)
	r.Get("/channels", s.handleChannels)
	r.Handle("/metrics", promhttp.HandlerFor(s.config.Registry, promhttp.HandlerOpts{}))
	return r
}

func (s *Server) checkOrigin() func(r *http.Request) bool {
	if len(s.config.AllowedOrigins) == 0 {
		return nil
	}
	allowed := make(map[string]bool, len(s.config.AllowedOrigins))
	for _, o := range s.config.AllowedOrigins {
		allowed[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		// native painters send no origin
		return origin == "" || allowed[origin]
	}
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down.
func (s *Server) Run(ctx context.Context) error {
	if s.config.TCPPort > 0 {
		ln, err := transport.ListenTCP(ctx, s.config.TCPHost, s.config.TCPPort, 1, s, s.config.TransportOptions...)
		if err != nil {
			return err
		}
		s.tcp = ln
		s.logger.Info("tcp listener started", "port", ln.Port())
	}

	s.httpServer = &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	keepAliveCtx, stopKeepAlive := context.WithCancel(ctx)
	defer stopKeepAlive()
	if s.config.KeepAlive > 0 {
		s.wg.Add(1)
		go s.keepAlive(keepAliveCtx)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("relay starting", "address", s.config.Addr)
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		stopKeepAlive()
		_ = s.Shutdown(context.Background())
		if !stderrors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil

	case <-ctx.Done():
		s.logger.Info("shutting down...")
		stopKeepAlive()
		return s.Shutdown(context.Background())
	}
}

// Shutdown stops the listeners and closes every member session.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	if s.tcp != nil {
		_ = s.tcp.Close()
	}

	s.mu.Lock()
	s.closed = true
	sessions := make([]transport.Session, 0, len(s.members))
	for _, m := range s.members {
		sessions = append(sessions, m.session)
	}
	s.members = make(map[string]*member)
	s.channels = make(map[string]*channel)
	s.mu.Unlock()
	for _, sess := range sessions {
		_ = sess.Close()
	}

	var err error
	if s.httpServer != nil {
		if err = s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
		}
	}
	s.wg.Wait()
	s.logger.Info("relay shutdown complete", "sessions", len(sessions))
	return err
}

func (s *Server) keepAlive(ctx context.Context) {
	defer s.wg.Done()
	t := time.NewTicker(s.config.KeepAlive)
	defer t.Stop()
	syn := protocol.Make(&protocol.TCPSyn{})
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.mu.Lock()
			for _, m := range s.members {
				if m.channel != "" {
					m.send(syn)
				}
			}
			s.mu.Unlock()
		}
	}
}

// HandleConnect implements transport.Handler.
func (s *Server) HandleConnect(sess transport.Session) {
	s.mu.Lock()
	closed := s.closed
	if !closed {
		s.members[sess.ID()] = &member{session: sess}
	}
	s.mu.Unlock()
	if closed {
		_ = sess.Close()
		return
	}
	s.logger.Debug("session connected", "session_id", sess.ID(), "remote", sess.RemoteAddr())
}

// HandlePacket implements transport.Handler.
func (s *Server) HandlePacket(sess transport.Session, p *protocol.Packet) {
	s.mu.Lock()
	m, ok := s.members[sess.ID()]
	var drop []transport.Session
	if ok {
		drop = s.dispatchLocked(m, p)
	}
	s.mu.Unlock()
	for _, d := range drop {
		_ = d.Close()
	}
}

// HandleClose implements transport.Handler.
func (s *Server) HandleClose(sess transport.Session, err error) {
	s.mu.Lock()
	if m, ok := s.members[sess.ID()]; ok {
		s.leaveLocked(m)
	}
	s.mu.Unlock()
	s.logger.Debug("session closed", "session_id", sess.ID(), "error", err)
}

// dispatchLocked handles one packet and returns sessions to close once
// the lock is released.
func (s *Server) dispatchLocked(m *member, p *protocol.Packet) []transport.Session {
	if m.syncTarget != "" {
		s.forwardSyncLocked(m, p)
		return nil
	}

	switch p.Code {
	case protocol.CodeVersionInfo:
		if _, err := protocol.CheckVersion(p); err != nil {
			m.send(protocol.Make(protocol.NewVersionInfo(s.config.AppVersion)))
			return s.rejectLocked(m, "version", err)
		}
		m.versionOK = true
		return nil

	case protocol.CodeJoinToServer:
		msg, err := protocol.DecodeJoinToServer(p.Body)
		if err != nil {
			return s.rejectLocked(m, "malformed_join", err)
		}
		return s.joinLocked(m, msg)

	case protocol.CodeTCPAck:
		m.lastAck = time.Now()
		return nil
	}

	if m.channel == "" {
		s.dropLocked(p, "not_joined")
		return nil
	}
	c := s.channels[m.channel]

	switch p.Code {
	case protocol.CodeSyncRequest:
		s.routeSyncRequestLocked(c, m, p)

	case protocol.CodeSyncStart:
		msg, err := protocol.DecodeSyncStart(p.Body)
		if err != nil {
			s.dropLocked(p, "malformed")
			return nil
		}
		m.syncTarget = msg.TargetID
		s.forwardSyncLocked(m, p)

	case protocol.CodeChangeNickName:
		if msg, err := protocol.DecodeChangeNickName(p.Body); err == nil && msg.UserID == m.id() {
			m.user.NickName = msg.NickName
		}
		s.forwardLocked(c, m, p)

	case protocol.CodeJoinToSuperPeer,
		protocol.CodeResJoin,
		protocol.CodeChangeSuperPeer,
		protocol.CodeLeft,
		protocol.CodeSyncComplete,
		protocol.CodeTCPSyn:
		s.dropLocked(p, "unexpected")

	default:
		if !p.Code.Broadcastable() {
			s.dropLocked(p, "not_broadcastable")
			return nil
		}
		s.forwardLocked(c, m, p)
	}
	return nil
}

func (s *Server) forwardLocked(c *channel, from *member, p *protocol.Packet) {
	if n := c.broadcast(from, p); n > 0 {
		s.metrics.packets.WithLabelValues(p.Code.String()).Add(float64(n))
	}
}

func (s *Server) dropLocked(p *protocol.Packet, reason string) {
	s.metrics.dropped.WithLabelValues(p.Code.String(), reason).Inc()
	s.logger.Debug("packet dropped", "code", p.Code.String(), "from", p.FromID, "reason", reason)
}

// rejectLocked forgets m; the caller closes the returned session.
func (s *Server) rejectLocked(m *member, reason string, err error) []transport.Session {
	s.metrics.rejected.WithLabelValues(reason).Inc()
	s.logger.Warn("session rejected",
		"session_id", m.session.ID(),
		"remote", m.session.RemoteAddr(),
		"reason", reason,
		"error", err)
	s.leaveLocked(m)
	return []transport.Session{m.session}
}

func (s *Server) joinLocked(m *member, msg *protocol.JoinToServer) []transport.Session {
	if m.channel != "" {
		s.logger.Warn("second JOIN_TO_SERVER ignored", "user_id", m.id())
		return nil
	}
	if !m.versionOK {
		return s.rejectLocked(m, "no_version", protocol.ErrNoVersionInfo)
	}
	u := msg.User.Clone()
	if u.ID == "" || u.Channel == "" {
		return s.rejectLocked(m, "no_channel", nil)
	}
	u.ViewIP = hostOf(m.session.RemoteAddr())
	u.SessionID = ""
	u.Self = false

	c, ok := s.channels[u.Channel]
	if !ok {
		c = &channel{name: u.Channel}
		s.channels[u.Channel] = c
	}

	// A painter rejoining after a reconnect replaces its stale session.
	var stale []transport.Session
	if old := c.find(u.ID); old != nil {
		c.remove(old)
		delete(s.members, old.session.ID())
		stale = append(stale, old.session)
		if c.superPeer == u.ID {
			c.superPeer = ""
		}
	}

	if s.config.MaxMembers > 0 && len(c.members) >= s.config.MaxMembers {
		if len(c.members) == 0 {
			delete(s.channels, c.name)
		}
		return append(stale, s.rejectLocked(m, "channel_full", nil)...)
	}

	first := len(c.members) == 0
	m.user = u
	m.channel = c.name
	m.joinedAt = time.Now()
	c.members = append(c.members, m)

	// Only the first member is elected on join: a later joiner would
	// skip the sync it needs if it became super-peer straight away.
	announce := false
	if c.superPeer == "" {
		if first {
			c.superPeer = c.elect(nil)
		} else if id := c.elect(m); id != "" {
			c.superPeer = id
			announce = true
		}
	}

	m.send(
		protocol.Make(protocol.NewVersionInfo(s.config.AppVersion)),
		protocol.Make(&protocol.ResJoin{
			Channel:     c.name,
			FirstUser:   first,
			Users:       c.users(),
			SuperPeerID: c.superPeer,
		}),
	)
	c.broadcast(m, protocol.MakeFrom(u.ID, &protocol.JoinToServer{User: u}))
	if announce {
		s.metrics.elections.Inc()
		c.broadcast(m, protocol.Make(&protocol.ChangeSuperPeer{UserID: c.superPeer}))
	}

	s.metrics.joins.Inc()
	s.logger.Info("member joined",
		"channel", c.name,
		"user_id", u.ID,
		"nick", u.NickName,
		"first", first,
		"members", len(c.members),
		"super_peer", c.superPeer)
	return stale
}

// leaveLocked forgets m and tells the rest of its channel.
func (s *Server) leaveLocked(m *member) {
	delete(s.members, m.session.ID())
	if m.channel == "" {
		return
	}
	c, ok := s.channels[m.channel]
	if !ok {
		return
	}
	c.remove(m)
	m.channel = ""
	if len(c.members) == 0 {
		delete(s.channels, c.name)
		s.logger.Info("channel closed", "channel", c.name)
		return
	}

	uid := m.id()
	c.broadcast(nil, protocol.Make(&protocol.Left{Channel: c.name, UserID: uid}))
	if c.superPeer == uid {
		c.superPeer = c.elect(nil)
		if c.superPeer != "" {
			s.metrics.elections.Inc()
			c.broadcast(nil, protocol.Make(&protocol.ChangeSuperPeer{UserID: c.superPeer}))
		}
	}
	s.logger.Info("member left",
		"channel", c.name,
		"user_id", uid,
		"members", len(c.members),
		"super_peer", c.superPeer)
}

func (s *Server) routeSyncRequestLocked(c *channel, m *member, p *protocol.Packet) {
	msg, err := protocol.DecodeSyncRequest(p.Body)
	if err != nil {
		s.dropLocked(p, "malformed")
		return
	}
	src := c.syncSource(msg.TargetID)
	if src == nil {
		s.metrics.syncRoutes.WithLabelValues("none").Inc()
		s.dropLocked(p, "no_source")
		return
	}
	route := "member"
	if src.id() == c.superPeer {
		route = "super_peer"
	}
	if src.send(p) {
		s.metrics.syncRoutes.WithLabelValues(route).Inc()
		s.metrics.packets.WithLabelValues(p.Code.String()).Inc()
	}
}

// forwardSyncLocked sends a packet of m's sync package to its target.
func (s *Server) forwardSyncLocked(m *member, p *protocol.Packet) {
	target := m.syncTarget
	if p.Code == protocol.CodeSyncComplete {
		m.syncTarget = ""
	}
	c, ok := s.channels[m.channel]
	if !ok {
		return
	}
	t := c.find(target)
	if t == nil {
		s.dropLocked(p, "sync_target_gone")
		return
	}
	if t.send(p) {
		s.metrics.packets.WithLabelValues(p.Code.String()).Inc()
	}
}

func (s *Server) memberCount() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.channels {
		n += len(c.members)
	}
	return float64(n)
}

func (s *Server) channelCount() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return float64(len(s.channels))
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

// ChannelInfo describes a channel in the /channels listing.
type ChannelInfo struct {
	Name      string   `json:"name"`
	Members   []string `json:"members"`
	SuperPeer string   `json:"superPeer,omitempty"`
}

// Channels returns the current channels ordered by name.
func (s *Server) Channels() []ChannelInfo {
	s.mu.Lock()
	out := make([]ChannelInfo, 0, len(s.channels))
	for _, c := range s.channels {
		info := ChannelInfo{Name: c.name, SuperPeer: c.superPeer}
		for _, m := range c.members {
			info.Members = append(info.Members, m.id())
		}
		out = append(out, info)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Server) handleChannels(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.Channels()); err != nil {
		s.logger.Warn("encode channels", "error", err)
	}
}

func hostOf(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
