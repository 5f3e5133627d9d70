package paintmgr

import (
	"context"
	stderrors "errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/kingctan/sharedpainter/internal/errors"
	"github.com/kingctan/sharedpainter/pkg/discovery"
	"github.com/kingctan/sharedpainter/pkg/paint"
	"github.com/kingctan/sharedpainter/pkg/protocol"
	"github.com/kingctan/sharedpainter/pkg/roster"
	"github.com/kingctan/sharedpainter/pkg/session"
	"github.com/kingctan/sharedpainter/pkg/tasklog"
	"github.com/kingctan/sharedpainter/pkg/transport"
	"github.com/kingctan/sharedpainter/pkg/uiloop"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// ErrClosed is returned by operations on a closed manager.
var ErrClosed = stderrors.New("paintmgr: manager closed")

const tracerName = "github.com/kingctan/sharedpainter/pkg/paintmgr"

// State is the join state of the local painter.
type State int32

const (
	StateInit State = iota
	StateJoinRequested
	StateJoined
	StateSyncing
	StateSteady
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateJoinRequested:
		return "join-requested"
	case StateJoined:
		return "joined"
	case StateSyncing:
		return "syncing"
	case StateSteady:
		return "steady"
	default:
		return "unknown"
	}
}

// Manager is the synchronization orchestrator of one painter.
type Manager struct {
	cfg      Config
	logger   *slog.Logger
	observer Observer
	poster   Poster
	loop     *uiloop.Loop
	metrics  *metrics
	tracer   trace.Tracer

	users    *roster.Directory
	log      *tasklog.Manager
	sessions *session.Registry
	disc     *discovery.Service

	relayHandler transport.Handler
	peerHandler  transport.Handler

	inbox     chan func()
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	closing   atomic.Bool
	state     atomic.Int32

	// mu guards the fields below
	mu       sync.Mutex
	canvas   canvasState
	local    map[*paint.Task]struct{}
	listener *transport.TCPListener
	stream   *transport.UDPConn
	advert   *discovery.Advertisement

	// Owned by the reactor goroutine
	relayAddr     string
	syncRequested bool
	syncPending   bool
	syncing       bool
	syncGen       uint64
	syncTimer     *time.Timer
	connecting    string
	reconnecting  bool
}

// New creates a manager and starts its reactor. obs may be nil.
func New(cfg Config, obs Observer) *Manager {
	cfg.applyDefaults()
	if cfg.UserID == "" {
		cfg.UserID = uuid.NewString()
	}
	if obs == nil {
		obs = BaseObserver{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		cfg:      cfg,
		logger:   cfg.Logger.With("component", "paintmgr", "user_id", cfg.UserID),
		observer: obs,
		poster:   cfg.Poster,
		tracer:   cfg.Tracer,
		inbox:    make(chan func(), DefaultInboxSize),
		done:     make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
		canvas:   newCanvasState(),
		local:    make(map[*paint.Task]struct{}),
	}
	if m.tracer == nil {
		m.tracer = otel.Tracer(tracerName)
	}
	if m.poster == nil {
		m.loop = uiloop.New(uiloop.WithLogger(m.logger))
		m.poster = m.loop
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			_ = m.loop.Run(ctx)
		}()
	}

	m.users = roster.New(
		roster.WithPoster(m.poster),
		roster.WithOnChange(func(n int) { m.observer.OnRosterChanged(n) }),
	)
	m.log = tasklog.New(
		tasklog.WithPoster(m.poster),
		tasklog.WithLogger(m.logger),
		tasklog.WithHooks(tasklog.Hooks{
			Executed:        m.taskExecuted,
			RolledBack:      m.taskRolledBack,
			TaskAdded:       func(n int, playback bool) { m.observer.OnTaskAdded(n, playback) },
			PositionChanged: func(pos, n int) { m.observer.OnPlayPositionChanged(pos, n) },
		}),
	)
	m.sessions = session.NewRegistry(session.Config{}, m.logger)
	m.metrics = newMetrics(cfg.Registerer, func() float64 { return float64(m.sessions.Len()) })
	m.relayHandler = sessionHandler{m: m, role: session.RoleRelay}
	m.peerHandler = sessionHandler{m: m, role: session.RolePeer}

	m.users.SetSelf(&paint.User{
		ID:       cfg.UserID,
		NickName: cfg.NickName,
		Channel:  cfg.Channel,
		LocalIP:  cfg.LocalIP,
	})

	if cfg.Discovery != nil {
		m.disc = discovery.New(*cfg.Discovery, discovery.Events{
			ServerFound: m.serverFound,
			Text:        m.textReceived,
		}, m.logger)
		m.disc.SetIdentity(discovery.Identity{
			UserID:  cfg.UserID,
			Channel: cfg.Channel,
			LocalIP: cfg.LocalIP,
		})
	}

	m.wg.Add(1)
	go m.reactor()
	return m
}

// reactor runs every packet handler, one at a time.
func (m *Manager) reactor() {
	defer m.wg.Done()
	for {
		select {
		case fn := <-m.inbox:
			fn()
		case <-m.done:
			return
		}
	}
}

// enqueue hands fn to the reactor. It blocks while the inbox is full and
// returns false once the manager is closed.
func (m *Manager) enqueue(fn func()) bool {
	select {
	case <-m.done:
		return false
	default:
	}
	select {
	case m.inbox <- fn:
		return true
	case <-m.done:
		return false
	}
}

// do runs fn on the reactor and waits for it. It must not be called from
// the reactor.
func (m *Manager) do(ctx context.Context, fn func()) error {
	ran := make(chan struct{})
	if !m.enqueue(func() { fn(); close(ran) }) {
		return ErrClosed
	}
	select {
	case <-ran:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-m.done:
		return ErrClosed
	}
}

// call runs fn on the reactor and returns its error.
func (m *Manager) call(fn func() error) error {
	var err error
	if derr := m.do(context.Background(), func() { err = fn() }); derr != nil {
		return derr
	}
	return err
}

// post delivers an observer notification on the presentation context.
func (m *Manager) post(fn func()) {
	m.poster.Post(fn)
}

func (m *Manager) reportError(err error) {
	m.logger.Warn("error", "error", err)
	m.post(func() { m.observer.OnError(err) })
}

// sessionHandler routes transport events for one session role.
type sessionHandler struct {
	m    *Manager
	role session.Role
}

func (h sessionHandler) HandleConnect(s transport.Session) {
	m := h.m
	if h.role == session.RoleRelay {
		old, err := m.sessions.SetRelay(s)
		if err != nil {
			_ = s.Close()
			return
		}
		if old != nil {
			_ = old.Close()
		}
	} else if err := m.sessions.Register(s); err != nil {
		m.logger.Warn("session rejected", "remote", s.RemoteAddr(), "error", err)
		_ = s.Close()
		return
	}
	m.post(func() { m.observer.OnConnected(h.role, s.RemoteAddr()) })
}

func (h sessionHandler) HandlePacket(s transport.Session, p *protocol.Packet) {
	h.m.enqueue(func() { h.m.dispatch(s, p) })
}

func (h sessionHandler) HandleClose(s transport.Session, err error) {
	h.m.enqueue(func() { h.m.sessionClosed(s, err) })
}

// State returns the join state.
func (m *Manager) State() State {
	return State(m.state.Load())
}

func (m *Manager) setState(s State) {
	if prev := State(m.state.Swap(int32(s))); prev != s {
		m.logger.Debug("state", "from", prev.String(), "to", s.String())
	}
}

// claimJoin moves Init to JoinRequested. It fails when a join is
// already under way.
func (m *Manager) claimJoin() bool {
	if !m.state.CompareAndSwap(int32(StateInit), int32(StateJoinRequested)) {
		return false
	}
	m.logger.Debug("state", "from", StateInit.String(), "to", StateJoinRequested.String())
	return true
}

// SelfID returns the local user id.
func (m *Manager) SelfID() string {
	return m.cfg.UserID
}

// Users returns the roster.
func (m *Manager) Users() *roster.Directory {
	return m.users
}

// Log returns the operation log.
func (m *Manager) Log() *tasklog.Manager {
	return m.log
}

// Sessions returns the session registry.
func (m *Manager) Sessions() *session.Registry {
	return m.sessions
}

// Join dials the relay at addr and asks to enter channel. The roster
// arrives asynchronously in RES_JOIN. An empty channel keeps the current
// one.
func (m *Manager) Join(ctx context.Context, addr, channel string) error {
	if err := m.do(ctx, func() {
		m.resetJoin()
		m.relayAddr = addr
		if channel != "" {
			m.setChannel(channel)
		}
		m.setState(StateJoinRequested)
	}); err != nil {
		return err
	}

	s, err := m.cfg.DialRelay(ctx, addr, m.relayHandler)
	if err != nil {
		m.setState(StateInit)
		e := errors.New("E203").WithDetailf("relay %s", addr).Wrap(err)
		m.reportError(e)
		return e
	}
	m.logger.Info("relay connected", "addr", addr, "channel", m.channel())
	return m.sendJoin(s)
}

func (m *Manager) sendJoin(s transport.Session) error {
	return s.Send(
		protocol.Make(protocol.NewVersionInfo(m.cfg.AppVersion)),
		protocol.MakeFrom(m.SelfID(), &protocol.JoinToServer{User: m.wireSelf()}),
	)
}

// ConnectToPeer dials another painter's server directly and joins
// through it.
func (m *Manager) ConnectToPeer(ctx context.Context, addr string) error {
	if err := m.do(ctx, func() {
		m.resetJoin()
		m.setState(StateJoinRequested)
	}); err != nil {
		return err
	}

	s, err := m.cfg.DialPeer(ctx, addr, m.peerHandler)
	if err != nil {
		m.setState(StateInit)
		e := errors.New("E203").WithDetailf("peer %s", addr).Wrap(err)
		m.reportError(e)
		return e
	}
	m.logger.Info("peer connected", "addr", addr)
	return m.sendJoinToSuperPeer(s)
}

func (m *Manager) sendJoinToSuperPeer(s transport.Session) error {
	return s.Send(
		protocol.Make(protocol.NewVersionInfo(m.cfg.AppVersion)),
		protocol.MakeFrom(m.SelfID(), &protocol.JoinToSuperPeer{User: m.wireSelf()}),
	)
}

// StartServer listens for peers, probing upward from port (or the
// configured port when port <= 0). It returns the bound port. A server
// with no relay and no known super-peer makes the local painter the
// super-peer.
func (m *Manager) StartServer(ctx context.Context, port int) (int, error) {
	m.mu.Lock()
	if m.listener != nil {
		p := m.listener.Port()
		m.mu.Unlock()
		return p, nil
	}
	if port <= 0 {
		port = m.cfg.ServerPort
	}
	if port <= 0 {
		port = DefaultServerPort
	}
	ln, err := transport.ListenTCP(ctx, m.cfg.ServerHost, port, m.cfg.ServerPortTries, m.peerHandler, m.cfg.TransportOptions...)
	if err != nil {
		m.mu.Unlock()
		return 0, errors.New("E203").WithDetailf("listen from port %d", port).Wrap(err)
	}
	m.listener = ln
	m.mu.Unlock()

	bound := ln.Port()
	m.users.Update(m.SelfID(), func(u *paint.User) { u.ListenTCPPort = bound })
	if m.disc != nil {
		m.disc.SetServerPort(bound)
	}
	m.logger.Info("server started", "port", bound)

	err = m.do(ctx, func() {
		if _, ok := m.sessions.Relay(); !ok && m.users.SuperPeerID() == "" {
			m.setSuperPeer(m.SelfID())
		}
	})
	return bound, err
}

// ServerPort returns the listening port, or 0 when no server runs.
func (m *Manager) ServerPort() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listener == nil {
		return 0
	}
	return m.listener.Port()
}

// StartDiscovery binds the LAN discovery sockets. It fails when the
// manager was configured without discovery.
func (m *Manager) StartDiscovery(ctx context.Context) error {
	if m.disc == nil {
		return errors.Newf(errors.CategoryNetwork, "discovery not configured")
	}
	if err := m.disc.Start(ctx); err != nil {
		return err
	}
	m.users.Update(m.SelfID(), func(u *paint.User) { u.ListenUDPPort = m.disc.ControlPort() })
	return nil
}

// FindServer broadcasts probes for a server on the channel.
func (m *Manager) FindServer(ctx context.Context) (bool, error) {
	if m.disc == nil {
		return false, errors.Newf(errors.CategoryNetwork, "discovery not configured")
	}
	return m.disc.FindServer(ctx)
}

// Browse looks up servers advertised on mDNS until ctx is done. Found
// servers are handled like broadcast replies.
func (m *Manager) Browse(ctx context.Context) error {
	if m.disc == nil {
		return errors.Newf(errors.CategoryNetwork, "discovery not configured")
	}
	return m.disc.Browse(ctx)
}

// Advertise registers the running server on mDNS.
func (m *Manager) Advertise() error {
	if m.disc == nil {
		return errors.Newf(errors.CategoryNetwork, "discovery not configured")
	}
	a, err := m.disc.Advertise()
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.advert = a
	m.mu.Unlock()
	return nil
}

func (m *Manager) serverFound(info *protocol.ServerInfo) {
	m.post(func() { m.observer.OnServerFound(info) })
	if !m.cfg.AutoConnect || !m.claimJoin() {
		return
	}
	addr := joinHostPort(info.Addr, info.Port)
	go func() {
		if err := m.ConnectToPeer(m.ctx, addr); err != nil {
			m.logger.Warn("auto connect failed", "addr", addr, "error", err)
		}
	}()
}

func (m *Manager) textReceived(t *protocol.TextMessage) {
	m.post(func() { m.observer.OnBroadcastText(t.Channel, t.FromID, t.NickName, t.Message) })
}

// Close closes every session and socket and stops the reactor. Pending
// notifications are delivered before the presentation loop stops.
func (m *Manager) Close() error {
	m.closeOnce.Do(func() {
		m.closing.Store(true)
		m.cancel()

		m.mu.Lock()
		ln, stream, advert := m.listener, m.stream, m.advert
		m.listener, m.stream, m.advert = nil, nil, nil
		m.mu.Unlock()
		if ln != nil {
			_ = ln.Close()
		}
		if stream != nil {
			_ = stream.Close()
		}
		advert.Shutdown()
		if m.disc != nil {
			_ = m.disc.Close()
		}
		m.sessions.CloseAll(true)

		close(m.done)
		if m.loop != nil {
			m.loop.Close()
		}
		m.wg.Wait()
		if m.syncTimer != nil {
			m.syncTimer.Stop()
		}
		m.logger.Info("manager closed")
	})
	return nil
}

// wireSelf returns the local user as sent to others.
func (m *Manager) wireSelf() *paint.User {
	u := m.users.Self()
	u.SessionID = ""
	return u
}

func (m *Manager) channel() string {
	if u := m.users.Self(); u != nil {
		return u.Channel
	}
	return m.cfg.Channel
}

func (m *Manager) setChannel(ch string) {
	m.users.Update(m.SelfID(), func(u *paint.User) { u.Channel = ch })
	if m.disc != nil {
		id := m.disc.Identity()
		id.Channel = ch
		m.disc.SetIdentity(id)
	}
}

// resetJoin forgets a previous join attempt. Runs on the reactor.
func (m *Manager) resetJoin() {
	m.stopWatchdog()
	m.syncRequested = false
	m.syncPending = false
	m.syncing = false
}

// setSuperPeer records the super-peer in the roster and the registry.
func (m *Manager) setSuperPeer(id string) {
	m.users.SetSuperPeer(id)
	m.sessions.SetSuperPeer(id)
	m.logger.Info("super-peer", "id", id, "self", id == m.SelfID())
}
