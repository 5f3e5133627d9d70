package session

import (
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/kingctan/sharedpainter/pkg/transport"
)

// Error types for session bookkeeping.
var (
	// ErrSessionNotFound is returned when a session id is unknown.
	ErrSessionNotFound = errors.New("session: not found")

	// ErrMaxSessionsReached is returned when the peer limit is reached.
	ErrMaxSessionsReached = errors.New("session: maximum session limit reached")

	// ErrRegistryClosed is returned after CloseAll.
	ErrRegistryClosed = errors.New("session: registry is closed")
)

// Role describes what a session is used for.
type Role int

const (
	// RolePeer is a direct connection to another painter.
	RolePeer Role = iota

	// RoleRelay is the connection to the relay server.
	RoleRelay
)

// String returns the string representation of the role.
func (r Role) String() string {
	if r == RoleRelay {
		return "relay"
	}
	return "peer"
}

// Entry is one registered session.
type Entry struct {
	Session     transport.Session
	Role        Role
	UserID      string
	ConnectedAt time.Time
}

// Config configures the registry.
type Config struct {
	// MaxPeers bounds the number of peer sessions. Zero means no limit.
	MaxPeers int
}

// Registry tracks live sessions. It is safe for concurrent use.
type Registry struct {
	mu sync.RWMutex

	// All sessions by session ID
	entries map[string]*Entry

	// Attached peer sessions by user ID
	byUser map[string]string

	relayID     string
	superPeerID string

	// UDP stream sessions by remote user ID
	streams map[string]transport.Session

	config Config
	logger *slog.Logger
	closed bool
}

// NewRegistry creates an empty registry.
func NewRegistry(config Config, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		entries: make(map[string]*Entry),
		byUser:  make(map[string]string),
		streams: make(map[string]transport.Session),
		config:  config,
		logger:  logger.With("component", "session_registry"),
	}
}

// Register adds a peer session whose user is not known yet.
func (r *Registry) Register(s transport.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRegistryClosed
	}
	if r.config.MaxPeers > 0 && r.peerCountLocked() >= r.config.MaxPeers {
		return ErrMaxSessionsReached
	}
	r.entries[s.ID()] = &Entry{Session: s, Role: RolePeer, ConnectedAt: time.Now()}

	r.logger.Debug("session registered",
		"session_id", s.ID(),
		"kind", s.Kind().String(),
		"remote", s.RemoteAddr())
	return nil
}

// SetRelay registers s as the relay session, replacing any previous one.
// The replaced session is returned so the caller can close it.
func (r *Registry) SetRelay(s transport.Session) (transport.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrRegistryClosed
	}
	var old transport.Session
	if e, ok := r.entries[r.relayID]; ok && r.relayID != s.ID() {
		old = e.Session
		delete(r.entries, r.relayID)
	}
	r.entries[s.ID()] = &Entry{Session: s, Role: RoleRelay, ConnectedAt: time.Now()}
	r.relayID = s.ID()
	r.logger.Debug("relay session set", "session_id", s.ID(), "remote", s.RemoteAddr())
	return old, nil
}

// Relay returns the relay session.
func (r *Registry) Relay() (transport.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.entries[r.relayID]; ok {
		return e.Session, true
	}
	return nil, false
}

// Attach binds a peer session to a user. A previous session of the same
// user is detached and returned.
func (r *Registry) Attach(sessionID, userID string) (transport.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[sessionID]
	if !ok || e.Role != RolePeer {
		return nil, ErrSessionNotFound
	}
	var old transport.Session
	if prevID, ok := r.byUser[userID]; ok && prevID != sessionID {
		if prev, ok := r.entries[prevID]; ok {
			old = prev.Session
			delete(r.entries, prevID)
		}
	}
	if e.UserID != "" && e.UserID != userID {
		delete(r.byUser, e.UserID)
	}
	e.UserID = userID
	r.byUser[userID] = sessionID
	return old, nil
}

// Get returns a copy of the entry for a session id.
func (r *Registry) Get(sessionID string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[sessionID]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Peer returns the session attached to userID.
func (r *Registry) Peer(userID string) (transport.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.entries[r.byUser[userID]]; ok {
		return e.Session, true
	}
	return nil, false
}

// SetSuperPeer records which user's session is the super-peer session.
func (r *Registry) SetSuperPeer(userID string) {
	r.mu.Lock()
	r.superPeerID = userID
	r.mu.Unlock()
}

// SuperPeer returns the session to the super-peer, if connected.
func (r *Registry) SuperPeer() (transport.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.superPeerID == "" {
		return nil, false
	}
	if e, ok := r.entries[r.byUser[r.superPeerID]]; ok {
		return e.Session, true
	}
	return nil, false
}

// Remove forgets a session and returns its entry. It does not close it.
func (r *Registry) Remove(sessionID string) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[sessionID]
	if !ok {
		return Entry{}, false
	}
	delete(r.entries, sessionID)
	if e.UserID != "" && r.byUser[e.UserID] == sessionID {
		delete(r.byUser, e.UserID)
	}
	if r.relayID == sessionID {
		r.relayID = ""
	}

	r.logger.Debug("session removed",
		"session_id", sessionID,
		"role", e.Role.String(),
		"user_id", e.UserID)
	return *e, true
}

// Peers returns the peer sessions, attached ones ordered by user id first.
func (r *Registry) Peers() []transport.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var entries []*Entry
	for _, e := range r.entries {
		if e.Role == RolePeer {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if (a.UserID == "") != (b.UserID == "") {
			return a.UserID != ""
		}
		if a.UserID != b.UserID {
			return a.UserID < b.UserID
		}
		return a.Session.ID() < b.Session.ID()
	})
	out := make([]transport.Session, len(entries))
	for i, e := range entries {
		out[i] = e.Session
	}
	return out
}

// Len returns the number of control sessions, relay included.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func (r *Registry) peerCountLocked() int {
	n := 0
	for _, e := range r.entries {
		if e.Role == RolePeer {
			n++
		}
	}
	return n
}

// SetStream registers the UDP stream session to userID, returning any
// session it replaced.
func (r *Registry) SetStream(userID string, s transport.Session) transport.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	old := r.streams[userID]
	r.streams[userID] = s
	return old
}

// Stream returns the UDP stream session to userID.
func (r *Registry) Stream(userID string) (transport.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.streams[userID]
	return s, ok
}

// RemoveStream forgets and closes the stream session to userID.
func (r *Registry) RemoveStream(userID string) bool {
	r.mu.Lock()
	s, ok := r.streams[userID]
	delete(r.streams, userID)
	r.mu.Unlock()
	if ok {
		_ = s.Close()
	}
	return ok
}

// StreamUsers returns the user ids that have a stream session.
func (r *Registry) StreamUsers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.streams))
	for id := range r.streams {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// CloseAll closes and forgets every session and reports how many control
// sessions were closed. The registry stays usable unless final is set.
func (r *Registry) CloseAll(final bool) int {
	r.mu.Lock()
	sessions := make([]transport.Session, 0, len(r.entries)+len(r.streams))
	n := len(r.entries)
	for _, e := range r.entries {
		sessions = append(sessions, e.Session)
	}
	for _, s := range r.streams {
		sessions = append(sessions, s)
	}
	r.entries = make(map[string]*Entry)
	r.byUser = make(map[string]string)
	r.streams = make(map[string]transport.Session)
	r.relayID = ""
	r.superPeerID = ""
	if final {
		r.closed = true
	}
	r.mu.Unlock()

	for _, s := range sessions {
		_ = s.Close()
	}
	if n > 0 {
		r.logger.Info("closed all sessions", "count", n)
	}
	return n
}
