package paintmgr

import (
	"time"

	"github.com/kingctan/sharedpainter/internal/errors"
	"github.com/kingctan/sharedpainter/pkg/protocol"
	"github.com/kingctan/sharedpainter/pkg/session"
	"github.com/kingctan/sharedpainter/pkg/transport"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// requestSync asks the super-peer for the full state, once per join. The
// request waits for a super-peer connect in progress. Runs on the reactor.
func (m *Manager) requestSync() {
	if m.syncRequested {
		return
	}
	m.syncRequested = true
	m.log.Clear()
	m.withCanvas((*canvasState).reset)
	m.armWatchdog()
	if m.connecting != "" {
		m.syncPending = true
		return
	}
	m.sendSyncRequest()
}

func (m *Manager) flushPendingSync() {
	if !m.syncPending {
		return
	}
	m.syncPending = false
	m.sendSyncRequest()
}

func (m *Manager) sendSyncRequest() {
	p := m.packet(&protocol.SyncRequest{Channel: m.channel(), TargetID: m.SelfID()})
	route := "super-peer"
	s, ok := m.sessions.SuperPeer()
	if !ok {
		route = "relay"
		s, ok = m.sessions.Relay()
	}
	if !ok {
		m.reportError(errors.New("E206").WithDetail("no route for SYNC_REQUEST"))
		return
	}
	if err := s.Send(p); err != nil {
		m.reportError(errors.New("E206").WithDetail("SYNC_REQUEST").Wrap(err))
		return
	}
	m.metrics.syncs.WithLabelValues("requested").Inc()
	m.logger.Info("sync requested", "route", route)
}

// armWatchdog starts the SYNC_START timer. A stale expiry is recognised by
// its generation and ignored.
func (m *Manager) armWatchdog() {
	m.stopWatchdog()
	gen := m.syncGen
	m.syncTimer = time.AfterFunc(m.cfg.SyncTimeout, func() {
		m.enqueue(func() {
			if gen != m.syncGen || m.syncing {
				return
			}
			m.syncTimer = nil
			m.metrics.syncs.WithLabelValues("timeout").Inc()
			m.teardown(errors.New("E204").WithDetailf("no SYNC_START within %s", m.cfg.SyncTimeout), true)
		})
	})
}

func (m *Manager) stopWatchdog() {
	m.syncGen++
	if m.syncTimer != nil {
		m.syncTimer.Stop()
		m.syncTimer = nil
	}
}

// teardown closes every session after a fatal condition and reports err.
// Close events of the dropped sessions find nothing to remove, so no
// reconnect follows. The roster is dropped only with forget.
func (m *Manager) teardown(err *errors.Error, forget bool) {
	m.resetJoin()
	m.connecting = ""
	m.relayAddr = ""
	n := m.sessions.CloseAll(false)
	if forget {
		m.users.Clear()
	}
	m.setState(StateInit)

	m.metrics.teardowns.WithLabelValues(err.Code).Inc()
	m.logger.Error("sessions torn down", "code", err.Code, "sessions", n, "error", err)
	m.post(func() { m.observer.OnError(err) })
}

func (m *Manager) handleSyncRequest(p *protocol.Packet) error {
	msg, err := protocol.DecodeSyncRequest(p.Body)
	if err != nil {
		return err
	}
	if msg.TargetID == m.SelfID() {
		return nil
	}
	if msg.Channel != "" && msg.Channel != m.channel() {
		return errInvalid
	}

	_, span := m.tracer.Start(m.ctx, "paintmgr.serve_sync",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("sync.target", msg.TargetID),
			attribute.String("sync.channel", msg.Channel),
		),
	)
	defer span.End()

	var (
		target transport.Session
		ok     bool
	)
	if m.users.IsSuperPeer() {
		target, ok = m.sessions.Peer(msg.TargetID)
	}
	if !ok {
		target, ok = m.sessions.Relay()
	}
	if !ok {
		span.SetStatus(codes.Error, "unknown target")
		m.drop(p, "unknown_target", nil)
		return nil
	}

	packets := m.syncPackage(msg.TargetID)
	span.SetAttributes(attribute.Int("sync.packets", len(packets)))
	if err := target.Send(packets...); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		m.logger.Warn("sync package not sent", "target", msg.TargetID, "error", err)
		return nil
	}
	m.metrics.syncs.WithLabelValues("served").Inc()
	m.logger.Info("sync served", "target", msg.TargetID, "packets", len(packets))
	return nil
}

// syncPackage is SYNC_START, the state packets and SYNC_COMPLETE.
func (m *Manager) syncPackage(target string) []*protocol.Packet {
	state := m.statePackets(false)
	packets := make([]*protocol.Packet, 0, len(state)+2)
	packets = append(packets, m.packet(&protocol.SyncStart{
		Channel:  m.channel(),
		FromID:   m.SelfID(),
		TargetID: target,
	}))
	packets = append(packets, state...)
	return append(packets, m.packet(&protocol.SyncComplete{TargetID: target}))
}

func (m *Manager) handleSyncStart(p *protocol.Packet) error {
	msg, err := protocol.DecodeSyncStart(p.Body)
	if err != nil {
		return err
	}
	if msg.TargetID != m.SelfID() {
		return nil
	}
	m.stopWatchdog()
	m.syncing = true
	m.setState(StateSyncing)
	m.metrics.syncs.WithLabelValues("started").Inc()
	from := msg.FromID
	m.post(func() { m.observer.OnSyncStarted(from) })
	return nil
}

func (m *Manager) handleSyncComplete(p *protocol.Packet) error {
	msg, err := protocol.DecodeSyncComplete(p.Body)
	if err != nil {
		return err
	}
	if msg.TargetID != m.SelfID() {
		return nil
	}
	m.assert(m.syncing, "SYNC_COMPLETE without SYNC_START")
	m.syncing = false
	m.setState(StateSteady)
	m.metrics.syncs.WithLabelValues("completed").Inc()
	m.logger.Info("sync completed", "tasks", m.log.Len(), "items", m.log.Scene().Len())
	m.post(m.observer.OnSyncCompleted)
	return nil
}

// sessionClosed forgets a closed session. Runs on the reactor.
func (m *Manager) sessionClosed(s transport.Session, cause error) {
	e, ok := m.sessions.Remove(s.ID())
	if !ok {
		return
	}
	remote := s.RemoteAddr()
	m.post(func() { m.observer.OnDisconnected(e.Role, remote, cause) })
	m.logger.Info("session closed",
		"role", e.Role.String(),
		"user_id", e.UserID,
		"remote", remote,
		"error", cause)

	switch e.Role {
	case session.RoleRelay:
		if !m.closing.Load() && m.cfg.Reconnect && m.relayAddr != "" {
			m.startReconnect()
		}

	case session.RolePeer:
		if e.UserID == "" {
			return
		}
		if _, relayUp := m.sessions.Relay(); relayUp {
			// the relay announces departures
			return
		}
		if m.users.IsSuperPeer() {
			m.users.Remove(e.UserID)
			m.broadcast(nil, m.packet(&protocol.Left{Channel: m.channel(), UserID: e.UserID}))
			return
		}
		if e.UserID == m.users.SuperPeerID() {
			m.users.Remove(e.UserID)
			m.setSuperPeer("")
			m.reportError(errors.New("E206").WithDetail("super-peer left"))
		}
	}
}
