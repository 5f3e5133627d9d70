package paintmgr

import (
	"time"

	"github.com/cenkalti/backoff"
	"github.com/kingctan/sharedpainter/internal/errors"
	"github.com/kingctan/sharedpainter/pkg/transport"
)

// startReconnect re-dials the relay in the background after it dropped.
// It rejoins the same channel; the roster and the sync follow from the
// new RES_JOIN. Runs on the reactor.
func (m *Manager) startReconnect() {
	if m.reconnecting {
		return
	}
	m.reconnecting = true
	addr := m.relayAddr

	// The channel is rejoined from scratch.
	m.resetJoin()
	m.users.Clear()
	m.setState(StateJoinRequested)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = m.cfg.MaxReconnect
	ctx := m.ctx

	go func() {
		var s transport.Session
		op := func() error {
			m.metrics.reconnects.Inc()
			var err error
			s, err = m.cfg.DialRelay(ctx, addr, m.relayHandler)
			return err
		}
		notify := func(err error, wait time.Duration) {
			m.logger.Warn("relay reconnect failed", "addr", addr, "retry_in", wait, "error", err)
		}
		err := backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify)
		m.enqueue(func() { m.relayRedialed(addr, s, err) })
	}()
}

func (m *Manager) relayRedialed(addr string, s transport.Session, err error) {
	m.reconnecting = false
	if m.closing.Load() {
		return
	}
	if err != nil {
		m.setState(StateInit)
		m.reportError(errors.New("E203").WithDetailf("relay %s, giving up", addr).Wrap(err))
		return
	}
	if m.relayAddr != addr {
		// a teardown or another join happened meanwhile
		_ = s.Close()
		return
	}
	m.logger.Info("relay reconnected", "addr", addr)
	if err := m.sendJoin(s); err != nil {
		m.logger.Warn("rejoin failed", "error", err)
	}
}
