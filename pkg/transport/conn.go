package transport

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/kingctan/sharedpainter/pkg/protocol"
)

// conn is the state shared by stream sessions: identity, the write queue
// and close bookkeeping.
type conn struct {
	id      string
	kind    Kind
	remote  string
	handler Handler
	opts    options

	sendCh chan []byte
	done   chan struct{}
	once   sync.Once
	closed atomic.Bool

	// closer shuts the underlying connection down
	closer func() error
}

func newConn(kind Kind, remote string, h Handler, opts options) *conn {
	return &conn{
		id:      uuid.NewString(),
		kind:    kind,
		remote:  remote,
		handler: h,
		opts:    opts,
		sendCh:  make(chan []byte, opts.sendQueue),
		done:    make(chan struct{}),
	}
}

func (c *conn) ID() string         { return c.id }
func (c *conn) Kind() Kind         { return c.kind }
func (c *conn) RemoteAddr() string { return c.remote }

func (c *conn) enqueue(packets []*protocol.Packet) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if len(packets) == 0 {
		return nil
	}
	buf := protocol.Concat(packets...)
	select {
	case c.sendCh <- buf:
		return nil
	case <-c.done:
		return ErrClosed
	default:
		return ErrSendQueueFull
	}
}

// shutdown closes the connection once and reports err to the handler.
func (c *conn) shutdown(s Session, err error) {
	c.once.Do(func() {
		c.closed.Store(true)
		close(c.done)
		if c.closer != nil {
			_ = c.closer()
		}
		c.opts.logger.Debug("session closed",
			"session_id", c.id,
			"kind", c.kind.String(),
			"remote", c.remote,
			"error", err)
		c.handler.HandleClose(s, err)
	})
}

func (c *conn) deadline(d time.Duration) time.Time {
	if d <= 0 {
		return time.Time{}
	}
	return time.Now().Add(d)
}
