package relay

import (
	"time"

	"github.com/kingctan/sharedpainter/pkg/paint"
	"github.com/kingctan/sharedpainter/pkg/protocol"
	"github.com/kingctan/sharedpainter/pkg/transport"
)

// member is one connected painter. Fields are guarded by Server.mu.
type member struct {
	session   transport.Session
	user      *paint.User
	channel   string
	versionOK bool
	joinedAt  time.Time
	lastAck   time.Time

	// syncTarget is set between the SYNC_START and SYNC_COMPLETE this
	// member sends; everything in between goes to the target only.
	syncTarget string
}

func (m *member) id() string {
	if m.user == nil {
		return ""
	}
	return m.user.ID
}

func (m *member) send(packets ...*protocol.Packet) bool {
	return m.session.Send(packets...) == nil
}

// channel is a set of members in join order.
type channel struct {
	name      string
	members   []*member
	superPeer string
}

func (c *channel) find(userID string) *member {
	for _, m := range c.members {
		if m.id() == userID {
			return m
		}
	}
	return nil
}

func (c *channel) remove(m *member) {
	for i, x := range c.members {
		if x == m {
			c.members = append(c.members[:i], c.members[i+1:]...)
			return
		}
	}
}

// users returns the roster as sent in RES_JOIN.
func (c *channel) users() []*paint.User {
	out := make([]*paint.User, 0, len(c.members))
	for _, m := range c.members {
		u := m.user.Clone()
		u.SessionID = ""
		u.Self = false
		out = append(out, u)
	}
	return out
}

// elect returns the oldest member with a listening TCP port, skipping
// exclude.
func (c *channel) elect(exclude *member) string {
	for _, m := range c.members {
		if m != exclude && m.user.ListenTCPPort > 0 {
			return m.id()
		}
	}
	return ""
}

// syncSource picks the member that serves a sync to target: the
// super-peer, else the oldest other member.
func (c *channel) syncSource(target string) *member {
	if c.superPeer != "" && c.superPeer != target {
		if m := c.find(c.superPeer); m != nil {
			return m
		}
	}
	for _, m := range c.members {
		if m.id() != target {
			return m
		}
	}
	return nil
}

// broadcast sends packets to every member except the sender. It returns
// the number of members reached.
func (c *channel) broadcast(except *member, packets ...*protocol.Packet) int {
	n := 0
	for _, m := range c.members {
		if m != except && m.send(packets...) {
			n++
		}
	}
	return n
}
