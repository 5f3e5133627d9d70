// Package roster keeps track of the users sharing a canvas.
//
// A Directory holds two pools: the current joiners of the channel and the
// history of everyone ever seen, which is append-only and used to attribute
// items to authors who have since left.
package roster

import (
	"sort"
	"strings"
	"sync"

	"github.com/kingctan/sharedpainter/pkg/paint"
)

// Poster runs callbacks on the presentation context.
type Poster interface {
	Post(fn func()) bool
}

// Option configures a Directory.
type Option func(*Directory)

// WithOnChange sets the callback invoked with the joiner count after every
// Add and Remove, including no-op ones.
func WithOnChange(fn func(count int)) Option {
	return func(d *Directory) { d.onChange = fn }
}

// WithPoster sets where change callbacks are delivered. Without one they are
// called inline.
func WithPoster(p Poster) Option {
	return func(d *Directory) { d.poster = p }
}

// Directory is the user roster. It is safe for concurrent use.
type Directory struct {
	mu sync.RWMutex

	// Current joiners by ID
	users map[string]*paint.User

	// Everyone ever seen, in first-seen order
	history      map[string]*paint.User
	historyOrder []string

	selfID      string
	superPeerID string

	onChange func(count int)
	poster   Poster
}

// New creates an empty directory.
func New(opts ...Option) *Directory {
	d := &Directory{
		users:   make(map[string]*paint.User),
		history: make(map[string]*paint.User),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SetSelf registers the local user. Only one user is ever marked Self.
func (d *Directory) SetSelf(u *paint.User) {
	d.mu.Lock()
	if d.selfID != "" && d.selfID != u.ID {
		if old, ok := d.users[d.selfID]; ok {
			old.Self = false
		}
	}
	d.selfID = u.ID
	d.addLocked(u)
	n := len(d.users)
	d.mu.Unlock()
	d.notify(n)
}

// SelfID returns the local user's ID.
func (d *Directory) SelfID() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.selfID
}

// Self returns a copy of the local user, or nil before SetSelf.
func (d *Directory) Self() *paint.User {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if u, ok := d.users[d.selfID]; ok {
		return u.Clone()
	}
	return nil
}

// Add inserts u or, if a user with the same ID is present, replaces its
// fields. It reports whether the user is new. The change callback always
// fires.
func (d *Directory) Add(u *paint.User) bool {
	d.mu.Lock()
	added := d.addLocked(u)
	n := len(d.users)
	d.mu.Unlock()
	d.notify(n)
	return added
}

func (d *Directory) addLocked(u *paint.User) bool {
	c := u.Clone()
	c.Self = c.ID == d.selfID
	_, exists := d.users[c.ID]
	if exists {
		// The session id is local bookkeeping and never comes off the wire.
		if c.SessionID == "" {
			c.SessionID = d.users[c.ID].SessionID
		}
	}
	d.users[c.ID] = c
	d.rememberLocked(c)
	return !exists
}

func (d *Directory) rememberLocked(u *paint.User) {
	if _, ok := d.history[u.ID]; !ok {
		d.historyOrder = append(d.historyOrder, u.ID)
	}
	h := u.Clone()
	h.SessionID = ""
	d.history[u.ID] = h
}

// Remove drops the joiner with id and returns it. The history keeps it.
func (d *Directory) Remove(id string) (*paint.User, bool) {
	d.mu.Lock()
	u, ok := d.users[id]
	if ok {
		delete(d.users, id)
		if d.superPeerID == id {
			d.superPeerID = ""
		}
	}
	n := len(d.users)
	d.mu.Unlock()
	d.notify(n)
	return u, ok
}

// Find returns a copy of the joiner with id.
func (d *Directory) Find(id string) (*paint.User, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[id]
	if !ok {
		return nil, false
	}
	return u.Clone(), true
}

// FindBySession returns the joiner attached to a session id.
func (d *Directory) FindBySession(sessionID string) (*paint.User, bool) {
	if sessionID == "" {
		return nil, false
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, u := range d.users {
		if u.SessionID == sessionID {
			return u.Clone(), true
		}
	}
	return nil, false
}

// Update applies fn to the joiner with id under the directory lock.
func (d *Directory) Update(id string, fn func(u *paint.User)) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[id]
	if !ok {
		return false
	}
	fn(u)
	u.Self = u.ID == d.selfID
	d.rememberLocked(u)
	return true
}

// ChangeNickName renames a joiner and returns the previous nickname.
func (d *Directory) ChangeNickName(id, nick string) (string, bool) {
	var prev string
	ok := d.Update(id, func(u *paint.User) {
		prev = u.NickName
		u.NickName = nick
	})
	return prev, ok
}

// Users returns copies of the joiners ordered by nickname, then ID.
func (d *Directory) Users() []*paint.User {
	d.mu.RLock()
	out := make([]*paint.User, 0, len(d.users))
	for _, u := range d.users {
		out = append(out, u.Clone())
	}
	d.mu.RUnlock()
	sortUsers(out)
	return out
}

// Len returns the number of joiners.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.users)
}

// RemoteUsers returns every joiner except the local user.
func (d *Directory) RemoteUsers() []*paint.User {
	users := d.Users()
	out := users[:0]
	for _, u := range users {
		if !u.Self {
			out = append(out, u)
		}
	}
	return out
}

// Clear removes every joiner except the local user. History is kept.
func (d *Directory) Clear() {
	d.mu.Lock()
	for id := range d.users {
		if id != d.selfID {
			delete(d.users, id)
		}
	}
	d.superPeerID = ""
	n := len(d.users)
	d.mu.Unlock()
	d.notify(n)
}

// History returns every user ever seen, in first-seen order.
func (d *Directory) History() []*paint.User {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*paint.User, 0, len(d.historyOrder))
	for _, id := range d.historyOrder {
		out = append(out, d.history[id].Clone())
	}
	return out
}

// FindHistory returns a copy of a user from the history.
func (d *Directory) FindHistory(id string) (*paint.User, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.history[id]
	if !ok {
		return nil, false
	}
	return u.Clone(), true
}

// MergeHistory adds the users not yet in the history and returns how many
// were added. Known entries are left as they are.
func (d *Directory) MergeHistory(users []*paint.User) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, u := range users {
		if _, ok := d.history[u.ID]; ok {
			continue
		}
		c := u.Clone()
		c.Self = false
		c.SessionID = ""
		d.history[c.ID] = c
		d.historyOrder = append(d.historyOrder, c.ID)
		n++
	}
	return n
}

// SetSuperPeer records the channel's super-peer. An empty id clears it.
func (d *Directory) SetSuperPeer(id string) {
	d.mu.Lock()
	d.superPeerID = id
	d.mu.Unlock()
}

// SuperPeerID returns the current super-peer id.
func (d *Directory) SuperPeerID() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.superPeerID
}

// IsSuperPeer reports whether the local user is the super-peer.
func (d *Directory) IsSuperPeer() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.selfID != "" && d.superPeerID == d.selfID
}

func (d *Directory) notify(n int) {
	fn := d.onChange
	if fn == nil {
		return
	}
	if d.poster == nil {
		fn(n)
		return
	}
	d.poster.Post(func() { fn(n) })
}

func sortUsers(users []*paint.User) {
	sort.Slice(users, func(i, j int) bool {
		a, b := strings.ToLower(users[i].NickName), strings.ToLower(users[j].NickName)
		if a != b {
			return a < b
		}
		return users[i].ID < users[j].ID
	})
}
