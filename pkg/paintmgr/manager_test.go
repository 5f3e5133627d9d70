package paintmgr

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kingctan/sharedpainter/internal/errors"
	"github.com/kingctan/sharedpainter/pkg/paint"
	"github.com/kingctan/sharedpainter/pkg/protocol"
	"github.com/kingctan/sharedpainter/pkg/transport"
)

// pipe is an in-memory session: sent packets are recorded, inbound ones
// are handed to the handler by deliver.
type pipe struct {
	id     string
	h      transport.Handler
	mu     sync.Mutex
	out    []*protocol.Packet
	closed atomic.Int32
}

var pipeSeq atomic.Int64

func newPipe(h transport.Handler) *pipe {
	return &pipe{id: "pipe-" + strconv.FormatInt(pipeSeq.Add(1), 10), h: h}
}

func (p *pipe) ID() string           { return p.id }
func (p *pipe) Kind() transport.Kind { return transport.KindTCP }
func (p *pipe) RemoteAddr() string   { return "127.0.0.1:9" }

func (p *pipe) Send(packets ...*protocol.Packet) error {
	if p.closed.Load() > 0 {
		return transport.ErrClosed
	}
	p.mu.Lock()
	p.out = append(p.out, packets...)
	p.mu.Unlock()
	return nil
}

func (p *pipe) Close() error {
	if p.closed.Add(1) == 1 {
		p.h.HandleClose(p, nil)
	}
	return nil
}

func (p *pipe) deliver(msg protocol.Message, from string) {
	p.h.HandlePacket(p, protocol.MakeFrom(from, msg))
}

func (p *pipe) sent() []*protocol.Packet {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*protocol.Packet(nil), p.out...)
}

func (p *pipe) codes() []protocol.Code {
	var out []protocol.Code
	for _, pk := range p.sent() {
		out = append(out, pk.Code)
	}
	return out
}

func (p *pipe) count(code protocol.Code) int {
	n := 0
	for _, c := range p.codes() {
		if c == code {
			n++
		}
	}
	return n
}

func (p *pipe) reset() {
	p.mu.Lock()
	p.out = nil
	p.mu.Unlock()
}

// syncPoster runs notifications on the posting goroutine.
type syncPoster struct{}

func (syncPoster) Post(fn func()) bool { fn(); return true }

type recordingObserver struct {
	BaseObserver
	mu        sync.Mutex
	errs      []error
	started   []string
	completed int
	chats     []string
	nicks     []string
}

func (o *recordingObserver) OnError(err error) {
	o.mu.Lock()
	o.errs = append(o.errs, err)
	o.mu.Unlock()
}

func (o *recordingObserver) OnSyncStarted(from string) {
	o.mu.Lock()
	o.started = append(o.started, from)
	o.mu.Unlock()
}

func (o *recordingObserver) OnSyncCompleted() {
	o.mu.Lock()
	o.completed++
	o.mu.Unlock()
}

func (o *recordingObserver) OnChatMessage(_, _, message string) {
	o.mu.Lock()
	o.chats = append(o.chats, message)
	o.mu.Unlock()
}

func (o *recordingObserver) OnNickNameChanged(_, _, next string) {
	o.mu.Lock()
	o.nicks = append(o.nicks, next)
	o.mu.Unlock()
}

func (o *recordingObserver) errorCodes() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []string
	for _, err := range o.errs {
		out = append(out, errors.CodeOf(err))
	}
	return out
}

type harness struct {
	m     *Manager
	obs   *recordingObserver
	mu    sync.Mutex
	relay *pipe
	peers []*pipe
}

func newHarness(t *testing.T, mutate func(*Config)) *harness {
	t.Helper()
	h := &harness{obs: &recordingObserver{}}
	cfg := Config{
		AppVersion:  "test",
		UserID:      "alice",
		NickName:    "Alice",
		Channel:     "room",
		LocalIP:     "127.0.0.1",
		SyncTimeout: time.Second,
		Poster:      syncPoster{},
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		DialRelay: func(_ context.Context, _ string, th transport.Handler) (transport.Session, error) {
			p := newPipe(th)
			th.HandleConnect(p)
			h.mu.Lock()
			h.relay = p
			h.mu.Unlock()
			return p, nil
		},
		DialPeer: func(_ context.Context, _ string, th transport.Handler) (transport.Session, error) {
			p := newPipe(th)
			th.HandleConnect(p)
			h.mu.Lock()
			h.peers = append(h.peers, p)
			h.mu.Unlock()
			return p, nil
		},
	}
	if mutate != nil {
		mutate(&cfg)
	}
	h.m = New(cfg, h.obs)
	t.Cleanup(func() { _ = h.m.Close() })
	return h
}

func (h *harness) relaySession() *pipe {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.relay
}

// settle waits until the reactor handled everything queued so far.
func (h *harness) settle(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.m.do(ctx, func() {}); err != nil {
		t.Fatalf("reactor did not settle: %v", err)
	}
}

// acceptPeer simulates an inbound peer connection to the local server.
func (h *harness) acceptPeer(t *testing.T, userID string) *pipe {
	t.Helper()
	p := newPipe(h.m.peerHandler)
	h.m.peerHandler.HandleConnect(p)
	p.deliver(&protocol.JoinToSuperPeer{User: &paint.User{ID: userID, NickName: userID, Channel: "room"}}, userID)
	h.settle(t)
	return p
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func resJoin(first bool, superPeer string, users ...*paint.User) *protocol.ResJoin {
	return &protocol.ResJoin{Channel: "room", FirstUser: first, Users: users, SuperPeerID: superPeer}
}

func user(id string) *paint.User {
	return &paint.User{ID: id, NickName: id, Channel: "room"}
}

func TestJoinSendsVersionThenJoin(t *testing.T) {
	h := newHarness(t, nil)
	if err := h.m.Join(context.Background(), "relay:1", "room"); err != nil {
		t.Fatalf("Join() error = %v", err)
	}

	got := h.relaySession().codes()
	want := []protocol.Code{protocol.CodeVersionInfo, protocol.CodeJoinToServer}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("sent %v, want %v", got, want)
	}
	if s := h.m.State(); s != StateJoinRequested {
		t.Errorf("State() = %v, want %v", s, StateJoinRequested)
	}
	msg, err := protocol.DecodeJoinToServer(h.relaySession().sent()[1].Body)
	if err != nil {
		t.Fatal(err)
	}
	if msg.User.ID != "alice" || msg.User.Channel != "room" {
		t.Errorf("JOIN_TO_SERVER user = %+v", msg.User)
	}
}

func TestJoinDialFailure(t *testing.T) {
	h := newHarness(t, func(c *Config) {
		c.DialRelay = func(context.Context, string, transport.Handler) (transport.Session, error) {
			return nil, io.ErrUnexpectedEOF
		}
	})
	err := h.m.Join(context.Background(), "relay:1", "room")
	if errors.CodeOf(err) != "E203" {
		t.Fatalf("Join() error = %v, want E203", err)
	}
	if s := h.m.State(); s != StateInit {
		t.Errorf("State() = %v, want init", s)
	}
}

func TestResJoinRequestsSyncOnce(t *testing.T) {
	h := newHarness(t, nil)
	_ = h.m.Join(context.Background(), "relay:1", "room")
	relay := h.relaySession()

	// bob has no server, so the request goes through the relay
	relay.deliver(resJoin(false, "bob", user("alice"), user("bob")), "")
	relay.deliver(resJoin(false, "bob", user("alice"), user("bob")), "")
	h.settle(t)

	if n := relay.count(protocol.CodeSyncRequest); n != 1 {
		t.Errorf("SYNC_REQUEST sent %d times, want 1", n)
	}
	if s := h.m.State(); s != StateJoined {
		t.Errorf("State() = %v, want joined", s)
	}
	if n := h.m.Users().Len(); n != 2 {
		t.Errorf("roster size = %d, want 2", n)
	}
	if id := h.m.Users().SuperPeerID(); id != "bob" {
		t.Errorf("super-peer = %q, want bob", id)
	}
}

func TestFirstUserDoesNotSync(t *testing.T) {
	h := newHarness(t, nil)
	_ = h.m.Join(context.Background(), "relay:1", "room")
	relay := h.relaySession()
	relay.deliver(resJoin(true, "alice", user("alice")), "")
	h.settle(t)

	if n := relay.count(protocol.CodeSyncRequest); n != 0 {
		t.Errorf("SYNC_REQUEST sent %d times, want 0", n)
	}
	if !h.m.Users().IsSuperPeer() {
		t.Error("first user is not the super-peer")
	}
}

func TestSyncTimeoutTearsDownOnce(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.SyncTimeout = 50 * time.Millisecond })
	_ = h.m.Join(context.Background(), "relay:1", "room")
	relay := h.relaySession()
	relay.deliver(resJoin(false, "bob", user("alice"), user("bob")), "")

	waitFor(t, "teardown", func() bool { return len(h.obs.errorCodes()) > 0 })
	time.Sleep(150 * time.Millisecond)
	h.settle(t)

	if codes := h.obs.errorCodes(); len(codes) != 1 || codes[0] != "E204" {
		t.Errorf("errors = %v, want [E204]", codes)
	}
	if n := relay.closed.Load(); n != 1 {
		t.Errorf("relay closed %d times, want 1", n)
	}
	if n := h.m.Sessions().Len(); n != 0 {
		t.Errorf("sessions after teardown = %d, want 0", n)
	}
	if s := h.m.State(); s != StateInit {
		t.Errorf("State() = %v, want init", s)
	}
	if n := relay.count(protocol.CodeSyncRequest); n != 1 {
		t.Errorf("SYNC_REQUEST sent %d times, want 1 (no retry)", n)
	}
}

func TestSyncStartStopsWatchdog(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.SyncTimeout = 50 * time.Millisecond })
	_ = h.m.Join(context.Background(), "relay:1", "room")
	relay := h.relaySession()
	relay.deliver(resJoin(false, "bob", user("alice"), user("bob")), "")
	relay.deliver(&protocol.SyncStart{Channel: "room", FromID: "bob", TargetID: "alice"}, "bob")
	h.settle(t)

	if s := h.m.State(); s != StateSyncing {
		t.Errorf("State() = %v, want syncing", s)
	}
	time.Sleep(150 * time.Millisecond)
	relay.deliver(&protocol.SyncComplete{TargetID: "alice"}, "bob")
	h.settle(t)

	if codes := h.obs.errorCodes(); len(codes) != 0 {
		t.Errorf("errors = %v, want none", codes)
	}
	if s := h.m.State(); s != StateSteady {
		t.Errorf("State() = %v, want steady", s)
	}
	h.obs.mu.Lock()
	defer h.obs.mu.Unlock()
	if len(h.obs.started) != 1 || h.obs.started[0] != "bob" || h.obs.completed != 1 {
		t.Errorf("sync notifications started=%v completed=%d", h.obs.started, h.obs.completed)
	}
}

func TestSyncStartForOtherTargetIgnored(t *testing.T) {
	h := newHarness(t, nil)
	_ = h.m.Join(context.Background(), "relay:1", "room")
	relay := h.relaySession()
	relay.deliver(resJoin(false, "bob", user("alice"), user("bob")), "")
	relay.deliver(&protocol.SyncStart{Channel: "room", FromID: "bob", TargetID: "carol"}, "bob")
	h.settle(t)

	if s := h.m.State(); s != StateJoined {
		t.Errorf("State() = %v, want joined", s)
	}
}

func TestVersionMismatchTearsDown(t *testing.T) {
	h := newHarness(t, nil)
	_ = h.m.Join(context.Background(), "relay:1", "room")
	relay := h.relaySession()
	relay.deliver(resJoin(false, "bob", user("alice"), user("bob"), user("carol")), "")
	h.settle(t)
	task := paint.NewCreateTask(&paint.Item{Key: paint.ItemKey{Owner: "alice", ID: 1}, Type: paint.ItemLine})
	if err := h.m.SubmitLocalTask(task); err != nil {
		t.Fatal(err)
	}

	relay.h.HandlePacket(relay, protocol.Make(&protocol.VersionInfo{AppVersion: "old", ProtocolVersion: "0.0"}))
	h.settle(t)

	if codes := h.obs.errorCodes(); len(codes) != 1 || codes[0] != "E200" {
		t.Errorf("errors = %v, want [E200]", codes)
	}
	if relay.closed.Load() != 1 {
		t.Error("relay not closed on version mismatch")
	}
	if n := h.m.Users().Len(); n != 3 {
		t.Errorf("roster size = %d, want 3", n)
	}
	if id := h.m.Users().SuperPeerID(); id != "bob" {
		t.Errorf("super-peer = %q, want bob", id)
	}
	if n := h.m.Log().Len(); n != 1 {
		t.Errorf("log length = %d, want 1", n)
	}
}

func TestAutoConnectDialsOnce(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.AutoConnect = true })
	info := &protocol.ServerInfo{Channel: "room", Addr: "127.0.0.1", Port: 4001}

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.m.serverFound(info)
		}()
	}
	wg.Wait()

	waitFor(t, "peer dial", func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		return len(h.peers) > 0
	})
	time.Sleep(50 * time.Millisecond)
	h.settle(t)

	h.mu.Lock()
	n := len(h.peers)
	peer := h.peers[0]
	h.mu.Unlock()
	if n != 1 {
		t.Fatalf("dialed %d peers, want 1", n)
	}

	peer.deliver(resJoin(false, "bob", user("alice"), user("bob")), "bob")
	h.settle(t)
	if c := peer.count(protocol.CodeSyncRequest); c != 1 {
		t.Errorf("SYNC_REQUEST sent %d times, want 1", c)
	}
}

func TestLocalAndRemoteTasksInterleave(t *testing.T) {
	h := newHarness(t, nil)
	_ = h.m.Join(context.Background(), "relay:1", "room")
	relay := h.relaySession()
	relay.deliver(resJoin(true, "alice", user("alice"), user("bob")), "")
	h.settle(t)

	const n = 40
	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			item := &paint.Item{Key: paint.ItemKey{Owner: "alice", ID: int64(i)}, Type: paint.ItemLine}
			if err := h.m.SubmitLocalTask(paint.NewCreateTask(item)); err != nil {
				t.Errorf("SubmitLocalTask() error = %v", err)
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			item := &paint.Item{Key: paint.ItemKey{Owner: "bob", ID: int64(i)}, Type: paint.ItemLine}
			relay.deliver(&protocol.TaskExecute{Task: paint.NewCreateTask(item)}, "bob")
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			if i%2 == 0 {
				_ = h.m.Undo()
			} else {
				_ = h.m.Redo()
			}
		}
	}()
	wg.Wait()
	h.settle(t)

	log := h.m.Log()
	if log.Len() != 2*n {
		t.Fatalf("log length = %d, want %d", log.Len(), 2*n)
	}
	pos := log.PlayPosition()
	for i, task := range log.Tasks() {
		if got, want := log.Scene().IsVisible(task.Key), i <= pos; got != want {
			t.Errorf("task %d (%s) visible = %v, want %v at cursor %d", i, task.Key, got, want, pos)
		}
	}
}

func TestConnectToPeerJoinsThroughSuperPeer(t *testing.T) {
	h := newHarness(t, nil)
	if err := h.m.ConnectToPeer(context.Background(), "127.0.0.1:4001"); err != nil {
		t.Fatalf("ConnectToPeer() error = %v", err)
	}
	h.mu.Lock()
	peer := h.peers[0]
	h.mu.Unlock()

	if got := peer.codes(); len(got) != 2 || got[1] != protocol.CodeJoinToSuperPeer {
		t.Fatalf("sent %v", got)
	}
	peer.deliver(resJoin(false, "bob", user("alice"), user("bob")), "bob")
	h.settle(t)

	if n := peer.count(protocol.CodeSyncRequest); n != 1 {
		t.Errorf("SYNC_REQUEST over peer session = %d, want 1", n)
	}
	if s, ok := h.m.Sessions().SuperPeer(); !ok || s.ID() != peer.ID() {
		t.Error("peer session not attached to the super-peer")
	}
}

func TestResJoinConnectsToSuperPeer(t *testing.T) {
	h := newHarness(t, nil)
	_ = h.m.Join(context.Background(), "relay:1", "room")
	relay := h.relaySession()

	bob := user("bob")
	bob.ListenTCPPort = 4001
	relay.deliver(resJoin(false, "bob", user("alice"), bob), "")

	var peer *pipe
	waitFor(t, "super-peer dial", func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		if len(h.peers) > 0 {
			peer = h.peers[0]
		}
		return peer != nil && peer.count(protocol.CodeSyncRequest) == 1
	})
	if n := relay.count(protocol.CodeSyncRequest); n != 0 {
		t.Errorf("SYNC_REQUEST over relay = %d, want 0", n)
	}
	codes := peer.codes()
	if codes[1] != protocol.CodeJoinToSuperPeer || codes[2] != protocol.CodeSyncRequest {
		t.Errorf("peer session got %v", codes)
	}
}

func TestSuperPeerServesSync(t *testing.T) {
	h := newHarness(t, nil)
	_ = h.m.do(context.Background(), func() { h.m.setSuperPeer("alice") })
	_ = h.m.SubmitLocalTask(paint.NewCreateTask(&paint.Item{Key: paint.ItemKey{Owner: "alice", ID: 1}, Type: paint.ItemLine}))

	bob := h.acceptPeer(t, "bob")
	if got := bob.codes(); len(got) != 2 || got[1] != protocol.CodeResJoin {
		t.Fatalf("joiner got %v, want VERSION_INFO, RES_JOIN", got)
	}
	res, err := protocol.DecodeResJoin(bob.sent()[1].Body)
	if err != nil {
		t.Fatal(err)
	}
	if res.SuperPeerID != "alice" || len(res.Users) != 2 || res.FirstUser {
		t.Errorf("RES_JOIN = %+v", res)
	}
	bob.reset()

	bob.deliver(&protocol.SyncRequest{Channel: "room", TargetID: "bob"}, "bob")
	h.settle(t)
	got := bob.codes()
	if len(got) < 3 || got[0] != protocol.CodeSyncStart || got[len(got)-1] != protocol.CodeSyncComplete {
		t.Fatalf("sync package = %v", got)
	}
	if bob.count(protocol.CodeTaskExecute) != 1 || bob.count(protocol.CodeCreateItem) != 1 {
		t.Errorf("sync package = %v, want one item and one task", got)
	}

	bob.reset()
	bob.deliver(&protocol.SyncRequest{Channel: "room", TargetID: "carol"}, "bob")
	h.settle(t)
	if got := bob.codes(); len(got) != 0 {
		t.Errorf("unknown target produced %v", got)
	}
}

func TestSuperPeerForwardsBroadcasts(t *testing.T) {
	h := newHarness(t, nil)
	_ = h.m.do(context.Background(), func() { h.m.setSuperPeer("alice") })
	bob := h.acceptPeer(t, "bob")
	carol := h.acceptPeer(t, "carol")
	bob.reset()
	carol.reset()

	bob.deliver(&protocol.ChatMessage{UserID: "bob", NickName: "bob", Message: "hi"}, "bob")
	bob.deliver(&protocol.SyncComplete{TargetID: "carol"}, "bob")
	h.settle(t)

	if got := carol.codes(); len(got) != 1 || got[0] != protocol.CodeChatMessage {
		t.Errorf("carol got %v, want the chat only", got)
	}
	if got := bob.codes(); len(got) != 0 {
		t.Errorf("bob got %v back", got)
	}
	h.obs.mu.Lock()
	defer h.obs.mu.Unlock()
	if len(h.obs.chats) != 1 || h.obs.chats[0] != "hi" {
		t.Errorf("chats = %v", h.obs.chats)
	}
}

func TestSuperPeerAnnouncesDeparture(t *testing.T) {
	h := newHarness(t, nil)
	_ = h.m.do(context.Background(), func() { h.m.setSuperPeer("alice") })
	bob := h.acceptPeer(t, "bob")
	carol := h.acceptPeer(t, "carol")
	carol.reset()

	_ = bob.Close()
	h.settle(t)

	if _, ok := h.m.Users().Find("bob"); ok {
		t.Error("bob still in roster")
	}
	if n := carol.count(protocol.CodeLeft); n != 1 {
		t.Errorf("LEFT sent %d times, want 1", n)
	}
}

func TestLocalTaskAnnounced(t *testing.T) {
	h := newHarness(t, nil)
	_ = h.m.Join(context.Background(), "relay:1", "room")
	relay := h.relaySession()
	relay.deliver(resJoin(true, "alice", user("alice")), "")
	h.settle(t)
	relay.reset()

	task := paint.NewCreateTask(&paint.Item{Key: paint.ItemKey{Owner: "alice", ID: 1}, Type: paint.ItemLine})
	if err := h.m.SubmitLocalTask(task); err != nil {
		t.Fatalf("SubmitLocalTask() error = %v", err)
	}
	// no super-peer session and self is super-peer without peers: nothing
	// to send to
	if n := relay.count(protocol.CodeTaskExecute); n != 0 {
		t.Errorf("TASK_EXECUTE sent %d times with no peers", n)
	}

	_ = h.m.do(context.Background(), func() { h.m.setSuperPeer("bob") })
	task2 := paint.NewMoveTask(paint.ItemKey{Owner: "alice", ID: 1}, 0, 0, 5, 5)
	if err := h.m.SubmitLocalTask(task2); err != nil {
		t.Fatalf("SubmitLocalTask() error = %v", err)
	}
	if n := relay.count(protocol.CodeTaskExecute); n != 1 {
		t.Errorf("TASK_EXECUTE sent %d times, want 1", n)
	}

	// remote tasks are applied but not echoed
	relay.deliver(&protocol.TaskExecute{Task: paint.NewMoveTask(paint.ItemKey{Owner: "alice", ID: 1}, 5, 5, 9, 9)}, "bob")
	h.settle(t)
	if n := h.m.Log().Len(); n != 3 {
		t.Errorf("log length = %d, want 3", n)
	}
	if n := relay.count(protocol.CodeTaskExecute); n != 1 {
		t.Errorf("remote task echoed: %d TASK_EXECUTE", n)
	}
}

func TestRefusedLocalTask(t *testing.T) {
	h := newHarness(t, nil)
	err := h.m.SubmitLocalTask(paint.NewRemoveTask(paint.ItemKey{Owner: "alice", ID: 42}))
	if errors.CodeOf(err) != "E205" {
		t.Errorf("SubmitLocalTask() error = %v, want E205", err)
	}
}

func TestPlaybackDefersAnnouncement(t *testing.T) {
	h := newHarness(t, nil)
	_ = h.m.Join(context.Background(), "relay:1", "room")
	relay := h.relaySession()
	relay.deliver(resJoin(true, "bob", user("alice"), user("bob")), "")
	h.settle(t)

	key := paint.ItemKey{Owner: "alice", ID: 1}
	_ = h.m.SubmitLocalTask(paint.NewCreateTask(&paint.Item{Key: key, Type: paint.ItemLine}))
	_ = h.m.SubmitLocalTask(paint.NewMoveTask(key, 0, 0, 1, 1))
	if err := h.m.SeekTo(0); err != nil {
		t.Fatalf("SeekTo(0) error = %v", err)
	}
	relay.reset()

	_ = h.m.SubmitLocalTask(paint.NewMoveTask(key, 1, 1, 2, 2))
	if n := relay.count(protocol.CodeTaskExecute); n != 0 {
		t.Fatalf("task announced during playback")
	}
	if err := h.m.SeekTo(2); err != nil {
		t.Fatalf("SeekTo(2) error = %v", err)
	}
	if n := relay.count(protocol.CodeTaskExecute); n != 1 {
		t.Errorf("TASK_EXECUTE after replay = %d, want 1", n)
	}
}

func TestDispatchWindowValidation(t *testing.T) {
	tests := []struct {
		name  string
		msg   protocol.Message
		check func(Canvas) bool
	}{
		{"zero window", &protocol.ResizeMainWindow{Width: 0, Height: 10}, func(c Canvas) bool { return c.WindowWidth == 0 }},
		{"window", &protocol.ResizeMainWindow{Width: 800, Height: 600}, func(c Canvas) bool { return c.WindowWidth == 800 && c.WindowHeight == 600 }},
		{"canvas", &protocol.ResizeCanvas{Width: 1024, Height: 768}, func(c Canvas) bool { return c.CanvasWidth == 1024 }},
		{"empty splitter", &protocol.ResizeWindowSplitter{}, func(c Canvas) bool { return len(c.Splitter) == 0 }},
		{"splitter", &protocol.ResizeWindowSplitter{Sizes: []int{200, 600}}, func(c Canvas) bool { return len(c.Splitter) == 2 }},
		{"negative scroll", &protocol.ChangeCanvasScroll{Horizontal: -3, Vertical: 0}, func(c Canvas) bool { return c.ScrollH == -1 }},
		{"scroll", &protocol.ChangeCanvasScroll{Horizontal: 3, Vertical: 4}, func(c Canvas) bool { return c.ScrollH == 3 && c.ScrollV == 4 }},
		{"grid", &protocol.SetBackgroundGrid{Size: 16}, func(c Canvas) bool { return c.GridSize == 16 }},
		{"color", &protocol.SetBackgroundColor{Color: paint.Color{R: 1, A: 255}}, func(c Canvas) bool { return c.BackgroundColor.R == 1 }},
		{"clear background", &protocol.ClearBackground{}, func(c Canvas) bool { return c.GridSize == 0 && c.BackgroundColor == paint.White }},
	}

	h := newHarness(t, nil)
	_ = h.m.Join(context.Background(), "relay:1", "room")
	relay := h.relaySession()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			relay.deliver(tt.msg, "bob")
			h.settle(t)
			if c := h.m.Canvas(); !tt.check(c) {
				t.Errorf("canvas after %s = %+v", tt.name, c)
			}
		})
	}
}

func TestMalformedBodyDropped(t *testing.T) {
	h := newHarness(t, nil)
	_ = h.m.Join(context.Background(), "relay:1", "room")
	relay := h.relaySession()
	relay.h.HandlePacket(relay, protocol.NewPacketFrom(protocol.CodeResizeCanvas, "bob", []byte{0xff}))
	relay.deliver(&protocol.ResizeCanvas{Width: 5, Height: 6}, "bob")
	h.settle(t)

	if c := h.m.Canvas(); c.CanvasWidth != 5 {
		t.Errorf("dispatch stopped after a malformed packet: %+v", c)
	}
	if codes := h.obs.errorCodes(); len(codes) != 0 {
		t.Errorf("malformed body reported: %v", codes)
	}
}

func TestLeftClearsSuperPeer(t *testing.T) {
	h := newHarness(t, nil)
	_ = h.m.Join(context.Background(), "relay:1", "room")
	relay := h.relaySession()
	relay.deliver(resJoin(true, "bob", user("alice"), user("bob")), "")
	relay.deliver(&protocol.Left{Channel: "room", UserID: "bob"}, "")
	h.settle(t)

	if _, ok := h.m.Users().Find("bob"); ok {
		t.Error("bob still in roster")
	}
	if id := h.m.Users().SuperPeerID(); id != "" {
		t.Errorf("super-peer = %q after it left", id)
	}
}

func TestNickNameChange(t *testing.T) {
	h := newHarness(t, nil)
	_ = h.m.Join(context.Background(), "relay:1", "room")
	relay := h.relaySession()
	relay.deliver(resJoin(true, "bob", user("alice"), user("bob")), "")
	relay.deliver(&protocol.ChangeNickName{UserID: "bob", NickName: "Robert"}, "bob")
	h.settle(t)

	if u, _ := h.m.Users().Find("bob"); u == nil || u.NickName != "Robert" {
		t.Errorf("bob = %+v", u)
	}
	relay.reset()
	if err := h.m.ChangeNickName("Al"); err != nil {
		t.Fatal(err)
	}
	if n := relay.count(protocol.CodeChangeNickName); n != 1 {
		t.Errorf("CHANGE_NICKNAME sent %d times", n)
	}
	h.obs.mu.Lock()
	defer h.obs.mu.Unlock()
	if len(h.obs.nicks) != 2 || h.obs.nicks[1] != "Al" {
		t.Errorf("nick notifications = %v", h.obs.nicks)
	}
}

func TestTCPSynAnswered(t *testing.T) {
	h := newHarness(t, nil)
	_ = h.m.Join(context.Background(), "relay:1", "room")
	relay := h.relaySession()
	relay.h.HandlePacket(relay, protocol.Make(&protocol.TCPSyn{}))
	h.settle(t)
	if n := relay.count(protocol.CodeTCPAck); n != 1 {
		t.Errorf("TCPACK sent %d times, want 1", n)
	}
}

func TestAssertPanicsInDebug(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.Debug = true })
	defer func() {
		if recover() == nil {
			t.Error("assert did not panic in debug mode")
		}
	}()
	h.m.assert(false, "boom %d", 1)
}

func TestCloseIsIdempotent(t *testing.T) {
	h := newHarness(t, nil)
	_ = h.m.Join(context.Background(), "relay:1", "room")
	relay := h.relaySession()
	_ = h.m.Close()
	_ = h.m.Close()
	if relay.closed.Load() != 1 {
		t.Errorf("relay closed %d times", relay.closed.Load())
	}
	if err := h.m.Join(context.Background(), "relay:1", "room"); err != ErrClosed {
		t.Errorf("Join() after Close = %v, want ErrClosed", err)
	}
}
