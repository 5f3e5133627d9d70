package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/kingctan/sharedpainter/pkg/paint"
	"github.com/kingctan/sharedpainter/pkg/protocol"
)

type fakePainter struct {
	tasks []*paint.Task
	chats []string
	calls []string
}

func (f *fakePainter) SelfID() string { return "alice" }

func (f *fakePainter) SubmitLocalTask(t *paint.Task) error {
	f.tasks = append(f.tasks, t)
	return nil
}

func (f *fakePainter) SendChatMessage(m string) error {
	f.chats = append(f.chats, m)
	return nil
}

func (f *fakePainter) SendBroadcastText(m string) error {
	f.calls = append(f.calls, "shout "+m)
	return nil
}

func (f *fakePainter) ChangeNickName(n string) error {
	f.calls = append(f.calls, "nick "+n)
	return nil
}

func (f *fakePainter) Undo() error        { f.calls = append(f.calls, "undo"); return nil }
func (f *fakePainter) Redo() error        { f.calls = append(f.calls, "redo"); return nil }
func (f *fakePainter) ClearScreen() error { f.calls = append(f.calls, "clear"); return nil }

func (f *fakePainter) SeekTo(n int) error {
	f.calls = append(f.calls, "seek "+strings.Repeat("|", n))
	return nil
}

func (f *fakePainter) SetGridLine(n int) error {
	f.calls = append(f.calls, "grid "+strings.Repeat("|", n))
	return nil
}

func TestConsoleCommands(t *testing.T) {
	tests := []struct {
		line  string
		calls []string
	}{
		{"/undo", []string{"undo"}},
		{"/redo", []string{"redo"}},
		{"/clear", []string{"clear"}},
		{"/nick Alice Liddell", []string{"nick Alice Liddell"}},
		{"/shout lunch", []string{"shout lunch"}},
		{"/seek 2", []string{"seek ||"}},
		{"/grid 3", []string{"grid |||"}},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			f := &fakePainter{}
			c := &console{p: f, out: &bytes.Buffer{}}
			if err := c.exec(tt.line); err != nil {
				t.Fatalf("exec(%q) error = %v", tt.line, err)
			}
			if strings.Join(f.calls, ";") != strings.Join(tt.calls, ";") {
				t.Errorf("calls = %v, want %v", f.calls, tt.calls)
			}
		})
	}
}

func TestConsoleUsageErrors(t *testing.T) {
	for _, line := range []string{"/nick", "/seek", "/seek x", "/line 1 2 3", "/move 1", "/remove", "/bogus"} {
		f := &fakePainter{}
		c := &console{p: f, out: &bytes.Buffer{}}
		if err := c.exec(line); err == nil {
			t.Errorf("exec(%q) succeeded, want error", line)
		}
		if len(f.calls)+len(f.tasks) != 0 {
			t.Errorf("exec(%q) reached the painter", line)
		}
	}
}

func TestConsoleDrawing(t *testing.T) {
	f := &fakePainter{}
	items := map[paint.ItemKey]*paint.Item{}
	c := &console{
		p:      f,
		out:    &bytes.Buffer{},
		nextID: 4,
		find: func(k paint.ItemKey) (*paint.Item, bool) {
			it, ok := items[k]
			return it, ok
		},
	}

	if err := c.exec("/line 10 20 30 40"); err != nil {
		t.Fatalf("line: %v", err)
	}
	if len(f.tasks) != 1 || f.tasks[0].Kind != paint.TaskCreate {
		t.Fatalf("tasks = %v, want one create", f.tasks)
	}
	created := f.tasks[0].Item
	if created.Key != (paint.ItemKey{Owner: "alice", ID: 5}) || created.X != 10 || created.Y != 20 {
		t.Errorf("created item = %+v", created)
	}
	items[created.Key] = created

	if err := c.exec("/move 5 50 60"); err != nil {
		t.Fatalf("move: %v", err)
	}
	mv := f.tasks[1]
	if mv.Kind != paint.TaskMove || mv.FromX != 10 || mv.FromY != 20 || mv.ToX != 50 || mv.ToY != 60 {
		t.Errorf("move task = %+v", mv)
	}

	if err := c.exec("/move 9 1 1"); err == nil {
		t.Error("moving an unknown item succeeded")
	}
	if err := c.exec("/remove 5"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if f.tasks[2].Kind != paint.TaskRemove {
		t.Errorf("task = %v, want remove", f.tasks[2].Kind)
	}
}

func TestConsoleRun(t *testing.T) {
	f := &fakePainter{}
	out := &bytes.Buffer{}
	c := &console{p: f, out: out}

	in := strings.NewReader("hello\n\n/undo\n/nope\n/quit\nafter quit\n")
	if err := c.run(context.Background(), in); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(f.chats) != 1 || f.chats[0] != "hello" {
		t.Errorf("chats = %v, want [hello]", f.chats)
	}
	if !strings.Contains(out.String(), "unknown command /nope") {
		t.Errorf("output = %q, want unknown command error", out.String())
	}
}

func TestLastOwnItemID(t *testing.T) {
	items := []*paint.Item{
		{Key: paint.ItemKey{Owner: "alice", ID: 3}},
		{Key: paint.ItemKey{Owner: "bob", ID: 9}},
		{Key: paint.ItemKey{Owner: "alice", ID: 7}},
	}
	if got := lastOwnItemID(items, "alice"); got != 7 {
		t.Errorf("lastOwnItemID = %d, want 7", got)
	}
}

func TestInspect(t *testing.T) {
	blob := protocol.Concat(
		protocol.Make(protocol.NewVersionInfo("1.2.3")),
		protocol.Make(&protocol.HistoryUserList{Users: []*paint.User{{ID: "alice", NickName: "Alice"}}}),
		protocol.Make(&protocol.CreateItem{Item: &paint.Item{Key: paint.ItemKey{Owner: "alice", ID: 1}, Type: paint.ItemLine}}),
		protocol.Make(&protocol.TaskExecute{Task: paint.NewRemoveTask(paint.ItemKey{Owner: "alice", ID: 1})}),
		protocol.Make(&protocol.TaskExecute{Task: paint.NewRemoveTask(paint.ItemKey{Owner: "alice", ID: 1})}),
	)

	var out bytes.Buffer
	if err := inspect(&out, blob); err != nil {
		t.Fatalf("inspect: %v", err)
	}
	for _, want := range []string{"app 1.2.3", "4 packets", "painter Alice (alice)", "TaskExecute"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}

	if err := inspect(&out, []byte("junk")); err == nil {
		t.Error("inspect of junk succeeded")
	}
}
