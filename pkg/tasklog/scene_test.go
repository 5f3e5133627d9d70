package tasklog

import (
	"bytes"
	"testing"

	"github.com/kingctan/sharedpainter/pkg/paint"
)

func TestSceneAddItem(t *testing.T) {
	s := NewScene()
	a := &paint.Item{Key: paint.ItemKey{Owner: "a", ID: 1}, Type: paint.ItemText}
	b := &paint.Item{Key: paint.ItemKey{Owner: "b", ID: 1}, Type: paint.ItemLine}

	if !s.AddItem(a) || !s.AddItem(b) {
		t.Fatal("AddItem() rejected a new key")
	}
	if s.AddItem(a) {
		t.Error("AddItem() accepted a duplicate key")
	}

	items := s.Items()
	if len(items) != 2 || items[0].Key != a.Key || items[1].Key != b.Key {
		t.Errorf("Items() = %v", items)
	}

	// Returned items are copies.
	items[0].X = 99
	if got, _ := s.Find(a.Key); got.X != 0 {
		t.Error("Items() exposed internal state")
	}
}

func TestSceneTasks(t *testing.T) {
	key := paint.ItemKey{Owner: "a", ID: 1}
	other := paint.ItemKey{Owner: "a", ID: 2}

	tests := []struct {
		name  string
		task  *paint.Task
		check func(t *testing.T, s *Scene, applied bool)
	}{
		{
			name: "update",
			task: paint.NewUpdateTask(key, []byte("v1"), []byte("v2")),
			check: func(t *testing.T, s *Scene, applied bool) {
				it, _ := s.Find(key)
				want := []byte("v1")
				if applied {
					want = []byte("v2")
				}
				if !bytes.Equal(it.Data, want) {
					t.Errorf("Data = %q, want %q", it.Data, want)
				}
			},
		},
		{
			name: "remove",
			task: paint.NewRemoveTask(key),
			check: func(t *testing.T, s *Scene, applied bool) {
				if s.IsVisible(key) == applied {
					t.Errorf("IsVisible() = %v with applied=%v", s.IsVisible(key), applied)
				}
			},
		},
		{
			name: "clear",
			task: paint.NewClearTask([]paint.ItemKey{key, other, {Owner: "gone", ID: 1}}),
			check: func(t *testing.T, s *Scene, applied bool) {
				n := len(s.Visible())
				if applied && n != 0 || !applied && n != 2 {
					t.Errorf("visible = %d with applied=%v", n, applied)
				}
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := NewScene()
			s.AddItem(&paint.Item{Key: key, Data: []byte("v1")})
			s.AddItem(&paint.Item{Key: other})

			if err := s.execute(tc.task); err != nil {
				t.Fatalf("execute() error = %v", err)
			}
			tc.check(t, s, true)
			s.rollback(tc.task)
			tc.check(t, s, false)
		})
	}
}

func TestSceneUnknownTask(t *testing.T) {
	s := NewScene()
	if err := s.execute(&paint.Task{Kind: 0x7F}); err != ErrUnknownTask {
		t.Errorf("execute() error = %v, want ErrUnknownTask", err)
	}
}
