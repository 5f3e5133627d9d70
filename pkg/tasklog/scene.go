package tasklog

import (
	"errors"
	"sync"

	"github.com/kingctan/sharedpainter/pkg/paint"
)

// Scene errors.
var (
	ErrItemNotFound = errors.New("tasklog: item not found")
	ErrUnknownTask  = errors.New("tasklog: unknown task kind")
)

type entry struct {
	item    *paint.Item
	visible bool
}

// Scene is the item set the tasks act on. Items are kept in registration
// order and are never deleted except by Clear; removal only hides them.
type Scene struct {
	mu    sync.RWMutex
	items map[paint.ItemKey]*entry
	order []paint.ItemKey
}

// NewScene returns an empty scene.
func NewScene() *Scene {
	return &Scene{items: make(map[paint.ItemKey]*entry)}
}

// AddItem registers item as visible. It returns false if an item with the
// same key already exists, in which case the scene is unchanged.
func (s *Scene) AddItem(item *paint.Item) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addLocked(item)
}

func (s *Scene) addLocked(item *paint.Item) bool {
	if _, ok := s.items[item.Key]; ok {
		return false
	}
	s.items[item.Key] = &entry{item: item.Clone(), visible: true}
	s.order = append(s.order, item.Key)
	return true
}

// Find returns a copy of the item with key.
func (s *Scene) Find(key paint.ItemKey) (*paint.Item, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.items[key]
	if !ok {
		return nil, false
	}
	return e.item.Clone(), true
}

// IsVisible reports whether the item with key exists and is shown.
func (s *Scene) IsVisible(key paint.ItemKey) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.items[key]
	return ok && e.visible
}

// Items returns copies of every registered item in registration order,
// hidden ones included.
func (s *Scene) Items() []*paint.Item {
	return s.collect(false)
}

// Visible returns copies of the items currently shown.
func (s *Scene) Visible() []*paint.Item {
	return s.collect(true)
}

func (s *Scene) collect(visibleOnly bool) []*paint.Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*paint.Item, 0, len(s.order))
	for _, k := range s.order {
		e := s.items[k]
		if visibleOnly && !e.visible {
			continue
		}
		out = append(out, e.item.Clone())
	}
	return out
}

// VisibleKeys returns the keys of the items currently shown, in order.
// It is what a local "clear screen" task records.
func (s *Scene) VisibleKeys() []paint.ItemKey {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []paint.ItemKey
	for _, k := range s.order {
		if s.items[k].visible {
			keys = append(keys, k)
		}
	}
	return keys
}

// Len returns the number of registered items.
func (s *Scene) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Clear drops every item.
func (s *Scene) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[paint.ItemKey]*entry)
	s.order = nil
}

// execute applies t. Values are absolute, so applying a task twice leaves
// the same state as applying it once.
func (s *Scene) execute(t *paint.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch t.Kind {
	case paint.TaskCreate:
		if t.Item == nil {
			return ErrItemNotFound
		}
		if !s.addLocked(t.Item) {
			e := s.items[t.Item.Key]
			e.item.X, e.item.Y = t.Item.X, t.Item.Y
			e.visible = true
		}
		return nil

	case paint.TaskMove:
		e, ok := s.items[t.Key]
		if !ok {
			return ErrItemNotFound
		}
		e.item.X, e.item.Y = t.ToX, t.ToY
		return nil

	case paint.TaskUpdate:
		e, ok := s.items[t.Key]
		if !ok {
			return ErrItemNotFound
		}
		e.item.Data = append([]byte(nil), t.Next...)
		return nil

	case paint.TaskRemove:
		e, ok := s.items[t.Key]
		if !ok {
			return ErrItemNotFound
		}
		e.visible = false
		return nil

	case paint.TaskClear:
		for _, k := range t.Keys {
			if e, ok := s.items[k]; ok {
				e.visible = false
			}
		}
		return nil
	}
	return ErrUnknownTask
}

// rollback reverts t. Items that no longer exist are skipped.
func (s *Scene) rollback(t *paint.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch t.Kind {
	case paint.TaskCreate:
		if e, ok := s.items[t.Key]; ok {
			e.visible = false
		}
	case paint.TaskMove:
		if e, ok := s.items[t.Key]; ok {
			e.item.X, e.item.Y = t.FromX, t.FromY
		}
	case paint.TaskUpdate:
		if e, ok := s.items[t.Key]; ok {
			e.item.Data = append([]byte(nil), t.Prev...)
		}
	case paint.TaskRemove:
		if e, ok := s.items[t.Key]; ok {
			e.visible = true
		}
	case paint.TaskClear:
		for _, k := range t.Keys {
			if e, ok := s.items[k]; ok {
				e.visible = true
			}
		}
	}
}
