package tasklog

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/kingctan/sharedpainter/pkg/paint"
)

// Log errors.
var (
	ErrOutOfRange  = errors.New("tasklog: seek target out of range")
	ErrTaskRefused = errors.New("tasklog: task refused to execute")
	ErrBusy        = errors.New("tasklog: a seek or execution is running")
)

// Poster runs callbacks on the presentation context.
type Poster interface {
	Post(fn func()) bool
}

// Hooks are called as the log applies and reverts tasks. Executed and
// RolledBack run synchronously on the calling goroutine without the log
// lock held; TaskAdded and PositionChanged are handed to the Poster.
//
// Only one Submit or SeekTo executes tasks at a time. A hook may call
// Submit; it must not call Clear.
type Hooks struct {
	// Executed is called after a task was applied to the scene. send is
	// true the first time the task is executed on this peer.
	Executed func(index int, t *paint.Task, send bool)

	// RolledBack is called after a task was reverted.
	RolledBack func(index int, t *paint.Task)

	// TaskAdded is called after every Submit with the new task count and
	// whether the log is in playback.
	TaskAdded func(count int, playback bool)

	// PositionChanged is called after a seek moved the cursor.
	PositionChanged func(position, count int)
}

// Option configures a Manager.
type Option func(*Manager)

// WithHooks sets the task hooks.
func WithHooks(h Hooks) Option {
	return func(m *Manager) { m.hooks = h }
}

// WithPoster sets where notifications are delivered. Without one they are
// called inline.
func WithPoster(p Poster) Option {
	return func(m *Manager) { m.poster = p }
}

// WithScene makes the log act on an existing scene.
func WithScene(s *Scene) Option {
	return func(m *Manager) {
		if s != nil {
			m.scene = s
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// Manager is the operation log.
//
// Invariant: -1 <= PlayPosition() <= MaxPlayPosition() < Len().
// Tasks are executed strictly in log order and rolled back in exact
// reverse order, one at a time.
type Manager struct {
	mu         sync.Mutex
	idle       *sync.Cond
	tasks      []*paint.Task
	playPos    int
	maxPlayPos int
	seeking    bool

	// draining is set while a Submit executes. Tasks appended meanwhile
	// keep their send flags in queued and run in the same Submit.
	draining bool
	queued   []bool

	scene  *Scene
	hooks  Hooks
	poster Poster
	logger *slog.Logger
}

// New creates an empty log.
func New(opts ...Option) *Manager {
	m := &Manager{
		playPos:    -1,
		maxPlayPos: -1,
		scene:      NewScene(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.idle = sync.NewCond(&m.mu)
	m.logger = m.logger.With("component", "tasklog")
	return m
}

// Scene returns the item set the log acts on.
func (m *Manager) Scene() *Scene {
	return m.scene
}

// Submit appends t. If the cursor is at the end of the log and no seek is
// running, the cursor advances and t is executed with the given send flag.
// Otherwise t is only queued and Submit returns nil.
//
// When another Submit is executing, t runs in that call right after the
// tasks before it, and a refusal is only logged.
func (m *Manager) Submit(t *paint.Task, send bool) error {
	m.mu.Lock()
	m.tasks = append(m.tasks, t)
	index := len(m.tasks) - 1
	count := len(m.tasks)
	if m.draining {
		m.queued = append(m.queued, send)
		m.mu.Unlock()
		m.taskAdded(count, false)
		return nil
	}
	if m.seeking || m.playPos != index-1 {
		m.mu.Unlock()
		m.taskAdded(count, true)
		return nil
	}
	m.draining = true
	m.mu.Unlock()

	m.taskAdded(count, false)
	return m.drain(index, t, send)
}

// drain executes t at index and then every task queued behind it. The
// caller has set draining.
func (m *Manager) drain(index int, t *paint.Task, send bool) error {
	var first error
	m.mu.Lock()
	for n := 0; ; n++ {
		m.playPos = index
		if index > m.maxPlayPos {
			m.maxPlayPos = index
		}
		m.mu.Unlock()

		err := m.execute(index, t, send)
		if n == 0 {
			first = err
		}

		m.mu.Lock()
		if len(m.queued) == 0 {
			break
		}
		index = len(m.tasks) - len(m.queued)
		t, send = m.tasks[index], m.queued[0]
		m.queued = m.queued[1:]
	}
	m.draining = false
	m.queued = nil
	m.idle.Broadcast()
	m.mu.Unlock()
	return first
}

// SeekTo moves the cursor to target. Moving forward executes every task up
// to and including target; moving backward rolls back every task after
// target, newest first. Targets outside [-1, Len()-1] leave the log
// untouched and return ErrOutOfRange. A seek started while another seek or
// a Submit is executing returns ErrBusy.
//
// A refused task during forward replay does not stop the replay; the first
// refusal is returned once the cursor has reached target.
func (m *Manager) SeekTo(target int) error {
	m.mu.Lock()
	if m.seeking || m.draining {
		m.mu.Unlock()
		return ErrBusy
	}
	if target < -1 || target >= len(m.tasks) {
		n := len(m.tasks)
		m.mu.Unlock()
		return fmt.Errorf("%w: %d not in [-1, %d]", ErrOutOfRange, target, n-1)
	}
	from := m.playPos
	if target == from {
		m.mu.Unlock()
		return nil
	}
	m.seeking = true
	tasks := m.tasks
	frontier := m.maxPlayPos
	m.mu.Unlock()

	var firstErr error
	if target > from {
		m.logger.Debug("replay", "from", from, "to", target, "frontier", frontier)
		for i := from + 1; i <= target; i++ {
			if err := m.execute(i, tasks[i], i > frontier); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	} else {
		m.logger.Debug("rollback", "from", from, "to", target)
		for i := from; i > target; i-- {
			m.scene.rollback(tasks[i])
			if fn := m.hooks.RolledBack; fn != nil {
				fn(i, tasks[i])
			}
		}
	}

	m.mu.Lock()
	m.playPos = target
	if target > m.maxPlayPos {
		m.maxPlayPos = target
	}
	m.seeking = false
	m.idle.Broadcast()
	count := len(m.tasks)
	m.mu.Unlock()

	if fn := m.hooks.PositionChanged; fn != nil {
		m.post(func() { fn(target, count) })
	}
	return firstErr
}

// Undo moves the cursor back by one task.
func (m *Manager) Undo() error {
	return m.SeekTo(m.PlayPosition() - 1)
}

// Redo moves the cursor forward by one task.
func (m *Manager) Redo() error {
	return m.SeekTo(m.PlayPosition() + 1)
}

// Clear drops every task and every item. It waits for a running seek or
// Submit to finish.
func (m *Manager) Clear() {
	m.mu.Lock()
	for m.seeking || m.draining {
		m.idle.Wait()
	}
	m.tasks = nil
	m.playPos = -1
	m.maxPlayPos = -1
	m.scene.Clear()
	m.mu.Unlock()

	m.taskAdded(0, false)
}

// Tasks returns the tasks in log order.
func (m *Manager) Tasks() []*paint.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*paint.Task(nil), m.tasks...)
}

// Len returns the number of tasks.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

// PlayPosition returns the cursor index, -1 before the first task.
func (m *Manager) PlayPosition() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.playPos
}

// MaxPlayPosition returns the frontier.
func (m *Manager) MaxPlayPosition() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxPlayPos
}

// InPlayback reports whether the cursor is behind the end of the log or a
// seek is running.
func (m *Manager) InPlayback() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seeking || (!m.draining && m.playPos != len(m.tasks)-1)
}

func (m *Manager) execute(index int, t *paint.Task, send bool) error {
	if err := m.scene.execute(t); err != nil {
		m.logger.Warn("task refused",
			"index", index,
			"kind", t.Kind.String(),
			"error", err)
		return fmt.Errorf("%w: #%d %s: %w", ErrTaskRefused, index, t.Kind, err)
	}
	if fn := m.hooks.Executed; fn != nil {
		fn(index, t, send)
	}
	return nil
}

func (m *Manager) taskAdded(count int, playback bool) {
	if fn := m.hooks.TaskAdded; fn != nil {
		m.post(func() { fn(count, playback) })
	}
}

func (m *Manager) post(fn func()) {
	if m.poster == nil {
		fn()
		return
	}
	m.poster.Post(fn)
}
