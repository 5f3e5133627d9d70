// Package tasklog implements the shared operation log and its playback
// cursor.
//
// The log is an append-only slice of paint tasks. Two indices track it:
//
//   - the play position, the last task currently applied to the Scene
//   - the frontier (max play position), the highest index ever executed
//
// Submit appends and, unless the cursor is behind the end of the log,
// executes the new task. SeekTo moves the cursor: forward by executing
// tasks, backward by rolling them back in exact reverse order. A task is
// executed with send=true only the first time the cursor passes it, so
// local undo/redo never re-announces work to other peers.
//
// Task callbacks run without the log lock held. A Submit issued while a
// seek is in progress is appended but not executed, exactly as if the
// cursor were behind the end of the log.
package tasklog
