// Package session maps users to the transport sessions that reach them.
//
// The Registry holds three kinds of entries:
//
//   - peer sessions, keyed by session id and, once the remote user is
//     known, by user id
//   - the relay session, at most one
//   - UDP stream sessions, keyed by remote user id, kept apart from the
//     control sessions because a user may have both at once
//
// Users reference sessions only by id. The registry never owns user
// state, and closing a session is the caller's decision except for
// CloseAll.
package session
