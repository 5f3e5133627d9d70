// Package paintmgr coordinates a painter with the rest of its channel.
//
// A Manager owns the operation log, the user roster and the session
// registry. Every packet read by any session is handed to a single
// reactor goroutine, which switches on the packet code, mutates the log,
// roster or registry, and posts observer notifications to the
// presentation loop. Observers are therefore never called from a network
// goroutine and never race with protocol state.
//
// Topology: a peer joins through a relay (Join) or straight to another
// peer's server (ConnectToPeer). The relay or the serving peer names a
// super-peer; every other member connects to it directly and sends its
// traffic there, and the super-peer forwards broadcastable packets to the
// rest. Without a super-peer, traffic goes through the relay.
//
// A member that joins an existing channel asks for the full state once
// (SYNC_REQUEST). If SYNC_START does not arrive within Config.SyncTimeout
// every session is closed and the join is reported as failed (E204). The
// sync is not retried.
package paintmgr
