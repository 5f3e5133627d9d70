// Package snapshot persists full-state blobs produced by the paint manager.
//
// A blob is the exported canvas state: a version-info packet followed by
// the window, background, history, item and task packets. Stores treat it
// as opaque bytes keyed by name.
//
//	store, err := snapshot.Open(ctx, "bolt:///var/lib/sharedpaint/autosave.db")
//	// or "file:///home/me/paintings", "redis://localhost:6379/0",
//	// "postgres://user:pw@host/db", "s3://bucket/prefix?region=eu-west-1",
//	// "memory:"
//
// Autosaver periodically writes the current state to a store.
package snapshot
