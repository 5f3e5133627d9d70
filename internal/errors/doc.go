// Package errors provides coded, actionable errors for SharedPaint.
//
// Every user-visible failure has a code (e.g. "E204") that maps to a short
// message, a longer explanation and, where one exists, a hint. Codes are
// grouped by category:
//
//   - protocol (E200-E202): version mismatch, bad state blobs, bad packets
//   - network (E203, E206): connect failures, missing connections
//   - sync (E204): full-state transfer problems
//   - task (E205): tasks that refused to execute
//   - config (E120-E149): configuration file problems
//   - storage (E300-E309): snapshot store failures
//
// # Usage
//
//	err := errors.New("E204").
//	    WithDetail("no SYNC_START from the super-peer within 5s").
//	    Wrap(cause)
//
//	fmt.Println(err.Format())
//	// Output:
//	// ERROR E204: Sync start timeout
//	//
//	//   no SYNC_START from the super-peer within 5s
//	//
//	//   Hint: Check that the super-peer is reachable and join again.
//
// Errors compare by code, so errors.Is(err, errors.New("E204")) reports
// whether err carries E204 anywhere in its chain.
package errors
