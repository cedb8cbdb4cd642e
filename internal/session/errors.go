// Package session implements the concurrent session layer: client
// sessions, the invitation state machine that binds two sessions into a
// shared game, and the client registry that tracks the live session set
// and drives graceful shutdown.
package session

import "errors"

// Sentinel errors for the session-layer taxonomy. Every one of
// these collapses to a NACK reply at the dispatch boundary; none of them
// is fatal to the server process.
var (
	ErrNotLoggedIn     = errors.New("session: not logged in")
	ErrAlreadyLoggedIn = errors.New("session: already logged in")
	ErrNameInUse       = errors.New("session: name in use")
	ErrUnknownID       = errors.New("session: unknown invitation id")
	ErrWrongSide       = errors.New("session: wrong side")
	ErrWrongState      = errors.New("session: wrong invitation state")
	ErrNoGame          = errors.New("session: no game in progress")
	ErrCapacity        = errors.New("session: registry at capacity")
)
