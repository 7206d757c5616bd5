package livetableservice

import "errors"

var (
	// ErrSessionExists is returned when Join reuses a live session id.
	ErrSessionExists = errors.New("session already joined")

	// ErrUnknownSession is returned by Leave for sessions that never joined.
	ErrUnknownSession = errors.New("unknown session")

	// ErrStopped is returned once the coordinator has shut down.
	ErrStopped = errors.New("coordinator stopped")

	// ErrAlreadyStarted guards against a second Start.
	ErrAlreadyStarted = errors.New("coordinator already started")

	// ErrMissingAdminSigner is fatal at start when the table is enabled.
	ErrMissingAdminSigner = errors.New("live table requires an admin signer")
)
