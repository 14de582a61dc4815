package hierarchy

import "go.trai.ch/zerr"

var (
	// ErrCorruptFormat is returned by Decode when the byte stream has the wrong
	// version, ends early, or carries malformed indices or identifiers.
	ErrCorruptFormat = zerr.New("corrupt hierarchy format")

	// ErrInvalidIdentifier is returned by Encode when a handle or name would
	// collide with a separator byte.
	ErrInvalidIdentifier = zerr.New("identifier contains a reserved separator")

	// ErrModelAccess wraps a failure to resolve a persisted handle or to load
	// a declaration.
	ErrModelAccess = zerr.New("model access failed")

	// ErrInvalidHandle is returned by ParseHandle.
	ErrInvalidHandle = zerr.New("malformed type handle")
)
