package types

import "errors"

var (
	// ErrValidation marks conflicting or missing request options. It is
	// returned synchronously, before any I/O.
	ErrValidation = errors.New("invalid request")
	// ErrStorage marks persistence failures other than "not found".
	ErrStorage = errors.New("storage failure")
	// ErrUnresolved means a discovery key has no locally derivable or stored core.
	ErrUnresolved = errors.New("unresolved discovery key")
	// ErrClose marks aggregated failures while shutting down cores or streams.
	ErrClose = errors.New("close failed")

	ErrInvalidKey   = errors.New("invalid key")
	ErrKeyMismatch  = errors.New("key mismatch")
	ErrNotWritable  = errors.New("core is not writable")
	ErrCoreNotFound = errors.New("core not found")
	ErrClosed       = errors.New("closed")
	ErrLocked       = errors.New("storage is locked by another writer")
)
