package store

import "errors"

var (
	// ErrUnknownCollection is returned for names outside the store's layout.
	ErrUnknownCollection = errors.New("unknown collection")
	// ErrWrongShape is returned when a keyed operation targets an
	// append-only collection or the other way round.
	ErrWrongShape = errors.New("operation not supported by collection shape")
	// ErrInvalidID is returned when a keyed document's id is not a
	// non-empty string, or an update tries to change it.
	ErrInvalidID = errors.New("invalid document id")
	// ErrPersist wraps snapshot write failures. The in-memory change that
	// triggered the write has already been applied.
	ErrPersist = errors.New("persisting snapshot")
	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("store is closed")
)
