// Package snapshot defines where the store's single snapshot lives and
// implementations for a JSON file, a SQLite database and memory.
package snapshot

import "errors"

// ErrNotFound is returned by Load when no snapshot has been written yet.
var ErrNotFound = errors.New("snapshot not found")

// Sink reads and writes the whole snapshot as one blob. Save replaces the
// previous snapshot in a single step; a failed Save leaves the previous
// snapshot intact.
type Sink interface {
	// Load returns the last saved snapshot, or ErrNotFound.
	Load() ([]byte, error)

	// Save replaces the snapshot with data.
	Save(data []byte) error

	// Location describes where the snapshot lives, for logging.
	Location() string

	// Close releases resources held by the sink.
	Close() error
}
