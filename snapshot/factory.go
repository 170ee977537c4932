package snapshot

import (
	"fmt"
)

// New creates a Sink based on the backend name.
//
// Supported backends:
//
//	"json"   - JSON file at path (default)
//	"sqlite" - SQLite database at path, snapshot stored zstd-compressed
//	"memory" - In-memory (ephemeral, for testing); path is ignored
func New(backend, path string) (Sink, error) {
	switch backend {
	case "json", "":
		return NewFileSink(path)
	case "sqlite":
		return NewSqliteSink(path)
	case "memory":
		return NewMemorySink(), nil
	default:
		return nil, fmt.Errorf("unknown snapshot backend: %q (supported: json, sqlite, memory)", backend)
	}
}
