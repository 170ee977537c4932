package snapshot

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// snapshotName is the row key of the store snapshot.
const snapshotName = "store"

// SqliteSink stores the snapshot as a zstd-compressed blob in a SQLite
// database. Each Save is a single upsert, so SQLite's journal provides the
// atomic replace.
//
// Tables:
//
//	snapshots(name, data, updated_at)  PRIMARY KEY (name)
type SqliteSink struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
	enc  *zstd.Encoder
	dec  *zstd.Decoder
}

func NewSqliteSink(dbPath string) (*SqliteSink, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS snapshots (
		name TEXT PRIMARY KEY,
		data BLOB NOT NULL,
		updated_at TEXT NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		db.Close()
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}
	return &SqliteSink{db: db, path: dbPath, enc: enc, dec: dec}, nil
}

func (s *SqliteSink) Load() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var blob []byte
	err := s.db.QueryRow("SELECT data FROM snapshots WHERE name = ?", snapshotName).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	data, err := s.dec.DecodeAll(blob, nil)
	if err != nil {
		return nil, fmt.Errorf("decompressing snapshot: %w", err)
	}
	return data, nil
}

func (s *SqliteSink) Save(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	blob := s.enc.EncodeAll(data, nil)
	_, err := s.db.Exec(
		`INSERT INTO snapshots (name, data, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		snapshotName, blob, time.Now().UTC().Format(time.RFC3339Nano),
	)
	return err
}

func (s *SqliteSink) Location() string { return "sqlite:" + s.path }

func (s *SqliteSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dec.Close()
	_ = s.enc.Close()
	return s.db.Close()
}
