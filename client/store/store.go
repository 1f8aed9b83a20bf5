// Package store persists captured profiler events to SQLite, using the
// schema and pragma tuning from the client this was ported from: a
// write-heavy, single-writer workload where durability is traded for
// ingest throughput since the capture can always be re-run.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/heapcap/heapcap"
)

// EventKind discriminates the Events table's rows; spec.md's wire
// protocol only has ALLOC and FREE, so one table with a kind column
// replaces the original's implicit event_type_id convention.
type EventKind int

const (
	EventAlloc EventKind = 1
	EventFree  EventKind = 2
)

// Event is one row of the Events table.
type Event struct {
	EventID     int64
	Kind        EventKind
	TypeID      sql.NullInt64
	Address     uint64
	Size        sql.NullInt64
	Frame       uint64
	CallstackID sql.NullInt64
}

// FrameStat is one row of the FrameStats table.
type FrameStat struct {
	Frame  uint64
	Allocs uint64
	Frees  uint64
	Size   int64
}

// Store wraps a SQLite database holding one capture's events, frame
// statistics, and intern dictionaries.
type Store struct {
	db *sql.DB
}

// pragmas mirror the client's own tuning: no journal durability and no
// fsync between writes, because a corrupted capture is simply re-run
// rather than recovered, and a large page cache since captures are
// expected to mostly fit in memory during ingest.
var pragmas = []string{
	"PRAGMA journal_mode=MEMORY",
	"PRAGMA synchronous=OFF",
	"PRAGMA page_size=65536",
	"PRAGMA cache_size=32768", // 2GiB / 64KiB page size, in pages
}

func open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite with one writer; avoid concurrent-connection lock contention

	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: pragma %q: %w", p, err)
		}
	}

	if err := upgrade(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}

	return &Store{db: db}, nil
}

// NewCapture creates a fresh database at path for a new capture session,
// removing any existing file first: a capture always starts from a clean
// slate rather than appending to a stale one.
func NewCapture(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("store: remove existing %s: %w", path, err)
		}
	}
	return open(path)
}

// Open opens an existing capture database for querying, applying any
// migrations it predates.
func Open(path string) (*Store, error) {
	return open(path)
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying *sql.DB for callers that need to manage
// their own transactions (the ingestor's frame-batched commits).
func (s *Store) DB() *sql.DB {
	return s.db
}

// Save performs a durable-file backup of the store's current contents to
// path using SQLite's online backup API, the same mechanism the original
// client's persistent_storage::save used (sqlite3_backup_init/_step/
// _finish) to copy an in-memory capture out to disk without stopping
// ingestion first. Any existing file at path is removed before the copy,
// matching that original behavior.
func (s *Store) Save(path string) error {
	if path == "" || path == ":memory:" {
		return heapcap.NewError("Store.Save", heapcap.KindStore, "save target must be a real file path")
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return heapcap.NewError("Store.Save", heapcap.KindStore, fmt.Sprintf("remove existing %s: %v", path, err))
	}

	dest, err := sql.Open("sqlite3", path)
	if err != nil {
		return heapcap.NewError("Store.Save", heapcap.KindStore, fmt.Sprintf("open backup target %s: %v", path, err))
	}
	defer dest.Close()
	dest.SetMaxOpenConns(1)

	ctx := context.Background()
	srcConn, err := s.db.Conn(ctx)
	if err != nil {
		return heapcap.NewError("Store.Save", heapcap.KindStore, fmt.Sprintf("acquire source connection: %v", err))
	}
	defer srcConn.Close()

	destConn, err := dest.Conn(ctx)
	if err != nil {
		return heapcap.NewError("Store.Save", heapcap.KindStore, fmt.Sprintf("acquire backup connection: %v", err))
	}
	defer destConn.Close()

	err = destConn.Raw(func(rawDest interface{}) error {
		return srcConn.Raw(func(rawSrc interface{}) error {
			destSQLite, ok := rawDest.(*sqlite3.SQLiteConn)
			if !ok {
				return fmt.Errorf("backup destination is not a SQLiteConn")
			}
			srcSQLite, ok := rawSrc.(*sqlite3.SQLiteConn)
			if !ok {
				return fmt.Errorf("backup source is not a SQLiteConn")
			}
			b, err := destSQLite.Backup("main", srcSQLite, "main")
			if err != nil {
				return fmt.Errorf("init backup: %w", err)
			}
			done, err := b.Step(-1)
			if err != nil {
				b.Finish()
				return fmt.Errorf("backup step: %w", err)
			}
			if !done {
				b.Finish()
				return fmt.Errorf("backup did not finish in one step")
			}
			return b.Finish()
		})
	})
	if err != nil {
		return heapcap.WrapError("Store.Save", err)
	}

	return s.verifyBackup(path)
}

// verifyBackup reopens the backup target fresh and confirms the schema
// landed: a read-after-write sanity check before the caller is told the
// backup is durable. Nothing here or in Open/NewCapture detects a capture
// being resumed concurrently against a path a Save just targeted.
func (s *Store) verifyBackup(path string) error {
	verify, err := sql.Open("sqlite3", path)
	if err != nil {
		return heapcap.NewError("Store.Save", heapcap.KindStore, fmt.Sprintf("reopen backup target for verification: %v", err))
	}
	defer verify.Close()

	var name string
	if err := verify.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name='Events'`).Scan(&name); err != nil {
		return heapcap.NewError("Store.Save", heapcap.KindStore, fmt.Sprintf("backup verification: Events table missing: %v", err))
	}
	return nil
}
