// Package kv wraps go.etcd.io/bbolt with the safe-resize and snapshot
// contract the chain database needs: commits do not block on an fsync
// (Persist flushes explicitly, on the writer's own cadence), and a resize
// check runs after every write so growth is observed rather than left to
// surprise a writer mid-commit.
package kv

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/Liqwid-Labs/hydrant/pkg/log"
	"github.com/Liqwid-Labs/hydrant/pkg/metrics"
)

// minFreeSpace and maxFreeSpace bound the free-space window ConsiderResize
// targets: resize is warranted once free space drops below minFreeSpace or
// balloons past maxFreeSpace (an indication the file was over-grown and we
// should stop growing so eagerly). bbolt performs the actual mmap growth
// internally; these thresholds only gate the observability/logging pass.
const (
	minFreeSpace = 1024 * 1024 * 1024     // 1GiB
	maxFreeSpace = 2 * 1024 * 1024 * 1024 // 2GiB
)

// Env owns the bbolt database handle and the resize lock that excludes
// readers/writers while a resize decision is being made.
type Env struct {
	db       *bolt.DB
	path     string
	pageSize int

	resizeMu sync.RWMutex // held for read during normal txns, for write during ConsiderResize

	dbsMu sync.Mutex
	dbs   map[string]struct{}
}

// Open creates or opens a bbolt-backed environment at path. NoSync defers
// fsyncs to explicit Persist calls, matching a single-writer engine that
// controls its own durability cadence instead of paying an fsync on every
// commit.
func Open(path string) (*Env, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("kv: creating database directory: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{NoSync: true})
	if err != nil {
		return nil, fmt.Errorf("kv: opening database: %w", err)
	}
	return &Env{
		db:       db,
		path:     path,
		pageSize: db.Info().PageSize,
		dbs:      make(map[string]struct{}),
	}, nil
}

// CreateDatabase registers a named sub-table (bbolt bucket), failing with
// ErrDatabaseExists if another caller already claimed that name. Indexers
// call this once at startup to reserve their private tables, so a naming
// collision between two indexers is caught immediately instead of silently
// sharing a bucket.
func (e *Env) CreateDatabase(name string) error {
	e.dbsMu.Lock()
	defer e.dbsMu.Unlock()
	if _, ok := e.dbs[name]; ok {
		return fmt.Errorf("kv: database %q: %w", name, ErrDatabaseExists)
	}
	e.resizeMu.RLock()
	defer e.resizeMu.RUnlock()
	err := e.db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(name))
		return err
	})
	if err != nil {
		return fmt.Errorf("kv: creating database %q: %w", name, err)
	}
	e.dbs[name] = struct{}{}
	return nil
}

// Update runs fn inside a read-write bbolt transaction, holding the resize
// lock for read so a concurrent ConsiderResize cannot interleave with it.
func (e *Env) Update(fn func(*bolt.Tx) error) error {
	e.resizeMu.RLock()
	defer e.resizeMu.RUnlock()
	return e.db.Update(fn)
}

// View runs fn inside a read-only bbolt transaction, under the same resize
// exclusion as Update.
func (e *Env) View(fn func(*bolt.Tx) error) error {
	e.resizeMu.RLock()
	defer e.resizeMu.RUnlock()
	return e.db.View(fn)
}

// ConsiderResize checks the environment's current free-space margin and,
// if it has drifted outside [minFreeSpace, maxFreeSpace], takes the
// exclusive resize lock and records the event. bbolt grows its own mmap on
// demand (doubling up to ~1GiB, then in ~1GiB steps), so there is no manual
// resize call to make here; what this preserves from the original
// LMDB-based engine is the safety contract: while the lock is held no
// reader or writer transaction is in flight, and ErrActiveReadersOnResize
// is returned instead of silently corrupting state if one sneaks in.
func (e *Env) ConsiderResize() error {
	free, current, err := e.freeSpace()
	if err != nil {
		return fmt.Errorf("kv: computing free space: %w", err)
	}
	if free >= minFreeSpace && free <= maxFreeSpace {
		return nil
	}

	e.resizeMu.Lock()
	defer e.resizeMu.Unlock()

	if n := e.db.Stats().OpenTxN; n > 0 {
		metrics.ActiveReaderConflictsTotal.Inc()
		return ErrActiveReadersOnResize
	}

	metrics.ResizeEventsTotal.Inc()
	log.WithComponent("kv").Debug().
		Int64("free_bytes", free).
		Int64("current_bytes", current).
		Msg("considered resize")
	return nil
}

// freeSpace approximates the original engine's used/free split using
// bbolt's freelist page count and the on-disk file size, since bbolt does
// not expose LMDB's "last page number" metric directly.
func (e *Env) freeSpace() (free, current int64, err error) {
	info, statErr := os.Stat(e.path)
	if statErr != nil {
		return 0, 0, statErr
	}
	current = info.Size()
	free = int64(e.db.Stats().FreePageN * e.pageSize)
	return free, current, nil
}

// Persist flushes all committed data to durable storage. Because the
// environment is opened with NoSync, ordinary commits do not pay an fsync;
// the writer calls Persist on its own cadence (at the chain tip, or every N
// blocks) to bound the amount of unsynced work lost on a crash.
func (e *Env) Persist() error {
	e.resizeMu.RLock()
	defer e.resizeMu.RUnlock()
	return e.db.Sync()
}

// snapshotTxMaxSize bounds the size of a single transaction bolt.Compact
// uses while rewriting buckets into the destination file. 64MiB keeps any
// one bucket's compaction transaction well under bbolt's default max.
const snapshotTxMaxSize = 64 * 1024 * 1024

// Snapshot writes a compacted point-in-time copy of the database to path.
// overwrite controls whether an existing file at path is replaced; when
// false and the file exists, Snapshot fails rather than silently clobbering
// a prior snapshot an operator may still need. Compaction rewrites every
// bucket into a fresh file, dropping the free pages bbolt accumulates but
// never returns to the OS, so the snapshot stays at or below the mmap
// high-water mark instead of copying it byte-for-byte.
func (e *Env) Snapshot(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("kv: snapshot path %q already exists", path)
		}
	}

	tmp := path + ".tmp-" + uuid.New().String()
	dst, err := bolt.Open(tmp, 0o600, &bolt.Options{NoSync: true})
	if err != nil {
		return fmt.Errorf("kv: opening snapshot target: %w", err)
	}

	e.resizeMu.RLock()
	err = bolt.Compact(dst, e.db, snapshotTxMaxSize)
	e.resizeMu.RUnlock()

	if closeErr := dst.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("kv: snapshotting database: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("kv: finalizing snapshot: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (e *Env) Close() error {
	return e.db.Close()
}

// Path returns the filesystem path of the underlying database file.
func (e *Env) Path() string { return e.path }
