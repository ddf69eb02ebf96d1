// Package history owns the listening-history database: the normalized
// artist/album/track tables, the listen log, and the Last.fm retry queue.
package history

import (
	"database/sql"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite" // SQLite driver

	dbutil "github.com/llehouerou/mpsd/internal/db"
	"github.com/llehouerou/mpsd/internal/errmsg"
	"github.com/llehouerou/mpsd/internal/logging"
)

// Store is the sole reader and writer of the history database.
type Store struct {
	db    *sql.DB
	path  string
	log   logrus.FieldLogger
	clock clockwork.Clock
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the sink for store diagnostics.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Store) { s.log = l }
}

// WithClock sets the clock used to timestamp listens.
func WithClock(c clockwork.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// Open opens the database at path. A missing file is created along with
// its directory and the history tables; an existing file is used as-is.
func Open(path string, opts ...Option) (*Store, error) {
	s := &Store{
		path:  path,
		log:   logging.Discard(),
		clock: clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(s)
	}

	fresh := false
	if _, err := os.Stat(path); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, errmsg.Persistence(errmsg.OpOpenStore, err)
		}
		fresh = true
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errmsg.Persistence(errmsg.OpOpenStore, err)
		}
	}

	db, err := sql.Open("sqlite", dbutil.DSN(path))
	if err != nil {
		return nil, errmsg.Persistence(errmsg.OpOpenStore, err)
	}
	// Single writer on a single goroutine.
	db.SetMaxOpenConns(1)

	if fresh {
		if err := createSchema(db); err != nil {
			db.Close()
			return nil, errmsg.Persistence(errmsg.OpOpenStore, err)
		}
		s.log.WithField("path", path).Info("created history database")
	}
	if err := ensureAuxSchema(db); err != nil {
		db.Close()
		return nil, errmsg.Persistence(errmsg.OpOpenStore, err)
	}

	s.db = db
	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// DB returns the underlying database handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Close() error {
	return s.db.Close()
}
