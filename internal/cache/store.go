// Package cache provides a persistent tile cache backed by SQLite. It stores
// fetched DEM tile bytes with an absolute expiry; expired rows read as misses.
// Eviction beyond expiry is deliberately out of scope.
package cache

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/reliefmaps/slopetiles/internal/tiles"
	"github.com/reliefmaps/slopetiles/internal/timeutil"
)

// Store is a tile-keyed byte cache over a SQLite database.
type Store struct {
	db    *sql.DB
	clock timeutil.Clock
}

// Open opens (or creates) the cache database at path. Pass a nil clock to
// use the real one.
func Open(path string, clock timeutil.Clock) (*Store, error) {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open tile cache: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS tiles (
			z INTEGER NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			data BLOB NOT NULL,
			expires_unix INTEGER NOT NULL,
			PRIMARY KEY (z, x, y)
		);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create tile cache schema: %w", err)
	}

	return &Store{db: db, clock: clock}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put stores tile bytes with an absolute expiry, replacing any existing row.
func (s *Store) Put(c tiles.Coord, data []byte, expires time.Time) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO tiles (z, x, y, data, expires_unix) VALUES (?, ?, ?, ?, ?)`,
		c.Z, c.X, c.Y, data, expires.Unix(),
	)
	if err != nil {
		return fmt.Errorf("cache put %s: %w", c, err)
	}
	return nil
}

// Get returns the cached bytes and their expiry for a tile. Expired rows are
// deleted lazily and reported as misses.
func (s *Store) Get(c tiles.Coord) ([]byte, time.Time, bool) {
	var data []byte
	var expiresUnix int64
	err := s.db.QueryRow(
		`SELECT data, expires_unix FROM tiles WHERE z = ? AND x = ? AND y = ?`,
		c.Z, c.X, c.Y,
	).Scan(&data, &expiresUnix)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, time.Time{}, false
	}
	if err != nil {
		return nil, time.Time{}, false
	}
	expires := time.Unix(expiresUnix, 0)
	if !s.clock.Now().Before(expires) {
		_, _ = s.db.Exec(`DELETE FROM tiles WHERE z = ? AND x = ? AND y = ?`, c.Z, c.X, c.Y)
		return nil, time.Time{}, false
	}
	return data, expires, true
}

// Len reports the number of rows currently stored, expired or not.
func (s *Store) Len() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM tiles`).Scan(&n); err != nil {
		return 0, fmt.Errorf("cache count: %w", err)
	}
	return n, nil
}
