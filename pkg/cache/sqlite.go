package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteStore persists entries in a local SQLite database so the stale
// fallback survives restarts. It is suitable for single-instance
// deployments.
//
// The database runs in WAL mode with a single connection; SQLite allows
// only one writer.
type SQLiteStore struct {
	db        *sql.DB
	path      string
	closeOnce sync.Once

	getStmt    *sql.Stmt
	setStmt    *sql.Stmt
	deleteStmt *sql.Stmt
	sweepStmt  *sql.Stmt
	countStmt  *sql.Stmt
}

// SQLiteStoreConfig configures the SQLite store.
type SQLiteStoreConfig struct {
	// Path is the database file.
	Path string

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// NewSQLiteStore opens (or creates) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	return NewSQLiteStoreWithConfig(SQLiteStoreConfig{Path: path})
}

// NewSQLiteStoreWithConfig opens the database with custom configuration.
func NewSQLiteStoreWithConfig(cfg SQLiteStoreConfig) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, errors.New("sqlite cache path cannot be empty")
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)",
		cfg.Path, cfg.BusyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &SQLiteStore{db: db, path: cfg.Path}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if err := s.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS cache_entries (
		fingerprint  TEXT PRIMARY KEY,
		capability   TEXT NOT NULL,
		payload      BLOB NOT NULL,
		source       TEXT NOT NULL,
		fetched_at   INTEGER NOT NULL,
		ttl          INTEGER NOT NULL,
		retain_until INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_cache_retain_until ON cache_entries(retain_until);
	`)
	return err
}

func (s *SQLiteStore) prepareStatements() error {
	var err error

	s.getStmt, err = s.db.Prepare(`
		SELECT capability, payload, source, fetched_at, ttl, retain_until
		FROM cache_entries
		WHERE fingerprint = ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare get statement: %w", err)
	}

	s.setStmt, err = s.db.Prepare(`
		INSERT INTO cache_entries (fingerprint, capability, payload, source, fetched_at, ttl, retain_until)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (fingerprint) DO UPDATE SET
			capability = excluded.capability,
			payload = excluded.payload,
			source = excluded.source,
			fetched_at = excluded.fetched_at,
			ttl = excluded.ttl,
			retain_until = excluded.retain_until
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare set statement: %w", err)
	}

	s.deleteStmt, err = s.db.Prepare(`DELETE FROM cache_entries WHERE fingerprint = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare delete statement: %w", err)
	}

	s.sweepStmt, err = s.db.Prepare(`
		DELETE FROM cache_entries
		WHERE fingerprint IN (
			SELECT fingerprint FROM cache_entries
			WHERE retain_until > 0 AND retain_until < ?
			ORDER BY retain_until
			LIMIT ?
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare sweep statement: %w", err)
	}

	s.countStmt, err = s.db.Prepare(`SELECT COUNT(*) FROM cache_entries`)
	if err != nil {
		return fmt.Errorf("failed to prepare count statement: %w", err)
	}

	return nil
}

// Get loads the entry for fingerprint.
func (s *SQLiteStore) Get(ctx context.Context, fingerprint string) (*Entry, error) {
	var (
		e           = Entry{Fingerprint: fingerprint}
		payload     []byte
		fetchedAt   int64
		ttl         int64
		retainUntil int64
	)

	err := s.getStmt.QueryRowContext(ctx, fingerprint).Scan(
		&e.Capability,
		&payload,
		&e.Source,
		&fetchedAt,
		&ttl,
		&retainUntil,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load cache entry: %w", err)
	}

	e.Payload = payload
	e.FetchedAt = fromUnixNano(fetchedAt)
	e.TTL = time.Duration(ttl)
	e.RetainUntil = fromUnixNano(retainUntil)
	return &e, nil
}

// Set upserts entry.
func (s *SQLiteStore) Set(ctx context.Context, entry *Entry) error {
	if entry == nil || entry.Fingerprint == "" {
		return ErrInvalidEntry
	}

	payload := []byte(entry.Payload)
	if payload == nil {
		payload = []byte{}
	}

	_, err := s.setStmt.ExecContext(ctx,
		entry.Fingerprint,
		entry.Capability,
		payload,
		entry.Source,
		unixNano(entry.FetchedAt),
		int64(entry.TTL),
		unixNano(entry.RetainUntil),
	)
	if err != nil {
		return fmt.Errorf("failed to save cache entry: %w", err)
	}
	return nil
}

// Delete removes the entry for fingerprint.
func (s *SQLiteStore) Delete(ctx context.Context, fingerprint string) error {
	if _, err := s.deleteStmt.ExecContext(ctx, fingerprint); err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

// Sweep deletes up to limit entries past retention, oldest first.
func (s *SQLiteStore) Sweep(ctx context.Context, now time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}

	result, err := s.sweepStmt.ExecContext(ctx, now.UnixNano(), limit)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep cache: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(deleted), nil
}

// Len returns the number of stored entries.
func (s *SQLiteStore) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.countStmt.QueryRowContext(ctx).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count cache entries: %w", err)
	}
	return n, nil
}

// Close releases the database. Close is idempotent.
func (s *SQLiteStore) Close() error {
	var closeErr error
	s.closeOnce.Do(func() {
		for _, stmt := range []*sql.Stmt{s.getStmt, s.setStmt, s.deleteStmt, s.sweepStmt, s.countStmt} {
			if stmt != nil {
				stmt.Close()
			}
		}
		closeErr = s.db.Close()
	})
	return closeErr
}

// unixNano stores the zero time as 0.
func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}
