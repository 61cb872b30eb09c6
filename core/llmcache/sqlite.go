package llmcache

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"pcb-cost/core/types"
	"pcb-cost/internal/clock"
	"pcb-cost/internal/errors"
	"pcb-cost/internal/logging"
)

const schema = `
CREATE TABLE IF NOT EXISTS llm_cache (
	cache_key        TEXT PRIMARY KEY,
	kind             TEXT NOT NULL,
	identity         TEXT NOT NULL,
	payload          TEXT NOT NULL,
	tokens           INTEGER NOT NULL DEFAULT 0,
	created_at       INTEGER NOT NULL,
	ttl_ns           INTEGER NOT NULL,
	hits             INTEGER NOT NULL DEFAULT 0,
	last_accessed_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_llm_cache_identity ON llm_cache(identity);
CREATE INDEX IF NOT EXISTS idx_llm_cache_kind ON llm_cache(kind);
CREATE INDEX IF NOT EXISTS idx_llm_cache_created ON llm_cache(created_at);
`

// SQLiteStore is a durable Store backed by a single SQLite file
type SQLiteStore struct {
	db     *sql.DB
	path   string
	clock  clock.Clock
	logger *zap.Logger
}

// OpenSQLite opens or creates the cache database at path
func OpenSQLite(path string, clk clock.Clock, logger *zap.Logger) (*SQLiteStore, error) {
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = logging.Named("llmcache")
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errors.Cache("failed to create cache directory", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Cache("failed to open cache database", err)
	}

	// SQLite allows a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, errors.Cache("failed to set pragma", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Cache("failed to initialize cache schema", err)
	}

	logger.Debug("cache opened", zap.String("path", path))
	return &SQLiteStore{db: db, path: path, clock: clk, logger: logger}, nil
}

// Path returns the database file
func (s *SQLiteStore) Path() string {
	return s.path
}

// Get returns the live entry for key, deleting it when expired
func (s *SQLiteStore) Get(ctx context.Context, key Key) (Entry, bool, error) {
	h := key.Hash()

	var (
		e         Entry
		kind      string
		payload   string
		createdAt int64
		ttl       int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT kind, identity, payload, tokens, created_at, ttl_ns, hits
		FROM llm_cache WHERE cache_key = ?`, h).
		Scan(&kind, &e.Identity, &payload, &e.Tokens, &createdAt, &ttl, &e.Hits)
	if err == sql.ErrNoRows {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, errors.Cache("failed to read cache entry", err)
	}

	e.Kind = types.RequestKind(kind)
	e.Payload = []byte(payload)
	e.CreatedAt = time.Unix(0, createdAt).UTC()
	e.TTL = time.Duration(ttl)

	now := s.clock.Now()
	if e.Expired(now) {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM llm_cache WHERE cache_key = ?", h); err != nil {
			s.logger.Warn("failed to remove expired entry", logging.RedactedError(err))
		}
		return Entry{}, false, nil
	}

	if _, err := s.db.ExecContext(ctx,
		"UPDATE llm_cache SET hits = hits + 1, last_accessed_at = ? WHERE cache_key = ?",
		now.UnixNano(), h); err != nil {
		s.logger.Warn("failed to record cache hit", logging.RedactedError(err))
	}
	e.Hits++
	return e, true, nil
}

// Put stores payload under key. A live entry with the same key is kept.
func (s *SQLiteStore) Put(ctx context.Context, key Key, payload []byte, tokens int, ttl time.Duration) error {
	now := s.clock.Now().UnixNano()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO llm_cache (cache_key, kind, identity, payload, tokens, created_at, ttl_ns, hits, last_accessed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?)
		ON CONFLICT(cache_key) DO UPDATE SET
			payload = excluded.payload,
			tokens = excluded.tokens,
			created_at = excluded.created_at,
			ttl_ns = excluded.ttl_ns,
			hits = 0,
			last_accessed_at = excluded.last_accessed_at
		WHERE llm_cache.created_at + llm_cache.ttl_ns < excluded.created_at`,
		key.Hash(), string(key.Kind), key.Identity, string(payload), tokens, now, int64(ttl), now)
	if err != nil {
		return errors.Cache("failed to write cache entry", err)
	}
	return nil
}

// Delete removes the entry for key
func (s *SQLiteStore) Delete(ctx context.Context, key Key) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM llm_cache WHERE cache_key = ?", key.Hash()); err != nil {
		return errors.Cache("failed to delete cache entry", err)
	}
	return nil
}

// Clear removes entries matching filter
func (s *SQLiteStore) Clear(ctx context.Context, filter Filter) (int, error) {
	query := "DELETE FROM llm_cache WHERE 1 = 1"
	var args []interface{}
	if filter.Kind != "" {
		query += " AND kind = ?"
		args = append(args, string(filter.Kind))
	}
	if filter.Identity != "" {
		query += " AND identity = ?"
		args = append(args, NewKey(filter.Kind, filter.Identity).Identity)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, errors.Cache("failed to clear cache", err)
	}
	n, _ := res.RowsAffected()
	s.logger.Info("cache cleared", zap.Int64("entries", n))
	return int(n), nil
}

// Prune removes expired entries
func (s *SQLiteStore) Prune(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM llm_cache WHERE created_at + ttl_ns < ?", s.clock.Now().UnixNano())
	if err != nil {
		return 0, errors.Cache("failed to prune cache", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.logger.Info("expired cache entries removed", zap.Int64("entries", n))
	}
	return int(n), nil
}

// Stats aggregates entries with SQL
func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	now := s.clock.Now().UnixNano()
	st := Stats{ByKind: make(map[types.RequestKind]KindStats), Location: s.path}

	var oldest, newest sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(tokens), 0),
			COALESCE(SUM(hits), 0),
			COALESCE(SUM(CASE WHEN created_at + ttl_ns < ? THEN 1 ELSE 0 END), 0),
			MIN(created_at),
			MAX(created_at)
		FROM llm_cache`, now).
		Scan(&st.Entries, &st.TokensSaved, &st.Hits, &st.Expired, &oldest, &newest)
	if err != nil {
		return Stats{}, errors.Cache("failed to read cache statistics", err)
	}
	if oldest.Valid {
		t := time.Unix(0, oldest.Int64).UTC()
		st.Oldest = &t
	}
	if newest.Valid {
		t := time.Unix(0, newest.Int64).UTC()
		st.Newest = &t
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, COUNT(*), COALESCE(SUM(tokens), 0), COALESCE(SUM(hits), 0)
		FROM llm_cache GROUP BY kind ORDER BY kind`)
	if err != nil {
		return Stats{}, errors.Cache("failed to read cache statistics", err)
	}
	defer rows.Close()

	for rows.Next() {
		var kind string
		var ks KindStats
		if err := rows.Scan(&kind, &ks.Entries, &ks.TokensSaved, &ks.Hits); err != nil {
			return Stats{}, errors.Cache("failed to read cache statistics", err)
		}
		st.ByKind[types.RequestKind(kind)] = ks
	}
	if err := rows.Err(); err != nil {
		return Stats{}, errors.Cache("failed to read cache statistics", err)
	}
	return st, nil
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
