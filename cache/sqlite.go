package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite"
	"github.com/jmgilman/go/errors"
)

// SQLitePersister keeps the store state in a SQLite database.
// Entry metadata is stored one row per entry, statistics and configuration
// as JSON documents in a single state row.
type SQLitePersister struct {
	db         *sql.DB
	writeMutex *sync.Mutex
}

// NewSQLitePersister opens the given file as the db.
// If file name is empty, a new in-memory db is opened.
func NewSQLitePersister(filename string) (*SQLitePersister, error) {
	if filename == "" {
		filename = "file::memory:?cache=shared"
	}
	db, err := sql.Open("sqlite", filename)
	if err != nil {
		return nil, errors.Wrapf(err, errors.CodeDatabase, "could not open %s", filename)
	}
	for _, stmt := range []string{
		`CREATE TABLE IF NOT EXISTS cache_state (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			saved_at INTEGER,
			stats BLOB,
			config BLOB
		)`,
		`CREATE TABLE IF NOT EXISTS cache_entries (
			key TEXT PRIMARY KEY,
			status INTEGER,
			created_at INTEGER,
			ttl INTEGER,
			tags BLOB,
			size INTEGER,
			access_count INTEGER,
			last_accessed_at INTEGER
		)`,
		"CREATE INDEX IF NOT EXISTS created_at_idx ON cache_entries (created_at)",
		"PRAGMA journal_mode=WAL",
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, errors.Wrap(err, errors.CodeDatabase, "could not initialize cache db")
		}
	}
	return &SQLitePersister{
		db:         db,
		writeMutex: &sync.Mutex{},
	}, nil
}

func (p *SQLitePersister) Save(ctx context.Context, state *PersistedState) error {
	stats, err := json.Marshal(state.Stats)
	if err != nil {
		return errors.Wrap(err, errors.CodeInternal, "could not encode stats")
	}
	config, err := json.Marshal(state.Config)
	if err != nil {
		return errors.Wrap(err, errors.CodeInternal, "could not encode config")
	}

	p.writeMutex.Lock()
	defer p.writeMutex.Unlock()

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, errors.CodeDatabase, "could not begin transaction")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"INSERT OR REPLACE INTO cache_state (id, saved_at, stats, config) VALUES (1, ?, ?, ?)",
		state.SavedAt.UnixNano(), stats, config,
	); err != nil {
		return errors.Wrap(err, errors.CodeDatabase, "could not save cache state")
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM cache_entries"); err != nil {
		return errors.Wrap(err, errors.CodeDatabase, "could not clear entry metadata")
	}
	insert, err := tx.PrepareContext(ctx, `INSERT INTO cache_entries
		(key, status, created_at, ttl, tags, size, access_count, last_accessed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return errors.Wrap(err, errors.CodeDatabase, "could not prepare entry insert")
	}
	defer insert.Close()
	for _, md := range state.Metadata {
		tags, err := json.Marshal(md.Tags)
		if err != nil {
			return errors.Wrap(err, errors.CodeInternal, "could not encode tags")
		}
		if _, err := insert.ExecContext(ctx,
			md.Key, md.StatusCode, md.CreatedAt.UnixNano(), int64(md.TTL),
			tags, md.Size, md.AccessCount, md.LastAccessedAt.UnixNano(),
		); err != nil {
			return errors.WithContext(
				errors.Wrap(err, errors.CodeDatabase, "could not save entry metadata"),
				"key", md.Key)
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, errors.CodeDatabase, "could not commit cache state")
	}
	return nil
}

func (p *SQLitePersister) Load(ctx context.Context) (*PersistedState, error) {
	var savedAt int64
	var stats, config []byte
	err := p.db.QueryRowContext(ctx, "SELECT saved_at, stats, config FROM cache_state WHERE id = 1").
		Scan(&savedAt, &stats, &config)
	if err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabase, "could not load cache state")
	}

	state := &PersistedState{SavedAt: time.Unix(0, savedAt)}
	if err := json.Unmarshal(stats, &state.Stats); err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabase, "could not decode stats")
	}
	if err := json.Unmarshal(config, &state.Config); err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabase, "could not decode config")
	}

	rows, err := p.db.QueryContext(ctx, `SELECT
		key, status, created_at, ttl, tags, size, access_count, last_accessed_at
		FROM cache_entries ORDER BY key`)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabase, "could not load entry metadata")
	}
	defer rows.Close()
	for rows.Next() {
		var md EntryMetadata
		var created, ttl, accessed int64
		var tags []byte
		if err := rows.Scan(&md.Key, &md.StatusCode, &created, &ttl, &tags, &md.Size, &md.AccessCount, &accessed); err != nil {
			return nil, errors.Wrap(err, errors.CodeDatabase, "could not read entry metadata")
		}
		if err := json.Unmarshal(tags, &md.Tags); err != nil {
			return nil, errors.Wrap(err, errors.CodeDatabase, "could not decode tags")
		}
		md.CreatedAt = time.Unix(0, created)
		md.TTL = time.Duration(ttl)
		md.LastAccessedAt = time.Unix(0, accessed)
		state.Metadata = append(state.Metadata, md)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabase, "could not read entry metadata")
	}
	return state, nil
}

func (p *SQLitePersister) Close() error {
	return p.db.Close()
}
