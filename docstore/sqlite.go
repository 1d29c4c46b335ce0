package docstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"
)

const kvSchema = `CREATE TABLE IF NOT EXISTS kv (
	key     TEXT PRIMARY KEY,
	value   TEXT NOT NULL,
	version INTEGER NOT NULL
)`

// SQLiteKV persists values in a single-table SQLite database. A lock file next
// to the database keeps a second process from opening the same store.
type SQLiteKV struct {
	db   *sql.DB
	lock *flock.Flock
}

func OpenSQLiteKV(path string) (*SQLiteKV, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	lock := flock.New(path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock %s: %w", path, err)
	}
	if !locked {
		return nil, fmt.Errorf("%s: %w", path, ErrLocked)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		lock.Unlock()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec(kvSchema); err != nil {
		db.Close()
		lock.Unlock()
		return nil, fmt.Errorf("failed to create kv table: %w", err)
	}

	return &SQLiteKV{db: db, lock: lock}, nil
}

func (kv *SQLiteKV) Get(ctx context.Context, key string) (string, int64, error) {
	var (
		value   string
		version int64
	)

	err := kv.db.QueryRowContext(ctx, "SELECT value, version FROM kv WHERE key = ?", key).Scan(&value, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return "", 0, ErrKeyNotFound
	}
	if err != nil {
		return "", 0, fmt.Errorf("failed to read key %s: %w", key, err)
	}

	return value, version, nil
}

func (kv *SQLiteKV) Set(ctx context.Context, key, value string) error {
	_, err := kv.db.ExecContext(ctx, `
		INSERT INTO kv (key, value, version) VALUES (?, ?, 1)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, version = kv.version + 1`,
		key, value)
	if err != nil {
		return fmt.Errorf("failed to write key %s: %w", key, err)
	}

	return nil
}

func (kv *SQLiteKV) CompareAndSwap(ctx context.Context, key, value string, version int64) error {
	var (
		res sql.Result
		err error
	)

	if version == 0 {
		res, err = kv.db.ExecContext(ctx,
			"INSERT INTO kv (key, value, version) VALUES (?, ?, 1) ON CONFLICT(key) DO NOTHING",
			key, value)
	} else {
		res, err = kv.db.ExecContext(ctx,
			"UPDATE kv SET value = ?, version = version + 1 WHERE key = ? AND version = ?",
			value, key, version)
	}
	if err != nil {
		return fmt.Errorf("failed to write key %s: %w", key, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to write key %s: %w", key, err)
	}
	if n == 0 {
		return fmt.Errorf("key %s changed since version %d: %w", key, version, ErrVersionConflict)
	}

	return nil
}

func (kv *SQLiteKV) Remove(ctx context.Context, key string) error {
	if _, err := kv.db.ExecContext(ctx, "DELETE FROM kv WHERE key = ?", key); err != nil {
		return fmt.Errorf("failed to remove key %s: %w", key, err)
	}

	return nil
}

func (kv *SQLiteKV) Close() error {
	err := kv.db.Close()
	if uerr := kv.lock.Unlock(); uerr != nil && err == nil {
		err = uerr
	}

	return err
}
