package ai

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Cache stores validated model replies keyed by provider, model and prompt,
// so repeated runs over an unchanged document reuse the same suggestions.
type Cache struct {
	db *sql.DB
}

func OpenCache(path string) (*Cache, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, errors.New("missing cache path")
	}
	p = filepath.Clean(p)
	if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return &Cache{db: db}, nil
}

func (c *Cache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// CacheKey hashes everything that determines a reply.
func CacheKey(provider, model, system, prompt string) string {
	h := sha256.New()
	for _, part := range []string{provider, model, system, prompt} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the stored reply for key. A miss is not an error.
func (c *Cache) Get(ctx context.Context, key string) (string, bool, error) {
	if c == nil || c.db == nil {
		return "", false, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	var reply string
	err := c.db.QueryRowContext(ctx, `SELECT reply FROM ai_replies WHERE cache_key = ?`, key).Scan(&reply)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return reply, true, nil
}

func (c *Cache) Put(ctx context.Context, key, provider, model, reply string) error {
	if c == nil || c.db == nil {
		return errors.New("cache not open")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	_, err := c.db.ExecContext(ctx, `
INSERT INTO ai_replies(cache_key, provider, model, reply, created_at_unix_ms)
VALUES(?, ?, ?, ?, ?)
ON CONFLICT(cache_key) DO UPDATE SET reply = excluded.reply, created_at_unix_ms = excluded.created_at_unix_ms
`, key, provider, model, reply, time.Now().UnixMilli())
	return err
}

func initSchema(db *sql.DB) error {
	if db == nil {
		return errors.New("nil db")
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		return fmt.Errorf("pragma journal_mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout=3000;`); err != nil {
		return fmt.Errorf("pragma busy_timeout: %w", err)
	}
	return migrateSchema(db)
}

func migrateSchema(db *sql.DB) error {
	// Schema versions:
	// - v1: ai_replies
	const targetVersion = 1

	var v int
	if err := db.QueryRow(`PRAGMA user_version;`).Scan(&v); err != nil {
		return fmt.Errorf("pragma user_version: %w", err)
	}
	if v >= targetVersion {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS ai_replies (
  cache_key TEXT PRIMARY KEY,
  provider TEXT NOT NULL,
  model TEXT NOT NULL,
  reply TEXT NOT NULL,
  created_at_unix_ms INTEGER NOT NULL
);
`); err != nil {
		return fmt.Errorf("create table v1: %w", err)
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version=%d;", targetVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return tx.Commit()
}
