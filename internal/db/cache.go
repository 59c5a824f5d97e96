package db

import (
	"database/sql"
	"log"
	"time"

	"github.com/mhollis/dedupd/internal/engine"
	"github.com/mhollis/dedupd/internal/storage"
)

// FingerprintCache is a durable fingerprint cache backed by the
// fingerprint_cache table. A cache failure is never fatal: lookups fall back
// to a miss and stores are dropped, so the worst case is re-hashing a file.
type FingerprintCache struct {
	db *DB
}

var _ engine.Cache = (*FingerprintCache)(nil)

// NewFingerprintCache returns a cache backed by db.
func NewFingerprintCache(db *DB) *FingerprintCache {
	return &FingerprintCache{db: db}
}

// Lookup returns the cached digest for id if size and mtime both still match.
func (c *FingerprintCache) Lookup(id storage.FileID, size int64, modTime time.Time) (string, bool) {
	var cachedSize, cachedMtime int64
	var hash string
	err := c.db.QueryRow(`
		SELECT size, mtime_ns, hash FROM fingerprint_cache WHERE path = ?`,
		string(id),
	).Scan(&cachedSize, &cachedMtime, &hash)
	if err == sql.ErrNoRows {
		return "", false
	}
	if err != nil {
		log.Printf("[cache] lookup %s: %v", id, err)
		return "", false
	}
	if cachedSize != size || cachedMtime != modTime.UnixNano() {
		return "", false
	}
	return hash, true
}

// Store records a freshly computed digest, replacing any stale entry.
func (c *FingerprintCache) Store(id storage.FileID, size int64, modTime time.Time, digest string) {
	_, err := c.db.Exec(`
		INSERT INTO fingerprint_cache (path, size, mtime_ns, hash, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			size = excluded.size, mtime_ns = excluded.mtime_ns,
			hash = excluded.hash, updated_at = excluded.updated_at`,
		string(id), size, modTime.UnixNano(), digest, time.Now(),
	)
	if err != nil {
		log.Printf("[cache] store %s: %v", id, err)
	}
}
