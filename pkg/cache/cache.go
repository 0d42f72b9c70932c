// Package cache implements the Tri-Tier Cache: an in-process LRU (L1), a
// shared Redis cache (L2), and a durable Postgres store (L3) with
// access-count-based garbage collection (spec.md §4.2).
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Entry is one cached translation, keyed by (sourceLang, targetLang, hash(text)).
type Entry struct {
	SourceHash      string    `json:"source_hash"`
	SourceLang      string    `json:"source_lang"`
	TargetLang      string    `json:"target_lang"`
	TranslatedText  string    `json:"translated_text"`
	Provider        string    `json:"provider"`
	ConfidenceScore float64   `json:"confidence_score"`
	CreatedAt       time.Time `json:"created_at"`
	AccessCount     int64     `json:"access_count"`
	LastAccessed    time.Time `json:"last_accessed"`
}

// Key computes the cache key for a (sourceLang, targetLang, text) triple. The
// hash is SHA-256 of the text, matching the durable store's CHAR(64) primary
// key column.
func Key(sourceLang, targetLang, text string) string {
	sum := sha256.Sum256([]byte(text))
	return sourceLang + ":" + targetLang + ":" + hex.EncodeToString(sum[:])
}

// HashText returns the hex-encoded SHA-256 of text, the L3 primary key.
func HashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// TieredCache is the L1→L2→L3 lookup chain described in spec.md §4.2: an L3
// hit promotes to L2 and L1 before returning; a miss is the caller's signal
// to compute the value and call Put, which writes through all three tiers.
type TieredCache interface {
	// Get checks L1, then L2, then L3 in order. On an L3 hit it promotes the
	// entry to L2 and L1 before returning. Returns found=false on a total miss.
	Get(ctx context.Context, sourceLang, targetLang, text string) (entry Entry, found bool, err error)

	// Put writes through all three tiers. L3 uses an insert-or-update on
	// source_hash so concurrent misses for the same key converge safely.
	Put(ctx context.Context, entry Entry) error

	// GC removes L3 rows with access_count below minAccessCount that have not
	// been accessed since olderThan. Returns the number of rows removed.
	GC(ctx context.Context, minAccessCount int64, olderThan time.Time) (int64, error)
}
