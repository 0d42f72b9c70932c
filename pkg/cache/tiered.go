package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
)

// Tiered is the default TieredCache: an in-process LRU, a shared Redis
// cache, and the translation_cache Postgres table.
type Tiered struct {
	mu  sync.Mutex
	l1  *lru.Cache[string, Entry]
	l1TTL time.Duration
	l1Stamps map[string]time.Time

	redis  redis.UniversalClient
	l2TTL  time.Duration

	db *sql.DB
}

// Config tunes tier sizing and expiry.
type Config struct {
	L1Size int           // max entries held in the in-process LRU
	L1TTL  time.Duration // spec.md §4.2: "bounded size, TTL ≈ 1h"
	L2TTL  time.Duration // spec.md §4.2: "TTL ≈ 24h"
}

// DefaultConfig matches the tuning spec.md §4.2 describes.
func DefaultConfig() Config {
	return Config{
		L1Size: 4096,
		L1TTL:  time.Hour,
		L2TTL:  24 * time.Hour,
	}
}

// NewTiered wires a Tiered cache against a Redis client and a database
// handle. redisClient or db may be nil, in which case that tier is skipped
// (Get falls through, Put writes whichever tiers are present).
func NewTiered(cfg Config, redisClient redis.UniversalClient, db *sql.DB) (*Tiered, error) {
	if cfg.L1Size <= 0 {
		cfg.L1Size = DefaultConfig().L1Size
	}
	if cfg.L1TTL <= 0 {
		cfg.L1TTL = DefaultConfig().L1TTL
	}
	if cfg.L2TTL <= 0 {
		cfg.L2TTL = DefaultConfig().L2TTL
	}

	l1, err := lru.New[string, Entry](cfg.L1Size)
	if err != nil {
		return nil, fmt.Errorf("cache: build l1: %w", err)
	}

	return &Tiered{
		l1:       l1,
		l1TTL:    cfg.L1TTL,
		l1Stamps: make(map[string]time.Time),
		redis:    redisClient,
		l2TTL:    cfg.L2TTL,
		db:       db,
	}, nil
}

func (t *Tiered) Get(ctx context.Context, sourceLang, targetLang, text string) (Entry, bool, error) {
	key := Key(sourceLang, targetLang, text)

	if entry, ok := t.getL1(key); ok {
		return entry, true, nil
	}

	if t.redis != nil {
		entry, ok, err := t.getL2(ctx, key)
		if err != nil {
			slog.Warn("cache: l2 get failed, falling through to l3", "key", key, "error", err)
		} else if ok {
			t.putL1(key, entry)
			return entry, true, nil
		}
	}

	if t.db != nil {
		entry, ok, err := t.getL3(ctx, HashText(text), sourceLang, targetLang)
		if err != nil {
			return Entry{}, false, err
		}
		if ok {
			// Promote to L2 then L1, per spec.md §4.2.
			if t.redis != nil {
				if err := t.putL2(ctx, key, entry); err != nil {
					slog.Warn("cache: l2 promote failed", "key", key, "error", err)
				}
			}
			t.putL1(key, entry)
			return entry, true, nil
		}
	}

	return Entry{}, false, nil
}

func (t *Tiered) Put(ctx context.Context, entry Entry) error {
	if entry.SourceHash == "" {
		entry.SourceHash = HashText(entry.TranslatedText)
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	if entry.LastAccessed.IsZero() {
		entry.LastAccessed = entry.CreatedAt
	}

	key := entry.SourceLang + ":" + entry.TargetLang + ":" + entry.SourceHash
	t.putL1(key, entry)

	if t.redis != nil {
		if err := t.putL2(ctx, key, entry); err != nil {
			slog.Warn("cache: l2 put failed", "key", key, "error", err)
		}
	}

	if t.db != nil {
		if err := t.putL3(ctx, entry); err != nil {
			return fmt.Errorf("cache: l3 put: %w", err)
		}
	}
	return nil
}

func (t *Tiered) GC(ctx context.Context, minAccessCount int64, olderThan time.Time) (int64, error) {
	if t.db == nil {
		return 0, nil
	}
	res, err := t.db.ExecContext(ctx,
		`DELETE FROM translation_cache WHERE access_count < $1 AND last_accessed < $2`,
		minAccessCount, olderThan)
	if err != nil {
		return 0, fmt.Errorf("cache: gc: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cache: gc rows affected: %w", err)
	}
	return n, nil
}

// ── L1 ──────────────────────────────────────────────────────

func (t *Tiered) getL1(key string) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.l1.Get(key)
	if !ok {
		return Entry{}, false
	}
	if stamp, ok := t.l1Stamps[key]; ok && time.Since(stamp) > t.l1TTL {
		t.l1.Remove(key)
		delete(t.l1Stamps, key)
		return Entry{}, false
	}
	return entry, true
}

func (t *Tiered) putL1(key string, entry Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.l1.Add(key, entry)
	t.l1Stamps[key] = time.Now()
}

// ── L2 ──────────────────────────────────────────────────────

func (t *Tiered) getL2(ctx context.Context, key string) (Entry, bool, error) {
	raw, err := t.redis.Get(ctx, l2Key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Entry{}, false, nil
		}
		return Entry{}, false, err
	}
	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return Entry{}, false, err
	}
	return entry, true, nil
}

func (t *Tiered) putL2(ctx context.Context, key string, entry Entry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return t.redis.Set(ctx, l2Key(key), raw, t.l2TTL).Err()
}

func l2Key(key string) string {
	return "translate:" + key
}

// ── L3 ──────────────────────────────────────────────────────

func (t *Tiered) getL3(ctx context.Context, hash, sourceLang, targetLang string) (Entry, bool, error) {
	row := t.db.QueryRowContext(ctx, `
		SELECT source_hash, source_lang, target_lang, translated_text, provider,
		       confidence_score, created_at, access_count, last_accessed
		FROM translation_cache
		WHERE source_hash = $1 AND source_lang = $2 AND target_lang = $3`,
		hash, sourceLang, targetLang)

	var e Entry
	if err := row.Scan(&e.SourceHash, &e.SourceLang, &e.TargetLang, &e.TranslatedText,
		&e.Provider, &e.ConfidenceScore, &e.CreatedAt, &e.AccessCount, &e.LastAccessed); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, false, nil
		}
		return Entry{}, false, fmt.Errorf("cache: l3 select: %w", err)
	}

	if _, err := t.db.ExecContext(ctx,
		`UPDATE translation_cache SET access_count = access_count + 1, last_accessed = now()
		 WHERE source_hash = $1`, hash); err != nil {
		slog.Warn("cache: l3 access-count update failed", "hash", hash, "error", err)
	}
	e.AccessCount++
	return e, true, nil
}

// putL3 is an insert-or-update on source_hash so concurrent misses for the
// same key converge safely, per spec.md §4.2.
func (t *Tiered) putL3(ctx context.Context, e Entry) error {
	_, err := t.db.ExecContext(ctx, `
		INSERT INTO translation_cache
			(source_hash, source_lang, target_lang, translated_text, provider, confidence_score, created_at, access_count, last_accessed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 1, now())
		ON CONFLICT (source_hash) DO UPDATE SET
			source_lang      = EXCLUDED.source_lang,
			target_lang      = EXCLUDED.target_lang,
			translated_text  = EXCLUDED.translated_text,
			provider         = EXCLUDED.provider,
			confidence_score = EXCLUDED.confidence_score,
			access_count     = translation_cache.access_count + 1,
			last_accessed    = now()`,
		e.SourceHash, e.SourceLang, e.TargetLang, e.TranslatedText, e.Provider, e.ConfidenceScore, e.CreatedAt)
	return err
}
