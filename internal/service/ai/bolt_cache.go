package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"convanalyzer/internal/logging"
	"convanalyzer/internal/models"
)

var classificationBucket = []byte("classifications")

type boltEntry struct {
	Classification *models.Classification `json:"classification"`
	StoredAt       time.Time              `json:"stored_at"`
}

// BoltCache is a single-file classification cache for machines without redis.
// Entries older than the TTL read as misses.
type BoltCache struct {
	db     *bolt.DB
	ttl    time.Duration
	logger *logging.Logger
	now    func() time.Time
}

func OpenBoltCache(path string, ttl time.Duration, logger *logging.Logger) (*BoltCache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt cache %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(classificationBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init bolt cache: %w", err)
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &BoltCache{db: db, ttl: ttl, logger: logger, now: time.Now}, nil
}

func (c *BoltCache) Load(ctx context.Context, fingerprint string) (*models.Classification, bool) {
	if c == nil || c.db == nil || fingerprint == "" {
		return nil, false
	}
	var entry boltEntry
	found := false
	err := c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(classificationBucket)
		if b == nil {
			return nil
		}
		v := b.Get([]byte(fingerprint))
		if len(v) == 0 {
			return nil
		}
		if err := json.Unmarshal(v, &entry); err != nil {
			// malformed entries read as misses
			return nil
		}
		found = true
		return nil
	})
	if err != nil {
		c.logger.Warnw("bolt cache load failed", "error", err)
		return nil, false
	}
	if !found || entry.Classification == nil || c.now().Sub(entry.StoredAt) > c.ttl {
		return nil, false
	}
	if err := entry.Classification.Validate(); err != nil {
		return nil, false
	}
	return entry.Classification, true
}

func (c *BoltCache) Store(ctx context.Context, fingerprint string, cls *models.Classification) {
	if c == nil || c.db == nil || fingerprint == "" || cls == nil {
		return
	}
	enc, err := json.Marshal(boltEntry{Classification: cls, StoredAt: c.now()})
	if err != nil {
		c.logger.Warnw("bolt cache marshal failed", "error", err)
		return
	}
	err = c.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(classificationBucket)
		if err != nil {
			return err
		}
		return b.Put([]byte(fingerprint), enc)
	})
	if err != nil {
		c.logger.Warnw("bolt cache store failed", "error", err)
	}
}

func (c *BoltCache) Invalidate(ctx context.Context, fingerprint string) {
	if c == nil || c.db == nil || fingerprint == "" {
		return
	}
	err := c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(classificationBucket)
		if b == nil {
			return nil
		}
		return b.Delete([]byte(fingerprint))
	})
	if err != nil {
		c.logger.Warnw("bolt cache invalidate failed", "error", err)
	}
}

func (c *BoltCache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}
