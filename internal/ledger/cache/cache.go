// Package cache puts a Redis read-through cache in front of the ledger's
// lookups. Writes pass straight through and invalidate the keys they touch.
// Cache failures are logged and never fail the underlying operation.
package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/fiscal-credits/creditledger/internal/ingestion"
	"github.com/fiscal-credits/creditledger/internal/ledger"
	"github.com/fiscal-credits/creditledger/pkg/logger"
	"github.com/fiscal-credits/creditledger/pkg/metrics"
	pkgredis "github.com/fiscal-credits/creditledger/pkg/redis"
	"golang.org/x/sync/singleflight"
)

const (
	creditKeyPrefix  = "credito:numero:"
	invoiceKeyPrefix = "credito:nfse:"
)

// Backend is the subset of pkg/redis.Client the cache needs.
type Backend interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// CachedStore wraps a ledger.Store. Methods it does not override go to the
// wrapped store unchanged.
type CachedStore struct {
	ledger.Store
	backend Backend
	ttl     time.Duration
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New wraps store. m may be nil.
func New(store ledger.Store, backend Backend, ttl time.Duration, m *metrics.Metrics) *CachedStore {
	return &CachedStore{
		Store:   store,
		backend: backend,
		ttl:     ttl,
		metrics: m,
		logger:  logger.WithComponent("ledger-cache"),
	}
}

func (c *CachedStore) GetByCreditNumber(ctx context.Context, creditNumber string) (ingestion.CreditRecord, error) {
	if creditNumber == "" {
		return c.Store.GetByCreditNumber(ctx, creditNumber)
	}
	key := creditKeyPrefix + creditNumber
	var rec ingestion.CreditRecord
	if c.get(ctx, key, &rec) {
		return rec, nil
	}
	val, err, _ := c.group.Do(key, func() (any, error) {
		var cached ingestion.CreditRecord
		if c.get(ctx, key, &cached) {
			return cached, nil
		}
		rec, err := c.Store.GetByCreditNumber(ctx, creditNumber)
		if err != nil {
			return nil, err
		}
		c.set(ctx, key, rec)
		return rec, nil
	})
	if err != nil {
		return ingestion.CreditRecord{}, err
	}
	return val.(ingestion.CreditRecord), nil
}

func (c *CachedStore) ListByInvoiceNumber(ctx context.Context, invoiceNumber string) ([]ingestion.CreditRecord, error) {
	if invoiceNumber == "" {
		return c.Store.ListByInvoiceNumber(ctx, invoiceNumber)
	}
	key := invoiceKeyPrefix + invoiceNumber
	var recs []ingestion.CreditRecord
	if c.get(ctx, key, &recs) {
		return recs, nil
	}
	val, err, _ := c.group.Do(key, func() (any, error) {
		var cached []ingestion.CreditRecord
		if c.get(ctx, key, &cached) {
			return cached, nil
		}
		recs, err := c.Store.ListByInvoiceNumber(ctx, invoiceNumber)
		if err != nil {
			return nil, err
		}
		// Misses are not cached; writers in other processes do not
		// invalidate this cache.
		if len(recs) > 0 {
			c.set(ctx, key, recs)
		}
		return recs, nil
	})
	if err != nil {
		return nil, err
	}
	return val.([]ingestion.CreditRecord), nil
}

func (c *CachedStore) Insert(ctx context.Context, rec ingestion.CreditRecord) (ingestion.CreditRecord, error) {
	inserted, err := c.Store.Insert(ctx, rec)
	if err != nil {
		return inserted, err
	}
	c.invalidate(ctx, inserted)
	return inserted, nil
}

func (c *CachedStore) Update(ctx context.Context, rec ingestion.CreditRecord) error {
	previous, prevErr := c.Store.GetByID(ctx, rec.ID)
	if err := c.Store.Update(ctx, rec); err != nil {
		return err
	}
	c.invalidate(ctx, rec)
	if prevErr == nil {
		c.invalidate(ctx, previous)
	}
	return nil
}

func (c *CachedStore) Delete(ctx context.Context, rec ingestion.CreditRecord) error {
	if err := c.Store.Delete(ctx, rec); err != nil {
		return err
	}
	c.invalidate(ctx, rec)
	return nil
}

func (c *CachedStore) get(ctx context.Context, key string, dst any) bool {
	data, err := c.backend.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.metrics.CacheMiss()
		return false
	}
	if err := json.Unmarshal([]byte(data), dst); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.metrics.CacheMiss()
		return false
	}
	c.metrics.CacheHit()
	c.logger.Debug("cache hit", "key", key)
	return true
}

func (c *CachedStore) set(ctx context.Context, key string, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.backend.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

func (c *CachedStore) invalidate(ctx context.Context, rec ingestion.CreditRecord) {
	keys := []string{creditKeyPrefix + rec.CreditNumber, invoiceKeyPrefix + rec.InvoiceNumber}
	if err := c.backend.Del(ctx, keys...); err != nil {
		c.logger.Error("cache invalidate failed", "keys", keys, "error", err)
	}
}
