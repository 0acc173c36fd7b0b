package cache_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fiscal-credits/creditledger/internal/ledger"
	"github.com/fiscal-credits/creditledger/internal/ledger/cache"
	"github.com/fiscal-credits/creditledger/internal/ledger/ledgertest"
	apperrors "github.com/fiscal-credits/creditledger/pkg/errors"
	"github.com/fiscal-credits/creditledger/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	mu     sync.Mutex
	data   map[string]string
	getErr error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{data: make(map[string]string)}
}

func (b *fakeBackend) Get(_ context.Context, key string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.getErr != nil {
		return "", b.getErr
	}
	v, ok := b.data[key]
	if !ok {
		return "", goredis.Nil
	}
	return v, nil
}

func (b *fakeBackend) Set(_ context.Context, key string, value any, _ time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data[key] = string(value.([]byte))
	return nil
}

func (b *fakeBackend) Del(_ context.Context, keys ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, k := range keys {
		delete(b.data, k)
	}
	return nil
}

func (b *fakeBackend) has(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.data[key]
	return ok
}

func TestCachedStoreContract(t *testing.T) {
	ledgertest.RunContract(t, func(t *testing.T) ledger.Store {
		return cache.New(ledgertest.NewMemoryStore(), newFakeBackend(), time.Minute, nil)
	})
}

func TestGetByCreditNumberReadsThrough(t *testing.T) {
	ctx := context.Background()
	inner := ledgertest.NewMemoryStore()
	backend := newFakeBackend()
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	s := cache.New(inner, backend, time.Minute, m)

	_, err := inner.Insert(ctx, ledgertest.Record("123456", "NF-1"))
	require.NoError(t, err)

	first, err := s.GetByCreditNumber(ctx, "123456")
	require.NoError(t, err)
	second, err := s.GetByCreditNumber(ctx, "123456")
	require.NoError(t, err)

	ledgertest.AssertSameCredit(t, first, second)
	assert.Equal(t, 1, inner.Calls("GetByCreditNumber"))
	assert.True(t, backend.has("credito:numero:123456"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheHitsTotal))
}

func TestWritesInvalidateLookups(t *testing.T) {
	ctx := context.Background()
	inner := ledgertest.NewMemoryStore()
	backend := newFakeBackend()
	s := cache.New(inner, backend, time.Minute, nil)

	rec, err := s.Insert(ctx, ledgertest.Record("111111", "NF-9"))
	require.NoError(t, err)

	list, err := s.ListByInvoiceNumber(ctx, "NF-9")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, backend.has("credito:nfse:NF-9"))

	_, err = s.Insert(ctx, ledgertest.Record("222222", "NF-9"))
	require.NoError(t, err)
	assert.False(t, backend.has("credito:nfse:NF-9"))

	list, err = s.ListByInvoiceNumber(ctx, "NF-9")
	require.NoError(t, err)
	assert.Len(t, list, 2)

	_, err = s.GetByCreditNumber(ctx, "111111")
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, rec))
	assert.False(t, backend.has("credito:numero:111111"))

	_, err = s.GetByCreditNumber(ctx, "111111")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestUpdateInvalidatesPreviousKeys(t *testing.T) {
	ctx := context.Background()
	inner := ledgertest.NewMemoryStore()
	backend := newFakeBackend()
	s := cache.New(inner, backend, time.Minute, nil)

	rec, err := s.Insert(ctx, ledgertest.Record("300", "NF-OLD"))
	require.NoError(t, err)
	_, err = s.ListByInvoiceNumber(ctx, "NF-OLD")
	require.NoError(t, err)

	rec.InvoiceNumber = "NF-NEW"
	require.NoError(t, s.Update(ctx, rec))

	assert.False(t, backend.has("credito:nfse:NF-OLD"))
	list, err := s.ListByInvoiceNumber(ctx, "NF-OLD")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestEmptyInvoiceListIsNotCached(t *testing.T) {
	ctx := context.Background()
	inner := ledgertest.NewMemoryStore()
	backend := newFakeBackend()
	s := cache.New(inner, backend, time.Minute, nil)

	list, err := s.ListByInvoiceNumber(ctx, "NF-LATE")
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.False(t, backend.has("credito:nfse:NF-LATE"))

	// Written by another process, so the cache sees no invalidation.
	_, err = inner.Insert(ctx, ledgertest.Record("500", "NF-LATE"))
	require.NoError(t, err)

	list, err = s.ListByInvoiceNumber(ctx, "NF-LATE")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "500", list[0].CreditNumber)
	assert.True(t, backend.has("credito:nfse:NF-LATE"))
}

func TestBackendFailureFallsThroughToStore(t *testing.T) {
	ctx := context.Background()
	inner := ledgertest.NewMemoryStore()
	backend := newFakeBackend()
	backend.getErr = errors.New("connection refused")
	s := cache.New(inner, backend, time.Minute, nil)

	_, err := inner.Insert(ctx, ledgertest.Record("42", "NF-42"))
	require.NoError(t, err)

	got, err := s.GetByCreditNumber(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, "42", got.CreditNumber)
}
