package replay_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fiscal-credits/creditledger/internal/ingestion"
	"github.com/fiscal-credits/creditledger/internal/ledger/ledgertest"
	"github.com/fiscal-credits/creditledger/internal/replay"
	apperrors "github.com/fiscal-credits/creditledger/pkg/errors"
	"github.com/fiscal-credits/creditledger/pkg/metrics"
	"github.com/fiscal-credits/creditledger/pkg/queue"
	"github.com/fiscal-credits/creditledger/pkg/queue/queuetest"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func event(creditNumber string) ingestion.CreditEvent {
	return ledgertest.Record(creditNumber, "7891011").Event()
}

func TestProcessEventInsertsOnce(t *testing.T) {
	ctx := context.Background()
	store := ledgertest.NewMemoryStore()
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	p := replay.New(store, m)

	require.NoError(t, p.ProcessEvent(ctx, event("123456")))
	require.NoError(t, p.ProcessEvent(ctx, event("123456")))

	assert.Equal(t, 1, store.Len())
	assert.Equal(t, 1, store.Calls("Insert"))
	got, err := store.GetByCreditNumber(ctx, "123456")
	require.NoError(t, err)
	ledgertest.AssertSameCredit(t, ledgertest.Record("123456", "7891011"), got)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReplayTotal.WithLabelValues("inserted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReplayTotal.WithLabelValues("skipped")))
}

func TestProcessEventPropagatesReadFailure(t *testing.T) {
	store := ledgertest.NewMemoryStore()
	cause := errors.New("store unavailable")
	store.ExistsErr = func(string) error { return cause }
	p := replay.New(store, nil)

	err := p.ProcessEvent(context.Background(), event("1"))

	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, apperrors.ErrStoreRead)
	assert.Zero(t, store.Calls("Insert"))
}

func TestProcessEventPropagatesInsertFailure(t *testing.T) {
	store := ledgertest.NewMemoryStore()
	cause := errors.New("disk full")
	store.InsertErr = func(ingestion.CreditRecord) error { return cause }
	p := replay.New(store, nil)

	err := p.ProcessEvent(context.Background(), event("1"))

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, apperrors.ErrStoreWrite)
	assert.Zero(t, store.Len())
}

func TestProcessEventRejectsMissingCreditNumber(t *testing.T) {
	store := ledgertest.NewMemoryStore()
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	p := replay.New(store, m)

	evt, err := queue.DecodeJSON[ingestion.CreditEvent]([]byte(`{}`))
	require.NoError(t, err)
	require.NotNil(t, evt)

	err = p.ProcessEvent(context.Background(), *evt)

	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Zero(t, store.Calls("Insert"))
	assert.Zero(t, store.Len())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReplayTotal.WithLabelValues("invalid")))

	blank := event("   ")
	assert.ErrorIs(t, p.ProcessEvent(context.Background(), blank), apperrors.ErrInvalidInput)
	assert.Zero(t, store.Len())
}

// racingStore reports every credit as absent, so a duplicate reaches the
// unique index.
type racingStore struct {
	*ledgertest.MemoryStore
}

func (racingStore) ExistsByCreditNumber(context.Context, string) (bool, error) {
	return false, nil
}

func TestProcessEventTreatsUniqueViolationAsPresent(t *testing.T) {
	store := racingStore{ledgertest.NewMemoryStore()}
	p := replay.New(store, nil)

	require.NoError(t, p.ProcessEvent(context.Background(), event("77")))
	require.NoError(t, p.ProcessEvent(context.Background(), event("77")))

	assert.Equal(t, 1, store.Len())
}

func TestProcessEventThroughQueueConsumer(t *testing.T) {
	store := ledgertest.NewMemoryStore()
	failing := errors.New("store unavailable")
	var mu sync.Mutex
	store.ExistsErr = func(creditNumber string) error {
		mu.Lock()
		defer mu.Unlock()
		if creditNumber == "bad" {
			return failing
		}
		return nil
	}
	p := replay.New(store, nil)
	src := queuetest.NewSource(5)
	c := queue.NewConsumer(src, p.ProcessEvent, queue.Options{Concurrency: 2})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	ok := src.Push([]byte(`{"creditNumber":"123456","invoiceNumber":"7891011","constitutionDate":"2024-02-25T00:00:00Z","taxAmount":1500.75,"creditType":"ISSQN","isSimplifiedRegime":true,"rate":5.0,"billedAmount":30000.00,"deductionAmount":5000.00,"calculationBase":25000.00}`))
	bad := src.Push([]byte(`{"creditNumber":"bad"}`))
	empty := src.Push([]byte(`null`))
	keyless := src.Push([]byte(`{}`))

	for _, d := range []*queuetest.Delivery{ok, bad, empty, keyless} {
		select {
		case <-d.Settled():
		case <-time.After(5 * time.Second):
			t.Fatalf("delivery %s not settled", d.ID())
		}
	}
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, "completed", ok.State())
	assert.Equal(t, "dead_lettered", bad.State())
	assert.Contains(t, bad.Reason(), "store unavailable")
	assert.Equal(t, "completed", empty.State())
	assert.Equal(t, "dead_lettered", keyless.State())
	assert.Contains(t, keyless.Reason(), "no credit number")
	assert.Equal(t, 1, store.Len())

	got, err := store.GetByCreditNumber(context.Background(), "123456")
	require.NoError(t, err)
	assert.Equal(t, "1500.75", got.TaxAmount.StringFixed(2))
}
