package stock

import (
	"context"
	"encoding/json"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mock implementations ---

type mockRepo struct {
	mu     sync.Mutex
	ledger *Ledger
	err    error
}

func newMockRepo(items map[string]int64) *mockRepo {
	l := NewLedger()
	for k, v := range items {
		l.Items[k] = v
	}
	return &mockRepo{ledger: l}
}

func (m *mockRepo) Load(_ context.Context) (*Ledger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.copyLedger(), nil
}

func (m *mockRepo) Update(_ context.Context, fn func(l *Ledger) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	l := m.copyLedger()
	if err := fn(l); err != nil {
		return err
	}
	m.ledger = l
	return nil
}

func (m *mockRepo) copyLedger() *Ledger {
	b, _ := json.Marshal(m.ledger)
	l := NewLedger()
	_ = json.Unmarshal(b, l)
	return l
}

type staticSource struct {
	name  string
	items map[string]int64
	err   error
}

func (s staticSource) Name() string { return s.name }

func (s staticSource) Load(context.Context) (map[string]int64, error) {
	return s.items, s.err
}

// --- Helpers ---

func newTestService(items map[string]int64) (*Service, *mockRepo) {
	repo := newMockRepo(items)
	svc := NewService(repo)
	svc.now = func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) }
	return svc, repo
}

// --- Tests ---

func TestGet_MissingReadsZero(t *testing.T) {
	svc, _ := newTestService(nil)

	qty, err := svc.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.Zero(t, qty)
}

func TestDecrement(t *testing.T) {
	tests := []struct {
		name    string
		stock   int64
		qty     int64
		wantErr error
		want    int64
	}{
		{name: "partial", stock: 5, qty: 3, want: 2},
		{name: "exact", stock: 5, qty: 5, want: 0},
		{name: "one over", stock: 5, qty: 6, wantErr: ErrInsufficientStock, want: 5},
		{name: "negative quantity", stock: 5, qty: -1, wantErr: ErrInvalidQuantity, want: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			svc, repo := newTestService(map[string]int64{"p1": tt.stock})

			err := svc.Decrement(ctx, "p1", tt.qty)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, svc.now(), repo.ledger.LastUpdated)
			}

			got, err := svc.Get(ctx, "p1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestZeroQuantity_NoOp(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(map[string]int64{"p1": 5})
	before := repo.ledger.LastUpdated

	require.NoError(t, svc.Decrement(ctx, "p1", 0))
	require.NoError(t, svc.Increment(ctx, "p1", 0))
	require.NoError(t, svc.Reserve(ctx, []Line{{ProductID: "p1", Quantity: 0}}))

	got, err := svc.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), got)
	assert.Equal(t, before, repo.ledger.LastUpdated)
}

func TestReserve_OverflowingSum(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(map[string]int64{"p1": 5})

	err := svc.Reserve(ctx, []Line{
		{ProductID: "p1", Quantity: 1},
		{ProductID: "p1", Quantity: math.MaxInt64},
	})
	require.ErrorIs(t, err, ErrInvalidQuantity)

	got, err := svc.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), got)
}

func TestDecrement_InsufficientDetails(t *testing.T) {
	svc, _ := newTestService(map[string]int64{"p1": 2})

	err := svc.Decrement(context.Background(), "p1", 3)

	var isErr *InsufficientStockError
	require.ErrorAs(t, err, &isErr)
	assert.Equal(t, "p1", isErr.ProductID)
	assert.Equal(t, int64(3), isErr.Requested)
	assert.Equal(t, int64(2), isErr.Available)
}

func TestIncrement_Unbounded(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(map[string]int64{"p1": 1})

	require.NoError(t, svc.Increment(ctx, "p1", 10))
	require.NoError(t, svc.Increment(ctx, "new", 2))

	got, err := svc.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(11), got)

	got, err = svc.Get(ctx, "new")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got)
}

func TestReserve_AllOrNothing(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(map[string]int64{"p1": 5, "p2": 1})

	err := svc.Reserve(ctx, []Line{
		{ProductID: "p1", Quantity: 3},
		{ProductID: "p2", Quantity: 2},
	})
	require.ErrorIs(t, err, ErrInsufficientStock)

	l, err := svc.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), l.Get("p1"), "earlier line must not be decremented")
	assert.Equal(t, int64(1), l.Get("p2"))
}

func TestReserve_SumsRepeatedProducts(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(map[string]int64{"p1": 5})

	err := svc.Reserve(ctx, []Line{
		{ProductID: "p1", Quantity: 3},
		{ProductID: "p1", Quantity: 3},
	})

	var isErr *InsufficientStockError
	require.ErrorAs(t, err, &isErr)
	assert.Equal(t, int64(6), isErr.Requested)

	require.NoError(t, svc.Reserve(ctx, []Line{
		{ProductID: "p1", Quantity: 2},
		{ProductID: "p1", Quantity: 3},
	}))
	got, err := svc.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Zero(t, got)
}

func TestReserve_RepoError(t *testing.T) {
	svc, repo := newTestService(map[string]int64{"p1": 5})
	repo.err = errors.New("store down")

	err := svc.Reserve(context.Background(), []Line{{ProductID: "p1", Quantity: 1}})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInsufficientStock)
}

func TestDecrement_ConcurrentNeverOversells(t *testing.T) {
	ctx := context.Background()
	const stock, buyers = 10, 50
	svc, _ := newTestService(map[string]int64{"p1": stock})

	var (
		wg      sync.WaitGroup
		success atomic.Int64
	)
	for range buyers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := svc.Decrement(ctx, "p1", 1); err == nil {
				success.Add(1)
			} else {
				assert.ErrorIs(t, err, ErrInsufficientStock)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(stock), success.Load())
	got, err := svc.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Zero(t, got)
}

func TestInitialize(t *testing.T) {
	ctx := context.Background()

	t.Run("first source wins", func(t *testing.T) {
		svc, _ := newTestService(nil)
		name, err := svc.Initialize(ctx,
			staticSource{name: "file", items: map[string]int64{"p1": 7}},
			staticSource{name: "catalog", items: map[string]int64{"p1": 1}},
		)
		require.NoError(t, err)
		assert.Equal(t, "file", name)

		got, _ := svc.Get(ctx, "p1")
		assert.Equal(t, int64(7), got)
	})

	t.Run("falls back when source unavailable", func(t *testing.T) {
		svc, _ := newTestService(nil)
		name, err := svc.Initialize(ctx,
			staticSource{name: "file", err: errors.New("missing")},
			staticSource{name: "catalog", items: map[string]int64{"p1": 1, "p2": -4}},
		)
		require.NoError(t, err)
		assert.Equal(t, "catalog", name)

		l, _ := svc.Snapshot(ctx)
		assert.Equal(t, int64(1), l.Get("p1"))
		assert.Equal(t, int64(0), l.Get("p2"))
	})

	t.Run("keeps seeded ledger", func(t *testing.T) {
		svc, _ := newTestService(map[string]int64{"p1": 2})
		name, err := svc.Initialize(ctx, staticSource{name: "catalog", items: map[string]int64{"p1": 9}})
		require.NoError(t, err)
		assert.Empty(t, name)

		got, _ := svc.Get(ctx, "p1")
		assert.Equal(t, int64(2), got)
	})

	t.Run("no source", func(t *testing.T) {
		svc, _ := newTestService(nil)
		_, err := svc.Initialize(ctx, staticSource{name: "file", err: errors.New("missing")})
		require.ErrorIs(t, err, ErrNoSource)
	})
}
