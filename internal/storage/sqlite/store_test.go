package sqlite

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/kart/internal/kv"
	"github.com/xenking/kart/internal/kv/kvtest"
)

func newTestStore(t *testing.T, namespace string) *Store {
	t.Helper()
	dsn := fmt.Sprintf("file:kart_%s?mode=memory&cache=shared", uuid.NewString())
	s, err := Open(dsn, namespace)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore(t *testing.T) {
	kvtest.Run(t, func(t *testing.T) kv.Store { return newTestStore(t, "") })
}

func TestStore_Namespaced(t *testing.T) {
	kvtest.Run(t, func(t *testing.T) kv.Store { return newTestStore(t, "kart") })
}

func TestStore_ScanEscapesWildcards(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, "")

	require.NoError(t, s.Set(ctx, "orders:a_b", []byte(`1`)))
	require.NoError(t, s.Set(ctx, "orders:axb", []byte(`2`)))

	got, err := s.Scan(ctx, "orders:a_")
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Contains(t, got, "orders:a_b")
}

func TestStore_SetBumpsVersion(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, "")

	require.NoError(t, s.Set(ctx, "k", []byte(`1`)))
	require.NoError(t, s.Set(ctx, "k", []byte(`2`)))

	var e Entry
	require.NoError(t, s.db.Where("key = ?", "k").Take(&e).Error)
	assert.Equal(t, int64(2), e.Version)
	assert.Equal(t, "2", string(e.Value))
}
