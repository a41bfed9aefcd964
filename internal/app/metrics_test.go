package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/xenking/kart/internal/domain/order"
)

func TestMetrics(t *testing.T) {
	m, err := NewMetrics(noop.NewMeterProvider())
	require.NoError(t, err)

	ctx := context.Background()
	assert.NotPanics(t, func() {
		m.OrderCreated(ctx, &order.Order{ID: "ORD-1", PaymentMethod: "card", Total: 3500})
		m.OrderCancelled(ctx, &order.CancelResult{StockRestored: true})
		m.StockRejected(ctx, "p1")
	})
}
