package app

import (
	"context"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xenking/kart/internal/domain/order"
)

var _ order.Recorder = (*Metrics)(nil)

// Metrics records order lifecycle events as otel counters.
type Metrics struct {
	created   metric.Int64Counter
	cancelled metric.Int64Counter
	revenue   metric.Int64Counter
	rejected  metric.Int64Counter
	degraded  metric.Int64Counter
}

// NewMetrics registers the shop counters on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter("github.com/xenking/kart")

	var (
		m   Metrics
		err error
	)
	if m.created, err = meter.Int64Counter("kart.orders.created",
		metric.WithDescription("Orders created"),
	); err != nil {
		return nil, errors.Wrap(err, "orders.created")
	}
	if m.cancelled, err = meter.Int64Counter("kart.orders.cancelled",
		metric.WithDescription("Orders cancelled"),
	); err != nil {
		return nil, errors.Wrap(err, "orders.cancelled")
	}
	if m.revenue, err = meter.Int64Counter("kart.orders.revenue",
		metric.WithDescription("Order totals at creation"),
		metric.WithUnit("{currency_unit}"),
	); err != nil {
		return nil, errors.Wrap(err, "orders.revenue")
	}
	if m.rejected, err = meter.Int64Counter("kart.stock.rejections",
		metric.WithDescription("Checkouts rejected for insufficient stock"),
	); err != nil {
		return nil, errors.Wrap(err, "stock.rejections")
	}
	if m.degraded, err = meter.Int64Counter("kart.points.reversal_degraded",
		metric.WithDescription("Cancellations whose reversal did not fully complete"),
	); err != nil {
		return nil, errors.Wrap(err, "points.reversal_degraded")
	}
	return &m, nil
}

func (m *Metrics) OrderCreated(ctx context.Context, o *order.Order) {
	attrs := metric.WithAttributes(attribute.String("payment_method", o.PaymentMethod))
	m.created.Add(ctx, 1, attrs)
	m.revenue.Add(ctx, o.Total, attrs)
}

func (m *Metrics) OrderCancelled(ctx context.Context, res *order.CancelResult) {
	m.cancelled.Add(ctx, 1)
	if res.Degraded() {
		m.degraded.Add(ctx, 1, metric.WithAttributes(
			attribute.Bool("stock_restored", res.StockRestored),
			attribute.Bool("points_refunded", res.PointsRefunded),
			attribute.Bool("earned_reversed", res.EarnedReversed),
		))
	}
}

func (m *Metrics) StockRejected(ctx context.Context, productID string) {
	m.rejected.Add(ctx, 1, metric.WithAttributes(attribute.String("product_id", productID)))
}
