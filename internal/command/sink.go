package command

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/xenking/caja/internal/domain/order"
)

// LogSink logs notifications with the logger in the context.
type LogSink struct{}

var _ Sink = LogSink{}

// Notify implements Sink.
func (LogSink) Notify(ctx context.Context, n Notification) {
	lg := zctx.From(ctx)
	fields := []zap.Field{
		zap.String("operation", n.Operation),
		zap.String("class", string(n.Class)),
		zap.Duration("duration", n.Duration),
	}
	switch n.Class {
	case ClassOK:
		lg.Debug("Command completed", fields...)
	case ClassUnavailable:
		lg.Error("Command failed", append(fields, zap.String("detail", n.Detail))...)
	default:
		lg.Warn("Command rejected", append(fields, zap.String("message", n.Message))...)
	}
}

// MetricsSink counts commands and records their duration. It also observes
// payments, summing the paid amount per payment method.
type MetricsSink struct {
	commands metric.Int64Counter
	duration metric.Float64Histogram
	paid     metric.Float64Counter
}

var (
	_ Sink                  = (*MetricsSink)(nil)
	_ order.PaymentObserver = (*MetricsSink)(nil)
)

// NewMetricsSink creates a MetricsSink on meter.
func NewMetricsSink(meter metric.Meter) (*MetricsSink, error) {
	commands, err := meter.Int64Counter("caja.commands",
		metric.WithDescription("Commands run, by operation and outcome class"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "commands counter")
	}
	duration, err := meter.Float64Histogram("caja.command.duration",
		metric.WithDescription("Command duration"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "duration histogram")
	}
	paid, err := meter.Float64Counter("caja.orders.paid_amount",
		metric.WithDescription("Total of paid orders, by payment method"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "paid amount counter")
	}
	return &MetricsSink{commands: commands, duration: duration, paid: paid}, nil
}

// Notify implements Sink.
func (s *MetricsSink) Notify(ctx context.Context, n Notification) {
	attrs := metric.WithAttributes(
		attribute.String("operation", n.Operation),
		attribute.String("class", string(n.Class)),
	)
	s.commands.Add(ctx, 1, attrs)
	s.duration.Record(ctx, n.Duration.Seconds(), attrs)
}

// Paid implements order.PaymentObserver.
func (s *MetricsSink) Paid(ctx context.Context, o *order.Order, p *order.Payment) {
	s.paid.Add(ctx, o.Total.InexactFloat64(), metric.WithAttributes(
		attribute.String("method", string(p.Method)),
	))
}
