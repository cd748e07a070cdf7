package reporting

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"
)

type metrics struct {
	itemsStarted  metric.Int64Counter
	itemsFinished metric.Int64Counter
	logsEmitted   metric.Int64Counter
}

// newMetrics registers the client counters on the global meter provider,
// falling back to no-op counters when registration fails.
func newMetrics(logger *zap.Logger) *metrics {
	m, err := registerMetrics(otel.Meter("ftrp/reporting"))
	if err != nil {
		logger.Warn("reporting metrics disabled", zap.Error(err))
		m, _ = registerMetrics(noop.NewMeterProvider().Meter("ftrp/reporting"))
	}
	return m
}

func registerMetrics(meter metric.Meter) (*metrics, error) {
	started, err := meter.Int64Counter(
		"reporting_items_started_total",
		metric.WithDescription("Total number of test items started"),
	)
	if err != nil {
		return nil, err
	}

	finished, err := meter.Int64Counter(
		"reporting_items_finished_total",
		metric.WithDescription("Total number of test items finished"),
	)
	if err != nil {
		return nil, err
	}

	logs, err := meter.Int64Counter(
		"reporting_logs_total",
		metric.WithDescription("Total number of log entries and attachments sent"),
	)
	if err != nil {
		return nil, err
	}

	return &metrics{itemsStarted: started, itemsFinished: finished, logsEmitted: logs}, nil
}

func (m *metrics) itemStarted(ctx context.Context, t ItemType) {
	m.itemsStarted.Add(ctx, 1, metric.WithAttributes(attribute.String("type", string(t))))
}

func (m *metrics) itemFinished(ctx context.Context, s Status) {
	m.itemsFinished.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(s))))
}

func (m *metrics) logEmitted(ctx context.Context, level LogLevel, attachment bool) {
	m.logsEmitted.Add(ctx, 1, metric.WithAttributes(
		attribute.String("level", string(level)),
		attribute.Bool("attachment", attachment),
	))
}
