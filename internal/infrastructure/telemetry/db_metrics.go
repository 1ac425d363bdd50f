package telemetry

import (
	"context"
	"database/sql"
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

// RegisterDBPoolMetrics exports connection pool statistics as observable
// instruments read from stats at each collection.
func RegisterDBPoolMetrics(meter metric.Meter, stats func() sql.DBStats) (metric.Registration, error) {
	open, err := meter.Int64ObservableGauge("db_pool_open_connections",
		metric.WithDescription("Open connections, in use plus idle"))
	if err != nil {
		return nil, fmt.Errorf("failed to create open connections gauge: %w", err)
	}
	inUse, err := meter.Int64ObservableGauge("db_pool_in_use_connections",
		metric.WithDescription("Connections currently in use"))
	if err != nil {
		return nil, fmt.Errorf("failed to create in-use gauge: %w", err)
	}
	maxOpen, err := meter.Int64ObservableGauge("db_pool_max_open_connections",
		metric.WithDescription("Configured connection limit"))
	if err != nil {
		return nil, fmt.Errorf("failed to create max open gauge: %w", err)
	}
	waits, err := meter.Int64ObservableCounter("db_pool_wait_total",
		metric.WithDescription("Times a query waited for a free connection"))
	if err != nil {
		return nil, fmt.Errorf("failed to create wait counter: %w", err)
	}
	waitTime, err := meter.Float64ObservableCounter("db_pool_wait_seconds_total",
		metric.WithDescription("Time spent waiting for a free connection"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("failed to create wait time counter: %w", err)
	}

	return meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		s := stats()
		o.ObserveInt64(open, int64(s.OpenConnections))
		o.ObserveInt64(inUse, int64(s.InUse))
		o.ObserveInt64(maxOpen, int64(s.MaxOpenConnections))
		o.ObserveInt64(waits, s.WaitCount)
		o.ObserveFloat64(waitTime, s.WaitDuration.Seconds())
		return nil
	}, open, inUse, maxOpen, waits, waitTime)
}
