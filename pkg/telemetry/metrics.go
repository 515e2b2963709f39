package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric names
const (
	MetricTicksTotal          = "connector_stream_ticks_total"
	MetricReconnectsTotal     = "connector_stream_reconnects_total"
	MetricDispatchErrorsTotal = "connector_dispatch_errors_total"
	MetricOrdersPlacedTotal   = "connector_orders_placed_total"
	MetricPnLUnrealized       = "connector_pnl_unrealized"
	MetricQuotesCached        = "connector_quotes_cached"
)

// MetricsHolder holds initialized instruments
type MetricsHolder struct {
	TicksTotal          metric.Int64Counter
	ReconnectsTotal     metric.Int64Counter
	DispatchErrorsTotal metric.Int64Counter
	OrdersPlacedTotal   metric.Int64Counter
	PnLUnrealized       metric.Float64ObservableGauge
	QuotesCached        metric.Int64ObservableGauge

	// State for observable gauges
	mu               sync.RWMutex
	unrealizedPnLMap map[string]float64
	quotesCached     int64
}

var (
	globalMetrics *MetricsHolder
	initOnce      sync.Once
)

// GetGlobalMetrics returns the singleton metrics holder
func GetGlobalMetrics() *MetricsHolder {
	initOnce.Do(func() {
		globalMetrics = &MetricsHolder{
			unrealizedPnLMap: make(map[string]float64),
		}
	})
	return globalMetrics
}

// InitMetrics initializes instruments using the meter
func (m *MetricsHolder) InitMetrics(meter metric.Meter) error {
	var err error

	m.TicksTotal, err = meter.Int64Counter(MetricTicksTotal, metric.WithDescription("Total stream ticks processed, by channel"))
	if err != nil {
		return err
	}

	m.ReconnectsTotal, err = meter.Int64Counter(MetricReconnectsTotal, metric.WithDescription("Total stream reconnect attempts"))
	if err != nil {
		return err
	}

	m.DispatchErrorsTotal, err = meter.Int64Counter(MetricDispatchErrorsTotal, metric.WithDescription("Total strategy callback failures absorbed at the dispatch boundary"))
	if err != nil {
		return err
	}

	m.OrdersPlacedTotal, err = meter.Int64Counter(MetricOrdersPlacedTotal, metric.WithDescription("Total orders placed"))
	if err != nil {
		return err
	}

	m.PnLUnrealized, err = meter.Float64ObservableGauge(MetricPnLUnrealized, metric.WithDescription("Current unrealized PnL per symbol"),
		metric.WithFloat64Callback(func(ctx context.Context, obs metric.Float64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for sym, val := range m.unrealizedPnLMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("symbol", sym)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	m.QuotesCached, err = meter.Int64ObservableGauge(MetricQuotesCached, metric.WithDescription("Number of symbols with a cached quote"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			obs.Observe(m.quotesCached)
			return nil
		}))
	if err != nil {
		return err
	}

	return nil
}

// SetUnrealizedPnL records the latest unrealized PnL for a symbol
func (m *MetricsHolder) SetUnrealizedPnL(symbol string, pnl float64) {
	m.mu.Lock()
	m.unrealizedPnLMap[symbol] = pnl
	m.mu.Unlock()
}

// SetQuotesCached records the current quote cache size
func (m *MetricsHolder) SetQuotesCached(n int64) {
	m.mu.Lock()
	m.quotesCached = n
	m.mu.Unlock()
}
