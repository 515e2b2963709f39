// Package strategy holds the registry of active strategies and routes
// stream events to them.
package strategy

import (
	"context"
	"sync"

	"exchange_connector/internal/core"
	"exchange_connector/internal/model"
	"exchange_connector/pkg/telemetry"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Dispatcher routes book-ticker and aggregated-trade events to registered
// strategies. It is driven from the single stream goroutine, so events for
// a symbol are delivered in arrival order; registration and removal may
// happen from any goroutine.
type Dispatcher struct {
	mu         sync.RWMutex
	strategies map[int64]core.IStrategy

	logger     core.ILogger
	errCounter metric.Int64Counter
}

// NewDispatcher creates an empty dispatcher
func NewDispatcher(logger core.ILogger) *Dispatcher {
	meter := telemetry.GetMeter("dispatcher")
	errCounter, _ := meter.Int64Counter("connector_dispatch_errors_total",
		metric.WithDescription("Strategy callback failures absorbed at the dispatch boundary"))

	return &Dispatcher{
		strategies: make(map[int64]core.IStrategy),
		logger:     logger.WithField("component", "dispatcher"),
		errCounter: errCounter,
	}
}

// Register adds or replaces a strategy under id
func (d *Dispatcher) Register(id int64, s core.IStrategy) {
	d.mu.Lock()
	d.strategies[id] = s
	d.mu.Unlock()
}

// Remove deletes the strategy registered under id
func (d *Dispatcher) Remove(id int64) {
	d.mu.Lock()
	delete(d.strategies, id)
	d.mu.Unlock()
}

// Count returns the number of registered strategies
func (d *Dispatcher) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.strategies)
}

// matching returns the strategies watching symbol
func (d *Dispatcher) matching(symbol string) []core.IStrategy {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []core.IStrategy
	for _, s := range d.strategies {
		if s.Symbol() == symbol {
			out = append(out, s)
		}
	}
	return out
}

// OnBookTicker recomputes PnL for every open trade of every strategy
// watching symbol, from the just-updated quote. PnL is always derived from
// the updated symbol's own quote. Long positions mark against the bid,
// short positions against the ask.
func (d *Dispatcher) OnBookTicker(symbol string, quote model.Quote) {
	total := decimal.Zero
	for _, s := range d.matching(symbol) {
		d.safeRecomputePnL(s, quote, &total)
	}
	totalF, _ := total.Float64()
	telemetry.GetGlobalMetrics().SetUnrealizedPnL(symbol, totalF)
}

func (d *Dispatcher) safeRecomputePnL(s core.IStrategy, quote model.Quote, total *decimal.Decimal) {
	defer d.recoverCallback(s, "pnl")

	for _, trade := range s.Trades() {
		if trade.Status != model.TradeOpen || !trade.HasEntry() {
			continue
		}
		var pnl decimal.Decimal
		switch trade.Side {
		case model.TradeLong:
			pnl = quote.Bid.Sub(trade.EntryPrice).Mul(trade.Quantity)
		case model.TradeShort:
			pnl = trade.EntryPrice.Sub(quote.Ask).Mul(trade.Quantity)
		default:
			continue
		}
		trade.SetPnL(pnl)
		*total = total.Add(pnl)
	}
}

// OnAggTrade hands one aggregated trade to every strategy watching symbol:
// first the raw tick, then the derived result. Each matching strategy sees
// the event exactly once; a failure in one strategy never reaches its
// siblings or the stream loop.
func (d *Dispatcher) OnAggTrade(symbol string, price, quantity decimal.Decimal, timestamp int64) {
	for _, s := range d.matching(symbol) {
		d.safeDeliverTrade(s, price, quantity, timestamp)
	}
}

func (d *Dispatcher) safeDeliverTrade(s core.IStrategy, price, quantity decimal.Decimal, timestamp int64) {
	defer d.recoverCallback(s, "trade")

	res := s.ProcessTick(price, quantity, timestamp)
	s.EvaluateSignal(res)
}

func (d *Dispatcher) recoverCallback(s core.IStrategy, stage string) {
	if r := recover(); r != nil {
		d.errCounter.Add(context.Background(), 1, metric.WithAttributes(attribute.String("stage", stage)))
		d.logger.Error("Strategy callback failed", "symbol", s.Symbol(), "stage", stage, "panic", r)
	}
}
