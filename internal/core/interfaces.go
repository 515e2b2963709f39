// Package core defines the shared interfaces of the connector.
package core

import (
	"exchange_connector/internal/model"

	"github.com/shopspring/decimal"
)

// ILogger is the logging interface used across the connector
type ILogger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Fatal(msg string, fields ...interface{})
	WithField(key string, value interface{}) ILogger
	WithFields(fields map[string]interface{}) ILogger
}

// IStrategy is the capability a trading strategy exposes to the dispatcher.
// The dispatcher never depends on a concrete strategy type: it only needs the
// watched symbol, the open trade list, and the two tick entry points.
type IStrategy interface {
	// Symbol returns the contract symbol this strategy trades.
	Symbol() string
	// Trades returns the strategy's trade list. The dispatcher recomputes
	// PnL on open trades in place; the slice itself is owned by the strategy.
	Trades() []*model.Trade
	// ProcessTick consumes one raw aggregated trade from the stream.
	ProcessTick(price, quantity decimal.Decimal, timestamp int64) model.TickResult
	// EvaluateSignal receives the result of ProcessTick for the same event.
	EvaluateSignal(res model.TickResult)
}
