// Package model defines the typed records the connector exchanges with callers.
package model

import (
	"sync"

	"github.com/shopspring/decimal"
)

// Side is an order side
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderType is an exchange order type
type OrderType string

const (
	OrderTypeLimit  OrderType = "LIMIT"
	OrderTypeMarket OrderType = "MARKET"
)

// OrderState is the lifecycle state of an order as reported by the exchange
type OrderState string

const (
	OrderStateNew             OrderState = "NEW"
	OrderStatePartiallyFilled OrderState = "PARTIALLY_FILLED"
	OrderStateFilled          OrderState = "FILLED"
	OrderStateCanceled        OrderState = "CANCELED"
	OrderStateRejected        OrderState = "REJECTED"
	OrderStateExpired         OrderState = "EXPIRED"
)

// Contract is an exchange-defined tradable instrument. The contract set is
// loaded once at startup and is read-only for the process lifetime.
type Contract struct {
	Symbol            string
	BaseAsset         string
	QuoteAsset        string
	MarginAsset       string
	LotSize           decimal.Decimal
	TickSize          decimal.Decimal
	PricePrecision    int
	QuantityPrecision int
}

// Candle is one OHLCV bar. Immutable.
type Candle struct {
	Timestamp int64
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
	Interval  string
}

// Balance is a per-asset account snapshot. Replaced wholesale on each query.
type Balance struct {
	Asset         string
	WalletBalance decimal.Decimal
	UnrealizedPnL decimal.Decimal
}

// Quote is the best bid/ask pair for a symbol. Both fields are always
// written together; readers never see one side from an older update.
type Quote struct {
	Bid decimal.Decimal
	Ask decimal.Decimal
}

// OrderStatus is the immutable result of a place/cancel/query operation.
type OrderStatus struct {
	OrderID       int64
	ClientOrderID string
	Symbol        string
	Side          Side
	Type          OrderType
	Price         decimal.Decimal
	OrigQty       decimal.Decimal
	ExecutedQty   decimal.Decimal
	AvgPrice      decimal.Decimal
	State         OrderState
	UpdateTime    int64
}

// TradeSide distinguishes long and short positions
type TradeSide string

const (
	TradeLong  TradeSide = "long"
	TradeShort TradeSide = "short"
)

// TradeStatus is the lifecycle state of a strategy-owned trade
type TradeStatus string

const (
	TradeOpen   TradeStatus = "open"
	TradeClosed TradeStatus = "closed"
)

// TickResult is what a strategy derives from one raw trade tick. The
// dispatcher hands it back to the strategy's EvaluateSignal entry point
// without interpreting it.
type TickResult struct {
	Timestamp int64
	Signal    string
}

// Trade is a position owned by a strategy. PnL is recomputed from the
// current quote on every matching book-ticker update, never accumulated;
// it is written by the stream goroutine and read from caller goroutines,
// hence the lock.
type Trade struct {
	Side       TradeSide
	Quantity   decimal.Decimal
	EntryPrice decimal.Decimal
	Status     TradeStatus

	mu  sync.RWMutex
	pnl decimal.Decimal
}

// HasEntry reports whether the trade's entry price has been established.
func (t *Trade) HasEntry() bool {
	return t.EntryPrice.IsPositive()
}

// PnL returns the last computed profit and loss.
func (t *Trade) PnL() decimal.Decimal {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.pnl
}

// SetPnL stores a freshly computed profit and loss.
func (t *Trade) SetPnL(pnl decimal.Decimal) {
	t.mu.Lock()
	t.pnl = pnl
	t.mu.Unlock()
}
