package strategy

import (
	"sync"
	"testing"

	"exchange_connector/internal/model"
	"exchange_connector/pkg/logging"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubStrategy struct {
	symbol  string
	trades  []*model.Trade
	explode bool

	mu    sync.Mutex
	ticks []model.TickResult
	evals []model.TickResult
}

func (s *stubStrategy) Symbol() string { return s.symbol }

func (s *stubStrategy) Trades() []*model.Trade {
	if s.explode {
		panic("trades unavailable")
	}
	return s.trades
}

func (s *stubStrategy) ProcessTick(price, quantity decimal.Decimal, timestamp int64) model.TickResult {
	if s.explode {
		panic("tick rejected")
	}
	res := model.TickResult{Timestamp: timestamp, Signal: price.String()}
	s.mu.Lock()
	s.ticks = append(s.ticks, res)
	s.mu.Unlock()
	return res
}

func (s *stubStrategy) EvaluateSignal(res model.TickResult) {
	s.mu.Lock()
	s.evals = append(s.evals, res)
	s.mu.Unlock()
}

func newTestDispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	logger, err := logging.NewZapLogger("ERROR")
	require.NoError(t, err)
	return NewDispatcher(logger)
}

func openTrade(side model.TradeSide, entry, qty int64) *model.Trade {
	return &model.Trade{
		Side:       side,
		Quantity:   decimal.NewFromInt(qty),
		EntryPrice: decimal.NewFromInt(entry),
		Status:     model.TradeOpen,
	}
}

func TestPnLLongMarksAgainstBid(t *testing.T) {
	d := newTestDispatcher(t)
	trade := openTrade(model.TradeLong, 100, 2)
	d.Register(1, &stubStrategy{symbol: "BTCUSDT", trades: []*model.Trade{trade}})

	d.OnBookTicker("BTCUSDT", model.Quote{
		Bid: decimal.NewFromInt(105),
		Ask: decimal.NewFromInt(106),
	})

	assert.True(t, trade.PnL().Equal(decimal.NewFromInt(10)), "got %s", trade.PnL())
}

func TestPnLShortMarksAgainstAsk(t *testing.T) {
	d := newTestDispatcher(t)
	trade := openTrade(model.TradeShort, 100, 2)
	d.Register(1, &stubStrategy{symbol: "BTCUSDT", trades: []*model.Trade{trade}})

	d.OnBookTicker("BTCUSDT", model.Quote{
		Bid: decimal.NewFromInt(94),
		Ask: decimal.NewFromInt(95),
	})

	assert.True(t, trade.PnL().Equal(decimal.NewFromInt(10)), "got %s", trade.PnL())
}

func TestPnLRecomputedNotAccumulated(t *testing.T) {
	d := newTestDispatcher(t)
	trade := openTrade(model.TradeLong, 100, 1)
	d.Register(1, &stubStrategy{symbol: "BTCUSDT", trades: []*model.Trade{trade}})

	quote := model.Quote{Bid: decimal.NewFromInt(103), Ask: decimal.NewFromInt(104)}
	d.OnBookTicker("BTCUSDT", quote)
	d.OnBookTicker("BTCUSDT", quote)

	assert.True(t, trade.PnL().Equal(decimal.NewFromInt(3)), "got %s", trade.PnL())
}

func TestPnLSkipsClosedAndUnenteredTrades(t *testing.T) {
	d := newTestDispatcher(t)
	closed := openTrade(model.TradeLong, 100, 1)
	closed.Status = model.TradeClosed
	unentered := &model.Trade{Side: model.TradeLong, Quantity: decimal.NewFromInt(1), Status: model.TradeOpen}
	d.Register(1, &stubStrategy{symbol: "BTCUSDT", trades: []*model.Trade{closed, unentered}})

	d.OnBookTicker("BTCUSDT", model.Quote{
		Bid: decimal.NewFromInt(105),
		Ask: decimal.NewFromInt(106),
	})

	assert.True(t, closed.PnL().IsZero())
	assert.True(t, unentered.PnL().IsZero())
}

func TestPnLUsesUpdatedSymbolQuoteOnly(t *testing.T) {
	d := newTestDispatcher(t)
	btcTrade := openTrade(model.TradeLong, 100, 1)
	ethTrade := openTrade(model.TradeLong, 100, 1)
	d.Register(1, &stubStrategy{symbol: "BTCUSDT", trades: []*model.Trade{btcTrade}})
	d.Register(2, &stubStrategy{symbol: "ETHUSDT", trades: []*model.Trade{ethTrade}})

	d.OnBookTicker("BTCUSDT", model.Quote{
		Bid: decimal.NewFromInt(110),
		Ask: decimal.NewFromInt(111),
	})

	assert.True(t, btcTrade.PnL().Equal(decimal.NewFromInt(10)))
	assert.True(t, ethTrade.PnL().IsZero(), "other symbols must not be marked")
}

func TestAggTradeDeliveredOncePerStrategy(t *testing.T) {
	d := newTestDispatcher(t)
	a := &stubStrategy{symbol: "BTCUSDT"}
	b := &stubStrategy{symbol: "BTCUSDT"}
	other := &stubStrategy{symbol: "ETHUSDT"}
	d.Register(1, a)
	d.Register(2, b)
	d.Register(3, other)

	d.OnAggTrade("BTCUSDT", decimal.NewFromInt(45000), decimal.NewFromInt(1), 77)

	for _, s := range []*stubStrategy{a, b} {
		require.Len(t, s.ticks, 1)
		require.Len(t, s.evals, 1)
		assert.Equal(t, int64(77), s.ticks[0].Timestamp)
		assert.Equal(t, s.ticks[0], s.evals[0])
	}
	assert.Empty(t, other.ticks)
}

func TestPanickingStrategyDoesNotBlockSiblings(t *testing.T) {
	d := newTestDispatcher(t)
	bad := &stubStrategy{symbol: "BTCUSDT", explode: true}
	good := &stubStrategy{symbol: "BTCUSDT"}
	goodTrade := openTrade(model.TradeLong, 100, 1)
	goodWithTrade := &stubStrategy{symbol: "BTCUSDT", trades: []*model.Trade{goodTrade}}
	d.Register(1, bad)
	d.Register(2, good)
	d.Register(3, goodWithTrade)

	assert.NotPanics(t, func() {
		d.OnAggTrade("BTCUSDT", decimal.NewFromInt(45000), decimal.NewFromInt(1), 1)
		d.OnBookTicker("BTCUSDT", model.Quote{
			Bid: decimal.NewFromInt(105),
			Ask: decimal.NewFromInt(106),
		})
	})

	assert.Len(t, good.ticks, 1)
	assert.True(t, goodTrade.PnL().Equal(decimal.NewFromInt(5)))
}

func TestRegisterRemove(t *testing.T) {
	d := newTestDispatcher(t)
	s := &stubStrategy{symbol: "BTCUSDT"}
	d.Register(7, s)
	assert.Equal(t, 1, d.Count())

	d.Remove(7)
	assert.Equal(t, 0, d.Count())

	d.OnAggTrade("BTCUSDT", decimal.NewFromInt(1), decimal.NewFromInt(1), 1)
	assert.Empty(t, s.ticks)
}
