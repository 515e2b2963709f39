package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"exchange_connector/internal/config"
	"exchange_connector/internal/core"
	"exchange_connector/internal/marketdata"
	"exchange_connector/internal/model"
	"exchange_connector/internal/strategy"
	"exchange_connector/pkg/concurrency"
	apperrors "exchange_connector/pkg/errors"
	"exchange_connector/pkg/telemetry"
	"exchange_connector/pkg/websocket"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// PlaceOrderRequest describes a new order. Price and TimeInForce are
// optional and omitted from the request when unset.
type PlaceOrderRequest struct {
	Symbol        string
	Side          model.Side
	Type          model.OrderType
	Quantity      decimal.Decimal
	Price         *decimal.Decimal
	TimeInForce   string
	ClientOrderID string
}

// Client is the venue connectivity core. It owns the REST gateway, the
// streaming session, the shared quote cache and the strategy dispatcher.
// Market mode and network are fixed at construction.
type Client struct {
	cfg        *config.Config
	endpoints  Endpoints
	signer     *Signer
	gateway    *Gateway
	cache      *marketdata.Cache
	dispatcher *strategy.Dispatcher
	ws         *websocket.Client
	subs       *SubscriptionManager
	pool       *concurrency.WorkerPool
	logger     core.ILogger

	// Loaded once at construction, read-only afterwards
	contracts map[string]model.Contract
}

// NewClient builds the connectivity core: it loads the tradeable contract
// set over REST, records the configured stream subscriptions and starts the
// streaming session in the background. Construction fails if the contract
// set cannot be loaded; everything downstream depends on it.
func NewClient(ctx context.Context, cfg *config.Config, logger core.ILogger) (*Client, error) {
	endpoints := NewEndpoints(cfg.Exchange.Mode, cfg.Exchange.Network,
		cfg.Exchange.BaseURL, cfg.Exchange.StreamURL)

	gateway := NewGateway(GatewayConfig{
		BaseURL:      endpoints.BaseURL(),
		APIKey:       cfg.Exchange.APIKey,
		Timeout:      time.Duration(cfg.Timing.RestTimeout) * time.Second,
		RateLimit:    cfg.Exchange.RateLimit,
		RetryEnabled: cfg.Exchange.RetryEnabled,
	}, logger)

	c := &Client{
		cfg:        cfg,
		endpoints:  endpoints,
		signer:     NewSigner(string(cfg.Exchange.SecretKey)),
		gateway:    gateway,
		cache:      marketdata.NewCache(),
		dispatcher: strategy.NewDispatcher(logger),
		logger:     logger,
	}

	contracts, err := c.loadContracts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load contracts: %w", err)
	}
	c.contracts = contracts
	logger.Info("contracts loaded",
		"mode", string(cfg.Exchange.Mode),
		"network", string(cfg.Exchange.Network),
		"count", len(contracts))

	// Initial account snapshot. Not load-bearing, so failure only logs.
	if balances, err := c.GetBalances(ctx); err != nil {
		logger.Warn("initial balance snapshot failed", "error", err)
	} else {
		logger.Info("balances loaded", "assets", len(balances))
	}

	c.pool = concurrency.NewWorkerPool(concurrency.PoolConfig{
		Name:        "quote-snapshot",
		MaxWorkers:  cfg.Concurrency.SnapshotPoolSize,
		MaxCapacity: cfg.Concurrency.SnapshotPoolBuffer,
	}, logger)

	c.ws = websocket.NewClient(endpoints.StreamURL(), c.handleMessage,
		time.Duration(cfg.Timing.WebsocketReconnectDelay)*time.Second, logger)
	c.ws.SetPingConfig(
		time.Duration(cfg.Timing.WebsocketPingInterval)*time.Second,
		10*time.Second,
		time.Duration(cfg.Timing.WebsocketPongWait)*time.Second)
	c.subs = NewSubscriptionManager(c.ws, logger)
	c.ws.SetOnConnected(c.onConnected)

	// Record the configured streams before the first connect. The send below
	// fails while disconnected; the connect hook replays the recorded set.
	for _, channel := range cfg.Trading.Channels {
		c.subs.Subscribe(cfg.Trading.WatchSymbols, channel)
	}

	c.ws.Start()
	return c, nil
}

// Stop shuts down the streaming session and the snapshot pool
func (c *Client) Stop() {
	c.ws.Stop()
	c.pool.Stop()
}

// Contracts returns the contract set loaded at construction
func (c *Client) Contracts() map[string]model.Contract {
	return c.contracts
}

// Contract looks up one contract by symbol
func (c *Client) Contract(symbol string) (model.Contract, bool) {
	ct, ok := c.contracts[symbol]
	return ct, ok
}

// Cache exposes the shared quote cache
func (c *Client) Cache() *marketdata.Cache {
	return c.cache
}

// RegisterStrategy registers a strategy for stream dispatch under id
func (c *Client) RegisterStrategy(id int64, s core.IStrategy) {
	c.dispatcher.Register(id, s)
}

// RemoveStrategy removes a registered strategy
func (c *Client) RemoveStrategy(id int64) {
	c.dispatcher.Remove(id)
}

// Subscribe requests a stream channel for the given contracts
func (c *Client) Subscribe(contracts []model.Contract, channel string) {
	symbols := make([]string, 0, len(contracts))
	for _, ct := range contracts {
		symbols = append(symbols, ct.Symbol)
	}
	c.subs.Subscribe(symbols, channel)
}

// WarmQuotes fans REST top-of-book snapshots for the given contracts out
// over the worker pool, seeding the cache before stream data arrives
func (c *Client) WarmQuotes(ctx context.Context, contracts []model.Contract) {
	for _, ct := range contracts {
		contract := ct
		err := c.pool.Submit(func() {
			if _, err := c.GetBidAsk(ctx, contract); err != nil {
				c.logger.Warn("quote warm-up failed", "symbol", contract.Symbol, "error", err)
			}
		})
		if err != nil {
			c.logger.Warn("quote warm-up not scheduled", "symbol", contract.Symbol, "error", err)
		}
	}
}

// loadContracts fetches exchange metadata and builds the contract set.
// Contracts margined in BUSD are skipped.
func (c *Client) loadContracts(ctx context.Context) (map[string]model.Contract, error) {
	body, err := c.gateway.Get(ctx, c.endpoints.ExchangeInfo(), nil)
	if err != nil {
		return nil, err
	}

	var info struct {
		Symbols []struct {
			Symbol            string `json:"symbol"`
			BaseAsset         string `json:"baseAsset"`
			QuoteAsset        string `json:"quoteAsset"`
			MarginAsset       string `json:"marginAsset"`
			PricePrecision    int    `json:"pricePrecision"`
			QuantityPrecision int    `json:"quantityPrecision"`
			Filters           []struct {
				FilterType string `json:"filterType"`
				TickSize   string `json:"tickSize"`
				StepSize   string `json:"stepSize"`
			} `json:"filters"`
		} `json:"symbols"`
	}
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("failed to parse exchange info: %w", err)
	}

	contracts := make(map[string]model.Contract, len(info.Symbols))
	for _, s := range info.Symbols {
		if s.MarginAsset == "BUSD" {
			continue
		}

		ct := model.Contract{
			Symbol:            s.Symbol,
			BaseAsset:         s.BaseAsset,
			QuoteAsset:        s.QuoteAsset,
			MarginAsset:       s.MarginAsset,
			PricePrecision:    s.PricePrecision,
			QuantityPrecision: s.QuantityPrecision,
		}
		for _, f := range s.Filters {
			switch f.FilterType {
			case "PRICE_FILTER":
				if ts, err := decimal.NewFromString(f.TickSize); err == nil {
					ct.TickSize = ts
				}
			case "LOT_SIZE":
				if ss, err := decimal.NewFromString(f.StepSize); err == nil {
					ct.LotSize = ss
				}
			}
		}
		contracts[ct.Symbol] = ct
	}
	return contracts, nil
}

// GetHistoricalCandles fetches up to 1000 most recent candles for the
// contract at the configured interval
func (c *Client) GetHistoricalCandles(ctx context.Context, contract model.Contract, interval string) ([]model.Candle, error) {
	params := Params{}.
		With("symbol", contract.Symbol).
		With("interval", interval).
		With("limit", "1000")

	body, err := c.gateway.Get(ctx, c.endpoints.Klines(), params)
	if err != nil {
		return nil, err
	}

	var raw [][]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse candles: %w", err)
	}

	candles := make([]model.Candle, 0, len(raw))
	for _, k := range raw {
		if len(k) < 6 {
			continue
		}
		var ts int64
		if err := json.Unmarshal(k[0], &ts); err != nil {
			continue
		}
		fields := make([]decimal.Decimal, 5)
		ok := true
		for i := 0; i < 5; i++ {
			var s string
			if err := json.Unmarshal(k[i+1], &s); err != nil {
				ok = false
				break
			}
			d, err := decimal.NewFromString(s)
			if err != nil {
				ok = false
				break
			}
			fields[i] = d
		}
		if !ok {
			continue
		}
		candles = append(candles, model.Candle{
			Interval:  interval,
			Timestamp: ts,
			Open:      fields[0],
			High:      fields[1],
			Low:       fields[2],
			Close:     fields[3],
			Volume:    fields[4],
		})
	}
	return candles, nil
}

// GetBidAsk fetches a REST top-of-book snapshot for the contract and merges
// it into the shared quote cache
func (c *Client) GetBidAsk(ctx context.Context, contract model.Contract) (model.Quote, error) {
	params := Params{}.With("symbol", contract.Symbol)

	body, err := c.gateway.Get(ctx, c.endpoints.BookTicker(), params)
	if err != nil {
		return model.Quote{}, err
	}

	var resp struct {
		BidPrice string `json:"bidPrice"`
		AskPrice string `json:"askPrice"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return model.Quote{}, fmt.Errorf("failed to parse book ticker: %w", err)
	}

	bid, err := decimal.NewFromString(resp.BidPrice)
	if err != nil {
		return model.Quote{}, fmt.Errorf("invalid bid price %q: %w", resp.BidPrice, err)
	}
	ask, err := decimal.NewFromString(resp.AskPrice)
	if err != nil {
		return model.Quote{}, fmt.Errorf("invalid ask price %q: %w", resp.AskPrice, err)
	}

	c.cache.Upsert(contract.Symbol, bid, ask)
	telemetry.GetGlobalMetrics().SetQuotesCached(int64(c.cache.Len()))

	quote, _ := c.cache.Get(contract.Symbol)
	return quote, nil
}

// GetBalances fetches the signed account snapshot and returns wallet
// balances keyed by asset
func (c *Client) GetBalances(ctx context.Context) (map[string]model.Balance, error) {
	body, err := c.gateway.Get(ctx, c.endpoints.Account(), c.sign(nil))
	if err != nil {
		return nil, err
	}

	balances := make(map[string]model.Balance)

	if c.cfg.Exchange.Mode == config.ModeFutures {
		var resp struct {
			Assets []struct {
				Asset            string `json:"asset"`
				WalletBalance    string `json:"walletBalance"`
				UnrealizedProfit string `json:"unrealizedProfit"`
			} `json:"assets"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("failed to parse account: %w", err)
		}
		for _, a := range resp.Assets {
			wallet, err := decimal.NewFromString(a.WalletBalance)
			if err != nil {
				continue
			}
			pnl, _ := decimal.NewFromString(a.UnrealizedProfit)
			balances[a.Asset] = model.Balance{
				Asset:         a.Asset,
				WalletBalance: wallet,
				UnrealizedPnL: pnl,
			}
		}
		return balances, nil
	}

	var resp struct {
		Balances []struct {
			Asset  string `json:"asset"`
			Free   string `json:"free"`
			Locked string `json:"locked"`
		} `json:"balances"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse account: %w", err)
	}
	for _, b := range resp.Balances {
		free, err := decimal.NewFromString(b.Free)
		if err != nil {
			continue
		}
		locked, _ := decimal.NewFromString(b.Locked)
		balances[b.Asset] = model.Balance{
			Asset:         b.Asset,
			WalletBalance: free.Add(locked),
		}
	}
	return balances, nil
}

// TradeSize computes an order quantity that spends balancePct percent of
// the quote-asset wallet balance at the given price, rounded to the nearest
// lot size multiple
func (c *Client) TradeSize(ctx context.Context, contract model.Contract, price decimal.Decimal, balancePct float64) (decimal.Decimal, error) {
	if price.IsZero() {
		return decimal.Zero, fmt.Errorf("trade size at zero price")
	}

	balances, err := c.GetBalances(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	balance, ok := balances[contract.QuoteAsset]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", apperrors.ErrAssetNotHeld, contract.QuoteAsset)
	}

	raw := balance.WalletBalance.
		Mul(decimal.NewFromFloat(balancePct)).
		Div(decimal.NewFromInt(100)).
		Div(price)

	if contract.LotSize.IsPositive() {
		raw = raw.Div(contract.LotSize).Round(0).Mul(contract.LotSize)
	}
	return raw.Round(8), nil
}

// PlaceOrder submits a new order. A client order id is generated when the
// request does not carry one.
func (c *Client) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*model.OrderStatus, error) {
	clientOrderID := req.ClientOrderID
	if clientOrderID == "" {
		clientOrderID = uuid.New().String()
	}

	params := Params{}.
		With("symbol", req.Symbol).
		With("side", string(req.Side)).
		With("quantity", req.Quantity.String()).
		With("type", string(req.Type))
	if req.Price != nil {
		params = params.With("price", req.Price.String())
	}
	if req.TimeInForce != "" {
		params = params.With("timeInForce", req.TimeInForce)
	}
	params = params.With("newClientOrderId", clientOrderID)

	body, err := c.gateway.Post(ctx, c.endpoints.Order(), c.sign(params))
	if err != nil {
		return nil, err
	}

	status, err := parseOrderStatus(body)
	if err != nil {
		return nil, err
	}

	mh := telemetry.GetGlobalMetrics()
	if mh.OrdersPlacedTotal != nil {
		mh.OrdersPlacedTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("symbol", req.Symbol),
			attribute.String("side", string(req.Side)),
		))
	}
	c.logger.Info("order placed",
		"symbol", status.Symbol,
		"side", string(status.Side),
		"type", string(status.Type),
		"quantity", status.OrigQty.String(),
		"order_id", status.OrderID)
	return status, nil
}

// CancelOrder cancels an open order by exchange order id
func (c *Client) CancelOrder(ctx context.Context, symbol string, orderID int64) (*model.OrderStatus, error) {
	params := Params{}.
		With("symbol", symbol).
		With("orderId", strconv.FormatInt(orderID, 10))

	body, err := c.gateway.Delete(ctx, c.endpoints.Order(), c.sign(params))
	if err != nil {
		return nil, err
	}
	return parseOrderStatus(body)
}

// GetOrderStatus fetches the current state of an order by exchange order id
func (c *Client) GetOrderStatus(ctx context.Context, symbol string, orderID int64) (*model.OrderStatus, error) {
	params := Params{}.
		With("symbol", symbol).
		With("orderId", strconv.FormatInt(orderID, 10))

	body, err := c.gateway.Get(ctx, c.endpoints.Order(), c.sign(params))
	if err != nil {
		return nil, err
	}
	return parseOrderStatus(body)
}

// GetOpenOrders fetches every open order across all symbols
func (c *Client) GetOpenOrders(ctx context.Context) ([]*model.OrderStatus, error) {
	body, err := c.gateway.Get(ctx, c.endpoints.OpenOrders(), c.sign(nil))
	if err != nil {
		return nil, err
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse open orders: %w", err)
	}

	orders := make([]*model.OrderStatus, 0, len(raw))
	for _, r := range raw {
		status, err := parseOrderStatus(r)
		if err != nil {
			c.logger.Warn("skipping unparseable open order", "error", err)
			continue
		}
		orders = append(orders, status)
	}
	return orders, nil
}

// sign appends the timestamp and signature to params. The signature covers
// every preceding parameter in wire order.
func (c *Client) sign(params Params) Params {
	params = params.With("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	return params.With("signature", c.signer.Sign(params))
}

func parseOrderStatus(body []byte) (*model.OrderStatus, error) {
	var resp struct {
		OrderID       int64  `json:"orderId"`
		ClientOrderID string `json:"clientOrderId"`
		Symbol        string `json:"symbol"`
		Side          string `json:"side"`
		Type          string `json:"type"`
		Price         string `json:"price"`
		OrigQty       string `json:"origQty"`
		ExecutedQty   string `json:"executedQty"`
		AvgPrice      string `json:"avgPrice"`
		Status        string `json:"status"`
		UpdateTime    int64  `json:"updateTime"`
		TransactTime  int64  `json:"transactTime"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse order response: %w", err)
	}

	price, _ := decimal.NewFromString(resp.Price)
	origQty, _ := decimal.NewFromString(resp.OrigQty)
	executedQty, _ := decimal.NewFromString(resp.ExecutedQty)
	avgPrice, _ := decimal.NewFromString(resp.AvgPrice)

	updateTime := resp.UpdateTime
	if updateTime == 0 {
		updateTime = resp.TransactTime
	}

	return &model.OrderStatus{
		OrderID:       resp.OrderID,
		ClientOrderID: resp.ClientOrderID,
		Symbol:        resp.Symbol,
		Side:          model.Side(resp.Side),
		Type:          model.OrderType(resp.Type),
		Price:         price,
		OrigQty:       origQty,
		ExecutedQty:   executedQty,
		AvgPrice:      avgPrice,
		State:         mapOrderState(resp.Status),
		UpdateTime:    updateTime,
	}, nil
}

func mapOrderState(status string) model.OrderState {
	switch status {
	case "NEW":
		return model.OrderStateNew
	case "PARTIALLY_FILLED":
		return model.OrderStatePartiallyFilled
	case "FILLED":
		return model.OrderStateFilled
	case "CANCELED":
		return model.OrderStateCanceled
	case "EXPIRED":
		return model.OrderStateExpired
	case "REJECTED":
		return model.OrderStateRejected
	default:
		return model.OrderState(status)
	}
}

// onConnected runs after every successful connect, first connect included
func (c *Client) onConnected() {
	mh := telemetry.GetGlobalMetrics()
	if mh.ReconnectsTotal != nil {
		mh.ReconnectsTotal.Add(context.Background(), 1)
	}
	c.subs.Resubscribe()
}

// handleMessage routes one stream message. Malformed payloads and unknown
// event types are dropped. Runs on the session goroutine, so events for a
// symbol are processed strictly in arrival order.
func (c *Client) handleMessage(message []byte) {
	var header eventHeader
	if err := json.Unmarshal(message, &header); err != nil {
		c.logger.Debug("dropping unparseable stream message", "error", err)
		return
	}

	switch header.EventType {
	case ChannelBookTicker:
		c.handleBookTicker(message)
	case ChannelAggTrade:
		c.handleAggTrade(message)
	default:
		// Subscribe acks and unknown events land here
	}
}

func (c *Client) handleBookTicker(message []byte) {
	var ev bookTickerEvent
	if err := json.Unmarshal(message, &ev); err != nil {
		c.logger.Debug("dropping unparseable book ticker", "error", err)
		return
	}

	bid, err := decimal.NewFromString(ev.BidPrice)
	if err != nil {
		c.logger.Debug("dropping book ticker with bad bid", "symbol", ev.Symbol, "value", ev.BidPrice)
		return
	}
	ask, err := decimal.NewFromString(ev.AskPrice)
	if err != nil {
		c.logger.Debug("dropping book ticker with bad ask", "symbol", ev.Symbol, "value", ev.AskPrice)
		return
	}

	c.cache.Upsert(ev.Symbol, bid, ask)

	mh := telemetry.GetGlobalMetrics()
	mh.SetQuotesCached(int64(c.cache.Len()))
	if mh.TicksTotal != nil {
		mh.TicksTotal.Add(context.Background(), 1, metric.WithAttributes(
			attribute.String("channel", ChannelBookTicker)))
	}

	quote, _ := c.cache.Get(ev.Symbol)
	c.dispatcher.OnBookTicker(ev.Symbol, quote)
}

func (c *Client) handleAggTrade(message []byte) {
	var ev aggTradeEvent
	if err := json.Unmarshal(message, &ev); err != nil {
		c.logger.Debug("dropping unparseable trade", "error", err)
		return
	}

	price, err := decimal.NewFromString(ev.Price)
	if err != nil {
		c.logger.Debug("dropping trade with bad price", "symbol", ev.Symbol, "value", ev.Price)
		return
	}
	quantity, err := decimal.NewFromString(ev.Quantity)
	if err != nil {
		c.logger.Debug("dropping trade with bad quantity", "symbol", ev.Symbol, "value", ev.Quantity)
		return
	}

	mh := telemetry.GetGlobalMetrics()
	if mh.TicksTotal != nil {
		mh.TicksTotal.Add(context.Background(), 1, metric.WithAttributes(
			attribute.String("channel", ChannelAggTrade)))
	}

	c.dispatcher.OnAggTrade(ev.Symbol, price, quantity, ev.TradeTime)
}
