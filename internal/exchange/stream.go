package exchange

import (
	"strings"
	"sync"

	"exchange_connector/internal/core"
	"exchange_connector/pkg/websocket"
)

// Stream channel names
const (
	ChannelBookTicker = "bookTicker"
	ChannelAggTrade   = "aggTrade"
)

// subscribeRequest is the wire form of a stream subscription
type subscribeRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int64    `json:"id"`
}

// eventHeader carries only the "e" discriminator. The "E" field must be
// declared too: encoding/json falls back to case-insensitive matching, so
// without it the numeric event time would be forced into the "e" string
// field and fail the whole decode.
type eventHeader struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
}

// bookTickerEvent is a top-of-book update. Lowercase keys are prices,
// uppercase are quantities.
type bookTickerEvent struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	BidPrice  string `json:"b"`
	BidQty    string `json:"B"`
	AskPrice  string `json:"a"`
	AskQty    string `json:"A"`
}

// aggTradeEvent is one aggregated trade. The trade id key "a" collides
// with the book ticker's ask price, which is why each event type gets its
// own struct instead of a shared envelope.
type aggTradeEvent struct {
	EventType    string `json:"e"`
	EventTime    int64  `json:"E"`
	Symbol       string `json:"s"`
	AggTradeID   int64  `json:"a"`
	Price        string `json:"p"`
	Quantity     string `json:"q"`
	FirstTradeID int64  `json:"f"`
	LastTradeID  int64  `json:"l"`
	TradeTime    int64  `json:"T"`
}

// SubscriptionManager tracks stream subscriptions and replays them after
// every reconnect. Subscriptions do not survive a dropped connection, so
// the desired set is kept here and re-sent from the connect hook.
type SubscriptionManager struct {
	ws     *websocket.Client
	logger core.ILogger

	mu      sync.Mutex
	nextID  int64
	desired map[string]struct{}
}

// NewSubscriptionManager creates a subscription manager bound to ws
func NewSubscriptionManager(ws *websocket.Client, logger core.ILogger) *SubscriptionManager {
	return &SubscriptionManager{
		ws:      ws,
		logger:  logger,
		nextID:  1,
		desired: make(map[string]struct{}),
	}
}

// Subscribe requests the channel for every symbol in one message and records
// the streams for replay on reconnect. A failed send is logged and dropped;
// the reconnect replay is the retry path. The request id increases by one
// per call whether or not the send succeeds.
func (m *SubscriptionManager) Subscribe(symbols []string, channel string) {
	streams := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		streams = append(streams, strings.ToLower(sym)+"@"+channel)
	}
	m.send(streams, true)
}

// Resubscribe replays every recorded stream over the current connection
func (m *SubscriptionManager) Resubscribe() {
	m.mu.Lock()
	streams := make([]string, 0, len(m.desired))
	for s := range m.desired {
		streams = append(streams, s)
	}
	m.mu.Unlock()

	if len(streams) == 0 {
		return
	}
	m.send(streams, false)
}

// Count returns the number of recorded streams
func (m *SubscriptionManager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.desired)
}

// NextID returns the id the next subscribe request will carry
func (m *SubscriptionManager) NextID() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nextID
}

func (m *SubscriptionManager) send(streams []string, record bool) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	if record {
		for _, s := range streams {
			m.desired[s] = struct{}{}
		}
	}
	m.mu.Unlock()

	req := subscribeRequest{Method: "SUBSCRIBE", Params: streams, ID: id}
	if err := m.ws.Send(req); err != nil {
		m.logger.Error("stream subscribe failed",
			"streams", strings.Join(streams, ","),
			"id", id,
			"error", err)
		return
	}
	m.logger.Info("stream subscribed",
		"streams", strings.Join(streams, ","),
		"id", id)
}
