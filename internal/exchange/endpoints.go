package exchange

import "exchange_connector/internal/config"

// Endpoints resolves REST paths and connection URLs for a given market mode
// and network. Both are fixed at construction and never change afterwards.
type Endpoints struct {
	mode      config.Mode
	baseURL   string
	streamURL string
}

// NewEndpoints resolves the endpoint set for the mode and network. Explicit
// URL overrides take precedence over the built-in routing table.
func NewEndpoints(mode config.Mode, network config.Network, baseOverride, streamOverride string) Endpoints {
	e := Endpoints{mode: mode}

	switch {
	case mode == config.ModeFutures && network == config.NetworkProduction:
		e.baseURL = "https://fapi.binance.com"
		e.streamURL = "wss://fstream.binance.com/ws"
	case mode == config.ModeFutures && network == config.NetworkTestnet:
		e.baseURL = "https://testnet.binancefuture.com"
		e.streamURL = "wss://stream.binancefuture.com/ws"
	case mode == config.ModeSpot && network == config.NetworkProduction:
		e.baseURL = "https://api.binance.com"
		e.streamURL = "wss://stream.binance.com:9443/ws"
	case mode == config.ModeSpot && network == config.NetworkTestnet:
		e.baseURL = "https://testnet.binance.vision"
		e.streamURL = "wss://testnet.binance.vision/ws"
	}

	if baseOverride != "" {
		e.baseURL = baseOverride
	}
	if streamOverride != "" {
		e.streamURL = streamOverride
	}
	return e
}

// BaseURL returns the REST API base URL
func (e Endpoints) BaseURL() string { return e.baseURL }

// StreamURL returns the websocket stream URL
func (e Endpoints) StreamURL() string { return e.streamURL }

// ExchangeInfo returns the contract metadata path
func (e Endpoints) ExchangeInfo() string {
	if e.mode == config.ModeFutures {
		return "/fapi/v1/exchangeInfo"
	}
	return "/api/v3/exchangeInfo"
}

// Klines returns the historical candle path
func (e Endpoints) Klines() string {
	if e.mode == config.ModeFutures {
		return "/fapi/v1/klines"
	}
	return "/api/v3/klines"
}

// BookTicker returns the top-of-book snapshot path
func (e Endpoints) BookTicker() string {
	if e.mode == config.ModeFutures {
		return "/fapi/v1/ticker/bookTicker"
	}
	return "/api/v3/ticker/bookTicker"
}

// Account returns the signed account information path
func (e Endpoints) Account() string {
	if e.mode == config.ModeFutures {
		return "/fapi/v2/account"
	}
	return "/api/v3/account"
}

// Order returns the single-order management path
func (e Endpoints) Order() string {
	if e.mode == config.ModeFutures {
		return "/fapi/v1/order"
	}
	return "/api/v3/order"
}

// OpenOrders returns the open order listing path
func (e Endpoints) OpenOrders() string {
	if e.mode == config.ModeFutures {
		return "/fapi/v1/openOrders"
	}
	return "/api/v3/openOrders"
}
