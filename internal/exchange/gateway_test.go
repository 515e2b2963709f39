package exchange

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	apperrors "exchange_connector/pkg/errors"
	"exchange_connector/pkg/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGateway(t *testing.T, baseURL string) *Gateway {
	t.Helper()
	logger, err := logging.NewZapLogger("ERROR")
	require.NoError(t, err)

	return NewGateway(GatewayConfig{
		BaseURL: baseURL,
		APIKey:  "test-api-key",
		Timeout: 5 * time.Second,
	}, logger)
}

func TestGatewaySendsAPIKeyAndRawQuery(t *testing.T) {
	var gotKey, gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-MBX-APIKEY")
		gotQuery = r.URL.RawQuery
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	gw := newTestGateway(t, server.URL)

	params := Params{}.With("symbol", "BTCUSDT").With("side", "BUY").With("quantity", "1")
	_, err := gw.Get(context.Background(), "/fapi/v1/order", params)
	require.NoError(t, err)

	assert.Equal(t, "test-api-key", gotKey)
	// The wire query must keep insertion order, not alphabetical order
	assert.Equal(t, "symbol=BTCUSDT&side=BUY&quantity=1", gotQuery)
}

func TestGatewayClassifiesExchangeErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want error
	}{
		{"auth", `{"code":-2015,"msg":"Invalid API-key"}`, apperrors.ErrAuthenticationFailed},
		{"funds", `{"code":-2010,"msg":"Account has insufficient balance"}`, apperrors.ErrInsufficientFunds},
		{"rate", `{"code":-1003,"msg":"Too many requests"}`, apperrors.ErrRateLimitExceeded},
		{"symbol", `{"code":-1121,"msg":"Invalid symbol"}`, apperrors.ErrInvalidSymbol},
		{"timestamp", `{"code":-1021,"msg":"Timestamp outside recvWindow"}`, apperrors.ErrTimestampOutOfBounds},
		{"missing", `{"code":-2013,"msg":"Order does not exist"}`, apperrors.ErrOrderNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			gw := newTestGateway(t, server.URL)
			_, err := gw.Get(context.Background(), "/fapi/v1/order", nil)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestGatewayUnknownErrorCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":-9999,"msg":"something else"}`))
	}))
	defer server.Close()

	gw := newTestGateway(t, server.URL)
	_, err := gw.Get(context.Background(), "/fapi/v1/order", nil)

	apiErr, ok := IsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Contains(t, string(apiErr.Body), "-9999")
}

func TestGatewayTransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // refuse connections

	gw := newTestGateway(t, server.URL)
	_, err := gw.Get(context.Background(), "/fapi/v1/time", nil)
	assert.ErrorIs(t, err, apperrors.ErrNetwork)
}

func TestGatewayRetriesServerErrors(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	logger, err := logging.NewZapLogger("ERROR")
	require.NoError(t, err)
	gw := NewGateway(GatewayConfig{
		BaseURL:      server.URL,
		Timeout:      5 * time.Second,
		RetryEnabled: true,
	}, logger)

	body, err := gw.Get(context.Background(), "/fapi/v1/time", nil)
	require.NoError(t, err)
	assert.Contains(t, string(body), "ok")
	assert.Equal(t, 3, calls)
}
