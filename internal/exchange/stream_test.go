package exchange

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"exchange_connector/pkg/logging"
	"exchange_connector/pkg/websocket"

	gorillaws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscriptionIDIncrementsOnFailure(t *testing.T) {
	logger, err := logging.NewZapLogger("ERROR")
	require.NoError(t, err)

	// Never started, so every send fails with a connection error
	ws := websocket.NewClient("ws://127.0.0.1:1/stream", nil, time.Second, logger)
	subs := NewSubscriptionManager(ws, logger)

	assert.Equal(t, int64(1), subs.NextID())
	subs.Subscribe([]string{"BTCUSDT"}, ChannelBookTicker)
	assert.Equal(t, int64(2), subs.NextID())
	subs.Subscribe([]string{"ETHUSDT"}, ChannelAggTrade)
	assert.Equal(t, int64(3), subs.NextID())

	// Failed sends still record the streams for the reconnect replay
	assert.Equal(t, 2, subs.Count())
}

func TestSubscribeWireFormat(t *testing.T) {
	logger, err := logging.NewZapLogger("ERROR")
	require.NoError(t, err)

	received := make(chan []byte, 4)
	upgrader := gorillaws.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			received <- msg
		}
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	ws := websocket.NewClient(wsURL, nil, time.Second, logger)
	subs := NewSubscriptionManager(ws, logger)

	ws.Start()
	defer ws.Stop()

	require.Eventually(t, ws.IsConnected, 3*time.Second, 10*time.Millisecond)

	subs.Subscribe([]string{"BTCUSDT", "ETHUSDT"}, ChannelBookTicker)

	select {
	case msg := <-received:
		var req struct {
			Method string   `json:"method"`
			Params []string `json:"params"`
			ID     int64    `json:"id"`
		}
		require.NoError(t, json.Unmarshal(msg, &req))
		assert.Equal(t, "SUBSCRIBE", req.Method)
		assert.Equal(t, []string{"btcusdt@bookTicker", "ethusdt@bookTicker"}, req.Params)
		assert.Equal(t, int64(1), req.ID)
	case <-time.After(3 * time.Second):
		t.Fatal("subscribe request never arrived")
	}
}
