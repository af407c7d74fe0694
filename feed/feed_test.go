package feed

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pocketsim/pocketsim/market"
	"github.com/pocketsim/pocketsim/sim"
)

func newTestFeed(t *testing.T) (*Server, string) {
	t.Helper()
	simulator := sim.New(sim.Config{Symbols: []string{"EUR/USD"}, Seed: 1})
	srv := NewServer(simulator)
	t.Cleanup(srv.Close)

	hs := httptest.NewServer(srv)
	t.Cleanup(hs.Close)
	return srv, "ws" + strings.TrimPrefix(hs.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg Message
	require.NoError(t, json.Unmarshal(payload, &msg))
	return msg
}

func waitForClients(t *testing.T, srv *Server, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return srv.ClientCount() == n },
		2*time.Second, 5*time.Millisecond)
}

func TestStreamDelivery(t *testing.T) {
	t.Parallel()
	srv, url := newTestFeed(t)
	conn := dial(t, url)
	waitForClients(t, srv, 1)

	srv.broadcast("EUR/USD", Message{
		Type: "tick",
		Data: market.Tick{Symbol: "EUR/USD", Price: 1.0851},
	})

	msg := readMessage(t, conn)
	assert.Equal(t, "tick", msg.Type)

	data, ok := msg.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "EUR/USD", data["symbol"])
	assert.InDelta(t, 1.0851, data["price"], 1e-9)
}

func TestSymbolFilter(t *testing.T) {
	t.Parallel()
	srv, url := newTestFeed(t)
	conn := dial(t, url+"?symbols=EUR/USD")
	waitForClients(t, srv, 1)

	srv.broadcast("GBP/USD", Message{
		Type: "tick",
		Data: market.Tick{Symbol: "GBP/USD"},
	})
	srv.broadcast("EUR/USD", Message{
		Type: "tick",
		Data: market.Tick{Symbol: "EUR/USD"},
	})

	// The filtered symbol never arrives, so the first frame is EUR/USD.
	msg := readMessage(t, conn)
	data, ok := msg.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "EUR/USD", data["symbol"])
}

func TestSlowClientDropped(t *testing.T) {
	t.Parallel()
	srv, url := newTestFeed(t)
	dial(t, url)
	waitForClients(t, srv, 1)

	// The client never reads. Once its socket and send buffer fill, the
	// broadcast path must shed it instead of blocking.
	msg := Message{Type: "tick", Data: market.Tick{Symbol: "EUR/USD", Price: 1.0851}}
	for i := 0; i < 100000 && srv.ClientCount() > 0; i++ {
		srv.broadcast("EUR/USD", msg)
	}
	waitForClients(t, srv, 0)
}

func TestClientDisconnectCleansUp(t *testing.T) {
	t.Parallel()
	srv, url := newTestFeed(t)
	conn := dial(t, url)
	waitForClients(t, srv, 1)

	conn.Close()
	waitForClients(t, srv, 0)
}

func TestClose(t *testing.T) {
	t.Parallel()
	srv, url := newTestFeed(t)
	conn := dial(t, url)
	waitForClients(t, srv, 1)

	srv.Close()
	assert.Equal(t, 0, srv.ClientCount())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}
