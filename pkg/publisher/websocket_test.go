package publisher

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/NotCoffee418/tether_serial/pkg/types"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBroadcaster(t *testing.T) (*Broadcaster, *httptest.Server) {
	t.Helper()
	b := NewBroadcaster(slog.New(slog.NewTextHandler(io.Discard, nil)))
	srv := httptest.NewServer(b.Handler())
	t.Cleanup(srv.Close)
	return b, srv
}

func dialFeed(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readValue(t *testing.T, conn *websocket.Conn) *types.ValueMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	msg := types.ValueMessageFromJsonBytes(data)
	require.NotNil(t, msg)
	return msg
}

func TestBroadcaster_LatestBeforeFirstValue(t *testing.T) {
	_, srv := newTestBroadcaster(t)

	resp, err := http.Get(srv.URL + "/latest")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestBroadcaster_PublishReachesClients(t *testing.T) {
	b, srv := newTestBroadcaster(t)
	conn := dialFeed(t, srv)

	require.Eventually(t, func() bool { return b.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, b.Publish(context.Background(), "serial.any.values", 123))
	require.NoError(t, b.Publish(context.Background(), "serial.any.values", 123))

	first := readValue(t, conn)
	second := readValue(t, conn)
	assert.Equal(t, uint32(123), first.Value)
	assert.Equal(t, uint32(123), second.Value)
	assert.Equal(t, "serial.any.values", first.Destination)
	assert.NotEqual(t, first.ID, second.ID, "every publish is a separate message")

	resp, err := http.Get(srv.URL + "/latest")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var latest types.ValueMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&latest))
	assert.Equal(t, second.ID, latest.ID)
}

func TestBroadcaster_NewClientGetsLatest(t *testing.T) {
	b, srv := newTestBroadcaster(t)
	require.NoError(t, b.Publish(context.Background(), "serial.any.values", 456))

	conn := dialFeed(t, srv)
	assert.Equal(t, uint32(456), readValue(t, conn).Value)
}

func TestBroadcaster_ClosedClientIsDropped(t *testing.T) {
	b, srv := newTestBroadcaster(t)
	conn := dialFeed(t, srv)
	require.Eventually(t, func() bool { return b.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool {
		// Publishing to a gone client is not an error
		_ = b.Publish(context.Background(), "serial.any.values", 1)
		return b.ClientCount() == 0
	}, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, b.Publish(context.Background(), "serial.any.values", 2))
}
