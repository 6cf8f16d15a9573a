package interpreter

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/NotCoffee418/tether_serial/pkg/publisher"
	"github.com/NotCoffee418/tether_serial/pkg/types"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFeedURL(t *testing.T) {
	u := FeedURL("localhost:9040", "/ws", false)
	assert.Equal(t, "ws://localhost:9040/ws", u.String())

	u = FeedURL("bridge.lan", "/ws", true)
	assert.Equal(t, "wss://bridge.lan/ws", u.String())
}

func TestStartListener_DeliversValueMessages(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"not":"a value"}`))
		_ = conn.WriteMessage(websocket.TextMessage, types.NewValueMessage("serial.any.values", 42, at).ToJsonBytes())
		// Hold the connection until the client closes it
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	u := FeedURL(strings.TrimPrefix(server.URL, "http://"), "/ws", false)
	received := make(chan *types.ValueMessage, 1)
	errCh := make(chan error, 1)
	go func() {
		errCh <- StartListener(ctx, u, discardLogger(), func(msg *types.ValueMessage) {
			received <- msg
		})
	}()

	select {
	case msg := <-received:
		assert.Equal(t, uint32(42), msg.Value)
		assert.Equal(t, "serial.any.values", msg.Destination)
		assert.Equal(t, "2024-05-01T12:00:00Z", msg.Timestamp)
	case <-time.After(5 * time.Second):
		t.Fatal("no value received")
	}

	cancel()
	select {
	case err := <-errCh:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("listener did not stop after cancel")
	}
}

func TestStartListener_GivesUpAfterMaxRetries(t *testing.T) {
	oldRetries, oldDelay := MaxRetries, BaseRetryDelay
	MaxRetries, BaseRetryDelay = 2, time.Millisecond
	t.Cleanup(func() { MaxRetries, BaseRetryDelay = oldRetries, oldDelay })

	// Listening then closing leaves a port nobody answers on
	server := httptest.NewServer(http.NotFoundHandler())
	host := strings.TrimPrefix(server.URL, "http://")
	server.Close()

	err := StartListener(context.Background(), FeedURL(host, "/ws", false), discardLogger(), func(*types.ValueMessage) {
		t.Error("unexpected value")
	})
	require.ErrorIs(t, err, ErrMaxRetries)
}

// collector records delivered messages from the listener goroutine.
type collector struct {
	mu   sync.Mutex
	msgs []*types.ValueMessage
}

func (c *collector) add(msg *types.ValueMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
}

func (c *collector) values() []uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]uint32, 0, len(c.msgs))
	for _, m := range c.msgs {
		out = append(out, m.Value)
	}
	return out
}

func TestStartListener_IdleFeedStaysConnected(t *testing.T) {
	oldDeadline, oldPing := ReadDeadline, PingInterval
	ReadDeadline, PingInterval = 300*time.Millisecond, 50*time.Millisecond
	t.Cleanup(func() { ReadDeadline, PingInterval = oldDeadline, oldPing })

	broadcaster := publisher.NewBroadcaster(discardLogger())
	require.NoError(t, broadcaster.Publish(context.Background(), "serial.any.values", 7))

	var connects atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		connects.Add(1)
		broadcaster.ServeWS(w, r)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	got := &collector{}
	errCh := make(chan error, 1)
	go func() {
		u := FeedURL(strings.TrimPrefix(server.URL, "http://"), "/ws", false)
		errCh <- StartListener(ctx, u, discardLogger(), got.add)
	}()

	// Several read deadlines pass without any value on the feed
	time.Sleep(4 * ReadDeadline)
	cancel()
	select {
	case err := <-errCh:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("listener did not stop after cancel")
	}

	assert.Equal(t, []uint32{7}, got.values())
	assert.Equal(t, int32(1), connects.Load(), "an idle feed must not reconnect")
}

func TestStartListener_SkipsRepeatedMessage(t *testing.T) {
	first := types.NewValueMessage("serial.any.values", 1, time.Now())
	second := types.NewValueMessage("serial.any.values", 1, time.Now())

	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		// Latest value resent, as after a reconnect, then a new publish of the same number
		for _, msg := range []*types.ValueMessage{first, first, second} {
			_ = conn.WriteMessage(websocket.TextMessage, msg.ToJsonBytes())
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	got := &collector{}
	go func() {
		u := FeedURL(strings.TrimPrefix(server.URL, "http://"), "/ws", false)
		_ = StartListener(ctx, u, discardLogger(), got.add)
	}()

	require.Eventually(t, func() bool { return len(got.values()) == 2 }, 5*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, []uint32{1, 1}, got.values(), "same number with a new id is a new value")
}
