package publisher

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/NotCoffee418/tether_serial/pkg/types"
	"github.com/gorilla/websocket"
)

const writeTimeout = time.Second

// Broadcaster pushes every published value to connected websocket clients
// and remembers the latest one for /latest.
type Broadcaster struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader
	now      func() time.Time

	latest   *types.ValueMessage
	latestMu sync.RWMutex

	// Writes to one client are serialized by its mutex
	clients   map[*websocket.Conn]*sync.Mutex
	clientsMu sync.RWMutex
}

func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Feed is read-only
			},
		},
		now:     time.Now,
		clients: make(map[*websocket.Conn]*sync.Mutex),
	}
}

// Publish never fails because of a client: clients that cannot keep up are dropped.
func (b *Broadcaster) Publish(_ context.Context, destination string, value uint32) error {
	msg := types.NewValueMessage(destination, value, b.now())

	b.latestMu.Lock()
	b.latest = msg
	b.latestMu.Unlock()

	data := msg.ToJsonBytes()
	b.clientsMu.RLock()
	clients := make(map[*websocket.Conn]*sync.Mutex, len(b.clients))
	for conn, mu := range b.clients {
		clients[conn] = mu
	}
	b.clientsMu.RUnlock()

	for conn, mu := range clients {
		if err := b.write(conn, mu, data); err != nil {
			b.logger.Debug("Dropping websocket client", "remote", conn.RemoteAddr().String(), "error", err)
			b.RemoveClient(conn)
		}
	}
	return nil
}

func (b *Broadcaster) Latest() *types.ValueMessage {
	b.latestMu.RLock()
	defer b.latestMu.RUnlock()
	return b.latest
}

func (b *Broadcaster) ClientCount() int {
	b.clientsMu.RLock()
	defer b.clientsMu.RUnlock()
	return len(b.clients)
}

func (b *Broadcaster) AddClient(conn *websocket.Conn) {
	b.clientsMu.Lock()
	b.clients[conn] = &sync.Mutex{}
	b.clientsMu.Unlock()
}

func (b *Broadcaster) RemoveClient(conn *websocket.Conn) {
	b.clientsMu.Lock()
	_, ok := b.clients[conn]
	delete(b.clients, conn)
	b.clientsMu.Unlock()
	if ok {
		conn.Close()
	}
}

func (b *Broadcaster) write(conn *websocket.Conn, mu *sync.Mutex, data []byte) error {
	mu.Lock()
	defer mu.Unlock()
	conn.SetWriteDeadline(b.now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// ServeLatest answers with the latest value, or 404 before the first one.
func (b *Broadcaster) ServeLatest(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	latest := b.Latest()
	if latest == nil {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{
			"error": "No values available yet",
		})
		return
	}
	w.Write(latest.ToJsonBytes())
}

// ServeWS upgrades to a websocket that receives every published value.
func (b *Broadcaster) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Warn("WebSocket upgrade error", "error", err)
		return
	}

	// Send current value immediately if available, before the client is
	// visible to Publish so writes cannot interleave
	if latest := b.Latest(); latest != nil {
		conn.SetWriteDeadline(b.now().Add(writeTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, latest.ToJsonBytes()); err != nil {
			conn.Close()
			return
		}
	}
	b.AddClient(conn)

	// Keep connection alive, clients only send control frames
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			b.RemoveClient(conn)
			return
		}
	}
}

// Handler mounts /latest and /ws.
func (b *Broadcaster) Handler() http.Handler {
	mux := http.NewServeMux()
	b.Mount(mux)
	return mux
}

func (b *Broadcaster) Mount(mux *http.ServeMux) {
	mux.HandleFunc("/latest", b.ServeLatest)
	mux.HandleFunc("/ws", b.ServeWS)
}
