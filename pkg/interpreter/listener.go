package interpreter

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"time"

	"github.com/NotCoffee418/tether_serial/pkg/types"
	"github.com/gorilla/websocket"
)

var ErrMaxRetries = errors.New("max connection retries reached")

// Timings of the feed listener. Exposed for tests.
var (
	MaxRetries     = 10
	BaseRetryDelay = 2 * time.Second
	MaxRetryDelay  = 60 * time.Second
	ReadDeadline   = 15 * time.Second
	// Must stay well below ReadDeadline, an idle feed is only kept alive by pongs
	PingInterval = 5 * time.Second
)

// FeedURL builds the websocket url of a bridge's value feed.
func FeedURL(host, path string, tls bool) url.URL {
	scheme := "ws"
	if tls {
		scheme = "wss"
	}
	return url.URL{Scheme: scheme, Host: host, Path: path}
}

// StartListener manages the websocket connection to a bridge and calls
// funcToCall for each value message. Reconnects with exponential backoff
// until ctx is cancelled or MaxRetries consecutive attempts failed.
// The bridge resends its latest value on every connect, a message with the
// same id as the previous one is not delivered again.
func StartListener(
	ctx context.Context,
	u url.URL,
	logger *slog.Logger,
	funcToCall func(msg *types.ValueMessage),
) error {
	retryCount := 0
	lastID := ""
	deliver := func(msg *types.ValueMessage) {
		if msg.ID == lastID {
			logger.Debug("Skipping already delivered value", "id", msg.ID)
			return
		}
		lastID = msg.ID
		funcToCall(msg)
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		// Calculate retry delay with exponential backoff
		if retryCount > 0 {
			retryDelay := time.Duration(1<<(retryCount-1)) * BaseRetryDelay
			if retryDelay > MaxRetryDelay {
				retryDelay = MaxRetryDelay
			}
			logger.Info("Retrying connection", "delay", retryDelay, "attempt", retryCount+1, "max_attempts", MaxRetries)
			select {
			case <-time.After(retryDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		logger.Info("Connecting to value feed", "url", u.String())

		dialer := *websocket.DefaultDialer
		dialer.HandshakeTimeout = 10 * time.Second
		c, _, err := dialer.DialContext(ctx, u.String(), nil)
		if err != nil {
			logger.Warn("Connection failed", "error", err)
			retryCount++
			if retryCount >= MaxRetries {
				return errors.Join(ErrMaxRetries, err)
			}
			continue
		}

		logger.Info("Connected, accepting values")
		retryCount = 0

		connectionBroken := handleConnection(ctx, c, logger, deliver)
		c.Close()

		if !connectionBroken {
			return ctx.Err()
		}
		logger.Warn("Connection lost, will retry")
		retryCount++
	}
}

// Returns true when the connection broke, false on a requested shutdown.
func handleConnection(
	ctx context.Context,
	c *websocket.Conn,
	logger *slog.Logger,
	funcToCall func(msg *types.ValueMessage),
) bool {
	done := make(chan struct{})

	// The bridge publishes at the device's pace, silence for this long means a dead peer
	c.SetReadDeadline(time.Now().Add(ReadDeadline))
	c.SetPongHandler(func(string) error {
		return c.SetReadDeadline(time.Now().Add(ReadDeadline))
	})

	go func() {
		defer close(done)
		for {
			messageType, message, err := c.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					logger.Warn("WebSocket error", "error", err)
				} else {
					logger.Info("Connection closed", "error", err)
				}
				return
			}

			c.SetReadDeadline(time.Now().Add(ReadDeadline))

			if messageType != websocket.TextMessage {
				logger.Debug("Ignoring non-text message", "type", messageType)
				continue
			}
			if msg := types.ValueMessageFromJsonBytes(message); msg != nil {
				funcToCall(msg)
			} else {
				logger.Warn("Failed to parse value message", "message", string(message))
			}
		}
	}()

	ticker := time.NewTicker(PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return true
		case <-ticker.C:
			if err := c.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second)); err != nil {
				logger.Warn("Failed to send ping", "error", err)
			}
		case <-ctx.Done():
			err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			if err != nil {
				logger.Debug("Error sending close message", "error", err)
			}
			// Wait for close confirmation or timeout
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return false
		}
	}
}
