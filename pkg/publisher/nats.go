package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/NotCoffee418/tether_serial/pkg/types"
	"github.com/nats-io/nats.go"
)

const defaultFlushTimeout = 2 * time.Second

type NatsOptions struct {
	URL        string
	ClientName string
	// "json" for a bare number, "envelope" for a types.ValueMessage
	PayloadFormat string
	FlushTimeout  time.Duration
}

// NatsPublisher publishes values as NATS messages, the destination is the subject.
type NatsPublisher struct {
	conn         *nats.Conn
	encode       Encoder
	flushTimeout time.Duration
}

type Encoder func(destination string, value uint32, at time.Time) []byte

func PayloadEncoder(format string) (Encoder, error) {
	switch format {
	case "", "json":
		return func(_ string, v uint32, _ time.Time) []byte {
			return strconv.AppendUint(nil, uint64(v), 10)
		}, nil
	case "envelope":
		return func(destination string, v uint32, at time.Time) []byte {
			return types.NewValueMessage(destination, v, at).ToJsonBytes()
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// ConnectNats dials the server once. Reconnects are left to the client,
// a publish while disconnected fails.
func ConnectNats(opts NatsOptions, logger *slog.Logger) (*NatsPublisher, error) {
	encode, err := PayloadEncoder(opts.PayloadFormat)
	if err != nil {
		return nil, err
	}
	flushTimeout := opts.FlushTimeout
	if flushTimeout <= 0 {
		flushTimeout = defaultFlushTimeout
	}

	conn, err := nats.Connect(opts.URL,
		nats.Name(opts.ClientName),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected", "url", c.ConnectedUrl())
		}),
		// Buffering while disconnected would hide failures from the loop
		nats.ReconnectBufSize(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", opts.URL, err)
	}

	logger.Info("Connected to NATS", "url", conn.ConnectedUrl())
	return &NatsPublisher{conn: conn, encode: encode, flushTimeout: flushTimeout}, nil
}

// Publish sends the value and waits for the server to process the flush.
func (n *NatsPublisher) Publish(ctx context.Context, destination string, value uint32) error {
	if n.conn == nil || !n.conn.IsConnected() {
		return ErrNotConnected
	}
	if err := n.conn.Publish(destination, n.encode(destination, value, time.Now())); err != nil {
		return err
	}

	flushCtx, cancel := context.WithTimeout(ctx, n.flushTimeout)
	defer cancel()
	return n.conn.FlushWithContext(flushCtx)
}

func (n *NatsPublisher) Close() {
	if n.conn != nil {
		n.conn.Close()
	}
}
