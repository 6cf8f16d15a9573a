//go:build integration

package publisher

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/NotCoffee418/tether_serial/pkg/types"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startNATSContainer(ctx context.Context, t *testing.T) string {
	t.Helper()

	req := testcontainers.ContainerRequest{
		Image:        "nats:2.11.7-alpine",
		ExposedPorts: []string{"4222/tcp"},
		WaitingFor:   wait.ForListeningPort("4222/tcp"),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "4222")
	require.NoError(t, err)

	return fmt.Sprintf("nats://%s:%s", host, port.Port())
}

func TestIntegration_NatsPublisher(t *testing.T) {
	ctx := context.Background()
	url := startNATSContainer(ctx, t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	for _, format := range []string{"json", "envelope"} {
		t.Run(format, func(t *testing.T) {
			sub, err := nats.Connect(url)
			require.NoError(t, err)
			t.Cleanup(sub.Close)

			received := make(chan *nats.Msg, 4)
			_, err = sub.ChanSubscribe("serial.any.values", received)
			require.NoError(t, err)
			require.NoError(t, sub.Flush())

			pub, err := ConnectNats(NatsOptions{URL: url, ClientName: "test", PayloadFormat: format}, logger)
			require.NoError(t, err)
			t.Cleanup(pub.Close)

			require.NoError(t, pub.Publish(ctx, "serial.any.values", 123))
			require.NoError(t, pub.Publish(ctx, "serial.any.values", 456))

			var got []uint32
			for range 2 {
				select {
				case msg := <-received:
					if format == "json" {
						var v uint32
						_, err := fmt.Sscan(string(msg.Data), &v)
						require.NoError(t, err)
						got = append(got, v)
					} else {
						vm := types.ValueMessageFromJsonBytes(msg.Data)
						require.NotNil(t, vm)
						got = append(got, vm.Value)
					}
				case <-time.After(2 * time.Second):
					t.Fatal("timeout waiting for published value")
				}
			}
			assert.Equal(t, []uint32{123, 456}, got)
		})
	}
}

func TestIntegration_NatsPublisherClosed(t *testing.T) {
	ctx := context.Background()
	url := startNATSContainer(ctx, t)

	pub, err := ConnectNats(NatsOptions{URL: url}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	pub.Close()

	require.ErrorIs(t, pub.Publish(ctx, "serial.any.values", 1), ErrNotConnected)
}
