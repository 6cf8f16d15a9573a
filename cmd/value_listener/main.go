// Prints every value published by a tether_serial bridge.
// Depends on the bridge's websocket feed being online.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/NotCoffee418/tether_serial/pkg/config"
	"github.com/NotCoffee418/tether_serial/pkg/interpreter"
	"github.com/NotCoffee418/tether_serial/pkg/pathing"
	"github.com/NotCoffee418/tether_serial/pkg/types"
)

func main() {
	configPath := flag.String("config", pathing.GetListenerConfigPath(), "Path to configuration file")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg, err := config.LoadListenerConfig(*configPath)
	if err != nil {
		logger.Error("Failed to load listener config", "error", err)
		os.Exit(2)
	}

	// Set the host:port from env var TETHER_SERIAL_HOST
	if host := os.Getenv("TETHER_SERIAL_HOST"); host != "" {
		cfg.BridgeHost = host
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	u := interpreter.FeedURL(cfg.BridgeHost, cfg.FeedPath, cfg.TLSEnabled)
	err = interpreter.StartListener(ctx, u, logger, printValue(os.Stdout))
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Listener stopped", "error", err)
		os.Exit(1)
	}
}

func printValue(w io.Writer) func(msg *types.ValueMessage) {
	return func(msg *types.ValueMessage) {
		fmt.Fprintln(w, string(msg.ToJsonBytes()))
	}
}
